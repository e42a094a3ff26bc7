// README: Postgres-backed carpool store tests (skipped without CARPOOL_TEST_DSN).
package carpool

import (
	"bufio"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"carpool/internal/config"
	"carpool/internal/modules/audit"
	"carpool/internal/modules/booking"
)

func TestStoreInviteConsentCAS(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	store := NewStore(db)
	host := insertBooking(t, db, "u_host", base, 20)
	joiner := insertBooking(t, db, "u_joiner", base.Add(10*time.Minute), 20)

	g := &Group{HostBookingID: host, Status: GroupActive, CreatedAt: base, UpdatedAt: base}
	if err := store.CreateGroup(ctx, g); err != nil {
		t.Fatalf("create group: %v", err)
	}
	dup := &Group{HostBookingID: host, Status: GroupActive, CreatedAt: base, UpdatedAt: base}
	if err := store.CreateGroup(ctx, dup); !errors.Is(err, ErrConflict) {
		t.Fatalf("second active group error = %v, want conflict", err)
	}

	inv := &Invite{GroupID: g.ID, HostBookingID: host, JoinerBookingID: joiner, ConsentStatus: ConsentPending, ExpiresAt: base.Add(time.Hour), CreatedAt: base}
	if err := store.CreateInvite(ctx, inv); err != nil {
		t.Fatalf("create invite: %v", err)
	}
	again := *inv
	if err := store.CreateInvite(ctx, &again); !errors.Is(err, ErrConflict) {
		t.Fatalf("duplicate open invite error = %v, want conflict", err)
	}

	now := time.Now().UTC().Truncate(time.Microsecond)
	ok, err := store.UpdateInviteConsent(ctx, inv.ID, ConsentPending, ConsentApproved, &now)
	if err != nil || !ok {
		t.Fatalf("approve: ok=%v err=%v", ok, err)
	}
	ok, err = store.UpdateInviteConsent(ctx, inv.ID, ConsentPending, ConsentDeclined, &now)
	if err != nil || ok {
		t.Fatalf("stale CAS should not apply: ok=%v err=%v", ok, err)
	}
	got, err := store.GetInvite(ctx, inv.ID)
	if err != nil {
		t.Fatalf("get invite: %v", err)
	}
	if got.ConsentStatus != ConsentApproved || got.RespondedAt == nil {
		t.Fatalf("invite = %+v", got)
	}
	if _, err := store.GetInvite(ctx, inv.ID+1000); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing invite error = %v, want not found", err)
	}
}

func TestStoreMergeRoundTrip(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	store := NewStore(db)
	bookings := booking.NewStore(db)
	host := insertBooking(t, db, "u_host", base, 20)
	joiner := insertBooking(t, db, "u_joiner", base.Add(10*time.Minute), 20)

	svc := NewService(Deps{
		Bookings: bookings,
		Repo:     store,
		Settings: staticSettings(config.DefaultCarpool()),
		Rates:    staticRates(config.DefaultCostRates()),
		Audit:    audit.NewService(audit.NewStore(db), zap.NewNop()),
	})
	inv, err := svc.Invite(ctx, InviteCommand{HostBookingID: host, JoinerBookingID: joiner, ActorID: "u_host"})
	if err != nil {
		t.Fatalf("invite: %v", err)
	}
	if _, err := svc.RespondToInvite(ctx, RespondCommand{InviteID: inv.ID, Decision: ConsentApproved, ActorID: "u_joiner"}); err != nil {
		t.Fatalf("respond: %v", err)
	}

	var wg sync.WaitGroup
	errs := make(chan error, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Merge(ctx, MergeCommand{GroupID: inv.GroupID, CostMode: CostEqual, ActorID: "u_admin"})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	success := 0
	for err := range errs {
		if err == nil {
			success++
		}
	}
	if success != 1 {
		t.Fatalf("successful merges = %d, want 1", success)
	}

	g, err := store.GetGroup(ctx, inv.GroupID)
	if err != nil {
		t.Fatalf("get group: %v", err)
	}
	if g.Status != GroupMerged || g.CombinedRoute == nil || g.SharedCost == nil || len(g.SharedCost.Shares) != 2 {
		t.Fatalf("group = %+v", g)
	}
	for _, id := range []int64{host, joiner} {
		b, err := bookings.Get(ctx, id)
		if err != nil {
			t.Fatalf("get booking: %v", err)
		}
		if b.Status != booking.StatusMerged || b.GroupID == nil || *b.GroupID != g.ID {
			t.Fatalf("booking %d = %s %v", id, b.Status, b.GroupID)
		}
	}

	late := &Invite{GroupID: g.ID, HostBookingID: host, JoinerBookingID: joiner + 100, ConsentStatus: ConsentPending, ExpiresAt: base.Add(time.Hour), CreatedAt: base}
	if err := store.CreateInvite(ctx, late); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("invite into merged group error = %v, want invalid state", err)
	}

	if _, err := svc.Unmerge(ctx, g.ID, "u_admin"); err != nil {
		t.Fatalf("unmerge: %v", err)
	}
	for _, id := range []int64{host, joiner} {
		b, _ := bookings.Get(ctx, id)
		if b.Status != booking.StatusSubmitted || b.GroupID != nil {
			t.Fatalf("booking %d after unmerge = %s %v", id, b.Status, b.GroupID)
		}
	}
	logs, err := svc.GetAuditLogs(ctx, g.ID)
	if err != nil {
		t.Fatalf("audit logs: %v", err)
	}
	if len(logs) == 0 || logs[0].Action != audit.ActionUnmerge {
		t.Fatalf("audit logs = %+v, want UNMERGE first", logs)
	}
}

func insertBooking(t *testing.T, db *pgxpool.Pool, requester string, start time.Time, km float64) int64 {
	t.Helper()
	ctx := context.Background()
	var id int64
	err := db.QueryRow(ctx, `
        INSERT INTO bookings (requester_id, start_at, end_at, passenger_count, status)
        VALUES ($1, $2, $3, 1, $4)
        RETURNING id`, requester, start, start.Add(40*time.Minute), string(booking.StatusSubmitted),
	).Scan(&id)
	if err != nil {
		t.Fatalf("insert booking: %v", err)
	}
	_, err = db.Exec(ctx, `
        INSERT INTO booking_segments (booking_id, seq, from_text, to_text, distance_km)
        VALUES ($1, 1, $2, $3, $4)`, id, stationA, stationB, km,
	)
	if err != nil {
		t.Fatalf("insert segment: %v", err)
	}
	return id
}

func setupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()

	dsn := os.Getenv("CARPOOL_TEST_DSN")
	if dsn == "" {
		t.Skip("CARPOOL_TEST_DSN not set; skipping DB-backed store tests")
	}

	ctx := context.Background()
	db, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := applyMigration(ctx, db); err != nil {
		t.Fatalf("apply migration: %v", err)
	}
	if _, err := db.Exec(ctx, "TRUNCATE TABLE carpool_audit_logs, carpool_invites, carpool_groups, booking_segments, bookings RESTART IDENTITY CASCADE"); err != nil {
		t.Fatalf("truncate tables: %v", err)
	}
	return db
}

func applyMigration(ctx context.Context, db *pgxpool.Pool) error {
	root, err := repoRoot()
	if err != nil {
		return err
	}
	content, err := os.ReadFile(filepath.Join(root, "migrations", "0001_carpool.sql"))
	if err != nil {
		return err
	}
	for _, stmt := range splitSQL(stripSQLComments(string(content))) {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func repoRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}
	for i := 0; i < 6; i++ {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", os.ErrNotExist
}

func stripSQLComments(input string) string {
	var b strings.Builder
	scanner := bufio.NewScanner(strings.NewReader(input))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "--") {
			continue
		}
		b.WriteString(scanner.Text())
		b.WriteString("\n")
	}
	return b.String()
}

func splitSQL(input string) []string {
	parts := strings.Split(input, ";")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		stmt := strings.TrimSpace(p)
		if stmt == "" {
			continue
		}
		out = append(out, stmt)
	}
	return out
}
