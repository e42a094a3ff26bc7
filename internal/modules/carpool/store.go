// README: Carpool store backed by PostgreSQL; merge/unmerge run in one transaction.
package carpool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"carpool/internal/modules/booking"
)

const uniqueViolation = "23505"

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

const groupColumns = `
        id, host_booking_id, status, member_booking_ids, combined_route, shared_cost, cost_mode,
        trip_distance_km, trip_duration_min, created_by, updated_by, created_at, updated_at`

func (s *Store) CreateGroup(ctx context.Context, g *Group) error {
	route, err := encodeRoute(g.CombinedRoute)
	if err != nil {
		return err
	}
	members := g.MemberBookingIDs
	if members == nil {
		members = []int64{}
	}
	err = s.db.QueryRow(ctx, `
        INSERT INTO carpool_groups (
            host_booking_id, status, member_booking_ids, combined_route,
            created_by, updated_by, created_at, updated_at
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
        RETURNING id`,
		g.HostBookingID, string(g.Status), members, route,
		g.CreatedBy, g.UpdatedBy, g.CreatedAt, g.UpdatedAt,
	).Scan(&g.ID)
	if isUniqueViolation(err) {
		return ErrConflict
	}
	return err
}

func (s *Store) GetGroup(ctx context.Context, id int64) (*Group, error) {
	return scanGroup(s.db.QueryRow(ctx, `SELECT`+groupColumns+` FROM carpool_groups WHERE id = $1`, id))
}

func (s *Store) FindActiveGroupByHost(ctx context.Context, hostBookingID int64) (*Group, error) {
	return scanGroup(s.db.QueryRow(ctx, `SELECT`+groupColumns+`
        FROM carpool_groups
        WHERE host_booking_id = $1 AND status = $2
        ORDER BY id DESC
        LIMIT 1`, hostBookingID, string(GroupActive),
	))
}

func (s *Store) CreateInvite(ctx context.Context, inv *Invite) error {
	// FOR SHARE conflicts with the merge's FOR UPDATE, so an invite either lands before
	// the merge locks the group or sees it MERGED and inserts nothing.
	err := s.db.QueryRow(ctx, `
        INSERT INTO carpool_invites (
            carpool_group_id, host_booking_id, joiner_booking_id, consent_status,
            expires_at, created_by, created_at
        )
        SELECT $1, $2, $3, $4, $5, $6, $7
        WHERE EXISTS (
            SELECT 1 FROM carpool_groups
            WHERE id = $1 AND status = $8
            FOR SHARE
        )
        RETURNING id`,
		inv.GroupID, inv.HostBookingID, inv.JoinerBookingID, string(inv.ConsentStatus),
		inv.ExpiresAt, inv.CreatedBy, inv.CreatedAt, string(GroupActive),
	).Scan(&inv.ID)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrInvalidState
	}
	if isUniqueViolation(err) {
		return ErrConflict
	}
	return err
}

const inviteColumns = `
        id, carpool_group_id, host_booking_id, joiner_booking_id, consent_status,
        expires_at, responded_at, created_by, created_at`

func (s *Store) GetInvite(ctx context.Context, id int64) (*Invite, error) {
	return scanInvite(s.db.QueryRow(ctx, `SELECT`+inviteColumns+` FROM carpool_invites WHERE id = $1`, id))
}

func (s *Store) FindOpenInvite(ctx context.Context, groupID, joinerBookingID int64) (*Invite, error) {
	return scanInvite(s.db.QueryRow(ctx, `SELECT`+inviteColumns+`
        FROM carpool_invites
        WHERE carpool_group_id = $1
          AND joiner_booking_id = $2
          AND consent_status IN ('PENDING', 'APPROVED')
        LIMIT 1`, groupID, joinerBookingID,
	))
}

func (s *Store) ListInvites(ctx context.Context, groupID int64) ([]Invite, error) {
	return listInvites(ctx, s.db, groupID)
}

func listInvites(ctx context.Context, db booking.DBTX, groupID int64) ([]Invite, error) {
	rows, err := db.Query(ctx, `SELECT`+inviteColumns+`
        FROM carpool_invites
        WHERE carpool_group_id = $1
        ORDER BY id ASC`, groupID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Invite{}
	for rows.Next() {
		inv, err := scanInvite(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *inv)
	}
	return out, rows.Err()
}

func (s *Store) UpdateInviteConsent(ctx context.Context, id int64, from, to ConsentStatus, respondedAt *time.Time) (bool, error) {
	tag, err := s.db.Exec(ctx, `
        UPDATE carpool_invites
        SET consent_status = $1,
            responded_at = $2
        WHERE id = $3 AND consent_status = $4`,
		string(to), respondedAt, id, string(from),
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) UpdateSharedCost(ctx context.Context, groupID int64, cost SharedCost, updatedBy string) (bool, error) {
	raw, err := json.Marshal(cost)
	if err != nil {
		return false, fmt.Errorf("encode shared cost: %w", err)
	}
	tag, err := s.db.Exec(ctx, `
        UPDATE carpool_groups
        SET shared_cost = $1,
            cost_mode = $2,
            updated_by = $3,
            updated_at = NOW()
        WHERE id = $4 AND status <> $5`,
		raw, string(cost.Mode), updatedBy, groupID, string(GroupUnmerged),
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) InTx(ctx context.Context, fn func(Tx) error) error {
	return pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		return fn(&pgTx{tx: tx, bookings: booking.NewStore(tx)})
	})
}

type pgTx struct {
	tx       pgx.Tx
	bookings *booking.Store
}

func (t *pgTx) LockGroup(ctx context.Context, id int64) (*Group, error) {
	return scanGroup(t.tx.QueryRow(ctx, `SELECT`+groupColumns+` FROM carpool_groups WHERE id = $1 FOR UPDATE`, id))
}

func (t *pgTx) LockBooking(ctx context.Context, id int64) (*booking.Booking, error) {
	return t.bookings.GetForUpdate(ctx, id)
}

func (t *pgTx) ListInvites(ctx context.Context, groupID int64) ([]Invite, error) {
	return listInvites(ctx, t.tx, groupID)
}

func (t *pgTx) SetBookingGroup(ctx context.Context, bookingID int64, status booking.Status, groupID *int64) error {
	return t.bookings.SetCarpoolState(ctx, bookingID, status, groupID)
}

func (t *pgTx) UpdateGroupState(ctx context.Context, id int64, u GroupUpdate) (bool, error) {
	route, err := encodeRoute(u.Route)
	if err != nil {
		return false, err
	}
	members := u.Members
	if members == nil {
		members = []int64{}
	}
	tag, err := t.tx.Exec(ctx, `
        UPDATE carpool_groups
        SET status = $1,
            member_booking_ids = $2,
            combined_route = $3,
            updated_by = $4,
            updated_at = NOW()
        WHERE id = $5 AND status = $6`,
		string(u.To), members, route, u.UpdatedBy, id, string(u.From),
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func scanGroup(row pgx.Row) (*Group, error) {
	var g Group
	var status string
	var route, cost []byte
	var mode *string
	err := row.Scan(
		&g.ID, &g.HostBookingID, &status, &g.MemberBookingIDs, &route, &cost, &mode,
		&g.TripDistanceKm, &g.TripDurationMin, &g.CreatedBy, &g.UpdatedBy, &g.CreatedAt, &g.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	g.Status = GroupStatus(status)
	if g.MemberBookingIDs == nil {
		g.MemberBookingIDs = []int64{}
	}
	if mode != nil {
		m := CostMode(*mode)
		g.CostMode = &m
	}
	if len(route) > 0 {
		g.CombinedRoute = &CombinedRoute{}
		if err := json.Unmarshal(route, g.CombinedRoute); err != nil {
			return nil, fmt.Errorf("decode combined route: %w", err)
		}
	}
	if len(cost) > 0 {
		g.SharedCost = &SharedCost{}
		if err := json.Unmarshal(cost, g.SharedCost); err != nil {
			return nil, fmt.Errorf("decode shared cost: %w", err)
		}
	}
	return &g, nil
}

func scanInvite(row pgx.Row) (*Invite, error) {
	var inv Invite
	var status string
	err := row.Scan(
		&inv.ID, &inv.GroupID, &inv.HostBookingID, &inv.JoinerBookingID, &status,
		&inv.ExpiresAt, &inv.RespondedAt, &inv.CreatedBy, &inv.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	inv.ConsentStatus = ConsentStatus(status)
	return &inv, nil
}

// encodeRoute encodes the route for a JSONB column; nil is stored as NULL.
func encodeRoute(r *CombinedRoute) ([]byte, error) {
	if r == nil {
		return nil, nil
	}
	b, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("encode combined route: %w", err)
	}
	return b, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
