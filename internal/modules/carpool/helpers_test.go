package carpool

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"carpool/internal/config"
	"carpool/internal/maps"
	"carpool/internal/modules/audit"
	"carpool/internal/modules/booking"
	"carpool/internal/types"
)

var base = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

type staticSettings config.CarpoolConfig

func (s staticSettings) Carpool(context.Context) config.CarpoolConfig { return config.CarpoolConfig(s) }

type staticRates config.CostRatesConfig

func (r staticRates) Rates(context.Context) config.CostRatesConfig { return config.CostRatesConfig(r) }

// fakeEstimator returns fixed answers and counts calls.
type fakeEstimator struct {
	mu         sync.Mutex
	similarity float64
	simErr     error
	legKm      float64
	routeErr   error
	calls      int
}

func (f *fakeEstimator) EstimateRoute(_ context.Context, _, _ types.Point) (maps.Estimate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.routeErr != nil {
		return maps.Estimate{}, f.routeErr
	}
	return maps.Estimate{DistanceKm: f.legKm, DurationMin: f.legKm * 2}, nil
}

func (f *fakeEstimator) PathSimilarity(_ context.Context, _, _ string) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.similarity, f.simErr
}

// failingRepo injects failures into an otherwise working MemoryStore.
type failingRepo struct {
	*MemoryStore
	failOnSet int
	costErr   error
}

func (r *failingRepo) InTx(ctx context.Context, fn func(Tx) error) error {
	return r.MemoryStore.InTx(ctx, func(tx Tx) error {
		return fn(&failingTx{Tx: tx, failOn: r.failOnSet})
	})
}

func (r *failingRepo) UpdateSharedCost(ctx context.Context, groupID int64, cost SharedCost, updatedBy string) (bool, error) {
	if r.costErr != nil {
		return false, r.costErr
	}
	return r.MemoryStore.UpdateSharedCost(ctx, groupID, cost, updatedBy)
}

type failingTx struct {
	Tx
	failOn int
	calls  int
}

var errInjected = errors.New("injected write failure")

func (t *failingTx) SetBookingGroup(ctx context.Context, id int64, status booking.Status, groupID *int64) error {
	t.calls++
	if t.calls == t.failOn {
		return errInjected
	}
	return t.Tx.SetBookingGroup(ctx, id, status, groupID)
}

type fixture struct {
	store *MemoryStore
	sink  *audit.MemorySink
	svc   *Service
	now   time.Time
}

func newFixture(t *testing.T, opts ...func(*Deps)) *fixture {
	t.Helper()
	f := &fixture{store: NewMemoryStore(), sink: audit.NewMemorySink(), now: base}
	d := Deps{
		Bookings: f.store,
		Repo:     f.store,
		Settings: staticSettings(config.DefaultCarpool()),
		Rates:    staticRates(config.DefaultCostRates()),
		Audit:    audit.NewService(f.sink, zap.NewNop()),
		Log:      zap.NewNop(),
	}
	for _, o := range opts {
		o(&d)
	}
	f.svc = NewService(d)
	f.svc.setClock(func() time.Time { return f.now })
	return f
}

func (f *fixture) advance(d time.Duration) { f.now = f.now.Add(d) }

func (f *fixture) booking(t *testing.T, id int64) *booking.Booking {
	t.Helper()
	b, err := f.store.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("get booking %d: %v", id, err)
	}
	return b
}

func (f *fixture) group(t *testing.T, id int64) *Group {
	t.Helper()
	g, err := f.store.GetGroup(context.Background(), id)
	if err != nil {
		t.Fatalf("get group %d: %v", id, err)
	}
	return g
}

func (f *fixture) actions() []audit.Action {
	var out []audit.Action
	for _, e := range f.sink.Entries() {
		out = append(out, e.Action)
	}
	return out
}

// invite issues and optionally answers an invite from host to joiner.
func (f *fixture) invite(t *testing.T, host, joiner int64, decision ConsentStatus) *Invite {
	t.Helper()
	ctx := context.Background()
	inv, err := f.svc.Invite(ctx, InviteCommand{HostBookingID: host, JoinerBookingID: joiner, ActorID: "u_host"})
	if err != nil {
		t.Fatalf("invite %d->%d: %v", host, joiner, err)
	}
	if decision == ConsentPending {
		return inv
	}
	inv, err = f.svc.RespondToInvite(ctx, RespondCommand{InviteID: inv.ID, Decision: decision, ActorID: "u_joiner"})
	if err != nil {
		t.Fatalf("respond %d: %v", inv.ID, err)
	}
	return inv
}

func floatPtr(v float64) *float64 { return &v }

// newTrip builds a single-segment booking starting at base+startMin lasting durMin.
func newTrip(id int64, requester string, startMin, durMin, passengers int, from, to string, km float64) *booking.Booking {
	start := base.Add(time.Duration(startMin) * time.Minute)
	seg := booking.Segment{BookingID: id, Seq: 1, FromText: from, ToText: to}
	if km > 0 {
		seg.DistanceKm = floatPtr(km)
	}
	return &booking.Booking{
		ID:             id,
		RequesterID:    requester,
		StartAt:        start,
		EndAt:          start.Add(time.Duration(durMin) * time.Minute),
		PassengerCount: passengers,
		Status:         booking.StatusSubmitted,
		Segments:       []booking.Segment{seg},
	}
}

func withStatus(b *booking.Booking, s booking.Status) *booking.Booking {
	b.Status = s
	return b
}

func assertKind(t *testing.T, err, kind error) {
	t.Helper()
	if !errors.Is(err, kind) {
		t.Fatalf("error = %v, want kind %v", err, kind)
	}
}
