// README: In-memory carpool store (bookings, groups, invites) for local runs and tests.
package carpool

import (
	"context"
	"sort"
	"sync"
	"time"

	"carpool/internal/modules/booking"
)

// MemoryStore implements Bookings and Repository. InTx holds the lock for the whole
// transaction and restores a snapshot when fn fails.
type MemoryStore struct {
	mu         sync.Mutex
	bookings   map[int64]*booking.Booking
	groups     map[int64]*Group
	invites    map[int64]*Invite
	nextGroup  int64
	nextInvite int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		bookings: make(map[int64]*booking.Booking),
		groups:   make(map[int64]*Group),
		invites:  make(map[int64]*Invite),
	}
}

// PutBooking inserts or replaces a booking.
func (m *MemoryStore) PutBooking(b *booking.Booking) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bookings[b.ID] = copyBooking(b)
}

func (m *MemoryStore) Get(_ context.Context, id int64) (*booking.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[id]
	if !ok {
		return nil, booking.ErrNotFound
	}
	return copyBooking(b), nil
}

func (m *MemoryStore) ListMatchable(_ context.Context, f booking.Filter) ([]*booking.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*booking.Booking
	for _, b := range m.bookings {
		if f.Matches(b) {
			out = append(out, copyBooking(b))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartAt.Equal(out[j].StartAt) {
			return out[i].StartAt.Before(out[j].StartAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *MemoryStore) CreateGroup(_ context.Context, g *Group) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if g.Status == GroupActive {
		for _, other := range m.groups {
			if other.HostBookingID == g.HostBookingID && other.Status == GroupActive {
				return ErrConflict
			}
		}
	}
	m.nextGroup++
	g.ID = m.nextGroup
	m.groups[g.ID] = copyGroup(g)
	return nil
}

func (m *MemoryStore) GetGroup(_ context.Context, id int64) (*Group, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.groups[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyGroup(g), nil
}

func (m *MemoryStore) FindActiveGroupByHost(_ context.Context, hostBookingID int64) (*Group, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var found *Group
	for _, g := range m.groups {
		if g.HostBookingID == hostBookingID && g.Status == GroupActive && (found == nil || g.ID > found.ID) {
			found = g
		}
	}
	if found == nil {
		return nil, ErrNotFound
	}
	return copyGroup(found), nil
}

func (m *MemoryStore) CreateInvite(_ context.Context, inv *Invite) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if g, ok := m.groups[inv.GroupID]; !ok || g.Status != GroupActive {
		return ErrInvalidState
	}
	if m.openInvite(inv.GroupID, inv.JoinerBookingID) != nil {
		return ErrConflict
	}
	m.nextInvite++
	inv.ID = m.nextInvite
	cp := *inv
	m.invites[inv.ID] = &cp
	return nil
}

func (m *MemoryStore) GetInvite(_ context.Context, id int64) (*Invite, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, ok := m.invites[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *inv
	return &cp, nil
}

func (m *MemoryStore) ListInvites(_ context.Context, groupID int64) ([]Invite, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listInvites(groupID), nil
}

func (m *MemoryStore) listInvites(groupID int64) []Invite {
	out := []Invite{}
	for _, inv := range m.invites {
		if inv.GroupID == groupID {
			out = append(out, *inv)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *MemoryStore) FindOpenInvite(_ context.Context, groupID, joinerBookingID int64) (*Invite, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv := m.openInvite(groupID, joinerBookingID)
	if inv == nil {
		return nil, ErrNotFound
	}
	cp := *inv
	return &cp, nil
}

func (m *MemoryStore) openInvite(groupID, joinerBookingID int64) *Invite {
	for _, inv := range m.invites {
		if inv.GroupID == groupID && inv.JoinerBookingID == joinerBookingID &&
			(inv.ConsentStatus == ConsentPending || inv.ConsentStatus == ConsentApproved) {
			return inv
		}
	}
	return nil
}

func (m *MemoryStore) UpdateInviteConsent(_ context.Context, id int64, from, to ConsentStatus, respondedAt *time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, ok := m.invites[id]
	if !ok || inv.ConsentStatus != from {
		return false, nil
	}
	inv.ConsentStatus = to
	inv.RespondedAt = respondedAt
	return true, nil
}

func (m *MemoryStore) UpdateSharedCost(_ context.Context, groupID int64, cost SharedCost, updatedBy string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.groups[groupID]
	if !ok || g.Status == GroupUnmerged {
		return false, nil
	}
	mode := cost.Mode
	g.SharedCost = copyCost(&cost)
	g.CostMode = &mode
	g.UpdatedBy = updatedBy
	g.UpdatedAt = time.Now()
	return true, nil
}

func (m *MemoryStore) InTx(_ context.Context, fn func(Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	bookings := make(map[int64]*booking.Booking, len(m.bookings))
	for id, b := range m.bookings {
		bookings[id] = copyBooking(b)
	}
	groups := make(map[int64]*Group, len(m.groups))
	for id, g := range m.groups {
		groups[id] = copyGroup(g)
	}

	if err := fn(memTx{m: m}); err != nil {
		m.bookings = bookings
		m.groups = groups
		return err
	}
	return nil
}

// memTx runs with MemoryStore.mu already held.
type memTx struct {
	m *MemoryStore
}

func (t memTx) LockGroup(_ context.Context, id int64) (*Group, error) {
	g, ok := t.m.groups[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyGroup(g), nil
}

func (t memTx) LockBooking(_ context.Context, id int64) (*booking.Booking, error) {
	b, ok := t.m.bookings[id]
	if !ok {
		return nil, booking.ErrNotFound
	}
	return copyBooking(b), nil
}

func (t memTx) ListInvites(_ context.Context, groupID int64) ([]Invite, error) {
	return t.m.listInvites(groupID), nil
}

func (t memTx) SetBookingGroup(_ context.Context, bookingID int64, status booking.Status, groupID *int64) error {
	b, ok := t.m.bookings[bookingID]
	if !ok {
		return booking.ErrNotFound
	}
	b.Status = status
	b.GroupID = copyID(groupID)
	return nil
}

func (t memTx) UpdateGroupState(_ context.Context, id int64, u GroupUpdate) (bool, error) {
	g, ok := t.m.groups[id]
	if !ok || g.Status != u.From {
		return false, nil
	}
	g.Status = u.To
	g.MemberBookingIDs = append([]int64{}, u.Members...)
	g.CombinedRoute = copyRoute(u.Route)
	g.UpdatedBy = u.UpdatedBy
	g.UpdatedAt = time.Now()
	return true, nil
}

func copyBooking(b *booking.Booking) *booking.Booking {
	cp := *b
	cp.GroupID = copyID(b.GroupID)
	cp.Segments = append([]booking.Segment(nil), b.Segments...)
	return &cp
}

// copyGroup copies every pointee so stored groups never alias caller values.
func copyGroup(g *Group) *Group {
	cp := *g
	cp.MemberBookingIDs = append([]int64{}, g.MemberBookingIDs...)
	cp.CombinedRoute = copyRoute(g.CombinedRoute)
	cp.SharedCost = copyCost(g.SharedCost)
	cp.TripDistanceKm = copyFloat(g.TripDistanceKm)
	cp.TripDurationMin = copyFloat(g.TripDurationMin)
	if g.CostMode != nil {
		m := *g.CostMode
		cp.CostMode = &m
	}
	return &cp
}

func copyRoute(r *CombinedRoute) *CombinedRoute {
	if r == nil {
		return nil
	}
	cp := *r
	cp.Waypoints = make([]Waypoint, len(r.Waypoints))
	for i, w := range r.Waypoints {
		if w.Point != nil {
			p := *w.Point
			w.Point = &p
		}
		cp.Waypoints[i] = w
	}
	return &cp
}

func copyCost(c *SharedCost) *SharedCost {
	if c == nil {
		return nil
	}
	cp := *c
	cp.Shares = append([]CostShare(nil), c.Shares...)
	return &cp
}

func copyFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	f := *v
	return &f
}

func copyID(id *int64) *int64 {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}
