// README: Cost allocator prices a group's trip and splits it among participants.
package carpool

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"carpool/internal/maps"
	"carpool/internal/modules/audit"
	"carpool/internal/modules/booking"
	"carpool/internal/modules/pricing"
	"carpool/internal/observability"
)

type CostAllocator struct {
	bookings Bookings
	repo     Repository
	rates    CostRates
	audit    AuditLogger
	dists    tripDistances
	log      *zap.Logger
	now      func() time.Time
}

func NewCostAllocator(bookings Bookings, repo Repository, rates CostRates, estimator maps.Estimator, auditLog AuditLogger, log *zap.Logger) *CostAllocator {
	if log == nil {
		log = zap.NewNop()
	}
	return &CostAllocator{
		bookings: bookings,
		repo:     repo,
		rates:    rates,
		audit:    auditLog,
		dists:    tripDistances{estimator: estimator},
		log:      log,
		now:      time.Now,
	}
}

func (a *CostAllocator) AllocateCost(ctx context.Context, groupID int64, mode CostMode, actorID string) (*SharedCost, error) {
	if !mode.Valid() {
		return nil, failf(ErrBadRequest, "unknown cost mode %q", mode)
	}
	g, err := loadGroup(ctx, a.repo, groupID)
	if err != nil {
		return nil, err
	}
	if g.Status == GroupUnmerged {
		return nil, failf(ErrInvalidState, "carpool group %d is unmerged", groupID)
	}

	ids, err := a.participants(ctx, g)
	if err != nil {
		return nil, err
	}
	members := make([]*booking.Booking, 0, len(ids))
	distances := make([]float64, 0, len(ids))
	for _, id := range ids {
		b, err := loadBooking(ctx, a.bookings, id)
		if err != nil {
			return nil, err
		}
		members = append(members, b)
		distances = append(distances, a.dists.km(ctx, b))
	}

	km, minutes := tripTotals(g, members, distances)
	cost := SharedCost{
		Mode:         mode,
		Breakdown:    pricing.TripCost(a.rates.Rates(ctx), km, minutes),
		CalculatedAt: a.now(),
	}
	cost.Shares = split(cost.Breakdown.Total, members, distances, mode)

	ok, err := a.repo.UpdateSharedCost(ctx, groupID, cost, actorID)
	if err != nil {
		return nil, fmt.Errorf("save shared cost: %w", err)
	}
	if !ok {
		return nil, failf(ErrConflict, "carpool group %d was modified concurrently", groupID)
	}
	observability.CostAllocations.WithLabelValues(string(mode)).Inc()

	entry := audit.Entry{
		GroupID:       audit.Int64(groupID),
		HostBookingID: audit.Int64(g.HostBookingID),
		Action:        audit.ActionCostRecalculated,
		ActorID:       actorID,
		NewValue:      cost,
	}
	if g.SharedCost != nil {
		entry.OldValue = g.SharedCost
	}
	a.audit.LogAction(ctx, entry)
	return &cost, nil
}

// participants is host + members; an active group not yet merged uses its approved joiners.
func (a *CostAllocator) participants(ctx context.Context, g *Group) ([]int64, error) {
	if len(g.MemberBookingIDs) > 0 || g.Status != GroupActive {
		return g.Participants(), nil
	}
	invites, err := a.repo.ListInvites(ctx, g.ID)
	if err != nil {
		return nil, fmt.Errorf("list invites: %w", err)
	}
	ids := []int64{g.HostBookingID}
	for _, inv := range invites {
		if inv.ConsentStatus == ConsentApproved {
			ids = append(ids, inv.JoinerBookingID)
		}
	}
	return ids, nil
}

// tripTotals prefers recorded trip actuals, then the combined route, then member sums.
func tripTotals(g *Group, members []*booking.Booking, distances []float64) (km, minutes float64) {
	if g.TripDistanceKm != nil {
		km = *g.TripDistanceKm
		switch {
		case g.TripDurationMin != nil:
			minutes = *g.TripDurationMin
		case g.CombinedRoute != nil:
			minutes = g.CombinedRoute.TotalDurationMin
		}
		return km, minutes
	}
	if g.CombinedRoute != nil {
		return g.CombinedRoute.TotalDistanceKm, g.CombinedRoute.TotalDurationMin
	}
	for i, b := range members {
		km += distances[i]
		for _, s := range b.Segments {
			if s.DurationMin != nil {
				minutes += *s.DurationMin
			}
		}
	}
	return km, minutes
}

// split divides total across members. The last share absorbs rounding so the rows sum to
// total exactly; zero total distance degrades PROPORTIONAL_DISTANCE to EQUAL.
func split(total float64, members []*booking.Booking, distances []float64, mode CostMode) []CostShare {
	n := len(members)
	if n == 0 {
		return []CostShare{}
	}
	var sumKm float64
	for _, d := range distances {
		sumKm += d
	}
	weight := func(i int) float64 { return 1 / float64(n) }
	if mode == CostProportionalDistance && sumKm > 0 {
		weight = func(i int) float64 { return distances[i] / sumKm }
	}

	shares := make([]CostShare, n)
	var amountSum, pctSum float64
	for i, b := range members {
		shares[i] = CostShare{BookingID: b.ID, RequesterID: b.RequesterID, DistanceKm: distances[i]}
		if i == n-1 {
			shares[i].Amount = total - amountSum
			shares[i].Percentage = 100 - pctSum
			break
		}
		shares[i].Amount = total * weight(i)
		shares[i].Percentage = 100 * weight(i)
		amountSum += shares[i].Amount
		pctSum += shares[i].Percentage
	}
	return shares
}
