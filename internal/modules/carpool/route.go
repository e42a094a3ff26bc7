package carpool

import (
	"context"
	"math"
	"sort"

	"carpool/internal/maps"
	"carpool/internal/modules/booking"
)

const (
	// DefaultWaypointDistanceKm is the per-waypoint placeholder used without a routing backend.
	DefaultWaypointDistanceKm = 10.0
	// fallbackTripDistanceKm stands in for a member trip with no estimate: its two waypoints.
	fallbackTripDistanceKm = 2 * DefaultWaypointDistanceKm
)

// DistanceStrategy estimates the driven distance of a waypoint sequence. It never fails.
type DistanceStrategy interface {
	RouteDistanceKm(ctx context.Context, waypoints []Waypoint) float64
}

// FixedPerWaypoint charges a constant distance per waypoint.
type FixedPerWaypoint float64

func (f FixedPerWaypoint) RouteDistanceKm(_ context.Context, waypoints []Waypoint) float64 {
	return math.Max(0, float64(f)) * float64(len(waypoints))
}

// EstimatorDistance sums estimator legs between consecutive waypoints. Any missing
// coordinate or estimator error falls back to Fallback for the whole sequence.
type EstimatorDistance struct {
	Estimator maps.Estimator
	Fallback  DistanceStrategy
}

func (e EstimatorDistance) RouteDistanceKm(ctx context.Context, waypoints []Waypoint) float64 {
	fallback := e.Fallback
	if fallback == nil {
		fallback = FixedPerWaypoint(DefaultWaypointDistanceKm)
	}
	if e.Estimator == nil || len(waypoints) < 2 {
		return fallback.RouteDistanceKm(ctx, waypoints)
	}
	var total float64
	for i := 0; i+1 < len(waypoints); i++ {
		from, to := waypoints[i].Point, waypoints[i+1].Point
		if from == nil || to == nil {
			return fallback.RouteDistanceKm(ctx, waypoints)
		}
		if *from == *to {
			continue
		}
		est, err := e.Estimator.EstimateRoute(ctx, *from, *to)
		if err != nil {
			return fallback.RouteDistanceKm(ctx, waypoints)
		}
		total += est.DistanceKm
	}
	return total
}

// tripDistances resolves a member's own trip length: segment estimates, then the
// estimator when both ends have coordinates, then the fixed fallback.
type tripDistances struct {
	estimator maps.Estimator
}

func (t tripDistances) km(ctx context.Context, b *booking.Booking) float64 {
	if d, ok := b.EstimatedDistanceKm(); ok {
		return math.Max(0, d)
	}
	from, to := b.Origin().From, b.Destination().To
	if t.estimator != nil && from != nil && to != nil {
		if est, err := t.estimator.EstimateRoute(ctx, *from, *to); err == nil {
			return est.DistanceKm
		}
	}
	return fallbackTripDistanceKm
}

// buildCombinedRoute sequences pickups (host first) then drops by time and measures the detour.
func buildCombinedRoute(ctx context.Context, members []*booking.Booking, strategy DistanceStrategy, dists tripDistances) *CombinedRoute {
	pickups := make([]Waypoint, 0, len(members))
	drops := make([]Waypoint, 0, len(members))
	var original float64
	for _, b := range members {
		o, d := b.Origin(), b.Destination()
		pickups = append(pickups, Waypoint{BookingID: b.ID, Type: WaypointPickup, Location: o.FromText, Point: o.From, Time: b.StartAt})
		drops = append(drops, Waypoint{BookingID: b.ID, Type: WaypointDrop, Location: d.ToText, Point: d.To, Time: b.EndAt})
		original += dists.km(ctx, b)
	}
	sort.SliceStable(drops, func(i, j int) bool { return drops[i].Time.Before(drops[j].Time) })

	r := &CombinedRoute{Waypoints: append(pickups, drops...), OriginalDistanceKm: original}
	if n := len(r.Waypoints); n > 0 {
		r.TotalDurationMin = math.Max(0, r.Waypoints[n-1].Time.Sub(r.Waypoints[0].Time).Minutes())
	}
	r.TotalDistanceKm = math.Max(0, strategy.RouteDistanceKm(ctx, r.Waypoints))
	r.DetourPercentage = detourPercentage(r.TotalDistanceKm, original)
	return r
}

func detourPercentage(total, original float64) float64 {
	if original <= 0 {
		return 0
	}
	return math.Max(0, (total-original)/original*100)
}
