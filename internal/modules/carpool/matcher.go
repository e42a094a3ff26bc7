// README: Candidate matcher scores bookings that could share a trip with a host.
package carpool

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"go.uber.org/zap"

	"carpool/internal/maps"
	"carpool/internal/modules/booking"
	"carpool/internal/observability"
)

type Matcher struct {
	bookings  Bookings
	settings  SettingsProvider
	estimator maps.Estimator
	log       *zap.Logger
}

// NewMatcher builds a matcher; a nil estimator scores every pair with the text heuristic.
func NewMatcher(bookings Bookings, settings SettingsProvider, estimator maps.Estimator, log *zap.Logger) *Matcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Matcher{bookings: bookings, settings: settings, estimator: estimator, log: log}
}

// trip is the host side of a scoring pass.
type trip struct {
	bookingID      int64
	requesterID    string
	startAt        time.Time
	passengerCount int
	route          booking.Segment
}

func (m *Matcher) FindCandidates(ctx context.Context, hostBookingID int64) ([]Candidate, error) {
	host, err := loadBooking(ctx, m.bookings, hostBookingID)
	if err != nil {
		return nil, err
	}
	if host.Status == booking.StatusMerged {
		return nil, failf(ErrInvalidState, "booking %d is already merged", hostBookingID)
	}
	return m.match(ctx, trip{
		bookingID:      host.ID,
		startAt:        host.StartAt,
		passengerCount: host.PassengerCount,
		route:          host.Route(),
	})
}

func (m *Matcher) FindCandidatesForDraft(ctx context.Context, d Draft) ([]Candidate, error) {
	if d.StartAt.IsZero() {
		return nil, failf(ErrBadRequest, "start time is required")
	}
	if d.EndAt.Before(d.StartAt) {
		return nil, failf(ErrBadRequest, "end time must not be before start time")
	}
	if d.PassengerCount <= 0 {
		return nil, failf(ErrBadRequest, "passenger count must be positive")
	}
	return m.match(ctx, trip{
		requesterID:    d.ExcludeRequesterID,
		startAt:        d.StartAt,
		passengerCount: d.PassengerCount,
		route:          d.Segment,
	})
}

func (m *Matcher) match(ctx context.Context, host trip) ([]Candidate, error) {
	cfg := m.settings.Carpool(ctx)
	window := time.Duration(cfg.TimeWindowMinutes) * time.Minute

	pool, err := m.bookings.ListMatchable(ctx, booking.Filter{
		StartFrom:          host.startAt.Add(-window),
		StartTo:            host.startAt.Add(window),
		Statuses:           booking.MatchableStatuses,
		ExcludeBookingID:   host.bookingID,
		ExcludeRequesterID: host.requesterID,
	})
	if err != nil {
		return nil, fmt.Errorf("list candidate pool: %w", err)
	}

	out := make([]Candidate, 0, len(pool))
	for _, b := range pool {
		c := Candidate{
			BookingID:       b.ID,
			RequesterID:     b.RequesterID,
			StartAt:         b.StartAt,
			TimeDifference:  math.Abs(b.StartAt.Sub(host.startAt).Minutes()),
			TotalPassengers: host.passengerCount + b.PassengerCount,
		}
		c.CanFit = c.TotalPassengers <= cfg.MaxVehicleSeatCapacity
		if c.TimeDifference > float64(cfg.TimeWindowMinutes) || !c.CanFit {
			continue
		}
		c.RouteSimilarity, c.SimilaritySource = m.similarity(ctx, host.route, b.Route())
		if c.RouteSimilarity < cfg.RouteSimilarityThreshold {
			continue
		}
		out = append(out, c)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].RouteSimilarity != out[j].RouteSimilarity {
			return out[i].RouteSimilarity > out[j].RouteSimilarity
		}
		return out[i].TimeDifference < out[j].TimeDifference
	})
	observability.CandidatesReturned.Add(float64(len(out)))
	return out, nil
}

// similarity prefers the estimator's path comparison and degrades to the text heuristic.
func (m *Matcher) similarity(ctx context.Context, a, b booking.Segment) (float64, SimilaritySource) {
	if m.estimator != nil && a.HasPath() && b.HasPath() {
		pctx, cancel := context.WithTimeout(ctx, maps.DefaultTimeout)
		score, err := m.estimator.PathSimilarity(pctx, a.RoutePath, b.RoutePath)
		cancel()
		if err == nil {
			return math.Max(0, math.Min(100, score)), SimilarityPath
		}
		observability.SimilarityFallback.Inc()
		m.log.Debug("path similarity unavailable, using text heuristic",
			zap.Int64("booking_id", b.BookingID), zap.Error(err))
	}
	return TextSimilarity(a.FromText, a.ToText, b.FromText, b.ToText), SimilarityText
}
