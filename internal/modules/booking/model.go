// README: Booking aggregate (read model) and status definitions consumed by the carpool core.
package booking

import (
	"errors"
	"time"

	"carpool/internal/types"
)

type Status string

const (
	StatusDraft      Status = "DRAFT"
	StatusSubmitted  Status = "SUBMITTED"
	StatusApprovedL1 Status = "APPROVED_L1"
	StatusApprovedL2 Status = "APPROVED_L2"
	StatusAssigned   Status = "ASSIGNED"
	StatusMerged     Status = "MERGED"
	StatusRejected   Status = "REJECTED"
	StatusCancelled  Status = "CANCELLED"
	StatusCompleted  Status = "COMPLETED"
)

// MatchableStatuses are the statuses a booking may be in to be offered as a carpool candidate.
var MatchableStatuses = []Status{StatusDraft, StatusSubmitted, StatusApprovedL1}

var ErrNotFound = errors.New("booking not found")

type Segment struct {
	ID          int64
	BookingID   int64
	Seq         int
	FromText    string
	ToText      string
	From        *types.Point
	To          *types.Point
	RoutePath   string
	Validated   bool
	DistanceKm  *float64
	DurationMin *float64
}

// HasPath reports whether the segment carries a validated encoded route.
func (s Segment) HasPath() bool {
	return s.Validated && s.RoutePath != ""
}

type Booking struct {
	ID             int64
	RequesterID    string
	StartAt        time.Time
	EndAt          time.Time
	PassengerCount int
	Status         Status
	GroupID        *int64
	Segments       []Segment
}

// Origin returns the first segment's origin, or an empty segment when none exist.
func (b *Booking) Origin() Segment {
	if len(b.Segments) == 0 {
		return Segment{}
	}
	return b.Segments[0]
}

// Destination returns the last segment.
func (b *Booking) Destination() Segment {
	if len(b.Segments) == 0 {
		return Segment{}
	}
	return b.Segments[len(b.Segments)-1]
}

// Route collapses the segments into a single origin→destination segment used for scoring.
// The path is only kept when the booking has exactly one validated segment.
func (b *Booking) Route() Segment {
	first, last := b.Origin(), b.Destination()
	r := Segment{
		BookingID: b.ID,
		FromText:  first.FromText,
		ToText:    last.ToText,
		From:      first.From,
		To:        last.To,
	}
	if len(b.Segments) == 1 {
		r.RoutePath = first.RoutePath
		r.Validated = first.Validated
		r.DistanceKm = first.DistanceKm
		r.DurationMin = first.DurationMin
	}
	return r
}

// EstimatedDistanceKm sums the per-segment estimates; ok is false when any segment lacks one.
func (b *Booking) EstimatedDistanceKm() (float64, bool) {
	if len(b.Segments) == 0 {
		return 0, false
	}
	var total float64
	for _, s := range b.Segments {
		if s.DistanceKm == nil {
			return 0, false
		}
		total += *s.DistanceKm
	}
	return total, true
}

// Filter selects the candidate pool for matching.
type Filter struct {
	StartFrom          time.Time
	StartTo            time.Time
	Statuses           []Status
	ExcludeBookingID   int64
	ExcludeRequesterID string
}

// Matches applies the filter in memory; the Postgres store expresses the same predicate in SQL.
func (f Filter) Matches(b *Booking) bool {
	if b.ID == f.ExcludeBookingID && f.ExcludeBookingID != 0 {
		return false
	}
	if f.ExcludeRequesterID != "" && b.RequesterID == f.ExcludeRequesterID {
		return false
	}
	if b.GroupID != nil {
		return false
	}
	if b.StartAt.Before(f.StartFrom) || b.StartAt.After(f.StartTo) {
		return false
	}
	for _, s := range f.Statuses {
		if b.Status == s {
			return true
		}
	}
	return false
}
