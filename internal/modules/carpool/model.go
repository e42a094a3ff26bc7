// README: Carpool group, invite, candidate and cost models.
package carpool

import (
	"time"

	"carpool/internal/modules/booking"
	"carpool/internal/modules/pricing"
	"carpool/internal/types"
)

type GroupStatus string

const (
	GroupActive   GroupStatus = "ACTIVE"
	GroupMerged   GroupStatus = "MERGED"
	GroupUnmerged GroupStatus = "UNMERGED"
)

type ConsentStatus string

const (
	ConsentPending  ConsentStatus = "PENDING"
	ConsentApproved ConsentStatus = "APPROVED"
	ConsentDeclined ConsentStatus = "DECLINED"
	ConsentExpired  ConsentStatus = "EXPIRED"
)

// Terminal reports whether the invite can no longer change.
func (c ConsentStatus) Terminal() bool {
	return c == ConsentApproved || c == ConsentDeclined || c == ConsentExpired
}

type CostMode string

const (
	CostEqual                CostMode = "EQUAL"
	CostProportionalDistance CostMode = "PROPORTIONAL_DISTANCE"
)

func (m CostMode) Valid() bool {
	return m == CostEqual || m == CostProportionalDistance
}

type WaypointType string

const (
	WaypointPickup WaypointType = "PICKUP"
	WaypointDrop   WaypointType = "DROP"
)

type Waypoint struct {
	BookingID int64        `json:"booking_id"`
	Type      WaypointType `json:"type"`
	Location  string       `json:"location"`
	Point     *types.Point `json:"point,omitempty"`
	Time      time.Time    `json:"estimated_time"`
}

type CombinedRoute struct {
	Waypoints          []Waypoint `json:"waypoints"`
	TotalDistanceKm    float64    `json:"total_distance_km"`
	TotalDurationMin   float64    `json:"total_duration_min"`
	OriginalDistanceKm float64    `json:"original_distance_km"`
	DetourPercentage   float64    `json:"detour_percentage"`
}

// CostShare is one participant's row of the split.
type CostShare struct {
	BookingID   int64   `json:"booking_id"`
	RequesterID string  `json:"requester_id"`
	DistanceKm  float64 `json:"distance_km"`
	Amount      float64 `json:"cost_share"`
	Percentage  float64 `json:"percentage"`
}

type SharedCost struct {
	Mode         CostMode          `json:"cost_mode"`
	Breakdown    pricing.Breakdown `json:"breakdown"`
	Shares       []CostShare       `json:"shares"`
	CalculatedAt time.Time         `json:"calculated_at"`
}

type Group struct {
	ID               int64          `json:"id"`
	HostBookingID    int64          `json:"host_booking_id"`
	Status           GroupStatus    `json:"status"`
	MemberBookingIDs []int64        `json:"member_booking_ids"`
	CombinedRoute    *CombinedRoute `json:"combined_route,omitempty"`
	SharedCost       *SharedCost    `json:"shared_cost,omitempty"`
	CostMode         *CostMode      `json:"cost_mode,omitempty"`
	TripDistanceKm   *float64       `json:"trip_distance_km,omitempty"`
	TripDurationMin  *float64       `json:"trip_duration_min,omitempty"`
	CreatedBy        string         `json:"created_by"`
	UpdatedBy        string         `json:"updated_by"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

// Participants is the host followed by the merged members.
func (g *Group) Participants() []int64 {
	out := make([]int64, 0, len(g.MemberBookingIDs)+1)
	out = append(out, g.HostBookingID)
	return append(out, g.MemberBookingIDs...)
}

type Invite struct {
	ID              int64         `json:"id"`
	GroupID         int64         `json:"carpool_group_id"`
	HostBookingID   int64         `json:"host_booking_id"`
	JoinerBookingID int64         `json:"joiner_booking_id"`
	ConsentStatus   ConsentStatus `json:"consent_status"`
	ExpiresAt       time.Time     `json:"expires_at"`
	RespondedAt     *time.Time    `json:"responded_at,omitempty"`
	CreatedBy       string        `json:"created_by"`
	CreatedAt       time.Time     `json:"created_at"`
}

// ExpiredAt reports whether a pending invite has run past its expiry at now.
func (i *Invite) ExpiredAt(now time.Time) bool {
	return i.ConsentStatus == ConsentPending && !now.Before(i.ExpiresAt)
}

type SimilaritySource string

const (
	SimilarityPath SimilaritySource = "path"
	SimilarityText SimilaritySource = "text"
)

// Candidate is a scored pairing produced fresh on each matching call.
type Candidate struct {
	BookingID        int64            `json:"booking_id"`
	RequesterID      string           `json:"requester_id"`
	StartAt          time.Time        `json:"start_at"`
	RouteSimilarity  float64          `json:"route_similarity"`
	SimilaritySource SimilaritySource `json:"similarity_source"`
	TimeDifference   float64          `json:"time_difference_minutes"`
	TotalPassengers  int              `json:"total_passengers"`
	CanFit           bool             `json:"can_fit"`
}

// Draft is a hypothetical host trip scored before a booking exists.
type Draft struct {
	StartAt            time.Time
	EndAt              time.Time
	PassengerCount     int
	Segment            booking.Segment
	ExcludeRequesterID string
}

// Validation is the outcome of the pre-merge checks.
type Validation struct {
	Valid  bool           `json:"valid"`
	Reason string         `json:"reason,omitempty"`
	Route  *CombinedRoute `json:"combined_route,omitempty"`

	host    *booking.Booking
	joiners []*booking.Booking
}

// GroupView is a group together with its invites.
type GroupView struct {
	Group   *Group   `json:"group"`
	Invites []Invite `json:"invites"`
}

type InviteCommand struct {
	HostBookingID    int64
	JoinerBookingID  int64
	ExpiresInMinutes *int
	ActorID          string
}

type RespondCommand struct {
	InviteID int64
	Decision ConsentStatus
	ActorID  string
}

type MergeCommand struct {
	GroupID  int64
	CostMode CostMode
	ActorID  string
}
