// README: Append-only audit log entry for carpool group lifecycle events.
package audit

import "time"

type Action string

const (
	ActionMatched          Action = "MATCHED"
	ActionInvite           Action = "INVITE"
	ActionApprove          Action = "APPROVE"
	ActionDecline          Action = "DECLINE"
	ActionMerge            Action = "MERGE"
	ActionUnmerge          Action = "UNMERGE"
	ActionCostRecalculated Action = "COST_RECALCULATED"
)

// Entry is immutable once written. OldValue, NewValue and Metadata are stored as JSON.
type Entry struct {
	ID              int64     `json:"id"`
	GroupID         *int64    `json:"group_id,omitempty"`
	HostBookingID   *int64    `json:"host_booking_id,omitempty"`
	JoinerBookingID *int64    `json:"joiner_booking_id,omitempty"`
	Action          Action    `json:"action_type"`
	ActorID         string    `json:"actor_id"`
	OldValue        any       `json:"old_value,omitempty"`
	NewValue        any       `json:"new_value,omitempty"`
	Metadata        any       `json:"metadata,omitempty"`
	CreatedAt       time.Time `json:"timestamp"`
}
