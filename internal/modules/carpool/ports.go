package carpool

import (
	"context"
	"time"

	"carpool/internal/config"
	"carpool/internal/modules/audit"
	"carpool/internal/modules/booking"
)

// Bookings is the read side of the booking store.
type Bookings interface {
	Get(ctx context.Context, id int64) (*booking.Booking, error)
	ListMatchable(ctx context.Context, f booking.Filter) ([]*booking.Booking, error)
}

// Repository persists groups and invites. Lookups return ErrNotFound when nothing matches
// and creates return ErrConflict on a uniqueness violation. CreateInvite returns
// ErrInvalidState when the group is missing or no longer ACTIVE.
type Repository interface {
	CreateGroup(ctx context.Context, g *Group) error
	GetGroup(ctx context.Context, id int64) (*Group, error)
	FindActiveGroupByHost(ctx context.Context, hostBookingID int64) (*Group, error)

	CreateInvite(ctx context.Context, inv *Invite) error
	GetInvite(ctx context.Context, id int64) (*Invite, error)
	ListInvites(ctx context.Context, groupID int64) ([]Invite, error)
	// FindOpenInvite returns a PENDING or APPROVED invite of joiner in the group.
	FindOpenInvite(ctx context.Context, groupID, joinerBookingID int64) (*Invite, error)
	UpdateInviteConsent(ctx context.Context, id int64, from, to ConsentStatus, respondedAt *time.Time) (bool, error)

	UpdateSharedCost(ctx context.Context, groupID int64, cost SharedCost, updatedBy string) (bool, error)

	// InTx runs fn in one transaction; any error rolls every write back.
	InTx(ctx context.Context, fn func(Tx) error) error
}

// Tx is the write surface available inside a merge or unmerge.
type Tx interface {
	LockGroup(ctx context.Context, id int64) (*Group, error)
	LockBooking(ctx context.Context, id int64) (*booking.Booking, error)
	ListInvites(ctx context.Context, groupID int64) ([]Invite, error)
	SetBookingGroup(ctx context.Context, bookingID int64, status booking.Status, groupID *int64) error
	UpdateGroupState(ctx context.Context, id int64, u GroupUpdate) (bool, error)
}

// GroupUpdate is a status-conditioned group write.
type GroupUpdate struct {
	From      GroupStatus
	To        GroupStatus
	Members   []int64
	Route     *CombinedRoute
	UpdatedBy string
}

type SettingsProvider interface {
	Carpool(ctx context.Context) config.CarpoolConfig
}

type CostRates interface {
	Rates(ctx context.Context) config.CostRatesConfig
}

// AuditLogger never reports failures; reads degrade to an empty list.
type AuditLogger interface {
	LogAction(ctx context.Context, e audit.Entry)
	GetAuditLogs(ctx context.Context, groupID int64) []audit.Entry
}
