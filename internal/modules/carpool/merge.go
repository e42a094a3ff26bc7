// README: Merge engine validates consent and detour, then merges or reverts a group atomically.
package carpool

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"carpool/internal/maps"
	"carpool/internal/modules/audit"
	"carpool/internal/modules/booking"
	"carpool/internal/observability"
)

type MergeEngine struct {
	bookings Bookings
	repo     Repository
	settings SettingsProvider
	audit    AuditLogger
	strategy DistanceStrategy
	dists    tripDistances
	log      *zap.Logger
	now      func() time.Time
}

// NewMergeEngine builds an engine; a nil strategy uses FixedPerWaypoint.
func NewMergeEngine(bookings Bookings, repo Repository, settings SettingsProvider, estimator maps.Estimator, strategy DistanceStrategy, auditLog AuditLogger, log *zap.Logger) *MergeEngine {
	if strategy == nil {
		strategy = FixedPerWaypoint(DefaultWaypointDistanceKm)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &MergeEngine{
		bookings: bookings,
		repo:     repo,
		settings: settings,
		audit:    auditLog,
		strategy: strategy,
		dists:    tripDistances{estimator: estimator},
		log:      log,
		now:      time.Now,
	}
}

func (e *MergeEngine) ValidatePreMerge(ctx context.Context, groupID int64) (*Validation, error) {
	g, err := loadGroup(ctx, e.repo, groupID)
	if err != nil {
		return nil, err
	}
	if g.Status != GroupActive {
		return nil, failf(ErrInvalidState, "carpool group %d is %s", groupID, g.Status)
	}
	invites, err := e.repo.ListInvites(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("list invites: %w", err)
	}

	approved, reason := consentOutcome(invites, e.now())
	if reason != "" {
		return &Validation{Reason: reason}, nil
	}

	host, err := loadBooking(ctx, e.bookings, g.HostBookingID)
	if err != nil {
		return nil, err
	}
	if host.Status == booking.StatusMerged {
		return &Validation{Reason: fmt.Sprintf("host booking %d is already merged", host.ID)}, nil
	}
	members := []*booking.Booking{host}
	for _, id := range approved {
		b, err := loadBooking(ctx, e.bookings, id)
		if err != nil {
			return nil, err
		}
		if b.Status == booking.StatusMerged {
			return &Validation{Reason: fmt.Sprintf("booking %d is already merged", b.ID)}, nil
		}
		members = append(members, b)
	}

	route := buildCombinedRoute(ctx, members, e.strategy, e.dists)
	limit := e.settings.Carpool(ctx).MaxDetourPercentage
	if route.DetourPercentage > limit {
		return &Validation{
			Reason: fmt.Sprintf("detour of %.1f%% exceeds the %.1f%% limit", route.DetourPercentage, limit),
			Route:  route,
		}, nil
	}
	return &Validation{Valid: true, Route: route, host: host, joiners: members[1:]}, nil
}

// consentOutcome returns the approved joiners, or the reason the invite set blocks a merge.
func consentOutcome(invites []Invite, now time.Time) ([]int64, string) {
	var pending, declined, expired int
	var approved []int64
	for i := range invites {
		inv := &invites[i]
		switch {
		case inv.ExpiredAt(now), inv.ConsentStatus == ConsentExpired:
			expired++
		case inv.ConsentStatus == ConsentPending:
			pending++
		case inv.ConsentStatus == ConsentDeclined:
			declined++
		case inv.ConsentStatus == ConsentApproved:
			approved = append(approved, inv.JoinerBookingID)
		}
	}
	switch {
	case pending > 0:
		return nil, "some invites are still pending"
	case declined > 0:
		return nil, "some invites have been declined"
	case expired > 0:
		return nil, "some invites have expired"
	case len(approved) == 0:
		return nil, "no approved invites"
	}
	return approved, ""
}

func sameMembers(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	seen := make(map[int64]int, len(a))
	for _, id := range a {
		seen[id]++
	}
	for _, id := range b {
		if seen[id] == 0 {
			return false
		}
		seen[id]--
	}
	return true
}

// Merge moves the host and every approved joiner into the group in one transaction.
func (e *MergeEngine) Merge(ctx context.Context, groupID int64, actorID string) (*Group, error) {
	v, err := e.ValidatePreMerge(ctx, groupID)
	if err != nil {
		observability.MergeAttempts.WithLabelValues("error").Inc()
		return nil, err
	}
	if !v.Valid {
		observability.MergeAttempts.WithLabelValues("rejected").Inc()
		return nil, &reasonError{kind: ErrValidationFailed, reason: v.Reason}
	}

	joinerIDs := make([]int64, len(v.joiners))
	for i, b := range v.joiners {
		joinerIDs[i] = b.ID
	}
	participants := append([]int64{v.host.ID}, joinerIDs...)

	err = e.repo.InTx(ctx, func(tx Tx) error {
		g, err := lockGroup(ctx, tx, groupID)
		if err != nil {
			return err
		}
		if g.Status != GroupActive {
			return failf(ErrConflict, "carpool group %d was modified concurrently", groupID)
		}
		// Invites are re-read under the group lock; CreateInvite needs the group ACTIVE.
		invites, err := tx.ListInvites(ctx, groupID)
		if err != nil {
			return fmt.Errorf("list invites: %w", err)
		}
		approved, reason := consentOutcome(invites, e.now())
		if reason != "" {
			return failf(ErrValidationFailed, "%s", reason)
		}
		if !sameMembers(approved, joinerIDs) {
			return failf(ErrConflict, "invites of carpool group %d changed during merge", groupID)
		}
		for _, id := range participants {
			b, err := tx.LockBooking(ctx, id)
			if err != nil {
				return fmt.Errorf("lock booking %d: %w", id, err)
			}
			if b.Status == booking.StatusMerged {
				return failf(ErrConflict, "booking %d was merged concurrently", id)
			}
			if err := tx.SetBookingGroup(ctx, id, booking.StatusMerged, &groupID); err != nil {
				return fmt.Errorf("merge booking %d: %w", id, err)
			}
		}
		ok, err := tx.UpdateGroupState(ctx, groupID, GroupUpdate{
			From:      GroupActive,
			To:        GroupMerged,
			Members:   joinerIDs,
			Route:     v.Route,
			UpdatedBy: actorID,
		})
		if err != nil {
			return fmt.Errorf("update group: %w", err)
		}
		if !ok {
			return failf(ErrConflict, "carpool group %d was modified concurrently", groupID)
		}
		return nil
	})
	if err != nil {
		result := "error"
		switch {
		case errors.Is(err, ErrConflict):
			result = "conflict"
		case errors.Is(err, ErrValidationFailed):
			result = "rejected"
		}
		observability.MergeAttempts.WithLabelValues(result).Inc()
		return nil, err
	}
	observability.MergeAttempts.WithLabelValues("merged").Inc()

	e.audit.LogAction(ctx, audit.Entry{
		GroupID:       audit.Int64(groupID),
		HostBookingID: audit.Int64(v.host.ID),
		Action:        audit.ActionMerge,
		ActorID:       actorID,
		OldValue:      map[string]any{"status": GroupActive},
		NewValue:      map[string]any{"status": GroupMerged, "combined_route": v.Route},
		Metadata:      map[string]any{"joiner_booking_ids": joinerIDs},
	})
	return loadGroup(ctx, e.repo, groupID)
}

// Unmerge reverts merged participants to SUBMITTED and clears every linkage to the group.
// Members and route stay on the group record.
func (e *MergeEngine) Unmerge(ctx context.Context, groupID int64, actorID string) (*Group, error) {
	g, err := loadGroup(ctx, e.repo, groupID)
	if err != nil {
		return nil, err
	}
	if g.Status == GroupUnmerged {
		return nil, failf(ErrInvalidState, "carpool group %d is already unmerged", groupID)
	}

	var from GroupStatus
	var reverted []int64
	err = e.repo.InTx(ctx, func(tx Tx) error {
		locked, err := lockGroup(ctx, tx, groupID)
		if err != nil {
			return err
		}
		if locked.Status == GroupUnmerged {
			return failf(ErrConflict, "carpool group %d was modified concurrently", groupID)
		}
		from = locked.Status
		for _, id := range locked.Participants() {
			b, err := tx.LockBooking(ctx, id)
			if errors.Is(err, booking.ErrNotFound) {
				continue
			}
			if err != nil {
				return fmt.Errorf("lock booking %d: %w", id, err)
			}
			if b.GroupID == nil || *b.GroupID != groupID {
				continue
			}
			status := b.Status
			if status == booking.StatusMerged {
				status = booking.StatusSubmitted
				reverted = append(reverted, id)
			}
			if err := tx.SetBookingGroup(ctx, id, status, nil); err != nil {
				return fmt.Errorf("unmerge booking %d: %w", id, err)
			}
		}
		ok, err := tx.UpdateGroupState(ctx, groupID, GroupUpdate{
			From:      from,
			To:        GroupUnmerged,
			Members:   locked.MemberBookingIDs,
			Route:     locked.CombinedRoute,
			UpdatedBy: actorID,
		})
		if err != nil {
			return fmt.Errorf("update group: %w", err)
		}
		if !ok {
			return failf(ErrConflict, "carpool group %d was modified concurrently", groupID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	observability.Unmerges.Inc()

	e.audit.LogAction(ctx, audit.Entry{
		GroupID:       audit.Int64(groupID),
		HostBookingID: audit.Int64(g.HostBookingID),
		Action:        audit.ActionUnmerge,
		ActorID:       actorID,
		OldValue:      map[string]any{"status": from},
		NewValue:      map[string]any{"status": GroupUnmerged},
		Metadata:      map[string]any{"reverted_booking_ids": reverted},
	})
	return loadGroup(ctx, e.repo, groupID)
}

func loadGroup(ctx context.Context, repo Repository, id int64) (*Group, error) {
	g, err := repo.GetGroup(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, failf(ErrNotFound, "carpool group %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("load group %d: %w", id, err)
	}
	return g, nil
}

func lockGroup(ctx context.Context, tx Tx, id int64) (*Group, error) {
	g, err := tx.LockGroup(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, failf(ErrNotFound, "carpool group %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("lock group %d: %w", id, err)
	}
	return g, nil
}

func loadBooking(ctx context.Context, bookings Bookings, id int64) (*booking.Booking, error) {
	b, err := bookings.Get(ctx, id)
	if errors.Is(err, booking.ErrNotFound) {
		return nil, failf(ErrNotFound, "booking %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("load booking %d: %w", id, err)
	}
	return b, nil
}
