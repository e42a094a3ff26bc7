// README: Carpool service exposes matching, invites, merge and cost operations.
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

// SystemActor is recorded for actions not triggered by a user.
const SystemActor = "system"

type Deps struct {
	Bookings  Bookings
	Repo      Repository
	Settings  SettingsProvider
	Rates     CostRates
	Audit     AuditLogger
	Estimator maps.Estimator   // optional
	Distance  DistanceStrategy // optional
	Log       *zap.Logger
}

type Service struct {
	bookings Bookings
	repo     Repository
	settings SettingsProvider
	audit    AuditLogger
	log      *zap.Logger
	now      func() time.Time

	matcher *Matcher
	engine  *MergeEngine
	costs   *CostAllocator
}

func NewService(d Deps) *Service {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	return &Service{
		bookings: d.Bookings,
		repo:     d.Repo,
		settings: d.Settings,
		audit:    d.Audit,
		log:      d.Log,
		now:      time.Now,
		matcher:  NewMatcher(d.Bookings, d.Settings, d.Estimator, d.Log),
		engine:   NewMergeEngine(d.Bookings, d.Repo, d.Settings, d.Estimator, d.Distance, d.Audit, d.Log),
		costs:    NewCostAllocator(d.Bookings, d.Repo, d.Rates, d.Estimator, d.Audit, d.Log),
	}
}

// setClock pins the time source of the service and its components.
func (s *Service) setClock(now func() time.Time) {
	s.now = now
	s.engine.now = now
	s.costs.now = now
}

func (s *Service) FindCandidates(ctx context.Context, hostBookingID int64) ([]Candidate, error) {
	out, err := s.matcher.FindCandidates(ctx, hostBookingID)
	if err != nil || len(out) == 0 {
		return out, err
	}
	ids := make([]int64, len(out))
	for i, c := range out {
		ids[i] = c.BookingID
	}
	e := audit.Entry{
		HostBookingID: audit.Int64(hostBookingID),
		Action:        audit.ActionMatched,
		ActorID:       SystemActor,
		Metadata:      map[string]any{"candidate_booking_ids": ids, "count": len(ids)},
	}
	if g, err := s.repo.FindActiveGroupByHost(ctx, hostBookingID); err == nil {
		e.GroupID = audit.Int64(g.ID)
	}
	s.audit.LogAction(ctx, e)
	return out, nil
}

func (s *Service) FindCandidatesForDraft(ctx context.Context, d Draft) ([]Candidate, error) {
	return s.matcher.FindCandidatesForDraft(ctx, d)
}

func (s *Service) Invite(ctx context.Context, cmd InviteCommand) (*Invite, error) {
	if cmd.HostBookingID == cmd.JoinerBookingID {
		return nil, failf(ErrBadRequest, "a booking cannot invite itself")
	}
	if cmd.ExpiresInMinutes != nil && *cmd.ExpiresInMinutes <= 0 {
		return nil, failf(ErrBadRequest, "expiry must be a positive number of minutes")
	}
	for _, id := range []int64{cmd.HostBookingID, cmd.JoinerBookingID} {
		b, err := loadBooking(ctx, s.bookings, id)
		if err != nil {
			return nil, err
		}
		if b.Status == booking.StatusMerged {
			return nil, failf(ErrInvalidState, "booking %d is already merged", id)
		}
	}

	g, err := s.activeGroup(ctx, cmd.HostBookingID, cmd.ActorID)
	if err != nil {
		return nil, err
	}
	_, err = s.repo.FindOpenInvite(ctx, g.ID, cmd.JoinerBookingID)
	if err == nil {
		return nil, duplicateInvite(cmd.JoinerBookingID, g.ID)
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("find open invite: %w", err)
	}

	minutes := s.settings.Carpool(ctx).DefaultInviteExpiryMinutes
	if cmd.ExpiresInMinutes != nil {
		minutes = *cmd.ExpiresInMinutes
	}
	now := s.now()
	inv := &Invite{
		GroupID:         g.ID,
		HostBookingID:   cmd.HostBookingID,
		JoinerBookingID: cmd.JoinerBookingID,
		ConsentStatus:   ConsentPending,
		ExpiresAt:       now.Add(time.Duration(minutes) * time.Minute),
		CreatedBy:       cmd.ActorID,
		CreatedAt:       now,
	}
	if err := s.repo.CreateInvite(ctx, inv); err != nil {
		if errors.Is(err, ErrConflict) {
			return nil, duplicateInvite(cmd.JoinerBookingID, g.ID)
		}
		if errors.Is(err, ErrInvalidState) {
			return nil, failf(ErrInvalidState, "carpool group %d is no longer active", g.ID)
		}
		return nil, fmt.Errorf("create invite: %w", err)
	}
	observability.InvitesCreated.Inc()

	s.audit.LogAction(ctx, audit.Entry{
		GroupID:         audit.Int64(g.ID),
		HostBookingID:   audit.Int64(cmd.HostBookingID),
		JoinerBookingID: audit.Int64(cmd.JoinerBookingID),
		Action:          audit.ActionInvite,
		ActorID:         cmd.ActorID,
		NewValue:        map[string]any{"consent_status": ConsentPending, "expires_at": inv.ExpiresAt},
	})
	return inv, nil
}

// activeGroup returns the host's ACTIVE group, creating it on first use.
func (s *Service) activeGroup(ctx context.Context, hostID int64, actorID string) (*Group, error) {
	g, err := s.repo.FindActiveGroupByHost(ctx, hostID)
	if err == nil {
		return g, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("find active group: %w", err)
	}
	now := s.now()
	g = &Group{
		HostBookingID:    hostID,
		Status:           GroupActive,
		MemberBookingIDs: []int64{},
		CreatedBy:        actorID,
		UpdatedBy:        actorID,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	err = s.repo.CreateGroup(ctx, g)
	if errors.Is(err, ErrConflict) {
		// Lost the race to a concurrent invite for the same host.
		g, err = s.repo.FindActiveGroupByHost(ctx, hostID)
	}
	if err != nil {
		return nil, fmt.Errorf("create group: %w", err)
	}
	return g, nil
}

func duplicateInvite(joinerID, groupID int64) error {
	return failf(ErrConflict, "booking %d already has an open invite in carpool group %d", joinerID, groupID)
}

func (s *Service) RespondToInvite(ctx context.Context, cmd RespondCommand) (*Invite, error) {
	if cmd.Decision != ConsentApproved && cmd.Decision != ConsentDeclined {
		return nil, failf(ErrBadRequest, "decision must be APPROVED or DECLINED")
	}
	inv, err := s.repo.GetInvite(ctx, cmd.InviteID)
	if errors.Is(err, ErrNotFound) {
		return nil, failf(ErrNotFound, "invite %d not found", cmd.InviteID)
	}
	if err != nil {
		return nil, fmt.Errorf("load invite: %w", err)
	}
	if inv.ConsentStatus != ConsentPending {
		return nil, failf(ErrInvalidState, "invite %d is already %s", inv.ID, inv.ConsentStatus)
	}
	g, err := loadGroup(ctx, s.repo, inv.GroupID)
	if err != nil {
		return nil, err
	}
	if g.Status != GroupActive {
		return nil, failf(ErrInvalidState, "carpool group %d is no longer active", g.ID)
	}

	now := s.now()
	if inv.ExpiredAt(now) {
		ok, err := s.repo.UpdateInviteConsent(ctx, inv.ID, ConsentPending, ConsentExpired, nil)
		if err != nil {
			return nil, fmt.Errorf("expire invite: %w", err)
		}
		if !ok {
			return nil, failf(ErrConflict, "invite %d was modified concurrently", inv.ID)
		}
		observability.InviteResponses.WithLabelValues(string(ConsentExpired)).Inc()
		return nil, ErrInviteExpired
	}

	ok, err := s.repo.UpdateInviteConsent(ctx, inv.ID, ConsentPending, cmd.Decision, &now)
	if err != nil {
		return nil, fmt.Errorf("update invite: %w", err)
	}
	if !ok {
		return nil, failf(ErrConflict, "invite %d was modified concurrently", inv.ID)
	}
	inv.ConsentStatus = cmd.Decision
	inv.RespondedAt = &now
	observability.InviteResponses.WithLabelValues(string(cmd.Decision)).Inc()

	action := audit.ActionApprove
	if cmd.Decision == ConsentDeclined {
		action = audit.ActionDecline
	}
	s.audit.LogAction(ctx, audit.Entry{
		GroupID:         audit.Int64(inv.GroupID),
		HostBookingID:   audit.Int64(inv.HostBookingID),
		JoinerBookingID: audit.Int64(inv.JoinerBookingID),
		Action:          action,
		ActorID:         cmd.ActorID,
		OldValue:        map[string]any{"consent_status": ConsentPending},
		NewValue:        map[string]any{"consent_status": cmd.Decision},
	})
	return inv, nil
}

// Merge merges the group and then allocates cost. A cost failure after the merge has
// committed is logged and the merged group is still returned.
func (s *Service) Merge(ctx context.Context, cmd MergeCommand) (*Group, error) {
	mode := cmd.CostMode
	if mode == "" {
		mode = CostEqual
	}
	if !mode.Valid() {
		return nil, failf(ErrBadRequest, "unknown cost mode %q", mode)
	}
	g, err := s.engine.Merge(ctx, cmd.GroupID, cmd.ActorID)
	if err != nil {
		return nil, err
	}
	cost, err := s.costs.AllocateCost(ctx, g.ID, mode, cmd.ActorID)
	if err != nil {
		s.log.Warn("cost allocation after merge failed", zap.Int64("group_id", g.ID), zap.Error(err))
		return g, nil
	}
	g.SharedCost = cost
	g.CostMode = &mode
	return g, nil
}

func (s *Service) Unmerge(ctx context.Context, groupID int64, actorID string) (*Group, error) {
	return s.engine.Unmerge(ctx, groupID, actorID)
}

func (s *Service) AllocateCost(ctx context.Context, groupID int64, mode CostMode, actorID string) (*SharedCost, error) {
	return s.costs.AllocateCost(ctx, groupID, mode, actorID)
}

func (s *Service) ValidatePreMerge(ctx context.Context, groupID int64) (*Validation, error) {
	return s.engine.ValidatePreMerge(ctx, groupID)
}

func (s *Service) GetGroup(ctx context.Context, groupID int64) (*GroupView, error) {
	g, err := loadGroup(ctx, s.repo, groupID)
	if err != nil {
		return nil, err
	}
	invites, err := s.ListInvites(ctx, groupID)
	if err != nil {
		return nil, err
	}
	return &GroupView{Group: g, Invites: invites}, nil
}

func (s *Service) ListInvites(ctx context.Context, groupID int64) ([]Invite, error) {
	invites, err := s.repo.ListInvites(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("list invites: %w", err)
	}
	if invites == nil {
		invites = []Invite{}
	}
	return invites, nil
}

func (s *Service) GetAuditLogs(ctx context.Context, groupID int64) ([]audit.Entry, error) {
	if _, err := loadGroup(ctx, s.repo, groupID); err != nil {
		return nil, err
	}
	return s.audit.GetAuditLogs(ctx, groupID), nil
}
