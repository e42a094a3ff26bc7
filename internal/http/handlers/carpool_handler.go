// README: Carpool handlers for matching, invites, merge/unmerge, cost and audit.
package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"carpool/internal/http/middleware"
	"carpool/internal/modules/audit"
	"carpool/internal/modules/booking"
	"carpool/internal/modules/carpool"
	"carpool/internal/types"
)

// CarpoolService is the slice of carpool.Service the handlers call.
type CarpoolService interface {
	FindCandidates(ctx context.Context, hostBookingID int64) ([]carpool.Candidate, error)
	FindCandidatesForDraft(ctx context.Context, d carpool.Draft) ([]carpool.Candidate, error)
	Invite(ctx context.Context, cmd carpool.InviteCommand) (*carpool.Invite, error)
	RespondToInvite(ctx context.Context, cmd carpool.RespondCommand) (*carpool.Invite, error)
	GetGroup(ctx context.Context, groupID int64) (*carpool.GroupView, error)
	ValidatePreMerge(ctx context.Context, groupID int64) (*carpool.Validation, error)
	Merge(ctx context.Context, cmd carpool.MergeCommand) (*carpool.Group, error)
	Unmerge(ctx context.Context, groupID int64, actorID string) (*carpool.Group, error)
	AllocateCost(ctx context.Context, groupID int64, mode carpool.CostMode, actorID string) (*carpool.SharedCost, error)
	GetAuditLogs(ctx context.Context, groupID int64) ([]audit.Entry, error)
}

type CarpoolHandler struct {
	carpool CarpoolService
}

func NewCarpoolHandler(svc CarpoolService) *CarpoolHandler {
	return &CarpoolHandler{carpool: svc}
}

func (h *CarpoolHandler) Candidates(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	out, err := h.carpool.FindCandidates(c.Request.Context(), id)
	if err != nil {
		writeCarpoolError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"candidates": out})
}

type segmentReq struct {
	FromText    string       `json:"from_text"`
	ToText      string       `json:"to_text"`
	From        *types.Point `json:"from"`
	To          *types.Point `json:"to"`
	RoutePath   string       `json:"route_path"`
	Validated   bool         `json:"validated"`
	DistanceKm  *float64     `json:"distance_km"`
	DurationMin *float64     `json:"duration_min"`
}

type draftReq struct {
	StartAt        time.Time  `json:"start_at" binding:"required"`
	EndAt          time.Time  `json:"end_at" binding:"required"`
	PassengerCount int        `json:"passenger_count"`
	Segment        segmentReq `json:"segment"`
	RequesterID    string     `json:"requester_id"`
}

func (h *CarpoolHandler) DraftCandidates(c *gin.Context) {
	var req draftReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	s := req.Segment
	out, err := h.carpool.FindCandidatesForDraft(c.Request.Context(), carpool.Draft{
		StartAt:        req.StartAt,
		EndAt:          req.EndAt,
		PassengerCount: req.PassengerCount,
		Segment: booking.Segment{
			Seq:         1,
			FromText:    s.FromText,
			ToText:      s.ToText,
			From:        s.From,
			To:          s.To,
			RoutePath:   s.RoutePath,
			Validated:   s.Validated,
			DistanceKm:  s.DistanceKm,
			DurationMin: s.DurationMin,
		},
		ExcludeRequesterID: req.RequesterID,
	})
	if err != nil {
		writeCarpoolError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"candidates": out})
}

type inviteReq struct {
	HostBookingID    int64 `json:"host_booking_id" binding:"required"`
	JoinerBookingID  int64 `json:"joiner_booking_id" binding:"required"`
	ExpiresInMinutes *int  `json:"expires_in_minutes"`
}

func (h *CarpoolHandler) Invite(c *gin.Context) {
	var req inviteReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "host_booking_id and joiner_booking_id are required")
		return
	}
	inv, err := h.carpool.Invite(c.Request.Context(), carpool.InviteCommand{
		HostBookingID:    req.HostBookingID,
		JoinerBookingID:  req.JoinerBookingID,
		ExpiresInMinutes: req.ExpiresInMinutes,
		ActorID:          middleware.ActorID(c),
	})
	if err != nil {
		writeCarpoolError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, inv)
}

type respondReq struct {
	Decision carpool.ConsentStatus `json:"decision" binding:"required"`
}

func (h *CarpoolHandler) Respond(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req respondReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "decision is required")
		return
	}
	inv, err := h.carpool.RespondToInvite(c.Request.Context(), carpool.RespondCommand{
		InviteID: id,
		Decision: req.Decision,
		ActorID:  middleware.ActorID(c),
	})
	if err != nil {
		writeCarpoolError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, inv)
}

func (h *CarpoolHandler) GetGroup(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	view, err := h.carpool.GetGroup(c.Request.Context(), id)
	if err != nil {
		writeCarpoolError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, view)
}

func (h *CarpoolHandler) Validate(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	v, err := h.carpool.ValidatePreMerge(c.Request.Context(), id)
	if err != nil {
		writeCarpoolError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, v)
}

type costReq struct {
	CostMode carpool.CostMode `json:"cost_mode"`
}

// bindOptional accepts an empty body.
func bindOptional(c *gin.Context, v any) bool {
	if err := c.ShouldBindJSON(v); err != nil && !errors.Is(err, io.EOF) {
		writeError(c, http.StatusBadRequest, "invalid json")
		return false
	}
	return true
}

func (h *CarpoolHandler) Merge(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req costReq
	if !bindOptional(c, &req) {
		return
	}
	g, err := h.carpool.Merge(c.Request.Context(), carpool.MergeCommand{
		GroupID:  id,
		CostMode: req.CostMode,
		ActorID:  middleware.ActorID(c),
	})
	if err != nil {
		writeCarpoolError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, g)
}

func (h *CarpoolHandler) Unmerge(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	g, err := h.carpool.Unmerge(c.Request.Context(), id, middleware.ActorID(c))
	if err != nil {
		writeCarpoolError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, g)
}

func (h *CarpoolHandler) AllocateCost(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req costReq
	if !bindOptional(c, &req) {
		return
	}
	if req.CostMode == "" {
		req.CostMode = carpool.CostEqual
	}
	cost, err := h.carpool.AllocateCost(c.Request.Context(), id, req.CostMode, middleware.ActorID(c))
	if err != nil {
		writeCarpoolError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, cost)
}

func (h *CarpoolHandler) AuditLogs(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	logs, err := h.carpool.GetAuditLogs(c.Request.Context(), id)
	if err != nil {
		writeCarpoolError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"entries": logs})
}
