package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"carpool/internal/config"
	"carpool/internal/modules/audit"
	"carpool/internal/modules/booking"
	"carpool/internal/modules/carpool"
	"carpool/internal/modules/pricing"
	"carpool/internal/modules/settings"
)

func newTestRouter(t *testing.T) (*gin.Engine, *carpool.MemoryStore) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	store := carpool.NewMemoryStore()
	log := zap.NewNop()
	svc := carpool.NewService(carpool.Deps{
		Bookings: store,
		Repo:     store,
		Settings: settings.NewService(nil, config.DefaultCarpool(), log),
		Rates:    pricing.NewService(nil, config.DefaultCostRates(), log),
		Audit:    audit.NewService(audit.NewMemorySink(), log),
		Log:      log,
	})
	start := time.Now().Add(2 * time.Hour).Truncate(time.Minute)
	for i, requester := range []string{"u_host", "u_joiner"} {
		km := 20.0
		id := int64(i + 1)
		store.PutBooking(&booking.Booking{
			ID:             id,
			RequesterID:    requester,
			StartAt:        start.Add(time.Duration(i*5) * time.Minute),
			EndAt:          start.Add(time.Duration(40+i*5) * time.Minute),
			PassengerCount: 1,
			Status:         booking.StatusSubmitted,
			Segments: []booking.Segment{{
				BookingID:  id,
				Seq:        1,
				FromText:   "Taipei Main Station",
				ToText:     "Taipei 101",
				DistanceKm: &km,
			}},
		})
	}
	return NewRouter(svc, log), store
}

func doRequest(r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Actor-ID", "u_host")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

func TestHealthAndMetrics(t *testing.T) {
	r, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "carpool_http_requests_total")
}

func TestAPIRequiresActor(t *testing.T) {
	r, _ := newTestRouter(t)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/carpool/groups/1", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCarpoolFlow(t *testing.T) {
	r, store := newTestRouter(t)

	rec := doRequest(r, http.MethodGet, "/api/carpool/bookings/1/candidates", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var cands struct {
		Candidates []carpool.Candidate `json:"candidates"`
	}
	decode(t, rec, &cands)
	require.Len(t, cands.Candidates, 1)
	assert.Equal(t, int64(2), cands.Candidates[0].BookingID)
	assert.Equal(t, 100.0, cands.Candidates[0].RouteSimilarity)

	rec = doRequest(r, http.MethodPost, "/api/carpool/invites", map[string]any{"host_booking_id": 1, "joiner_booking_id": 2})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var inv carpool.Invite
	decode(t, rec, &inv)
	assert.Equal(t, carpool.ConsentPending, inv.ConsentStatus)

	rec = doRequest(r, http.MethodPost, "/api/carpool/invites", map[string]any{"host_booking_id": 1, "joiner_booking_id": 2})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = doRequest(r, http.MethodGet, "/api/carpool/groups/1/validation", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var v carpool.Validation
	decode(t, rec, &v)
	assert.False(t, v.Valid)
	assert.Equal(t, "some invites are still pending", v.Reason)

	rec = doRequest(r, http.MethodPost, "/api/carpool/groups/1/merge", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	var e struct {
		Error string `json:"error"`
	}
	decode(t, rec, &e)
	assert.Equal(t, "some invites are still pending", e.Error)

	rec = doRequest(r, http.MethodPost, "/api/carpool/invites/1/respond", map[string]any{"decision": "APPROVED"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = doRequest(r, http.MethodPost, "/api/carpool/groups/1/merge", map[string]any{"cost_mode": "PROPORTIONAL_DISTANCE"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var g carpool.Group
	decode(t, rec, &g)
	assert.Equal(t, carpool.GroupMerged, g.Status)
	require.NotNil(t, g.SharedCost)
	assert.Len(t, g.SharedCost.Shares, 2)

	b, err := store.Get(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, booking.StatusMerged, b.Status)

	rec = doRequest(r, http.MethodPost, "/api/carpool/groups/1/cost", map[string]any{"cost_mode": "EQUAL"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var cost carpool.SharedCost
	decode(t, rec, &cost)
	assert.Equal(t, carpool.CostEqual, cost.Mode)
	assert.InDelta(t, 50.0, cost.Shares[0].Percentage, 1e-9)

	rec = doRequest(r, http.MethodPost, "/api/carpool/groups/1/unmerge", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = doRequest(r, http.MethodPost, "/api/carpool/groups/1/unmerge", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = doRequest(r, http.MethodGet, "/api/carpool/groups/1/audit", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var logs struct {
		Entries []audit.Entry `json:"entries"`
	}
	decode(t, rec, &logs)
	require.NotEmpty(t, logs.Entries)
	assert.Equal(t, audit.ActionUnmerge, logs.Entries[0].Action)

	rec = doRequest(r, http.MethodGet, "/api/carpool/groups/1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var view carpool.GroupView
	decode(t, rec, &view)
	assert.Equal(t, carpool.GroupUnmerged, view.Group.Status)
	assert.Len(t, view.Invites, 1)
}

func TestErrorMapping(t *testing.T) {
	r, _ := newTestRouter(t)
	cases := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{"bad id", http.MethodGet, "/api/carpool/groups/abc", nil, http.StatusBadRequest},
		{"missing group", http.MethodGet, "/api/carpool/groups/99", nil, http.StatusNotFound},
		{"missing booking", http.MethodGet, "/api/carpool/bookings/99/candidates", nil, http.StatusNotFound},
		{"self invite", http.MethodPost, "/api/carpool/invites", map[string]any{"host_booking_id": 1, "joiner_booking_id": 1}, http.StatusBadRequest},
		{"invite missing fields", http.MethodPost, "/api/carpool/invites", map[string]any{"host_booking_id": 1}, http.StatusBadRequest},
		{"respond missing decision", http.MethodPost, "/api/carpool/invites/1/respond", map[string]any{}, http.StatusBadRequest},
		{"respond unknown invite", http.MethodPost, "/api/carpool/invites/7/respond", map[string]any{"decision": "APPROVED"}, http.StatusNotFound},
		{"unknown cost mode", http.MethodPost, "/api/carpool/groups/1/cost", map[string]any{"cost_mode": "RANDOM"}, http.StatusBadRequest},
		{"draft without passengers", http.MethodPost, "/api/carpool/candidates/draft", map[string]any{
			"start_at": time.Now().Add(time.Hour), "end_at": time.Now().Add(2 * time.Hour), "passenger_count": 0,
		}, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := doRequest(r, tc.method, tc.path, tc.body)
			assert.Equal(t, tc.want, rec.Code, rec.Body.String())
		})
	}
}

func TestDraftCandidates(t *testing.T) {
	r, _ := newTestRouter(t)
	start := time.Now().Add(2 * time.Hour)
	rec := doRequest(r, http.MethodPost, "/api/carpool/candidates/draft", map[string]any{
		"start_at":        start,
		"end_at":          start.Add(30 * time.Minute),
		"passenger_count": 2,
		"requester_id":    "u_host",
		"segment":         map[string]any{"from_text": "Taipei Main Station", "to_text": "Taipei 101"},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var cands struct {
		Candidates []carpool.Candidate `json:"candidates"`
	}
	decode(t, rec, &cands)
	require.Len(t, cands.Candidates, 1)
	assert.Equal(t, int64(2), cands.Candidates[0].BookingID)
	assert.Equal(t, 3, cands.Candidates[0].TotalPassengers)
}
