// README: HTTP router wiring for the carpool API.
package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"carpool/internal/http/handlers"
	"carpool/internal/http/middleware"
)

func NewRouter(svc handlers.CarpoolService, log *zap.Logger) *gin.Engine {
	if log == nil {
		log = zap.NewNop()
	}
	r := gin.New()
	r.Use(middleware.Recovery(log), middleware.Logging(log), middleware.Metrics())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	h := handlers.NewCarpoolHandler(svc)
	api := r.Group("/api/carpool", middleware.Actor())
	{
		api.GET("/bookings/:id/candidates", h.Candidates)
		api.POST("/candidates/draft", h.DraftCandidates)

		api.POST("/invites", h.Invite)
		api.POST("/invites/:id/respond", h.Respond)

		api.GET("/groups/:id", h.GetGroup)
		api.GET("/groups/:id/validation", h.Validate)
		api.POST("/groups/:id/merge", h.Merge)
		api.POST("/groups/:id/unmerge", h.Unmerge)
		api.POST("/groups/:id/cost", h.AllocateCost)
		api.GET("/groups/:id/audit", h.AuditLogs)
	}
	return r
}

// NewServer applies the timeouts every listener gets.
func NewServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}
