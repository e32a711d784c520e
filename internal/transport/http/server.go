// Package http exposes the gateway's observability surface: a health
// probe and a status endpoint over the session registry.
package http

import (
	stdhttp "net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/drawbridge/internal/registry"
)

// StatusResponse is the /api/status body.
type StatusResponse struct {
	Sessions      int                    `json:"sessions"`
	UptimeSeconds int64                  `json:"uptime_seconds"`
	States        map[string]int         `json:"states"`
	Detail        []registry.SessionInfo `json:"detail"`
}

// Handlers serves the status endpoints.
type Handlers struct {
	reg     *registry.Registry
	log     zerolog.Logger
	started time.Time
}

// NewHandlers builds the handler set over the session registry.
func NewHandlers(reg *registry.Registry, logger zerolog.Logger) *Handlers {
	return &Handlers{
		reg:     reg,
		log:     logger.With().Str("component", "http").Logger(),
		started: time.Now(),
	}
}

// Health handles the liveness probe.
// GET /health
func (h *Handlers) Health(c *gin.Context) {
	c.String(stdhttp.StatusOK, "ok")
}

// Status reports live session state.
// GET /api/status
func (h *Handlers) Status(c *gin.Context) {
	detail := h.reg.Snapshot()
	states := make(map[string]int)
	for _, s := range detail {
		states[s.State]++
	}
	c.JSON(stdhttp.StatusOK, StatusResponse{
		Sessions:      len(detail),
		UptimeSeconds: int64(time.Since(h.started).Seconds()),
		States:        states,
		Detail:        detail,
	})
}

// NewRouter wires the endpoints into a gin engine.
func NewRouter(reg *registry.Registry, logger zerolog.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	h := NewHandlers(reg, logger)
	router.GET("/health", h.Health)
	router.GET("/api/status", h.Status)
	return router
}

// NewServer builds the HTTP server for the status surface.
func NewServer(addr string, reg *registry.Registry, logger zerolog.Logger) *stdhttp.Server {
	return &stdhttp.Server{
		Addr:              addr,
		Handler:           NewRouter(reg, logger),
		ReadHeaderTimeout: 5 * time.Second,
	}
}
