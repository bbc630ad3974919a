package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// Pinger checks a backing service.  *sql.DB satisfies it.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// HealthHandler answers load balancer and monitoring probes.
type HealthHandler struct {
	db Pinger
}

// NewHealthHandler returns a probe handler.  db may be nil when the
// memory store is in use.
func NewHealthHandler(db Pinger) *HealthHandler { return &HealthHandler{db: db} }

// Health returns "ok", or 503 when the database does not answer.
func (h *HealthHandler) Health(c echo.Context) error {
	if h.db != nil {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
		defer cancel()
		if err := h.db.PingContext(ctx); err != nil {
			return c.String(http.StatusServiceUnavailable, "database unavailable")
		}
	}
	return c.String(http.StatusOK, "ok")
}
