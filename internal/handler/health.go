package handler // package handler contains the HTTP handlers

import (
    "context"
    "net/http"
    "time"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/garage-parking/internal/logging"
)

// Pinger checks a backing dependency.  *sql.DB satisfies it.
type Pinger interface {
    PingContext(ctx context.Context) error
}

// HealthHandler answers the liveness probe.  With a database configured it
// also reports 503 while the database is unreachable.
type HealthHandler struct {
    db Pinger
}

// NewHealthHandler accepts a nil db for the in-memory store.
func NewHealthHandler(db Pinger) *HealthHandler {
    return &HealthHandler{db: db}
}

func (h *HealthHandler) Check(c echo.Context) error {
    if h.db != nil {
        ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
        defer cancel()
        if err := h.db.PingContext(ctx); err != nil {
            logging.Warn(ctx).Err(err).Msg("health.db_unreachable")
            return c.String(http.StatusServiceUnavailable, "database unavailable")
        }
    }
    return c.String(http.StatusOK, "ok")
}
