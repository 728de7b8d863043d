package middleware

import (
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/garage-parking/internal/logging"
)

// RequestLog writes one structured line per request.
func RequestLog() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}

			req := c.Request()
			logging.Info(req.Context()).
				Str("method", req.Method).
				Str("route", c.Path()).
				Int("status", c.Response().Status).
				Int64("bytes", c.Response().Size).
				Dur("latency", time.Since(start)).
				Str("ip", c.RealIP()).
				Msg("http.request")
			return nil
		}
	}
}
