package middleware

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/therapy/therapy/internal/platform/metrics"
)

// Metrics records request counts and latency labelled by route template,
// so /payments/:id is one series regardless of the id.
func Metrics(m *metrics.HTTPMetrics) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if c.Path() == "/metrics" {
				return next(c)
			}
			start := time.Now()
			err := next(c)

			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			status := c.Response().Status
			if err != nil {
				status = statusOf(err, status)
			}
			m.ObserveRequest(c.Request().Method, route, strconv.Itoa(status), time.Since(start).Seconds())
			return err
		}
	}
}
