package middleware

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/ledger-market/backend/internal/metrics"
)

func MetricsMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			if fe, ok := err.(*fiber.Error); ok {
				status = fe.Code
			}
		}
		metrics.HTTPRequestsTotal.WithLabelValues(c.Method(), strconv.Itoa(status)).Inc()
		return err
	}
}
