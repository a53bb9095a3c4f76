package observability

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// RequestLogger logs each HTTP request and records it in metrics.
func RequestLogger(logger *zap.Logger, metrics *Metrics) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		status := c.Response().StatusCode()
		latency := time.Since(start)

		metrics.RecordRequest(c.Route().Path, c.Method(), status, latency)
		logger.Debug("http request",
			zap.String("method", c.Method()),
			zap.String("path", c.Route().Path),
			zap.Int("status", status),
			zap.Duration("latency", latency))
		return err
	}
}
