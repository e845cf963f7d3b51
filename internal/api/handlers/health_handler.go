package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/entity-screening/backend/internal/keywords"
	"github.com/entity-screening/backend/pkg/logger"
)

const sampleEntity = "Sample Corp"

// Check tests one dependency. Checks must return promptly once ctx is done.
type Check func(ctx context.Context) error

type HealthHandler struct {
	holder  *keywords.Holder
	checks  map[string]Check
	ready   map[string]Check
	timeout time.Duration
	started time.Time
}

// NewHealthHandler builds the health endpoints. checks are reported by Health;
// readiness only consults the names listed in readyChecks.
func NewHealthHandler(holder *keywords.Holder, checks map[string]Check, readyChecks ...string) *HealthHandler {
	ready := make(map[string]Check, len(readyChecks))
	for _, name := range readyChecks {
		if check, ok := checks[name]; ok {
			ready[name] = check
		}
	}
	return &HealthHandler{
		holder:  holder,
		checks:  checks,
		ready:   ready,
		timeout: 3 * time.Second,
		started: time.Now(),
	}
}

func (h *HealthHandler) Health(c *fiber.Ctx) error {
	tax := h.holder.Snapshot()
	sample, err := keywords.Generate(tax, sampleEntity, keywords.All, 3)
	if err != nil {
		logger.Error("Sample query generation failed", zap.Error(err))
	}

	results, healthy := h.run(c.UserContext(), h.checks)
	status := "healthy"
	code := fiber.StatusOK
	if !healthy || err != nil {
		status = "degraded"
		code = fiber.StatusServiceUnavailable
	}

	return c.Status(code).JSON(fiber.Map{
		"status":         status,
		"service":        "entity-screening",
		"time":           time.Now().Unix(),
		"uptime_seconds": int(time.Since(h.started).Seconds()),
		"keywords":       tax.Stats(),
		"sample_queries": sample,
		"checks":         results,
	})
}

func (h *HealthHandler) Ready(c *fiber.Ctx) error {
	results, ok := h.run(c.UserContext(), h.ready)
	if !ok {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"status": "not_ready",
			"checks": results,
		})
	}
	return c.JSON(fiber.Map{
		"status": "ready",
	})
}

func (h *HealthHandler) run(ctx context.Context, checks map[string]Check) (map[string]string, bool) {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	results := make(map[string]string, len(checks))
	healthy := true
	for name, check := range checks {
		if err := check(ctx); err != nil {
			logger.Warn("Health check failed", zap.String("check", name), zap.Error(err))
			results[name] = "error: " + err.Error()
			healthy = false
			continue
		}
		results[name] = "ok"
	}
	return results, healthy
}
