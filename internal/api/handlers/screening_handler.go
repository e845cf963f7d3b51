package handlers

import (
	"context"
	"encoding/hex"
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/entity-screening/backend/internal/middleware/validation"
	"github.com/entity-screening/backend/internal/screening"
	"github.com/entity-screening/backend/internal/storage/models"
	"github.com/entity-screening/backend/pkg/logger"
)

type Screener interface {
	Run(ctx context.Context, req screening.Request) (*screening.Response, error)
}

type ResultReader interface {
	FetchSearch(ctx context.Context, storageKey string) (*models.SearchRecord, error)
	FetchRisk(ctx context.Context, storageKey string) (*models.RiskRecord, error)
}

type ScreeningHandler struct {
	screener Screener
	reader   ResultReader
	rules    validation.Rules
}

func NewScreeningHandler(screener Screener, reader ResultReader, rules validation.Rules) *ScreeningHandler {
	return &ScreeningHandler{
		screener: screener,
		reader:   reader,
		rules:    rules,
	}
}

func (h *ScreeningHandler) CreateScreening(c *fiber.Ctx) error {
	req, err := h.rules.Validate(c.Body())
	if err != nil {
		return writeError(c, err)
	}

	resp, err := h.screener.Run(c.UserContext(), req)
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(resp)
}

func (h *ScreeningHandler) GetScreening(c *fiber.Ctx) error {
	key := c.Params("key")
	if !validStorageKey(key) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":  "validation failed",
			"field":  "key",
			"reason": "must be a 64 character hex digest",
		})
	}

	ctx := c.UserContext()
	search, err := h.reader.FetchSearch(ctx, key)
	if err != nil {
		return writeError(c, err)
	}

	body := fiber.Map{
		"search":          search,
		"risk_assessment": nil,
		"scoring_status":  "not_requested",
	}
	if search.ScoringRequested {
		body["scoring_status"] = "pending"
	}

	risk, err := h.reader.FetchRisk(ctx, key)
	switch {
	case err == nil:
		body["risk_assessment"] = risk.Assessment()
		body["scoring_status"] = "complete"
	case errors.Is(err, screening.ErrNotFound):
	default:
		logger.Warn("Failed to load risk assessment", zap.String("storage_key", key), zap.Error(err))
		body["scoring_status"] = "unavailable"
	}

	return c.JSON(body)
}

func validStorageKey(key string) bool {
	if len(key) != 64 {
		return false
	}
	_, err := hex.DecodeString(key)
	return err == nil
}

// writeError maps domain errors onto status codes. A failed screening never
// yields an empty success.
func writeError(c *fiber.Ctx, err error) error {
	var verr *screening.ValidationError
	switch {
	case errors.As(err, &verr):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":  "validation failed",
			"field":  verr.Field,
			"reason": verr.Reason,
		})
	case errors.Is(err, screening.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Screening not found",
		})
	case errors.Is(err, screening.ErrUpstreamUnavailable):
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"error": "Search provider unavailable",
		})
	case errors.Is(err, screening.ErrStorageUnavailable):
		logger.Error("Storage unavailable", zap.Error(err))
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "Storage unavailable",
		})
	case errors.Is(err, context.DeadlineExceeded):
		return c.Status(fiber.StatusGatewayTimeout).JSON(fiber.Map{
			"error": "Screening timed out",
		})
	case errors.Is(err, context.Canceled):
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "Screening cancelled",
		})
	default:
		logger.Error("Failed to process screening", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to process screening",
		})
	}
}
