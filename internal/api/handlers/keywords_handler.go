package handlers

import (
	"errors"
	"net/url"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/entity-screening/backend/internal/keywords"
	"github.com/entity-screening/backend/internal/metrics"
	"github.com/entity-screening/backend/pkg/logger"
)

type KeywordsHandler struct {
	holder *keywords.Holder
}

func NewKeywordsHandler(holder *keywords.Holder) *KeywordsHandler {
	h := &KeywordsHandler{holder: holder}
	h.recordStats(holder.Snapshot())
	return h
}

func (h *KeywordsHandler) ListKeywords(c *fiber.Ctx) error {
	tax := h.holder.Snapshot()

	if raw := c.Query("category"); raw != "" {
		cat, err := keywords.ParseCategory(raw)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error":  "validation failed",
				"field":  "category",
				"reason": err.Error(),
			})
		}
		return c.JSON(fiber.Map{
			"category": cat,
			"keywords": tax.Keywords(cat),
		})
	}

	return c.JSON(fiber.Map{
		"taxonomy": tax.Export(),
		"stats":    tax.Stats(),
	})
}

func (h *KeywordsHandler) AddKeyword(c *fiber.Ctx) error {
	var req struct {
		Keyword  string `json:"keyword"`
		Category string `json:"category"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	cat, err := keywords.ParseCategory(req.Category)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":  "validation failed",
			"field":  "category",
			"reason": err.Error(),
		})
	}

	tax, err := h.holder.Update(func(cur *keywords.Taxonomy) (*keywords.Taxonomy, error) {
		return cur.WithKeyword(req.Keyword, cat)
	})
	if err != nil {
		return keywordError(c, err)
	}
	h.recordStats(tax)

	logger.Info("Keyword added", zap.String("category", string(cat)), zap.String("keyword", req.Keyword))

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"category": cat,
		"keywords": tax.Keywords(cat),
		"stats":    tax.Stats(),
	})
}

func (h *KeywordsHandler) RemoveKeyword(c *fiber.Ctx) error {
	cat, err := keywords.ParseCategory(c.Params("category"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":  "validation failed",
			"field":  "category",
			"reason": err.Error(),
		})
	}
	phrase, err := url.PathUnescape(c.Params("keyword"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":  "validation failed",
			"field":  "keyword",
			"reason": "invalid escaping",
		})
	}

	removed := false
	tax, err := h.holder.Update(func(cur *keywords.Taxonomy) (*keywords.Taxonomy, error) {
		next, ok, err := cur.WithoutKeyword(phrase, cat)
		removed = ok
		return next, err
	})
	if err != nil {
		return keywordError(c, err)
	}
	if !removed {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Keyword not found",
		})
	}
	h.recordStats(tax)

	logger.Info("Keyword removed", zap.String("category", string(cat)), zap.String("keyword", phrase))

	return c.JSON(fiber.Map{
		"category": cat,
		"keywords": tax.Keywords(cat),
		"stats":    tax.Stats(),
	})
}

func (h *KeywordsHandler) recordStats(tax *keywords.Taxonomy) {
	for cat, n := range tax.Stats().Categories {
		metrics.TaxonomyKeywords.WithLabelValues(string(cat)).Set(float64(n))
	}
}

func keywordError(c *fiber.Ctx, err error) error {
	if errors.Is(err, keywords.ErrInvalidKeyword) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":  "validation failed",
			"field":  "keyword",
			"reason": err.Error(),
		})
	}
	logger.Error("Failed to update taxonomy", zap.Error(err))
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error": "Failed to update keywords",
	})
}
