package handlers

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/entity-screening/backend/internal/screening"
	"github.com/entity-screening/backend/internal/storage/models"
)

type RiskLister interface {
	ListRisk(ctx context.Context, filter models.RiskFilter) ([]*models.RiskRecord, error)
}

type RiskHandler struct {
	lister RiskLister
}

func NewRiskHandler(lister RiskLister) *RiskHandler {
	return &RiskHandler{lister: lister}
}

type riskSummary struct {
	StorageKey string `json:"storage_key"`
	EntityName string `json:"entity_name"`
	CreatedAt  string `json:"created_at"`
	screening.RiskAssessment
}

// ListAssessments serves GET /risk-assessments?risk_level=&entity=&limit=.
func (h *RiskHandler) ListAssessments(c *fiber.Ctx) error {
	filter := models.RiskFilter{Entity: c.Query("entity")}

	if raw := strings.TrimSpace(c.Query("risk_level")); raw != "" {
		level := screening.RiskLevel(strings.ToUpper(raw))
		if !level.Valid() {
			return writeError(c, screening.NewValidationError("risk_level", "must be one of LOW, MEDIUM, HIGH, CRITICAL"))
		}
		filter.RiskLevel = string(level)
	}

	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 || limit > models.MaxListLimit {
			return writeError(c, screening.NewValidationError("limit", "must be an integer in [1,"+strconv.Itoa(models.MaxListLimit)+"]"))
		}
		filter.Limit = limit
	}

	recs, err := h.lister.ListRisk(c.UserContext(), filter)
	if err != nil {
		return writeError(c, err)
	}

	items := make([]riskSummary, 0, len(recs))
	distribution := make(map[string]int)
	reviews := 0
	for _, rec := range recs {
		items = append(items, riskSummary{
			StorageKey:     rec.StorageKey,
			EntityName:     rec.EntityName,
			CreatedAt:      rec.CreatedAt.Format(time.RFC3339),
			RiskAssessment: rec.Assessment(),
		})
		distribution[rec.RiskLevel]++
		if rec.RequiresReview {
			reviews++
		}
	}

	return c.JSON(fiber.Map{
		"assessments":     items,
		"count":           len(items),
		"distribution":    distribution,
		"requires_review": reviews,
	})
}
