package handlers

import (
	"errors"
	"io"
	"net/http"

	"gstrecon/internal/common"
	"gstrecon/internal/models"
	"gstrecon/internal/repositories"
	"gstrecon/internal/services"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
)

// one uploaded authority export should comfortably fit in this
const maxImportBodyBytes = 32 << 20

// ReconciliationHandlers handles HTTP requests for the reconciliation engine.
type ReconciliationHandlers struct {
	reconciliationService services.ReconciliationService
}

func NewReconciliationHandlers(reconciliationService services.ReconciliationService) *ReconciliationHandlers {
	return &ReconciliationHandlers{reconciliationService: reconciliationService}
}

func (h *ReconciliationHandlers) requestIdentity(c echo.Context) (uuid.UUID, string, error) {
	userID, err := common.ValidateUUID(c.QueryParam("user_id"), "user_id")
	if err != nil {
		return uuid.Nil, "", err
	}
	period := c.QueryParam("period")
	if err := common.ValidatePeriod(period, "period"); err != nil {
		return uuid.Nil, "", err
	}
	return userID, period, nil
}

// ImportGSTR2A handles POST /v1/reconciliation/import?user_id=&period=.
// The body is the raw authority export JSON.
func (h *ReconciliationHandlers) ImportGSTR2A(c echo.Context) error {
	userID, period, err := h.requestIdentity(c)
	if err != nil {
		return common.SendValidationError(c, "query", err.Error())
	}

	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxImportBodyBytes))
	if err != nil {
		return common.SendClientError(c, "Failed to read request body")
	}
	if len(body) == 0 {
		return common.SendValidationError(c, "body", "request body is required")
	}

	result, err := h.reconciliationService.ImportGSTR2A(c.Request().Context(), userID, period, body)
	if err != nil {
		if errors.Is(err, services.ErrBatchTooLarge) {
			return common.SendClientError(c, err.Error())
		}
		return common.SendClientError(c, "Failed to import GSTR-2A data: "+err.Error())
	}

	return c.JSON(http.StatusCreated, result)
}

type runRequest struct {
	AmountTolerancePercent      *decimal.Decimal `json:"amount_tolerance_percent"`
	DateToleranceDays           *int             `json:"date_tolerance_days"`
	FuzzyThreshold              *float64         `json:"fuzzy_threshold"`
	AutoAcceptExactMatches      *bool            `json:"auto_accept_exact_matches"`
	RequireManualReviewForFuzzy *bool            `json:"require_manual_review_for_fuzzy"`
}

// policy merges the optional request overrides over the system defaults.
func (r *runRequest) policy() models.MatchingPolicy {
	p := models.DefaultMatchingPolicy()
	if r.AmountTolerancePercent != nil {
		p.AmountTolerancePercent = *r.AmountTolerancePercent
	}
	if r.DateToleranceDays != nil {
		p.DateToleranceDays = *r.DateToleranceDays
	}
	if r.FuzzyThreshold != nil {
		p.FuzzyThreshold = *r.FuzzyThreshold
	}
	if r.AutoAcceptExactMatches != nil {
		p.AutoAcceptExactMatches = *r.AutoAcceptExactMatches
	}
	if r.RequireManualReviewForFuzzy != nil {
		p.RequireManualReviewForFuzzy = *r.RequireManualReviewForFuzzy
	}
	return p
}

// RunReconciliation handles POST /v1/reconciliation/run?user_id=&period=.
// An optional JSON body overrides individual matching policy fields.
func (h *ReconciliationHandlers) RunReconciliation(c echo.Context) error {
	userID, period, err := h.requestIdentity(c)
	if err != nil {
		return common.SendValidationError(c, "query", err.Error())
	}

	var req runRequest
	if c.Request().ContentLength > 0 {
		if err := c.Bind(&req); err != nil {
			return common.SendClientError(c, "Invalid request format")
		}
	}
	policy := req.policy()

	result, err := h.reconciliationService.ReconcilePeriod(c.Request().Context(), userID, period, &policy)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrBatchTooLarge):
			return common.SendClientError(c, err.Error())
		case errors.Is(err, repositories.ErrRunNotFound):
			return common.SendNotFoundError(c, "reconciliation run")
		default:
			return common.SendServerError(c, "Failed to run reconciliation")
		}
	}

	return c.JSON(http.StatusOK, result)
}

// GetSummary handles GET /v1/reconciliation/summary?user_id=&period=.
func (h *ReconciliationHandlers) GetSummary(c echo.Context) error {
	userID, period, err := h.requestIdentity(c)
	if err != nil {
		return common.SendValidationError(c, "query", err.Error())
	}

	summary, err := h.reconciliationService.Summary(c.Request().Context(), userID, period)
	if err != nil {
		if errors.Is(err, repositories.ErrRunNotFound) {
			return common.SendNotFoundError(c, "reconciliation run")
		}
		return common.SendServerError(c, "Failed to load reconciliation summary")
	}
	return c.JSON(http.StatusOK, summary)
}

// GetVendorSummaries handles GET /v1/reconciliation/vendors?user_id=&period=.
func (h *ReconciliationHandlers) GetVendorSummaries(c echo.Context) error {
	userID, period, err := h.requestIdentity(c)
	if err != nil {
		return common.SendValidationError(c, "query", err.Error())
	}

	vendors, err := h.reconciliationService.VendorSummaries(c.Request().Context(), userID, period)
	if err != nil {
		if errors.Is(err, repositories.ErrRunNotFound) {
			return common.SendNotFoundError(c, "reconciliation run")
		}
		return common.SendServerError(c, "Failed to load vendor summaries")
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"user_id": userID,
		"period":  period,
		"vendors": vendors,
	})
}

// GetMismatches handles GET /v1/reconciliation/mismatches?user_id=&period=.
func (h *ReconciliationHandlers) GetMismatches(c echo.Context) error {
	userID, period, err := h.requestIdentity(c)
	if err != nil {
		return common.SendValidationError(c, "query", err.Error())
	}

	survey, err := h.reconciliationService.Mismatches(c.Request().Context(), userID, period)
	if err != nil {
		if errors.Is(err, repositories.ErrRunNotFound) {
			return common.SendNotFoundError(c, "mismatch survey")
		}
		return common.SendServerError(c, "Failed to load mismatch survey")
	}
	return c.JSON(http.StatusOK, survey)
}

// GetActions handles GET /v1/reconciliation/actions?user_id=&period=.
func (h *ReconciliationHandlers) GetActions(c echo.Context) error {
	userID, period, err := h.requestIdentity(c)
	if err != nil {
		return common.SendValidationError(c, "query", err.Error())
	}

	actions, err := h.reconciliationService.Actions(c.Request().Context(), userID, period)
	if err != nil {
		if errors.Is(err, repositories.ErrRunNotFound) {
			return common.SendNotFoundError(c, "reconciliation run")
		}
		return common.SendServerError(c, "Failed to load reconciliation actions")
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"user_id": userID,
		"period":  period,
		"actions": actions,
	})
}

// GetReportURL handles GET /v1/reconciliation/report?user_id=&period=.
// Returns a presigned download link for the archived full report.
func (h *ReconciliationHandlers) GetReportURL(c echo.Context) error {
	userID, period, err := h.requestIdentity(c)
	if err != nil {
		return common.SendValidationError(c, "query", err.Error())
	}

	url, err := h.reconciliationService.ReportURL(c.Request().Context(), userID, period)
	if err != nil {
		if errors.Is(err, repositories.ErrRunNotFound) {
			return common.SendNotFoundError(c, "reconciliation report")
		}
		return common.SendServerError(c, "Failed to generate report link")
	}
	return c.JSON(http.StatusOK, map[string]string{"url": url})
}
