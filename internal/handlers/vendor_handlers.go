package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"gstrecon/internal/common"
	"gstrecon/internal/models"
	"gstrecon/internal/repositories"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// VendorHandlers manages the vendor master data that reconciliation
// summaries are enriched from.
type VendorHandlers struct {
	vendorRepo repositories.VendorRepository
}

func NewVendorHandlers(vendorRepo repositories.VendorRepository) *VendorHandlers {
	return &VendorHandlers{vendorRepo: vendorRepo}
}

type vendorRequest struct {
	Name  string  `json:"name"`
	GSTIN string  `json:"gstin"`
	Email *string `json:"email"`
	Phone *string `json:"phone"`
}

type vendorResponse struct {
	ID    uuid.UUID `json:"id"`
	Name  string    `json:"name"`
	GSTIN string    `json:"gstin"`
	Email string    `json:"email"`
	Phone string    `json:"phone"`
}

func toVendorResponse(vendor models.Vendor) vendorResponse {
	return vendorResponse{
		ID:    vendor.ID,
		Name:  vendor.Name,
		GSTIN: vendor.GSTIN,
		Email: common.SafeString(vendor.Email),
		Phone: common.SafeString(vendor.Phone),
	}
}

// CreateVendor handles POST /v1/vendors?user_id=.
func (h *VendorHandlers) CreateVendor(c echo.Context) error {
	userID, err := common.ValidateUUID(c.QueryParam("user_id"), "user_id")
	if err != nil {
		return common.SendValidationError(c, "user_id", err.Error())
	}

	var req vendorRequest
	if err := c.Bind(&req); err != nil {
		return common.SendClientError(c, "Invalid request format")
	}
	if err := common.ValidateRequiredString(req.Name, "name"); err != nil {
		return common.SendValidationError(c, "name", err.Error())
	}
	if err := common.ValidateGSTIN(req.GSTIN, "gstin"); err != nil {
		return common.SendValidationError(c, "gstin", err.Error())
	}

	ctx := c.Request().Context()
	if _, err := h.vendorRepo.GetByGSTIN(ctx, userID, req.GSTIN); err == nil {
		return c.JSON(http.StatusConflict,
			common.CreateErrorResponse("CONFLICT", "A vendor with this GSTIN already exists", nil))
	} else if !errors.Is(err, repositories.ErrVendorNotFound) {
		return common.SendServerError(c, "Failed to check for existing vendor")
	}

	vendor := &models.Vendor{
		UserID: userID,
		Name:   req.Name,
		GSTIN:  req.GSTIN,
		Email:  req.Email,
		Phone:  req.Phone,
	}
	if err := h.vendorRepo.Create(ctx, vendor); err != nil {
		return common.SendServerError(c, "Failed to create vendor")
	}

	return c.JSON(http.StatusCreated, toVendorResponse(*vendor))
}

// ListVendors handles GET /v1/vendors?user_id=&limit=&offset=.
func (h *VendorHandlers) ListVendors(c echo.Context) error {
	userID, err := common.ValidateUUID(c.QueryParam("user_id"), "user_id")
	if err != nil {
		return common.SendValidationError(c, "user_id", err.Error())
	}

	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	offset, _ := strconv.Atoi(c.QueryParam("offset"))
	limit, offset, err = common.ValidatePaginationParams(limit, offset)
	if err != nil {
		return common.SendValidationError(c, "pagination", err.Error())
	}

	vendors, err := h.vendorRepo.ListByUser(c.Request().Context(), userID)
	if err != nil {
		return common.SendServerError(c, "Failed to list vendors")
	}

	// Per-user vendor lists are small; page the sorted result in memory.
	total := len(vendors)
	if offset >= total {
		vendors = nil
	} else {
		vendors = vendors[offset:]
	}
	if len(vendors) > limit {
		vendors = vendors[:limit]
	}

	responses := make([]vendorResponse, 0, len(vendors))
	for _, vendor := range vendors {
		responses = append(responses, toVendorResponse(vendor))
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"vendors": responses,
		"total":   total,
		"limit":   limit,
		"offset":  offset,
	})
}

// GetVendor handles GET /v1/vendors/:gstin?user_id=.
func (h *VendorHandlers) GetVendor(c echo.Context) error {
	userID, err := common.ValidateUUID(c.QueryParam("user_id"), "user_id")
	if err != nil {
		return common.SendValidationError(c, "user_id", err.Error())
	}
	gstin := c.Param("gstin")
	if err := common.ValidateGSTIN(gstin, "gstin"); err != nil {
		return common.SendValidationError(c, "gstin", err.Error())
	}

	vendor, err := h.vendorRepo.GetByGSTIN(c.Request().Context(), userID, gstin)
	if err != nil {
		if errors.Is(err, repositories.ErrVendorNotFound) {
			return common.SendNotFoundError(c, "vendor")
		}
		return common.SendServerError(c, "Failed to load vendor")
	}

	return c.JSON(http.StatusOK, toVendorResponse(*vendor))
}
