package common

import (
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// ErrorResponse represents a standardized error response
type ErrorResponse struct {
	Error struct {
		Code    string            `json:"code"`
		Message string            `json:"message"`
		Details map[string]string `json:"details,omitempty"`
	} `json:"error"`
}

// CreateErrorResponse creates a standardized error response
func CreateErrorResponse(code string, message string, details map[string]string) *ErrorResponse {
	var resp ErrorResponse
	resp.Error.Code = code
	resp.Error.Message = message
	resp.Error.Details = details
	return &resp
}

// SendValidationError sends a validation error response
func SendValidationError(c echo.Context, field, message string) error {
	details := map[string]string{
		field: message,
	}
	return c.JSON(http.StatusBadRequest, CreateErrorResponse("VALIDATION_ERROR", "Validation failed", details))
}

// SendClientError sends a client error response
func SendClientError(c echo.Context, message string) error {
	return c.JSON(http.StatusBadRequest, CreateErrorResponse("CLIENT_ERROR", message, nil))
}

// SendServerError sends a server error response
func SendServerError(c echo.Context, message string) error {
	return c.JSON(http.StatusInternalServerError, CreateErrorResponse("SERVER_ERROR", message, nil))
}

// SendNotFoundError sends a not found error response
func SendNotFoundError(c echo.Context, resource string) error {
	return c.JSON(http.StatusNotFound, CreateErrorResponse("NOT_FOUND", fmt.Sprintf("%s not found", resource), nil))
}

// SendTooManyRequests sends a rate-limit exceeded response
func SendTooManyRequests(c echo.Context) error {
	return c.JSON(http.StatusTooManyRequests, CreateErrorResponse("RATE_LIMITED", "Too many requests", nil))
}

var gstinPattern = regexp.MustCompile(`^[0-9]{2}[A-Z]{5}[0-9]{4}[A-Z]{1}[0-9A-Z]{1}Z[0-9A-Z]{1}$`)

// ValidateGSTIN validates the fixed 15-character GSTIN format: 2-digit state
// code, 10-character PAN, entity code, the literal Z slot, and the checksum
// character.
func ValidateGSTIN(gstin, fieldName string) error {
	gstin = strings.TrimSpace(gstin)
	if gstin == "" {
		return fmt.Errorf("%s is required", fieldName)
	}
	if len(gstin) != 15 {
		return fmt.Errorf("%s must be exactly 15 characters", fieldName)
	}
	if !gstinPattern.MatchString(gstin) {
		return fmt.Errorf("%s has invalid GSTIN format", fieldName)
	}
	return nil
}

// ValidateUUID validates UUID string parameters
func ValidateUUID(idStr string, fieldName string) (uuid.UUID, error) {
	idStr = strings.TrimSpace(idStr)
	if idStr == "" {
		return uuid.Nil, fmt.Errorf("%s is required", fieldName)
	}
	id, err := uuid.Parse(idStr)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%s is not a valid UUID: %v", fieldName, err)
	}
	return id, nil
}

var periodPattern = regexp.MustCompile(`^\d{4}-(0[1-9]|1[0-2])$`)

// ValidatePeriod validates a YYYY-MM return period string.
func ValidatePeriod(period, fieldName string) error {
	if !periodPattern.MatchString(strings.TrimSpace(period)) {
		return fmt.Errorf("%s must be in YYYY-MM format", fieldName)
	}
	return nil
}

// PeriodRange converts a YYYY-MM period into its [start, end) date range.
func PeriodRange(period string) (time.Time, time.Time, error) {
	start, err := time.Parse("2006-01", strings.TrimSpace(period))
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid period %q: %w", period, err)
	}
	return start, start.AddDate(0, 1, 0), nil
}

// ValidateRequiredString validates required string fields
func ValidateRequiredString(value, fieldName string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%s is required", fieldName)
	}
	return nil
}

// ValidatePaginationParams validates pagination parameters
func ValidatePaginationParams(limit, offset int) (int, int, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 1000 {
		limit = 1000
	}
	if offset < 0 {
		offset = 0
	}
	if offset > 1000000 {
		return 0, 0, fmt.Errorf("offset cannot exceed 1,000,000")
	}
	return limit, offset, nil
}

// SafeString safely handles string pointer operations
func SafeString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// SecureErrorMessage creates standardized error messages to prevent information leakage
func SecureErrorMessage(operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("failed to %s: operation could not be completed", operation)
}
