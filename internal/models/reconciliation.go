package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ActionType is the recommended workflow action for a completed match.
type ActionType string

const (
	ActionAcceptMatch    ActionType = "ACCEPT_MATCH"
	ActionMarkReconciled ActionType = "MARK_RECONCILED"
	ActionFlagMismatch   ActionType = "FLAG_MISMATCH"
	ActionManualReview   ActionType = "MANUAL_REVIEW"
	ActionVendorFollowUp ActionType = "VENDOR_FOLLOW_UP"
)

// ReconciliationAction is an append-only audit log entry recording the
// recommended workflow action for one match result.
type ReconciliationAction struct {
	ID         uuid.UUID  `json:"id" db:"id"`
	RunID      uuid.UUID  `json:"run_id" db:"run_id"`
	MatchID    string     `json:"match_id" db:"match_id"`
	ActionType ActionType `json:"action_type" db:"action_type"`
	Actor      string     `json:"actor" db:"actor"`
	Timestamp  time.Time  `json:"timestamp" db:"timestamp"`
	Reason     string     `json:"reason" db:"reason"`
}

// ReconciliationProcessResult accumulates the outcome of one batch
// reconciliation run for a (user, period).
type ReconciliationProcessResult struct {
	RunID            uuid.UUID              `json:"run_id"`
	UserID           uuid.UUID              `json:"user_id"`
	Period           string                 `json:"period"`
	TotalProcessed   int                    `json:"total_processed"`
	FailedProcessing int                    `json:"failed_processing"`
	MatchTypeCounts  map[MatchType]int      `json:"match_type_counts"`
	StatusCounts     map[MatchStatus]int    `json:"status_counts"`
	ActionCounts     map[ActionType]int     `json:"action_counts"`
	Matches          []MatchResult          `json:"matches"`
	Actions          []ReconciliationAction `json:"actions"`
	Errors           []string               `json:"errors"`
	StartedAt        time.Time              `json:"started_at"`
	CompletedAt      time.Time              `json:"completed_at"`
}

// FieldMismatch is one aggregate-level discrepancy found by the mismatch
// survey for a key present on both sides.
type FieldMismatch struct {
	VendorGSTIN    string `json:"vendor_gstin"`
	InvoiceNumber  string `json:"invoice_number"`
	Field          string `json:"field"`
	AuthorityValue string `json:"authority_value"`
	BookValue      string `json:"book_value"`
	Difference     string `json:"difference"`
}

// DuplicateInvoice tracks repeated (supplier, invoice number) keys within one
// authority batch. Duplicates are reported, never silently overwritten.
type DuplicateInvoice struct {
	VendorGSTIN   string          `json:"vendor_gstin"`
	InvoiceNumber string          `json:"invoice_number"`
	Occurrences   int             `json:"occurrences"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
}

// MismatchSurveyResult is the set-based compliance audit view over one
// (user, period): records present on only one side, aggregate field
// discrepancies for matched keys, and duplicate authority entries.
type MismatchSurveyResult struct {
	UserID            uuid.UUID          `json:"user_id"`
	Period            string             `json:"period"`
	MissingInBooks    []GSTR2AInvoice    `json:"missing_in_books"`
	MissingInGSTR2A   []PurchaseInvoice  `json:"missing_in_gstr2a"`
	AmountMismatches  []FieldMismatch    `json:"amount_mismatches"`
	DateMismatches    []FieldMismatch    `json:"date_mismatches"`
	TaxRateMismatches []FieldMismatch    `json:"tax_rate_mismatches"`
	DuplicateInvoices []DuplicateInvoice `json:"duplicate_invoices"`
}

// ReconciliationSummary is the aggregated per-period view consumed by
// reporting and dashboard collaborators.
type ReconciliationSummary struct {
	UserID                 uuid.UUID       `json:"user_id"`
	Period                 string          `json:"period"`
	TotalAuthorityInvoices int             `json:"total_authority_invoices"`
	TotalBookInvoices      int             `json:"total_book_invoices"`
	Matched                int             `json:"matched"`
	Mismatched             int             `json:"mismatched"`
	PendingReview          int             `json:"pending_review"`
	MissingInBooks         int             `json:"missing_in_books"`
	MissingInGSTR2A        int             `json:"missing_in_gstr2a"`
	ExactMatches           int             `json:"exact_matches"`
	PartialMatches         int             `json:"partial_matches"`
	FuzzyMatches           int             `json:"fuzzy_matches"`
	NoMatches              int             `json:"no_matches"`
	MatchedITCValue        decimal.Decimal `json:"matched_itc_value"`
	PendingITCValue        decimal.Decimal `json:"pending_itc_value"`
	IneligibleITCValue     decimal.Decimal `json:"ineligible_itc_value"`
	LastReconciledAt       time.Time       `json:"last_reconciled_at"`
}

// VendorReconciliation is the per-vendor rollup for dashboard consumption.
type VendorReconciliation struct {
	VendorGSTIN    string          `json:"vendor_gstin"`
	VendorName     string          `json:"vendor_name"`
	TotalInvoices  int             `json:"total_invoices"`
	Matched        int             `json:"matched"`
	Mismatched     int             `json:"mismatched"`
	PendingReview  int             `json:"pending_review"`
	Missing        int             `json:"missing"`
	AuthorityValue decimal.Decimal `json:"authority_value"`
	BookValue      decimal.Decimal `json:"book_value"`
}
