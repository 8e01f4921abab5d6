package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// MatchType describes how closely an authority record and a book record agree.
type MatchType string

const (
	MatchTypeExact   MatchType = "EXACT"
	MatchTypePartial MatchType = "PARTIAL"
	MatchTypeFuzzy   MatchType = "FUZZY"
	MatchTypeNoMatch MatchType = "NO_MATCH"
)

// MatchStatus is the workflow state assigned to a match result.
type MatchStatus string

const (
	StatusMatched         MatchStatus = "MATCHED"
	StatusMismatched      MatchStatus = "MISMATCHED"
	StatusPendingReview   MatchStatus = "PENDING_REVIEW"
	StatusMissingInBooks  MatchStatus = "MISSING_IN_BOOKS"
	StatusMissingInGSTR2A MatchStatus = "MISSING_IN_GSTR2A"
)

// MismatchSeverity grades a field-level discrepancy.
type MismatchSeverity string

const (
	SeverityHigh   MismatchSeverity = "HIGH"
	SeverityMedium MismatchSeverity = "MEDIUM"
	SeverityLow    MismatchSeverity = "LOW"
)

// MismatchDetail describes one field-level discrepancy between the authority
// record and the book record. Purely descriptive; owned by its MatchResult.
type MismatchDetail struct {
	Field          string           `json:"field"`
	AuthorityValue string           `json:"authority_value"`
	BookValue      string           `json:"book_value"`
	Tolerance      string           `json:"tolerance"`
	Severity       MismatchSeverity `json:"severity"`
	Description    string           `json:"description"`
}

// MatchResult pairs one authority invoice with at most one book invoice.
// Results are created fresh per reconciliation run and never mutated.
type MatchResult struct {
	ID         string           `json:"id"` // "{vendorGSTIN}-{invoiceNumber}"
	Authority  GSTR2AInvoice    `json:"authority"`
	Book       *PurchaseInvoice `json:"book,omitempty"`
	Score      float64          `json:"score"`
	Mismatches []MismatchDetail `json:"mismatches"`
	MatchType  MatchType        `json:"match_type"`
	Status     MatchStatus      `json:"status"`
	MatchedAt  time.Time        `json:"matched_at"`
}

// MatchKey builds the composite lookup id used for candidate lookup and
// result tagging.
func MatchKey(vendorGSTIN, invoiceNumber string) string {
	return fmt.Sprintf("%s-%s", vendorGSTIN, invoiceNumber)
}

// MatchingPolicy carries the caller-supplied tolerances for one
// reconciliation run. All tolerance values must be non-negative and the fuzzy
// threshold must lie in [0,1].
type MatchingPolicy struct {
	AmountTolerancePercent      decimal.Decimal `json:"amount_tolerance_percent"`
	DateToleranceDays           int             `json:"date_tolerance_days"`
	FuzzyThreshold              float64         `json:"fuzzy_threshold"`
	AutoAcceptExactMatches      bool            `json:"auto_accept_exact_matches"`
	RequireManualReviewForFuzzy bool            `json:"require_manual_review_for_fuzzy"`
}

// DefaultMatchingPolicy returns the system default policy: 1% amount
// tolerance, 2 day date tolerance, 0.8 fuzzy acceptance threshold.
func DefaultMatchingPolicy() MatchingPolicy {
	return MatchingPolicy{
		AmountTolerancePercent:      decimal.NewFromInt(1),
		DateToleranceDays:           2,
		FuzzyThreshold:              0.8,
		AutoAcceptExactMatches:      true,
		RequireManualReviewForFuzzy: true,
	}
}

// Validate checks the policy invariants.
func (p MatchingPolicy) Validate() error {
	if p.AmountTolerancePercent.IsNegative() {
		return fmt.Errorf("amount tolerance must be non-negative")
	}
	if p.DateToleranceDays < 0 {
		return fmt.Errorf("date tolerance must be non-negative")
	}
	if p.FuzzyThreshold < 0 || p.FuzzyThreshold > 1 {
		return fmt.Errorf("fuzzy threshold must be between 0 and 1")
	}
	return nil
}
