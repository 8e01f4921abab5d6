package matching

import (
	"fmt"
	"time"

	"gstrecon/internal/models"

	"github.com/shopspring/decimal"
)

// Score weights. Vendor identity is already guaranteed by the exact lookup
// key that produced the candidate, so the vendor component always contributes
// its full weight.
const (
	invoiceNumberWeight = 0.4
	dateWeight          = 0.2
	amountWeight        = 0.3
	vendorWeight        = 0.1

	// Linear decay reaches zero this many units (days or percent points)
	// past the tolerance.
	decayFalloff = 10.0

	dateSeverityHighDays    = 7
	numberSeverityHighBelow = 0.9
)

var amountSeverityHighPercent = decimal.NewFromInt(5)

// MatchInvoice scores one authority invoice against its candidate book
// invoice and classifies the pair. A nil candidate is not an error; it is the
// MISSING_IN_BOOKS outcome with nothing to compare against.
func MatchInvoice(authority models.GSTR2AInvoice, book *models.PurchaseInvoice, policy models.MatchingPolicy) models.MatchResult {
	result := models.MatchResult{
		ID:        models.MatchKey(authority.SupplierGSTIN, authority.InvoiceNumber),
		Authority: authority,
		Book:      book,
		MatchedAt: time.Now(),
	}

	if book == nil {
		result.Score = 0
		result.MatchType = models.MatchTypeNoMatch
		result.Status = models.StatusMissingInBooks
		return result
	}

	numberSim := StringSimilarity(authority.InvoiceNumber, book.InvoiceNumber)

	dateSim := 1.0
	dayDiff := 0
	hasBookDate := book.InvoiceDate != nil && !book.InvoiceDate.IsZero()
	if hasBookDate {
		dayDiff = DayDiff(authority.InvoiceDate, *book.InvoiceDate)
		dateSim = decayScore(float64(dayDiff), float64(policy.DateToleranceDays), decayFalloff)
	}

	amountSim := 1.0
	pctDiff := decimal.Zero
	hasBookAmount := !book.TotalAmount.IsZero()
	if hasBookAmount {
		pctDiff = PercentageDiff(authority.DeclaredValue, book.TotalAmount)
		amountSim = decayScore(pctDiff.InexactFloat64(), policy.AmountTolerancePercent.InexactFloat64(), decayFalloff)
	}

	score := invoiceNumberWeight*numberSim + dateWeight*dateSim + amountWeight*amountSim + vendorWeight
	if score > 1.0 {
		score = 1.0
	}
	result.Score = score

	// Mismatch enumeration is independent of the score: the tolerance
	// boundary itself counts as a mismatch even though it still scores 1.0.
	if numberSim < 1.0 {
		severity := models.SeverityMedium
		if numberSim < numberSeverityHighBelow {
			severity = models.SeverityHigh
		}
		result.Mismatches = append(result.Mismatches, models.MismatchDetail{
			Field:          "invoice_number",
			AuthorityValue: authority.InvoiceNumber,
			BookValue:      book.InvoiceNumber,
			Tolerance:      "exact",
			Severity:       severity,
			Description:    fmt.Sprintf("invoice number similarity %.2f below exact match", numberSim),
		})
	}

	if hasBookDate && ExceedsDayTolerance(dayDiff, policy.DateToleranceDays) {
		severity := models.SeverityMedium
		if dayDiff > dateSeverityHighDays {
			severity = models.SeverityHigh
		}
		result.Mismatches = append(result.Mismatches, models.MismatchDetail{
			Field:          "invoice_date",
			AuthorityValue: authority.InvoiceDate.Format("2006-01-02"),
			BookValue:      book.InvoiceDate.Format("2006-01-02"),
			Tolerance:      fmt.Sprintf("%d days", policy.DateToleranceDays),
			Severity:       severity,
			Description:    fmt.Sprintf("invoice dates differ by %d days", dayDiff),
		})
	}

	if hasBookAmount && ExceedsPercentTolerance(pctDiff, policy.AmountTolerancePercent) {
		severity := models.SeverityMedium
		if pctDiff.Cmp(amountSeverityHighPercent) > 0 {
			severity = models.SeverityHigh
		}
		result.Mismatches = append(result.Mismatches, models.MismatchDetail{
			Field:          "total_amount",
			AuthorityValue: authority.DeclaredValue.String(),
			BookValue:      book.TotalAmount.String(),
			Tolerance:      fmt.Sprintf("%s%%", policy.AmountTolerancePercent.String()),
			Severity:       severity,
			Description:    fmt.Sprintf("amounts differ by %s%%", pctDiff.StringFixed(2)),
		})
	}

	result.MatchType, result.Status = classify(result.Score, result.Mismatches, policy)
	return result
}

// classify applies the documented branch order. Severity dominates over the
// raw score: a single large discrepancy is never auto-accepted just because
// the other fields score well.
func classify(score float64, mismatches []models.MismatchDetail, policy models.MatchingPolicy) (models.MatchType, models.MatchStatus) {
	anyHigh := false
	for _, m := range mismatches {
		if m.Severity == models.SeverityHigh {
			anyHigh = true
			break
		}
	}

	switch {
	case len(mismatches) == 0 && score >= 1.0:
		return models.MatchTypeExact, models.StatusMatched

	case anyHigh:
		if score >= policy.FuzzyThreshold {
			return models.MatchTypeFuzzy, models.StatusPendingReview
		}
		return models.MatchTypeNoMatch, models.StatusMismatched

	case len(mismatches) > 0:
		if score >= policy.FuzzyThreshold {
			return models.MatchTypePartial, models.StatusMatched
		}
		return models.MatchTypePartial, models.StatusPendingReview

	case score >= policy.FuzzyThreshold:
		return models.MatchTypePartial, models.StatusMatched

	default:
		// Degenerate corner: no mismatches yet a score below the fuzzy
		// threshold. Pinned by a test; do not "fix" the branch order.
		return models.MatchTypeNoMatch, models.StatusMissingInBooks
	}
}
