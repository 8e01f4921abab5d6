package matching

import (
	"fmt"

	"gstrecon/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Fixed audit tolerances. The survey is a compliance view, not a best-effort
// match, so it ignores the caller's MatchingPolicy on purpose.
const surveyDateToleranceDays = 2

var surveyAmountTolerancePercent = decimal.NewFromInt(1)

// Survey builds full indices of both sides and reports invoices present on
// only one side, duplicate authority entries, and aggregate amount, date and
// tax-rate discrepancies for keys present on both sides.
func Survey(userID uuid.UUID, period string, sections []models.GSTR2ASection, books []models.PurchaseInvoice) *models.MismatchSurveyResult {
	result := &models.MismatchSurveyResult{
		UserID: userID,
		Period: period,
	}

	// Authority index. Duplicate keys are tracked, never overwritten: the
	// first occurrence stays in the index, every occurrence is counted.
	authorityIndex := make(map[string]models.GSTR2AInvoice)
	duplicates := make(map[string]*models.DuplicateInvoice)
	var keyOrder []string

	for _, flat := range FlattenSections(sections) {
		inv := flat.Invoice
		key := models.MatchKey(inv.SupplierGSTIN, inv.InvoiceNumber)
		if dup, seen := duplicates[key]; seen {
			dup.Occurrences++
			dup.TotalAmount = dup.TotalAmount.Add(inv.DeclaredValue)
			continue
		}
		duplicates[key] = &models.DuplicateInvoice{
			VendorGSTIN:   inv.SupplierGSTIN,
			InvoiceNumber: inv.InvoiceNumber,
			Occurrences:   1,
			TotalAmount:   inv.DeclaredValue,
		}
		authorityIndex[key] = inv
		keyOrder = append(keyOrder, key)
	}

	for _, key := range keyOrder {
		if dup := duplicates[key]; dup.Occurrences > 1 {
			result.DuplicateInvoices = append(result.DuplicateInvoices, *dup)
		}
	}

	bookIndex := IndexBookInvoices(books)

	// Authority-only keys, and field discrepancies for shared keys.
	for _, key := range keyOrder {
		authority := authorityIndex[key]
		book, found := bookIndex[key]
		if !found {
			result.MissingInBooks = append(result.MissingInBooks, authority)
			continue
		}
		surveyPair(result, authority, book)
	}

	// Book-only keys.
	for i := range books {
		key := models.MatchKey(books[i].VendorGSTIN, books[i].InvoiceNumber)
		if _, found := authorityIndex[key]; !found {
			result.MissingInGSTR2A = append(result.MissingInGSTR2A, books[i])
		}
	}

	return result
}

// surveyPair records amount, date and tax-rate discrepancies for one key
// present on both sides, using the shared proximity semantics with the fixed
// audit tolerances.
func surveyPair(result *models.MismatchSurveyResult, authority models.GSTR2AInvoice, book *models.PurchaseInvoice) {
	if !book.TotalAmount.IsZero() {
		pctDiff := PercentageDiff(authority.DeclaredValue, book.TotalAmount)
		if ExceedsPercentTolerance(pctDiff, surveyAmountTolerancePercent) {
			result.AmountMismatches = append(result.AmountMismatches, models.FieldMismatch{
				VendorGSTIN:    authority.SupplierGSTIN,
				InvoiceNumber:  authority.InvoiceNumber,
				Field:          "total_amount",
				AuthorityValue: authority.DeclaredValue.String(),
				BookValue:      book.TotalAmount.String(),
				Difference:     fmt.Sprintf("%s%%", pctDiff.StringFixed(2)),
			})
		}
	}

	if book.InvoiceDate != nil && !book.InvoiceDate.IsZero() && !authority.InvoiceDate.IsZero() {
		dayDiff := DayDiff(authority.InvoiceDate, *book.InvoiceDate)
		if ExceedsDayTolerance(dayDiff, surveyDateToleranceDays) {
			result.DateMismatches = append(result.DateMismatches, models.FieldMismatch{
				VendorGSTIN:    authority.SupplierGSTIN,
				InvoiceNumber:  authority.InvoiceNumber,
				Field:          "invoice_date",
				AuthorityValue: authority.InvoiceDate.Format("2006-01-02"),
				BookValue:      book.InvoiceDate.Format("2006-01-02"),
				Difference:     fmt.Sprintf("%d days", dayDiff),
			})
		}
	}

	if mismatch, bookRates := taxRateMismatch(authority, book); mismatch {
		authorityRates := make([]string, 0, len(authority.TaxLines))
		for _, line := range authority.TaxLines {
			authorityRates = append(authorityRates, line.Rate.String())
		}
		result.TaxRateMismatches = append(result.TaxRateMismatches, models.FieldMismatch{
			VendorGSTIN:    authority.SupplierGSTIN,
			InvoiceNumber:  authority.InvoiceNumber,
			Field:          "gst_rate",
			AuthorityValue: fmt.Sprintf("%v", authorityRates),
			BookValue:      fmt.Sprintf("%v", bookRates),
			Difference:     "booked rate not reported by supplier",
		})
	}
}

// taxRateMismatch reports whether the book record declares a GST rate that
// none of the authority tax lines carries. Records without declared rates on
// either side are skipped.
func taxRateMismatch(authority models.GSTR2AInvoice, book *models.PurchaseInvoice) (bool, []string) {
	var bookRates []decimal.Decimal
	if book.GSTRate != nil {
		bookRates = append(bookRates, *book.GSTRate)
	}
	for _, item := range book.LineItems {
		if item.GSTRate != nil {
			bookRates = append(bookRates, *item.GSTRate)
		}
	}
	if len(bookRates) == 0 || len(authority.TaxLines) == 0 {
		return false, nil
	}

	labels := make([]string, 0, len(bookRates))
	mismatch := false
	for _, rate := range bookRates {
		labels = append(labels, rate.String())
		found := false
		for _, line := range authority.TaxLines {
			if line.Rate.Equal(rate) {
				found = true
				break
			}
		}
		if !found {
			mismatch = true
		}
	}
	return mismatch, labels
}
