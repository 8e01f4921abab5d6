package matching

import (
	"testing"
	"time"

	"gstrecon/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func surveyBook(gstin, number string, amount int64, date time.Time) models.PurchaseInvoice {
	return models.PurchaseInvoice{
		ID:            uuid.New(),
		VendorGSTIN:   gstin,
		InvoiceNumber: number,
		InvoiceDate:   &date,
		TotalAmount:   decimal.NewFromInt(amount),
	}
}

func TestSurvey_DuplicateAuthorityEntriesAggregated(t *testing.T) {
	sections := []models.GSTR2ASection{
		sectionWith("27AABCU9603R1ZN",
			authorityWith("INV-1", 1000),
			authorityWith("INV-1", 1200),
			authorityWith("INV-1", 800),
			authorityWith("INV-2", 500),
		),
	}

	result := Survey(uuid.New(), "2024-04", sections, nil)

	require.Len(t, result.DuplicateInvoices, 1)
	dup := result.DuplicateInvoices[0]
	assert.Equal(t, "INV-1", dup.InvoiceNumber)
	assert.Equal(t, 3, dup.Occurrences)
	assert.True(t, dup.TotalAmount.Equal(decimal.NewFromInt(3000)), "total is the sum of all occurrences, got %s", dup.TotalAmount)
}

func TestSurvey_SetDifferences(t *testing.T) {
	sections := []models.GSTR2ASection{
		sectionWith("27AABCU9603R1ZN",
			authorityWith("INV-1", 1000),
			authorityWith("INV-2", 2000),
		),
	}
	date := time.Date(2024, time.April, 15, 0, 0, 0, 0, time.UTC)
	books := []models.PurchaseInvoice{
		surveyBook("27AABCU9603R1ZN", "INV-2", 2000, date),
		surveyBook("27AABCU9603R1ZN", "INV-7", 700, date),
	}

	result := Survey(uuid.New(), "2024-04", sections, books)

	require.Len(t, result.MissingInBooks, 1)
	assert.Equal(t, "INV-1", result.MissingInBooks[0].InvoiceNumber)

	require.Len(t, result.MissingInGSTR2A, 1)
	assert.Equal(t, "INV-7", result.MissingInGSTR2A[0].InvoiceNumber)
}

func TestSurvey_FixedToleranceAmountAndDateMismatches(t *testing.T) {
	// The survey's audit tolerances (1% / 2 days) apply regardless of any
	// caller policy.
	sections := []models.GSTR2ASection{
		sectionWith("27AABCU9603R1ZN",
			authorityWith("INV-1", 10000), // book 10150: 1.5% >= 1%
			authorityWith("INV-2", 10000), // book same amount, 3 days apart
			authorityWith("INV-3", 10000), // book within both tolerances
		),
	}
	books := []models.PurchaseInvoice{
		surveyBook("27AABCU9603R1ZN", "INV-1", 10150, time.Date(2024, time.April, 15, 0, 0, 0, 0, time.UTC)),
		surveyBook("27AABCU9603R1ZN", "INV-2", 10000, time.Date(2024, time.April, 18, 0, 0, 0, 0, time.UTC)),
		surveyBook("27AABCU9603R1ZN", "INV-3", 10050, time.Date(2024, time.April, 16, 0, 0, 0, 0, time.UTC)),
	}

	result := Survey(uuid.New(), "2024-04", sections, books)

	require.Len(t, result.AmountMismatches, 1)
	assert.Equal(t, "INV-1", result.AmountMismatches[0].InvoiceNumber)

	require.Len(t, result.DateMismatches, 1)
	assert.Equal(t, "INV-2", result.DateMismatches[0].InvoiceNumber)
}

func TestSurvey_TaxRateMismatch(t *testing.T) {
	rate18 := decimal.NewFromInt(18)
	rate12 := decimal.NewFromInt(12)

	authority := authorityWith("INV-1", 10000)
	authority.TaxLines = []models.GSTR2ATaxLine{{Rate: rate18, TaxableValue: decimal.NewFromInt(10000)}}

	book := surveyBook("27AABCU9603R1ZN", "INV-1", 10000, time.Date(2024, time.April, 15, 0, 0, 0, 0, time.UTC))
	book.GSTRate = &rate12

	result := Survey(uuid.New(), "2024-04",
		[]models.GSTR2ASection{sectionWith("27AABCU9603R1ZN", authority)},
		[]models.PurchaseInvoice{book})

	require.Len(t, result.TaxRateMismatches, 1)
	assert.Equal(t, "gst_rate", result.TaxRateMismatches[0].Field)

	// Same rate on both sides: no mismatch.
	book.GSTRate = &rate18
	result = Survey(uuid.New(), "2024-04",
		[]models.GSTR2ASection{sectionWith("27AABCU9603R1ZN", authority)},
		[]models.PurchaseInvoice{book})
	assert.Empty(t, result.TaxRateMismatches)
}

func TestSurvey_DuplicatesNeverAbortComparison(t *testing.T) {
	sections := []models.GSTR2ASection{
		sectionWith("27AABCU9603R1ZN",
			authorityWith("INV-1", 1000),
			authorityWith("INV-1", 1000),
		),
	}
	books := []models.PurchaseInvoice{
		surveyBook("27AABCU9603R1ZN", "INV-1", 1000, time.Date(2024, time.April, 15, 0, 0, 0, 0, time.UTC)),
	}

	result := Survey(uuid.New(), "2024-04", sections, books)

	assert.Len(t, result.DuplicateInvoices, 1)
	assert.Empty(t, result.MissingInBooks, "first occurrence still compares against the book record")
	assert.Empty(t, result.AmountMismatches)
}
