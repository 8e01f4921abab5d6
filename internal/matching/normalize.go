package matching

import (
	"fmt"
	"strings"
	"time"

	"gstrecon/internal/models"
)

// authorityDateLayout is the day-month-year text form the authority export
// uses for invoice dates.
const authorityDateLayout = "02-01-2006"

// ParseInvoiceDate parses an authority-side DD-MM-YYYY date string.
func ParseInvoiceDate(text string) (time.Time, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return time.Time{}, fmt.Errorf("invoice date is empty")
	}
	date, err := time.Parse(authorityDateLayout, text)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid invoice date %q (expected DD-MM-YYYY): %w", text, err)
	}
	return date, nil
}

// FlatInvoice is one authority invoice with its supplier resolved from the
// section grouping, ready for comparison against book records.
type FlatInvoice struct {
	SupplierGSTIN string
	Invoice       models.GSTR2AInvoice
}

// FlattenSections converts a grouped authority batch into (supplier, invoice)
// pairs. Dates in text form are parsed to calendar dates; an invoice whose
// date cannot be parsed is still emitted, so the batch reconciler can record
// it as a failure instead of dropping it silently.
func FlattenSections(sections []models.GSTR2ASection) []FlatInvoice {
	var flat []FlatInvoice
	for _, section := range sections {
		for _, inv := range section.Invoices {
			if inv.SupplierGSTIN == "" {
				inv.SupplierGSTIN = section.SupplierGSTIN
			}
			if inv.InvoiceDate.IsZero() && inv.InvoiceDateText != "" {
				if parsed, err := ParseInvoiceDate(inv.InvoiceDateText); err == nil {
					inv.InvoiceDate = parsed
				}
			}
			flat = append(flat, FlatInvoice{SupplierGSTIN: section.SupplierGSTIN, Invoice: inv})
		}
	}
	return flat
}

// IndexBookInvoices builds the exact (vendor GSTIN, invoice number) lookup
// used to find the unique candidate for each authority invoice. When the
// books contain duplicate keys the first record wins; book-side duplicates
// are a bookkeeping defect outside this engine's scope.
func IndexBookInvoices(books []models.PurchaseInvoice) map[string]*models.PurchaseInvoice {
	index := make(map[string]*models.PurchaseInvoice, len(books))
	for i := range books {
		key := models.MatchKey(books[i].VendorGSTIN, books[i].InvoiceNumber)
		if _, exists := index[key]; !exists {
			index[key] = &books[i]
		}
	}
	return index
}
