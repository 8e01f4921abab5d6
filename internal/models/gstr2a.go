package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// GSTR2ATaxLine is one tax-rate line of an authority-reported invoice.
type GSTR2ATaxLine struct {
	TaxableValue decimal.Decimal `json:"taxable_value" db:"taxable_value"`
	Rate         decimal.Decimal `json:"rate" db:"rate"`
	IGST         decimal.Decimal `json:"igst" db:"igst"`
	CGST         decimal.Decimal `json:"cgst" db:"cgst"`
	SGST         decimal.Decimal `json:"sgst" db:"sgst"`
	Cess         decimal.Decimal `json:"cess" db:"cess"`
}

// GSTR2AInvoice is a supplier-reported purchase invoice as published by the
// tax authority. Identity key is (SupplierGSTIN, InvoiceNumber). Records are
// immutable for a return period; an amendment carries the original number in
// OriginalInvoiceNumber.
type GSTR2AInvoice struct {
	SupplierGSTIN         string          `json:"supplier_gstin" db:"supplier_gstin"`
	InvoiceNumber         string          `json:"invoice_number" db:"invoice_number"`
	InvoiceDateText       string          `json:"invoice_date_text" db:"invoice_date_text"` // DD-MM-YYYY as supplied
	InvoiceDate           time.Time       `json:"invoice_date" db:"invoice_date"`
	DeclaredValue         decimal.Decimal `json:"declared_value" db:"declared_value"`
	PlaceOfSupply         string          `json:"place_of_supply" db:"place_of_supply"`
	ReverseCharge         bool            `json:"reverse_charge" db:"reverse_charge"`
	InvoiceType           string          `json:"invoice_type" db:"invoice_type"`
	TaxLines              []GSTR2ATaxLine `json:"tax_lines" db:"tax_lines"`
	Amended               bool            `json:"amended" db:"amended"`
	OriginalInvoiceNumber *string         `json:"original_invoice_number,omitempty" db:"original_invoice_number"`
}

// GSTR2ASection groups the invoices one supplier reported for a return period.
type GSTR2ASection struct {
	SupplierGSTIN string          `json:"supplier_gstin"`
	FiscalPeriod  string          `json:"fiscal_period"`
	Invoices      []GSTR2AInvoice `json:"invoices"`
}

// TaxTotals returns the aggregated taxable value and tax components across all
// tax lines of an authority invoice.
func (inv GSTR2AInvoice) TaxTotals() (taxable, igst, cgst, sgst, cess decimal.Decimal) {
	for _, line := range inv.TaxLines {
		taxable = taxable.Add(line.TaxableValue)
		igst = igst.Add(line.IGST)
		cgst = cgst.Add(line.CGST)
		sgst = sgst.Add(line.SGST)
		cess = cess.Add(line.Cess)
	}
	return taxable, igst, cgst, sgst, cess
}

// TotalTax returns the summed IGST+CGST+SGST+cess across all tax lines.
func (inv GSTR2AInvoice) TotalTax() decimal.Decimal {
	_, igst, cgst, sgst, cess := inv.TaxTotals()
	return igst.Add(cgst).Add(sgst).Add(cess)
}
