package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PurchaseLineItem is an optional line of a booked purchase invoice.
type PurchaseLineItem struct {
	HSNSAC       *string          `json:"hsn_sac" db:"hsn_sac"`
	Description  string           `json:"description" db:"description"`
	TaxableValue decimal.Decimal  `json:"taxable_value" db:"taxable_value"`
	GSTRate      *decimal.Decimal `json:"gst_rate" db:"gst_rate"`
}

// PurchaseInvoice is the organization's own bookkeeping entry for a purchase.
// It is created and mutated by the bookkeeping subsystem; the reconciliation
// engine only reads it. ITCEligible is supplied by an external eligibility
// classifier.
type PurchaseInvoice struct {
	ID            uuid.UUID          `json:"id" db:"id"`
	UserID        uuid.UUID          `json:"user_id" db:"user_id"`
	VendorGSTIN   string             `json:"vendor_gstin" db:"vendor_gstin"`
	InvoiceNumber string             `json:"invoice_number" db:"invoice_number"`
	InvoiceDate   *time.Time         `json:"invoice_date" db:"invoice_date"`
	TotalAmount   decimal.Decimal    `json:"total_amount" db:"total_amount"`
	TaxableAmount *decimal.Decimal   `json:"taxable_amount" db:"taxable_amount"`
	GSTRate       *decimal.Decimal   `json:"gst_rate" db:"gst_rate"`
	CGST          *decimal.Decimal   `json:"cgst" db:"cgst"`
	SGST          *decimal.Decimal   `json:"sgst" db:"sgst"`
	IGST          *decimal.Decimal   `json:"igst" db:"igst"`
	Cess          *decimal.Decimal   `json:"cess" db:"cess"`
	ITCEligible   bool               `json:"itc_eligible" db:"itc_eligible"`
	LineItems     []PurchaseLineItem `json:"line_items,omitempty"`
	CreatedAt     time.Time          `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time          `json:"updated_at" db:"updated_at"`
}

// TotalTax returns the booked tax components summed, treating absent
// components as zero.
func (p *PurchaseInvoice) TotalTax() decimal.Decimal {
	total := decimal.Zero
	for _, c := range []*decimal.Decimal{p.CGST, p.SGST, p.IGST, p.Cess} {
		if c != nil {
			total = total.Add(*c)
		}
	}
	return total
}

// Vendor is the vendor-master record backing follow-up views. Adapted from
// the supplier directory; read-only to the reconciliation engine.
type Vendor struct {
	ID        uuid.UUID `json:"id" db:"id"`
	UserID    uuid.UUID `json:"user_id" db:"user_id"`
	Name      string    `json:"name" db:"name"`
	GSTIN     string    `json:"gstin" db:"gstin"`
	Email     *string   `json:"email" db:"email"`
	Phone     *string   `json:"phone" db:"phone"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}
