package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gstrecon/internal/models"

	"github.com/google/uuid"
)

type PurchaseInvoiceRepository interface {
	Create(ctx context.Context, invoice *models.PurchaseInvoice) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.PurchaseInvoice, error)
	ListByUserAndDateRange(ctx context.Context, userID uuid.UUID, from, to time.Time) ([]models.PurchaseInvoice, error)
	ListByVendor(ctx context.Context, userID uuid.UUID, vendorGSTIN string) ([]models.PurchaseInvoice, error)
}

type purchaseInvoiceRepo struct {
	db DB
}

func NewPurchaseInvoiceRepo(db DB) PurchaseInvoiceRepository {
	return &purchaseInvoiceRepo{db: db}
}

const purchaseInvoiceColumns = `id, user_id, vendor_gstin, invoice_number, invoice_date, total_amount, taxable_amount, cgst, sgst, igst, cess, gst_rate, itc_eligible, line_items`

func (r *purchaseInvoiceRepo) Create(ctx context.Context, invoice *models.PurchaseInvoice) error {
	if invoice.ID == uuid.Nil {
		invoice.ID = uuid.New()
	}
	lineItems, err := json.Marshal(invoice.LineItems)
	if err != nil {
		return fmt.Errorf("failed to encode line items: %w", err)
	}
	query := `
		INSERT INTO purchase_invoices (id, user_id, vendor_gstin, invoice_number, invoice_date, total_amount, taxable_amount, cgst, sgst, igst, cess, gst_rate, itc_eligible, line_items, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, NOW())
	`
	_, err = r.db.Exec(ctx, query,
		invoice.ID, invoice.UserID, invoice.VendorGSTIN, invoice.InvoiceNumber, invoice.InvoiceDate,
		invoice.TotalAmount, invoice.TaxableAmount, invoice.CGST, invoice.SGST, invoice.IGST, invoice.Cess,
		invoice.GSTRate, invoice.ITCEligible, lineItems)
	if err != nil {
		return fmt.Errorf("failed to create purchase invoice: %w", err)
	}
	return nil
}

func (r *purchaseInvoiceRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.PurchaseInvoice, error) {
	query := `SELECT ` + purchaseInvoiceColumns + ` FROM purchase_invoices WHERE id = $1`
	row := r.db.QueryRow(ctx, query, id)
	invoice, err := scanPurchaseInvoice(row)
	if err != nil {
		return nil, err
	}
	return invoice, nil
}

func (r *purchaseInvoiceRepo) ListByUserAndDateRange(ctx context.Context, userID uuid.UUID, from, to time.Time) ([]models.PurchaseInvoice, error) {
	query := `
		SELECT ` + purchaseInvoiceColumns + `
		FROM purchase_invoices
		WHERE user_id = $1 AND invoice_date >= $2 AND invoice_date < $3
		ORDER BY invoice_date, invoice_number
	`
	rows, err := r.db.Query(ctx, query, userID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var invoices []models.PurchaseInvoice
	for rows.Next() {
		invoice, err := scanPurchaseInvoice(rows)
		if err != nil {
			return nil, err
		}
		invoices = append(invoices, *invoice)
	}
	return invoices, rows.Err()
}

func (r *purchaseInvoiceRepo) ListByVendor(ctx context.Context, userID uuid.UUID, vendorGSTIN string) ([]models.PurchaseInvoice, error) {
	query := `
		SELECT ` + purchaseInvoiceColumns + `
		FROM purchase_invoices
		WHERE user_id = $1 AND vendor_gstin = $2
		ORDER BY invoice_date, invoice_number
	`
	rows, err := r.db.Query(ctx, query, userID, vendorGSTIN)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var invoices []models.PurchaseInvoice
	for rows.Next() {
		invoice, err := scanPurchaseInvoice(rows)
		if err != nil {
			return nil, err
		}
		invoices = append(invoices, *invoice)
	}
	return invoices, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPurchaseInvoice(row rowScanner) (*models.PurchaseInvoice, error) {
	var invoice models.PurchaseInvoice
	var lineItems []byte
	err := row.Scan(&invoice.ID, &invoice.UserID, &invoice.VendorGSTIN, &invoice.InvoiceNumber, &invoice.InvoiceDate,
		&invoice.TotalAmount, &invoice.TaxableAmount, &invoice.CGST, &invoice.SGST, &invoice.IGST, &invoice.Cess,
		&invoice.GSTRate, &invoice.ITCEligible, &lineItems)
	if err != nil {
		return nil, err
	}
	if len(lineItems) > 0 {
		if err := json.Unmarshal(lineItems, &invoice.LineItems); err != nil {
			return nil, fmt.Errorf("failed to decode line items for %s: %w", invoice.InvoiceNumber, err)
		}
	}
	return &invoice, nil
}
