package repositories

import (
	"context"
	"encoding/json"
	"fmt"

	"gstrecon/internal/models"

	"github.com/google/uuid"
)

// GSTR2ARepository stages imported authority batches until a reconciliation
// run consumes them. Staged rows are immutable; re-importing a period
// replaces the whole staging set atomically.
type GSTR2ARepository interface {
	ReplaceSections(ctx context.Context, userID uuid.UUID, period string, sections []models.GSTR2ASection) error
	ListSections(ctx context.Context, userID uuid.UUID, period string) ([]models.GSTR2ASection, error)
	CountInvoices(ctx context.Context, userID uuid.UUID, period string) (int, error)
	ListUnreconciledPeriods(ctx context.Context) ([]StagedPeriod, error)
}

// StagedPeriod identifies one (user, period) with staged authority data.
type StagedPeriod struct {
	UserID uuid.UUID `json:"user_id" db:"user_id"`
	Period string    `json:"period" db:"period"`
}

type gstr2aRepo struct {
	db DB
}

func NewGSTR2ARepo(db DB) GSTR2ARepository {
	return &gstr2aRepo{db: db}
}

func (r *gstr2aRepo) ReplaceSections(ctx context.Context, userID uuid.UUID, period string, sections []models.GSTR2ASection) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin staging transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM gstr2a_invoices WHERE user_id = $1 AND period = $2`, userID, period); err != nil {
		return fmt.Errorf("failed to clear staged invoices: %w", err)
	}

	insert := `
		INSERT INTO gstr2a_invoices (id, user_id, period, supplier_gstin, invoice_number, invoice_date_text, declared_value, place_of_supply, reverse_charge, invoice_type, tax_lines, amended, original_invoice_number, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, NOW())
	`
	for _, section := range sections {
		for _, inv := range section.Invoices {
			supplier := inv.SupplierGSTIN
			if supplier == "" {
				supplier = section.SupplierGSTIN
			}
			taxLines, err := json.Marshal(inv.TaxLines)
			if err != nil {
				return fmt.Errorf("failed to encode tax lines for %s/%s: %w", supplier, inv.InvoiceNumber, err)
			}
			if _, err := tx.Exec(ctx, insert,
				uuid.New(), userID, period, supplier, inv.InvoiceNumber, inv.InvoiceDateText,
				inv.DeclaredValue, inv.PlaceOfSupply, inv.ReverseCharge, inv.InvoiceType,
				taxLines, inv.Amended, inv.OriginalInvoiceNumber); err != nil {
				return fmt.Errorf("failed to stage invoice %s/%s: %w", supplier, inv.InvoiceNumber, err)
			}
		}
	}

	return tx.Commit(ctx)
}

func (r *gstr2aRepo) ListSections(ctx context.Context, userID uuid.UUID, period string) ([]models.GSTR2ASection, error) {
	query := `
		SELECT supplier_gstin, invoice_number, invoice_date_text, declared_value, place_of_supply, reverse_charge, invoice_type, tax_lines, amended, original_invoice_number
		FROM gstr2a_invoices
		WHERE user_id = $1 AND period = $2
		ORDER BY supplier_gstin, invoice_number, id
	`
	rows, err := r.db.Query(ctx, query, userID, period)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sections []models.GSTR2ASection
	bySupplier := make(map[string]int)

	for rows.Next() {
		var inv models.GSTR2AInvoice
		var taxLines []byte
		if err := rows.Scan(&inv.SupplierGSTIN, &inv.InvoiceNumber, &inv.InvoiceDateText, &inv.DeclaredValue,
			&inv.PlaceOfSupply, &inv.ReverseCharge, &inv.InvoiceType, &taxLines, &inv.Amended, &inv.OriginalInvoiceNumber); err != nil {
			return nil, err
		}
		if len(taxLines) > 0 {
			if err := json.Unmarshal(taxLines, &inv.TaxLines); err != nil {
				return nil, fmt.Errorf("failed to decode tax lines for %s/%s: %w", inv.SupplierGSTIN, inv.InvoiceNumber, err)
			}
		}

		idx, seen := bySupplier[inv.SupplierGSTIN]
		if !seen {
			sections = append(sections, models.GSTR2ASection{SupplierGSTIN: inv.SupplierGSTIN, FiscalPeriod: period})
			idx = len(sections) - 1
			bySupplier[inv.SupplierGSTIN] = idx
		}
		sections[idx].Invoices = append(sections[idx].Invoices, inv)
	}

	return sections, rows.Err()
}

func (r *gstr2aRepo) CountInvoices(ctx context.Context, userID uuid.UUID, period string) (int, error) {
	var count int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM gstr2a_invoices WHERE user_id = $1 AND period = $2`, userID, period).Scan(&count)
	return count, err
}

// ListUnreconciledPeriods returns staged (user, period) pairs with no
// completed reconciliation run yet, for the scheduled auto-reconcile job.
func (r *gstr2aRepo) ListUnreconciledPeriods(ctx context.Context) ([]StagedPeriod, error) {
	query := `
		SELECT DISTINCT g.user_id, g.period
		FROM gstr2a_invoices g
		WHERE NOT EXISTS (
			SELECT 1 FROM recon_runs r
			WHERE r.user_id = g.user_id AND r.period = g.period
		)
		ORDER BY g.period, g.user_id
	`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var periods []StagedPeriod
	for rows.Next() {
		var p StagedPeriod
		if err := rows.Scan(&p.UserID, &p.Period); err != nil {
			return nil, err
		}
		periods = append(periods, p)
	}
	return periods, rows.Err()
}
