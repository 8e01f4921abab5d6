package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gstrecon/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// ErrRunNotFound is returned when a (user, period) has no completed run.
var ErrRunNotFound = errors.New("reconciliation run not found")

// MatchRow is the persisted projection of one match result. Full invoice
// payloads stay in the archived report; rows carry only what the summary and
// dashboard queries read back.
type MatchRow struct {
	ID             uuid.UUID               `json:"id" db:"id"`
	RunID          uuid.UUID               `json:"run_id" db:"run_id"`
	MatchID        string                  `json:"match_id" db:"match_id"`
	VendorGSTIN    string                  `json:"vendor_gstin" db:"vendor_gstin"`
	InvoiceNumber  string                  `json:"invoice_number" db:"invoice_number"`
	Score          float64                 `json:"score" db:"score"`
	MatchType      models.MatchType        `json:"match_type" db:"match_type"`
	Status         models.MatchStatus      `json:"status" db:"status"`
	Mismatches     []models.MismatchDetail `json:"mismatches"`
	AuthorityValue decimal.Decimal         `json:"authority_value" db:"authority_value"`
	AuthorityTax   decimal.Decimal         `json:"authority_tax" db:"authority_tax"`
	BookValue      decimal.Decimal         `json:"book_value" db:"book_value"`
	BookTax        decimal.Decimal         `json:"book_tax" db:"book_tax"`
	ITCEligible    bool                    `json:"itc_eligible" db:"itc_eligible"`
	MatchedAt      time.Time               `json:"matched_at" db:"matched_at"`
}

// ReconRun is the header row for one completed reconciliation run.
type ReconRun struct {
	ID               uuid.UUID `json:"id" db:"id"`
	UserID           uuid.UUID `json:"user_id" db:"user_id"`
	Period           string    `json:"period" db:"period"`
	TotalProcessed   int       `json:"total_processed" db:"total_processed"`
	FailedProcessing int       `json:"failed_processing" db:"failed_processing"`
	StartedAt        time.Time `json:"started_at" db:"started_at"`
	CompletedAt      time.Time `json:"completed_at" db:"completed_at"`
}

// ReconciliationRepository persists completed runs and serves the read side
// of the dashboard. SaveRun writes the run header, its match rows, actions
// and survey in one transaction so a run is either fully visible or absent.
type ReconciliationRepository interface {
	SaveRun(ctx context.Context, result *models.ReconciliationProcessResult, survey *models.MismatchSurveyResult) error
	LatestRun(ctx context.Context, userID uuid.UUID, period string) (*ReconRun, error)
	ListRecentRuns(ctx context.Context, since time.Time) ([]ReconRun, error)
	ListMatchRows(ctx context.Context, runID uuid.UUID) ([]MatchRow, error)
	ListMatchRowsByStatus(ctx context.Context, runID uuid.UUID, status models.MatchStatus) ([]MatchRow, error)
	ListActions(ctx context.Context, runID uuid.UUID) ([]models.ReconciliationAction, error)
	GetSurvey(ctx context.Context, runID uuid.UUID) (*models.MismatchSurveyResult, error)
}

type reconciliationRepo struct {
	db DB
}

func NewReconciliationRepo(db DB) ReconciliationRepository {
	return &reconciliationRepo{db: db}
}

func (r *reconciliationRepo) SaveRun(ctx context.Context, result *models.ReconciliationProcessResult, survey *models.MismatchSurveyResult) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin run transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	runInsert := `
		INSERT INTO recon_runs (id, user_id, period, total_processed, failed_processing, started_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	if _, err := tx.Exec(ctx, runInsert,
		result.RunID, result.UserID, result.Period, result.TotalProcessed, result.FailedProcessing,
		result.StartedAt, result.CompletedAt); err != nil {
		return fmt.Errorf("failed to insert run header: %w", err)
	}

	matchInsert := `
		INSERT INTO recon_match_results (id, run_id, match_id, vendor_gstin, invoice_number, score, match_type, status, mismatches, authority_value, authority_tax, book_value, book_tax, itc_eligible, matched_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`
	for i := range result.Matches {
		m := &result.Matches[i]
		mismatches, err := json.Marshal(m.Mismatches)
		if err != nil {
			return fmt.Errorf("failed to encode mismatches for %s: %w", m.ID, err)
		}
		var bookValue, bookTax decimal.Decimal
		itcEligible := false
		if m.Book != nil {
			bookValue = m.Book.TotalAmount
			bookTax = m.Book.TotalTax()
			itcEligible = m.Book.ITCEligible
		}
		// book-only rows carry no authority record
		vendorGSTIN, invoiceNumber := m.Authority.SupplierGSTIN, m.Authority.InvoiceNumber
		if vendorGSTIN == "" && m.Book != nil {
			vendorGSTIN, invoiceNumber = m.Book.VendorGSTIN, m.Book.InvoiceNumber
		}
		if _, err := tx.Exec(ctx, matchInsert,
			uuid.New(), result.RunID, m.ID, vendorGSTIN, invoiceNumber,
			m.Score, m.MatchType, m.Status, mismatches,
			m.Authority.DeclaredValue, m.Authority.TotalTax(), bookValue, bookTax,
			itcEligible, m.MatchedAt); err != nil {
			return fmt.Errorf("failed to insert match row %s: %w", m.ID, err)
		}
	}

	actionInsert := `
		INSERT INTO recon_actions (id, run_id, match_id, action_type, actor, recorded_at, reason)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	for _, a := range result.Actions {
		if _, err := tx.Exec(ctx, actionInsert,
			a.ID, a.RunID, a.MatchID, a.ActionType, a.Actor, a.Timestamp, a.Reason); err != nil {
			return fmt.Errorf("failed to insert action for %s: %w", a.MatchID, err)
		}
	}

	if survey != nil {
		payload, err := json.Marshal(survey)
		if err != nil {
			return fmt.Errorf("failed to encode survey: %w", err)
		}
		surveyInsert := `INSERT INTO recon_surveys (run_id, payload, created_at) VALUES ($1, $2, NOW())`
		if _, err := tx.Exec(ctx, surveyInsert, result.RunID, payload); err != nil {
			return fmt.Errorf("failed to insert survey: %w", err)
		}
	}

	return tx.Commit(ctx)
}

func (r *reconciliationRepo) LatestRun(ctx context.Context, userID uuid.UUID, period string) (*ReconRun, error) {
	query := `
		SELECT id, user_id, period, total_processed, failed_processing, started_at, completed_at
		FROM recon_runs
		WHERE user_id = $1 AND period = $2
		ORDER BY completed_at DESC
		LIMIT 1
	`
	var run ReconRun
	err := r.db.QueryRow(ctx, query, userID, period).Scan(
		&run.ID, &run.UserID, &run.Period, &run.TotalProcessed, &run.FailedProcessing,
		&run.StartedAt, &run.CompletedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRunNotFound
		}
		return nil, err
	}
	return &run, nil
}

// ListRecentRuns returns the latest run per (user, period) completed after
// the cutoff, newest first.
func (r *reconciliationRepo) ListRecentRuns(ctx context.Context, since time.Time) ([]ReconRun, error) {
	query := `
		SELECT DISTINCT ON (user_id, period) id, user_id, period, total_processed, failed_processing, started_at, completed_at
		FROM recon_runs
		WHERE completed_at >= $1
		ORDER BY user_id, period, completed_at DESC
	`
	rows, err := r.db.Query(ctx, query, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []ReconRun
	for rows.Next() {
		var run ReconRun
		if err := rows.Scan(&run.ID, &run.UserID, &run.Period, &run.TotalProcessed, &run.FailedProcessing,
			&run.StartedAt, &run.CompletedAt); err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

const matchRowColumns = `id, run_id, match_id, vendor_gstin, invoice_number, score, match_type, status, mismatches, authority_value, authority_tax, book_value, book_tax, itc_eligible, matched_at`

func (r *reconciliationRepo) ListMatchRows(ctx context.Context, runID uuid.UUID) ([]MatchRow, error) {
	query := `SELECT ` + matchRowColumns + ` FROM recon_match_results WHERE run_id = $1 ORDER BY vendor_gstin, invoice_number`
	rows, err := r.db.Query(ctx, query, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMatchRows(rows)
}

func (r *reconciliationRepo) ListMatchRowsByStatus(ctx context.Context, runID uuid.UUID, status models.MatchStatus) ([]MatchRow, error) {
	query := `SELECT ` + matchRowColumns + ` FROM recon_match_results WHERE run_id = $1 AND status = $2 ORDER BY vendor_gstin, invoice_number`
	rows, err := r.db.Query(ctx, query, runID, status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMatchRows(rows)
}

func scanMatchRows(rows pgx.Rows) ([]MatchRow, error) {
	var result []MatchRow
	for rows.Next() {
		var row MatchRow
		var mismatches []byte
		if err := rows.Scan(&row.ID, &row.RunID, &row.MatchID, &row.VendorGSTIN, &row.InvoiceNumber,
			&row.Score, &row.MatchType, &row.Status, &mismatches,
			&row.AuthorityValue, &row.AuthorityTax, &row.BookValue, &row.BookTax,
			&row.ITCEligible, &row.MatchedAt); err != nil {
			return nil, err
		}
		if len(mismatches) > 0 {
			if err := json.Unmarshal(mismatches, &row.Mismatches); err != nil {
				return nil, fmt.Errorf("failed to decode mismatches for %s: %w", row.MatchID, err)
			}
		}
		result = append(result, row)
	}
	return result, rows.Err()
}

func (r *reconciliationRepo) ListActions(ctx context.Context, runID uuid.UUID) ([]models.ReconciliationAction, error) {
	query := `
		SELECT id, run_id, match_id, action_type, actor, recorded_at, reason
		FROM recon_actions
		WHERE run_id = $1
		ORDER BY recorded_at, match_id
	`
	rows, err := r.db.Query(ctx, query, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var actions []models.ReconciliationAction
	for rows.Next() {
		var a models.ReconciliationAction
		if err := rows.Scan(&a.ID, &a.RunID, &a.MatchID, &a.ActionType, &a.Actor, &a.Timestamp, &a.Reason); err != nil {
			return nil, err
		}
		actions = append(actions, a)
	}
	return actions, rows.Err()
}

func (r *reconciliationRepo) GetSurvey(ctx context.Context, runID uuid.UUID) (*models.MismatchSurveyResult, error) {
	var payload []byte
	err := r.db.QueryRow(ctx, `SELECT payload FROM recon_surveys WHERE run_id = $1`, runID).Scan(&payload)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRunNotFound
		}
		return nil, err
	}
	var survey models.MismatchSurveyResult
	if err := json.Unmarshal(payload, &survey); err != nil {
		return nil, fmt.Errorf("failed to decode survey: %w", err)
	}
	return &survey, nil
}
