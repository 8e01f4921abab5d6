package matching

import (
	"context"
	"fmt"
	"sync"
	"time"

	"gstrecon/internal/common"
	"gstrecon/internal/models"

	"github.com/google/uuid"
)

const defaultWorkers = 4

// BatchReconciler walks every authority invoice across every supplier
// section, looks up its unique book candidate and invokes the matcher.
// Supplier sections are independent, so they are processed by a bounded
// worker pool; per-invoice failures are accumulated, never fatal, because
// authority export files are third-party data of inconsistent quality.
type BatchReconciler struct {
	policy  models.MatchingPolicy
	workers int
}

// NewBatchReconciler builds a reconciler for one run. workers <= 0 selects
// the default pool size.
func NewBatchReconciler(policy models.MatchingPolicy, workers int) *BatchReconciler {
	if workers <= 0 {
		workers = defaultWorkers
	}
	return &BatchReconciler{policy: policy, workers: workers}
}

// sectionOutcome is the per-section accumulator merged into the run result.
type sectionOutcome struct {
	processed int
	failed    int
	matches   []models.MatchResult
	errors    []string
}

// Reconcile matches every authority invoice in the batch against the book
// records. It returns a partial result with accumulated errors rather than
// failing fast; the only terminal error is context cancellation, in which
// case the in-progress accumulator is discarded.
func (r *BatchReconciler) Reconcile(ctx context.Context, sections []models.GSTR2ASection, books []models.PurchaseInvoice) (*models.ReconciliationProcessResult, error) {
	result := &models.ReconciliationProcessResult{
		RunID:           uuid.New(),
		MatchTypeCounts: make(map[models.MatchType]int),
		StatusCounts:    make(map[models.MatchStatus]int),
		ActionCounts:    make(map[models.ActionType]int),
		StartedAt:       time.Now(),
	}

	bookIndex := IndexBookInvoices(books)

	jobs := make(chan models.GSTR2ASection)
	outcomes := make(chan sectionOutcome)

	var wg sync.WaitGroup
	for w := 0; w < r.workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for section := range jobs {
				outcomes <- r.reconcileSection(section, bookIndex)
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, section := range sections {
			select {
			case jobs <- section:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(outcomes)
	}()

	for outcome := range outcomes {
		result.TotalProcessed += outcome.processed
		result.FailedProcessing += outcome.failed
		result.Errors = append(result.Errors, outcome.errors...)
		for _, match := range outcome.matches {
			result.Matches = append(result.Matches, match)
			result.MatchTypeCounts[match.MatchType]++
			result.StatusCounts[match.Status]++
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result.CompletedAt = time.Now()
	return result, nil
}

// reconcileSection processes one supplier section. A malformed supplier GSTIN
// fails every invoice in the section; a malformed invoice fails only itself.
func (r *BatchReconciler) reconcileSection(section models.GSTR2ASection, bookIndex map[string]*models.PurchaseInvoice) sectionOutcome {
	outcome := sectionOutcome{}

	if err := common.ValidateGSTIN(section.SupplierGSTIN, "supplier GSTIN"); err != nil {
		outcome.processed += len(section.Invoices)
		outcome.failed += len(section.Invoices)
		outcome.errors = append(outcome.errors,
			fmt.Sprintf("supplier %q: invalid GSTIN, %d invoices skipped", section.SupplierGSTIN, len(section.Invoices)))
		return outcome
	}

	for _, flat := range FlattenSections([]models.GSTR2ASection{section}) {
		outcome.processed++

		inv := flat.Invoice
		if inv.InvoiceNumber == "" {
			outcome.failed++
			outcome.errors = append(outcome.errors,
				fmt.Sprintf("supplier %s: invoice with empty invoice number skipped", section.SupplierGSTIN))
			continue
		}
		if inv.InvoiceDate.IsZero() {
			outcome.failed++
			outcome.errors = append(outcome.errors,
				fmt.Sprintf("supplier %s invoice %s: unparseable invoice date %q skipped",
					section.SupplierGSTIN, inv.InvoiceNumber, inv.InvoiceDateText))
			continue
		}
		if !inv.DeclaredValue.IsPositive() {
			outcome.failed++
			outcome.errors = append(outcome.errors,
				fmt.Sprintf("supplier %s invoice %s: declared value must be positive, got %s",
					section.SupplierGSTIN, inv.InvoiceNumber, inv.DeclaredValue.String()))
			continue
		}

		candidate := bookIndex[models.MatchKey(inv.SupplierGSTIN, inv.InvoiceNumber)]
		outcome.matches = append(outcome.matches, MatchInvoice(inv, candidate, r.policy))
	}

	return outcome
}
