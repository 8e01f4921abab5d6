package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"gstrecon/internal/analytics"
	"gstrecon/internal/caching"
	"gstrecon/internal/common"
	"gstrecon/internal/matching"
	"gstrecon/internal/models"
	"gstrecon/internal/repositories"

	"github.com/google/uuid"
)

const (
	// DefaultMaxBatchRecords caps one reconciliation run. Larger periods must
	// be split by the caller.
	DefaultMaxBatchRecords = 50000

	reportURLExpiry = 24 * time.Hour
	// cached well under the presign expiry so a cached link is always live
	reportURLCacheTTL = time.Hour
	systemActor       = "system"
)

func reportURLCacheKey(userID uuid.UUID, period string) string {
	return fmt.Sprintf("recon:reporturl:%s:%s", userID, period)
}

// ErrBatchTooLarge is returned when a staged period exceeds the configured
// per-run record cap.
var ErrBatchTooLarge = errors.New("staged batch exceeds maximum records per run")

// ImportResult reports what an authority batch import staged.
type ImportResult struct {
	UserID   uuid.UUID `json:"user_id"`
	Period   string    `json:"period"`
	Sections int       `json:"sections"`
	Invoices int       `json:"invoices"`
}

// gstr2aPayload is the wire shape of an uploaded authority export.
type gstr2aPayload struct {
	Sections []models.GSTR2ASection `json:"sections"`
}

type ReconciliationService interface {
	ImportGSTR2A(ctx context.Context, userID uuid.UUID, period string, payload []byte) (*ImportResult, error)
	ReconcilePeriod(ctx context.Context, userID uuid.UUID, period string, policy *models.MatchingPolicy) (*models.ReconciliationProcessResult, error)
	Summary(ctx context.Context, userID uuid.UUID, period string) (*models.ReconciliationSummary, error)
	VendorSummaries(ctx context.Context, userID uuid.UUID, period string) ([]models.VendorReconciliation, error)
	Mismatches(ctx context.Context, userID uuid.UUID, period string) (*models.MismatchSurveyResult, error)
	Actions(ctx context.Context, userID uuid.UUID, period string) ([]models.ReconciliationAction, error)
	ReportURL(ctx context.Context, userID uuid.UUID, period string) (string, error)
}

type reconciliationService struct {
	gstr2aRepo      repositories.GSTR2ARepository
	purchaseRepo    repositories.PurchaseInvoiceRepository
	reconRepo       repositories.ReconciliationRepository
	analytics       *analytics.AnalyticsService
	reportArchive   ReportArchiveService
	cacheService    caching.CacheService
	maxBatchRecords int
	workers         int
}

func NewReconciliationService(
	gstr2aRepo repositories.GSTR2ARepository,
	purchaseRepo repositories.PurchaseInvoiceRepository,
	reconRepo repositories.ReconciliationRepository,
	analyticsService *analytics.AnalyticsService,
	reportArchive ReportArchiveService,
	cacheService caching.CacheService,
	maxBatchRecords int,
	workers int,
) ReconciliationService {
	if maxBatchRecords <= 0 {
		maxBatchRecords = DefaultMaxBatchRecords
	}
	return &reconciliationService{
		gstr2aRepo:      gstr2aRepo,
		purchaseRepo:    purchaseRepo,
		reconRepo:       reconRepo,
		analytics:       analyticsService,
		reportArchive:   reportArchive,
		cacheService:    cacheService,
		maxBatchRecords: maxBatchRecords,
		workers:         workers,
	}
}

// ImportGSTR2A parses and stages one authority export for a (user, period).
// A structurally broken payload is the single fatal import error; per-invoice
// quality problems are left for the reconciliation run to accumulate.
func (s *reconciliationService) ImportGSTR2A(ctx context.Context, userID uuid.UUID, period string, payload []byte) (*ImportResult, error) {
	if err := common.ValidatePeriod(period, "period"); err != nil {
		return nil, err
	}

	var parsed gstr2aPayload
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse GSTR-2A payload: %w", err)
	}
	if len(parsed.Sections) == 0 {
		return nil, errors.New("GSTR-2A payload contains no supplier sections")
	}

	invoices := 0
	for i := range parsed.Sections {
		parsed.Sections[i].FiscalPeriod = period
		invoices += len(parsed.Sections[i].Invoices)
	}
	if invoices > s.maxBatchRecords {
		return nil, fmt.Errorf("%w: %d records, cap %d", ErrBatchTooLarge, invoices, s.maxBatchRecords)
	}

	if err := s.gstr2aRepo.ReplaceSections(ctx, userID, period, parsed.Sections); err != nil {
		return nil, common.SecureErrorMessage("stage GSTR-2A batch", err)
	}

	return &ImportResult{
		UserID:   userID,
		Period:   period,
		Sections: len(parsed.Sections),
		Invoices: invoices,
	}, nil
}

// ReconcilePeriod runs the full pipeline for a staged period: match, survey,
// derive actions, persist the run in one transaction, archive the complete
// report, then drop stale dashboard cache entries.
func (s *reconciliationService) ReconcilePeriod(ctx context.Context, userID uuid.UUID, period string, policy *models.MatchingPolicy) (*models.ReconciliationProcessResult, error) {
	if err := common.ValidatePeriod(period, "period"); err != nil {
		return nil, err
	}

	effective := models.DefaultMatchingPolicy()
	if policy != nil {
		effective = *policy
	}
	if err := effective.Validate(); err != nil {
		return nil, fmt.Errorf("invalid matching policy: %w", err)
	}

	staged, err := s.gstr2aRepo.CountInvoices(ctx, userID, period)
	if err != nil {
		return nil, common.SecureErrorMessage("count staged invoices", err)
	}
	if staged == 0 {
		return nil, fmt.Errorf("no staged GSTR-2A data for period %s", period)
	}
	if staged > s.maxBatchRecords {
		return nil, fmt.Errorf("%w: %d records, cap %d", ErrBatchTooLarge, staged, s.maxBatchRecords)
	}

	sections, err := s.gstr2aRepo.ListSections(ctx, userID, period)
	if err != nil {
		return nil, common.SecureErrorMessage("load staged sections", err)
	}

	from, to, err := common.PeriodRange(period)
	if err != nil {
		return nil, err
	}
	books, err := s.purchaseRepo.ListByUserAndDateRange(ctx, userID, from, to)
	if err != nil {
		return nil, common.SecureErrorMessage("load purchase invoices", err)
	}

	reconciler := matching.NewBatchReconciler(effective, s.workers)
	result, err := reconciler.Reconcile(ctx, sections, books)
	if err != nil {
		return nil, err
	}
	result.UserID = userID
	result.Period = period

	survey := matching.Survey(userID, period, sections, books)
	appendBookOnlyMatches(result, survey)
	matching.DeriveActions(result, effective, systemActor)

	if err := s.reconRepo.SaveRun(ctx, result, survey); err != nil {
		return nil, common.SecureErrorMessage("persist reconciliation run", err)
	}

	if s.reportArchive != nil {
		if _, err := s.reportArchive.ArchiveRun(ctx, result, survey); err != nil {
			// the database row is the source of truth; a failed archive is
			// recoverable by re-uploading from it
			log.Printf("failed to archive run %s report: %v", result.RunID, err)
		}
	}
	if s.cacheService != nil {
		if err := s.cacheService.InvalidatePeriod(ctx, userID, period); err != nil {
			log.Printf("failed to invalidate cache for %s/%s: %v", userID, period, err)
		}
		// a cached report link now points at the superseded run
		if err := s.cacheService.Delete(ctx, reportURLCacheKey(userID, period)); err != nil {
			log.Printf("failed to drop cached report link for %s/%s: %v", userID, period, err)
		}
	}

	return result, nil
}

// appendBookOnlyMatches folds the survey's missing-in-GSTR2A records into the
// run result so the persisted rows cover both sides of the period.
func appendBookOnlyMatches(result *models.ReconciliationProcessResult, survey *models.MismatchSurveyResult) {
	for i := range survey.MissingInGSTR2A {
		book := &survey.MissingInGSTR2A[i]
		match := models.MatchResult{
			ID:        models.MatchKey(book.VendorGSTIN, book.InvoiceNumber),
			Book:      book,
			Score:     0,
			MatchType: models.MatchTypeNoMatch,
			Status:    models.StatusMissingInGSTR2A,
			MatchedAt: result.CompletedAt,
		}
		result.Matches = append(result.Matches, match)
		result.MatchTypeCounts[match.MatchType]++
		result.StatusCounts[match.Status]++
	}
}

func (s *reconciliationService) Summary(ctx context.Context, userID uuid.UUID, period string) (*models.ReconciliationSummary, error) {
	if err := common.ValidatePeriod(period, "period"); err != nil {
		return nil, err
	}
	return s.analytics.PeriodSummary(ctx, userID, period)
}

func (s *reconciliationService) VendorSummaries(ctx context.Context, userID uuid.UUID, period string) ([]models.VendorReconciliation, error) {
	if err := common.ValidatePeriod(period, "period"); err != nil {
		return nil, err
	}
	return s.analytics.VendorSummaries(ctx, userID, period)
}

func (s *reconciliationService) Mismatches(ctx context.Context, userID uuid.UUID, period string) (*models.MismatchSurveyResult, error) {
	if err := common.ValidatePeriod(period, "period"); err != nil {
		return nil, err
	}
	run, err := s.reconRepo.LatestRun(ctx, userID, period)
	if err != nil {
		return nil, err
	}
	return s.reconRepo.GetSurvey(ctx, run.ID)
}

func (s *reconciliationService) Actions(ctx context.Context, userID uuid.UUID, period string) ([]models.ReconciliationAction, error) {
	if err := common.ValidatePeriod(period, "period"); err != nil {
		return nil, err
	}
	run, err := s.reconRepo.LatestRun(ctx, userID, period)
	if err != nil {
		return nil, err
	}
	return s.reconRepo.ListActions(ctx, run.ID)
}

func (s *reconciliationService) ReportURL(ctx context.Context, userID uuid.UUID, period string) (string, error) {
	if err := common.ValidatePeriod(period, "period"); err != nil {
		return "", err
	}
	if s.cacheService != nil {
		if url, err := s.cacheService.GetString(ctx, reportURLCacheKey(userID, period)); err == nil {
			return url, nil
		}
	}

	run, err := s.reconRepo.LatestRun(ctx, userID, period)
	if err != nil {
		return "", err
	}
	if s.reportArchive == nil {
		return "", errors.New("report archive is not configured")
	}
	url, err := s.reportArchive.GetReportURL(userID, period, run.ID, reportURLExpiry)
	if err != nil {
		return "", err
	}
	if s.cacheService != nil {
		if err := s.cacheService.SetString(ctx, reportURLCacheKey(userID, period), url, reportURLCacheTTL); err != nil {
			log.Printf("failed to cache report link for %s/%s: %v", userID, period, err)
		}
	}
	return url, nil
}
