package analytics

import (
	"context"
	"errors"
	"log"
	"sort"
	"time"

	"gstrecon/internal/caching"
	"gstrecon/internal/models"
	"gstrecon/internal/repositories"

	"github.com/google/uuid"
)

const summaryCacheTTL = 15 * time.Minute

// AnalyticsService aggregates persisted match rows into the per-period and
// per-vendor dashboard views, with a cache-aside layer in front of Postgres.
type AnalyticsService struct {
	reconRepo    repositories.ReconciliationRepository
	vendorRepo   repositories.VendorRepository
	cacheService caching.CacheService
}

func NewAnalyticsService(reconRepo repositories.ReconciliationRepository, vendorRepo repositories.VendorRepository, cacheService caching.CacheService) *AnalyticsService {
	return &AnalyticsService{
		reconRepo:    reconRepo,
		vendorRepo:   vendorRepo,
		cacheService: cacheService,
	}
}

// PeriodSummary returns the reconciliation summary for the latest run of a
// (user, period). Cache misses fall through to recomputation from match rows.
func (a *AnalyticsService) PeriodSummary(ctx context.Context, userID uuid.UUID, period string) (*models.ReconciliationSummary, error) {
	if a.cacheService != nil {
		cached, err := a.cacheService.GetSummary(ctx, userID, period)
		if err == nil {
			return cached, nil
		}
		if !errors.Is(err, caching.ErrCacheMiss) {
			log.Printf("summary cache read failed for %s/%s: %v", userID, period, err)
		}
	}

	run, err := a.reconRepo.LatestRun(ctx, userID, period)
	if err != nil {
		return nil, err
	}
	rows, err := a.reconRepo.ListMatchRows(ctx, run.ID)
	if err != nil {
		return nil, err
	}

	summary := a.buildSummary(userID, period, run, rows)

	if a.cacheService != nil {
		if err := a.cacheService.SetSummary(ctx, summary, summaryCacheTTL); err != nil {
			log.Printf("summary cache write failed for %s/%s: %v", userID, period, err)
		}
	}
	return summary, nil
}

func (a *AnalyticsService) buildSummary(userID uuid.UUID, period string, run *repositories.ReconRun, rows []repositories.MatchRow) *models.ReconciliationSummary {
	summary := &models.ReconciliationSummary{
		UserID:           userID,
		Period:           period,
		LastReconciledAt: run.CompletedAt,
	}

	bookSeen := make(map[string]bool)
	for _, row := range rows {
		switch row.Status {
		case models.StatusMissingInGSTR2A:
			// book-only row, no authority counterpart
		default:
			summary.TotalAuthorityInvoices++
		}
		if row.Status != models.StatusMissingInBooks {
			if !bookSeen[row.MatchID] {
				bookSeen[row.MatchID] = true
				summary.TotalBookInvoices++
			}
		}

		switch row.Status {
		case models.StatusMatched:
			summary.Matched++
			if row.ITCEligible {
				summary.MatchedITCValue = summary.MatchedITCValue.Add(row.BookTax)
			} else {
				summary.IneligibleITCValue = summary.IneligibleITCValue.Add(row.BookTax)
			}
		case models.StatusMismatched:
			summary.Mismatched++
			// mismatched credit stays claimable-but-unresolved, so it counts
			// toward pending review exposure as well
			summary.PendingReview++
			summary.PendingITCValue = summary.PendingITCValue.Add(row.BookTax)
		case models.StatusPendingReview:
			summary.PendingReview++
			summary.PendingITCValue = summary.PendingITCValue.Add(row.BookTax)
		case models.StatusMissingInBooks:
			summary.MissingInBooks++
		case models.StatusMissingInGSTR2A:
			summary.MissingInGSTR2A++
		}

		switch row.MatchType {
		case models.MatchTypeExact:
			summary.ExactMatches++
		case models.MatchTypePartial:
			summary.PartialMatches++
		case models.MatchTypeFuzzy:
			summary.FuzzyMatches++
		case models.MatchTypeNoMatch:
			summary.NoMatches++
		}
	}

	return summary
}

// VendorSummaries returns the per-vendor rollup for the latest run, enriched
// with vendor-master names where available.
func (a *AnalyticsService) VendorSummaries(ctx context.Context, userID uuid.UUID, period string) ([]models.VendorReconciliation, error) {
	if a.cacheService != nil {
		cached, err := a.cacheService.GetVendorSummaries(ctx, userID, period)
		if err == nil {
			return cached, nil
		}
		if !errors.Is(err, caching.ErrCacheMiss) {
			log.Printf("vendor cache read failed for %s/%s: %v", userID, period, err)
		}
	}

	run, err := a.reconRepo.LatestRun(ctx, userID, period)
	if err != nil {
		return nil, err
	}
	rows, err := a.reconRepo.ListMatchRows(ctx, run.ID)
	if err != nil {
		return nil, err
	}

	names := make(map[string]string)
	vendors, err := a.vendorRepo.ListByUser(ctx, userID)
	if err != nil {
		// vendor master is enrichment only; rollup still works without names
		log.Printf("vendor lookup failed for %s: %v", userID, err)
	} else {
		for _, v := range vendors {
			names[v.GSTIN] = v.Name
		}
	}

	byVendor := make(map[string]*models.VendorReconciliation)
	for _, row := range rows {
		vr := byVendor[row.VendorGSTIN]
		if vr == nil {
			vr = &models.VendorReconciliation{
				VendorGSTIN: row.VendorGSTIN,
				VendorName:  names[row.VendorGSTIN],
			}
			byVendor[row.VendorGSTIN] = vr
		}
		vr.TotalInvoices++
		vr.AuthorityValue = vr.AuthorityValue.Add(row.AuthorityValue)
		vr.BookValue = vr.BookValue.Add(row.BookValue)

		switch row.Status {
		case models.StatusMatched:
			vr.Matched++
		case models.StatusMismatched:
			vr.Mismatched++
		case models.StatusPendingReview:
			vr.PendingReview++
		case models.StatusMissingInBooks, models.StatusMissingInGSTR2A:
			vr.Missing++
		}
	}

	result := make([]models.VendorReconciliation, 0, len(byVendor))
	for _, vr := range byVendor {
		result = append(result, *vr)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].VendorGSTIN < result[j].VendorGSTIN
	})

	if a.cacheService != nil {
		if err := a.cacheService.SetVendorSummaries(ctx, userID, period, result, summaryCacheTTL); err != nil {
			log.Printf("vendor cache write failed for %s/%s: %v", userID, period, err)
		}
	}
	return result, nil
}
