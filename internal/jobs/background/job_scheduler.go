package background

import (
	"context"
	"log"
	"sync"
	"time"

	"gstrecon/internal/analytics"
	"gstrecon/internal/repositories"
	"gstrecon/internal/services"

	"github.com/go-co-op/gocron/v2"
)

// JobScheduler manages the recurring background jobs: the nightly
// auto-reconcile sweep over staged periods and the dashboard cache warmer.
type JobScheduler struct {
	scheduler    gocron.Scheduler
	reconService services.ReconciliationService
	analyticsSvc *analytics.AnalyticsService
	gstr2aRepo   repositories.GSTR2ARepository
	reconRepo    repositories.ReconciliationRepository
	jobs         map[string]gocron.Job
	mu           sync.RWMutex
}

func NewJobScheduler(reconService services.ReconciliationService, analyticsSvc *analytics.AnalyticsService, gstr2aRepo repositories.GSTR2ARepository, reconRepo repositories.ReconciliationRepository) (*JobScheduler, error) {
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}

	js := &JobScheduler{
		scheduler:    scheduler,
		reconService: reconService,
		analyticsSvc: analyticsSvc,
		gstr2aRepo:   gstr2aRepo,
		reconRepo:    reconRepo,
		jobs:         make(map[string]gocron.Job),
	}

	js.registerJobs()
	return js, nil
}

// Start starts the job scheduler.
func (js *JobScheduler) Start() error {
	log.Printf("Starting background job scheduler")
	js.scheduler.Start()
	return nil
}

// Stop stops the job scheduler.
func (js *JobScheduler) Stop() error {
	log.Printf("Stopping background job scheduler")
	return js.scheduler.Shutdown()
}

func (js *JobScheduler) registerJobs() {
	// Auto-reconcile sweep at 02:30 IST, after the authority's nightly
	// publication window
	autoReconcileJob, err := js.scheduler.NewJob(
		gocron.DailyJob(1, gocron.NewAtTimes(gocron.NewAtTime(2, 30, 0))),
		gocron.NewTask(js.autoReconcileStagedPeriods),
		gocron.WithName("auto-reconcile"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		log.Printf("Failed to create auto-reconcile job: %v", err)
	} else {
		js.jobs["auto-reconcile"] = autoReconcileJob
	}

	// Dashboard cache warmer - every 10 minutes
	cacheWarmJob, err := js.scheduler.NewJob(
		gocron.DurationJob(10*time.Minute),
		gocron.NewTask(js.warmSummaryCache),
		gocron.WithName("summary-cache-warm"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		log.Printf("Failed to create cache warm job: %v", err)
	} else {
		js.jobs["summary-cache-warm"] = cacheWarmJob
	}

	log.Printf("Registered %d background jobs", len(js.jobs))
}

// autoReconcileStagedPeriods runs reconciliation with the default policy for
// every staged (user, period) that has no run yet. Per-period failures are
// logged and skipped so one bad batch never blocks the sweep.
func (js *JobScheduler) autoReconcileStagedPeriods() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	staged, err := js.gstr2aRepo.ListUnreconciledPeriods(ctx)
	if err != nil {
		log.Printf("Auto-reconcile: failed to list staged periods: %v", err)
		return
	}
	if len(staged) == 0 {
		return
	}

	log.Printf("Auto-reconcile: %d staged periods pending", len(staged))
	for _, p := range staged {
		result, err := js.reconService.ReconcilePeriod(ctx, p.UserID, p.Period, nil)
		if err != nil {
			log.Printf("Auto-reconcile failed for %s/%s: %v", p.UserID, p.Period, err)
			continue
		}
		log.Printf("Auto-reconcile completed for %s/%s: run %s, %d processed, %d failed",
			p.UserID, p.Period, result.RunID, result.TotalProcessed, result.FailedProcessing)
	}
}

// warmSummaryCache recomputes summaries for periods reconciled in the last
// day so dashboard reads stay cache-hot.
func (js *JobScheduler) warmSummaryCache() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	runs, err := js.reconRepo.ListRecentRuns(ctx, time.Now().Add(-24*time.Hour))
	if err != nil {
		log.Printf("Cache warm: failed to list recent runs: %v", err)
		return
	}

	warmed := 0
	for _, run := range runs {
		if _, err := js.analyticsSvc.PeriodSummary(ctx, run.UserID, run.Period); err != nil {
			log.Printf("Cache warm failed for %s/%s: %v", run.UserID, run.Period, err)
			continue
		}
		warmed++
	}
	if warmed > 0 {
		log.Printf("Cache warm: refreshed %d period summaries", warmed)
	}
}

// JobNames returns the registered job names, for the health endpoint.
func (js *JobScheduler) JobNames() []string {
	js.mu.RLock()
	defer js.mu.RUnlock()
	names := make([]string, 0, len(js.jobs))
	for name := range js.jobs {
		names = append(names, name)
	}
	return names
}
