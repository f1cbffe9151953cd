package workers

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dealscope/valuation-engine/internal/engine"
	"github.com/dealscope/valuation-engine/internal/models"
	"github.com/dealscope/valuation-engine/internal/notify"
	"github.com/dealscope/valuation-engine/internal/scheduler"
	"github.com/dealscope/valuation-engine/pkg/logger"
	"github.com/dealscope/valuation-engine/pkg/metrics"
)

// ListingSource loads listing snapshots for evaluation.
type ListingSource interface {
	GetSnapshot(ctx context.Context, listingID uuid.UUID) (*models.ListingSnapshot, error)
}

// RulesetSource loads the ruleset state an evaluation pass runs against.
type RulesetSource interface {
	ActiveRulesets(ctx context.Context) ([]models.Ruleset, error)
}

// OverrideSource loads the per-listing override layer.
type OverrideSource interface {
	ListForListing(ctx context.Context, listingID uuid.UUID) ([]models.ValuationOverride, error)
}

// BreakdownStore persists an evaluation result. SaveWithPrice must write
// the breakdown and the listing's adjusted price atomically, so a
// partial failure never leaves the two out of sync.
type BreakdownStore interface {
	SaveWithPrice(ctx context.Context, breakdown *models.EvaluationBreakdown) error
}

// RecalcWorkerPool drains the recalculation queue with a fixed pool of
// workers. Each job holds a per-listing try-lock for its duration so
// two workers never evaluate the same listing concurrently; contended
// jobs are deferred back to the scheduler instead of blocking a worker.
type RecalcWorkerPool struct {
	scheduler  *scheduler.Scheduler
	locks      *scheduler.ListingLocks
	listings   ListingSource
	rulesets   RulesetSource
	overrides  OverrideSource
	breakdowns BreakdownStore
	publisher  notify.Publisher
	aggregator *engine.Aggregator
	logger     *logger.Logger
	metrics    *metrics.Metrics

	workers       int
	listingBudget time.Duration

	stopCh chan struct{}
	doneCh chan struct{}
	wg     sync.WaitGroup
}

// NewRecalcWorkerPool creates a worker pool.
func NewRecalcWorkerPool(
	sched *scheduler.Scheduler,
	listings ListingSource,
	rulesets RulesetSource,
	overrides OverrideSource,
	breakdowns BreakdownStore,
	publisher notify.Publisher,
	log *logger.Logger,
	m *metrics.Metrics,
	workers int,
	listingBudget time.Duration,
) *RecalcWorkerPool {
	if workers <= 0 {
		workers = 4
	}
	if listingBudget <= 0 {
		listingBudget = 5 * time.Second
	}

	return &RecalcWorkerPool{
		scheduler:     sched,
		locks:         scheduler.NewListingLocks(),
		listings:      listings,
		rulesets:      rulesets,
		overrides:     overrides,
		breakdowns:    breakdowns,
		publisher:     publisher,
		aggregator:    engine.NewAggregator(),
		logger:        log,
		metrics:       m,
		workers:       workers,
		listingBudget: listingBudget,
		stopCh:        make(chan struct{}),
		doneCh:        make(chan struct{}),
	}
}

// Start launches the worker goroutines.
func (p *RecalcWorkerPool) Start(ctx context.Context) {
	p.logger.Info("Starting recalculation worker pool",
		logger.Int("workers", p.workers),
		logger.Duration("listing_budget", p.listingBudget),
	)

	workerCtx, cancel := context.WithCancel(ctx)

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.run(workerCtx)
	}

	go func() {
		defer close(p.doneCh)
		<-p.stopCh
		cancel()
		p.wg.Wait()
	}()
}

// Stop stops the pool gracefully, waiting for in-flight jobs.
func (p *RecalcWorkerPool) Stop() {
	p.logger.Info("Stopping recalculation worker pool")
	close(p.stopCh)
	<-p.doneCh
	p.logger.Info("Recalculation worker pool stopped")
}

// run is one worker's dequeue loop.
func (p *RecalcWorkerPool) run(ctx context.Context) {
	defer p.wg.Done()

	for {
		job, err := p.scheduler.Dequeue(ctx)
		if err != nil {
			return
		}
		p.processJob(ctx, job)
	}
}

// processJob runs one recalculation job end to end and settles its
// status.
func (p *RecalcWorkerPool) processJob(ctx context.Context, job *models.RecalculationJob) {
	start := time.Now()
	job.Status = models.JobStatusRunning

	err := p.runJob(ctx, job)
	switch {
	case err == nil:
		job.Status = models.JobStatusCompleted
		p.recordJob(string(models.JobStatusCompleted), start)
	case errors.Is(err, engine.ErrLockContention):
		// Another worker holds this listing; park the job for the sweep
		// rather than blocking the pool.
		job.Status = models.JobStatusPending
		if p.metrics != nil {
			p.metrics.LockContentions.Inc()
		}
		p.scheduler.Defer(job, "lock_contention")
		p.recordJob("deferred", start)
	case errors.Is(err, engine.ErrVersionStale):
		// Re-enqueue once; on the second staleness hit the evaluation
		// already proceeded, so this branch is only reached once.
		job.Status = models.JobStatusRetried
		p.recordJob(string(models.JobStatusRetried), start)
	case errors.Is(err, engine.ErrUnknownListing):
		job.Status = models.JobStatusFailed
		p.logger.Warn("Dropping job for unknown listing",
			logger.String("listing_id", job.ListingID.String()),
		)
		p.recordJob(models.FailureUnknownListing, start)
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, engine.ErrEvaluationTimeout):
		// The previous adjusted price stays in place; nothing was
		// persisted.
		job.Status = models.JobStatusFailed
		p.logger.Error("Evaluation exceeded listing budget",
			logger.String("listing_id", job.ListingID.String()),
			logger.Duration("budget", p.listingBudget),
		)
		p.recordJob(models.FailureEvaluationTimeout, start)
	default:
		job.Status = models.JobStatusPending
		p.logger.WithError(err).Error("Recalculation job failed",
			logger.String("listing_id", job.ListingID.String()),
			logger.Any("reasons", job.Reasons),
		)
		p.scheduler.Defer(job, models.FailurePersistence)
		p.recordJob(models.FailurePersistence, start)
	}
}

// runJob takes the per-listing lock and runs the evaluation under the
// listing budget.
func (p *RecalcWorkerPool) runJob(ctx context.Context, job *models.RecalculationJob) error {
	release, acquired := p.locks.TryAcquire(job.ListingID)
	if !acquired {
		return engine.ErrLockContention
	}
	defer release()

	jobCtx, cancel := context.WithTimeout(ctx, p.listingBudget)
	defer cancel()

	return p.evaluate(jobCtx, job)
}

// evaluate loads state, checks staleness, runs the pure evaluation
// pass under the listing budget, persists, and publishes.
func (p *RecalcWorkerPool) evaluate(ctx context.Context, job *models.RecalculationJob) error {
	snapshot, err := p.listings.GetSnapshot(ctx, job.ListingID)
	if err != nil {
		return err
	}

	rulesets, err := p.rulesets.ActiveRulesets(ctx)
	if err != nil {
		return err
	}

	// Staleness guard: if the loaded ruleset state is older than the
	// versions captured at enqueue time, the read lagged the write that
	// triggered this job. Re-enqueue once; a job that already used its
	// retry evaluates against what it has to avoid livelock under rapid
	// edits.
	if stale(rulesets, job.Versions) && p.scheduler.Requeue(job) {
		return engine.ErrVersionStale
	}

	overrideRows, err := p.overrides.ListForListing(ctx, job.ListingID)
	if err != nil {
		return err
	}
	overrides := models.NewOverrideSet(overrideRows)

	breakdown, err := p.runEvaluation(ctx, *snapshot, rulesets, overrides)
	if err != nil {
		return err
	}

	if err := p.breakdowns.SaveWithPrice(ctx, breakdown); err != nil {
		return err
	}

	event := models.CompletionEvent{
		ListingID:       breakdown.ListingID,
		RulesFiredCount: breakdown.RulesFired(),
		AdjustedPrice:   breakdown.AdjustedPrice,
	}
	if err := p.publisher.PublishCompletion(ctx, event); err != nil {
		// Best effort: the recalculation already committed.
		p.logger.WithError(err).Warn("Failed to publish completion event",
			logger.String("listing_id", job.ListingID.String()),
		)
	}

	p.logger.Info("Listing recalculated",
		logger.String("listing_id", job.ListingID.String()),
		logger.Float64("adjusted_price", breakdown.AdjustedPrice),
		logger.Int("rules_fired", event.RulesFiredCount),
		logger.Any("reasons", job.Reasons),
	)
	return nil
}

// runEvaluation executes the pure evaluation pass in a goroutine so the
// listing budget can interrupt pathological rule trees.
func (p *RecalcWorkerPool) runEvaluation(
	ctx context.Context,
	snapshot models.ListingSnapshot,
	rulesets []models.Ruleset,
	overrides *models.OverrideSet,
) (*models.EvaluationBreakdown, error) {
	evalStart := time.Now()
	resultCh := make(chan *models.EvaluationBreakdown, 1)

	go func() {
		resultCh <- p.aggregator.EvaluateListing(snapshot, rulesets, overrides)
	}()

	select {
	case <-ctx.Done():
		if p.metrics != nil {
			p.metrics.EvaluationsTotal.WithLabelValues("timeout").Inc()
		}
		return nil, engine.ErrEvaluationTimeout
	case breakdown := <-resultCh:
		if p.metrics != nil {
			p.metrics.EvaluationsTotal.WithLabelValues("ok").Inc()
			p.metrics.EvaluationDuration.Observe(time.Since(evalStart).Seconds())
			p.metrics.RulesFired.Observe(float64(breakdown.RulesFired()))
			if n := len(breakdown.Entries); n > 0 && breakdown.Entries[n-1].Reason == models.EntryReasonClamped {
				p.metrics.ClampedListings.Inc()
			}
		}
		return breakdown, nil
	}
}

// stale reports whether the loaded ruleset state lags the versions the
// job captured at enqueue time.
func stale(rulesets []models.Ruleset, captured models.RulesetVersions) bool {
	if len(captured) == 0 {
		return false
	}
	loaded := make(models.RulesetVersions, len(rulesets))
	for i := range rulesets {
		loaded[rulesets[i].ID] = rulesets[i].Version
	}
	for id, version := range captured {
		if current, ok := loaded[id]; ok && current < version {
			return true
		}
	}
	return false
}

func (p *RecalcWorkerPool) recordJob(status string, start time.Time) {
	if p.metrics == nil {
		return
	}
	p.metrics.WorkerJobsProcessed.WithLabelValues(status).Inc()
	p.metrics.WorkerJobDuration.Observe(time.Since(start).Seconds())
}
