package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/dealscope/valuation-engine/internal/models"
	"github.com/dealscope/valuation-engine/pkg/logger"
	"github.com/dealscope/valuation-engine/pkg/metrics"
)

const (
	defaultQueueCapacity = 4096
	defaultMaxAttempts   = 3
)

// Scheduler computes the minimal set of listings affected by a change
// event and enqueues deduplicated re-evaluation work. While a listing's
// job is pending, further triggers merge into it instead of enqueuing a
// duplicate, so worst-case enqueue volume is bounded by catalog size,
// not event volume.
type Scheduler struct {
	rulesets  RulesetSource
	index     CandidateIndex
	overrides OverrideLister
	logger    *logger.Logger
	metrics   *metrics.Metrics

	mu      sync.Mutex
	pending map[uuid.UUID]*models.RecalculationJob
	queue   chan uuid.UUID

	// deferred holds jobs parked after lock contention or a transient
	// persistence failure; the sweep re-enqueues them with bounded
	// attempts.
	deferred    []*models.RecalculationJob
	maxAttempts int

	cron *cron.Cron
}

// New creates a scheduler with the given queue capacity (0 uses the
// default).
func New(
	rulesets RulesetSource,
	index CandidateIndex,
	overrides OverrideLister,
	log *logger.Logger,
	m *metrics.Metrics,
	queueCapacity int,
) *Scheduler {
	if queueCapacity <= 0 {
		queueCapacity = defaultQueueCapacity
	}
	return &Scheduler{
		rulesets:    rulesets,
		index:       index,
		overrides:   overrides,
		logger:      log,
		metrics:     m,
		pending:     make(map[uuid.UUID]*models.RecalculationJob),
		queue:       make(chan uuid.UUID, queueCapacity),
		maxAttempts: defaultMaxAttempts,
	}
}

// OnRulesetChanged enqueues re-evaluation for every listing whose
// cached scope conditions match the edited ruleset, not the full
// catalog, unless the index had to degrade to a full scan.
func (s *Scheduler) OnRulesetChanged(ctx context.Context, rulesetID uuid.UUID, newVersion int64) error {
	ruleset, err := s.rulesets.GetByID(ctx, rulesetID)
	if err != nil {
		return fmt.Errorf("failed to load ruleset %s: %w", rulesetID, err)
	}

	reason := fmt.Sprintf("ruleset_changed:%s@v%d", rulesetID, newVersion)
	return s.fanOut(ctx, rulesetID, []*models.ConditionNode{ruleset.ScopeConditions()}, newVersion, reason)
}

// OnRulesetUpdated enqueues re-evaluation over the union of the
// ruleset's previous scope and its new one. A narrowing edit must still
// refresh the listings that just left the scope, or they keep the
// adjustments of the old version forever.
func (s *Scheduler) OnRulesetUpdated(ctx context.Context, rulesetID uuid.UUID, newVersion int64, previousScope *models.ConditionNode) error {
	ruleset, err := s.rulesets.GetByID(ctx, rulesetID)
	if err != nil {
		return fmt.Errorf("failed to load ruleset %s: %w", rulesetID, err)
	}

	reason := fmt.Sprintf("ruleset_changed:%s@v%d", rulesetID, newVersion)
	scopes := []*models.ConditionNode{ruleset.ScopeConditions(), previousScope}
	return s.fanOut(ctx, rulesetID, scopes, newVersion, reason)
}

// OnRulesetRemoved enqueues re-evaluation for the listings a deleted
// ruleset used to cover, using the scope captured before deletion.
func (s *Scheduler) OnRulesetRemoved(ctx context.Context, ruleset *models.Ruleset) error {
	reason := fmt.Sprintf("ruleset_removed:%s", ruleset.ID)
	return s.fanOut(ctx, ruleset.ID, []*models.ConditionNode{ruleset.ScopeConditions()}, 0, reason)
}

// fanOut enqueues jobs for every listing any of the given scopes
// covers, plus the listings holding overrides against the ruleset.
func (s *Scheduler) fanOut(ctx context.Context, rulesetID uuid.UUID, scopes []*models.ConditionNode, newVersion int64, reason string) error {
	seen := make(map[uuid.UUID]struct{})
	var candidates []uuid.UUID
	anyDegraded := false

	for _, scope := range scopes {
		ids, degraded, err := s.index.Candidates(ctx, scope)
		if err != nil {
			return fmt.Errorf("failed to compute affected listings: %w", err)
		}
		anyDegraded = anyDegraded || degraded
		for _, id := range ids {
			if _, ok := seen[id]; !ok {
				seen[id] = struct{}{}
				candidates = append(candidates, id)
			}
		}
		// A full scan already covers every listing; further scopes and
		// the override lookup add nothing.
		if degraded {
			break
		}
	}

	if s.overrides != nil && !anyDegraded {
		ids, err := s.overrides.ListingsWithOverrides(ctx, rulesetID)
		if err != nil {
			return fmt.Errorf("failed to list overridden listings: %w", err)
		}
		for _, id := range ids {
			if _, ok := seen[id]; !ok {
				seen[id] = struct{}{}
				candidates = append(candidates, id)
			}
		}
	}

	if anyDegraded {
		s.logger.Warn("Candidate index degraded to full scan",
			logger.String("ruleset_id", rulesetID.String()),
		)
		if s.metrics != nil {
			s.metrics.IndexFullScans.Inc()
		}
	}

	versions, err := s.rulesets.ActiveVersions(ctx)
	if err != nil {
		return fmt.Errorf("failed to capture ruleset versions: %w", err)
	}
	if newVersion > versions[rulesetID] {
		versions[rulesetID] = newVersion
	}

	for _, listingID := range candidates {
		s.enqueue(listingID, reason, versions)
	}

	s.logger.Info("Ruleset change scheduled",
		logger.String("ruleset_id", rulesetID.String()),
		logger.String("reason", reason),
		logger.Int("affected_listings", len(candidates)),
		logger.Bool("degraded_scan", anyDegraded),
	)
	return nil
}

// OnListingComponentsChanged enqueues re-evaluation for a single
// listing after a price or component edit.
func (s *Scheduler) OnListingComponentsChanged(ctx context.Context, listingID uuid.UUID) error {
	versions, err := s.rulesets.ActiveVersions(ctx)
	if err != nil {
		return fmt.Errorf("failed to capture ruleset versions: %w", err)
	}
	s.enqueue(listingID, "listing_components_changed", versions)
	return nil
}

// enqueue adds or merges a job for one listing.
func (s *Scheduler) enqueue(listingID uuid.UUID, reason string, versions models.RulesetVersions) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if job, exists := s.pending[listingID]; exists {
		job.MergeTrigger(reason, versions)
		if s.metrics != nil {
			s.metrics.SchedulerMerges.Inc()
		}
		return
	}

	job := &models.RecalculationJob{
		ListingID:  listingID,
		Status:     models.JobStatusPending,
		Reasons:    []string{reason},
		Versions:   versions,
		EnqueuedAt: time.Now(),
	}
	s.pending[listingID] = job
	s.queue <- listingID

	if s.metrics != nil {
		s.metrics.SchedulerEnqueues.Inc()
		s.metrics.SchedulerQueueDepth.Set(float64(len(s.queue)))
	}
}

// Dequeue blocks until a job is available or ctx is done. Once a job is
// handed out it is no longer pending: a new trigger for the same
// listing opens a fresh job rather than merging into the running one.
func (s *Scheduler) Dequeue(ctx context.Context) (*models.RecalculationJob, error) {
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case listingID := <-s.queue:
			s.mu.Lock()
			job := s.pending[listingID]
			delete(s.pending, listingID)
			if s.metrics != nil {
				s.metrics.SchedulerQueueDepth.Set(float64(len(s.queue)))
			}
			s.mu.Unlock()
			if job == nil {
				continue
			}
			return job, nil
		}
	}
}

// Requeue puts a version-stale job back on the queue exactly once.
// Returns false when the job already used its re-enqueue, in which case
// the caller proceeds anyway to avoid livelock under rapid edits.
func (s *Scheduler) Requeue(job *models.RecalculationJob) bool {
	if job.Requeued {
		return false
	}
	job.Requeued = true

	if s.metrics != nil {
		s.metrics.StalenessRetries.Inc()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if pending, exists := s.pending[job.ListingID]; exists {
		pending.MergeTrigger("staleness_retry", job.Versions)
		pending.Requeued = true
		return true
	}
	s.pending[job.ListingID] = job
	s.queue <- job.ListingID
	return true
}

// Defer parks a job that hit a transient failure (lock contention,
// persistence failure). The sweep re-enqueues it; attempts are bounded.
func (s *Scheduler) Defer(job *models.RecalculationJob, reason string) {
	job.Attempts++
	if job.Attempts >= s.maxAttempts {
		s.logger.Error("Dropping job after max retry attempts",
			logger.String("listing_id", job.ListingID.String()),
			logger.String("reason", reason),
			logger.Int("attempts", job.Attempts),
		)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.deferred = append(s.deferred, job)
}

// Sweep re-enqueues deferred jobs. Called periodically by cron and
// directly from tests.
func (s *Scheduler) Sweep() {
	s.mu.Lock()
	parked := s.deferred
	s.deferred = nil
	s.mu.Unlock()

	for _, job := range parked {
		s.enqueue(job.ListingID, "sweep_retry", job.Versions)
		s.mu.Lock()
		if pending, exists := s.pending[job.ListingID]; exists {
			pending.Attempts = job.Attempts
			pending.Requeued = job.Requeued
		}
		s.mu.Unlock()
	}

	if len(parked) > 0 {
		s.logger.Info("Sweep re-enqueued deferred jobs", logger.Int("count", len(parked)))
	}
}

// StartSweep schedules the periodic sweep with the given cron spec.
func (s *Scheduler) StartSweep(spec string) error {
	s.cron = cron.New()
	if _, err := s.cron.AddFunc(spec, s.Sweep); err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", spec, err)
	}
	s.cron.Start()
	s.logger.Info("Scheduler sweep started", logger.String("schedule", spec))
	return nil
}

// StopSweep stops the periodic sweep.
func (s *Scheduler) StopSweep() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
}

// PendingCount returns the number of listings with a queued job.
func (s *Scheduler) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}
