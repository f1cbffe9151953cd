package workers

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dealscope/valuation-engine/internal/engine"
	"github.com/dealscope/valuation-engine/internal/models"
	"github.com/dealscope/valuation-engine/internal/scheduler"
	"github.com/dealscope/valuation-engine/pkg/logger"
)

type stubListingSource struct {
	snapshot *models.ListingSnapshot
	err      error
}

func (s *stubListingSource) GetSnapshot(_ context.Context, _ uuid.UUID) (*models.ListingSnapshot, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.snapshot, nil
}

// stubRulesetSource serves both the scheduler and the worker pool.
type stubRulesetSource struct {
	rulesets []models.Ruleset
}

func (s *stubRulesetSource) ActiveRulesets(_ context.Context) ([]models.Ruleset, error) {
	return s.rulesets, nil
}

func (s *stubRulesetSource) GetByID(_ context.Context, id uuid.UUID) (*models.Ruleset, error) {
	for i := range s.rulesets {
		if s.rulesets[i].ID == id {
			return &s.rulesets[i], nil
		}
	}
	return nil, errors.New("not found")
}

func (s *stubRulesetSource) ActiveVersions(_ context.Context) (models.RulesetVersions, error) {
	versions := make(models.RulesetVersions, len(s.rulesets))
	for i := range s.rulesets {
		versions[s.rulesets[i].ID] = s.rulesets[i].Version
	}
	return versions, nil
}

type stubOverrideSource struct {
	// blockUntilCancel simulates a load that outlives the listing budget.
	blockUntilCancel bool
}

func (s *stubOverrideSource) ListForListing(ctx context.Context, _ uuid.UUID) ([]models.ValuationOverride, error) {
	if s.blockUntilCancel {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return nil, nil
}

type stubBreakdownStore struct {
	mu    sync.Mutex
	saved []*models.EvaluationBreakdown
	err   error
	ch    chan struct{}
}

func newStubBreakdownStore() *stubBreakdownStore {
	return &stubBreakdownStore{ch: make(chan struct{}, 16)}
}

func (s *stubBreakdownStore) SaveWithPrice(_ context.Context, breakdown *models.EvaluationBreakdown) error {
	if s.err != nil {
		return s.err
	}
	s.mu.Lock()
	s.saved = append(s.saved, breakdown)
	s.mu.Unlock()
	s.ch <- struct{}{}
	return nil
}

func (s *stubBreakdownStore) savedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.saved)
}

type stubPublisher struct {
	mu     sync.Mutex
	events []models.CompletionEvent
	err    error
}

func (p *stubPublisher) PublishCompletion(_ context.Context, event models.CompletionEvent) error {
	if p.err != nil {
		return p.err
	}
	p.mu.Lock()
	p.events = append(p.events, event)
	p.mu.Unlock()
	return nil
}

type poolFixture struct {
	pool      *RecalcWorkerPool
	scheduler *scheduler.Scheduler
	listings  *stubListingSource
	overrides *stubOverrideSource
	store     *stubBreakdownStore
	publisher *stubPublisher
	listingID uuid.UUID
	rulesetID uuid.UUID
}

func newPoolFixture(t *testing.T, budget time.Duration) *poolFixture {
	t.Helper()

	listingID := uuid.New()
	rulesetID := uuid.New()

	source := &stubRulesetSource{
		rulesets: []models.Ruleset{
			{
				ID:       rulesetID,
				Priority: 10,
				IsActive: true,
				Version:  2,
				Definition: models.RulesetDefinition{
					Groups: []models.RuleGroup{
						{
							ID:   uuid.New(),
							Name: "premiums",
							Rules: []models.Rule{
								{
									ID:       uuid.New(),
									Name:     "flat bonus",
									IsActive: true,
									Action:   models.RuleAction{Type: models.ActionFixed, Amount: 50},
								},
							},
						},
					},
				},
			},
		},
	}

	listings := &stubListingSource{
		snapshot: &models.ListingSnapshot{
			ID:        listingID,
			BasePrice: 100,
			Fields:    map[string]interface{}{"base_price": 100.0},
		},
	}
	store := newStubBreakdownStore()
	publisher := &stubPublisher{}
	overrides := &stubOverrideSource{}

	log := logger.NewNop()
	sched := scheduler.New(source, &allListingsIndex{ids: []uuid.UUID{listingID}}, nil, log, nil, 16)
	pool := NewRecalcWorkerPool(sched, listings, source, overrides, store, publisher, log, nil, 2, budget)

	return &poolFixture{
		pool:      pool,
		scheduler: sched,
		listings:  listings,
		overrides: overrides,
		store:     store,
		publisher: publisher,
		listingID: listingID,
		rulesetID: rulesetID,
	}
}

type allListingsIndex struct {
	ids []uuid.UUID
}

func (i *allListingsIndex) Candidates(_ context.Context, _ *models.ConditionNode) ([]uuid.UUID, bool, error) {
	return i.ids, false, nil
}

func (f *poolFixture) newJob() *models.RecalculationJob {
	return &models.RecalculationJob{
		ListingID:  f.listingID,
		Reasons:    []string{"listing_components_changed"},
		Versions:   models.RulesetVersions{f.rulesetID: 2},
		EnqueuedAt: time.Now(),
	}
}

func TestWorkerPoolCompletesJob(t *testing.T) {
	f := newPoolFixture(t, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f.pool.Start(ctx)
	defer f.pool.Stop()

	require.NoError(t, f.scheduler.OnListingComponentsChanged(ctx, f.listingID))

	select {
	case <-f.store.ch:
	case <-time.After(2 * time.Second):
		t.Fatal("breakdown was not persisted")
	}

	f.store.mu.Lock()
	breakdown := f.store.saved[0]
	f.store.mu.Unlock()

	assert.Equal(t, f.listingID, breakdown.ListingID)
	assert.Equal(t, 150.0, breakdown.AdjustedPrice)
	assert.Equal(t, 1, breakdown.RulesFired())

	// Completion event follows the persisted result.
	assert.Eventually(t, func() bool {
		f.publisher.mu.Lock()
		defer f.publisher.mu.Unlock()
		return len(f.publisher.events) == 1
	}, 2*time.Second, 10*time.Millisecond)

	f.publisher.mu.Lock()
	event := f.publisher.events[0]
	f.publisher.mu.Unlock()
	assert.Equal(t, f.listingID, event.ListingID)
	assert.Equal(t, 150.0, event.AdjustedPrice)
	assert.Equal(t, 1, event.RulesFiredCount)
}

func TestWorkerPoolPublishFailureDoesNotFailJob(t *testing.T) {
	f := newPoolFixture(t, time.Second)
	f.publisher.err = errors.New("redis down")

	job := f.newJob()
	f.pool.processJob(context.Background(), job)

	assert.Equal(t, 1, f.store.savedCount())
	assert.Equal(t, models.JobStatusCompleted, job.Status)
	f.scheduler.Sweep()
	assert.Equal(t, 0, f.scheduler.PendingCount(), "job must not be deferred")
}

func TestWorkerPoolDropsUnknownListing(t *testing.T) {
	f := newPoolFixture(t, time.Second)
	f.listings.err = fmt.Errorf("listing %s: %w", f.listingID, engine.ErrUnknownListing)

	job := f.newJob()
	f.pool.processJob(context.Background(), job)

	assert.Equal(t, 0, f.store.savedCount())
	assert.Equal(t, models.JobStatusFailed, job.Status)
	f.scheduler.Sweep()
	assert.Equal(t, 0, f.scheduler.PendingCount(), "unknown listing is dropped, not retried")
}

func TestWorkerPoolDefersOnPersistenceFailure(t *testing.T) {
	f := newPoolFixture(t, time.Second)
	f.store.err = errors.New("connection reset")

	job := f.newJob()
	f.pool.processJob(context.Background(), job)

	assert.Equal(t, models.JobStatusPending, job.Status, "deferred job goes back to pending")
	f.scheduler.Sweep()
	assert.Equal(t, 1, f.scheduler.PendingCount(), "failed job must come back via the sweep")
}

func TestWorkerPoolTimeoutLeavesPriceUntouched(t *testing.T) {
	f := newPoolFixture(t, 20*time.Millisecond)
	f.overrides.blockUntilCancel = true

	job := f.newJob()
	f.pool.processJob(context.Background(), job)

	assert.Equal(t, 0, f.store.savedCount(), "nothing may be persisted on timeout")
	assert.Equal(t, models.JobStatusFailed, job.Status)
	f.scheduler.Sweep()
	assert.Equal(t, 0, f.scheduler.PendingCount(), "timed-out job is not retried")
}

func TestWorkerPoolDefersOnLockContention(t *testing.T) {
	f := newPoolFixture(t, time.Second)

	release, ok := f.pool.locks.TryAcquire(f.listingID)
	require.True(t, ok)
	defer release()

	job := f.newJob()
	require.ErrorIs(t, f.pool.runJob(context.Background(), job), engine.ErrLockContention)

	f.pool.processJob(context.Background(), job)

	assert.Equal(t, 0, f.store.savedCount())
	assert.Equal(t, models.JobStatusPending, job.Status)
	f.scheduler.Sweep()
	assert.Equal(t, 1, f.scheduler.PendingCount(), "contended job parks for the sweep")
}

func TestWorkerPoolRetriesStaleReadOnce(t *testing.T) {
	f := newPoolFixture(t, time.Second)

	// The job captured version 5 but the store still serves version 2:
	// the read lagged the triggering write.
	job := f.newJob()
	job.Versions = models.RulesetVersions{f.rulesetID: 5}

	err := f.pool.evaluate(context.Background(), job)
	require.ErrorIs(t, err, engine.ErrVersionStale)
	assert.True(t, job.Requeued)
	assert.Equal(t, 0, f.store.savedCount())
	assert.Equal(t, 1, f.scheduler.PendingCount())

	// Second pass: the read is still stale, but the single re-enqueue is
	// spent, so evaluation proceeds against the loaded state.
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	requeued, err := f.scheduler.Dequeue(ctx)
	require.NoError(t, err)

	require.NoError(t, f.pool.evaluate(context.Background(), requeued))
	assert.Equal(t, 1, f.store.savedCount())
}

func TestStale(t *testing.T) {
	rsID := uuid.New()
	loaded := []models.Ruleset{{ID: rsID, Version: 3}}

	assert.False(t, stale(loaded, nil), "no captured versions")
	assert.False(t, stale(loaded, models.RulesetVersions{rsID: 3}), "versions match")
	assert.False(t, stale(loaded, models.RulesetVersions{rsID: 2}), "loaded state is newer")
	assert.True(t, stale(loaded, models.RulesetVersions{rsID: 4}), "loaded state lags the trigger")
	assert.False(t, stale(loaded, models.RulesetVersions{uuid.New(): 9}),
		"a ruleset missing from the load (deleted or deactivated) is not staleness")
}
