package models

import (
	"time"

	"github.com/google/uuid"
)

// JobStatus tracks a recalculation job through the executor.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusRetried   JobStatus = "retried"
	JobStatusFailed    JobStatus = "failed"
)

// Job failure reasons.
const (
	FailureEvaluationTimeout = "evaluation_timeout"
	FailurePersistence       = "persistence_failure"
	FailureUnknownListing    = "unknown_listing"
)

// RecalculationJob is an ephemeral unit of re-evaluation work for one
// listing. Jobs are deduplicated by listing id while pending: a second
// trigger merges its reason into the pending job instead of enqueuing a
// duplicate.
type RecalculationJob struct {
	ListingID  uuid.UUID
	Status     JobStatus
	Reasons    []string
	Versions   RulesetVersions
	EnqueuedAt time.Time
	// Requeued marks a job that already took its single
	// staleness re-enqueue; a second version bump no longer defers it.
	Requeued bool
	// Attempts counts sweep retries after transient failures.
	Attempts int
}

// MergeTrigger folds a new trigger into an already-pending job: reasons
// concatenate and captured versions advance to the newest observation.
func (j *RecalculationJob) MergeTrigger(reason string, versions RulesetVersions) {
	j.Reasons = append(j.Reasons, reason)
	if j.Versions == nil {
		j.Versions = make(RulesetVersions, len(versions))
	}
	for id, v := range versions {
		if v > j.Versions[id] {
			j.Versions[id] = v
		}
	}
}
