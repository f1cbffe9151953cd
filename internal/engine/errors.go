package engine

import "errors"

// Error taxonomy for the valuation core. All of these are scoped to a
// single listing's evaluation; none of them aborts a batch.
var (
	// ErrMalformedCondition marks an unknown operator or field type.
	// During evaluation the offending leaf simply does not match; the
	// error surfaces only on the write/validation path.
	ErrMalformedCondition = errors.New("malformed condition")

	// ErrVersionStale signals that a ruleset version bumped between
	// enqueue and execution. Recoverable via a single re-enqueue.
	ErrVersionStale = errors.New("ruleset version stale")

	// ErrLockContention signals that another worker holds the
	// per-listing lock. The job stays pending and the scheduler's sweep
	// retries it.
	ErrLockContention = errors.New("listing lock contention")

	// ErrEvaluationTimeout signals the per-listing wall-clock budget
	// was exceeded. The previous adjusted price is retained.
	ErrEvaluationTimeout = errors.New("evaluation timeout")

	// ErrUnknownListing is returned by the synchronous evaluation entry
	// point for an id that does not exist. Fails fast.
	ErrUnknownListing = errors.New("unknown listing")
)
