package scheduler

import (
	"sync"

	"github.com/google/uuid"
)

// ListingLocks is the per-listing advisory lock table enforcing the
// single-writer-per-listing invariant. Multiple separately-triggered
// jobs for the same listing serialize here rather than relying on the
// queue's ordering.
type ListingLocks struct {
	mu   sync.Mutex
	held map[uuid.UUID]struct{}
}

// NewListingLocks creates an empty lock table.
func NewListingLocks() *ListingLocks {
	return &ListingLocks{held: make(map[uuid.UUID]struct{})}
}

// TryAcquire attempts to take the lock for a listing without blocking.
// On success it returns a release func; on contention it returns false
// and the caller defers the job to the scheduler's sweep.
func (l *ListingLocks) TryAcquire(listingID uuid.UUID) (func(), bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, taken := l.held[listingID]; taken {
		return nil, false
	}
	l.held[listingID] = struct{}{}

	var once sync.Once
	release := func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, listingID)
			l.mu.Unlock()
		})
	}
	return release, true
}

// Held reports whether a listing's lock is currently taken.
func (l *ListingLocks) Held(listingID uuid.UUID) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, taken := l.held[listingID]
	return taken
}
