package usecase

import "sync"

// TripLocks serializes mutations per trip. Guards that read before they
// write (pending-pair uniqueness, last-admin checks) run under the lock.
type TripLocks struct {
	mu    sync.Mutex
	locks map[string]*tripLock
}

type tripLock struct {
	mu   sync.Mutex
	refs int
}

// NewTripLocks creates an empty lock table.
func NewTripLocks() *TripLocks {
	return &TripLocks{locks: make(map[string]*tripLock)}
}

// Lock acquires the lock for tripID and returns its release function.
func (t *TripLocks) Lock(tripID string) func() {
	t.mu.Lock()
	l, ok := t.locks[tripID]
	if !ok {
		l = &tripLock{}
		t.locks[tripID] = l
	}
	l.refs++
	t.mu.Unlock()

	l.mu.Lock()

	return func() {
		l.mu.Unlock()

		t.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(t.locks, tripID)
		}
		t.mu.Unlock()
	}
}

func orNewLocks(l *TripLocks) *TripLocks {
	if l == nil {
		return NewTripLocks()
	}
	return l
}
