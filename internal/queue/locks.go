package queue

import "sync"

// barberLocks hands out one mutex per tenant/barber pair so mutations on the
// same queue serialize while different barbers proceed in parallel. The map
// only ever grows to the number of barbers seen, so no eviction is needed.
type barberLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newBarberLocks() *barberLocks {
	return &barberLocks{locks: make(map[string]*sync.Mutex)}
}

func (l *barberLocks) acquire(tenantID, barberID string) func() {
	key := tenantID + "/" + barberID
	l.mu.Lock()
	lock, ok := l.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		l.locks[key] = lock
	}
	l.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}
