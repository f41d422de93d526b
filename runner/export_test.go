package runner

import "time"

// SetClock replaces the registry's time source.
func (r *Registry) SetClock(now func() time.Time) {
	r.sessionLock.Lock()
	defer r.sessionLock.Unlock()
	r.now = now
}

func (r *Registry) EvictInactive() int {
	return r.evictInactive()
}

const MaxPendingUpdates = maxPendingUpdates
