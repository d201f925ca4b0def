package service

import "sync"

// EntityLocker serializes mutations per document id: concurrent writes to
// the same ticket queue up, writes to different tickets proceed in parallel.
// One instance is shared by every service that writes tickets, so a grouped
// visit's member-ticket update and a direct status change on the same ticket
// serialize on the same lock.
type EntityLocker struct {
	mu    sync.Mutex
	locks map[string]*entityLock
}

type entityLock struct {
	mu   sync.Mutex
	refs int
}

func NewEntityLocker() *EntityLocker {
	return &EntityLocker{locks: make(map[string]*entityLock)}
}

// Lock acquires the lock for id, blocking until the current writer (if any)
// releases it.
func (l *EntityLocker) Lock(id string) {
	l.mu.Lock()
	lock, ok := l.locks[id]
	if !ok {
		lock = &entityLock{}
		l.locks[id] = lock
	}
	lock.refs++
	l.mu.Unlock()

	lock.mu.Lock()
}

// Unlock releases the lock for id, dropping it from the registry once no
// writer is waiting.
func (l *EntityLocker) Unlock(id string) {
	l.mu.Lock()
	lock, ok := l.locks[id]
	if ok {
		lock.refs--
		if lock.refs == 0 {
			delete(l.locks, id)
		}
	}
	l.mu.Unlock()

	if ok {
		lock.mu.Unlock()
	}
}
