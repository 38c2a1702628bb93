package inventory

import (
	"sync"

	"github.com/google/uuid"
)

// variantLocks serializes work per variant id. Entries are dropped once no
// goroutine holds or waits on them.
type variantLocks struct {
	mu      sync.Mutex
	entries map[uuid.UUID]*variantLock
}

type variantLock struct {
	mu   sync.Mutex
	refs int
}

func newVariantLocks() *variantLocks {
	return &variantLocks{entries: make(map[uuid.UUID]*variantLock)}
}

// Lock blocks until the caller owns id and returns the matching unlock.
func (l *variantLocks) Lock(id uuid.UUID) func() {
	l.mu.Lock()
	entry, ok := l.entries[id]
	if !ok {
		entry = &variantLock{}
		l.entries[id] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()
	return func() {
		entry.mu.Unlock()
		l.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(l.entries, id)
		}
		l.mu.Unlock()
	}
}

func (l *variantLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
