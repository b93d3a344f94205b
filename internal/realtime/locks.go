package realtime

import (
	"sync"

	"chatcore/internal/domain"
)

// convLocks serializes work per conversation. Entries are dropped once no
// goroutine holds or waits on them.
type convLocks struct {
	mu    sync.Mutex
	locks map[domain.ConversationID]*convLock
}

type convLock struct {
	mu   sync.Mutex
	refs int
}

func newConvLocks() *convLocks {
	return &convLocks{locks: make(map[domain.ConversationID]*convLock)}
}

func (l *convLocks) lock(id domain.ConversationID) func() {
	l.mu.Lock()
	cl := l.locks[id]
	if cl == nil {
		cl = &convLock{}
		l.locks[id] = cl
	}
	cl.refs++
	l.mu.Unlock()

	cl.mu.Lock()
	return func() {
		cl.mu.Unlock()
		l.mu.Lock()
		cl.refs--
		if cl.refs == 0 {
			delete(l.locks, id)
		}
		l.mu.Unlock()
	}
}

func (l *convLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
