package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/threadline-ai/threadline/core"
)

// threadLocks serializes turns per thread. Each thread gets a one-slot
// channel acting as a mutex with a bounded acquisition wait, so a second
// request for a busy thread either queues briefly or fails fast with
// ErrThreadBusy instead of blocking indefinitely. Entries are refcounted
// and dropped once the last holder or waiter lets go, keeping the map
// proportional to in-flight turns rather than every thread ever seen.
type threadLocks struct {
	mu    sync.Mutex
	slots map[string]*slotEntry
}

type slotEntry struct {
	ch   chan struct{}
	refs int
}

func newThreadLocks() *threadLocks {
	return &threadLocks{slots: make(map[string]*slotEntry)}
}

func (l *threadLocks) retain(threadID string) *slotEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.slots[threadID]
	if !ok {
		e = &slotEntry{ch: make(chan struct{}, 1)}
		l.slots[threadID] = e
	}
	e.refs++
	return e
}

func (l *threadLocks) release(threadID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.slots[threadID]
	if !ok {
		return
	}
	e.refs--
	if e.refs <= 0 {
		delete(l.slots, threadID)
	}
}

// acquire takes the thread's slot, waiting up to maxWait. The returned
// release must be called exactly once. A zero maxWait fails fast when the
// thread is busy.
func (l *threadLocks) acquire(ctx context.Context, threadID string, maxWait time.Duration) (func(), error) {
	e := l.retain(threadID)
	done := func() {
		<-e.ch
		l.release(threadID)
	}

	select {
	case e.ch <- struct{}{}:
		return done, nil
	default:
	}
	if maxWait <= 0 {
		l.release(threadID)
		return nil, core.ErrThreadBusy
	}

	timer := time.NewTimer(maxWait)
	defer timer.Stop()
	select {
	case e.ch <- struct{}{}:
		return done, nil
	case <-timer.C:
		l.release(threadID)
		return nil, core.ErrThreadBusy
	case <-ctx.Done():
		l.release(threadID)
		return nil, ctx.Err()
	}
}

// busy reports whether a turn currently holds the thread's slot without
// creating an entry for threads that have none.
func (l *threadLocks) busy(threadID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.slots[threadID]
	return ok && len(e.ch) > 0
}

func (l *threadLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.slots)
}
