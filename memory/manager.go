// Package memory maintains the per-thread running summary: a word-budgeted
// rolling digest of what each conversation has established so far. The
// Manager fronts a core.SummaryStore with per-thread write serialization;
// Fold and Derive are the pure pieces the orchestrator composes with its own
// commit path.
package memory

import (
	"context"
	"errors"
	"hash/fnv"
	"strings"
	"sync"

	"github.com/threadline-ai/threadline/core"
)

// DefaultMaxWords bounds the running summary. Oldest words fall off first
// once the budget is exceeded.
const DefaultMaxWords = 150

// lockStripes fixes the number of write mutexes. Threads hash onto a
// stripe, so memory use stays constant no matter how many thread ids
// pass through the Manager.
const lockStripes = 64

// Manager coordinates summary reads and maintenance for many threads.
type Manager struct {
	store    core.SummaryStore
	maxWords int
	locks    [lockStripes]sync.Mutex
}

// NewManager creates a Manager over store. maxWords <= 0 selects
// DefaultMaxWords.
func NewManager(store core.SummaryStore, maxWords int) *Manager {
	if maxWords <= 0 {
		maxWords = DefaultMaxWords
	}
	return &Manager{store: store, maxWords: maxWords}
}

// MaxWords returns the configured summary word budget.
func (m *Manager) MaxWords() int { return m.maxWords }

// Read returns the thread's stored summary text, or "" when none exists yet.
// Absence is an ordinary state, not an error.
func (m *Manager) Read(ctx context.Context, threadID string) (string, error) {
	sum, err := m.store.Summary(ctx, threadID)
	if errors.Is(err, core.ErrNoSummary) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return sum.Text, nil
}

// Write replaces the thread's summary, trimming it to the word budget first.
func (m *Manager) Write(ctx context.Context, threadID, text string) error {
	lock := m.threadLock(threadID)
	lock.Lock()
	defer lock.Unlock()
	return m.store.PutSummary(ctx, core.NewMemorySummary(threadID, Trim(text, m.maxWords)))
}

// Maintain folds addition into the thread's stored summary and persists the
// result. Concurrent maintenance of the same thread is serialized so no
// update is lost.
func (m *Manager) Maintain(ctx context.Context, threadID, addition string) (core.MemorySummary, error) {
	lock := m.threadLock(threadID)
	lock.Lock()
	defer lock.Unlock()

	current, err := m.Read(ctx, threadID)
	if err != nil {
		return core.MemorySummary{}, err
	}
	next := core.NewMemorySummary(threadID, m.Fold(current, addition))
	if err := m.store.PutSummary(ctx, next); err != nil {
		return core.MemorySummary{}, err
	}
	return next, nil
}

// Fold merges an addition into an existing summary and trims the result to
// the word budget. It is pure; callers own persistence.
func (m *Manager) Fold(current, addition string) string {
	current = strings.TrimSpace(current)
	addition = strings.TrimSpace(addition)
	switch {
	case addition == "":
		return Trim(current, m.maxWords)
	case current == "":
		return Trim(addition, m.maxWords)
	}
	return Trim(current+" "+addition, m.maxWords)
}

// Derive builds the context handed to a pattern. An explicit override wins
// over the stored summary; the placeholder appears only when the thread has
// no override, no summary and no messages at all.
func Derive(explicit, summary string, msgs []core.Message) core.MemoryContext {
	s := strings.TrimSpace(explicit)
	if s == "" {
		s = strings.TrimSpace(summary)
	}
	return core.MemoryContext{Summary: s, Messages: msgs}
}

// Trim keeps the last maxWords words of text, dropping the oldest first.
func Trim(text string, maxWords int) string {
	words := strings.Fields(text)
	if maxWords <= 0 || len(words) <= maxWords {
		return strings.Join(words, " ")
	}
	return strings.Join(words[len(words)-maxWords:], " ")
}

func (m *Manager) threadLock(threadID string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(threadID))
	return &m.locks[h.Sum32()%lockStripes]
}
