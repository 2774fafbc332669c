// Package history implements the conversation store contract: append-only
// ordered message persistence plus the per-thread memory summary, with an
// atomic per-turn commit. This file holds the in-process implementation;
// durable backends live in the bolt and dynamo subpackages.
package history

import (
	"context"
	"sync"

	"github.com/threadline-ai/threadline/core"
)

type threadRecord struct {
	messages []core.Message
	summary  *core.MemorySummary
	nextSeq  uint64
}

// Store is a volatile in-process core.ConversationStore. It is safe for
// concurrent access and best suited for tests or ephemeral demo servers.
// Returned slices are copies to prevent external mutation of internal state.
type Store struct {
	mu      sync.RWMutex
	threads map[string]*threadRecord
}

var _ core.ConversationStore = (*Store)(nil)

// NewStore constructs an empty in-process conversation store.
func NewStore() *Store {
	return &Store{threads: make(map[string]*threadRecord)}
}

// AppendMessage implements core.HistoryStore.
func (s *Store) AppendMessage(_ context.Context, msg core.Message) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appendLocked(msg), nil
}

// ThreadMessages implements core.HistoryStore. It returns the thread's most
// recent limit messages in chronological order.
func (s *Store) ThreadMessages(_ context.Context, threadID string, limit int) ([]core.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.threads[threadID]
	if !ok {
		return []core.Message{}, nil
	}
	msgs := make([]core.Message, len(rec.messages))
	copy(msgs, rec.messages)
	core.SortMessages(msgs)
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return msgs, nil
}

// Summary implements core.SummaryStore.
func (s *Store) Summary(_ context.Context, threadID string) (core.MemorySummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.threads[threadID]
	if !ok || rec.summary == nil {
		return core.MemorySummary{}, core.ErrNoSummary
	}
	return *rec.summary, nil
}

// PutSummary implements core.SummaryStore.
func (s *Store) PutSummary(_ context.Context, summary core.MemorySummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.recordLocked(summary.ThreadID)
	cp := summary
	rec.summary = &cp
	return nil
}

// CommitTurn implements core.TurnCommitter. Both writes happen under one
// lock acquisition, so readers observe either the full turn or none of it.
func (s *Store) CommitTurn(_ context.Context, msg core.Message, summary core.MemorySummary) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.appendLocked(msg)
	rec := s.recordLocked(summary.ThreadID)
	cp := summary
	rec.summary = &cp
	return id, nil
}

// appendLocked assigns id and sequence then stores the message; caller holds
// the write lock.
func (s *Store) appendLocked(msg core.Message) string {
	rec := s.recordLocked(msg.ThreadID)
	if msg.ID == "" {
		msg.ID = core.NewID()
	}
	rec.nextSeq++
	msg.Seq = rec.nextSeq
	rec.messages = append(rec.messages, msg)
	return msg.ID
}

// recordLocked returns (creating if needed) the thread record; caller holds
// the write lock.
func (s *Store) recordLocked(threadID string) *threadRecord {
	rec, ok := s.threads[threadID]
	if !ok {
		rec = &threadRecord{}
		s.threads[threadID] = rec
	}
	return rec
}
