package core

import "context"

// HistoryStore persists the append-only ordered message log per thread.
// Append is atomic: a reader never observes a partially written message.
type HistoryStore interface {
	// AppendMessage durably appends a message, assigning its insertion
	// sequence, and returns the message id.
	AppendMessage(ctx context.Context, msg Message) (string, error)
	// ThreadMessages returns up to limit of the thread's most recent messages
	// in chronological (Timestamp, Seq) order. limit <= 0 means no limit.
	ThreadMessages(ctx context.Context, threadID string, limit int) ([]Message, error)
}

// SummaryStore persists the per-thread memory summary.
type SummaryStore interface {
	// Summary returns the thread's summary or ErrNoSummary.
	Summary(ctx context.Context, threadID string) (MemorySummary, error)
	// PutSummary writes or replaces the thread's summary.
	PutSummary(ctx context.Context, summary MemorySummary) error
}

// TurnCommitter commits the (message, summary) pair produced by one turn as
// a single logical unit: both are visible afterwards or neither is.
type TurnCommitter interface {
	CommitTurn(ctx context.Context, msg Message, summary MemorySummary) (string, error)
}

// ConversationStore is the full persistence contract a history backend
// satisfies. Any backend implementing it is substitutable without changing
// the orchestrator.
type ConversationStore interface {
	HistoryStore
	SummaryStore
	TurnCommitter
}

// ArtifactStore reads and writes named text artifacts (prompt templates)
// under logical paths. Write is overwrite-atomic: a concurrent reader never
// observes a partially written artifact.
type ArtifactStore interface {
	Read(ctx context.Context, name, path string) (string, error)
	Write(ctx context.Context, contents, name, path string) error
	List(ctx context.Context, path string) ([]string, error)
}
