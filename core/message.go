package core

import (
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Role identifies the author side of a persisted message.
type Role string

const (
	// RoleUser marks a caller-authored message.
	RoleUser Role = "user"
	// RoleAgent marks a workflow-produced message.
	RoleAgent Role = "agent"
)

// Thread identifies a durable conversation session. Threads are created on
// the first turn without an explicit id and referenced by the same id
// thereafter; this layer never deletes them.
type Thread struct {
	ID        string    `json:"thread_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Message is a single persisted conversation entry. Immutable once written.
//
// Ordering within a thread is (Timestamp, Seq) ascending; Seq is assigned by
// the history store at append time and breaks timestamp ties with the
// insertion order.
type Message struct {
	ID         string    `json:"id"`
	ThreadID   string    `json:"thread_id"`
	Role       Role      `json:"role"`
	Content    string    `json:"content"`
	Timestamp  time.Time `json:"timestamp"`
	Seq        uint64    `json:"seq"`
	TokenCount uint32    `json:"token_count"`
}

// NewMessage constructs a message with a fresh id and a UTC timestamp.
// Seq is left zero; the history store owns its assignment.
func NewMessage(threadID string, role Role, content string, tokenCount uint32) Message {
	return Message{
		ID:         NewID(),
		ThreadID:   threadID,
		Role:       role,
		Content:    content,
		Timestamp:  time.Now().UTC(),
		TokenCount: tokenCount,
	}
}

// SortMessages orders messages chronologically by (Timestamp, Seq).
func SortMessages(msgs []Message) {
	sort.SliceStable(msgs, func(i, j int) bool {
		if msgs[i].Timestamp.Equal(msgs[j].Timestamp) {
			return msgs[i].Seq < msgs[j].Seq
		}
		return msgs[i].Timestamp.Before(msgs[j].Timestamp)
	})
}

// MemorySummary is the bounded running summary of a thread's history. It is
// rewritten each turn; after every maintain operation WordCount never exceeds
// the configured maximum.
type MemorySummary struct {
	ThreadID  string `json:"thread_id"`
	Text      string `json:"text"`
	WordCount uint32 `json:"word_count"`
}

// NewMemorySummary builds a summary computing the word count from text.
func NewMemorySummary(threadID, text string) MemorySummary {
	return MemorySummary{
		ThreadID:  threadID,
		Text:      text,
		WordCount: uint32(len(strings.Fields(text))),
	}
}

// NewID generates a unique identifier for threads, messages and turns.
func NewID() string { return uuid.NewString() }
