package core

import (
	"encoding/json"
	"fmt"
)

// TopicList is an optional set of topic hints attached to a chat request.
// Upstream clients historically sent either a bare string or a list of
// strings; the custom JSON handling accepts both so callers never branch on
// the runtime shape.
type TopicList []string

// UnmarshalJSON accepts a JSON string, an array of strings, or null.
func (t *TopicList) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*t = nil
		return nil
	}
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*t = TopicList{single}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return fmt.Errorf("topic must be a string or a list of strings: %w", err)
	}
	*t = TopicList(many)
	return nil
}

// MarshalJSON emits a bare string for a single topic and an array otherwise,
// mirroring the accepted input shapes.
func (t TopicList) MarshalJSON() ([]byte, error) {
	if len(t) == 1 {
		return json.Marshal(t[0])
	}
	return json.Marshal([]string(t))
}

// ChatRequest is the input for one turn of a conversation.
type ChatRequest struct {
	// UserPrompt is the caller's message for this turn.
	UserPrompt string `json:"user_prompt"`
	// ConversationFlow selects the registered workflow by name. Matching is
	// case-insensitive and treats hyphens and underscores as equivalent.
	ConversationFlow string `json:"conversation_flow"`
	// ThreadID continues an existing thread. Empty starts a new one.
	ThreadID string `json:"thread_id,omitempty"`
	// Topic optionally narrows the workflow's focus.
	Topic TopicList `json:"topic,omitempty"`
	// MemoryRecord controls whether the turn updates the thread's memory
	// summary. The message itself is always persisted.
	MemoryRecord bool `json:"memory_record"`
	// ThreadMemory, when set, overrides the derived memory context for this
	// turn only.
	ThreadMemory string `json:"thread_memory,omitempty"`
}

// ChatResponse is the output of one completed turn.
type ChatResponse struct {
	ThreadID      string `json:"thread_id"`
	MessageID     string `json:"message_id"`
	AgentResponse string `json:"agent_response"`
	// TokenCount is the sum of all token usage across the turn's agent calls.
	TokenCount uint32 `json:"token_count"`
	// MaxTokenCount is the largest single-call token total within the turn.
	MaxTokenCount uint32 `json:"max_token_count"`
	MemorySummary string `json:"memory_summary"`
}
