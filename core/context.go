package core

import (
	"fmt"
	"strings"
)

// NoPriorContext is the placeholder handed to patterns when a thread truly
// has no history: no stored summary, no persisted messages and no explicit
// memory supplied on the request. Threads with any history must never see it.
const NoPriorContext = "New conversation. No prior context."

// MemoryContext is the conversation context passed into a pattern run. It
// carries the running summary (or an explicit override) plus the recent
// messages it was derived from.
type MemoryContext struct {
	Summary  string
	Messages []Message
}

// IsEmpty reports whether the context carries no usable history.
func (c MemoryContext) IsEmpty() bool {
	return strings.TrimSpace(c.Summary) == "" && len(c.Messages) == 0
}

// Render flattens the context into prompt text: the summary first, then the
// recent messages as transcript lines. Falls back to NoPriorContext for an
// empty context.
func (c MemoryContext) Render() string {
	if c.IsEmpty() {
		return NoPriorContext
	}
	var b strings.Builder
	if s := strings.TrimSpace(c.Summary); s != "" {
		b.WriteString(s)
	}
	for _, m := range c.Messages {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "%s: %s", m.Role, m.Content)
	}
	return b.String()
}
