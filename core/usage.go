package core

import (
	"strings"
	"sync"
)

// AgentScope names the agent (or declared set of agents) a usage record is
// attributed to. It is a tagged variant: construct with SingleAgent or
// AgentSet. Modeling the two shapes explicitly keeps one recording code path
// regardless of which the caller holds.
type AgentScope struct {
	names []string
}

// SingleAgent scopes a record to one named agent.
func SingleAgent(name string) AgentScope {
	return AgentScope{names: []string{name}}
}

// AgentSet scopes a record to a declared set of agents acting as one step.
func AgentSet(names ...string) AgentScope {
	ns := make([]string, len(names))
	copy(ns, names)
	return AgentScope{names: ns}
}

// Names returns the agent names covered by the scope.
func (s AgentScope) Names() []string {
	ns := make([]string, len(s.names))
	copy(ns, s.names)
	return ns
}

// Label renders the scope for logging and attribution: the bare name for a
// single agent, a comma-joined list for a set.
func (s AgentScope) Label() string { return strings.Join(s.names, ",") }

// Usage aggregates token counts for a turn.
type Usage struct {
	// TokenCount is the sum of prompt and completion tokens across all calls.
	TokenCount uint32
	// MaxTokenCount is the largest single-call total observed.
	MaxTokenCount uint32
}

// Tracker accumulates per-call token usage within a turn. Safe for
// concurrent use; a fresh Tracker is created per dispatch.
type Tracker struct {
	mu      sync.Mutex
	calls   int
	totals  Usage
	byScope map[string]Usage
}

// NewTracker returns an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{byScope: make(map[string]Usage)}
}

// Record accumulates one agent call's token usage under the given scope.
func (t *Tracker) Record(scope AgentScope, promptTokens, completionTokens uint32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	call := promptTokens + completionTokens
	t.calls++
	t.totals.TokenCount += call
	if call > t.totals.MaxTokenCount {
		t.totals.MaxTokenCount = call
	}
	label := scope.Label()
	u := t.byScope[label]
	u.TokenCount += call
	if call > u.MaxTokenCount {
		u.MaxTokenCount = call
	}
	t.byScope[label] = u
}

// Totals returns the accumulated usage across all scopes.
func (t *Tracker) Totals() Usage {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.totals
}

// ByScope returns a copy of the per-scope usage breakdown keyed by scope label.
func (t *Tracker) ByScope() map[string]Usage {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]Usage, len(t.byScope))
	for k, v := range t.byScope {
		out[k] = v
	}
	return out
}

// Calls returns the number of recorded agent calls.
func (t *Tracker) Calls() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.calls
}
