package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/threadline-ai/threadline/core"
)

// Static is a lightweight in-memory core.Agent useful for tests and
// examples. It returns canned replies keyed by prompt, or a generated echo
// reply for unknown prompts, with deterministic token counts.
type Static struct {
	name      string
	responses map[string]string
	delay     time.Duration
	err       error
}

// NewStatic constructs a Static agent.
func NewStatic(name string, optFns ...func(a *Static)) *Static {
	a := &Static{name: name, responses: make(map[string]string)}
	for _, fn := range optFns {
		fn(a)
	}
	return a
}

// WithResponse registers a deterministic reply for an exact prompt.
func WithResponse(prompt, response string) func(a *Static) {
	return func(a *Static) { a.responses[prompt] = response }
}

// WithDelay makes every invocation sleep first, for timeout tests.
func WithDelay(d time.Duration) func(a *Static) {
	return func(a *Static) { a.delay = d }
}

// WithError makes every invocation fail with err.
func WithError(err error) func(a *Static) {
	return func(a *Static) { a.err = err }
}

// Name implements core.Agent.
func (a *Static) Name() string { return a.name }

// Invoke implements core.Agent.
func (a *Static) Invoke(ctx context.Context, prompt string) (core.Reply, error) {
	if a.delay > 0 {
		select {
		case <-ctx.Done():
			return core.Reply{}, &core.ProviderError{Agent: a.name, Retryable: false, Err: ctx.Err()}
		case <-time.After(a.delay):
		}
	}
	if a.err != nil {
		return core.Reply{}, a.err
	}
	text, ok := a.responses[prompt]
	if !ok {
		text = fmt.Sprintf("%s reply to: %s", a.name, prompt)
	}
	return core.Reply{
		Text:             text,
		PromptTokens:     uint32(len(prompt) / 4),
		CompletionTokens: uint32(len(text)/4 + 1),
	}, nil
}
