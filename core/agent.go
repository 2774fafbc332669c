package core

import "context"

// Reply is the result of a single agent invocation: generated text plus the
// provider-reported token counts.
type Reply struct {
	Text             string
	PromptTokens     uint32
	CompletionTokens uint32
}

// Agent is an external prompt-driven worker: text in, text plus token usage
// out. The underlying model invocation is a black box to this layer;
// implementations wrap provider SDKs or test doubles.
type Agent interface {
	// Name returns the agent's registered name, used for usage attribution
	// and error reporting.
	Name() string
	// Invoke sends the prompt and blocks until a reply or error. It must
	// honor ctx cancellation. Failures are reported as *ProviderError or
	// *ContentFilteredError so patterns can apply the right retry policy.
	Invoke(ctx context.Context, prompt string) (Reply, error)
}
