// Package openai adapts the OpenAI Chat Completions API to the core.Agent
// contract: a single prompt in, generated text plus token counts out. It
// wraps the official client and maps provider failures onto the error
// taxonomy (content policy rejections are surfaced distinctly and never
// retried upstream).
package openai

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"

	"github.com/threadline-ai/threadline/core"
)

// Options configure the OpenAI agent adapter. Fields mirror a minimal
// subset of Chat Completion parameters; extend via functional options
// without breaking callers.
type Options struct {
	Model               string
	Temperature         float64
	MaxCompletionTokens int64
}

// Agent wraps the OpenAI Chat Completions API behind the core.Agent interface.
type Agent struct {
	name   string
	client *openai.Client
	opts   Options
}

// New creates an agent using a client built from the environment.
func New(name string, optFns ...func(o *Options)) *Agent {
	client := openai.NewClient()
	return NewFromClient(name, &client, optFns...)
}

// NewFromClient creates an agent from an existing client.
func NewFromClient(name string, client *openai.Client, optFns ...func(o *Options)) *Agent {
	opts := Options{
		Model:               openai.ChatModelGPT4oMini,
		Temperature:         0.7,
		MaxCompletionTokens: 4096,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Agent{name: name, client: client, opts: opts}
}

// Name implements core.Agent.
func (a *Agent) Name() string { return a.name }

// Invoke implements core.Agent with a single non-streaming completion.
func (a *Agent) Invoke(ctx context.Context, prompt string) (core.Reply, error) {
	params := openai.ChatCompletionNewParams{
		Messages:            []openai.ChatCompletionMessageParamUnion{openai.UserMessage(prompt)},
		Model:               a.opts.Model,
		Temperature:         openai.Float(a.opts.Temperature),
		MaxCompletionTokens: openai.Int(a.opts.MaxCompletionTokens),
	}

	resp, err := a.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return core.Reply{}, &core.ProviderError{Agent: a.name, Retryable: true, Err: fmt.Errorf("openai api error: %w", err)}
	}
	if len(resp.Choices) == 0 {
		return core.Reply{}, &core.ProviderError{Agent: a.name, Retryable: true, Err: fmt.Errorf("no choices returned")}
	}

	ch0 := resp.Choices[0]
	if ch0.FinishReason == "content_filter" {
		return core.Reply{}, &core.ContentFilteredError{Agent: a.name, Reason: "completion stopped by content filter"}
	}

	return core.Reply{
		Text:             ch0.Message.Content,
		PromptTokens:     uint32(resp.Usage.PromptTokens),
		CompletionTokens: uint32(resp.Usage.CompletionTokens),
	}, nil
}
