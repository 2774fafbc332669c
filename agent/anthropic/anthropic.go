// Package anthropic adapts the Anthropic Messages API to the core.Agent
// contract.
package anthropic

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/threadline-ai/threadline/core"
)

// Options configure the Anthropic agent adapter (model id, temperature, max
// tokens, API key).
type Options struct {
	Model       anthropic.Model
	Temperature float64
	MaxTokens   int64
	APIKey      string
}

// Agent wraps the Anthropic Messages API behind the core.Agent interface.
type Agent struct {
	name   string
	client *anthropic.Client
	opts   Options
}

// New creates an agent using the official client.
func New(name string, optFns ...func(o *Options)) *Agent {
	opts := defaults()
	for _, fn := range optFns {
		fn(&opts)
	}

	var clientOpts []option.RequestOption
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}
	client := anthropic.NewClient(clientOpts...)

	return &Agent{name: name, client: &client, opts: opts}
}

// NewFromClient creates an agent from an existing client.
func NewFromClient(name string, client *anthropic.Client, optFns ...func(o *Options)) *Agent {
	opts := defaults()
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Agent{name: name, client: client, opts: opts}
}

func defaults() Options {
	return Options{
		Model:       anthropic.ModelClaude3_5Sonnet20241022,
		Temperature: 0.7,
		MaxTokens:   4096,
	}
}

// Name implements core.Agent.
func (a *Agent) Name() string { return a.name }

// Invoke implements core.Agent with a single non-streaming message.
func (a *Agent) Invoke(ctx context.Context, prompt string) (core.Reply, error) {
	params := anthropic.MessageNewParams{
		Model:       a.opts.Model,
		MaxTokens:   a.opts.MaxTokens,
		Temperature: anthropic.Float(a.opts.Temperature),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}

	resp, err := a.client.Messages.New(ctx, params)
	if err != nil {
		return core.Reply{}, &core.ProviderError{Agent: a.name, Retryable: true, Err: fmt.Errorf("anthropic api error: %w", err)}
	}

	if resp.StopReason == "refusal" {
		return core.Reply{}, &core.ContentFilteredError{Agent: a.name, Reason: "model refused the request"}
	}

	var b strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			b.WriteString(block.AsText().Text)
		}
	}

	return core.Reply{
		Text:             b.String(),
		PromptTokens:     uint32(resp.Usage.InputTokens),
		CompletionTokens: uint32(resp.Usage.OutputTokens),
	}, nil
}
