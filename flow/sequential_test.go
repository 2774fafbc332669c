package flow

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/threadline-ai/threadline/core"
)

// Interface compliance (compile-time assertion)
var _ core.Pattern = (*Sequential)(nil)

// scriptAgent returns canned replies (or errors) in call order, recording
// every prompt it sees.
type scriptAgent struct {
	name    string
	replies []func() (core.Reply, error)
	calls   int
	prompts []string
}

func (a *scriptAgent) Name() string { return a.name }

func (a *scriptAgent) Invoke(_ context.Context, prompt string) (core.Reply, error) {
	a.prompts = append(a.prompts, prompt)
	idx := a.calls
	if idx >= len(a.replies) {
		idx = len(a.replies) - 1
	}
	a.calls++
	return a.replies[idx]()
}

func ok(text string, prompt, completion uint32) func() (core.Reply, error) {
	return func() (core.Reply, error) {
		return core.Reply{Text: text, PromptTokens: prompt, CompletionTokens: completion}, nil
	}
}

func fail(err error) func() (core.Reply, error) {
	return func() (core.Reply, error) { return core.Reply{}, err }
}

func newTurn(msg string) core.Turn {
	return core.Turn{ThreadID: "t1", Message: msg, Usage: core.NewTracker()}
}

func TestSequential_RunsStepsInDeclaredOrder(t *testing.T) {
	extract := &scriptAgent{name: "extractor", replies: []func() (core.Reply, error){ok("extracted facts", 10, 5)}}
	analyze := &scriptAgent{name: "analyst", replies: []func() (core.Reply, error){ok("final analysis", 20, 10)}}

	p := NewSequential("bike-insights", []Step{
		{Name: "extract", Agent: extract, Policy: Abort()},
		{Name: "analyze", Agent: analyze, Policy: Abort()},
	})

	turn := newTurn("How did the Sydney store do?")
	res, err := p.Run(context.Background(), turn)
	require.NoError(t, err)

	assert.Equal(t, core.TurnCompleted, res.State)
	assert.Equal(t, "final analysis", res.Response)
	assert.Equal(t, 2, res.Steps)
	// second step sees the first step's output
	require.Len(t, analyze.prompts, 1)
	assert.Contains(t, analyze.prompts[0], "extracted facts")
	// usage accumulated per call
	totals := turn.Usage.Totals()
	assert.Equal(t, uint32(45), totals.TokenCount)
	assert.Equal(t, uint32(30), totals.MaxTokenCount)
}

func TestSequential_AbortPolicyFailsTurnOnFirstError(t *testing.T) {
	boom := &core.ProviderError{Agent: "extractor", Retryable: true, Err: errors.New("503")}
	extract := &scriptAgent{name: "extractor", replies: []func() (core.Reply, error){fail(boom)}}
	analyze := &scriptAgent{name: "analyst", replies: []func() (core.Reply, error){ok("unused", 1, 1)}}

	p := NewSequential("strict", []Step{
		{Name: "extract", Agent: extract, Policy: Abort()},
		{Name: "analyze", Agent: analyze, Policy: Abort()},
	})

	res, err := p.Run(context.Background(), newTurn("hi"))
	require.Error(t, err)
	assert.Equal(t, core.TurnFailed, res.State)
	assert.Equal(t, 1, extract.calls, "abort policy calls the agent exactly once")
	assert.Equal(t, 0, analyze.calls, "later steps must not run after an abort")
	assert.ErrorIs(t, err, boom.Err)
}

func TestSequential_RetryThenDegradeRetriesAndContinues(t *testing.T) {
	transient := &core.ProviderError{Agent: "enricher", Retryable: true, Err: errors.New("timeout")}
	enrich := &scriptAgent{name: "enricher", replies: []func() (core.Reply, error){
		fail(transient), fail(transient), fail(transient),
	}}
	answer := &scriptAgent{name: "answerer", replies: []func() (core.Reply, error){ok("partial answer", 5, 5)}}

	p := NewSequential("lenient", []Step{
		{Name: "enrich", Agent: enrich, Policy: RetryThenDegrade(3, time.Millisecond)},
		{Name: "answer", Agent: answer, Policy: Abort()},
	})

	turn := newTurn("hi")
	res, err := p.Run(context.Background(), turn)
	require.NoError(t, err)

	assert.Equal(t, 3, enrich.calls, "bounded retry count")
	assert.Equal(t, core.TurnDegraded, res.State)
	assert.Contains(t, res.Annotation, "enrich")
	assert.Equal(t, "partial answer", res.Response)
}

func TestSequential_RetrySucceedsWithinBudget(t *testing.T) {
	transient := &core.ProviderError{Agent: "a", Retryable: true, Err: errors.New("flaky")}
	agent := &scriptAgent{name: "a", replies: []func() (core.Reply, error){
		fail(transient), ok("recovered", 7, 3),
	}}

	p := NewSequential("retrying", []Step{
		{Name: "only", Agent: agent, Policy: RetryThenDegrade(3, time.Millisecond)},
	})

	res, err := p.Run(context.Background(), newTurn("hi"))
	require.NoError(t, err)
	assert.Equal(t, core.TurnCompleted, res.State)
	assert.Equal(t, "recovered", res.Response)
	assert.Equal(t, 2, agent.calls)
}

func TestSequential_ContentFilterNeverRetried(t *testing.T) {
	filtered := &core.ContentFilteredError{Agent: "a", Reason: "policy"}
	agent := &scriptAgent{name: "a", replies: []func() (core.Reply, error){fail(filtered)}}

	p := NewSequential("filtered", []Step{
		{Name: "only", Agent: agent, Policy: RetryThenDegrade(5, time.Millisecond)},
	})

	res, err := p.Run(context.Background(), newTurn("hi"))
	require.Error(t, err)
	assert.Equal(t, core.TurnFailed, res.State)
	assert.Equal(t, 1, agent.calls, "content policy rejections are never retried")
	var cf *core.ContentFilteredError
	assert.True(t, errors.As(err, &cf))
}

func TestSequential_NonRetryableProviderErrorNotRetried(t *testing.T) {
	fatal := &core.ProviderError{Agent: "a", Retryable: false, Err: errors.New("bad request")}
	agent := &scriptAgent{name: "a", replies: []func() (core.Reply, error){fail(fatal), ok("never", 1, 1)}}

	p := NewSequential("fatal", []Step{
		{Name: "only", Agent: agent, Policy: RetryThenDegrade(5, time.Millisecond)},
	})

	// Non-retryable errors stop retrying, then the degrade policy still
	// applies; with no other steps there is no output so the turn fails.
	res, err := p.Run(context.Background(), newTurn("hi"))
	require.Error(t, err)
	assert.Equal(t, core.TurnFailed, res.State)
	assert.Equal(t, 1, agent.calls)
}

func TestSequential_ContextCarriedIntoPrompt(t *testing.T) {
	agent := &scriptAgent{name: "a", replies: []func() (core.Reply, error){ok("reply", 1, 1)}}
	p := NewSequential("ctx", []Step{{Name: "only", Agent: agent, Policy: Abort()}})

	turn := newTurn("that store again?")
	turn.Context = core.MemoryContext{Summary: "Customer asked about the Sydney store."}
	turn.Topics = core.TopicList{"sales"}

	_, err := p.Run(context.Background(), turn)
	require.NoError(t, err)
	require.Len(t, agent.prompts, 1)
	assert.Contains(t, agent.prompts[0], "Sydney store")
	assert.Contains(t, agent.prompts[0], "TOPICS: sales")
	assert.False(t, strings.Contains(agent.prompts[0], core.NoPriorContext))
}

func TestSequential_MemoryStepOverridesTranscript(t *testing.T) {
	answer := &scriptAgent{name: "answer", replies: []func() (core.Reply, error){ok("the answer", 1, 1)}}
	summarize := &scriptAgent{name: "summarizer", replies: []func() (core.Reply, error){ok("condensed summary", 1, 1)}}

	p := NewSequential("with-memory", []Step{
		{Name: "answer", Agent: answer, Policy: Abort()},
		{Name: "summarize", Agent: summarize, Policy: Abort(), UpdatesMemory: true},
	})

	res, err := p.Run(context.Background(), newTurn("hi"))
	require.NoError(t, err)
	assert.Equal(t, "condensed summary", res.UpdatedMemory)
}

func TestSequential_DefaultMemoryIsTranscript(t *testing.T) {
	agent := &scriptAgent{name: "a", replies: []func() (core.Reply, error){ok("pong", 1, 1)}}
	p := NewSequential("plain", []Step{{Name: "only", Agent: agent, Policy: Abort()}})

	res, err := p.Run(context.Background(), newTurn("ping"))
	require.NoError(t, err)
	assert.Contains(t, res.UpdatedMemory, "ping")
	assert.Contains(t, res.UpdatedMemory, "pong")
}

func TestSequential_NoSteps(t *testing.T) {
	p := NewSequential("empty", nil)
	_, err := p.Run(context.Background(), newTurn("hi"))
	assert.Error(t, err)
}

// artifactStub serves one template by name.
type artifactStub struct {
	name, contents string
}

func (a *artifactStub) Read(_ context.Context, name, _ string) (string, error) {
	if name != a.name {
		return "", errors.New("artifact not found")
	}
	return a.contents, nil
}

func (a *artifactStub) Write(context.Context, string, string, string) error { return nil }

func (a *artifactStub) List(context.Context, string) ([]string, error) { return nil, nil }

func TestSequential_PromptArtifactTemplate(t *testing.T) {
	agent := &scriptAgent{name: "a", replies: []func() (core.Reply, error){ok("done", 1, 1)}}
	store := &artifactStub{name: "classify.tmpl", contents: "Classify: {{.Message}} given {{.Context}}"}

	p := NewSequential("templated", []Step{
		{Name: "only", Agent: agent, PromptArtifact: "classify.tmpl", Policy: Abort()},
	}, func(o *Options) { o.Artifacts = store })

	turn := newTurn("a question")
	turn.Context = core.MemoryContext{Summary: "prior summary"}
	_, err := p.Run(context.Background(), turn)
	require.NoError(t, err)
	require.Len(t, agent.prompts, 1)
	assert.Equal(t, "Classify: a question given prior summary", agent.prompts[0])
}

func TestSequential_MissingArtifactFailsBeforeAgentCall(t *testing.T) {
	agent := &scriptAgent{name: "a", replies: []func() (core.Reply, error){ok("never", 1, 1)}}
	store := &artifactStub{name: "other.tmpl"}

	p := NewSequential("broken", []Step{
		{Name: "only", Agent: agent, PromptArtifact: "classify.tmpl", Policy: Abort()},
	}, func(o *Options) { o.Artifacts = store })

	_, err := p.Run(context.Background(), newTurn("hi"))
	require.Error(t, err)
	assert.Equal(t, 0, agent.calls)
}
