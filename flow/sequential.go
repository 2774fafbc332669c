package flow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/threadline-ai/threadline/core"
	"github.com/threadline-ai/threadline/internal/util"
	"github.com/threadline-ai/threadline/logging"
)

type policyKind int

const (
	policyAbort policyKind = iota
	policyRetryThenDegrade
)

// Policy is a step's declared failure handling, a tagged variant constructed
// with Abort or RetryThenDegrade. Content policy rejections abort the turn
// regardless of the declared policy; they are never retried.
type Policy struct {
	kind        policyKind
	maxAttempts int
	baseDelay   time.Duration
}

// Abort declares that a step failure fails the whole turn. The agent is
// called exactly once.
func Abort() Policy {
	return Policy{kind: policyAbort}
}

// RetryThenDegrade declares that a failed step is retried up to maxAttempts
// total attempts with exponential backoff starting at baseDelay; if all
// attempts fail the turn continues with a degraded partial result annotated
// as such.
func RetryThenDegrade(maxAttempts int, baseDelay time.Duration) Policy {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return Policy{kind: policyRetryThenDegrade, maxAttempts: maxAttempts, baseDelay: baseDelay}
}

// Step declares one agent invocation within a sequence.
type Step struct {
	// Name identifies the step in annotations and logs.
	Name string
	// Agent performs the call.
	Agent core.Agent
	// PromptArtifact optionally names an artifact template rendered with
	// {{.Message}}, {{.Context}}, {{.Topics}} and {{.PriorOutput}}. When
	// empty (or no artifact store is wired) a default prompt layout is used.
	PromptArtifact string
	// PromptPath is the artifact path for PromptArtifact.
	PromptPath string
	// Policy is the step's declared failure handling.
	Policy Policy
	// UpdatesMemory marks the step whose output becomes the turn's memory
	// content instead of the default transcript line.
	UpdatesMemory bool
}

// Options holds optional collaborators for a sequential pattern.
type Options struct {
	// Artifacts supplies prompt templates for steps that name one.
	Artifacts core.ArtifactStore
	// Logger receives per-step diagnostics. Defaults to NoOpLogger.
	Logger logging.Logger
}

// Sequential executes its declared steps in order, feeding each step's
// output into the next step's prompt. It implements core.Pattern.
type Sequential struct {
	name      string
	steps     []Step
	artifacts core.ArtifactStore
	logger    logging.Logger
}

// NewSequential builds a sequential pattern from ordered steps.
func NewSequential(name string, steps []Step, optFns ...func(o *Options)) *Sequential {
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Sequential{
		name:      name,
		steps:     steps,
		artifacts: opts.Artifacts,
		logger:    opts.Logger,
	}
}

// Name implements core.Pattern.
func (s *Sequential) Name() string { return s.name }

// Run implements core.Pattern. The turn moves Pending -> Running(step_i) ->
// Completed | Degraded | Failed; a Failed outcome is returned as an error
// before anything is persisted by the caller.
func (s *Sequential) Run(ctx context.Context, turn core.Turn) (core.TurnResult, error) {
	if len(s.steps) == 0 {
		return core.TurnResult{State: core.TurnFailed}, fmt.Errorf("pattern %s has no steps", s.name)
	}

	var (
		priorOutput string
		memoryText  string
		annotations []string
		stepsRun    int
	)

	for i, step := range s.steps {
		prompt, err := s.renderPrompt(ctx, step, turn, priorOutput)
		if err != nil {
			return core.TurnResult{State: core.TurnFailed, Steps: stepsRun},
				fmt.Errorf("pattern %s step %s: %w", s.name, step.Name, err)
		}

		start := time.Now()
		reply, err := s.invoke(ctx, step, prompt)
		stepsRun = i + 1
		if err != nil {
			if !degradable(step.Policy, err) {
				s.logger.Error("step %s failed: %v", step.Name, err)
				return core.TurnResult{State: core.TurnFailed, Steps: stepsRun},
					fmt.Errorf("pattern %s step %s: %w", s.name, step.Name, err)
			}
			s.logger.Warn("step %s degraded after retries: %v", step.Name, err)
			annotations = append(annotations, fmt.Sprintf("step %s unavailable: %v", step.Name, err))
			continue
		}

		turn.Usage.Record(core.SingleAgent(step.Agent.Name()), reply.PromptTokens, reply.CompletionTokens)
		s.logger.Debug("step %s completed in %s tokens=%d",
			step.Name, time.Since(start), reply.PromptTokens+reply.CompletionTokens)

		priorOutput = reply.Text
		if step.UpdatesMemory {
			memoryText = reply.Text
		}
	}

	if priorOutput == "" {
		// Every step degraded; there is no usable response to return.
		return core.TurnResult{State: core.TurnFailed, Steps: stepsRun},
			fmt.Errorf("pattern %s produced no output: %s", s.name, strings.Join(annotations, "; "))
	}

	state := core.TurnCompleted
	annotation := ""
	if len(annotations) > 0 {
		state = core.TurnDegraded
		annotation = strings.Join(annotations, "; ")
	}
	if memoryText == "" {
		memoryText = fmt.Sprintf("user: %s agent: %s", turn.Message, priorOutput)
	}

	return core.TurnResult{
		Response:      priorOutput,
		UpdatedMemory: memoryText,
		State:         state,
		Annotation:    annotation,
		Steps:         stepsRun,
	}, nil
}

// invoke runs one agent call under the step's declared policy.
func (s *Sequential) invoke(ctx context.Context, step Step, prompt string) (core.Reply, error) {
	var pol backoff.BackOff = &backoff.StopBackOff{}
	if step.Policy.kind == policyRetryThenDegrade && step.Policy.maxAttempts > 1 {
		eb := backoff.NewExponentialBackOff()
		if step.Policy.baseDelay > 0 {
			eb.InitialInterval = step.Policy.baseDelay
		}
		pol = backoff.WithMaxRetries(eb, uint64(step.Policy.maxAttempts-1))
	}
	pol = backoff.WithContext(pol, ctx)

	var reply core.Reply
	op := func() error {
		r, err := step.Agent.Invoke(ctx, prompt)
		if err != nil {
			var filtered *core.ContentFilteredError
			if errors.As(err, &filtered) {
				return backoff.Permanent(err)
			}
			var provider *core.ProviderError
			if errors.As(err, &provider) && !provider.Retryable {
				return backoff.Permanent(err)
			}
			return err
		}
		reply = r
		return nil
	}
	if err := backoff.Retry(op, pol); err != nil {
		return core.Reply{}, err
	}
	return reply, nil
}

// degradable reports whether a failed step may continue as a degraded
// partial result under its policy. Aborting policies, content policy
// rejections and context expiry always fail the turn.
func degradable(p Policy, err error) bool {
	if p.kind != policyRetryThenDegrade {
		return false
	}
	var filtered *core.ContentFilteredError
	if errors.As(err, &filtered) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return true
}

// renderPrompt builds the step prompt from its artifact template or the
// default layout.
func (s *Sequential) renderPrompt(ctx context.Context, step Step, turn core.Turn, priorOutput string) (string, error) {
	contextText := turn.Context.Render()
	if step.PromptArtifact != "" && s.artifacts != nil {
		tmpl, err := s.artifacts.Read(ctx, step.PromptArtifact, step.PromptPath)
		if err != nil {
			return "", fmt.Errorf("load prompt artifact %s: %w", step.PromptArtifact, err)
		}
		return util.RenderTemplate(tmpl, map[string]any{
			"Message":     turn.Message,
			"Context":     contextText,
			"Topics":      []string(turn.Topics),
			"PriorOutput": priorOutput,
		})
	}

	var b strings.Builder
	fmt.Fprintf(&b, "CONTEXT:\n%s\n\n", contextText)
	if len(turn.Topics) > 0 {
		fmt.Fprintf(&b, "TOPICS: %s\n\n", strings.Join(turn.Topics, ", "))
	}
	if priorOutput != "" {
		fmt.Fprintf(&b, "PREVIOUS STEP OUTPUT:\n%s\n\n", priorOutput)
	}
	fmt.Fprintf(&b, "USER:\n%s", turn.Message)
	return b.String(), nil
}
