// Package orchestrator dispatches chat turns: it resolves the requested
// conversation flow, derives the thread's memory context, runs the flow's
// pattern under the per-turn deadline and commits the outcome. Turns on the
// same thread are serialized; distinct threads run in parallel.
package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/threadline-ai/threadline/config"
	"github.com/threadline-ai/threadline/core"
	"github.com/threadline-ai/threadline/logging"
	"github.com/threadline-ai/threadline/memory"
	"github.com/threadline-ai/threadline/workflow"
)

// Orchestrator coordinates one chat turn end to end. It owns no agent or
// workflow state of its own; everything arrives by injection.
type Orchestrator struct {
	registry *workflow.Registry
	store    core.ConversationStore
	memory   *memory.Manager
	cfg      config.Config
	logger   *logging.ChatLogger
	locks    *threadLocks
}

// New wires an Orchestrator. A nil logger falls back to a default JSON
// logger.
func New(registry *workflow.Registry, store core.ConversationStore, mem *memory.Manager, cfg config.Config, logger *logging.ChatLogger) *Orchestrator {
	if logger == nil {
		logger = logging.NewLogger(nil)
	}
	return &Orchestrator{
		registry: registry,
		store:    store,
		memory:   mem,
		cfg:      cfg,
		logger:   logger.WithComponent("orchestrator"),
		locks:    newThreadLocks(),
	}
}

// Dispatch runs one turn. The returned response carries the thread id (newly
// minted when the request omitted one), the persisted message id, the agent
// response and the turn's token accounting. On error nothing from the turn
// is persisted.
func (o *Orchestrator) Dispatch(ctx context.Context, req core.ChatRequest) (core.ChatResponse, error) {
	if strings.TrimSpace(req.UserPrompt) == "" {
		return core.ChatResponse{}, fmt.Errorf("user_prompt must not be empty")
	}

	factory, desc, err := o.registry.Resolve(req.ConversationFlow)
	if err != nil {
		return core.ChatResponse{}, err
	}
	if err := o.checkConfigured(desc); err != nil {
		return core.ChatResponse{}, err
	}

	threadID := req.ThreadID
	if threadID == "" {
		threadID = core.NewID()
	}
	turnID := core.NewID()
	log := o.logger.WithThread(threadID, turnID)

	release, err := o.locks.acquire(ctx, threadID, o.cfg.ThreadBusyWait.Std())
	if err != nil {
		log.Warn("turn rejected: %v", err)
		return core.ChatResponse{}, err
	}
	defer release()

	msgs, summary, err := o.loadContext(ctx, threadID)
	if err != nil {
		return core.ChatResponse{}, err
	}
	memCtx := memory.Derive(req.ThreadMemory, summary, msgs)

	turnCtx, cancel := context.WithTimeout(ctx, o.cfg.TurnTimeout.Std())
	defer cancel()

	usage := core.NewTracker()
	pattern := factory()
	start := time.Now()
	result, runErr := pattern.Run(turnCtx, core.Turn{
		ThreadID: threadID,
		Message:  req.UserPrompt,
		Context:  memCtx,
		Topics:   req.Topic,
		Usage:    usage,
	})
	if runErr != nil {
		if turnCtx.Err() == context.DeadlineExceeded {
			runErr = fmt.Errorf("%w (after %s)", core.ErrTurnTimeout, o.cfg.TurnTimeout.Std())
		}
		log.LogTurnExecution(desc.Name, 0, core.TurnFailed.String(), time.Since(start), runErr)
		return core.ChatResponse{}, runErr
	}

	msgID, finalSummary, err := o.commit(ctx, threadID, req, summary, result, usage)
	if err != nil {
		log.LogTurnExecution(desc.Name, result.Steps, core.TurnFailed.String(), time.Since(start), err)
		return core.ChatResponse{}, err
	}
	log.LogTurnExecution(desc.Name, result.Steps, result.State.String(), time.Since(start), nil)

	totals := usage.Totals()
	return core.ChatResponse{
		ThreadID:      threadID,
		MessageID:     msgID,
		AgentResponse: result.Response,
		TokenCount:    totals.TokenCount,
		MaxTokenCount: totals.MaxTokenCount,
		MemorySummary: finalSummary,
	}, nil
}

// Diagnose reports configuration readiness for a flow without executing it.
func (o *Orchestrator) Diagnose(flow string) (workflow.Diagnosis, error) {
	_, desc, err := o.registry.Resolve(flow)
	if err != nil {
		return workflow.Diagnosis{}, err
	}
	return o.registry.Diagnose(desc.Name, o.cfg.WorkflowSettings(desc.Name))
}

// ThreadMessages exposes the last limit messages of a thread in
// chronological order.
func (o *Orchestrator) ThreadMessages(ctx context.Context, threadID string, limit int) ([]core.Message, error) {
	return o.store.ThreadMessages(ctx, threadID, limit)
}

func (o *Orchestrator) checkConfigured(desc workflow.Descriptor) error {
	diag, err := o.registry.Diagnose(desc.Name, o.cfg.WorkflowSettings(desc.Name))
	if err != nil {
		return err
	}
	if !diag.Ready {
		return &core.ConfigurationError{Missing: diag.MissingConfig}
	}
	return nil
}

// loadContext reads the recent history and the stored summary. Reads retry
// on transient storage failures; writes never do.
func (o *Orchestrator) loadContext(ctx context.Context, threadID string) ([]core.Message, string, error) {
	var (
		msgs    []core.Message
		summary string
	)
	op := func() error {
		var err error
		msgs, err = o.store.ThreadMessages(ctx, threadID, o.cfg.HistoryLimit)
		if err != nil {
			return err
		}
		summary, err = o.memory.Read(ctx, threadID)
		return err
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = o.cfg.Retry.BaseDelay.Std()
	retries := uint64(0)
	if o.cfg.Retry.MaxAttempts > 1 {
		retries = uint64(o.cfg.Retry.MaxAttempts - 1)
	}
	if err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(bo, retries), ctx)); err != nil {
		return nil, "", err
	}
	return msgs, summary, nil
}

// commit persists the turn's message, and when memory recording is on, the
// folded summary in the same atomic unit. The per-thread lock is still held
// here, so the read-fold-write on the summary cannot race another turn.
func (o *Orchestrator) commit(ctx context.Context, threadID string, req core.ChatRequest, priorSummary string, result core.TurnResult, usage *core.Tracker) (string, string, error) {
	msg := core.NewMessage(threadID, core.RoleAgent, result.Response, usage.Totals().TokenCount)

	if !req.MemoryRecord {
		id, err := o.store.AppendMessage(ctx, msg)
		if err != nil {
			return "", "", err
		}
		return id, priorSummary, nil
	}

	folded := o.memory.Fold(priorSummary, result.UpdatedMemory)
	id, err := o.store.CommitTurn(ctx, msg, core.NewMemorySummary(threadID, folded))
	if err != nil {
		return "", "", err
	}
	return id, folded, nil
}

// IsBusy reports whether a turn is currently in flight for the thread.
// Intended for health endpoints and tests.
func (o *Orchestrator) IsBusy(threadID string) bool {
	return o.locks.busy(threadID)
}
