package core

import "context"

// TurnState tracks a pattern run through its lifecycle. Degraded is a
// terminal success carrying an annotation; Failed aborts the turn before any
// persistence occurs.
type TurnState int

const (
	// TurnPending is the initial state before the first step runs.
	TurnPending TurnState = iota
	// TurnRunning covers execution of the declared step sequence.
	TurnRunning
	// TurnCompleted is terminal success with every step healthy.
	TurnCompleted
	// TurnDegraded is terminal success with at least one step replaced by a
	// degraded partial result.
	TurnDegraded
	// TurnFailed is terminal failure; nothing from the turn is persisted.
	TurnFailed
)

// String returns the lowercase state name.
func (s TurnState) String() string {
	switch s {
	case TurnPending:
		return "pending"
	case TurnRunning:
		return "running"
	case TurnCompleted:
		return "completed"
	case TurnDegraded:
		return "degraded"
	case TurnFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Turn is the input handed to a pattern run: the user's message, the derived
// memory context, optional topics and the turn-scoped usage tracker.
type Turn struct {
	ThreadID string
	Message  string
	Context  MemoryContext
	Topics   TopicList
	Usage    *Tracker
}

// TurnResult is the outcome of a pattern run.
type TurnResult struct {
	// Response is the final agent response returned to the caller.
	Response string
	// UpdatedMemory is the new content to fold into the thread's memory
	// summary.
	UpdatedMemory string
	// State is TurnCompleted or TurnDegraded on success.
	State TurnState
	// Annotation describes what degraded when State is TurnDegraded.
	Annotation string
	// Steps is the number of steps that executed.
	Steps int
}

// Pattern executes the declared, deterministic ordered sequence of agent
// calls that makes up a conversation flow. The ordering is fixed by the
// pattern definition, never inferred at runtime. Each step's failure policy
// (retry-then-degrade or abort) is part of its declaration.
type Pattern interface {
	// Name returns the pattern's identity for logging and diagnostics.
	Name() string
	// Run executes the turn. A TurnFailed outcome is reported via the error;
	// the TurnResult is only meaningful when err is nil.
	Run(ctx context.Context, turn Turn) (TurnResult, error)
}
