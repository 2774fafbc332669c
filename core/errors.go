package core

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrThreadBusy is returned when a turn is already in flight for the
	// requested thread and the configured busy wait elapsed (or was zero).
	ErrThreadBusy = errors.New("thread busy: a turn is already in flight")

	// ErrTurnTimeout is returned when a turn exceeds its configured deadline.
	// Nothing from the expired turn is persisted.
	ErrTurnTimeout = errors.New("turn deadline exceeded")

	// ErrResourceExhausted is returned when a storage backend connection could
	// not be acquired within the brief bounded wait.
	ErrResourceExhausted = errors.New("storage connections exhausted")

	// ErrNoSummary is returned by summary stores when a thread has no
	// persisted memory summary yet.
	ErrNoSummary = errors.New("memory summary not found")
)

// ConfigurationError reports settings required by the resolved workflow or
// storage backend that are missing. Detected before any agent call and never
// retried.
type ConfigurationError struct {
	Missing []string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("missing required configuration: %s", strings.Join(e.Missing, ", "))
}

// UnknownWorkflowError reports an unresolvable conversation flow name along
// with the registered names the caller may use instead.
type UnknownWorkflowError struct {
	Name  string
	Known []string
}

func (e *UnknownWorkflowError) Error() string {
	return fmt.Sprintf("unknown conversation flow %q; valid flows: %s", e.Name, strings.Join(e.Known, ", "))
}

// ProviderError wraps a failed or timed-out agent call. Retryable calls are
// retried per the pattern's step policy; the rest abort the turn.
type ProviderError struct {
	Agent     string
	Retryable bool
	Err       error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("agent %s call failed: %v", e.Agent, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// ContentFilteredError reports an agent call rejected by content policy.
// Never retried and surfaced distinctly from generic provider failures.
type ContentFilteredError struct {
	Agent  string
	Reason string
}

func (e *ContentFilteredError) Error() string {
	return fmt.Sprintf("agent %s response blocked by content policy: %s", e.Agent, e.Reason)
}

// StorageError wraps a backend failure. The turn aborts with no partial
// persistence; only connection acquisition is retried, never data writes.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s failed: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }
