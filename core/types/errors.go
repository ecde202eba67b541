package types

import (
	"errors"
	"fmt"
)

// Provider-level failure classes. Transient ones are retried with backoff at
// the collaborator boundary; the loop itself never retries.
var (
	ErrProviderTimeout     = errors.New("provider timeout")
	ErrProviderRateLimited = errors.New("provider rate limited")
)

// UnrecoverableModelError is a model failure that survived the provider
// retry policy. During Scope or Synthesize it aborts the session, those
// phases run exactly once and have no fallback path.
type UnrecoverableModelError struct {
	Err error
}

func (e *UnrecoverableModelError) Error() string {
	return fmt.Sprintf("unrecoverable model error: %v", e.Err)
}

func (e *UnrecoverableModelError) Unwrap() error {
	return e.Err
}

// PhaseError wraps a fatal failure with the phase it occurred in, so a fatal
// abort can surface where it happened next to the last consistent snapshot.
type PhaseError struct {
	Phase Phase
	Err   error
}

func (e *PhaseError) Error() string {
	return fmt.Sprintf("phase %s: %v", e.Phase, e.Err)
}

func (e *PhaseError) Unwrap() error {
	return e.Err
}

// StopReason explains why the research loop ended.
type StopReason string

const (
	// StopModelSignal is the model's explicit decision that it is done.
	StopModelSignal StopReason = "model_signal"
	// StopBudgetExhausted is the iteration cap, a normal stop reason: the
	// session still produces a best-effort report from gathered evidence.
	StopBudgetExhausted StopReason = "iteration_budget_exhausted"
	// StopCriteriaSatisfied means every declared criterion is satisfied.
	StopCriteriaSatisfied StopReason = "criteria_satisfied"
	// StopCancelled is an external cancellation; in-flight tool calls are
	// drained before the loop returns.
	StopCancelled StopReason = "cancelled"
	// StopModelFailure means the model kept failing after retries mid-loop.
	// The loop ends with what was gathered instead of failing the session.
	StopModelFailure StopReason = "model_failure"
)
