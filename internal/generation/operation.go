package generation

import (
	"errors"
	"time"
)

// OperationState is the state of a long-running provider operation.
type OperationState string

const (
	// StateStarted is entered as soon as the adapter returns a handle.
	StateStarted OperationState = "STARTED"
	// StatePolling means the provider reported the operation as not complete.
	StatePolling OperationState = "POLLING"
	// StateDone means the operation finished with a non-empty result.
	StateDone OperationState = "DONE"
	// StateFailed means the operation failed, timed out or returned nothing.
	StateFailed OperationState = "FAILED"
)

// ErrInvalidTransition is returned when an invalid state transition is attempted.
var ErrInvalidTransition = errors.New("generation: invalid operation state transition")

// ReasonEmptyResult is the failure reason for operations that complete without
// any result.
const ReasonEmptyResult = "empty result"

var operationTransitions = map[OperationState][]OperationState{
	StateStarted: {StatePolling, StateDone, StateFailed},
	StatePolling: {StatePolling, StateDone, StateFailed},
	StateDone:    {},
	StateFailed:  {},
}

func canTransitionOperation(from, to OperationState) bool {
	for _, s := range operationTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Operation tracks one long-running provider job. It is owned by the Poller
// for the duration of a single attempt and discarded once consumed.
type Operation struct {
	Provider   string
	Handle     string
	State      OperationState
	CreatedAt  time.Time
	LastPollAt time.Time
	Polls      int
	// Result is set when State is DONE.
	Result *RawAsset
	// FailureKind and Failure are set when State is FAILED.
	FailureKind ErrorKind
	Failure     string
}

// NewOperation creates an operation in the STARTED state.
func NewOperation(provider, handle string, now time.Time) *Operation {
	return &Operation{
		Provider:  provider,
		Handle:    handle,
		State:     StateStarted,
		CreatedAt: now,
	}
}

func (o *Operation) transitionTo(to OperationState) error {
	if !canTransitionOperation(o.State, to) {
		return ErrInvalidTransition
	}
	o.State = to
	return nil
}

// MarkPolling records a not-yet-complete observation.
func (o *Operation) MarkPolling(now time.Time) error {
	if err := o.transitionTo(StatePolling); err != nil {
		return err
	}
	o.LastPollAt = now
	return nil
}

// Complete moves the operation to DONE. An empty result is refused and the
// operation fails with ReasonEmptyResult instead.
func (o *Operation) Complete(result RawAsset, now time.Time) error {
	if result.IsEmpty() {
		return o.Fail(KindInvalidResponse, ReasonEmptyResult, now)
	}
	if err := o.transitionTo(StateDone); err != nil {
		return err
	}
	o.Result = &result
	o.LastPollAt = now
	return nil
}

// Fail moves the operation to FAILED.
func (o *Operation) Fail(kind ErrorKind, reason string, now time.Time) error {
	if err := o.transitionTo(StateFailed); err != nil {
		return err
	}
	o.FailureKind = kind
	o.Failure = reason
	o.LastPollAt = now
	return nil
}

// IsTerminal returns true if the operation is DONE or FAILED.
func (o *Operation) IsTerminal() bool {
	return o.State == StateDone || o.State == StateFailed
}

// Err returns the classified error of a FAILED operation, nil otherwise.
func (o *Operation) Err() error {
	if o.State != StateFailed {
		return nil
	}
	return Errorf(o.FailureKind, o.Provider, "poll", "operation %s: %s", o.Handle, o.Failure)
}
