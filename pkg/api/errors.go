package api

import (
	"errors"
	"fmt"
)

// ErrorKind is the stable, user-visible classification of a failure.
type ErrorKind string

const (
	ErrorKindValidation ErrorKind = "VALIDATION"
	ErrorKindResolution ErrorKind = "RESOLUTION"
	ErrorKindRetryable  ErrorKind = "RETRYABLE"
	ErrorKindFatal      ErrorKind = "FATAL"
	ErrorKindRouting    ErrorKind = "AMBIGUOUS_ROUTING"
	ErrorKindCascade    ErrorKind = "CASCADE"
	ErrorKindTimeout    ErrorKind = "TIMEOUT"
	ErrorKindCancelled  ErrorKind = "CANCELLED"
)

// Validation error codes.
const (
	CodeInvalidDefinition = "INVALID_DEFINITION"
	CodeDuplicateNode     = "DUPLICATE_NODE"
	CodeUnknownEdgeNode   = "UNKNOWN_EDGE_NODE"
	CodeCycleDetected     = "CYCLE_DETECTED"
	CodeNoEntryNode       = "NO_ENTRY_NODE"
	CodeAmbiguousRouting  = "AMBIGUOUS_ROUTING"
)

// ValidationError means the flow definition is structurally invalid.
// Runs for such a definition never start.
type ValidationError struct {
	Code    string
	NodeID  string
	Message string
}

func (e *ValidationError) Error() string {
	if e.NodeID != "" {
		return fmt.Sprintf("flow validation: %s (node %s): %s", e.Code, e.NodeID, e.Message)
	}
	return fmt.Sprintf("flow validation: %s: %s", e.Code, e.Message)
}

// Resolution error codes.
const (
	CodeUnresolvedReference = "UNRESOLVED_REFERENCE"
	CodeTypeMismatch        = "TYPE_MISMATCH"
)

// ResolutionError means a templated expression could not be materialized
// against the run context. It is fatal to the node it occurred on.
type ResolutionError struct {
	Code      string
	Reference string
	Message   string
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("resolve %q: %s: %s", e.Reference, e.Code, e.Message)
}

// ExecutionError wraps an error from a node executor and records whether
// the failure is transient. Executors signal the distinction with
// Retryable / Fatal; plain errors returned by an executor are treated as
// retryable, matching the common case of transient upstream failures.
type ExecutionError struct {
	Retryable bool
	Err       error
}

func (e *ExecutionError) Error() string {
	if e.Retryable {
		return "retryable: " + e.Err.Error()
	}
	return "fatal: " + e.Err.Error()
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// Retryable marks err as a transient failure eligible for retry.
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return &ExecutionError{Retryable: true, Err: err}
}

// Fatal marks err as permanent: the node fails terminally regardless of
// its retry policy.
func Fatal(err error) error {
	if err == nil {
		return nil
	}
	return &ExecutionError{Retryable: false, Err: err}
}

// IsRetryable reports whether err should be retried under a node's retry
// policy. Errors not wrapped by Retryable/Fatal default to retryable.
func IsRetryable(err error) bool {
	var ee *ExecutionError
	if errors.As(err, &ee) {
		return ee.Retryable
	}
	return true
}

// Coordination and lookup sentinels.
var (
	// ErrAlreadyOwned is returned by lease acquisition when another node
	// holds a live lease on the run.
	ErrAlreadyOwned = errors.New("run lease already owned")

	// ErrLeaseExpired is returned by lease renewal when the lease has
	// lapsed or changed owner. The holder must stop dispatching
	// immediately.
	ErrLeaseExpired = errors.New("run lease expired")

	ErrFlowNotFound = errors.New("flow not found")
	ErrRunNotFound  = errors.New("run not found")

	// ErrUnknownKind is returned when no executor is registered for a
	// node's declared kind.
	ErrUnknownKind = errors.New("no executor registered for node kind")

	// ErrRunTerminal is returned when driving or cancelling a run that
	// already reached a terminal status.
	ErrRunTerminal = errors.New("run already terminal")
)
