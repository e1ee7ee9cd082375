package runtime

import (
	"errors"
	"fmt"
)

// ErrorCategory classifies engine errors for handling decisions.
type ErrorCategory string

const (
	ErrCatExecution ErrorCategory = "execution" // node executor failure
	ErrCatTimeout   ErrorCategory = "timeout"   // node or run budget exceeded
	ErrCatResource  ErrorCategory = "resource"  // file/process operation failed
	ErrCatState     ErrorCategory = "state"     // invalid engine/run state
	ErrCatNotFound  ErrorCategory = "not_found" // unknown run or node
)

// DomainError is a structured error raised inside a run. It never crosses
// the submission boundary as a panic or thrown value; it is recorded on
// the Run and observed via snapshots, history, and events.
type DomainError struct {
	Category  ErrorCategory
	Message   string
	NodeID    string
	Retryable bool
	Cause     error
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	msg := e.Message
	if e.NodeID != "" {
		msg = fmt.Sprintf("node %s: %s", e.NodeID, msg)
	}
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Category, msg, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Category, msg)
}

// Unwrap returns the underlying cause.
func (e *DomainError) Unwrap() error {
	return e.Cause
}

// ErrExecution creates an execution error for a node.
func ErrExecution(nodeID, message string) *DomainError {
	return &DomainError{Category: ErrCatExecution, NodeID: nodeID, Message: message, Retryable: true}
}

// ErrTimeout creates a timeout error.
func ErrTimeout(message string) *DomainError {
	return &DomainError{Category: ErrCatTimeout, Message: message, Retryable: true}
}

// ErrResource creates a resource error.
func ErrResource(message string, cause error) *DomainError {
	return &DomainError{Category: ErrCatResource, Message: message, Cause: cause}
}

// ErrState creates a state error.
func ErrState(message string) *DomainError {
	return &DomainError{Category: ErrCatState, Message: message}
}

// Category extracts the error category, defaulting to execution.
func Category(err error) ErrorCategory {
	var domErr *DomainError
	if errors.As(err, &domErr) {
		return domErr.Category
	}
	return ErrCatExecution
}

// CapacityError is returned synchronously from Submit when the active run
// count has reached the concurrency limit. No run is created and no
// queueing happens in the engine; callers that want queueing wrap Submit.
type CapacityError struct {
	Active int
	Limit  int
}

// Error implements the error interface.
func (e *CapacityError) Error() string {
	return fmt.Sprintf("concurrent workflow limit reached (%d/%d)", e.Active, e.Limit)
}
