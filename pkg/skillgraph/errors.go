package skillgraph

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for run planning.
var (
	// ErrNodeNotFound indicates a run request references a non-existent node.
	ErrNodeNotFound = errors.New("node not found")

	// ErrNilContext indicates Run() was called with a nil context.
	ErrNilContext = errors.New("context cannot be nil")

	// ErrInvalidMode indicates a run request with an unknown mode.
	ErrInvalidMode = errors.New("invalid run mode")

	// ErrRunInProgress indicates Run() was called while another run of the
	// same Runner is still walking.
	ErrRunInProgress = errors.New("run already in progress")
)

// Sentinel errors for execution.
var (
	// ErrStopped is the cancellation cause when the stop predicate fires.
	ErrStopped = errors.New("run stopped")

	// ErrMissingOutput indicates a skill returned no payload for a declared output port.
	ErrMissingOutput = errors.New("missing output")
)

// ValidationError reports a node that cannot run. It is raised before any
// store is touched.
type ValidationError struct {
	// NodeID is the node that failed validation.
	NodeID string
	// MissingPorts lists required input ports without an active snapshot.
	MissingPorts []string
	// Err is the underlying reason when it is not a missing input.
	Err error
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if len(e.MissingPorts) > 0 {
		return fmt.Sprintf("node %s: missing required inputs: %s", e.NodeID, strings.Join(e.MissingPorts, ", "))
	}
	return fmt.Sprintf("node %s: %v", e.NodeID, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *ValidationError) Unwrap() error {
	return e.Err
}

// CycleError reports that the selected subgraph has no topological order.
// It is raised before any store is touched.
type CycleError struct {
	// Nodes are the selected nodes left unordered, in graph order.
	Nodes []string
}

// Error implements the error interface.
func (e *CycleError) Error() string {
	return fmt.Sprintf("cycle detected among nodes: %s", strings.Join(e.Nodes, ", "))
}

// SkillExecutionError wraps a failed node execution. The run halts at the
// node; results committed before it stand.
type SkillExecutionError struct {
	// NodeID is the node that failed.
	NodeID string
	// SkillID is the skill the node dispatched to.
	SkillID string
	// Err is the executor's error, a *PanicError, or ErrMissingOutput.
	Err error
}

// Error implements the error interface.
func (e *SkillExecutionError) Error() string {
	return fmt.Sprintf("node %s: skill %s: %v", e.NodeID, e.SkillID, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *SkillExecutionError) Unwrap() error {
	return e.Err
}

// PanicError captures a panic raised by a skill executor.
type PanicError struct {
	// NodeID is the identifier of the node that panicked.
	NodeID string
	// Value is the value passed to panic().
	Value any
	// Stack is the full stack trace at the point of panic.
	Stack string
}

// Error implements the error interface.
func (e *PanicError) Error() string {
	return fmt.Sprintf("node %s panicked: %v", e.NodeID, e.Value)
}

// CancellationError reports a run halted between nodes, either by the stop
// predicate or by context cancellation. Completed work is not rolled back.
type CancellationError struct {
	// NodeID is the node that would have run next.
	NodeID string
	// Cause is ErrStopped, context.Canceled or context.DeadlineExceeded.
	Cause error
}

// Error implements the error interface.
func (e *CancellationError) Error() string {
	return fmt.Sprintf("cancelled before node %s: %v", e.NodeID, e.Cause)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *CancellationError) Unwrap() error {
	return e.Cause
}
