// Package errors provides centralized error definitions and error handling
// utilities for crossing. It defines the error taxonomy of the scheduling
// core, error constructors with context wrapping, and classification helpers.
//
// # Error Types
//
//   - PreconditionError: a caller broke a contract (empty zone path,
//     non-positive speed, UCB evaluated on an unvisited node). Fatal.
//   - InfeasibleError: the simulator could not place a vehicle, so no
//     proposal can be produced. Surfaced to the caller, never defaulted.
//   - MalformedMessageError: an inbound payload had the wrong arity, type
//     or version. Receivers discard the single message and continue.
//   - ConsensusError: the consensus state machine gave up in a phase.
//
// # Usage
//
//	err := errors.NewPreconditionError("zone path", errors.ErrEmptyPath).
//		WithVehicle("0/1/2")
//
//	if errors.Is(err, errors.ErrEmptyPath) { ... }
//
//	var pe *errors.PreconditionError
//	if errors.As(err, &pe) { ... }
//
//	if errors.IsFatal(err) { ... }
//
// Nothing in the core retries automatically; IsRetryable exists so callers
// outside the core can make that decision explicitly.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Re-export standard library functions for convenience.
// This allows callers to import only this package for all error handling.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	New    = errors.New
	Join   = errors.Join
)

// Severity represents the severity level of an error.
type Severity int

const (
	// SeverityDebug is for errors that are useful for debugging but not critical.
	SeverityDebug Severity = iota
	// SeverityInfo is for informational errors that don't indicate a problem.
	SeverityInfo
	// SeverityWarning is for errors that might indicate a problem but aren't critical.
	SeverityWarning
	// SeverityError is for errors that indicate a real problem.
	SeverityError
	// SeverityCritical is for errors that must stop the participant.
	SeverityCritical
)

// String returns the string representation of the severity level.
func (s Severity) String() string {
	switch s {
	case SeverityDebug:
		return "debug"
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// -----------------------------------------------------------------------------
// Sentinel Errors
// -----------------------------------------------------------------------------

// Precondition sentinel errors
var (
	// ErrEmptyPath indicates a lane/destination pair that crosses no zone.
	ErrEmptyPath = New("conflict zone path is empty")
	// ErrInvalidLane indicates a lane index outside 0..3.
	ErrInvalidLane = New("invalid lane")
	// ErrNonPositiveSpeed indicates a vehicle whose speed is not strictly positive.
	ErrNonPositiveSpeed = New("speed must be positive")
	// ErrUnvisitedNode indicates UCB was evaluated on a node with zero visits.
	ErrUnvisitedNode = New("ucb evaluated on unvisited node")
)

// Infeasibility sentinel errors
var (
	// ErrMissingState indicates a vehicle in the order has no kinematic snapshot.
	ErrMissingState = New("missing kinematic state")
	// ErrNoProposal indicates a leader could not produce a proposal.
	ErrNoProposal = New("no proposal")
	// ErrRoundLimit indicates an episode that did not finish within its round budget.
	ErrRoundLimit = New("round limit reached")
)

// Message sentinel errors
var (
	// ErrMalformed indicates a payload with wrong arity or field types.
	ErrMalformed = New("malformed message")
	// ErrUnsupportedVersion indicates a payload with an unknown schema version.
	ErrUnsupportedVersion = New("unsupported message version")
)

// Consensus sentinel errors
var (
	// ErrPhaseTimeout indicates a leader stayed in one phase too many rounds.
	ErrPhaseTimeout = New("consensus phase timed out")
	// ErrCanceled indicates that an operation was canceled.
	ErrCanceled = New("operation canceled")
	// ErrInvalidInput indicates that input validation failed.
	ErrInvalidInput = New("invalid input")
)

// -----------------------------------------------------------------------------
// Base Error Interface
// -----------------------------------------------------------------------------

// CrossingError is the base interface for all crossing errors.
type CrossingError interface {
	error

	// Unwrap returns the underlying error, if any.
	Unwrap() error

	// Is reports whether this error matches the target error.
	Is(target error) bool

	// Severity returns the severity level of this error.
	Severity() Severity

	// IsRetryable returns true if the operation may succeed on retry.
	IsRetryable() bool

	// IsFatal returns true if the participant that hit the error must stop.
	IsFatal() bool
}

// baseError provides common functionality for all error types.
type baseError struct {
	message   string
	cause     error
	severity  Severity
	retryable bool
	fatal     bool
}

// Error returns the error message.
func (e *baseError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

// Unwrap returns the underlying error.
func (e *baseError) Unwrap() error {
	return e.cause
}

// Is checks if this error matches the target.
func (e *baseError) Is(target error) bool {
	if e.cause != nil {
		return errors.Is(e.cause, target)
	}
	return false
}

// Severity returns the error severity.
func (e *baseError) Severity() Severity {
	return e.severity
}

// IsRetryable returns whether the error is retryable.
func (e *baseError) IsRetryable() bool {
	return e.retryable
}

// IsFatal returns whether the error must stop the participant.
func (e *baseError) IsFatal() bool {
	return e.fatal
}

// formatWithContext renders "<kind> [k=v, ...]: message: cause".
func formatWithContext(kind string, parts []string, message string, cause error) string {
	prefix := kind
	if len(parts) > 0 {
		prefix = fmt.Sprintf("%s [%s]", kind, strings.Join(parts, ", "))
	}
	if cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, message, cause)
	}
	return fmt.Sprintf("%s: %s", prefix, message)
}

// -----------------------------------------------------------------------------
// Domain-Specific Errors
// -----------------------------------------------------------------------------

// PreconditionError represents a broken caller contract.
//
// Example:
//
//	err := errors.NewPreconditionError("cannot route vehicle", errors.ErrEmptyPath).WithVehicle("0/1/2")
//	fmt.Println(err) // "precondition violation [vehicle=0/1/2]: cannot route vehicle: conflict zone path is empty"
type PreconditionError struct {
	baseError
	Vehicle string
}

// NewPreconditionError creates a new PreconditionError.
func NewPreconditionError(message string, cause error) *PreconditionError {
	return &PreconditionError{
		baseError: baseError{
			message:  message,
			cause:    cause,
			severity: SeverityCritical,
			fatal:    true,
		},
	}
}

// WithVehicle adds a vehicle identity to the error context.
func (e *PreconditionError) WithVehicle(id string) *PreconditionError {
	e.Vehicle = id
	return e
}

// Error returns the formatted error message.
func (e *PreconditionError) Error() string {
	var parts []string
	if e.Vehicle != "" {
		parts = append(parts, fmt.Sprintf("vehicle=%s", e.Vehicle))
	}
	return formatWithContext("precondition violation", parts, e.message, e.cause)
}

// Is checks if this error matches the target.
func (e *PreconditionError) Is(target error) bool {
	if _, ok := target.(*PreconditionError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// InfeasibleError represents a schedule the simulator could not build.
//
// Example:
//
//	err := errors.NewInfeasibleError("simulate order", errors.ErrMissingState).WithVehicle("1/0/3")
type InfeasibleError struct {
	baseError
	Vehicle string
}

// NewInfeasibleError creates a new InfeasibleError.
func NewInfeasibleError(message string, cause error) *InfeasibleError {
	return &InfeasibleError{
		baseError: baseError{
			message:  message,
			cause:    cause,
			severity: SeverityError,
		},
	}
}

// WithVehicle adds a vehicle identity to the error context.
func (e *InfeasibleError) WithVehicle(id string) *InfeasibleError {
	e.Vehicle = id
	return e
}

// Error returns the formatted error message.
func (e *InfeasibleError) Error() string {
	var parts []string
	if e.Vehicle != "" {
		parts = append(parts, fmt.Sprintf("vehicle=%s", e.Vehicle))
	}
	return formatWithContext("infeasible schedule", parts, e.message, e.cause)
}

// Is checks if this error matches the target.
func (e *InfeasibleError) Is(target error) bool {
	if _, ok := target.(*InfeasibleError); ok {
		return true
	}
	if target == ErrNoProposal {
		return true
	}
	return e.baseError.Is(target)
}

// MalformedMessageError represents an inbound payload that failed validation.
//
// Example:
//
//	err := errors.NewMalformedMessageError("expected 11 fields", errors.ErrMalformed).WithTopic("state/0/1/2")
type MalformedMessageError struct {
	baseError
	Topic string
}

// NewMalformedMessageError creates a new MalformedMessageError.
func NewMalformedMessageError(message string, cause error) *MalformedMessageError {
	if cause == nil {
		cause = ErrMalformed
	}
	return &MalformedMessageError{
		baseError: baseError{
			message:  message,
			cause:    cause,
			severity: SeverityWarning,
		},
	}
}

// WithTopic adds the topic the payload arrived on.
func (e *MalformedMessageError) WithTopic(topic string) *MalformedMessageError {
	e.Topic = topic
	return e
}

// Error returns the formatted error message.
func (e *MalformedMessageError) Error() string {
	var parts []string
	if e.Topic != "" {
		parts = append(parts, fmt.Sprintf("topic=%s", e.Topic))
	}
	return formatWithContext("malformed message", parts, e.message, e.cause)
}

// Is checks if this error matches the target.
func (e *MalformedMessageError) Is(target error) bool {
	if _, ok := target.(*MalformedMessageError); ok {
		return true
	}
	if target == ErrMalformed {
		return true
	}
	return e.baseError.Is(target)
}

// ConsensusError represents a leader that could not finish the protocol.
//
// Example:
//
//	err := errors.NewConsensusError("gave up", errors.ErrPhaseTimeout).WithPhase("COLLECT_SCORES").WithFleet(1, 0)
type ConsensusError struct {
	baseError
	Phase string
	Lane  int
	Fleet int
}

// NewConsensusError creates a new ConsensusError.
func NewConsensusError(message string, cause error) *ConsensusError {
	return &ConsensusError{
		baseError: baseError{
			message:  message,
			cause:    cause,
			severity: SeverityError,
			fatal:    true,
		},
		Lane:  -1, // -1 indicates not set
		Fleet: -1,
	}
}

// WithPhase adds a phase name to the error context.
func (e *ConsensusError) WithPhase(phase string) *ConsensusError {
	e.Phase = phase
	return e
}

// WithFleet adds the leader's fleet to the error context.
func (e *ConsensusError) WithFleet(lane, fleet int) *ConsensusError {
	e.Lane = lane
	e.Fleet = fleet
	return e
}

// Error returns the formatted error message.
func (e *ConsensusError) Error() string {
	var parts []string
	if e.Phase != "" {
		parts = append(parts, fmt.Sprintf("phase=%s", e.Phase))
	}
	if e.Lane >= 0 && e.Fleet >= 0 {
		parts = append(parts, fmt.Sprintf("fleet=%d/%d", e.Lane, e.Fleet))
	}
	return formatWithContext("consensus error", parts, e.message, e.cause)
}

// Is checks if this error matches the target.
func (e *ConsensusError) Is(target error) bool {
	if _, ok := target.(*ConsensusError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// Error Classification Helpers
// -----------------------------------------------------------------------------

// IsFatal returns true if the error must stop the participant that hit it.
// Context cancellation is fatal as well.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	var ce CrossingError
	if As(err, &ce) {
		return ce.IsFatal()
	}
	return Is(err, ErrCanceled)
}

// IsRetryable returns true if the error represents a transient condition.
// The scheduling core never produces retryable errors.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var ce CrossingError
	if As(err, &ce) {
		return ce.IsRetryable()
	}
	return false
}

// GetSeverity returns the severity of an error, defaulting to SeverityError
// for errors that do not carry one.
func GetSeverity(err error) Severity {
	if err == nil {
		return SeverityDebug
	}
	var ce CrossingError
	if As(err, &ce) {
		return ce.Severity()
	}
	return SeverityError
}

// Wrap adds a message to an error, preserving it for Is/As.
// Returns nil if err is nil.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}
