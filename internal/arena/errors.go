package arena

import (
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// Sentinel errors for every fault kind. Concrete error values wrap one of
// these so hosts can classify a failed run with errors.Is. Sentinels carry
// no stack of their own; the stack is attached where a fault is raised.
var (
	// ErrTypeViolation is returned when a container is asked to store a
	// value whose kind is outside its allowed set.
	ErrTypeViolation = stderrors.New("type violation")
	// ErrUnsupportedOperation is returned by abstract defaults that a
	// concrete game or agent did not override.
	ErrUnsupportedOperation = stderrors.New("unsupported operation")
	// ErrIllegalMove is returned by games for move ids outside the legal set.
	ErrIllegalMove = stderrors.New("illegal move")
	// ErrAgentMoveFault is returned when an agent made too few or too many
	// moves during its turn.
	ErrAgentMoveFault = stderrors.New("agent move fault")
	// ErrOutOfTurn is returned when a move is submitted outside the
	// submitting seat's turn.
	ErrOutOfTurn = stderrors.New("move submitted out of turn")
	// ErrIndexOutOfRange is returned by container accessors.
	ErrIndexOutOfRange = stderrors.New("index out of range")
	// ErrAlreadySet is returned when a result field is filled twice.
	ErrAlreadySet = stderrors.New("result field already set")
	// ErrKeysSealed is returned when the state key index is written after setup.
	ErrKeysSealed = stderrors.New("state keys are sealed after setup")
	// ErrTurnLimit is returned when a run exceeds the host's turn limit.
	ErrTurnLimit = stderrors.New("turn limit exceeded")
	// ErrNoSeats is returned when a game is run without agent factories.
	ErrNoSeats = stderrors.New("game has no seats")
	// ErrGameReused is returned when Run is handed a game that has already run.
	ErrGameReused = stderrors.New("game instance has already been run")
)

// TypeViolationError names the offending kind and the container's allowed set.
type TypeViolationError struct {
	Container string
	Got       Kind
	GoType    string
	Allowed   KindSet
}

func (e *TypeViolationError) Error() string {
	return fmt.Sprintf("%s only accepts %s but was passed %s (%s)",
		e.Container, e.Allowed, e.Got, e.GoType)
}

// Unwrap allows errors.Is(err, ErrTypeViolation).
func (e *TypeViolationError) Unwrap() error { return ErrTypeViolation }

// UnsupportedOperationError names the operation that must be overridden.
type UnsupportedOperationError struct {
	Op string
}

func (e *UnsupportedOperationError) Error() string {
	return e.Op + " must be overridden"
}

// Unwrap allows errors.Is(err, ErrUnsupportedOperation).
func (e *UnsupportedOperationError) Unwrap() error { return ErrUnsupportedOperation }

// IllegalMoveError describes a rejected move.
type IllegalMoveError struct {
	Move   MoveID
	Reason string
}

func (e *IllegalMoveError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("illegal move %d", e.Move)
	}
	return fmt.Sprintf("illegal move %d: %s", e.Move, e.Reason)
}

// Unwrap allows errors.Is(err, ErrIllegalMove).
func (e *IllegalMoveError) Unwrap() error { return ErrIllegalMove }

// Bound identifies which side of the turn bounds was violated.
type Bound string

const (
	BoundMin Bound = "min"
	BoundMax Bound = "max"
)

// AgentMoveFaultError is raised by the orchestrator when a turn ends with a
// move count outside the game's declared bounds.
type AgentMoveFaultError struct {
	Game   string
	Seat   int
	Bound  Bound
	Limit  int
	Actual int
}

func (e *AgentMoveFaultError) Error() string {
	if e.Bound == BoundMin {
		return fmt.Sprintf("%s requires at least %d moves per turn, seat %d made %d",
			e.Game, e.Limit, e.Seat, e.Actual)
	}
	return fmt.Sprintf("%s prohibits more than %d moves per turn, seat %d made %d",
		e.Game, e.Limit, e.Seat, e.Actual)
}

// Unwrap allows errors.Is(err, ErrAgentMoveFault).
func (e *AgentMoveFaultError) Unwrap() error { return ErrAgentMoveFault }

// PanicError wraps a value recovered from a panic inside game or agent code.
type PanicError struct {
	Value any
	Stack string
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// Unwrap exposes a panicked error value to errors.Is / errors.As.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// NewIllegalMove builds an IllegalMove fault carrying a stack trace.
func NewIllegalMove(id MoveID, reason string) error {
	return errors.WithStack(&IllegalMoveError{Move: id, Reason: reason})
}

func unsupported(op string) error {
	return errors.WithStack(&UnsupportedOperationError{Op: op})
}

func typeViolation(container string, allowed KindSet, v any) error {
	return errors.WithStack(&TypeViolationError{
		Container: container,
		Got:       KindOf(v),
		GoType:    fmt.Sprintf("%T", v),
		Allowed:   allowed,
	})
}

func indexOutOfRange(i, n int) error {
	return errors.Wrapf(ErrIndexOutOfRange, "index %d, length %d", i, n)
}

type stackTracer interface {
	StackTrace() errors.StackTrace
}

// traceOf renders the deepest stack trace attached to err, if any.
func traceOf(err error) string {
	var deepest stackTracer
	for e := err; e != nil; e = errors.Unwrap(e) {
		if st, ok := e.(stackTracer); ok {
			deepest = st
		}
	}
	if deepest == nil {
		return ""
	}
	return strings.TrimPrefix(fmt.Sprintf("%+v", deepest.StackTrace()), "\n")
}
