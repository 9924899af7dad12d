package junction

import (
	"errors"
	"fmt"
	"syscall"

	"github.com/ehrlich-b/junction/internal/engine"
	"github.com/ehrlich-b/junction/internal/port"
)

// Error is junction's structured error type: an operation name, the
// Channel variant involved (if any), the Port-level (cause, errno) pair
// that produced the failure, a rendered message, and the wrapped
// underlying error. Ports record failing syscalls as a (cause, errno)
// pair; Error carries that pair when a caller builds one with NewError.
// Allocation and setup failures (rallocate, listen, connect) are returned
// as plain wrapped errors, not as *Error.
type Error struct {
	Op         string     // operation that failed ("rallocate", "acquire", "enter", ...)
	ChannelTag string     // freight variant of the Channel involved, if any
	Cause      port.Cause // kcall enumeration: the syscall family that failed
	Errno      syscall.Errno
	Msg        string
	Inner      error
}

// Error implements the error interface.
func (e *Error) Error() string {
	var parts []string
	if e.Op != "" {
		parts = append(parts, fmt.Sprintf("op=%s", e.Op))
	}
	if e.ChannelTag != "" {
		parts = append(parts, fmt.Sprintf("channel=%s", e.ChannelTag))
	}
	if e.Cause != "" && e.Cause != port.CauseNone {
		parts = append(parts, fmt.Sprintf("cause=%s", e.Cause))
	}
	if e.Errno != 0 {
		parts = append(parts, fmt.Sprintf("errno=%d", e.Errno))
	}

	msg := e.Msg
	if msg == "" && e.Inner != nil {
		msg = e.Inner.Error()
	}
	if len(parts) > 0 {
		return fmt.Sprintf("junction: %s (%s)", msg, parts[0])
	}
	return fmt.Sprintf("junction: %s", msg)
}

// Unwrap returns the wrapped error for errors.Is/As support.
func (e *Error) Unwrap() error { return e.Inner }

// Is compares by Cause, so errors.Is matches any Error sharing the same
// failing syscall family regardless of op or message.
func (e *Error) Is(target error) bool {
	te, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Cause == te.Cause
}

// NewError builds an Error for ch (nil for Junction-level failures with no
// owning Channel, e.g. a bad rallocate spec).
func NewError(op string, ch *Channel, cause port.Cause, inner error) *Error {
	e := &Error{Op: op, Cause: cause, Inner: inner}
	if ch != nil {
		e.ChannelTag = ch.Variant()
	}
	if inner != nil {
		e.Msg = inner.Error()
		var errno syscall.Errno
		if errors.As(inner, &errno) {
			e.Errno = errno
		}
	}
	return e
}

// Programmer-error sentinels: these fail fast to the caller without
// touching engine state, distinct from the per-Channel/per-Junction
// faults carried through Error.
var (
	ErrCycleAlreadyOpen          = errors.New("junction: cycle already open")
	ErrChannelForeign            = errors.New("junction: channel belongs to another junction")
	ErrResourceStillTransferable = errors.New("junction: previous resource has not been exhausted")
	ErrResizeDuringCycle         = errors.New("junction: cannot resize exoresource during a cycle")
)

// IsCause reports whether err is a *Error with the given Port cause.
func IsCause(err error, cause port.Cause) bool {
	var je *Error
	if errors.As(err, &je) {
		return je.Cause == cause
	}
	return false
}

// engineErr maps the internal/engine sentinels that have a public
// counterpart onto this package's programmer-error sentinels.
// engine.ErrAlreadyTerminating (acquiring a resource on a terminating
// Channel) has no public counterpart and is returned unchanged.
func engineErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, engine.ErrCycleAlreadyOpen):
		return ErrCycleAlreadyOpen
	case errors.Is(err, engine.ErrResizeDuringCycle):
		return ErrResizeDuringCycle
	case errors.Is(err, engine.ErrResourceStillTransferable):
		return ErrResourceStillTransferable
	case errors.Is(err, engine.ErrForeignChannel):
		return ErrChannelForeign
	default:
		return err
	}
}
