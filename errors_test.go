package junction

import (
	"errors"
	"fmt"
	"syscall"
	"testing"

	"github.com/ehrlich-b/junction/internal/port"
)

func TestNewError(t *testing.T) {
	err := NewError("transfer", nil, port.CauseRead, fmt.Errorf("boom"))

	if err.Op != "transfer" {
		t.Errorf("Op = %q, want transfer", err.Op)
	}
	if err.Cause != port.CauseRead {
		t.Errorf("Cause = %q, want %q", err.Cause, port.CauseRead)
	}
	if err.Msg != "boom" {
		t.Errorf("Msg = %q, want boom", err.Msg)
	}
}

func TestErrorChannelTag(t *testing.T) {
	ch := &Channel{variant: "octets"}
	err := NewError("rallocate", ch, port.CauseNone, nil)

	if err.ChannelTag != "octets" {
		t.Errorf("ChannelTag = %q, want octets", err.ChannelTag)
	}
}

func TestErrorErrnoUnwrap(t *testing.T) {
	err := NewError("transfer", nil, port.CauseWrite, syscall.EPIPE)

	if err.Errno != syscall.EPIPE {
		t.Errorf("Errno = %v, want EPIPE", err.Errno)
	}
	if !errors.Is(err, syscall.EPIPE) {
		t.Error("expected errors.Is to unwrap to syscall.EPIPE")
	}
}

func TestIsCause(t *testing.T) {
	err := NewError("transfer", nil, port.CauseRead, nil)

	if !IsCause(err, port.CauseRead) {
		t.Error("IsCause should match the recorded cause")
	}
	if IsCause(err, port.CauseWrite) {
		t.Error("IsCause should not match a different cause")
	}
	if IsCause(nil, port.CauseRead) {
		t.Error("IsCause should return false for a nil error")
	}
	if IsCause(errors.New("plain"), port.CauseRead) {
		t.Error("IsCause should return false for a non-*Error")
	}
}

func TestErrorIs(t *testing.T) {
	a := &Error{Cause: port.CauseRead}
	b := &Error{Cause: port.CauseRead}
	c := &Error{Cause: port.CauseWrite}

	if !errors.Is(a, b) {
		t.Error("two *Error with the same Cause should satisfy errors.Is")
	}
	if errors.Is(a, c) {
		t.Error("two *Error with different Cause should not satisfy errors.Is")
	}
}

func TestProgrammerErrorSentinels(t *testing.T) {
	sentinels := []error{
		ErrCycleAlreadyOpen,
		ErrChannelForeign,
		ErrResourceStillTransferable,
		ErrResizeDuringCycle,
	}
	for _, err := range sentinels {
		if err.Error() == "" {
			t.Error("sentinel error should have a non-empty message")
		}
	}
}
