package remote

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConnected is returned when an operation requires an active
	// command channel and there is none. Local precondition failure,
	// never retried automatically.
	ErrNotConnected = errors.New("remote: not connected to an editor instance")

	// ErrTimeout is returned when no complete command result assembled
	// within the caller's deadline. Safe to retry.
	ErrTimeout = errors.New("remote: timed out waiting for command result")

	// ErrDiscoveryTimeout is returned when no matching editor announced
	// itself within the discovery window. Retryable by the caller.
	ErrDiscoveryTimeout = errors.New("remote: no matching editor instance discovered")

	// ErrIdentityMismatch is returned when the connected editor's PID does
	// not match the expectation. The channel is torn down before this is
	// surfaced.
	ErrIdentityMismatch = errors.New("remote: editor identity does not match expectation")

	// ErrMalformedStream is returned when bytes on the command channel do
	// not decode as a message. The stream state is unrecoverable; the
	// client tears the channel down when it sees this.
	ErrMalformedStream = errors.New("remote: malformed data on command channel")
)

// IdentityMismatchError carries the PIDs involved in a failed identity
// check. A stale multicast broadcast can point at a port now owned by a
// different editor process; this error lets the caller decide whether to
// retry discovery or abort.
type IdentityMismatchError struct {
	ExpectedPID int
	ActualPID   int
}

func (e *IdentityMismatchError) Error() string {
	if e.ActualPID == 0 {
		return fmt.Sprintf("remote: could not confirm editor PID %d", e.ExpectedPID)
	}
	return fmt.Sprintf("remote: editor PID mismatch: expected %d, got %d", e.ExpectedPID, e.ActualPID)
}

func (e *IdentityMismatchError) Unwrap() error { return ErrIdentityMismatch }
