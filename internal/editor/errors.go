package editor

import (
	"errors"
	"fmt"
)

var (
	// ErrLogNotFound means no log path exists yet for this editor; the
	// editor has never been launched by this manager.
	ErrLogNotFound = errors.New("editor: no log file recorded")

	// ErrAlreadyRunning means Launch was called while an editor for this
	// project is launching or running.
	ErrAlreadyRunning = errors.New("editor: already running")
)

// BuildRequiredError is returned by Launch when the project's C++ binaries
// are missing or stale. Launching anyway would either fail outright or pop
// a blocking rebuild dialog, so the caller is told to build first.
type BuildRequiredError struct {
	Reason string
}

func (e *BuildRequiredError) Error() string {
	return fmt.Sprintf("editor: project build required (%s); build the project and retry", e.Reason)
}

// LaunchError wraps a failure to start or connect to the editor process.
type LaunchError struct {
	Stage string // "spawn", "discovery", "connect", "crash"
	Err   error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("editor: launch failed at %s: %v", e.Stage, e.Err)
}

func (e *LaunchError) Unwrap() error { return e.Err }

// CrashError carries the classification of an unexpected editor exit.
type CrashError struct {
	ExitCode  int
	Indicator string // crash string found in the log, if any
}

func (e *CrashError) Error() string {
	if e.Indicator != "" {
		return fmt.Sprintf("editor: crashed (exit code %d, log: %q)", e.ExitCode, e.Indicator)
	}
	return fmt.Sprintf("editor: crashed (exit code %d)", e.ExitCode)
}
