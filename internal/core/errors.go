package core

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// NotInstalledError is returned when removing a package that has no record
type NotInstalledError struct {
	Name string
}

func (e *NotInstalledError) Error() string {
	return fmt.Sprintf("package %q is not installed", e.Name)
}

// FormatMismatchError is returned when an upgrade crosses package formats
type FormatMismatchError struct {
	Name string
	Old  FormatTag
	New  FormatTag
}

func (e *FormatMismatchError) Error() string {
	return fmt.Sprintf("cannot upgrade %q from %s package to %s package", e.Name, e.Old, e.New)
}

// UnsupportedFormatError is returned for a format tag outside the known set
type UnsupportedFormatError struct {
	Format string
}

func (e *UnsupportedFormatError) Error() string {
	return fmt.Sprintf("unsupported package format: %q", e.Format)
}

// ScriptletLaunchError means the scriptlet body could not be started
type ScriptletLaunchError struct {
	Phase Phase
	Owner Owner
	Err   error
}

func (e *ScriptletLaunchError) Error() string {
	return fmt.Sprintf("%s scriptlet (%s package) could not be started: %v", e.Phase, e.Owner, e.Err)
}

func (e *ScriptletLaunchError) Unwrap() error { return e.Err }

// ScriptletTimeoutError means the scriptlet exceeded its time budget and was killed
type ScriptletTimeoutError struct {
	Phase   Phase
	Owner   Owner
	Timeout time.Duration
}

func (e *ScriptletTimeoutError) Error() string {
	return fmt.Sprintf("%s scriptlet (%s package) timed out after %s", e.Phase, e.Owner, e.Timeout)
}

// ScriptletExitError means the scriptlet ran and exited non-zero
type ScriptletExitError struct {
	Phase    Phase
	Owner    Owner
	ExitCode int
	Stderr   string
}

func (e *ScriptletExitError) Error() string {
	return fmt.Sprintf("%s scriptlet (%s package) failed with exit code %d", e.Phase, e.Owner, e.ExitCode)
}

// DatabaseError wraps a failure reading or writing the package database
type DatabaseError struct {
	Op  string
	Err error
}

func (e *DatabaseError) Error() string {
	return fmt.Sprintf("package database %s: %v", e.Op, e.Err)
}

func (e *DatabaseError) Unwrap() error { return e.Err }

// IsScriptletError reports whether err originates from running a scriptlet
func IsScriptletError(err error) bool {
	var launch *ScriptletLaunchError
	var timeout *ScriptletTimeoutError
	var exit *ScriptletExitError
	return errors.As(err, &launch) || errors.As(err, &timeout) || errors.As(err, &exit)
}

// Exit codes
const (
	ExitSuccess         = 0
	ExitGeneral         = 1
	ExitInvalidArgs     = 2
	ExitInstallFailed   = 3
	ExitRemoveFailed    = 4
	ExitDatabase        = 5
	ExitNotInstalled    = 6
	ExitFormatMismatch  = 7
	ExitScriptletFailed = 8
	ExitInterrupted     = 130
)

// ExitCodeFor maps an error from a transaction to a process exit code
func ExitCodeFor(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var notInstalled *NotInstalledError
	var mismatch *FormatMismatchError
	var dbErr *DatabaseError
	var unsupported *UnsupportedFormatError

	switch {
	case errors.Is(err, context.Canceled):
		return ExitInterrupted
	case errors.As(err, &notInstalled):
		return ExitNotInstalled
	case errors.As(err, &mismatch):
		return ExitFormatMismatch
	case errors.As(err, &dbErr):
		return ExitDatabase
	case errors.As(err, &unsupported):
		return ExitInvalidArgs
	case IsScriptletError(err):
		return ExitScriptletFailed
	default:
		return ExitGeneral
	}
}
