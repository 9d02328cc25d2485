// SPDX-License-Identifier: MPL-2.0

// Package types holds small value types shared by the CLI and the packages
// it drives. It imports only the standard library.
package types

import (
	"errors"
	"fmt"
	"strconv"
)

// Exit statuses of the respack binary.
const (
	// ExitOK reports a complete build.
	ExitOK ExitCode = 0
	// ExitFailure is any failure without a more specific code.
	ExitFailure ExitCode = 1
	// ExitConfig reports a build rejected before any file was touched.
	ExitConfig ExitCode = 2
	// ExitInput reports a generated tree or manifest that cannot be packaged.
	ExitInput ExitCode = 3
	// ExitIO reports a filesystem or archive failure part way through a build.
	ExitIO ExitCode = 4
	// ExitVerify reports a resource whose signature does not match.
	ExitVerify ExitCode = 5
)

// ErrInvalidExitCode is the sentinel error wrapped by InvalidExitCodeError.
var ErrInvalidExitCode = errors.New("invalid exit code")

type (
	// ExitCode represents a process exit status code.
	// Exit codes are in the range 0-255 on POSIX systems.
	// The zero value (0) means success.
	ExitCode int

	// InvalidExitCodeError is returned when an ExitCode is outside the
	// valid range (0-255).
	InvalidExitCodeError struct {
		Value ExitCode
	}
)

// Error implements the error interface.
func (e *InvalidExitCodeError) Error() string {
	return fmt.Sprintf("invalid exit code %d (must be in range 0-255)", e.Value)
}

// Unwrap returns ErrInvalidExitCode so callers can use errors.Is for programmatic detection.
func (e *InvalidExitCodeError) Unwrap() error { return ErrInvalidExitCode }

// Validate returns an error if the ExitCode is outside the valid range (0-255).
func (c ExitCode) Validate() error {
	if c < 0 || c > 255 {
		return &InvalidExitCodeError{Value: c}
	}
	return nil
}

// IsSuccess returns true if the exit code indicates a complete build.
func (c ExitCode) IsSuccess() bool { return c == ExitOK }

// String returns the decimal string representation of the ExitCode.
func (c ExitCode) String() string { return strconv.Itoa(int(c)) }
