// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"errors"
	"fmt"

	"github.com/respack/respack/internal/issue"
	"github.com/respack/respack/pkg/types"
)

// ExitError signals a non-zero exit code without forcing os.Exit in RunE handlers.
// An ExitError without Err means the command already reported the failure.
type ExitError struct {
	Code types.ExitCode
	Err  error
}

// Error returns the error message for ExitError.
func (e *ExitError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("exit status %d", e.Code)
}

// Unwrap returns the underlying error, if any.
func (e *ExitError) Unwrap() error {
	return e.Err
}

// exitCodeFor maps an error returned by a command to the process exit status.
func exitCodeFor(err error) types.ExitCode {
	if err == nil {
		return types.ExitOK
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}

	id, ok := issue.IssueOf(err)
	if !ok {
		return types.ExitFailure
	}
	switch id {
	case issue.ConfigInvalidId:
		return types.ExitConfig
	case issue.UnexpectedArtifactId, issue.DescriptorMalformedId, issue.ManifestInvalidId, issue.WorkDirNotFoundId:
		return types.ExitInput
	case issue.ArchiveFailedId, issue.CleanupFailedId, issue.PermissionDeniedId:
		return types.ExitIO
	default:
		return types.ExitFailure
	}
}
