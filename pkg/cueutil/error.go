// SPDX-License-Identifier: MPL-2.0

package cueutil

import (
	"fmt"
	"strings"

	cueerrors "cuelang.org/go/cue/errors"
)

type (
	// ValidationError is a document that failed schema validation.
	ValidationError struct {
		// Filename names the document.
		Filename string
		// Issues lists each failure with its field path.
		Issues []Issue
	}

	// Issue is one schema violation.
	Issue struct {
		// Path is the JSON-path of the offending field (archive.pin_timestamps,
		// layout.bookkeeping[1]); empty for document-level problems.
		Path    string
		Message string
	}
)

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if len(e.Issues) == 1 {
		return fmt.Sprintf("%s: %s", e.Filename, e.Issues[0])
	}
	lines := make([]string, len(e.Issues))
	for i, issue := range e.Issues {
		lines[i] = issue.String()
	}
	return fmt.Sprintf("%s: validation failed:\n  %s", e.Filename, strings.Join(lines, "\n  "))
}

func (i Issue) String() string {
	if i.Path == "" {
		return i.Message
	}
	return i.Path + ": " + i.Message
}

// FormatError converts a CUE error into a *ValidationError. Errors that do
// not come from CUE are wrapped with the filename.
func FormatError(err error, filename string) error {
	if err == nil {
		return nil
	}

	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return fmt.Errorf("%s: %w", filename, err)
	}

	verr := &ValidationError{Filename: filename}
	for _, e := range errs {
		path := FormatPath(cueerrors.Path(e))
		msg := e.Error()
		// CUE sometimes repeats the path in the message.
		if path != "" {
			if trimmed, ok := strings.CutPrefix(msg, path); ok {
				msg = strings.TrimSpace(strings.TrimPrefix(trimmed, ":"))
			}
		}
		verr.Issues = append(verr.Issues, Issue{Path: path, Message: msg})
	}
	return verr
}

// FormatPath renders a CUE selector path in JSON-path notation, turning
// numeric selectors after the first into indices: ["a", "0", "b"] becomes
// "a[0].b".
func FormatPath(path []string) string {
	var b strings.Builder
	for i, part := range path {
		switch {
		case i > 0 && isIndex(part):
			b.WriteString("[" + part + "]")
		case i > 0:
			b.WriteString("." + part)
		default:
			b.WriteString(part)
		}
	}
	return b.String()
}

func isIndex(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// CheckFileSize rejects documents larger than maxSize bytes.
func CheckFileSize(data []byte, maxSize int64, filename string) error {
	if int64(len(data)) > maxSize {
		return fmt.Errorf("%s: file size %d bytes exceeds maximum %d bytes", filename, len(data), maxSize)
	}
	return nil
}
