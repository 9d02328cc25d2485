// SPDX-License-Identifier: MPL-2.0

package workspace

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// ErrInvalidPattern is returned when a bookkeeping pattern is malformed or
// could match outside the workspace root.
var ErrInvalidPattern = errors.New("invalid cleanup pattern")

// RemoveIfExists deletes the file or directory tree at path. It reports
// whether anything was removed; a missing path returns (false, nil).
// Symlinks are removed, never followed.
func RemoveIfExists(path string) (bool, error) {
	if _, err := os.Lstat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if err := os.RemoveAll(path); err != nil {
		return false, fmt.Errorf("failed to remove %s: %w", path, err)
	}
	return true, nil
}

// RemoveMatching deletes every path under root matched by one of patterns and
// returns the removed paths relative to root, in slash form and sorted.
// Patterns use doublestar syntax relative to root ("test", "**/*.orig").
// A pattern that matches nothing is not an error.
func RemoveMatching(root string, patterns []string) ([]string, error) {
	if err := ValidatePatterns(patterns); err != nil {
		return nil, err
	}

	fsys := os.DirFS(root)
	var matches []string
	for _, pattern := range patterns {
		found, err := doublestar.Glob(fsys, pattern, doublestar.WithNoFollow())
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %w", ErrInvalidPattern, pattern, err)
		}
		matches = append(matches, found...)
	}
	slices.Sort(matches)
	matches = slices.Compact(matches)

	removed := make([]string, 0, len(matches))
	for _, rel := range matches {
		// A parent matched earlier already took this path with it.
		if covered(removed, rel) {
			continue
		}
		ok, err := RemoveIfExists(filepath.Join(root, filepath.FromSlash(rel)))
		if err != nil {
			return removed, err
		}
		if ok {
			removed = append(removed, rel)
		}
	}
	return removed, nil
}

// ValidatePatterns rejects empty, absolute or parent-relative patterns and
// patterns doublestar cannot parse.
func ValidatePatterns(patterns []string) error {
	for _, pattern := range patterns {
		switch {
		case strings.TrimSpace(pattern) == "":
			return fmt.Errorf("%w: empty pattern", ErrInvalidPattern)
		case strings.HasPrefix(pattern, "/") || filepath.IsAbs(pattern):
			return fmt.Errorf("%w: %q is absolute", ErrInvalidPattern, pattern)
		case pattern == ".." || strings.HasPrefix(pattern, "../") || strings.Contains(pattern, "/../"):
			return fmt.Errorf("%w: %q leaves the workspace", ErrInvalidPattern, pattern)
		case !doublestar.ValidatePattern(pattern):
			return fmt.Errorf("%w: %q", ErrInvalidPattern, pattern)
		}
	}
	return nil
}

func covered(removed []string, rel string) bool {
	for _, r := range removed {
		if strings.HasPrefix(rel, r+"/") {
			return true
		}
	}
	return false
}
