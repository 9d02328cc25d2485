// SPDX-License-Identifier: MPL-2.0

package resource

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

var (
	// ErrUnexpectedExtension is the sentinel wrapped by UnexpectedExtensionError.
	ErrUnexpectedExtension = errors.New("unexpected artifact extension")
	// ErrDestinationExists is returned when a planned move would overwrite an existing file.
	ErrDestinationExists = errors.New("resource file already exists")
)

type (
	// UnexpectedExtensionError reports a generated file whose extension is not in the
	// ExtensionTable. It wraps ErrUnexpectedExtension for errors.Is() compatibility.
	UnexpectedExtensionError struct {
		Path      string
		Extension string
	}

	// Move is a single planned rename of a generated file into its resource directory.
	Move struct {
		// From is the flat file path.
		From string
		// To is the destination path inside the resource directory.
		To string
		// Resource is the resource directory (the parent of To).
		Resource string
	}

	// Plan is the full set of moves for a tree together with the resource
	// directories that exist after the moves are applied.
	Plan struct {
		Moves     []Move
		Resources []string
	}
)

// Error implements the error interface.
func (e *UnexpectedExtensionError) Error() string {
	if e.Extension == "" {
		return fmt.Sprintf("%s: file has no extension", e.Path)
	}
	return fmt.Sprintf("%s: extension %q is not mapped to a resource file", e.Path, e.Extension)
}

// Unwrap returns ErrUnexpectedExtension.
func (e *UnexpectedExtensionError) Unwrap() error {
	return ErrUnexpectedExtension
}

// Convert rehouses every basename-paired file under root into a resource
// directory and returns the resource directories, sorted.
//
// The whole tree is planned before anything is renamed, so an unexpected
// artifact aborts the conversion with the tree untouched. A directory whose
// files all carry target names is already a resource; it is left alone and
// reported, which makes Convert a no-op on its own output.
func Convert(root string, table ExtensionTable) ([]string, error) {
	plan, err := PlanConversion(root, table)
	if err != nil {
		return nil, err
	}
	if err := plan.Apply(); err != nil {
		return nil, err
	}
	return plan.Resources, nil
}

// PlanConversion walks root depth-first and computes the moves Convert would
// perform without touching the filesystem.
func PlanConversion(root string, table ExtensionTable) (*Plan, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("failed to stat resource root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("resource root %s is not a directory", root)
	}

	moves, housed, err := planDir(root, table)
	if err != nil {
		return nil, err
	}

	resources := make(map[string]struct{}, len(moves)+len(housed))
	for _, dir := range housed {
		resources[dir] = struct{}{}
	}
	claimed := make(map[string]string, len(moves))
	for _, m := range moves {
		if prev, dup := claimed[m.To]; dup {
			return nil, fmt.Errorf("%w: %s and %s both map to %s", ErrDestinationExists, prev, m.From, m.To)
		}
		claimed[m.To] = m.From
		resources[m.Resource] = struct{}{}
	}

	plan := &Plan{Moves: moves, Resources: make([]string, 0, len(resources))}
	for dir := range resources {
		plan.Resources = append(plan.Resources, dir)
	}
	sort.Strings(plan.Resources)
	return plan, nil
}

// planDir returns the moves for dir and its subdirectories plus the directories
// that are already resources. Subdirectories are planned before the sibling
// files of dir.
//
// dir is a resource when every file in it carries a target name. A single
// flat file is enough to make every file of dir, target-named or not, a
// generated artifact to move.
func planDir(dir string, table ExtensionTable) (moves []Move, housed []string, err error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read directory %s: %w", dir, err)
	}

	var files []os.DirEntry
	for _, entry := range entries {
		if isHidden(entry.Name()) {
			continue
		}
		if !entry.IsDir() {
			files = append(files, entry)
			continue
		}
		subMoves, subHoused, subErr := planDir(filepath.Join(dir, entry.Name()), table)
		if subErr != nil {
			return nil, nil, subErr
		}
		moves = append(moves, subMoves...)
		housed = append(housed, subHoused...)
	}

	if len(files) > 0 && allTargetNames(files, table) {
		return moves, append(housed, dir), nil
	}

	for _, file := range files {
		name := file.Name()
		ext := filepath.Ext(name)
		target, ok := table.Target(ext)
		if !ok || ext == "" {
			return nil, nil, &UnexpectedExtensionError{
				Path:      filepath.Join(dir, name),
				Extension: strings.TrimPrefix(ext, "."),
			}
		}

		resourceDir := filepath.Join(dir, strings.TrimSuffix(name, ext))
		moves = append(moves, Move{
			From:     filepath.Join(dir, name),
			To:       filepath.Join(resourceDir, target),
			Resource: resourceDir,
		})
	}

	return moves, housed, nil
}

func allTargetNames(files []os.DirEntry, table ExtensionTable) bool {
	for _, file := range files {
		if !table.IsTargetName(file.Name()) {
			return false
		}
	}
	return true
}

// Apply performs the planned renames in order, creating resource directories as needed.
func (p *Plan) Apply() error {
	for _, m := range p.Moves {
		if err := os.MkdirAll(m.Resource, 0o755); err != nil {
			return fmt.Errorf("failed to create resource directory %s: %w", m.Resource, err)
		}
		if _, err := os.Lstat(m.To); err == nil {
			return fmt.Errorf("%w: %s", ErrDestinationExists, m.To)
		} else if !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to check %s: %w", m.To, err)
		}
		if err := os.Rename(m.From, m.To); err != nil {
			return fmt.Errorf("failed to move %s into resource: %w", m.From, err)
		}
	}
	return nil
}
