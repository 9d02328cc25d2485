// SPDX-License-Identifier: MPL-2.0

package resource

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

const (
	// DefaultBodyName is the fixed file name of a resource body.
	DefaultBodyName = "code.py"
	// DefaultDescriptorName is the fixed file name of a resource descriptor.
	DefaultDescriptorName = "resource.json"
)

// ErrInvalidExtensionTable is returned when an ExtensionTable cannot be used for conversion.
var ErrInvalidExtensionTable = errors.New("invalid extension table")

// ExtensionTable maps a generated file extension (without the leading dot)
// to the fixed file name it takes inside its resource directory.
type ExtensionTable map[string]string

// DefaultExtensionTable returns the mapping used by the script-python resource type.
func DefaultExtensionTable() ExtensionTable {
	return ExtensionTable{
		"py":   DefaultBodyName,
		"json": DefaultDescriptorName,
	}
}

// Target returns the fixed file name for ext. A leading dot is ignored.
func (t ExtensionTable) Target(ext string) (string, bool) {
	name, ok := t[strings.TrimPrefix(ext, ".")]
	return name, ok
}

// IsTargetName reports whether name is one of the fixed target file names,
// i.e. the file is already housed inside a resource directory.
func (t ExtensionTable) IsTargetName(name string) bool {
	for _, target := range t {
		if target == name {
			return true
		}
	}
	return false
}

// Extensions returns the recognized extensions in sorted order.
func (t ExtensionTable) Extensions() []string {
	exts := make([]string, 0, len(t))
	for ext := range t {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

// Validate checks that the table is usable and that descriptorName is one of its targets.
func (t ExtensionTable) Validate(descriptorName string) error {
	if len(t) == 0 {
		return fmt.Errorf("%w: no extensions configured", ErrInvalidExtensionTable)
	}
	seen := make(map[string]string, len(t))
	for _, ext := range t.Extensions() {
		target := t[ext]
		switch {
		case ext == "" || strings.HasPrefix(ext, "."):
			return fmt.Errorf("%w: extension %q must be non-empty and given without a leading dot", ErrInvalidExtensionTable, ext)
		case target == "" || strings.ContainsAny(target, `/\`):
			return fmt.Errorf("%w: extension %q maps to invalid file name %q", ErrInvalidExtensionTable, ext, target)
		}
		if other, dup := seen[target]; dup {
			return fmt.Errorf("%w: extensions %q and %q both map to %q", ErrInvalidExtensionTable, other, ext, target)
		}
		seen[target] = ext
	}
	if _, ok := seen[descriptorName]; !ok {
		return fmt.Errorf("%w: descriptor file %q is not a target of any extension", ErrInvalidExtensionTable, descriptorName)
	}
	return nil
}

// isHidden follows the dotfile convention.
func isHidden(name string) bool {
	return strings.HasPrefix(name, ".")
}
