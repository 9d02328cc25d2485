// SPDX-License-Identifier: MPL-2.0

// Package manifest models the project manifest that sits at the root of a
// project archive, next to the packaged resource tree.
package manifest

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/respack/respack/pkg/cueutil"
)

// DefaultFileName is the manifest file name the template stage emits.
const DefaultFileName = "project.json"

//go:embed manifest_schema.cue
var schemaBytes []byte

var schema = cueutil.MustCompile(schemaBytes, "#Manifest")

// ErrInvalidManifest wraps every manifest validation failure.
var ErrInvalidManifest = errors.New("invalid project manifest")

type (
	// Manifest describes the whole project.
	Manifest struct {
		Title       string `json:"title"`
		Description string `json:"description"`
		Parent      string `json:"parent,omitempty"`
		Enabled     bool   `json:"enabled"`
		Inheritable bool   `json:"inheritable"`
	}

	// Properties are the build properties a manifest is rendered from.
	// Enabled defaults to true when nil.
	Properties struct {
		ProjectName string
		Title       string
		Description string
		Parent      string
		Enabled     *bool
		Inheritable bool
	}

	// EnsureResult reports what Ensure did.
	EnsureResult struct {
		Path     string
		Manifest *Manifest
		// Created is true when the manifest was rendered from properties.
		Created bool
	}
)

// HasParent reports whether the project inherits from a parent project.
func (m *Manifest) HasParent() bool {
	return m.Parent != ""
}

// Encode renders the manifest as indented JSON with a trailing newline.
func (m *Manifest) Encode() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(m); err != nil {
		return nil, fmt.Errorf("failed to encode manifest: %w", err)
	}
	return buf.Bytes(), nil
}

// FromProperties renders a manifest. The title falls back to the project name.
func FromProperties(p Properties) *Manifest {
	m := &Manifest{
		Title:       strings.TrimSpace(p.Title),
		Description: p.Description,
		Parent:      strings.TrimSpace(p.Parent),
		Enabled:     true,
		Inheritable: p.Inheritable,
	}
	if m.Title == "" {
		m.Title = p.ProjectName
	}
	if p.Enabled != nil {
		m.Enabled = *p.Enabled
	}
	return m
}

// Parse validates data against the manifest schema and decodes it.
// Defaults are applied to absent fields; unknown fields are accepted.
func Parse(data []byte, filename string) (*Manifest, error) {
	m, err := cueutil.Decode[Manifest](schema, data, cueutil.WithFilename(filename))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidManifest, err)
	}
	return m, nil
}

// Load reads and validates the manifest at path.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	return Parse(data, path)
}

// Ensure makes sure a valid manifest exists at path. An existing file is
// validated and left byte-for-byte unchanged; otherwise one is rendered from
// props and written.
func Ensure(path string, props Properties) (*EnsureResult, error) {
	m, err := Load(path)
	switch {
	case err == nil:
		return &EnsureResult{Path: path, Manifest: m}, nil
	case !errors.Is(err, fs.ErrNotExist):
		return nil, err
	}

	m = FromProperties(props)
	data, err := m.Encode()
	if err != nil {
		return nil, err
	}
	// Round-trip through the schema so rendered and loaded manifests obey
	// the same rules.
	if _, err := Parse(data, path); err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return nil, fmt.Errorf("failed to write manifest: %w", err)
	}
	return &EnsureResult{Path: path, Manifest: m, Created: true}, nil
}
