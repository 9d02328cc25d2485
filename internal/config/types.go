// SPDX-License-Identifier: MPL-2.0

package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/respack/respack/pkg/manifest"
	"github.com/respack/respack/pkg/resource"
	"github.com/respack/respack/pkg/workspace"
)

const (
	// DefaultActor signs resources when no actor is configured.
	DefaultActor = "respack"
	// DefaultBundleDir is the reserved top-level directory of the packaged tree.
	DefaultBundleDir = "ignition"
	// DefaultResourceRoot is where resources live inside the bundle directory.
	DefaultResourceRoot = "script-python"
	// DefaultDocsDir is the documentation subtree archived on its own.
	DefaultDocsDir = "docs"
	// DefaultProjectArchive is the project archive file name.
	DefaultProjectArchive = "project.zip"
	// DefaultDocsArchive is the documentation archive file name.
	DefaultDocsArchive = "docs.zip"
)

var (
	// ErrInvalidConfig is the sentinel error wrapped by InvalidConfigError.
	ErrInvalidConfig = errors.New("invalid config")
	// ErrInvalidRecursionLimit is returned when recursion_limit is set but is
	// not an integer.
	ErrInvalidRecursionLimit = errors.New("recursion limit must be an integer")
	// ErrInvalidLayout is returned for layout paths that escape the working
	// directory or collide with each other.
	ErrInvalidLayout = errors.New("invalid layout")
)

type (
	// Config holds the build properties of one pipeline run.
	Config struct {
		// PackageName is the dotted package of the generated client.
		PackageName string `json:"package_name" mapstructure:"package_name" toml:"package_name"`
		// ProjectName defaults to PackageName with "_" replaced by "-".
		ProjectName    string `json:"project_name" mapstructure:"project_name" toml:"project_name"`
		PackageVersion string `json:"package_version" mapstructure:"package_version" toml:"package_version"`
		PackageURL     string `json:"package_url" mapstructure:"package_url" toml:"package_url"`
		// RecursionLimit is optional; when set it must parse as an integer.
		RecursionLimit string `json:"recursion_limit" mapstructure:"recursion_limit" toml:"recursion_limit"`
		// Actor is recorded as the last modifier of every signed resource.
		Actor string `json:"actor" mapstructure:"actor" toml:"actor"`
		// HintScope is written to descriptors that do not declare one.
		HintScope int `json:"hint_scope" mapstructure:"hint_scope" toml:"hint_scope"`

		Layout   LayoutConfig   `json:"layout" mapstructure:"layout" toml:"layout"`
		Manifest ManifestConfig `json:"manifest" mapstructure:"manifest" toml:"manifest"`
		Archive  ArchiveConfig  `json:"archive" mapstructure:"archive" toml:"archive"`
		Signing  SigningConfig  `json:"signing" mapstructure:"signing" toml:"signing"`

		// Source is the config file the values were read from, empty for defaults.
		Source string `json:"-" mapstructure:"-" toml:"-"`
	}

	// LayoutConfig names every path the pipeline reads or writes, relative to
	// the working directory.
	LayoutConfig struct {
		BundleDir      string            `json:"bundle_dir" mapstructure:"bundle_dir" toml:"bundle_dir"`
		ResourceRoot   string            `json:"resource_root" mapstructure:"resource_root" toml:"resource_root"`
		DocsDir        string            `json:"docs_dir" mapstructure:"docs_dir" toml:"docs_dir"`
		ManifestFile   string            `json:"manifest_file" mapstructure:"manifest_file" toml:"manifest_file"`
		DescriptorFile string            `json:"descriptor_file" mapstructure:"descriptor_file" toml:"descriptor_file"`
		Extensions     map[string]string `json:"extensions" mapstructure:"extensions" toml:"extensions"`
		ProjectArchive string            `json:"project_archive" mapstructure:"project_archive" toml:"project_archive"`
		DocsArchive    string            `json:"docs_archive" mapstructure:"docs_archive" toml:"docs_archive"`
		// Bookkeeping lists doublestar patterns removed before archiving.
		Bookkeeping []string `json:"bookkeeping" mapstructure:"bookkeeping" toml:"bookkeeping"`
	}

	// ManifestConfig renders the project manifest when the template stage
	// did not emit one.
	ManifestConfig struct {
		Title       string `json:"title" mapstructure:"title" toml:"title"`
		Description string `json:"description" mapstructure:"description" toml:"description"`
		Parent      string `json:"parent" mapstructure:"parent" toml:"parent"`
		Enabled     bool   `json:"enabled" mapstructure:"enabled" toml:"enabled"`
		Inheritable bool   `json:"inheritable" mapstructure:"inheritable" toml:"inheritable"`
	}

	// ArchiveConfig controls archive writing.
	ArchiveConfig struct {
		// PinTimestamps stamps every entry with a fixed time for reproducible archives.
		PinTimestamps bool `json:"pin_timestamps" mapstructure:"pin_timestamps" toml:"pin_timestamps"`
	}

	// SigningConfig controls the resource signer.
	SigningConfig struct {
		// Strict fails the build on an unparseable descriptor instead of
		// signing from an empty one.
		Strict bool `json:"strict" mapstructure:"strict" toml:"strict"`
		// Workers bounds parallel signing; 0 uses GOMAXPROCS.
		Workers int `json:"workers" mapstructure:"workers" toml:"workers"`
	}

	// InvalidConfigError collects every field-level problem of a Config.
	// It wraps ErrInvalidConfig for errors.Is() compatibility.
	InvalidConfigError struct {
		FieldErrors []error
	}

	// InvalidRecursionLimitError is returned when recursion_limit is not an integer.
	InvalidRecursionLimitError struct {
		Value string
	}
)

// DefaultConfig returns the built-in build properties.
func DefaultConfig() *Config {
	return &Config{
		Actor:     DefaultActor,
		HintScope: resource.DefaultHintScope,
		Layout: LayoutConfig{
			BundleDir:      DefaultBundleDir,
			ResourceRoot:   DefaultResourceRoot,
			DocsDir:        DefaultDocsDir,
			ManifestFile:   manifest.DefaultFileName,
			DescriptorFile: resource.DefaultDescriptorName,
			Extensions:     resource.DefaultExtensionTable(),
			ProjectArchive: DefaultProjectArchive,
			DocsArchive:    DefaultDocsArchive,
			Bookkeeping:    []string{".openapi-generator-ignore", ".openapi-generator", "test"},
		},
		Manifest: ManifestConfig{
			Enabled: true,
		},
	}
}

// EffectiveProjectName returns ProjectName, or PackageName with "_"
// replaced by "-" when no project name is set.
func (c *Config) EffectiveProjectName() string {
	if c.ProjectName != "" {
		return c.ProjectName
	}
	return strings.ReplaceAll(c.PackageName, "_", "-")
}

// RecursionLimitValue parses RecursionLimit. ok is false when it is unset.
func (c *Config) RecursionLimitValue() (limit int, ok bool, err error) {
	raw := strings.TrimSpace(c.RecursionLimit)
	if raw == "" {
		return 0, false, nil
	}
	limit, err = strconv.Atoi(raw)
	if err != nil {
		return 0, false, &InvalidRecursionLimitError{Value: c.RecursionLimit}
	}
	return limit, true, nil
}

// ExtensionTable returns the converter's extension table.
func (c *Config) ExtensionTable() resource.ExtensionTable {
	return resource.ExtensionTable(c.Layout.Extensions)
}

// ResourceRootPath is the directory the converter walks, relative to the
// working directory.
func (c *Config) ResourceRootPath() string {
	return filepath.Join(c.Layout.BundleDir, filepath.FromSlash(c.Layout.ResourceRoot))
}

// ManifestProperties maps the manifest section onto manifest rendering input.
func (c *Config) ManifestProperties() manifest.Properties {
	enabled := c.Manifest.Enabled
	return manifest.Properties{
		ProjectName: c.EffectiveProjectName(),
		Title:       c.Manifest.Title,
		Description: c.Manifest.Description,
		Parent:      c.Manifest.Parent,
		Enabled:     &enabled,
		Inheritable: c.Manifest.Inheritable,
	}
}

// Validate checks constraints the CUE schema cannot express, including
// those on values that came from the environment or flags. It returns an
// *InvalidConfigError listing every problem found.
func (c *Config) Validate() error {
	var errs []error

	if _, _, err := c.RecursionLimitValue(); err != nil {
		errs = append(errs, err)
	}
	if strings.TrimSpace(c.Actor) == "" {
		errs = append(errs, errors.New("actor must not be empty"))
	}
	if c.HintScope < 0 {
		errs = append(errs, fmt.Errorf("hint_scope must not be negative, got %d", c.HintScope))
	}
	if c.Signing.Workers < 0 {
		errs = append(errs, fmt.Errorf("signing.workers must not be negative, got %d", c.Signing.Workers))
	}
	if err := c.ExtensionTable().Validate(c.Layout.DescriptorFile); err != nil {
		errs = append(errs, fmt.Errorf("layout.extensions: %w", err))
	}
	if err := workspace.ValidatePatterns(c.Layout.Bookkeeping); err != nil {
		errs = append(errs, fmt.Errorf("layout.bookkeeping: %w", err))
	}
	errs = append(errs, c.Layout.validatePaths()...)

	if len(errs) > 0 {
		return &InvalidConfigError{FieldErrors: errs}
	}
	return nil
}

func (l LayoutConfig) validatePaths() []error {
	var errs []error
	for _, p := range []struct{ key, value string }{
		{"layout.bundle_dir", l.BundleDir},
		{"layout.docs_dir", l.DocsDir},
		{"layout.manifest_file", l.ManifestFile},
		{"layout.project_archive", l.ProjectArchive},
		{"layout.docs_archive", l.DocsArchive},
	} {
		if p.value == "" || !filepath.IsLocal(filepath.FromSlash(p.value)) {
			errs = append(errs, fmt.Errorf("%w: %s %q must be a relative path inside the working directory", ErrInvalidLayout, p.key, p.value))
		}
	}
	if l.ResourceRoot != "" && !filepath.IsLocal(filepath.FromSlash(l.ResourceRoot)) {
		errs = append(errs, fmt.Errorf("%w: layout.resource_root %q must stay inside the bundle directory", ErrInvalidLayout, l.ResourceRoot))
	}

	type layoutPath struct{ key, clean string }
	var seen []layoutPath
	for _, p := range []struct{ key, value string }{
		{"layout.bundle_dir", l.BundleDir},
		{"layout.docs_dir", l.DocsDir},
		{"layout.manifest_file", l.ManifestFile},
		{"layout.project_archive", l.ProjectArchive},
		{"layout.docs_archive", l.DocsArchive},
	} {
		if p.value == "" {
			continue
		}
		clean := filepath.Clean(filepath.FromSlash(p.value))
		if clean == "." {
			errs = append(errs, fmt.Errorf("%w: %s must not name the working directory itself", ErrInvalidLayout, p.key))
			continue
		}
		for _, other := range seen {
			switch {
			case other.clean == clean:
				errs = append(errs, fmt.Errorf("%w: %s and %s both name %q", ErrInvalidLayout, other.key, p.key, p.value))
			case within(clean, other.clean):
				errs = append(errs, fmt.Errorf("%w: %s %q is inside %s", ErrInvalidLayout, p.key, p.value, other.key))
			case within(other.clean, clean):
				errs = append(errs, fmt.Errorf("%w: %s is inside %s %q", ErrInvalidLayout, other.key, p.key, p.value))
			}
		}
		seen = append(seen, layoutPath{key: p.key, clean: clean})
	}
	return errs
}

// within reports whether the cleaned relative path sub lies under dir.
func within(sub, dir string) bool {
	rel, err := filepath.Rel(dir, sub)
	return err == nil && rel != "." && filepath.IsLocal(rel)
}

// Error implements the error interface for InvalidConfigError.
func (e *InvalidConfigError) Error() string {
	if len(e.FieldErrors) == 1 {
		return fmt.Sprintf("invalid config: %v", e.FieldErrors[0])
	}
	msgs := make([]string, len(e.FieldErrors))
	for i, err := range e.FieldErrors {
		msgs[i] = err.Error()
	}
	return fmt.Sprintf("invalid config: %d field error(s):\n  %s", len(e.FieldErrors), strings.Join(msgs, "\n  "))
}

// Unwrap returns ErrInvalidConfig and every field error for errors.Is().
func (e *InvalidConfigError) Unwrap() []error {
	return append([]error{ErrInvalidConfig}, e.FieldErrors...)
}

// Error implements the error interface for InvalidRecursionLimitError.
func (e *InvalidRecursionLimitError) Error() string {
	return fmt.Sprintf("recursion_limit %q must be an integer, e.g. 2000", e.Value)
}

// Unwrap returns ErrInvalidRecursionLimit for errors.Is() compatibility.
func (e *InvalidRecursionLimitError) Unwrap() error { return ErrInvalidRecursionLimit }
