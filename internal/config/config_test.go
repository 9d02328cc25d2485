// SPDX-License-Identifier: MPL-2.0

package config

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/respack/respack/internal/issue"
	"github.com/respack/respack/internal/testutil"

	"github.com/pelletier/go-toml/v2"
)

// isolated returns load options that cannot see the developer's own config.
func isolated(t *testing.T) LoadOptions {
	t.Helper()
	return LoadOptions{
		WorkDir:       t.TempDir(),
		ConfigDirPath: t.TempDir(),
	}
}

func TestDefaultConfig(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	if cfg.Actor != DefaultActor {
		t.Errorf("Actor = %q, want %q", cfg.Actor, DefaultActor)
	}
	if cfg.HintScope != 2 {
		t.Errorf("HintScope = %d, want 2", cfg.HintScope)
	}
	if cfg.Layout.BundleDir != "ignition" || cfg.Layout.DocsDir != "docs" {
		t.Errorf("Layout = %+v", cfg.Layout)
	}
	wantExt := map[string]string{"py": "code.py", "json": "resource.json"}
	if !reflect.DeepEqual(cfg.Layout.Extensions, wantExt) {
		t.Errorf("Extensions = %v, want %v", cfg.Layout.Extensions, wantExt)
	}
	if !cfg.Manifest.Enabled {
		t.Error("Manifest.Enabled should default to true")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("DefaultConfig().Validate() = %v", err)
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := NewProvider().Load(context.Background(), isolated(t))
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Source != "" {
		t.Errorf("Source = %q, want empty", cfg.Source)
	}
	want := DefaultConfig()
	if !reflect.DeepEqual(cfg, want) {
		t.Errorf("Load() = %+v\nwant %+v", cfg, want)
	}
}

func TestLoad_LocalFile(t *testing.T) {
	opts := isolated(t)
	testutil.MustWriteFile(t, filepath.Join(opts.WorkDir, LocalConfigFileName), `
package_name: "petstore_api"
recursion_limit: "2000"
actor: "ci"
layout: {
	bundle_dir: "bundle"
	resource_root: ""
	descriptor_file: "resource.meta"
	extensions: {
		body: "code"
		meta: "resource.meta"
	}
}
manifest: title: "Demo"
archive: pin_timestamps: true
`)

	cfg, err := NewProvider().Load(context.Background(), opts)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Source != filepath.Join(opts.WorkDir, LocalConfigFileName) {
		t.Errorf("Source = %q", cfg.Source)
	}
	if cfg.Actor != "ci" || cfg.PackageName != "petstore_api" {
		t.Errorf("cfg = %+v", cfg)
	}
	if got := cfg.EffectiveProjectName(); got != "petstore-api" {
		t.Errorf("EffectiveProjectName() = %q, want petstore-api", got)
	}
	if limit, ok, err := cfg.RecursionLimitValue(); err != nil || !ok || limit != 2000 {
		t.Errorf("RecursionLimitValue() = (%d, %v, %v)", limit, ok, err)
	}
	// A user table replaces the default one instead of merging with it.
	wantExt := map[string]string{"body": "code", "meta": "resource.meta"}
	if !reflect.DeepEqual(cfg.Layout.Extensions, wantExt) {
		t.Errorf("Extensions = %v, want %v", cfg.Layout.Extensions, wantExt)
	}
	if cfg.ResourceRootPath() != "bundle" {
		t.Errorf("ResourceRootPath() = %q", cfg.ResourceRootPath())
	}
	if !cfg.Archive.PinTimestamps {
		t.Error("PinTimestamps not loaded")
	}
	// Untouched keys keep their defaults.
	if cfg.Layout.DocsDir != DefaultDocsDir || cfg.HintScope != 2 {
		t.Errorf("defaults lost: %+v", cfg)
	}
	props := cfg.ManifestProperties()
	if props.Title != "Demo" || props.ProjectName != "petstore-api" || props.Enabled == nil || !*props.Enabled {
		t.Errorf("ManifestProperties() = %+v", props)
	}
}

func TestLoad_Precedence(t *testing.T) {
	opts := isolated(t)
	testutil.MustWriteFile(t, filepath.Join(opts.ConfigDirPath, ConfigFileName), `actor: "user-dir"
hint_scope: 5
`)

	cfg, err := NewProvider().Load(context.Background(), opts)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Actor != "user-dir" || cfg.HintScope != 5 {
		t.Errorf("user config not applied: %+v", cfg)
	}

	// A local file shadows the user config entirely.
	testutil.MustWriteFile(t, filepath.Join(opts.WorkDir, LocalConfigFileName), `actor: "local"`)
	cfg, err = NewProvider().Load(context.Background(), opts)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Actor != "local" || cfg.HintScope != 2 {
		t.Errorf("local config should win: %+v", cfg)
	}

	// Environment beats the file.
	t.Setenv("RESPACK_ACTOR", "env")
	t.Setenv("RESPACK_LAYOUT_DOCS_DIR", "documentation")
	cfg, err = NewProvider().Load(context.Background(), opts)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Actor != "env" || cfg.Layout.DocsDir != "documentation" {
		t.Errorf("env override not applied: %+v", cfg)
	}

	// Overrides beat everything.
	opts.Overrides = map[string]any{"actor": "flag", "signing.workers": 3}
	cfg, err = NewProvider().Load(context.Background(), opts)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Actor != "flag" || cfg.Signing.Workers != 3 {
		t.Errorf("overrides not applied: %+v", cfg)
	}
}

func TestLoad_ExplicitPath(t *testing.T) {
	opts := isolated(t)
	path := filepath.Join(t.TempDir(), "custom.cue")
	testutil.MustWriteFile(t, path, `actor: "explicit"`)
	testutil.MustWriteFile(t, filepath.Join(opts.WorkDir, LocalConfigFileName), `actor: "local"`)

	opts.ConfigFilePath = path
	cfg, err := NewProvider().Load(context.Background(), opts)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Actor != "explicit" || cfg.Source != path {
		t.Errorf("explicit config not used: %+v", cfg)
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		setup   func(t *testing.T, opts *LoadOptions)
		wantIs  error
		wantMsg string
	}{
		{
			name:    "non-integer recursion limit",
			content: `recursion_limit: "lots"`,
			wantIs:  ErrInvalidRecursionLimit,
			wantMsg: "recursion_limit",
		},
		{
			name:    "unknown key",
			content: `colour: "blue"`,
			wantMsg: "colour",
		},
		{
			name:    "wrong type",
			content: `hint_scope: "two"`,
			wantMsg: "hint_scope",
		},
		{
			name:    "descriptor not in table",
			content: `layout: descriptor_file: "resource.meta"`,
			wantIs:  ErrInvalidConfig,
			wantMsg: "resource.meta",
		},
		{
			name:    "bundle dir escapes",
			content: `layout: bundle_dir: "../outside"`,
			wantIs:  ErrInvalidLayout,
			wantMsg: "bundle_dir",
		},
		{
			name:    "archives collide",
			content: `layout: docs_archive: "project.zip"`,
			wantIs:  ErrInvalidLayout,
			wantMsg: "project.zip",
		},
		{
			name:    "invalid cue",
			content: `actor: "unterminated`,
			wantMsg: LocalConfigFileName,
		},
		{
			name: "recursion limit from environment",
			setup: func(t *testing.T, _ *LoadOptions) {
				t.Setenv("RESPACK_RECURSION_LIMIT", "2k")
			},
			wantIs: ErrInvalidRecursionLimit,
		},
		{
			name: "explicit file missing",
			setup: func(t *testing.T, opts *LoadOptions) {
				opts.ConfigFilePath = filepath.Join(t.TempDir(), "absent.cue")
			},
			wantMsg: "config file not found",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := isolated(t)
			if tt.content != "" {
				testutil.MustWriteFile(t, filepath.Join(opts.WorkDir, LocalConfigFileName), tt.content)
			}
			if tt.setup != nil {
				tt.setup(t, &opts)
			}

			_, err := NewProvider().Load(context.Background(), opts)
			if err == nil {
				t.Fatal("Load() expected error")
			}
			if tt.wantIs != nil && !errors.Is(err, tt.wantIs) {
				t.Errorf("error %v does not wrap %v", err, tt.wantIs)
			}
			if tt.wantMsg != "" && !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("error %q does not mention %q", err, tt.wantMsg)
			}
			var ae *issue.ActionableError
			if !errors.As(err, &ae) {
				t.Fatalf("error %T is not an ActionableError", err)
			}
			if id, ok := issue.IssueOf(err); !ok || id != issue.ConfigInvalidId {
				t.Errorf("IssueOf() = (%d, %v), want ConfigInvalidId", id, ok)
			}
		})
	}
}

func TestLoad_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewProvider().Load(ctx, isolated(t)); !errors.Is(err, context.Canceled) {
		t.Errorf("Load() error = %v, want context.Canceled", err)
	}
}

func TestGenerateCUE_RoundTrip(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PackageName = "petstore_api"
	cfg.RecursionLimit = "3000"
	cfg.Manifest.Parent = "Base"
	cfg.Layout.Bookkeeping = []string{"test", "**/*.orig"}

	opts := isolated(t)
	testutil.MustWriteFile(t, filepath.Join(opts.WorkDir, LocalConfigFileName), GenerateCUE(cfg))

	loaded, err := NewProvider().Load(context.Background(), opts)
	if err != nil {
		t.Fatalf("Load() of generated CUE failed: %v", err)
	}
	loaded.Source = ""
	if !reflect.DeepEqual(loaded, cfg) {
		t.Errorf("round trip mismatch:\ngot  %+v\nwant %+v", loaded, cfg)
	}
}

func TestGenerateTOML(t *testing.T) {
	t.Parallel()

	out, err := GenerateTOML(DefaultConfig())
	if err != nil {
		t.Fatalf("GenerateTOML() failed: %v", err)
	}

	var decoded Config
	if err := toml.Unmarshal([]byte(out), &decoded); err != nil {
		t.Fatalf("generated TOML does not parse: %v\n%s", err, out)
	}
	if !reflect.DeepEqual(&decoded, DefaultConfig()) {
		t.Errorf("TOML round trip mismatch:\n%s", out)
	}
	if !strings.Contains(out, "[layout.extensions]") {
		t.Errorf("TOML output lacks the extension table:\n%s", out)
	}
}

func TestWriteDefault(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "respack.cue")
	created, err := WriteDefault(path, false)
	if err != nil || !created {
		t.Fatalf("WriteDefault() = (%v, %v)", created, err)
	}

	testutil.MustWriteFile(t, path, `actor: "mine"`)
	created, err = WriteDefault(path, false)
	if err != nil || created {
		t.Errorf("WriteDefault() without force = (%v, %v), want (false, nil)", created, err)
	}
	if got := testutil.MustReadFile(t, path); got != `actor: "mine"` {
		t.Error("existing config overwritten without force")
	}

	created, err = WriteDefault(path, true)
	if err != nil || !created {
		t.Errorf("WriteDefault(force) = (%v, %v)", created, err)
	}
}
