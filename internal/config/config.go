// SPDX-License-Identifier: MPL-2.0

package config

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"

	"github.com/respack/respack/internal/issue"
	"github.com/respack/respack/pkg/cueutil"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"
)

const (
	// AppName is the application name.
	AppName = "respack"
	// EnvPrefix prefixes environment overrides (RESPACK_ACTOR, RESPACK_LAYOUT_BUNDLE_DIR).
	EnvPrefix = "RESPACK"
	// LocalConfigFileName is looked up in the working directory.
	LocalConfigFileName = "respack.cue"
	// ConfigFileName is looked up in the user config directory.
	ConfigFileName = "config.cue"
)

//go:embed config_schema.cue
var configSchema []byte

var schema = cueutil.MustCompile(configSchema, "#Config")

// ConfigDir returns the user configuration directory: %APPDATA%\respack on
// Windows, ~/Library/Application Support/respack on macOS and
// $XDG_CONFIG_HOME/respack (default ~/.config/respack) elsewhere.
//
//nolint:revive // ConfigDir is more descriptive than Dir for external callers
func ConfigDir() (string, error) {
	var configDir string

	switch runtime.GOOS {
	case "windows":
		configDir = os.Getenv("APPDATA")
		if configDir == "" {
			configDir = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Roaming")
		}
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		configDir = filepath.Join(home, "Library", "Application Support")
	default:
		configDir = os.Getenv("XDG_CONFIG_HOME")
		if configDir == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", fmt.Errorf("failed to get home directory: %w", err)
			}
			configDir = filepath.Join(home, ".config")
		}
	}

	return filepath.Join(configDir, AppName), nil
}

// setDefaults registers every scalar key so that AutomaticEnv can see it.
// Extensions are left out: viper merges maps key by key, which would leak
// default extensions into a user-defined table.
func setDefaults(v *viper.Viper) {
	d := DefaultConfig()
	v.SetDefault("package_name", d.PackageName)
	v.SetDefault("project_name", d.ProjectName)
	v.SetDefault("package_version", d.PackageVersion)
	v.SetDefault("package_url", d.PackageURL)
	v.SetDefault("recursion_limit", d.RecursionLimit)
	v.SetDefault("actor", d.Actor)
	v.SetDefault("hint_scope", d.HintScope)
	v.SetDefault("layout.bundle_dir", d.Layout.BundleDir)
	v.SetDefault("layout.resource_root", d.Layout.ResourceRoot)
	v.SetDefault("layout.docs_dir", d.Layout.DocsDir)
	v.SetDefault("layout.manifest_file", d.Layout.ManifestFile)
	v.SetDefault("layout.descriptor_file", d.Layout.DescriptorFile)
	v.SetDefault("layout.project_archive", d.Layout.ProjectArchive)
	v.SetDefault("layout.docs_archive", d.Layout.DocsArchive)
	v.SetDefault("layout.bookkeeping", d.Layout.Bookkeeping)
	v.SetDefault("manifest.title", d.Manifest.Title)
	v.SetDefault("manifest.description", d.Manifest.Description)
	v.SetDefault("manifest.parent", d.Manifest.Parent)
	v.SetDefault("manifest.enabled", d.Manifest.Enabled)
	v.SetDefault("manifest.inheritable", d.Manifest.Inheritable)
	v.SetDefault("archive.pin_timestamps", d.Archive.PinTimestamps)
	v.SetDefault("signing.strict", d.Signing.Strict)
	v.SetDefault("signing.workers", d.Signing.Workers)
}

// loadWithOptions performs option-driven config loading.
func loadWithOptions(ctx context.Context, opts LoadOptions) (*Config, error) {
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("load config canceled: %w", ctx.Err())
	default:
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	path, err := resolveConfigFile(opts)
	if err != nil {
		return nil, err
	}
	if path != "" {
		if err := loadCUEIntoViper(v, path); err != nil {
			return nil, issue.NewErrorContext().
				WithOperation("load configuration").
				WithResource(path).
				WithIssue(issue.ConfigInvalidId).
				WithSuggestion("Check that the file contains valid CUE syntax").
				WithSuggestion("Compare it with the output of 'respack config dump'").
				Wrap(err).
				BuildError()
		}
	}

	for _, key := range slices.Sorted(maps.Keys(opts.Overrides)) {
		v.Set(key, opts.Overrides[key])
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if len(cfg.Layout.Extensions) == 0 {
		cfg.Layout.Extensions = DefaultConfig().Layout.Extensions
	}
	cfg.Source = path

	if err := cfg.Validate(); err != nil {
		resource := path
		if resource == "" {
			resource = "built-in defaults"
		}
		return nil, issue.NewErrorContext().
			WithOperation("validate configuration").
			WithResource(resource).
			WithIssue(issue.ConfigInvalidId).
			WithSuggestion("Set recursion_limit to a whole number such as 2000, or leave it unset").
			WithSuggestion("Make sure layout.descriptor_file is one of the layout.extensions targets").
			WithSuggestion("Check RESPACK_* environment variables and command-line overrides").
			Wrap(err).
			BuildError()
	}

	return &cfg, nil
}

// resolveConfigFile picks the config file to load. An explicit path must
// exist; the implicit locations are optional.
func resolveConfigFile(opts LoadOptions) (string, error) {
	if opts.ConfigFilePath != "" {
		if !fileExists(opts.ConfigFilePath) {
			return "", issue.NewErrorContext().
				WithOperation("load configuration").
				WithResource(opts.ConfigFilePath).
				WithIssue(issue.ConfigInvalidId).
				WithSuggestion("Verify the file path is correct").
				WithSuggestion("Use 'respack config init' to write a starting config").
				Wrap(fmt.Errorf("config file not found: %s", opts.ConfigFilePath)).
				BuildError()
		}
		return opts.ConfigFilePath, nil
	}

	local := filepath.Join(opts.WorkDir, LocalConfigFileName)
	if fileExists(local) {
		return local, nil
	}

	cfgDir := opts.ConfigDirPath
	if cfgDir == "" {
		dir, err := ConfigDir()
		if err != nil {
			// No home directory is not fatal: defaults still apply.
			return "", nil //nolint:nilerr // missing user config dir falls back to defaults
		}
		cfgDir = dir
	}
	user := filepath.Join(cfgDir, ConfigFileName)
	if fileExists(user) {
		return user, nil
	}
	return "", nil
}

// loadCUEIntoViper validates a CUE file against #Config and merges it into
// viper. Config fields are optional, so values need not be concrete.
func loadCUEIntoViper(v *viper.Viper, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	unified, err := schema.Unify(data, cueutil.WithFilename(path), cueutil.WithConcrete(false))
	if err != nil {
		return err
	}

	var configMap map[string]any
	if err := unified.Decode(&configMap); err != nil {
		return cueutil.FormatError(err, path)
	}

	if err := v.MergeConfigMap(configMap); err != nil {
		return fmt.Errorf("failed to merge config: %w", err)
	}
	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false
	}
	return err == nil && !info.IsDir()
}

// WriteDefault writes the default configuration as CUE to path. An existing
// file is left alone unless force is set; created reports whether it wrote.
func WriteDefault(path string, force bool) (created bool, err error) {
	if !force && fileExists(path) {
		return false, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return false, fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(GenerateCUE(DefaultConfig())), 0o644); err != nil {
		return false, fmt.Errorf("failed to write config file: %w", err)
	}
	return true, nil
}

// GenerateCUE renders cfg as a CUE config file.
func GenerateCUE(cfg *Config) string {
	var sb strings.Builder

	sb.WriteString("// respack build properties\n")
	sb.WriteString("// Environment variables (RESPACK_ACTOR, ...) and flags override these values.\n\n")

	fmt.Fprintf(&sb, "package_name:    %q\n", cfg.PackageName)
	fmt.Fprintf(&sb, "project_name:    %q\n", cfg.ProjectName)
	fmt.Fprintf(&sb, "package_version: %q\n", cfg.PackageVersion)
	fmt.Fprintf(&sb, "package_url:     %q\n", cfg.PackageURL)
	if cfg.RecursionLimit != "" {
		fmt.Fprintf(&sb, "recursion_limit: %q\n", cfg.RecursionLimit)
	}
	fmt.Fprintf(&sb, "actor:           %q\n", cfg.Actor)
	fmt.Fprintf(&sb, "hint_scope:      %d\n", cfg.HintScope)

	sb.WriteString("\nlayout: {\n")
	fmt.Fprintf(&sb, "\tbundle_dir:      %q\n", cfg.Layout.BundleDir)
	fmt.Fprintf(&sb, "\tresource_root:   %q\n", cfg.Layout.ResourceRoot)
	fmt.Fprintf(&sb, "\tdocs_dir:        %q\n", cfg.Layout.DocsDir)
	fmt.Fprintf(&sb, "\tmanifest_file:   %q\n", cfg.Layout.ManifestFile)
	fmt.Fprintf(&sb, "\tdescriptor_file: %q\n", cfg.Layout.DescriptorFile)
	sb.WriteString("\textensions: {\n")
	for _, ext := range cfg.ExtensionTable().Extensions() {
		fmt.Fprintf(&sb, "\t\t%q: %q\n", ext, cfg.Layout.Extensions[ext])
	}
	sb.WriteString("\t}\n")
	fmt.Fprintf(&sb, "\tproject_archive: %q\n", cfg.Layout.ProjectArchive)
	fmt.Fprintf(&sb, "\tdocs_archive:    %q\n", cfg.Layout.DocsArchive)
	sb.WriteString("\tbookkeeping: [\n")
	for _, pattern := range cfg.Layout.Bookkeeping {
		fmt.Fprintf(&sb, "\t\t%q,\n", pattern)
	}
	sb.WriteString("\t]\n")
	sb.WriteString("}\n")

	sb.WriteString("\nmanifest: {\n")
	fmt.Fprintf(&sb, "\ttitle:       %q\n", cfg.Manifest.Title)
	fmt.Fprintf(&sb, "\tdescription: %q\n", cfg.Manifest.Description)
	if cfg.Manifest.Parent != "" {
		fmt.Fprintf(&sb, "\tparent:      %q\n", cfg.Manifest.Parent)
	}
	fmt.Fprintf(&sb, "\tenabled:     %v\n", cfg.Manifest.Enabled)
	fmt.Fprintf(&sb, "\tinheritable: %v\n", cfg.Manifest.Inheritable)
	sb.WriteString("}\n")

	sb.WriteString("\narchive: {\n")
	fmt.Fprintf(&sb, "\tpin_timestamps: %v\n", cfg.Archive.PinTimestamps)
	sb.WriteString("}\n")

	sb.WriteString("\nsigning: {\n")
	fmt.Fprintf(&sb, "\tstrict:  %v\n", cfg.Signing.Strict)
	fmt.Fprintf(&sb, "\tworkers: %d\n", cfg.Signing.Workers)
	sb.WriteString("}\n")

	return sb.String()
}

// GenerateTOML renders cfg as TOML.
func GenerateTOML(cfg *Config) (string, error) {
	data, err := toml.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("failed to encode config as TOML: %w", err)
	}
	return string(data), nil
}
