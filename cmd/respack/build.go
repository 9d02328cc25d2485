// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/respack/respack/internal/pipeline"

	"github.com/spf13/cobra"
)

// buildFlags map one-to-one onto config keys; only flags set on the command
// line override the loaded configuration.
type buildFlags struct {
	packageName    string
	projectName    string
	packageVersion string
	packageURL     string
	recursionLimit string
	actor          string
	pin            bool
	strict         bool
	workers        int
	jsonOutput     bool
}

func newBuildCommand(app *App, root *rootFlags) *cobra.Command {
	flags := &buildFlags{}

	cmd := &cobra.Command{
		Use:   "build [dir]",
		Short: "Run the full post-processing pipeline",
		Long: `Run the full post-processing pipeline on a generated tree.

The flat generated files are moved into resource directories, every
resource descriptor is signed, generator bookkeeping is removed, and the
docs and bundle directories are replaced by their archives. The project
manifest is added at the root of the project archive.

dir defaults to the current directory.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) == 1 {
				dir = args[0]
			}
			return runBuild(cmd, app, root, flags, dir)
		},
	}

	f := cmd.Flags()
	f.StringVar(&flags.packageName, "package-name", "", "package name of the generated client")
	f.StringVar(&flags.projectName, "project-name", "", "project name (default: package name with '_' replaced by '-')")
	f.StringVar(&flags.packageVersion, "package-version", "", "package version")
	f.StringVar(&flags.packageURL, "package-url", "", "package URL")
	f.StringVar(&flags.recursionLimit, "recursion-limit", "", "recursion limit of the generated client (must be an integer)")
	f.StringVar(&flags.actor, "actor", "", "actor recorded on every signed resource")
	f.BoolVar(&flags.pin, "pin", false, "pin archive timestamps for reproducible archives")
	f.BoolVar(&flags.strict, "strict", false, "fail on unparseable descriptors instead of signing from empty")
	f.IntVar(&flags.workers, "workers", 0, "parallel signing workers (0 uses GOMAXPROCS)")
	f.BoolVar(&flags.jsonOutput, "json", false, "print the build result as JSON")

	return cmd
}

// overrides returns the config overrides for the flags set on cmd.
func (f *buildFlags) overrides(cmd *cobra.Command) map[string]any {
	set := map[string]struct {
		key   string
		value any
	}{
		"package-name":    {"package_name", f.packageName},
		"project-name":    {"project_name", f.projectName},
		"package-version": {"package_version", f.packageVersion},
		"package-url":     {"package_url", f.packageURL},
		"recursion-limit": {"recursion_limit", f.recursionLimit},
		"actor":           {"actor", f.actor},
		"pin":             {"archive.pin_timestamps", f.pin},
		"strict":          {"signing.strict", f.strict},
		"workers":         {"signing.workers", f.workers},
	}
	overrides := map[string]any{}
	for flag, o := range set {
		if cmd.Flags().Changed(flag) {
			overrides[o.key] = o.value
		}
	}
	return overrides
}

func runBuild(cmd *cobra.Command, app *App, root *rootFlags, flags *buildFlags, dir string) error {
	ctx := cmd.Context()

	cfg, err := app.loadConfig(ctx, root, dir, flags.overrides(cmd))
	if err != nil {
		return err
	}

	logger := newLogger(cmd.ErrOrStderr(), root.verbose)
	if cfg.Source != "" {
		logger.Debug("loaded configuration", "path", cfg.Source)
	}

	result, err := app.Builder.Build(ctx, pipeline.Options{
		WorkDir: dir,
		Config:  cfg,
		Clock:   app.Clock,
		Logger:  logger,
	})
	if err != nil {
		return err
	}

	if flags.jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}
	printBuildSummary(cmd.OutOrStdout(), result)
	return nil
}

func printBuildSummary(w io.Writer, result *pipeline.Result) {
	fmt.Fprintln(w, TitleStyle.Render("Build complete"))
	fmt.Fprintf(w, "%s %d resource(s) signed at %s\n",
		successIcon, len(result.Resources), result.Timestamp.Format("2006-01-02T15:04:05Z07:00"))
	for _, rel := range result.Recovered {
		fmt.Fprintf(w, "%s %s signed from an empty descriptor\n", warningIcon, PathStyle.Render(rel))
	}
	if result.ManifestCreated && result.Manifest != nil {
		fmt.Fprintf(w, "%s manifest rendered from configuration (title %q)\n", successIcon, result.Manifest.Title)
	}
	for _, archivePath := range []string{result.ProjectArchive, result.DocsArchive} {
		line := PathStyle.Render(filepath.Join(result.WorkDir, archivePath))
		if info, err := os.Stat(filepath.Join(result.WorkDir, archivePath)); err == nil {
			line += SubtitleStyle.Render(fmt.Sprintf(" (%d bytes)", info.Size()))
		}
		fmt.Fprintf(w, "%s %s\n", successIcon, line)
	}
}
