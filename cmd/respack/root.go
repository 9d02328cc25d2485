// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/respack/respack/internal/config"
	"github.com/respack/respack/internal/issue"

	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"
)

var (
	// Version is the semantic version (set via -ldflags).
	Version = "dev"
	// Commit is the git commit hash (set via -ldflags).
	Commit = "unknown"
	// BuildDate is the build timestamp (set via -ldflags).
	BuildDate = "unknown"
)

// rootFlags are the persistent flags shared by every subcommand.
type rootFlags struct {
	verbose bool
	cfgFile string
}

// getVersionString returns a formatted version string for display.
func getVersionString() string {
	if Version == "dev" {
		return "dev (built from source)"
	}
	return fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, BuildDate)
}

// NewRootCommand builds the static command tree around app.
func NewRootCommand(app *App) *cobra.Command {
	flags := &rootFlags{}

	rootCmd := &cobra.Command{
		Use:   "respack",
		Short: "Package a generated script tree into signed resource archives",
		Long: TitleStyle.Render("respack") + SubtitleStyle.Render(" - post-processing for generated script-python projects") + `

respack turns the flat output of a code generator into a directory per
resource, signs every resource descriptor, and packages the result into
a project archive with the project manifest at its root, plus a separate
documentation archive.

` + SubtitleStyle.Render("Examples:") + `
  respack build                 Post-process the current directory
  respack build ./out --pin     Reproducible archives for ./out
  respack inspect project.zip   List the entries of an archive
  respack config show           Show the effective configuration
  respack issues                Explain the failures respack reports`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.SetOut(app.stdout)
	rootCmd.SetErr(app.stderr)

	rootCmd.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "enable debug logging and full error chains")
	rootCmd.PersistentFlags().StringVar(&flags.cfgFile, "config", "", "config file (default is ./respack.cue, then $HOME/.config/respack/config.cue)")

	rootCmd.AddCommand(
		newBuildCommand(app, flags),
		newConvertCommand(app, flags),
		newSignCommand(app, flags),
		newVerifyCommand(app, flags),
		newInspectCommand(app),
		newConfigCommand(app, flags),
		newIssuesCommand(),
	)
	return rootCmd
}

// Execute runs the CLI and exits the process with the command's status.
// This is called by main.main().
func Execute() {
	app, err := NewApp(Dependencies{})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	os.Exit(int(run(context.Background(), app, os.Args[1:])))
}

func run(ctx context.Context, app *App, args []string) (code int) {
	rootCmd := NewRootCommand(app)
	rootCmd.SetArgs(args)
	verbose := func() bool {
		v, _ := rootCmd.PersistentFlags().GetBool("verbose")
		return v
	}

	// fang.Execute for styled help and signal handling; version goes through
	// fang.WithVersion since fang overrides rootCmd.Version.
	err := fang.Execute(
		ctx,
		rootCmd,
		fang.WithVersion(getVersionString()),
		fang.WithNotifySignal(os.Interrupt),
		fang.WithErrorHandler(func(w io.Writer, _ fang.Styles, err error) {
			renderError(w, err, verbose())
		}),
	)
	return int(exitCodeFor(err))
}

// renderError writes the one-line failure, its suggestions and the matching
// issue page. An ExitError without a cause was already reported.
func renderError(w io.Writer, err error, verbose bool) {
	var exitErr *ExitError
	if errors.As(err, &exitErr) && exitErr.Err == nil {
		return
	}

	fmt.Fprintf(w, "%s %s\n", errorIcon, formatErrorForDisplay(err, verbose))

	id, ok := issue.IssueOf(err)
	if !ok || issue.Get(id) == nil {
		return
	}
	rendered, renderErr := issue.Get(id).Render("dark")
	if renderErr != nil {
		return
	}
	fmt.Fprint(w, rendered)
}

// formatErrorForDisplay formats an error for user display.
// If the error is an ActionableError, it uses the Format method.
// In verbose mode, shows the full error chain.
func formatErrorForDisplay(err error, verboseMode bool) string {
	var ae *issue.ActionableError
	if errors.As(err, &ae) {
		return ae.Format(verboseMode)
	}
	return err.Error()
}

// loadConfig loads configuration for a command running in workDir, applying
// overrides last.
func (a *App) loadConfig(ctx context.Context, flags *rootFlags, workDir string, overrides map[string]any) (*config.Config, error) {
	return a.Config.Load(ctx, config.LoadOptions{
		ConfigFilePath: flags.cfgFile,
		WorkDir:        workDir,
		Overrides:      overrides,
	})
}
