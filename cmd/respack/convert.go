// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/respack/respack/internal/issue"
	"github.com/respack/respack/pkg/resource"

	"github.com/spf13/cobra"
)

func newConvertCommand(app *App, root *rootFlags) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "convert <dir>",
		Short: "Move flat generated files into resource directories",
		Long: `Move every basename-paired generated file under dir into a directory
named after the basename, renaming it by the layout.extensions table.

Nothing is moved when dir contains a file with an unmapped extension.
Running convert on an already converted tree changes nothing.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			dir := args[0]

			cfg, err := app.loadConfig(ctx, root, ".", nil)
			if err != nil {
				return err
			}
			table := cfg.ExtensionTable()

			plan, err := resource.PlanConversion(dir, table)
			if err == nil && !dryRun {
				err = plan.Apply()
			}
			if err != nil {
				return convertError(err, dir)
			}

			out := cmd.OutOrStdout()
			if dryRun {
				for _, mv := range plan.Moves {
					fmt.Fprintf(out, "%s -> %s\n", relTo(dir, mv.From), relTo(dir, mv.To))
				}
				return nil
			}
			for _, res := range plan.Resources {
				fmt.Fprintln(out, relTo(dir, res))
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&dryRun, "dry-run", "n", false, "print the planned moves without touching the tree")
	return cmd
}

func convertError(err error, dir string) error {
	var id issue.Id
	switch {
	case errors.Is(err, resource.ErrUnexpectedExtension), errors.Is(err, resource.ErrDestinationExists):
		id = issue.UnexpectedArtifactId
	case errors.Is(err, fs.ErrNotExist):
		id = issue.WorkDirNotFoundId
	case errors.Is(err, fs.ErrPermission):
		id = issue.PermissionDeniedId
	}
	return issue.NewErrorContext().
		WithOperation("convert generated tree").
		WithResource(dir).
		WithIssue(id).
		Wrap(err).
		BuildError()
}

// relTo renders path relative to base with forward slashes, falling back to
// path when no relative form exists.
func relTo(base, path string) string {
	rel, err := filepath.Rel(base, path)
	if err != nil {
		return path
	}
	return filepath.ToSlash(rel)
}
