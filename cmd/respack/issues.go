// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"

	"github.com/respack/respack/internal/issue"

	"github.com/spf13/cobra"
)

// newIssuesCommand creates the `respack issues` command, which lists the
// failure catalog or renders one entry.
func newIssuesCommand() *cobra.Command {
	var style string

	cmd := &cobra.Command{
		Use:   "issues [name]",
		Short: "Explain the failures respack reports",
		Long: `List every failure class respack can report, or show the full
explanation and remedies for one of them.`,
		Example: `  respack issues
  respack issues unexpected-artifact`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			w := cmd.OutOrStdout()
			if len(args) == 0 {
				for _, iss := range issue.Values() {
					fmt.Fprintf(w, "  %s %s\n", PathStyle.Render(fmt.Sprintf("%-22s", iss.Id().Name())), iss.Title())
				}
				return nil
			}

			iss := issue.Lookup(args[0])
			if iss == nil {
				return fmt.Errorf("unknown issue %q; run 'respack issues' to list them", args[0])
			}
			rendered, err := iss.Render(style)
			if err != nil {
				return fmt.Errorf("failed to render issue %s: %w", args[0], err)
			}
			fmt.Fprint(w, rendered)
			return nil
		},
	}
	cmd.Flags().StringVar(&style, "style", "auto", "glamour style (auto, dark, light, notty)")
	return cmd
}
