// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/respack/respack/internal/issue"
	"github.com/respack/respack/pkg/resource"
	"github.com/respack/respack/pkg/types"

	"github.com/spf13/cobra"
)

func newSignCommand(app *App, root *rootFlags) *cobra.Command {
	var (
		actor  string
		strict bool
	)

	cmd := &cobra.Command{
		Use:   "sign <resource-dir>...",
		Short: "Sign resource descriptors in place",
		Long: `Merge provenance into the descriptor of each resource directory and
rewrite it with a fresh signature. Every directory signed by one
invocation carries the same actor and timestamp.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			overrides := map[string]any{}
			if cmd.Flags().Changed("actor") {
				overrides["actor"] = actor
			}
			if cmd.Flags().Changed("strict") {
				overrides["signing.strict"] = strict
			}
			cfg, err := app.loadConfig(ctx, root, ".", overrides)
			if err != nil {
				return err
			}

			signer := resource.NewSigner(cfg.Actor, app.Clock.Now().UTC().Truncate(time.Second),
				resource.WithDescriptorName(cfg.Layout.DescriptorFile),
				resource.WithHintScope(cfg.HintScope),
				resource.WithStrict(cfg.Signing.Strict),
			)

			out := cmd.OutOrStdout()
			for _, dir := range args {
				if err := ctx.Err(); err != nil {
					return err
				}
				res, err := signer.Sign(dir)
				if err != nil {
					id := issue.PermissionDeniedId
					if errors.Is(err, resource.ErrMalformedDescriptor) {
						id = issue.DescriptorMalformedId
					}
					return issue.NewErrorContext().
						WithOperation("sign resource").
						WithResource(dir).
						WithIssue(id).
						Wrap(err).
						BuildError()
				}
				icon := successIcon
				if res.Recovered {
					icon = warningIcon
				}
				fmt.Fprintf(out, "%s %s %s\n", icon, PathStyle.Render(dir), SubtitleStyle.Render(res.Descriptor.Signature()[:12]))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&actor, "actor", "", "actor recorded as the last modifier")
	cmd.Flags().BoolVar(&strict, "strict", false, "fail on unparseable descriptors instead of signing from empty")
	return cmd
}

func newVerifyCommand(app *App, root *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "verify <resource-dir>...",
		Short: "Check resource signatures against descriptor and file contents",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.loadConfig(cmd.Context(), root, ".", nil)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			errOut := cmd.ErrOrStderr()
			failed := 0
			for _, dir := range args {
				if err := resource.Verify(dir, cfg.Layout.DescriptorFile); err != nil {
					fmt.Fprintf(errOut, "%s %s: %s\n", errorIcon, PathStyle.Render(dir), err)
					failed++
					continue
				}
				fmt.Fprintf(out, "%s %s\n", successIcon, PathStyle.Render(dir))
			}
			if failed > 0 {
				fmt.Fprintf(errOut, "%s %d of %d resource(s) failed verification\n", errorIcon, failed, len(args))
				return &ExitError{Code: types.ExitVerify}
			}
			return nil
		},
	}
}
