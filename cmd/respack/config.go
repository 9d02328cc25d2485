// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/respack/respack/internal/config"

	"github.com/spf13/cobra"
)

// newConfigCommand creates the `respack config` command tree.
func newConfigCommand(app *App, root *rootFlags) *cobra.Command {
	cfgCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage respack configuration",
		Long: `Manage respack configuration.

Configuration is read from the first of:
  - the file given with --config
  - respack.cue in the working directory
  - config.cue in the user config directory
    (Linux: ~/.config/respack, macOS: ~/Library/Application Support/respack,
    Windows: %APPDATA%\respack)

RESPACK_* environment variables override file values.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.loadConfig(cmd.Context(), root, ".", nil)
			if err != nil {
				return err
			}
			showConfig(cmd.OutOrStdout(), cfg)
			return nil
		},
	})

	var dumpFormat string
	dumpCmd := &cobra.Command{
		Use:   "dump",
		Short: "Output the effective configuration as CUE or TOML",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.loadConfig(cmd.Context(), root, ".", nil)
			if err != nil {
				return err
			}
			switch dumpFormat {
			case "cue":
				fmt.Fprint(cmd.OutOrStdout(), config.GenerateCUE(cfg))
			case "toml":
				out, err := config.GenerateTOML(cfg)
				if err != nil {
					return err
				}
				fmt.Fprint(cmd.OutOrStdout(), out)
			default:
				return fmt.Errorf("unknown format %q (want cue or toml)", dumpFormat)
			}
			return nil
		},
	}
	dumpCmd.Flags().StringVarP(&dumpFormat, "format", "o", "cue", "output format: cue or toml")
	cfgCmd.AddCommand(dumpCmd)

	var (
		local bool
		force bool
	)
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Create a default configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := initConfigPath(local)
			if err != nil {
				return err
			}
			created, err := config.WriteDefault(path, force)
			if err != nil {
				return err
			}
			if !created {
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s already exists (use --force to overwrite)\n", warningIcon, PathStyle.Render(path))
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s Created default configuration at %s\n", successIcon, PathStyle.Render(path))
			return nil
		},
	}
	initCmd.Flags().BoolVar(&local, "local", false, "write respack.cue in the current directory instead of the user config directory")
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	cfgCmd.AddCommand(initCmd)

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show configuration file locations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgDir, err := config.ConfigDir()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Config directory: %s\n", cfgDir)
			fmt.Fprintf(out, "Config file: %s\n", filepath.Join(cfgDir, config.ConfigFileName))
			fmt.Fprintf(out, "Local config file: %s\n", config.LocalConfigFileName)
			return nil
		},
	})

	return cfgCmd
}

func initConfigPath(local bool) (string, error) {
	if local {
		return config.LocalConfigFileName, nil
	}
	cfgDir, err := config.ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(cfgDir, config.ConfigFileName), nil
}

func showConfig(w io.Writer, cfg *config.Config) {
	key := PathStyle.Render
	value := SuccessStyle.Render
	none := SubtitleStyle.Render("(unset)")
	str := func(s string) string {
		if s == "" {
			return none
		}
		return value(s)
	}

	fmt.Fprintln(w, TitleStyle.Render("Current Configuration"))
	fmt.Fprintln(w)
	if cfg.Source != "" {
		fmt.Fprintf(w, "%s: %s\n", key("Config file"), cfg.Source)
	} else {
		fmt.Fprintf(w, "%s: %s\n", key("Config file"), SubtitleStyle.Render("(using defaults)"))
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "%s: %s\n", key("package_name"), str(cfg.PackageName))
	fmt.Fprintf(w, "%s: %s\n", key("project_name"), str(cfg.EffectiveProjectName()))
	fmt.Fprintf(w, "%s: %s\n", key("package_version"), str(cfg.PackageVersion))
	fmt.Fprintf(w, "%s: %s\n", key("package_url"), str(cfg.PackageURL))
	fmt.Fprintf(w, "%s: %s\n", key("recursion_limit"), str(cfg.RecursionLimit))
	fmt.Fprintf(w, "%s: %s\n", key("actor"), str(cfg.Actor))
	fmt.Fprintf(w, "%s: %s\n", key("hint_scope"), value(fmt.Sprint(cfg.HintScope)))

	fmt.Fprintln(w)
	fmt.Fprintf(w, "%s:\n", key("layout"))
	fmt.Fprintf(w, "  resource root: %s\n", value(filepath.ToSlash(cfg.ResourceRootPath())))
	fmt.Fprintf(w, "  docs_dir: %s\n", value(cfg.Layout.DocsDir))
	fmt.Fprintf(w, "  manifest_file: %s\n", value(cfg.Layout.ManifestFile))
	fmt.Fprintf(w, "  descriptor_file: %s\n", value(cfg.Layout.DescriptorFile))
	table := cfg.ExtensionTable()
	pairs := make([]string, 0, len(table))
	for _, ext := range table.Extensions() {
		pairs = append(pairs, "."+ext+" → "+table[ext])
	}
	fmt.Fprintf(w, "  extensions: %s\n", value(strings.Join(pairs, ", ")))
	fmt.Fprintf(w, "  archives: %s, %s\n", value(cfg.Layout.ProjectArchive), value(cfg.Layout.DocsArchive))
	fmt.Fprintf(w, "  bookkeeping: %s\n", value(strings.Join(cfg.Layout.Bookkeeping, ", ")))

	fmt.Fprintln(w)
	fmt.Fprintf(w, "%s:\n", key("manifest"))
	fmt.Fprintf(w, "  title: %s\n", str(cfg.Manifest.Title))
	fmt.Fprintf(w, "  description: %s\n", str(cfg.Manifest.Description))
	fmt.Fprintf(w, "  parent: %s\n", str(cfg.Manifest.Parent))
	fmt.Fprintf(w, "  enabled: %s\n", value(fmt.Sprint(cfg.Manifest.Enabled)))
	fmt.Fprintf(w, "  inheritable: %s\n", value(fmt.Sprint(cfg.Manifest.Inheritable)))

	fmt.Fprintln(w)
	fmt.Fprintf(w, "%s: pin_timestamps %s\n", key("archive"), value(fmt.Sprint(cfg.Archive.PinTimestamps)))
	fmt.Fprintf(w, "%s: strict %s, workers %s\n", key("signing"), value(fmt.Sprint(cfg.Signing.Strict)), value(fmt.Sprint(cfg.Signing.Workers)))
}
