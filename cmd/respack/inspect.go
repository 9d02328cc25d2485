// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/respack/respack/internal/issue"
	"github.com/respack/respack/pkg/archive"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

const (
	formatTable = "table"
	formatJSON  = "json"
	formatYAML  = "yaml"
)

func newInspectCommand(app *App) *cobra.Command {
	var (
		format     string
		extractDir string
	)

	cmd := &cobra.Command{
		Use:   "inspect <archive>",
		Short: "List the entries of an archive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			archivePath := args[0]

			entries, err := archive.List(archivePath)
			if err != nil {
				return archiveError(err, "read archive", archivePath)
			}
			if err := writeEntries(cmd.OutOrStdout(), entries, format); err != nil {
				return err
			}

			if extractDir == "" {
				return nil
			}
			paths, err := archive.Extract(archivePath, extractDir)
			if err != nil {
				return archiveError(err, "extract archive", archivePath)
			}
			fmt.Fprintf(app.stderr, "%s extracted %d entries to %s\n", successIcon, len(paths), PathStyle.Render(extractDir))
			return nil
		},
	}
	cmd.Flags().StringVarP(&format, "format", "o", formatTable, "output format: table, json or yaml")
	cmd.Flags().StringVar(&extractDir, "extract", "", "also extract the archive into this directory")
	return cmd
}

func writeEntries(w io.Writer, entries []archive.Entry, format string) error {
	switch format {
	case formatTable:
		fmt.Fprintln(w, entriesTable(entries))
		return nil
	case formatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	case formatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(entries); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown format %q (want %s, %s or %s)", format, formatTable, formatJSON, formatYAML)
	}
}

func entriesTable(entries []archive.Entry) string {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(tableBorderStyle).
		Headers("NAME", "SIZE", "PACKED", "MODIFIED").
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return tableHeaderStyle
			}
			return tableCellStyle
		})
	for _, e := range entries {
		size, packed := strconv.FormatUint(e.Size, 10), strconv.FormatUint(e.Packed, 10)
		if e.Dir {
			size, packed = "-", "-"
		}
		t.Row(e.Name, size, packed, e.Modified.Format(time.DateTime))
	}
	return t.String()
}

func archiveError(err error, operation, path string) error {
	return issue.NewErrorContext().
		WithOperation(operation).
		WithResource(path).
		WithIssue(issue.ArchiveFailedId).
		Wrap(err).
		BuildError()
}
