package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"
	"github.com/quantmind-br/pkglife/internal/config"
	"github.com/quantmind-br/pkglife/internal/core"
	"github.com/quantmind-br/pkglife/internal/db"
	"github.com/quantmind-br/pkglife/internal/ui"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

type listEntry struct {
	Name        string         `json:"name"`
	Format      core.FormatTag `json:"format"`
	Version     string         `json:"version"`
	Release     string         `json:"release,omitempty"`
	Phases      []core.Phase   `json:"phases"`
	InstalledAt string         `json:"installed_at"`
}

// NewListCmd creates the list command
func NewListCmd(cfg *config.Config, log *zerolog.Logger) *cobra.Command {
	var (
		jsonOutput   bool
		filterFormat string
		filterName   string
		sortBy       string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List installed packages",
		Long:  `List all packages recorded in the package database with filtering and sorting options.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			if filterFormat != "" {
				if _, err := core.ParseFormat(filterFormat); err != nil {
					ui.PrintError("%v", err)
					return err
				}
			}

			database, err := openDatabase(ctx, cfg)
			if err != nil {
				ui.PrintError("failed to open database: %v", err)
				return err
			}
			defer database.Close()

			records, err := database.List(ctx)
			if err != nil {
				ui.PrintError("failed to list packages: %v", err)
				return &core.DatabaseError{Op: "list", Err: err}
			}

			filtered := filterRecords(records, filterFormat, filterName)
			sortRecords(filtered, sortBy)

			log.Debug().
				Int("total", len(records)).
				Int("shown", len(filtered)).
				Msg("listing packages")

			if jsonOutput {
				entries := make([]listEntry, 0, len(filtered))
				for _, rec := range filtered {
					entries = append(entries, listEntry{
						Name:        rec.Name,
						Format:      rec.Format,
						Version:     rec.Version,
						Release:     rec.Release,
						Phases:      definedPhases(&rec.PackageDescriptor),
						InstalledAt: rec.InstalledAt.Format("2006-01-02T15:04:05Z07:00"),
					})
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(entries)
			}

			if len(filtered) == 0 {
				if filterFormat != "" || filterName != "" {
					ui.PrintWarning("No packages found matching filters")
				} else {
					ui.PrintInfo("No packages installed")
				}
				return nil
			}

			printRecordTable(cmd.OutOrStdout(), filtered)
			fmt.Fprintf(cmd.OutOrStdout(), "\nTotal: %d packages", len(records))
			if len(filtered) != len(records) {
				fmt.Fprintf(cmd.OutOrStdout(), " (showing %d filtered)", len(filtered))
			}
			fmt.Fprintln(cmd.OutOrStdout())

			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output in JSON format")
	cmd.Flags().StringVar(&filterFormat, "format", "", "filter by package format (rpm, deb, arch)")
	cmd.Flags().StringVar(&filterName, "name", "", "filter by package name (partial match)")
	cmd.Flags().StringVar(&sortBy, "sort", "name", "sort by: name, format, date")

	return cmd
}

func filterRecords(records []db.Record, filterFormat, filterName string) []db.Record {
	filtered := make([]db.Record, 0, len(records))
	format, _ := core.ParseFormat(filterFormat)

	for _, rec := range records {
		if filterFormat != "" && rec.Format != format {
			continue
		}
		if filterName != "" && !strings.Contains(strings.ToLower(rec.Name), strings.ToLower(filterName)) {
			continue
		}
		filtered = append(filtered, rec)
	}

	return filtered
}

func sortRecords(records []db.Record, sortBy string) {
	byName := func(i, j int) bool {
		return strings.ToLower(records[i].Name) < strings.ToLower(records[j].Name)
	}

	switch strings.ToLower(sortBy) {
	case "format":
		sort.SliceStable(records, func(i, j int) bool {
			if records[i].Format == records[j].Format {
				return byName(i, j)
			}
			return records[i].Format < records[j].Format
		})
	case "date":
		sort.SliceStable(records, func(i, j int) bool {
			return records[i].InstalledAt.After(records[j].InstalledAt)
		})
	default:
		sort.SliceStable(records, byName)
	}
}

func printRecordTable(w io.Writer, records []db.Record) {
	table := tablewriter.NewTable(w,
		tablewriter.WithHeader([]string{"Name", "Format", "Version", "Scriptlets", "Installed"}),
		tablewriter.WithAlignment(tw.MakeAlign(5, tw.AlignLeft)),
		tablewriter.WithSymbols(tw.NewSymbols(tw.StyleNone)),
	)

	for _, rec := range records {
		table.Append(
			rec.Name,
			ui.ColorizeFormat(rec.Format),
			rec.FullVersion(),
			fmt.Sprintf("%d", len(rec.Scriptlets)),
			rec.InstalledAt.Local().Format("2006-01-02 15:04"),
		)
	}

	table.Render()
}

// definedPhases returns the phases desc carries, in lifecycle order
func definedPhases(desc *core.PackageDescriptor) []core.Phase {
	phases := make([]core.Phase, 0, len(desc.Scriptlets))
	for _, p := range core.Phases {
		if _, ok := desc.Scriptlet(p); ok {
			phases = append(phases, p)
		}
	}
	return phases
}
