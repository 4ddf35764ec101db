package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"
	"github.com/quantmind-br/pkglife/internal/config"
	"github.com/quantmind-br/pkglife/internal/core"
	"github.com/quantmind-br/pkglife/internal/ui"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// NewHistoryCmd creates the history command
func NewHistoryCmd(cfg *config.Config, log *zerolog.Logger) *cobra.Command {
	var (
		limit      int
		jsonOutput bool
		details    bool
	)

	cmd := &cobra.Command{
		Use:               "history [package-name]",
		Short:             "Show transaction history",
		Long:              `Show committed and aborted transactions, newest first, optionally for a single package.`,
		Args:              cobra.MaximumNArgs(1),
		ValidArgsFunction: completeInstalledNames(cfg),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			var name string
			if len(args) == 1 {
				name = args[0]
			}

			database, err := openDatabase(ctx, cfg)
			if err != nil {
				ui.PrintError("failed to open database: %v", err)
				return err
			}
			defer database.Close()

			entries, err := database.History(ctx, name, limit)
			if err != nil {
				ui.PrintError("failed to read history: %v", err)
				return &core.DatabaseError{Op: "history", Err: err}
			}

			log.Debug().Str("package", name).Int("entries", len(entries)).Msg("listing history")

			if jsonOutput {
				if entries == nil {
					entries = []core.HistoryEntry{}
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(entries)
			}

			if len(entries) == 0 {
				ui.PrintInfo("No transactions recorded")
				return nil
			}

			printHistoryTable(cmd.OutOrStdout(), entries)
			if details {
				for _, h := range entries {
					printHistoryDetails(cmd.OutOrStdout(), h)
				}
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of entries (0 for all)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output in JSON format")
	cmd.Flags().BoolVarP(&details, "details", "d", false, "show every scriptlet invocation")

	return cmd
}

func printHistoryTable(w io.Writer, entries []core.HistoryEntry) {
	table := tablewriter.NewTable(w,
		tablewriter.WithHeader([]string{"ID", "Date", "Action", "Package", "Versions", "Result", "Warnings"}),
		tablewriter.WithAlignment(tw.MakeAlign(7, tw.AlignLeft)),
		tablewriter.WithSymbols(tw.NewSymbols(tw.StyleLight)),
	)

	for _, h := range entries {
		table.Append(
			fmt.Sprintf("%d", h.ID),
			h.CreatedAt.Local().Format("2006-01-02 15:04"),
			ui.ColorizeAction(h.Action),
			fmt.Sprintf("%s (%s)", h.Name, h.Format),
			versionSpan(h),
			resultLabel(h),
			fmt.Sprintf("%d", len(h.Warnings)),
		)
	}

	table.Render()
}

func printHistoryDetails(w io.Writer, h core.HistoryEntry) {
	fmt.Fprintf(w, "\n#%d %s\n", h.ID, historySummary(h))
	for _, rec := range h.Invocations {
		line := fmt.Sprintf("  %s %s.%s(%s)", ui.StatusMark(rec.Status), rec.Owner, rec.Phase, strings.Join(quoteArgs(rec.Argv), ", "))
		if rec.Status != "skipped" {
			line += fmt.Sprintf(" exit=%d %dms", rec.ExitCode, rec.DurationMS)
		}
		fmt.Fprintln(w, line)
		if rec.Error != "" {
			ui.Muted.Fprintf(w, "      %s\n", rec.Error)
		}
	}
	for _, warning := range h.Warnings {
		ui.Warning.Fprintf(w, "  Warning: %s\n", warning)
	}
}

func historySummary(h core.HistoryEntry) string {
	return fmt.Sprintf("%s %s %s %s [%s]",
		h.CreatedAt.Local().Format("2006-01-02 15:04"), h.Action, h.Name, versionSpan(h), resultLabel(h))
}

func versionSpan(h core.HistoryEntry) string {
	switch {
	case h.OldVersion != "" && h.NewVersion != "":
		return h.OldVersion + " -> " + h.NewVersion
	case h.NewVersion != "":
		return h.NewVersion
	default:
		return h.OldVersion
	}
}

func resultLabel(h core.HistoryEntry) string {
	switch {
	case !h.Committed:
		return "aborted"
	case h.Suppressed:
		return "committed (no scripts)"
	default:
		return "committed"
	}
}
