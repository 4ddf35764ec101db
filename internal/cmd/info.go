package cmd

import (
	"fmt"
	"strings"

	"github.com/quantmind-br/pkglife/internal/config"
	"github.com/quantmind-br/pkglife/internal/core"
	"github.com/quantmind-br/pkglife/internal/db"
	"github.com/quantmind-br/pkglife/internal/ui"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// NewInfoCmd creates the info command
func NewInfoCmd(cfg *config.Config, log *zerolog.Logger) *cobra.Command {
	var showScripts bool

	cmd := &cobra.Command{
		Use:               "info [package-name]",
		Short:             "Show package information",
		Long:              `Show the recorded version, scriptlets and recent transactions of an installed package.`,
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: completeInstalledNames(cfg),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			name := args[0]

			database, err := openDatabase(ctx, cfg)
			if err != nil {
				ui.PrintError("failed to open database: %v", err)
				return err
			}
			defer func() { _ = database.Close() }()

			rec, err := database.GetRecord(ctx, name)
			if err != nil {
				ui.PrintError("failed to query database: %v", err)
				return &core.DatabaseError{Op: "get " + name, Err: err}
			}
			if rec == nil {
				ui.PrintError("package not found: %s", name)
				ui.PrintInfo("Use 'pkglife list' to see installed packages")
				return &core.NotInstalledError{Name: name}
			}

			history, err := database.History(ctx, name, 5)
			if err != nil {
				log.Warn().Err(err).Str("package", name).Msg("failed to load history")
			}

			printPackageInfo(rec, history, showScripts)

			log.Debug().
				Str("package", rec.String()).
				Msg("displayed package info")

			return nil
		},
	}

	cmd.Flags().BoolVar(&showScripts, "scripts", false, "print scriptlet bodies")

	return cmd
}

func printPackageInfo(rec *db.Record, history []core.HistoryEntry, showScripts bool) {
	ui.PrintHeader("Package Information")
	ui.PrintKeyValue("Name", rec.Name)
	ui.PrintKeyValue("Format", ui.ColorizeFormat(rec.Format))
	ui.PrintKeyValue("Version", rec.Version)
	if rec.Release != "" {
		ui.PrintKeyValue("Release", rec.Release)
	}
	ui.PrintKeyValue("Installed", rec.InstalledAt.Local().Format("2006-01-02 15:04:05"))

	phases := definedPhases(&rec.PackageDescriptor)
	ui.PrintHeader(fmt.Sprintf("Scriptlets (%d)", len(phases)))
	if len(phases) == 0 {
		ui.Muted.Println("none")
	}
	for _, p := range phases {
		s, _ := rec.Scriptlet(p)
		interpreter := s.Interpreter
		if interpreter == "" {
			interpreter = "default"
		}
		if rec.Format == core.FormatArch {
			interpreter = "/bin/bash"
		}
		ui.PrintList([]string{fmt.Sprintf("%s (%s, %d lines)", p, interpreter, strings.Count(s.Body, "\n")+1)})
		if showScripts {
			ui.Muted.Println(indent(s.Body, "      "))
		}
	}

	if len(history) > 0 {
		ui.PrintHeader("Recent Transactions")
		for _, h := range history {
			ui.PrintList([]string{historySummary(h)})
		}
	}
}

func indent(text, prefix string) string {
	lines := strings.Split(strings.TrimRight(text, "\n"), "\n")
	for i, l := range lines {
		lines[i] = prefix + l
	}
	return strings.Join(lines, "\n")
}
