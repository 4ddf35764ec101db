package cmd

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"github.com/quantmind-br/pkglife/internal/config"
	"github.com/quantmind-br/pkglife/internal/core"
	"github.com/quantmind-br/pkglife/internal/db"
	"github.com/quantmind-br/pkglife/internal/security"
	"github.com/quantmind-br/pkglife/internal/ui"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// NewDoctorCmd creates the doctor command
func NewDoctorCmd(cfg *config.Config, log *zerolog.Logger) *cobra.Command {
	var verbose bool

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check interpreters, directories and the package database",
		Long: `Check that the scriptlet interpreters are available, that the data directories
and the package database are usable, and that every installed package can still
run its removal scriptlets.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			var issues []string

			ui.PrintHeader("Interpreters")
			for _, interp := range baseInterpreters(cfg) {
				if checkInterpreter(interp) {
					ui.PrintSuccess("%s: found", interp)
				} else {
					ui.PrintError("%s: NOT FOUND", interp)
					issues = append(issues, fmt.Sprintf("Missing interpreter: %s", interp))
				}
			}

			ui.PrintHeader("Directories")
			dirs := []struct {
				path string
				name string
			}{
				{cfg.Paths.DataDir, "Data directory"},
				{filepath.Dir(cfg.Paths.DBFile), "Database directory"},
				{filepath.Dir(cfg.Paths.LogFile), "Log directory"},
			}
			for _, dir := range dirs {
				if checkDirectory(dir.path) {
					ui.PrintSuccess("%s: %s", dir.name, dir.path)
				} else {
					ui.PrintError("%s: NOT ACCESSIBLE (%s)", dir.name, dir.path)
					issues = append(issues, fmt.Sprintf("Directory not accessible: %s", dir.path))
				}
			}

			ui.PrintHeader("Scriptlet root")
			if root, err := security.ValidateRoot(cfg.Scriptlets.Root); err != nil {
				ui.PrintError("Root: %v", err)
				issues = append(issues, fmt.Sprintf("Invalid scriptlet root: %v", err))
			} else {
				ui.PrintSuccess("Root: %s", root)
			}

			ui.PrintHeader("Database")
			database, err := db.New(ctx, cfg.Paths.DBFile)
			if err != nil {
				ui.PrintError("Database: NOT ACCESSIBLE")
				issues = append(issues, fmt.Sprintf("Cannot open database: %v", err))
			} else {
				defer database.Close()
				ui.PrintSuccess("Database: accessible (%s)", cfg.Paths.DBFile)

				records, listErr := database.List(ctx)
				if listErr != nil {
					issues = append(issues, fmt.Sprintf("Cannot list installed packages: %v", listErr))
				} else {
					ui.PrintInfo("Installed packages: %d", len(records))
					for interp, owners := range requiredInterpreters(records, cfg.Scriptlets.DefaultInterpreter) {
						if checkInterpreter(interp) {
							if verbose {
								ui.PrintKeyValue(interp, strings.Join(owners, ", "))
							}
							continue
						}
						ui.PrintError("%s: needed by %s", interp, strings.Join(owners, ", "))
						issues = append(issues, fmt.Sprintf("Interpreter %s missing for %d package(s)", interp, len(owners)))
					}
				}
			}

			fmt.Println()
			if len(issues) > 0 {
				ui.PrintHeader("Issues")
				ui.PrintList(issues)
				log.Warn().Int("issues", len(issues)).Msg("doctor found problems")
				return fmt.Errorf("doctor found %d issue(s)", len(issues))
			}

			ui.PrintSuccess("All checks passed")
			return nil
		},
	}

	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "show which packages use each interpreter")

	return cmd
}

func baseInterpreters(cfg *config.Config) []string {
	seen := map[string]bool{}
	var out []string
	for _, interp := range []string{cfg.Scriptlets.DefaultInterpreter, "/bin/sh", "/bin/bash"} {
		if interp == "" || seen[interp] {
			continue
		}
		seen[interp] = true
		out = append(out, interp)
	}
	return out
}

func checkInterpreter(path string) bool {
	_, err := exec.LookPath(path)
	return err == nil
}

func checkDirectory(path string) bool {
	if path == "" {
		return false
	}
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.IsDir()
}

// requiredInterpreters maps each interpreter to the installed packages whose
// scriptlets would run under it
func requiredInterpreters(records []db.Record, defaultInterpreter string) map[string][]string {
	if defaultInterpreter == "" {
		defaultInterpreter = "/bin/sh"
	}
	out := map[string][]string{}
	for _, rec := range records {
		seen := map[string]bool{}
		for _, s := range rec.Scriptlets {
			interp := s.Interpreter
			switch {
			case rec.Format == core.FormatArch:
				interp = "/bin/bash"
			case interp == "":
				interp = defaultInterpreter
			}
			if seen[interp] {
				continue
			}
			seen[interp] = true
			out[interp] = append(out[interp], rec.Name)
		}
	}
	for interp := range out {
		sort.Strings(out[interp])
	}
	return out
}
