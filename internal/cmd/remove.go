package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/quantmind-br/pkglife/internal/config"
	"github.com/quantmind-br/pkglife/internal/core"
	"github.com/quantmind-br/pkglife/internal/db"
	"github.com/quantmind-br/pkglife/internal/lifecycle"
	"github.com/quantmind-br/pkglife/internal/ui"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// NewRemoveCmd creates the remove command
func NewRemoveCmd(cfg *config.Config, log *zerolog.Logger) *cobra.Command {
	var (
		flags transactionFlags
		yes   bool
	)

	cmd := &cobra.Command{
		Use:     "remove [package-name]",
		Aliases: []string{"uninstall", "rm"},
		Short:   "Remove an installed package",
		Long: `Remove an installed package and run its removal scriptlets.
Run without arguments for an interactive selector.`,
		Args:              cobra.MaximumNArgs(1),
		ValidArgsFunction: completeInstalledNames(cfg),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			opts, err := flags.options(cfg)
			if err != nil {
				ui.PrintError("%v", err)
				return err
			}

			database, err := openDatabase(ctx, cfg)
			if err != nil {
				ui.PrintError("failed to open database: %v", err)
				return err
			}
			defer database.Close()

			var name string
			if len(args) == 1 {
				name = args[0]
			} else {
				name, err = pickInstalled(ctx, database)
				if err != nil {
					return err
				}
				if name == "" {
					return nil
				}
				if !yes {
					ok, err := ui.ConfirmPrompt(fmt.Sprintf("Remove %s", name))
					if err != nil {
						return err
					}
					if !ok {
						ui.PrintInfo("Removal cancelled")
						return nil
					}
				}
			}

			log.Info().
				Str("package", name).
				Bool("no_scripts", opts.NoScripts).
				Msg("starting removal")

			engine := lifecycle.NewEngine(database, newExecutor(cfg, log, flags.timeout), log)
			engine.Observer = progressObserver(out, !flags.noProgress && isInteractive(out))

			outcome, err := engine.Remove(ctx, name, opts)
			if err != nil {
				var notInstalled *core.NotInstalledError
				if errors.As(err, &notInstalled) {
					ui.PrintError("%v", err)
					suggestInstalled(ctx, database, name)
					return err
				}
				ui.PrintError("removal of %s failed: %v", name, err)
				return removeError(err)
			}

			printOutcome(out, outcome)
			return nil
		},
	}

	flags.register(cmd)
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation in interactive mode")

	return cmd
}

func removeError(err error) error {
	if core.ExitCodeFor(err) != core.ExitGeneral {
		return err
	}
	return &exitError{code: core.ExitRemoveFailed, err: err}
}

// pickInstalled lets the user choose an installed package. An empty name with a
// nil error means there was nothing to choose from.
func pickInstalled(ctx context.Context, database *db.DB) (string, error) {
	records, err := database.List(ctx)
	if err != nil {
		return "", &core.DatabaseError{Op: "list", Err: err}
	}
	if len(records) == 0 {
		ui.PrintInfo("No packages installed")
		return "", nil
	}

	items := make([]string, len(records))
	byLabel := make(map[string]string, len(records))
	for i, rec := range records {
		label := fmt.Sprintf("%s %s (%s)", rec.Name, rec.FullVersion(), rec.Format)
		items[i] = label
		byLabel[label] = rec.Name
	}

	choice, err := ui.SelectPrompt("Select package to remove (type to search)", items)
	if err != nil {
		if errors.Is(err, ui.ErrCancelled) {
			ui.PrintInfo("Removal cancelled")
			return "", nil
		}
		return "", err
	}
	return byLabel[choice], nil
}

func suggestInstalled(ctx context.Context, database *db.DB, name string) {
	records, err := database.List(ctx)
	if err != nil || len(records) == 0 {
		return
	}
	names := make([]string, len(records))
	for i, rec := range records {
		names[i] = rec.Name
	}
	if suggestions := ui.Suggest(name, names, 3); len(suggestions) > 0 {
		ui.PrintInfo("Did you mean: %v", suggestions)
	}
}

// completeInstalledNames completes package names from the database
func completeInstalledNames(cfg *config.Config) func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
	return func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		if len(args) > 0 {
			return nil, cobra.ShellCompDirectiveNoFileComp
		}
		ctx := context.Background()
		database, err := db.New(ctx, cfg.Paths.DBFile)
		if err != nil {
			return nil, cobra.ShellCompDirectiveError
		}
		defer database.Close()

		records, err := database.List(ctx)
		if err != nil {
			return nil, cobra.ShellCompDirectiveError
		}
		names := make([]string, 0, len(records))
		for _, rec := range records {
			names = append(names, rec.Name)
		}
		return names, cobra.ShellCompDirectiveNoFileComp
	}
}
