package cmd

import (
	"fmt"

	"github.com/quantmind-br/pkglife/internal/config"
	"github.com/quantmind-br/pkglife/internal/core"
	"github.com/quantmind-br/pkglife/internal/lifecycle"
	"github.com/quantmind-br/pkglife/internal/ui"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// NewInstallCmd creates the install command
func NewInstallCmd(cfg *config.Config, log *zerolog.Logger) *cobra.Command {
	var flags transactionFlags

	cmd := &cobra.Command{
		Use:   "install [package]",
		Short: "Install or upgrade a package",
		Long: `Install a package and run its lifecycle scriptlets.

The package may be a directory with manifest.toml, a directory with DEBIAN/control,
an Arch package directory (.PKGINFO/.INSTALL) or an Arch package archive
(.pkg.tar.zst, .pkg.tar.xz, .pkg.tar.gz). Installing a name that is already
recorded upgrades it, including reinstalls and downgrades.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			desc, err := loadDescriptor(args[0], log)
			if err != nil {
				ui.PrintError("failed to read package: %v", err)
				return fmt.Errorf("read package: %w", err)
			}

			opts, err := flags.options(cfg)
			if err != nil {
				ui.PrintError("%v", err)
				return err
			}

			log.Info().
				Str("package", desc.String()).
				Str("format", string(desc.Format)).
				Bool("no_scripts", opts.NoScripts).
				Str("root", opts.Root).
				Msg("starting installation")

			database, err := openDatabase(ctx, cfg)
			if err != nil {
				ui.PrintError("failed to open database: %v", err)
				return err
			}
			defer database.Close()

			engine := lifecycle.NewEngine(database, newExecutor(cfg, log, flags.timeout), log)
			engine.Observer = progressObserver(out, !flags.noProgress && isInteractive(out))

			ui.Info.Fprintf(out, "%s Installing %s (%s)\n", ui.Arrow, desc, ui.ColorizeFormat(desc.Format))
			outcome, err := engine.Install(ctx, desc, opts)
			if err != nil {
				ui.PrintError("installation of %s failed: %v", desc, err)
				return installError(err)
			}

			printOutcome(out, outcome)
			return nil
		},
	}

	flags.register(cmd)

	return cmd
}

// installError keeps the error chain but maps failures without a more specific
// taxonomy entry to the install exit code
func installError(err error) error {
	if core.ExitCodeFor(err) != core.ExitGeneral {
		return err
	}
	return &exitError{code: core.ExitInstallFailed, err: err}
}
