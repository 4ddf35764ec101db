package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/quantmind-br/pkglife/internal/config"
	"github.com/quantmind-br/pkglife/internal/core"
	"github.com/quantmind-br/pkglife/internal/db"
	"github.com/quantmind-br/pkglife/internal/lifecycle"
	"github.com/quantmind-br/pkglife/internal/manifest"
	"github.com/quantmind-br/pkglife/internal/scriptlet"
	"github.com/quantmind-br/pkglife/internal/security"
	"github.com/quantmind-br/pkglife/internal/ui"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

// transactionFlags are shared by commands that run scriptlets
type transactionFlags struct {
	noScripts  bool
	root       string
	env        []string
	timeout    time.Duration
	noProgress bool
}

func (f *transactionFlags) register(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&f.noScripts, "no-scripts", false, "record the transaction without running any scriptlet")
	cmd.Flags().StringVar(&f.root, "root", "", "installation root used as the scriptlet working directory")
	cmd.Flags().StringArrayVarP(&f.env, "env", "e", nil, "extra KEY=VALUE passed to scriptlets (repeatable)")
	cmd.Flags().DurationVar(&f.timeout, "timeout", 0, "per-scriptlet timeout (default from config)")
	cmd.Flags().BoolVar(&f.noProgress, "no-progress", false, "disable the progress bar")
}

// options merges flags over configuration
func (f *transactionFlags) options(cfg *config.Config) (core.TransactionOptions, error) {
	root := cfg.Scriptlets.Root
	if f.root != "" {
		root = f.root
	}
	root, err := security.ValidateRoot(root)
	if err != nil {
		return core.TransactionOptions{}, fmt.Errorf("invalid root: %w", err)
	}

	env, err := cfg.ScriptEnv()
	if err != nil {
		return core.TransactionOptions{}, err
	}
	extra, err := security.ParseEnvAssignments(f.env)
	if err != nil {
		return core.TransactionOptions{}, err
	}
	for k, v := range extra {
		env[k] = v
	}

	return core.TransactionOptions{
		NoScripts: f.noScripts || cfg.Scriptlets.Suppress,
		Root:      root,
		Env:       env,
	}, nil
}

// openDatabase opens the package database, creating its directory if needed
func openDatabase(ctx context.Context, cfg *config.Config) (*db.DB, error) {
	if dir := filepath.Dir(cfg.Paths.DBFile); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, &core.DatabaseError{Op: "open", Err: err}
		}
	}
	database, err := db.New(ctx, cfg.Paths.DBFile)
	if err != nil {
		return nil, &core.DatabaseError{Op: "open", Err: err}
	}
	return database, nil
}

func newExecutor(cfg *config.Config, log *zerolog.Logger, timeout time.Duration) *scriptlet.ShellExecutor {
	executor := scriptlet.NewShellExecutor(log)
	if cfg.Scriptlets.Timeout > 0 {
		executor.Timeout = cfg.Scriptlets.Timeout
	}
	if timeout > 0 {
		executor.Timeout = timeout
	}
	if cfg.Scriptlets.DefaultInterpreter != "" {
		executor.DefaultInterpreter = cfg.Scriptlets.DefaultInterpreter
	}
	return executor
}

func loadDescriptor(path string, log *zerolog.Logger) (*core.PackageDescriptor, error) {
	return manifest.NewLoader(afero.NewOsFs(), log).Load(path)
}

// progressObserver reports each finished invocation, either on a progress bar
// (interactive terminals) or as one line per invocation
func progressObserver(w io.Writer, interactive bool) lifecycle.Observer {
	progress := ui.NewInvocationProgress(w, interactive)
	return func(index, total int, entry lifecycle.Entry) {
		label := entry.Invocation.String()
		if interactive {
			progress.Step(index, total, label)
			return
		}
		fmt.Fprintf(w, "  %s [%d/%d] %s", ui.StatusMark(string(entry.Status)), index+1, total, label)
		if entry.Status != lifecycle.StatusSkipped {
			fmt.Fprintf(w, " %s", entry.Duration.Round(time.Millisecond))
		}
		fmt.Fprintln(w)
	}
}

// isInteractive reports whether w is a terminal; progress output goes to w
func isInteractive(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// printOutcome summarises a finished transaction on w
func printOutcome(w io.Writer, outcome *lifecycle.Outcome) {
	if outcome == nil {
		return
	}
	plan := outcome.Plan

	switch plan.Action {
	case core.ActionInstall:
		ui.Success.Fprintf(w, "%s Installed %s (%s)\n", ui.CheckMark, plan.New, ui.ColorizeFormat(plan.Format()))
	case core.ActionUpgrade:
		verb := "Upgraded"
		switch plan.Relation {
		case core.RelationDowngrade:
			verb = "Downgraded"
		case core.RelationReinstall:
			verb = "Reinstalled"
		}
		ui.Success.Fprintf(w, "%s %s %s %s %s\n", ui.CheckMark, verb, plan.Old, ui.Arrow, plan.New.FullVersion())
	case core.ActionRemove:
		ui.Success.Fprintf(w, "%s Removed %s\n", ui.CheckMark, plan.Old)
	}

	if outcome.Suppressed {
		ui.Muted.Fprintf(w, "  scriptlets suppressed, %d skipped\n", len(outcome.Entries))
	} else {
		fmt.Fprintf(w, "  %d scriptlet(s) executed\n", outcome.Executed())
	}
	for _, warning := range outcome.Warnings {
		ui.Warning.Fprintf(w, "  Warning: %v\n", warning)
	}
}
