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
	"github.com/quantmind-br/pkglife/internal/lifecycle"
	"github.com/quantmind-br/pkglife/internal/scriptlet"
	"github.com/quantmind-br/pkglife/internal/ui"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

type planOutput struct {
	Plan        *core.TransactionPlan      `json:"plan"`
	Invocations []core.ScriptletInvocation `json:"invocations"`
}

// NewPlanCmd creates the plan command
func NewPlanCmd(cfg *config.Config, log *zerolog.Logger) *cobra.Command {
	var (
		remove     bool
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "plan [package | --remove package-name]",
		Short: "Show the scriptlets a transaction would run",
		Long: `Classify an install or removal against the package database and print the
ordered scriptlet invocations with their arguments, without running anything.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			database, err := openDatabase(ctx, cfg)
			if err != nil {
				ui.PrintError("failed to open database: %v", err)
				return err
			}
			defer database.Close()

			// Preview never executes, the executor is only needed to build the engine.
			engine := lifecycle.NewEngine(database, &scriptlet.MockExecutor{}, log)

			var (
				plan        *core.TransactionPlan
				invocations []core.ScriptletInvocation
			)
			if remove {
				plan, invocations, err = engine.Preview(ctx, core.ActionRemove, &core.PackageDescriptor{Name: args[0]})
			} else {
				desc, loadErr := loadDescriptor(args[0], log)
				if loadErr != nil {
					ui.PrintError("failed to read package: %v", loadErr)
					return fmt.Errorf("read package: %w", loadErr)
				}
				plan, invocations, err = engine.Preview(ctx, core.ActionInstall, desc)
			}
			if err != nil {
				ui.PrintError("%v", err)
				return err
			}

			if jsonOutput {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(planOutput{Plan: plan, Invocations: invocations})
			}

			printPlan(cmd.OutOrStdout(), plan, invocations)
			return nil
		},
	}

	cmd.Flags().BoolVar(&remove, "remove", false, "plan the removal of an installed package")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output in JSON format")

	return cmd
}

func printPlan(w io.Writer, plan *core.TransactionPlan, invocations []core.ScriptletInvocation) {
	summary := fmt.Sprintf("%s %s (%s)", ui.ColorizeAction(plan.Action), plan.Name(), ui.ColorizeFormat(plan.Format()))
	switch plan.Action {
	case core.ActionInstall:
		summary += " " + plan.New.FullVersion()
	case core.ActionUpgrade:
		summary += fmt.Sprintf(" %s %s %s", plan.Old.FullVersion(), ui.Arrow, plan.New.FullVersion())
		if plan.Relation != core.RelationNone && plan.Relation != core.RelationUpgrade {
			summary += fmt.Sprintf(" [%s]", plan.Relation)
		}
	case core.ActionRemove:
		summary += " " + plan.Old.FullVersion()
	}
	fmt.Fprintln(w, summary)

	if len(invocations) == 0 {
		ui.Muted.Fprintln(w, "no scriptlets to run")
		return
	}

	table := tablewriter.NewTable(w,
		tablewriter.WithHeader([]string{"#", "Owner", "Phase", "Arguments", "Package"}),
		tablewriter.WithAlignment(tw.MakeAlign(5, tw.AlignLeft)),
		tablewriter.WithSymbols(tw.NewSymbols(tw.StyleNone)),
	)

	for i, inv := range invocations {
		table.Append(
			fmt.Sprintf("%d", i+1),
			string(inv.Owner),
			string(inv.Phase),
			strings.Join(quoteArgs(inv.Argv), " "),
			inv.Package.String(),
		)
	}

	table.Render()
}

func quoteArgs(argv []string) []string {
	out := make([]string, len(argv))
	for i, a := range argv {
		out[i] = fmt.Sprintf("%q", a)
	}
	return out
}
