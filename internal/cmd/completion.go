package cmd

import (
	"github.com/quantmind-br/pkglife/internal/config"
	"github.com/quantmind-br/pkglife/internal/ui"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// NewCompletionCmd creates the completion command
func NewCompletionCmd(cfg *config.Config, log *zerolog.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "completion [bash|zsh|fish|powershell]",
		Short: "Generate shell completion scripts",
		Long: `Generate shell completion scripts for pkglife.

Installed package names are completed for remove, info and history.

Bash:
  $ source <(pkglife completion bash)
  $ pkglife completion bash > /etc/bash_completion.d/pkglife

Zsh:
  $ pkglife completion zsh > "${fpath[1]}/_pkglife"

Fish:
  $ pkglife completion fish > ~/.config/fish/completions/pkglife.fish

PowerShell:
  PS> pkglife completion powershell | Out-String | Invoke-Expression
`,
		DisableFlagsInUseLine: true,
		ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
		Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			shell := args[0]
			out := cmd.OutOrStdout()

			var err error
			switch shell {
			case "bash":
				err = cmd.Root().GenBashCompletionV2(out, true)
			case "zsh":
				err = cmd.Root().GenZshCompletion(out)
			case "fish":
				err = cmd.Root().GenFishCompletion(out, true)
			case "powershell":
				err = cmd.Root().GenPowerShellCompletionWithDesc(out)
			}
			if err != nil {
				ui.PrintError("Failed to generate %s completion: %v", shell, err)
				return err
			}

			log.Debug().Str("shell", shell).Msg("generated shell completion")
			return nil
		},
	}

	return cmd
}
