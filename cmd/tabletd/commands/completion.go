package commands

import (
	"github.com/spf13/cobra"
)

var completionCmd = &cobra.Command{
	Use:   "completion [bash|zsh|fish|powershell]",
	Short: "Generate shell completion script",
	Long: `Generate shell completion script for tabletd.

To load completions:

Bash:
  # Linux:
  $ tabletd completion bash > /etc/bash_completion.d/tabletd
  # macOS:
  $ tabletd completion bash > $(brew --prefix)/etc/bash_completion.d/tabletd

Zsh:
  # If shell completion is not already enabled in your environment,
  # you will need to enable it. You can execute the following once:
  $ echo "autoload -U compinit; compinit" >> ~/.zshrc

  # To load completions for each session, execute once:
  # Linux:
  $ tabletd completion zsh > "${fpath[1]}/_tabletd"
  # macOS:
  $ tabletd completion zsh > $(brew --prefix)/share/zsh/site-functions/_tabletd

  # You will need to start a new shell for this setup to take effect.

Fish:
  $ tabletd completion fish > ~/.config/fish/completions/tabletd.fish

PowerShell:
  PS> tabletd completion powershell | Out-String | Invoke-Expression

  # To load completions for every new session, run:
  PS> tabletd completion powershell > tabletd.ps1
  # and source this file from your PowerShell profile.
`,
	DisableFlagsInUseLine: true,
	ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
	Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	RunE: func(cmd *cobra.Command, args []string) error {
		switch args[0] {
		case "bash":
			return cmd.Root().GenBashCompletion(cmd.OutOrStdout())
		case "zsh":
			return cmd.Root().GenZshCompletion(cmd.OutOrStdout())
		case "fish":
			return cmd.Root().GenFishCompletion(cmd.OutOrStdout(), true)
		case "powershell":
			return cmd.Root().GenPowerShellCompletionWithDesc(cmd.OutOrStdout())
		}
		return nil
	},
}
