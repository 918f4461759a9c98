// Package commands implements the tabletd command line.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/marmos91/tabletd/cmd/tabletd/cmdutil"
	"github.com/marmos91/tabletd/cmd/tabletd/commands/tablet"
)

var (
	// Version information injected at build time.
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "tabletd",
	Short: "tabletd - tablet server storage lifecycle",
	Long: `tabletd manages the on-disk lifecycle of tablet replicas: creation,
tombstoning and deletion of their data blocks, write-ahead log and consensus
metadata, with crash-safe recovery of interrupted transitions.

Run "tabletd start" to serve a data root, or use the tablet and gc commands
to operate on a stopped server's data root.

Use "tabletd [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// GetRootCmd returns the root command for testing purposes.
func GetRootCmd() *cobra.Command {
	return rootCmd
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cmdutil.Flags.ConfigFile, "config", "", "config file (default: $XDG_CONFIG_HOME/tabletd/config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&cmdutil.Flags.Output, "output", "o", "table", "Output format (table|json|yaml)")
	rootCmd.PersistentFlags().BoolVar(&cmdutil.Flags.NoColor, "no-color", false, "Disable colored output")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(logsCmd)
	rootCmd.AddCommand(gcCmd)
	rootCmd.AddCommand(tablet.Cmd)
	rootCmd.AddCommand(completionCmd)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}
