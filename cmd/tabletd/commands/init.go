package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmos91/tabletd/cmd/tabletd/cmdutil"
	"github.com/marmos91/tabletd/pkg/config"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a sample configuration file",
	Long: `Initialize a sample tabletd configuration file.

By default, the configuration file is created at $XDG_CONFIG_HOME/tabletd/config.yaml.
Use --config to specify a custom path.

Examples:
  # Initialize with default location
  tabletd init

  # Initialize with custom path
  tabletd init --config /etc/tabletd/config.yaml

  # Force overwrite existing config
  tabletd init --force`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Force overwrite existing config file")
}

func runInit(cmd *cobra.Command, args []string) error {
	configPath := cmdutil.Flags.ConfigFile
	var err error
	if configPath != "" {
		err = config.InitConfigToPath(configPath, initForce)
	} else {
		configPath, err = config.InitConfig(initForce)
	}
	if err != nil {
		return fmt.Errorf("failed to initialize config: %w", err)
	}

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "Configuration file created at: %s\n", configPath)
	_, _ = fmt.Fprintln(out, "\nNext steps:")
	_, _ = fmt.Fprintln(out, "  1. Set storage.root to the data directory of this tablet server")
	_, _ = fmt.Fprintln(out, "  2. Pick a block store backend under blocks.type")
	_, _ = fmt.Fprintf(out, "  3. Start the server with: tabletd start --config %s\n", configPath)
	return nil
}
