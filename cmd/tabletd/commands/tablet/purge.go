package tablet

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmos91/tabletd/cmd/tabletd/cmdutil"
	"github.com/marmos91/tabletd/internal/cli/prompt"
)

var purgeForce bool

var purgeCmd = &cobra.Command{
	Use:   "purge <tablet-id>",
	Short: "Remove the superblock of a DELETED tablet",
	Long: `Remove the superblock of a DELETED tablet replica. Only DELETED
replicas can be purged; afterwards the tablet id is free for reuse.

Examples:
  tabletd tablet purge t1 --force`,
	Args: cobra.ExactArgs(1),
	RunE: runPurge,
}

func init() {
	purgeCmd.Flags().BoolVarP(&purgeForce, "force", "f", false, "Skip confirmation prompt")
}

func runPurge(cmd *cobra.Command, args []string) error {
	p, err := cmdutil.Printer(cmd.OutOrStdout())
	if err != nil {
		return err
	}
	confirmed, err := prompt.ConfirmWithForce(fmt.Sprintf("Purge tablet %s", args[0]), purgeForce)
	if err != nil {
		return cmdutil.HandleAbort(err)
	}
	if !confirmed {
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Aborted.")
		return nil
	}

	srv, closeFn, err := cmdutil.OpenOffline(cmd.Context())
	if err != nil {
		return err
	}
	defer closeFn()

	if err := srv.PurgeTablet(cmd.Context(), args[0]); err != nil {
		return err
	}
	p.Success(fmt.Sprintf("Tablet %s purged", args[0]))
	return nil
}
