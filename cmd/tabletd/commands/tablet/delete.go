package tablet

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/marmos91/tabletd/cmd/tabletd/cmdutil"
	"github.com/marmos91/tabletd/internal/cli/output"
	"github.com/marmos91/tabletd/internal/cli/prompt"
	"github.com/marmos91/tabletd/pkg/tablet"
	"github.com/marmos91/tabletd/pkg/tserver"
)

var (
	deleteType    string
	deleteTimeout time.Duration
	deleteForce   bool
)

var deleteCmd = &cobra.Command{
	Use:   "delete <tablet-id>",
	Short: "Tombstone or delete a tablet replica",
	Long: `Move a tablet replica to TOMBSTONED or DELETED.

TOMBSTONED removes data blocks and the write-ahead log but keeps consensus
metadata, so the replica can still vote. DELETED removes consensus metadata
as well. Deleting is irreversible and asks for confirmation unless --force
is given.

Examples:
  tabletd tablet delete t1 --type tombstoned
  tabletd tablet delete t1 --type deleted --force`,
	Args: cobra.ExactArgs(1),
	RunE: runDelete,
}

func init() {
	deleteCmd.Flags().StringVar(&deleteType, "type", "tombstoned", "Target state (tombstoned|deleted)")
	deleteCmd.Flags().DurationVar(&deleteTimeout, "timeout", 0, "Request deadline (default: lifecycle.request_timeout)")
	deleteCmd.Flags().BoolVarP(&deleteForce, "force", "f", false, "Skip confirmation prompt")
}

func runDelete(cmd *cobra.Command, args []string) error {
	p, err := cmdutil.Printer(cmd.OutOrStdout())
	if err != nil {
		return err
	}
	target, err := tablet.ParseDataState(deleteType)
	if err != nil {
		return err
	}
	if !target.IsTerminal() {
		return fmt.Errorf("--type must be tombstoned or deleted, got %s", target)
	}

	tabletID := args[0]
	confirmed, err := prompt.ConfirmWithForce(fmt.Sprintf("Move tablet %s to %s", tabletID, target), deleteForce)
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

	req := tserver.DeleteTabletRequest{TabletID: tabletID, DeleteType: target}
	if deleteTimeout > 0 {
		req.Deadline = time.Now().Add(deleteTimeout)
	}
	resp := srv.DeleteTablet(cmd.Context(), req)
	if p.Format() != output.FormatTable {
		if err := p.Print(outcomeOf(req, resp), nil); err != nil {
			return err
		}
		return resp.Err()
	}
	if !resp.OK {
		return resp.Err()
	}
	p.Success(fmt.Sprintf("Tablet %s is %s", tabletID, target))
	return nil
}

func outcomeOf(req tserver.DeleteTabletRequest, resp tserver.DeleteTabletResponse) output.Outcome {
	o := output.Outcome{
		TabletID: req.TabletID,
		Target:   req.DeleteType.String(),
		OK:       resp.OK,
		Message:  resp.Message,
	}
	if resp.Error != nil {
		o.Error = resp.Error.Label()
	}
	return o
}
