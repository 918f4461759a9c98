package tablet

import (
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/marmos91/tabletd/cmd/tabletd/cmdutil"
	"github.com/marmos91/tabletd/internal/cli/output"
	"github.com/marmos91/tabletd/pkg/api/handlers"
)

var showCmd = &cobra.Command{
	Use:   "show <tablet-id>",
	Short: "Show one tablet replica",
	Long: `Show a tablet's superblock together with a census of its data blocks,
WAL segments and consensus metadata, and any invariant violations found.

Examples:
  tabletd tablet show 7c1e0f
  tabletd tablet show 7c1e0f -o yaml`,
	Args: cobra.ExactArgs(1),
	RunE: runShow,
}

func runShow(cmd *cobra.Command, args []string) error {
	p, err := cmdutil.Printer(cmd.OutOrStdout())
	if err != nil {
		return err
	}

	srv, closeFn, err := cmdutil.OpenOffline(cmd.Context())
	if err != nil {
		return err
	}
	defer closeFn()

	st, err := srv.Describe(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	detail := handlers.Detail(st)
	return p.Print(detail, detailFields(detail))
}

func detailFields(d handlers.TabletDetail) output.Fields {
	opid := d.TombstoneLastLoggedOpID
	if opid == "" {
		opid = "-"
	}

	var f output.Fields
	f.Add("Tablet ID", d.TabletID)
	f.Add("Table", d.TableName)
	f.Add("State", d.DataState)
	f.Add("Pending", output.Pending(d.PendingTargetState))
	f.Add("Version", strconv.FormatUint(d.Version, 10))
	f.Add("Updated", d.UpdatedAt.Format(time.RFC3339))
	f.Add("Block refs", strconv.Itoa(d.BlockRefs))
	f.Add("Blocks", strconv.Itoa(d.Blocks))
	f.Add("WAL segments", strconv.Itoa(d.WALSegments))
	f.Add("Consensus meta", strconv.FormatBool(d.HasConsensusMeta))
	f.Add("Tombstone opid", opid)
	if len(d.Violations) > 0 {
		f.Add("Violations", strings.Join(d.Violations, "; "))
	}
	return f
}
