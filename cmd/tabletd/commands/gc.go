package commands

import (
	"strconv"

	"github.com/spf13/cobra"

	"github.com/marmos91/tabletd/cmd/tabletd/cmdutil"
	"github.com/marmos91/tabletd/internal/cli/output"
)

var gcDryRun bool

var gcCmd = &cobra.Command{
	Use:   "gc",
	Short: "Remove orphan data blocks",
	Long: `Scan the block store and remove blocks that no superblock references:
leftovers of tablets whose deletion crashed, or of tablets that no longer
exist. Tablets held by a lifecycle operation are skipped.

The server must be stopped; a running server collects garbage on its own
when gc.enabled is set.

Examples:
  # Report orphans without deleting
  tabletd gc --dry-run

  # Collect and print the result as JSON
  tabletd gc -o json`,
	Args: cobra.NoArgs,
	RunE: runGC,
}

func init() {
	gcCmd.Flags().BoolVar(&gcDryRun, "dry-run", false, "Only report orphan blocks")
}

func runGC(cmd *cobra.Command, args []string) error {
	p, err := cmdutil.Printer(cmd.OutOrStdout())
	if err != nil {
		return err
	}

	srv, closeFn, err := cmdutil.OpenOffline(cmd.Context())
	if err != nil {
		return err
	}
	defer closeFn()

	stats := srv.CollectGarbage(cmd.Context(), gcDryRun)

	var f output.Fields
	f.Add("Dry run", strconv.FormatBool(gcDryRun))
	f.Add("Tablets scanned", strconv.Itoa(stats.TabletsScanned))
	f.Add("Blocks scanned", strconv.Itoa(stats.BlocksScanned))
	f.Add("Orphan tablets", strconv.Itoa(stats.OrphanTablets))
	f.Add("Orphan blocks", strconv.Itoa(stats.OrphanBlocks))
	f.Add("Skipped", strconv.Itoa(stats.Skipped))
	f.Add("Errors", strconv.Itoa(stats.Errors))
	return p.Print(stats, f)
}
