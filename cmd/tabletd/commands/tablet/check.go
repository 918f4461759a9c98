package tablet

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/marmos91/tabletd/cmd/tabletd/cmdutil"
	"github.com/marmos91/tabletd/pkg/blocks"
	"github.com/marmos91/tabletd/pkg/config"
	"github.com/marmos91/tabletd/pkg/fsmanager"
	"github.com/marmos91/tabletd/pkg/tablet"
	"github.com/marmos91/tabletd/pkg/tserver"
	"github.com/marmos91/tabletd/pkg/verify"
)

var (
	checkState string
	checkWait  time.Duration
)

var checkCmd = &cobra.Command{
	Use:   "check <tablet-id>",
	Short: "Verify a tablet reached a terminal state",
	Long: `Verify from the files on disk that a tablet is durably TOMBSTONED or
DELETED: superblock state, no pending transition, no data blocks, no WAL,
and consensus metadata kept or removed accordingly.

check reads the data root without locking it, so it can watch a running
server. With --wait it re-checks on every change until the state holds or
the wait expires.

Examples:
  tabletd tablet check t1 --state deleted
  tabletd tablet check t1 --state tombstoned --wait 30s`,
	Args: cobra.ExactArgs(1),
	RunE: runCheck,
}

func init() {
	checkCmd.Flags().StringVar(&checkState, "state", "deleted", "Expected state (tombstoned|deleted)")
	checkCmd.Flags().DurationVar(&checkWait, "wait", 0, "Keep checking until the state holds or this much time passes")
}

func runCheck(cmd *cobra.Command, args []string) error {
	p, err := cmdutil.Printer(cmd.OutOrStdout())
	if err != nil {
		return err
	}
	want, err := tablet.ParseDataState(checkState)
	if err != nil {
		return err
	}
	if !want.IsTerminal() {
		return fmt.Errorf("--state must be tombstoned or deleted, got %s", want)
	}

	cfg, err := cmdutil.LoadConfig()
	if err != nil {
		return err
	}
	bs, err := checkBlockStore(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	if bs != nil {
		defer func() { _ = bs.Close() }()
	}

	tabletID := args[0]
	checker := verify.NewChecker(cfg.Storage.Root, bs)
	check := func() error {
		if want == tablet.StateDeleted {
			return checker.CheckDeleted(cmd.Context(), tabletID)
		}
		return checker.CheckTombstoned(cmd.Context(), tabletID)
	}

	if checkWait > 0 {
		ctx, cancel := context.WithTimeout(cmd.Context(), checkWait)
		defer cancel()
		err = verify.WaitFor(ctx, checker.WatchDirs(tabletID), check)
	} else {
		err = check()
	}
	if err != nil {
		return err
	}

	p.Success(fmt.Sprintf("Tablet %s is %s", tabletID, want))
	return nil
}

// checkBlockStore returns the store to count blocks in. The filesystem
// backend is read straight from the data directory.
func checkBlockStore(ctx context.Context, cfg *config.Config) (blocks.Store, error) {
	switch cfg.Blocks.Type {
	case "fs", "":
		return nil, nil
	case "memory":
		return nil, fmt.Errorf("the memory block store does not outlive its server")
	default:
		bs, _, err := tserver.OpenBlockStore(ctx, cfg.Blocks, fsmanager.NewLayout(cfg.Storage.Root))
		return bs, err
	}
}
