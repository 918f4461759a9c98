package tablet

import (
	"crypto/rand"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmos91/tabletd/cmd/tabletd/cmdutil"
	"github.com/marmos91/tabletd/internal/bytesize"
	"github.com/marmos91/tabletd/pkg/api/handlers"
	"github.com/marmos91/tabletd/pkg/lifecycle"
)

var (
	createTable       string
	createBlocks      int
	createBlockSize   string
	createWALSegments int
	createTerm        uint64
	createPeers       []string
)

var createCmd = &cobra.Command{
	Use:   "create <tablet-id>",
	Short: "Create a READY tablet replica",
	Long: `Create a READY tablet replica filled with random block data, a
write-ahead log and consensus metadata. Useful to prepare a data root for
deletion and crash-recovery drills.

Examples:
  tabletd tablet create t1 --table orders --blocks 8 --block-size 64KiB
  tabletd tablet create t2 --wal-segments 3 --peers ts-1,ts-2,ts-3`,
	Args: cobra.ExactArgs(1),
	RunE: runCreate,
}

func init() {
	createCmd.Flags().StringVar(&createTable, "table", "", "Owning table name")
	createCmd.Flags().IntVar(&createBlocks, "blocks", 4, "Number of data blocks")
	createCmd.Flags().StringVar(&createBlockSize, "block-size", "4KiB", "Size of each data block")
	createCmd.Flags().IntVar(&createWALSegments, "wal-segments", 1, "Number of WAL segments")
	createCmd.Flags().Uint64Var(&createTerm, "term", 1, "Initial consensus term")
	createCmd.Flags().StringSliceVar(&createPeers, "peers", nil, "Consensus peer ids")
}

func runCreate(cmd *cobra.Command, args []string) error {
	p, err := cmdutil.Printer(cmd.OutOrStdout())
	if err != nil {
		return err
	}
	size, err := bytesize.ParseByteSize(createBlockSize)
	if err != nil {
		return fmt.Errorf("invalid --block-size: %w", err)
	}
	if createBlocks < 0 {
		return fmt.Errorf("--blocks must not be negative")
	}

	payloads := make([][]byte, createBlocks)
	for i := range payloads {
		payloads[i] = make([]byte, size.Int64())
		_, _ = rand.Read(payloads[i])
	}

	srv, closeFn, err := cmdutil.OpenOffline(cmd.Context())
	if err != nil {
		return err
	}
	defer closeFn()

	sb, err := srv.CreateTablet(cmd.Context(), lifecycle.CreateSpec{
		TabletID:    args[0],
		TableName:   createTable,
		Blocks:      payloads,
		WALSegments: createWALSegments,
		Term:        createTerm,
		Peers:       createPeers,
	})
	if err != nil {
		return err
	}

	list := TabletList{handlers.Summarize(sb)}
	return p.Print(list[0], list)
}
