package tablet

import (
	"strconv"

	"github.com/spf13/cobra"

	"github.com/marmos91/tabletd/cmd/tabletd/cmdutil"
	"github.com/marmos91/tabletd/internal/cli/output"
	"github.com/marmos91/tabletd/pkg/api/handlers"
	"github.com/marmos91/tabletd/pkg/tablet"
)

var listState string

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List tablet replicas",
	Long: `List every tablet replica recorded in the data root.

Examples:
  # List all tablets
  tabletd tablet list

  # List tombstoned tablets as JSON
  tabletd tablet list --state tombstoned -o json`,
	Args: cobra.NoArgs,
	RunE: runList,
}

func init() {
	listCmd.Flags().StringVar(&listState, "state", "", "Only list tablets in this data state")
}

// TabletList is a list of tablets for table rendering.
type TabletList []handlers.TabletSummary

// Headers implements TableRenderer.
func (tl TabletList) Headers() []string {
	return []string{"TABLET ID", "TABLE", "STATE", "PENDING", "BLOCKS", "VERSION"}
}

// Rows implements TableRenderer.
func (tl TabletList) Rows() [][]string {
	rows := make([][]string, 0, len(tl))
	for _, t := range tl {
		rows = append(rows, []string{
			t.TabletID, t.TableName, t.DataState, output.Pending(t.PendingTargetState),
			strconv.Itoa(t.BlockRefs), strconv.FormatUint(t.Version, 10),
		})
	}
	return rows
}

// StateColumns implements output.StateColumns.
func (tl TabletList) StateColumns() []int {
	return []int{2, 3}
}

func runList(cmd *cobra.Command, args []string) error {
	p, err := cmdutil.Printer(cmd.OutOrStdout())
	if err != nil {
		return err
	}

	var filter tablet.DataState
	if listState != "" {
		parsed, err := tablet.ParseDataState(listState)
		if err != nil {
			return err
		}
		filter = parsed
	}

	srv, closeFn, err := cmdutil.OpenOffline(cmd.Context())
	if err != nil {
		return err
	}
	defer closeFn()

	sbs, err := srv.ListTablets(cmd.Context())
	if err != nil {
		return err
	}

	list := make(TabletList, 0, len(sbs))
	for _, sb := range sbs {
		if filter != tablet.StateUnknown && sb.DataState != filter {
			continue
		}
		list = append(list, handlers.Summarize(sb))
	}
	return p.PrintList(list, list, "No tablets found.")
}
