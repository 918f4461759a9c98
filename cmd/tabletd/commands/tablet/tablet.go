// Package tablet implements the tablet management commands. They operate on a
// stopped server's data root, except check, which only reads files.
package tablet

import "github.com/spf13/cobra"

// Cmd is the parent command for tablet operations.
var Cmd = &cobra.Command{
	Use:   "tablet",
	Short: "Inspect and manage tablet replicas",
	Long: `Inspect and manage the tablet replicas recorded in the data root.

Commands other than check take the data-root lock and fail while a server
is running. Startup recovery runs first, so interrupted transitions are
finished before the command looks at any tablet.`,
}

func init() {
	Cmd.AddCommand(listCmd)
	Cmd.AddCommand(showCmd)
	Cmd.AddCommand(createCmd)
	Cmd.AddCommand(deleteCmd)
	Cmd.AddCommand(purgeCmd)
	Cmd.AddCommand(checkCmd)
}
