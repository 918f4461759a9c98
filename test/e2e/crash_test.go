//go:build e2e

package e2e

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/tabletd/pkg/checkpoint"
	"github.com/marmos91/tabletd/test/e2e/helpers"
)

// TestCrashRecoveryMatrix kills the process at every checkpoint of both
// terminal transitions and checks that the next start finishes the job.
func TestCrashRecoveryMatrix(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping crash matrix in short mode")
	}

	cases := []struct {
		target string
		at     checkpoint.Checkpoint
	}{
		{"tombstoned", checkpoint.TransitionStarted},
		{"tombstoned", checkpoint.BlocksDeleted},
		{"tombstoned", checkpoint.WALDeleted},
		{"tombstoned", checkpoint.Committed},
		{"deleted", checkpoint.TransitionStarted},
		{"deleted", checkpoint.BlocksDeleted},
		{"deleted", checkpoint.WALDeleted},
		{"deleted", checkpoint.CmetaDeleted},
		{"deleted", checkpoint.Committed},
	}

	for _, tc := range cases {
		t.Run(fmt.Sprintf("%s/%s", tc.target, tc.at), func(t *testing.T) {
			inst := helpers.NewInstance(t, helpers.InstanceOptions{})
			inst.MustRunCLI(t, "-o", "json", "tablet", "create", "t1",
				"--blocks", "4", "--block-size", "2KiB", "--wal-segments", "2")
			inst.MustRunCLI(t, "-o", "json", "tablet", "create", "bystander", "--blocks", "2")

			faulty := inst.WithFaults(t, map[string]float64{tc.at.String(): 1})
			res := faulty.RunCLI(t, "tablet", "delete", "t1", "--type", tc.target, "--force")
			require.Equal(t, checkpoint.CrashExitCode, res.ExitCode,
				"stdout: %s\nstderr: %s", res.Stdout, res.Stderr)

			// Opening the data root runs startup recovery.
			list := inst.ListTablets(t)
			require.Len(t, list, 2)
			for _, tb := range list {
				assert.Empty(t, tb.PendingTargetState, "tablet %s still pending", tb.TabletID)
			}

			inst.MustRunCLI(t, "tablet", "check", "t1", "--state", tc.target)

			byID := map[string]helpers.TabletSummary{}
			for _, tb := range list {
				byID[tb.TabletID] = tb
			}
			assert.Equal(t, "READY", byID["bystander"].DataState)
			assert.Equal(t, 2, byID["bystander"].BlockRefs)
		})
	}
}

// TestCrashAtCmetaDeletedNotReachedByTombstone arms the consensus metadata
// checkpoint for a tombstoning run, which keeps its metadata and never
// reaches it.
func TestCrashAtCmetaDeletedNotReachedByTombstone(t *testing.T) {
	inst := helpers.NewInstance(t, helpers.InstanceOptions{})
	inst.MustRunCLI(t, "-o", "json", "tablet", "create", "t1", "--blocks", "2")

	faulty := inst.WithFaults(t, map[string]float64{checkpoint.CmetaDeleted.String(): 1})
	res := faulty.RunCLI(t, "tablet", "delete", "t1", "--type", "tombstoned", "--force")
	require.Equal(t, 0, res.ExitCode, "stdout: %s\nstderr: %s", res.Stdout, res.Stderr)
	inst.MustRunCLI(t, "tablet", "check", "t1", "--state", "tombstoned")
}

// TestCrashThenEscalate crashes a tombstoning run and then asks for
// deletion; the pending tombstone is subsumed by the stronger target.
func TestCrashThenEscalate(t *testing.T) {
	inst := helpers.NewInstance(t, helpers.InstanceOptions{})
	inst.MustRunCLI(t, "-o", "json", "tablet", "create", "t1", "--blocks", "3")

	faulty := inst.WithFaults(t, map[string]float64{"blocks_deleted": 1})
	res := faulty.RunCLI(t, "tablet", "delete", "t1", "--type", "tombstoned", "--force")
	require.Equal(t, checkpoint.CrashExitCode, res.ExitCode)

	inst.MustRunCLI(t, "tablet", "delete", "t1", "--type", "deleted", "--force")
	inst.MustRunCLI(t, "tablet", "check", "t1", "--state", "deleted")
	inst.MustRunCLI(t, "tablet", "purge", "t1", "--force")
	assert.Empty(t, inst.ListTablets(t))
}
