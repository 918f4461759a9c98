// Package checkpoint names the points inside a deletion transition at which
// a crash can be injected, and the strategies invoked at each point.
//
// The controller calls Strategy.OnCheckpoint after every durable step.
// Production uses Noop; fault-injection runs install a Crash strategy that
// terminates the process (or, in tests, the transition goroutine) at a chosen
// point so recovery can be exercised from that exact on-disk state.
package checkpoint

import (
	"context"
	"fmt"
	"math/rand/v2"
	"os"
	"runtime"
	"strings"
	"sync"

	"github.com/marmos91/tabletd/internal/logger"
)

// CrashExitCode is the process exit status used by ExitProcess.
const CrashExitCode = 86

// Checkpoint identifies a step boundary inside a transition.
type Checkpoint int

const (
	// TransitionStarted follows the durable write of pending_target_state.
	TransitionStarted Checkpoint = iota + 1
	// BlocksDeleted follows removal of every data block.
	BlocksDeleted
	// WALDeleted follows removal of the WAL directory.
	WALDeleted
	// CmetaDeleted follows removal of consensus metadata (DELETED only).
	CmetaDeleted
	// Committed follows the final superblock write.
	Committed
)

var names = map[Checkpoint]string{
	TransitionStarted: "transition_started",
	BlocksDeleted:     "blocks_deleted",
	WALDeleted:        "wal_deleted",
	CmetaDeleted:      "cmeta_deleted",
	Committed:         "committed",
}

// All lists every checkpoint in transition order.
func All() []Checkpoint {
	return []Checkpoint{TransitionStarted, BlocksDeleted, WALDeleted, CmetaDeleted, Committed}
}

func (c Checkpoint) String() string {
	if name, ok := names[c]; ok {
		return name
	}
	return fmt.Sprintf("Checkpoint(%d)", int(c))
}

// Parse converts a checkpoint name into a Checkpoint.
func Parse(s string) (Checkpoint, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for c, name := range names {
		if name == s {
			return c, nil
		}
	}
	return 0, fmt.Errorf("unknown checkpoint %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (c Checkpoint) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *Checkpoint) UnmarshalText(b []byte) error {
	parsed, err := Parse(string(b))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// Strategy reacts to checkpoints. Implementations must be safe for concurrent
// use; transitions of different tablets run in parallel.
type Strategy interface {
	OnCheckpoint(ctx context.Context, tabletID string, cp Checkpoint)
}

// Noop ignores every checkpoint.
type Noop struct{}

// OnCheckpoint does nothing.
func (Noop) OnCheckpoint(context.Context, string, Checkpoint) {}

// Hit is one checkpoint reached by one tablet.
type Hit struct {
	TabletID   string
	Checkpoint Checkpoint
}

// Recorder remembers every hit, in order.
type Recorder struct {
	mu   sync.Mutex
	hits []Hit
}

// NewRecorder returns an empty recorder.
func NewRecorder() *Recorder { return &Recorder{} }

// OnCheckpoint appends the hit.
func (r *Recorder) OnCheckpoint(_ context.Context, tabletID string, cp Checkpoint) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hits = append(r.hits, Hit{TabletID: tabletID, Checkpoint: cp})
}

// Hits returns a copy of the recorded hits.
func (r *Recorder) Hits() []Hit {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Hit(nil), r.hits...)
}

// Checkpoints returns the checkpoints reached by tabletID, in order.
func (r *Recorder) Checkpoints(tabletID string) []Checkpoint {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Checkpoint
	for _, h := range r.hits {
		if h.TabletID == tabletID {
			out = append(out, h.Checkpoint)
		}
	}
	return out
}

// Reset forgets every hit.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hits = nil
}

// Terminator ends execution at a crash point. It must not return.
type Terminator func(tabletID string, cp Checkpoint)

// ExitProcess logs and terminates the process with CrashExitCode. No deferred
// cleanup runs, matching a real crash.
func ExitProcess(tabletID string, cp Checkpoint) {
	logger.Error("Injected crash",
		logger.TabletID(tabletID),
		logger.Checkpoint(cp.String()))
	os.Exit(CrashExitCode)
}

// ExitGoroutine terminates only the calling goroutine. Deferred calls run,
// so locks are released, but no later transition step executes.
func ExitGoroutine(string, Checkpoint) {
	runtime.Goexit()
}

// Crash terminates execution at checkpoints with a configured probability.
// A probability of 1 always fires; 0 never does.
type Crash struct {
	points map[Checkpoint]float64
	exit   Terminator

	mu       sync.Mutex
	tabletID string
	rng      *rand.Rand
	fired    int
}

// CrashOption configures a Crash strategy.
type CrashOption func(*Crash)

// ForTablet restricts the crash to one tablet.
func ForTablet(tabletID string) CrashOption {
	return func(c *Crash) { c.tabletID = tabletID }
}

// WithSeed makes probabilistic crashes reproducible.
func WithSeed(seed uint64) CrashOption {
	return func(c *Crash) { c.rng = rand.New(rand.NewPCG(seed, seed)) }
}

// NewCrash returns a strategy that calls exit at each checkpoint in points
// with the mapped probability. exit defaults to ExitProcess.
func NewCrash(points map[Checkpoint]float64, exit Terminator, opts ...CrashOption) *Crash {
	if exit == nil {
		exit = ExitProcess
	}
	c := &Crash{points: points, exit: exit, rng: rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CrashAt is shorthand for a crash that always fires at cp.
func CrashAt(cp Checkpoint, exit Terminator, opts ...CrashOption) *Crash {
	return NewCrash(map[Checkpoint]float64{cp: 1}, exit, opts...)
}

// OnCheckpoint terminates when the dice say so.
func (c *Crash) OnCheckpoint(_ context.Context, tabletID string, cp Checkpoint) {
	p, ok := c.points[cp]
	if !ok || p <= 0 {
		return
	}

	c.mu.Lock()
	if c.tabletID != "" && c.tabletID != tabletID {
		c.mu.Unlock()
		return
	}
	fire := p >= 1 || c.rng.Float64() < p
	if fire {
		c.fired++
	}
	c.mu.Unlock()

	if fire {
		c.exit(tabletID, cp)
	}
}

// Fired returns how many times the crash triggered.
func (c *Crash) Fired() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fired
}

// Chain forwards every checkpoint to each strategy in order.
type Chain []Strategy

// OnCheckpoint calls every strategy in order.
func (ch Chain) OnCheckpoint(ctx context.Context, tabletID string, cp Checkpoint) {
	for _, s := range ch {
		s.OnCheckpoint(ctx, tabletID, cp)
	}
}

// FromConfig builds the strategy described by a crash_after map of checkpoint
// name to probability. An empty map yields Noop.
func FromConfig(crashAfter map[string]float64, exit Terminator) (Strategy, error) {
	if len(crashAfter) == 0 {
		return Noop{}, nil
	}
	points := make(map[Checkpoint]float64, len(crashAfter))
	for name, p := range crashAfter {
		cp, err := Parse(name)
		if err != nil {
			return nil, fmt.Errorf("crash_after: %w", err)
		}
		if p < 0 || p > 1 {
			return nil, fmt.Errorf("crash_after[%s]: probability %v outside [0,1]", name, p)
		}
		points[cp] = p
	}
	return NewCrash(points, exit), nil
}
