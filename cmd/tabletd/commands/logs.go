package commands

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/marmos91/tabletd/cmd/tabletd/cmdutil"
)

var (
	logsFollow bool
	logsLines  int
	logsSince  string
	logsTablet string
)

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Tail server logs",
	Long: `Display and optionally follow the tabletd server log file.

The log file is taken from logging.output. Servers logging to stdout or
stderr have no file to read.

Examples:
  # Show last 100 lines (default)
  tabletd logs

  # Follow logs of one tablet
  tabletd logs -f --tablet 7c1e

  # Show logs since a specific time
  tabletd logs --since "2024-01-15T10:00:00Z"`,
	RunE: runLogs,
}

func init() {
	logsCmd.Flags().BoolVarP(&logsFollow, "follow", "f", false, "Follow log output")
	logsCmd.Flags().IntVarP(&logsLines, "lines", "n", 100, "Number of lines to show")
	logsCmd.Flags().StringVar(&logsSince, "since", "", "Show logs since timestamp (RFC3339 format)")
	logsCmd.Flags().StringVar(&logsTablet, "tablet", "", "Only show lines mentioning this tablet id")
}

// logFilter selects log lines.
type logFilter struct {
	since    time.Time
	tabletID string
}

func (f logFilter) match(line string) bool {
	if f.tabletID != "" && !strings.Contains(line, f.tabletID) {
		return false
	}
	if !f.since.IsZero() {
		if ts := extractTimestamp(line); !ts.IsZero() && ts.Before(f.since) {
			return false
		}
	}
	return true
}

func runLogs(cmd *cobra.Command, args []string) error {
	cfg, err := cmdutil.LoadConfig()
	if err != nil {
		return err
	}

	path := cfg.Logging.Output
	if path == "stdout" || path == "stderr" {
		return fmt.Errorf("server is configured to log to %s, not a file\nSet 'logging.output' to a file path to use this command", path)
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return fmt.Errorf("log file not found: %s", path)
	}

	filter := logFilter{tabletID: logsTablet}
	if logsSince != "" {
		if filter.since, err = time.Parse(time.RFC3339, logsSince); err != nil {
			return fmt.Errorf("invalid --since format (use RFC3339): %w", err)
		}
	}

	out := cmd.OutOrStdout()
	if err := showLogs(out, path, logsLines, filter); err != nil {
		return err
	}
	if !logsFollow {
		return nil
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Following %s (Ctrl+C to stop)...\n", path)
	return followLogs(ctx, out, path, filter)
}

// showLogs prints the last n matching lines of path.
func showLogs(w io.Writer, path string, n int, filter logFilter) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer func() { _ = file.Close() }()

	ring := make([]string, 0, n)
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !filter.match(line) {
			continue
		}
		if n <= 0 {
			continue
		}
		if len(ring) == n {
			ring = ring[1:]
		}
		ring = append(ring, line)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading log file: %w", err)
	}

	for _, line := range ring {
		_, _ = fmt.Fprintln(w, line)
	}
	return nil
}

// followLogs prints lines appended to path until ctx ends. A rotated or
// truncated file is reopened from the start.
func followLogs(ctx context.Context, w io.Writer, path string, filter logFilter) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	if err := watcher.Add(path); err != nil {
		return fmt.Errorf("failed to watch log file: %w", err)
	}

	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer func() { _ = file.Close() }()
	if _, err := file.Seek(0, io.SeekEnd); err != nil {
		return fmt.Errorf("failed to seek to end of log file: %w", err)
	}
	reader := bufio.NewReader(file)

	drain := func() {
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				return
			}
			if filter.match(strings.TrimRight(line, "\n")) {
				_, _ = io.WriteString(w, line)
			}
		}
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			switch {
			case event.Has(fsnotify.Write):
				drain()
			case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename), event.Has(fsnotify.Create):
				reopened, err := os.Open(path)
				if err != nil {
					continue
				}
				_ = file.Close()
				file = reopened
				reader.Reset(file)
				_ = watcher.Add(path)
				drain()
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("watcher error: %w", err)
		}
	}
}

// extractTimestamp returns the time of a text ("[2006-01-02 15:04:05] ...")
// or JSON ("time":"...") log line, zero when none is found.
func extractTimestamp(line string) time.Time {
	const textLayout = "2006-01-02 15:04:05"
	if len(line) > len(textLayout)+1 && line[0] == '[' {
		if t, err := time.ParseInLocation(textLayout, line[1:len(textLayout)+1], time.Local); err == nil {
			return t
		}
	}

	const timeKey = `"time":"`
	if idx := strings.Index(line, timeKey); idx >= 0 {
		rest := line[idx+len(timeKey):]
		if end := strings.IndexByte(rest, '"'); end >= 0 {
			if t, err := time.Parse(time.RFC3339Nano, rest[:end]); err == nil {
				return t
			}
		}
	}
	return time.Time{}
}
