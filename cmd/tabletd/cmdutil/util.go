// Package cmdutil provides shared utilities for tabletd commands.
package cmdutil

import (
	"context"
	"fmt"
	"io"

	"github.com/marmos91/tabletd/internal/cli/output"
	"github.com/marmos91/tabletd/internal/cli/prompt"
	"github.com/marmos91/tabletd/internal/logger"
	"github.com/marmos91/tabletd/pkg/config"
	"github.com/marmos91/tabletd/pkg/tserver"
)

// Flags stores global flag values accessible by subcommands.
var Flags = &GlobalFlags{}

// GlobalFlags holds the global flag values.
type GlobalFlags struct {
	ConfigFile string
	Output     string
	NoColor    bool
}

// InitLogger initializes the structured logger from configuration.
func InitLogger(cfg *config.Config) error {
	loggerCfg := logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}
	if err := logger.Init(loggerCfg); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	return nil
}

// LoadConfig loads the configuration named by --config, or the default
// location, falling back to defaults when no file exists.
func LoadConfig() (*config.Config, error) {
	cfg, err := config.Load(Flags.ConfigFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// OpenOffline opens the data root for a one-shot command and runs startup
// recovery so the command sees a consistent state. It fails when a server
// already holds the data root. Call the returned function to close it.
func OpenOffline(ctx context.Context) (*tserver.Server, func(), error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, nil, err
	}
	if err := InitLogger(cfg); err != nil {
		return nil, nil, err
	}

	srv, err := tserver.Open(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	closeFn := func() {
		if err := srv.Close(); err != nil {
			logger.Warn("Failed to close data root", logger.Err(err))
		}
	}

	stats, err := srv.Recover(ctx)
	if err != nil {
		closeFn()
		return nil, nil, err
	}
	if stats.Resumed > 0 || stats.Failed() {
		logger.Info("Startup recovery finished",
			"resumed", stats.Resumed, "failed", len(stats.Failures))
	}
	return srv, closeFn, nil
}

// Printer returns a printer for w using the global output flags.
func Printer(w io.Writer) (*output.Printer, error) {
	format, err := output.ParseFormat(Flags.Output)
	if err != nil {
		return nil, err
	}
	return output.NewPrinter(w, format, !Flags.NoColor), nil
}

// HandleAbort turns a prompt abort into a clean exit.
func HandleAbort(err error) error {
	if prompt.IsAborted(err) {
		fmt.Println("\nAborted.")
		return nil
	}
	return err
}
