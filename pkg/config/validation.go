package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/marmos91/tabletd/pkg/checkpoint"
)

// Validate checks the struct tags of cfg and the cross-field rules that
// tags cannot express.
func Validate(cfg *Config) error {
	validate := validator.New()
	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed on '%s' (value: %v)", fe.Namespace(), fe.Tag(), fe.Value()))
			}
			return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
		}
		return err
	}

	if cfg.Telemetry.Enabled && cfg.Telemetry.Endpoint == "" {
		return errors.New("telemetry.endpoint is required when telemetry is enabled")
	}
	if cfg.Telemetry.Profiling.Enabled && cfg.Telemetry.Profiling.Endpoint == "" {
		return errors.New("telemetry.profiling.endpoint is required when profiling is enabled")
	}

	switch cfg.Blocks.Type {
	case "badger":
		if cfg.Blocks.Badger.Dir == "" {
			return errors.New("blocks.badger.dir is required for the badger backend")
		}
	case "s3":
		if cfg.Blocks.S3.Bucket == "" {
			return errors.New("blocks.s3.bucket is required for the s3 backend")
		}
	}

	if cfg.GC.Enabled && cfg.GC.Interval <= 0 {
		return errors.New("gc.interval must be positive when gc is enabled")
	}

	for name := range cfg.Faults.CrashAfter {
		if _, err := checkpoint.Parse(name); err != nil {
			return fmt.Errorf("faults.crash_after: %w", err)
		}
	}

	return nil
}
