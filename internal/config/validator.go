package config

import (
	"errors"
	"fmt"
	"strings"

	rerrors "github.com/standardbeagle/redefine/internal/errors"
	"github.com/standardbeagle/redefine/internal/fingerprint"
	"github.com/standardbeagle/redefine/internal/types"
)

// Validator validates configuration and sets defaults for unset values
type Validator struct{}

// NewValidator creates a new configuration validator
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateAndSetDefaults validates configuration and applies defaults
// Returns a ConfigError naming the offending section if validation fails
func (v *Validator) ValidateAndSetDefaults(cfg *Config) error {
	v.setDefaults(cfg)

	if cfg.Project.Root == "" {
		return rerrors.NewConfigError("project.root", "", errors.New("project root cannot be empty"))
	}

	if err := v.validateEngineConfig(&cfg.Engine); err != nil {
		return rerrors.NewConfigError("engine", cfg.Engine.HotMarker, err)
	}

	seen := make(map[string]bool, len(cfg.Loaders))
	for _, l := range cfg.Loaders {
		if err := v.validateLoaderConfig(l, seen); err != nil {
			return rerrors.NewConfigError("loader", l.ID, err)
		}
	}

	if err := v.validateLoggingConfig(&cfg.Logging); err != nil {
		return rerrors.NewConfigError("logging", cfg.Logging.Level+"/"+cfg.Logging.Format, err)
	}

	if cfg.Watch.DebounceMs < 0 {
		return rerrors.NewConfigError("watch.debounce_ms", fmt.Sprint(cfg.Watch.DebounceMs),
			errors.New("debounce cannot be negative"))
	}
	return nil
}

// validateEngineConfig checks that hot names can never be mistaken for
// compiler-generated ones.
func (v *Validator) validateEngineConfig(engine *Engine) error {
	if strings.ContainsAny(engine.HotMarker, "/.;[<>") {
		return fmt.Errorf("hot marker %q contains characters not allowed in a type name", engine.HotMarker)
	}
	if types.IsSynthetic("A" + engine.HotMarker + "0") {
		return fmt.Errorf("hot marker %q produces synthetic-looking names", engine.HotMarker)
	}
	if engine.FingerprintCacheSize < 0 {
		return fmt.Errorf("fingerprint cache size cannot be negative, got %d", engine.FingerprintCacheSize)
	}
	return nil
}

func (v *Validator) validateLoaderConfig(l LoaderSpec, seen map[string]bool) error {
	if l.ID == "" {
		return errors.New("loader id cannot be empty")
	}
	if seen[l.ID] {
		return fmt.Errorf("loader %q declared twice", l.ID)
	}
	seen[l.ID] = true
	return nil
}

func (v *Validator) validateLoggingConfig(logging *Logging) error {
	switch logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", logging.Level)
	}
	switch logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("unknown log format %q, expected text or json", logging.Format)
	}
	return nil
}

// setDefaults fills in values left empty by a partial config
func (v *Validator) setDefaults(cfg *Config) {
	if cfg.Version == 0 {
		cfg.Version = 1
	}
	if cfg.Engine.HotMarker == "" {
		cfg.Engine.HotMarker = types.HotClassMarker
	}
	if cfg.Engine.FingerprintCacheSize == 0 {
		cfg.Engine.FingerprintCacheSize = fingerprint.DefaultMemoSize
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
	if cfg.Watch.DebounceMs == 0 {
		cfg.Watch.DebounceMs = DefaultWatchDebounceMs
	}
}

// ValidateConfig is a convenience function for quick validation
func ValidateConfig(cfg *Config) error {
	return NewValidator().ValidateAndSetDefaults(cfg)
}
