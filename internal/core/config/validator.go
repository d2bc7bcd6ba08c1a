package config

import (
	"fmt"
	"os"
	"strings"

	"pycomplete/internal/shared/util"

	"github.com/gobwas/glob"
)

func validateVersion(cfg *Config) error {
	if cfg.Version != 1 {
		return fmt.Errorf("unsupported config version %d; supported version is 1", cfg.Version)
	}
	return nil
}

func validatePython(cfg *Config) error {
	if strings.TrimSpace(cfg.Python.Interpreter) == "" {
		return fmt.Errorf("python.interpreter must not be empty")
	}
	for i, kv := range cfg.Python.Env {
		if !strings.Contains(kv, "=") {
			return fmt.Errorf("python.env[%d] must have the form KEY=VALUE, got %q", i, kv)
		}
	}
	return nil
}

func validateLogging(cfg *Config) error {
	switch strings.ToLower(strings.TrimSpace(cfg.Logging.Level)) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Logging.Format)) {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be one of: text, json")
	}
	return nil
}

func validateServer(cfg *Config) error {
	rl := cfg.Server.RateLimit
	if rl.Enabled && rl.Burst < 1 {
		return fmt.Errorf("server.rate_limit.burst must be >= 1, got %d", rl.Burst)
	}
	return nil
}

func validateWatch(cfg *Config) error {
	if cfg.Watch.Debounce < 0 {
		return fmt.Errorf("watch.debounce must not be negative")
	}
	for i, pattern := range cfg.Watch.Exclude {
		if _, err := glob.Compile(util.NormalizePatternPath(pattern), '/'); err != nil {
			return fmt.Errorf("watch.exclude[%d] %q is not a valid glob: %w", i, pattern, err)
		}
	}
	return nil
}

func validateHistory(cfg *Config) error {
	if cfg.History.Enabled && strings.TrimSpace(cfg.History.Path) == "" {
		return fmt.Errorf("history.path must not be empty when history is enabled")
	}
	if cfg.History.Retention < 0 {
		return fmt.Errorf("history.retention must be >= 0, got %d", cfg.History.Retention)
	}
	return nil
}

func validateObservability(cfg *Config) error {
	if cfg.Observability.Enabled && !strings.Contains(cfg.Observability.Address, ":") {
		return fmt.Errorf("observability.address must be host:port, got %q", cfg.Observability.Address)
	}
	return nil
}

// Validate reports problems that do not stop loading, such as watch paths
// that do not exist yet.
func Validate(cfg *Config) []error {
	var errs []error
	if cfg.Watch.Enabled && len(cfg.Watch.Paths) == 0 {
		errs = append(errs, fmt.Errorf("watch is enabled but watch.paths is empty"))
	}
	for i, p := range cfg.Watch.Paths {
		if _, err := os.Stat(p); os.IsNotExist(err) {
			errs = append(errs, fmt.Errorf("watch.paths[%d] %q does not exist", i, p))
		}
	}
	// Bare names are looked up in PATH when the worker starts.
	if interp := cfg.Python.Interpreter; strings.ContainsRune(interp, os.PathSeparator) {
		if info, err := os.Stat(interp); err != nil {
			errs = append(errs, fmt.Errorf("python.interpreter %q does not exist", interp))
		} else if info.IsDir() {
			errs = append(errs, fmt.Errorf("python.interpreter %q is a directory", interp))
		}
	}
	return errs
}
