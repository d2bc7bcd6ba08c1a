package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// ApplyEnvOverrides applies environment variable overrides to the configuration.
// Pattern: PYCOMPLETE_[SECTION]_[KEY] (e.g., PYCOMPLETE_PYTHON_INTERPRETER).
func ApplyEnvOverrides(cfg *Config) {
	// Python
	setEnvString(&cfg.Python.Interpreter, "PYCOMPLETE_PYTHON_INTERPRETER")
	setEnvDuration(&cfg.Python.RequestTimeout, "PYCOMPLETE_PYTHON_REQUEST_TIMEOUT")
	setEnvDuration(&cfg.Python.StartupTimeout, "PYCOMPLETE_PYTHON_STARTUP_TIMEOUT")

	// Logging
	setEnvString(&cfg.Logging.Level, "PYCOMPLETE_LOGGING_LEVEL")
	setEnvString(&cfg.Logging.Format, "PYCOMPLETE_LOGGING_FORMAT")
	setEnvString(&cfg.Logging.File, "PYCOMPLETE_LOGGING_FILE")

	// Server
	setEnvBool(&cfg.Server.RateLimit.Enabled, "PYCOMPLETE_SERVER_RATE_LIMIT_ENABLED")
	setEnvFloat64(&cfg.Server.RateLimit.RequestsPerSecond, "PYCOMPLETE_SERVER_RATE_LIMIT_REQUESTS_PER_SECOND")
	setEnvInt(&cfg.Server.RateLimit.Burst, "PYCOMPLETE_SERVER_RATE_LIMIT_BURST")

	// Watch
	setEnvBool(&cfg.Watch.Enabled, "PYCOMPLETE_WATCH_ENABLED")
	setEnvDuration(&cfg.Watch.Debounce, "PYCOMPLETE_WATCH_DEBOUNCE")

	// History
	setEnvBool(&cfg.History.Enabled, "PYCOMPLETE_HISTORY_ENABLED")
	setEnvString(&cfg.History.Path, "PYCOMPLETE_HISTORY_PATH")
	setEnvInt(&cfg.History.Retention, "PYCOMPLETE_HISTORY_RETENTION")

	// Observability
	setEnvBool(&cfg.Observability.Enabled, "PYCOMPLETE_OBSERVABILITY_ENABLED")
	setEnvString(&cfg.Observability.Address, "PYCOMPLETE_OBSERVABILITY_ADDRESS")
	setEnvBool(&cfg.Observability.EnableTracing, "PYCOMPLETE_OBSERVABILITY_ENABLE_TRACING")
	setEnvString(&cfg.Observability.OTLPEndpoint, "PYCOMPLETE_OBSERVABILITY_OTLP_ENDPOINT")
}

func setEnvString(target *string, key string) {
	if val, ok := os.LookupEnv(key); ok {
		slog.Debug("applying env override", "key", key, "value", val)
		*target = val
	}
}

func setEnvInt(target *int, key string) {
	if val, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(val); err == nil {
			slog.Debug("applying env override", "key", key, "value", val)
			*target = i
		}
	}
}

func setEnvBool(target *bool, key string) {
	if val, ok := os.LookupEnv(key); ok {
		b, err := strconv.ParseBool(strings.ToLower(val))
		if err == nil {
			slog.Debug("applying env override", "key", key, "value", val)
			*target = b
		}
	}
}

func setEnvFloat64(target *float64, key string) {
	if val, ok := os.LookupEnv(key); ok {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			slog.Debug("applying env override", "key", key, "value", val)
			*target = f
		}
	}
}

func setEnvDuration(target *time.Duration, key string) {
	if val, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(val); err == nil {
			slog.Debug("applying env override", "key", key, "value", val)
			*target = d
		}
	}
}
