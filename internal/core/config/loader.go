package config

import (
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// DefaultFileName is looked up when no configuration file is given.
const DefaultFileName = "pycomplete.toml"

type Config struct {
	Version       int           `toml:"version"`
	Python        Python        `toml:"python"`
	Logging       Logging       `toml:"logging"`
	Server        Server        `toml:"server"`
	Watch         Watch         `toml:"watch"`
	History       History       `toml:"history"`
	Observability Observability `toml:"observability"`
}

type Python struct {
	Interpreter    string        `toml:"interpreter"`
	Args           []string      `toml:"args"`
	Env            []string      `toml:"env"`
	RequestTimeout time.Duration `toml:"request_timeout"`
	StartupTimeout time.Duration `toml:"startup_timeout"`
}

type Logging struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
	File   string `toml:"file"`
}

type Server struct {
	RateLimit RateLimit `toml:"rate_limit"`
}

type RateLimit struct {
	Enabled           bool    `toml:"enabled"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
	Burst             int     `toml:"burst"`
}

type Watch struct {
	Enabled  bool          `toml:"enabled"`
	Paths    []string      `toml:"paths"`
	Exclude  []string      `toml:"exclude"`
	Debounce time.Duration `toml:"debounce"`
}

type History struct {
	Enabled     bool          `toml:"enabled"`
	Path        string        `toml:"path"`
	BusyTimeout time.Duration `toml:"busy_timeout"`
	// Retention is the number of journal entries kept, 0 keeps everything.
	Retention int `toml:"retention"`
}

type Observability struct {
	Enabled       bool   `toml:"enabled"`
	Address       string `toml:"address"`
	EnableTracing bool   `toml:"enable_tracing"`
	OTLPEndpoint  string `toml:"otlp_endpoint"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(string(data))
}

// Parse decodes a TOML document, fills in defaults and validates it.
func Parse(data string) (*Config, error) {
	var cfg Config
	if _, err := toml.Decode(data, &cfg); err != nil {
		return nil, err
	}

	applyDefaults(&cfg)

	if err := validateVersion(&cfg); err != nil {
		return nil, err
	}
	if err := validatePython(&cfg); err != nil {
		return nil, err
	}
	if err := validateLogging(&cfg); err != nil {
		return nil, err
	}
	if err := validateServer(&cfg); err != nil {
		return nil, err
	}
	if err := validateWatch(&cfg); err != nil {
		return nil, err
	}
	if err := validateHistory(&cfg); err != nil {
		return nil, err
	}
	if err := validateObservability(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Version == 0 {
		cfg.Version = 1
	}

	if strings.TrimSpace(cfg.Python.Interpreter) == "" {
		cfg.Python.Interpreter = "python3"
	}
	if cfg.Python.RequestTimeout <= 0 {
		cfg.Python.RequestTimeout = 10 * time.Second
	}
	if cfg.Python.StartupTimeout <= 0 {
		cfg.Python.StartupTimeout = 15 * time.Second
	}

	if strings.TrimSpace(cfg.Logging.Level) == "" {
		cfg.Logging.Level = "info"
	}
	if strings.TrimSpace(cfg.Logging.Format) == "" {
		cfg.Logging.Format = "text"
	}

	if cfg.Server.RateLimit.RequestsPerSecond <= 0 {
		cfg.Server.RateLimit.RequestsPerSecond = 50
	}
	if cfg.Server.RateLimit.Burst <= 0 {
		cfg.Server.RateLimit.Burst = 20
	}

	// Default debounce if not set.
	if cfg.Watch.Debounce == 0 {
		cfg.Watch.Debounce = 300 * time.Millisecond
	}
	if len(cfg.Watch.Exclude) == 0 {
		cfg.Watch.Exclude = []string{"**/__pycache__/**", "**/.git/**", "**/.venv/**"}
	}

	if strings.TrimSpace(cfg.History.Path) == "" {
		cfg.History.Path = "pycomplete-history.db"
	}
	if cfg.History.BusyTimeout <= 0 {
		cfg.History.BusyTimeout = 5 * time.Second
	}

	if strings.TrimSpace(cfg.Observability.Address) == "" {
		cfg.Observability.Address = "127.0.0.1:9464"
	}
}
