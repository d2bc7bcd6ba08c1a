package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"pycomplete/internal/core/app"
	"pycomplete/internal/core/config"
	domainerrors "pycomplete/internal/core/errors"
)

var (
	// errUsage is reported after the usage text was printed.
	errUsage = errors.New("usage")
	// errNoResult ends a lookup that found nothing with exit status 1.
	errNoResult = errors.New("no result")
)

// env is what a command runs with.
type env struct {
	opts   cliOptions
	cfg    *config.Config
	paths  config.ResolvedPaths
	in     io.Reader
	out    io.Writer
	errOut io.Writer
	logger *slog.Logger
}

func Run(args []string) int {
	return run(context.Background(), args, os.Stdin, os.Stdout, os.Stderr)
}

func run(ctx context.Context, args []string, in io.Reader, out, errOut io.Writer) int {
	opts, err := parseOptions(args, errOut)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if opts.version || opts.command == "version" {
		fmt.Fprintf(out, "pycomplete v%s\n", versionString)
		return 0
	}

	cwd, err := os.Getwd()
	if err != nil {
		fmt.Fprintf(errOut, "failed to detect working directory: %v\n", err)
		return 1
	}
	cfg, cfgPath, err := loadConfig(opts.configPath, cwd)
	if err != nil {
		fmt.Fprintf(errOut, "failed to load config: %v\n", err)
		return 1
	}
	config.ApplyEnvOverrides(cfg)

	baseDir := cwd
	if cfgPath != "" {
		baseDir = filepath.Dir(cfgPath)
	}
	paths, err := config.ResolvePaths(cfg, baseDir)
	if err != nil {
		fmt.Fprintf(errOut, "failed to resolve runtime paths: %v\n", err)
		return 1
	}

	logger, cleanupLogs := configureLogging(cfg.Logging, paths.LogFile, opts.command == "ui", opts.verbose, errOut)
	defer cleanupLogs()
	if cfgPath != "" {
		logger.Debug("config loaded", "path", cfgPath)
	}
	for _, problem := range config.Validate(cfg) {
		logger.Warn("config check", "problem", problem)
	}

	e := &env{
		opts:   opts,
		cfg:    cfg,
		paths:  paths,
		in:     in,
		out:    out,
		errOut: errOut,
		logger: logger,
	}
	err = commands[opts.command].run(ctx, e)
	switch {
	case err == nil:
		return 0
	case errors.Is(err, errUsage):
		return 2
	case errors.Is(err, errNoResult):
		return 1
	}
	logger.Error("command failed", "command", opts.command, "error", err)
	fmt.Fprintln(errOut, domainerrors.Describe(err))
	return 1
}

// loadConfig reads an explicit config path, else the nearest
// pycomplete.toml above cwd, else the built-in defaults. The returned path
// is empty when no file was read.
func loadConfig(path, cwd string) (*config.Config, string, error) {
	if strings.TrimSpace(path) != "" {
		cfg, err := config.Load(path)
		if err != nil {
			return nil, "", err
		}
		abs, err := filepath.Abs(path)
		if err != nil {
			abs = path
		}
		return cfg, abs, nil
	}

	found, err := config.FindConfigFile(cwd)
	if err != nil {
		return nil, "", err
	}
	if found == "" {
		return config.Default(), "", nil
	}
	cfg, err := config.Load(found)
	if err != nil {
		return nil, "", err
	}
	return cfg, found, nil
}

// configureLogging installs the default logger. Logs never go to stdout,
// which carries command output and the bridge protocol. In UI mode they go
// to a file so the terminal stays clean.
func configureLogging(cfg config.Logging, logFile string, uiMode, verbose bool, errOut io.Writer) (*slog.Logger, func()) {
	level := parseLevel(cfg.Level)
	if verbose {
		level = slog.LevelDebug
	}

	output := errOut
	closeFn := func() {}
	if logFile == "" && uiMode {
		logFile = resolveLogPath()
	}
	if logFile != "" {
		if f, err := openLogFile(logFile); err != nil {
			fmt.Fprintf(errOut, "warning: %v\n", err)
		} else {
			output = f
			closeFn = func() { _ = f.Close() }
		}
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if strings.EqualFold(strings.TrimSpace(cfg.Format), "json") {
		handler = slog.NewJSONHandler(output, opts)
	} else {
		handler = slog.NewTextHandler(output, opts)
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger, closeFn
}

func openLogFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create log dir for %s: %w", path, err)
	}
	if fi, err := os.Lstat(path); err == nil && (fi.Mode()&os.ModeSymlink) != 0 {
		return nil, fmt.Errorf("refusing to write logs to symlink path %s", path)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file %s: %w", path, err)
	}
	return f, nil
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

func resolveLogPath() string {
	if xdg := os.Getenv("XDG_STATE_HOME"); xdg != "" {
		return filepath.Join(xdg, "pycomplete", "pycomplete.log")
	}

	home, err := os.UserHomeDir()
	if err == nil && home != "" {
		return filepath.Join(home, ".local", "state", "pycomplete", "pycomplete.log")
	}

	return "pycomplete.log"
}

// newApp builds the application for one command and returns its cleanup.
func newApp(e *env) (*app.App, func(), error) {
	a, err := app.New(e.cfg, e.paths, e.logger)
	if err != nil {
		return nil, nil, err
	}
	return a, func() {
		if err := a.Close(context.Background()); err != nil {
			e.logger.Warn("shutdown incomplete", "error", err)
		}
	}, nil
}
