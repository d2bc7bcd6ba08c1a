package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ResolvedPaths holds the file system locations of a configuration with
// relative entries resolved against the configuration file's directory.
type ResolvedPaths struct {
	BaseDir    string
	HistoryDB  string
	LogFile    string
	WatchPaths []string
}

func ResolvePaths(cfg *Config, baseDir string) (ResolvedPaths, error) {
	if strings.TrimSpace(baseDir) == "" {
		return ResolvedPaths{}, fmt.Errorf("base dir must not be empty")
	}
	resolved := ResolvedPaths{
		BaseDir:   filepath.Clean(baseDir),
		HistoryDB: ResolveRelative(baseDir, cfg.History.Path),
	}
	if strings.TrimSpace(cfg.Logging.File) != "" {
		resolved.LogFile = ResolveRelative(baseDir, cfg.Logging.File)
	}
	for _, p := range cfg.Watch.Paths {
		resolved.WatchPaths = append(resolved.WatchPaths, ResolveRelative(baseDir, p))
	}
	return resolved, nil
}

func ResolveRelative(base, value string) string {
	raw := strings.TrimSpace(value)
	if raw == "" {
		return filepath.Clean(base)
	}
	if filepath.IsAbs(raw) {
		return filepath.Clean(raw)
	}
	return filepath.Clean(filepath.Join(base, raw))
}

// FindConfigFile looks for DefaultFileName in start and its parents. It
// returns "" when none exists.
func FindConfigFile(start string) (string, error) {
	abs, err := filepath.Abs(start)
	if err != nil {
		return "", err
	}
	dir := abs
	if info, err := os.Stat(abs); err == nil && !info.IsDir() {
		dir = filepath.Dir(abs)
	}
	for {
		candidate := filepath.Join(dir, DefaultFileName)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", nil
		}
		dir = parent
	}
}
