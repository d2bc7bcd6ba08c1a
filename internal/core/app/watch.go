package app

import (
	"context"
	"path/filepath"

	"pycomplete/internal/core/watcher"
)

// StartWatcher reloads documents whose file changes under paths. Files
// nobody asked about are ignored.
func (a *App) StartWatcher(paths []string) (*watcher.Watcher, error) {
	debounce := a.Config.Watch.Debounce
	w, err := watcher.NewWatcher(debounce, a.Config.Watch.Exclude, a.HandleChanges)
	if err != nil {
		return nil, err
	}
	if err := w.Watch(paths); err != nil {
		_ = w.Close()
		return nil, err
	}
	return w, nil
}

// HandleChanges re-parses the documents of the changed files that were
// parsed before.
func (a *App) HandleChanges(paths []string) {
	changed := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		if abs, err := filepath.Abs(p); err == nil {
			changed[abs] = struct{}{}
		}
	}
	for _, docPath := range a.registry.Paths() {
		abs, err := filepath.Abs(docPath)
		if err != nil {
			continue
		}
		if _, ok := changed[abs]; !ok {
			continue
		}
		if msg := a.ParseSource(context.Background(), docPath, true); msg != "" {
			a.logger.Info("reload failed", "path", docPath, "error", msg)
		} else {
			a.logger.Debug("document reloaded", "path", docPath)
		}
	}
}
