package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watch reloads the config file at path whenever it is written and hands each
// valid result to onChange. Invalid edits are logged and skipped, so the last
// good configuration stays in effect. Watching stops with ctx.
func Watch(ctx context.Context, path string, logger *slog.Logger, onChange func(*Config)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config watcher: %w", err)
	}
	// Editors replace files on save, so the directory is watched.
	if err := w.Add(filepath.Dir(path)); err != nil {
		w.Close()
		return fmt.Errorf("config watcher add %s: %w", path, err)
	}
	target := filepath.Clean(path)

	go func() {
		defer w.Close()
		var fire <-chan time.Time
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != target || !(ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create)) {
					continue
				}
				fire = time.After(50 * time.Millisecond)
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				logger.Warn("config watcher error", "err", err)
			case <-fire:
				fire = nil
				cfg, err := Load(path)
				if err != nil {
					logger.Warn("config reload rejected", "path", path, "err", err)
					continue
				}
				logger.Info("config reloaded", "path", path)
				onChange(cfg)
			}
		}
	}()
	return nil
}
