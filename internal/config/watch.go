package config

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// debounce coalesces the burst of write/rename events a single save
// produces into one reload.
const debounce = 2 * time.Second

// Watch monitors configPath for changes and invokes onChange with the
// freshly loaded Config each time the file settles after a write. It
// blocks until ctx is cancelled. Load errors after an edit are logged
// and skipped rather than propagated, so a momentarily invalid config
// (mid-save) doesn't tear down the watching service.
func Watch(ctx context.Context, configPath string, logger *slog.Logger, onChange func(*Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return err
	}
	dir := filepath.Dir(absPath)
	if err := watcher.Add(dir); err != nil {
		return err
	}
	name := filepath.Base(absPath)

	logger.Info("watching config file for changes", "path", absPath)

	var timer *time.Timer
	reload := func() {
		cfg, err := Load(absPath)
		if err != nil {
			logger.Warn("config reload skipped, file invalid", "error", err)
			return
		}
		logger.Info("config reloaded", "path", absPath)
		onChange(cfg)
	}

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != name {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(debounce, reload)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("config watcher error", "error", err)
		}
	}
}
