package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const watchDebounce = 250 * time.Millisecond

// Watch reloads the configuration directory when one of its files changes and passes the
// result to onReload. Invalid content is logged and the previous configuration stays in
// effect. Watching stops when ctx is done.
func Watch(ctx context.Context, dir string, logger *slog.Logger, onReload func(*Files)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create config watcher: %w", err)
	}
	// Editors replace files by rename, so the directory is watched rather than the files.
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	logger = logger.With("component", "config")

	go func() {
		defer watcher.Close()

		var mu sync.Mutex
		var timer *time.Timer
		reload := func() {
			files, err := LoadFiles(dir)
			if err != nil {
				logger.Warn("config reload rejected", "err", err)
				return
			}
			logger.Info("config reloaded", "dir", dir)
			onReload(files)
		}
		schedule := func() {
			mu.Lock()
			defer mu.Unlock()
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(watchDebounce, reload)
		}

		for {
			select {
			case <-ctx.Done():
				mu.Lock()
				if timer != nil {
					timer.Stop()
				}
				mu.Unlock()
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				name := filepath.Base(event.Name)
				if name != SettingsFile && name != ResponsesFile {
					continue
				}
				if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) != 0 {
					schedule()
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("config watch error", "err", err)
			}
		}
	}()
	return nil
}
