package config

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads the config file on change and hands the parsed result to a
// callback. fsnotify covers the common case; an mtime poll backs it up for
// filesystems that drop events (NFS, container bind mounts).
type Watcher struct {
	Path         string
	PollInterval time.Duration
}

// Start blocks until ctx is done; callback receives the latest valid config
// on every observed change. Invalid intermediate writes are skipped.
func (w Watcher) Start(ctx context.Context, onUpdate func(AppConfig)) error {
	if w.PollInterval <= 0 {
		w.PollInterval = 2 * time.Second
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()
	// Watch the directory: editors replace the file atomically and the
	// original inode watch would go stale.
	if err := fw.Add(filepath.Dir(w.Path)); err != nil {
		return err
	}

	var lastMod time.Time
	if info, err := os.Stat(w.Path); err == nil {
		lastMod = info.ModTime()
	}

	reload := func() {
		info, err := os.Stat(w.Path)
		if err != nil {
			return
		}
		if !info.ModTime().After(lastMod) {
			return
		}
		lastMod = info.ModTime()
		if cfg, err := LoadWithEnvOverrides(w.Path); err == nil && onUpdate != nil {
			onUpdate(cfg)
		}
	}

	ticker := time.NewTicker(w.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) == filepath.Clean(w.Path) {
				reload()
			}
		case _, ok := <-fw.Errors:
			if !ok {
				return nil
			}
		case <-ticker.C:
			reload()
		}
	}
}
