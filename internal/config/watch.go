package config

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/civreg/civreg/internal/telemetry"
)

// Watch monitors the provider's root configuration file and calls onChange
// with the reload outcome every time the file is written, created, or
// renamed into place. It blocks until ctx is canceled.
//
// The containing directory is watched rather than the file itself so that
// editors which replace the file (write-to-temp + rename) keep triggering
// events.
func Watch(ctx context.Context, p Provider, onChange func(*Config, error)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating config watcher: %w", err)
	}
	defer watcher.Close() //nolint:errcheck // best-effort close

	dir := filepath.Dir(p.Path())
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watching %q: %w", dir, err)
	}

	target := filepath.Clean(p.Path())
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			err := p.Reload()
			cfg, _ := p.Config()
			telemetry.RecordConfigReload(ctx, target, err)
			onChange(cfg, err)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			onChange(nil, fmt.Errorf("config watcher: %w", err))
		}
	}
}
