package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/postvisit/carecore/model"
)

// Watch reloads the file at path whenever it is written and passes each
// valid result to fn. Invalid files are logged and skipped. It blocks
// until ctx is done.
func Watch(ctx context.Context, path string, logger *slog.Logger, fn func(Config)) error {
	if logger == nil {
		logger = slog.Default()
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch config: %w", err)
	}
	defer watcher.Close()

	// Editors replace files on save; watching the directory survives that.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("watch config %s: %w", path, err)
	}
	base := filepath.Base(path)

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != base {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			cfg, err := Load(path)
			if err != nil {
				logger.Warn("config reload failed, keeping previous settings",
					slog.String("path", path), slog.Any("error", err))
				continue
			}
			fn(cfg)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("config watcher error", slog.Any("error", err))
		}
	}
}

// ApplyTier returns a Watch callback that moves store to each reloaded
// tier. A pinned store rejects the change and it is logged.
func ApplyTier(store *model.TierStore, logger *slog.Logger) func(Config) {
	if logger == nil {
		logger = slog.Default()
	}
	return func(cfg Config) {
		t, err := model.ParseTier(cfg.Tier)
		if err != nil {
			return
		}
		if store.Current().Name == t.Name {
			return
		}
		if err := store.Set(t); err != nil {
			logger.Warn("tier change from config ignored",
				slog.String("tier", t.Name),
				slog.Any("error", err))
			return
		}
		logger.Info("tier changed from config", slog.String("tier", t.Name))
	}
}
