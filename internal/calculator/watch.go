package calculator

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watch reloads the registry whenever its presets file changes. It blocks
// until ctx is cancelled. The parent directory is watched so that editors
// which replace the file on save are picked up too.
func (r *PresetRegistry) Watch(ctx context.Context, logger *zap.Logger) error {
	if r.path == "" {
		<-ctx.Done()
		return nil
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("presets watcher: %w", err)
	}
	defer w.Close()

	target := filepath.Clean(r.path)
	if err := w.Add(filepath.Dir(target)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(target), err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if err := r.Reload(); err != nil {
				logger.Warn("presets reload failed, keeping previous table", zap.String("path", target), zap.Error(err))
				continue
			}
			logger.Info("presets reloaded", zap.String("path", target))
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Warn("presets watcher error", zap.Error(err))
		}
	}
}
