package config

import (
	"context"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher reloads the YAML overlay when it changes on disk and applies its
// log level to the running logger. Other keys take effect on restart.
type Watcher struct {
	path   string
	level  zap.AtomicLevel
	logger *zap.Logger

	// OnReload, if set, receives every successfully parsed overlay
	OnReload func(*Overlay)
}

// NewWatcher creates a watcher for path
func NewWatcher(path string, level zap.AtomicLevel, logger *zap.Logger) *Watcher {
	return &Watcher{path: path, level: level, logger: logger}
}

// Run watches until ctx ends. The parent directory is watched so editors that
// replace the file are seen.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()

	if err := fw.Add(filepath.Dir(w.path)); err != nil {
		return err
	}
	target := filepath.Clean(w.path)

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				w.reload()
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("Config watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) reload() {
	overlay, err := ReadOverlay(w.path)
	if err != nil {
		w.logger.Warn("Ignoring unreadable config file", zap.String("path", w.path), zap.Error(err))
		return
	}

	if overlay.LogLevel != nil {
		next := ParseLevel(*overlay.LogLevel, w.level.Level())
		if next != w.level.Level() {
			w.logger.Info("Log level changed",
				zap.String("from", w.level.Level().String()),
				zap.String("to", next.String()),
			)
			w.level.SetLevel(next)
		}
	}

	if w.OnReload != nil {
		w.OnReload(overlay)
	}
}
