package config

import (
	"fmt"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
)

// ReloadFunc receives the freshly loaded configuration after the watched
// file changed. It runs on the watcher goroutine; keep it small (typically
// just a log-level swap).
type ReloadFunc func(cfg *Config)

// Watcher reloads the configuration when its file is rewritten.
type Watcher struct {
	fsw    *fsnotify.Watcher
	path   string
	logger *log.Logger
	reload ReloadFunc
	done   chan struct{}
}

// Watch starts watching path for writes. The containing directory is
// watched so editors that replace the file (rename-over) are still seen.
func Watch(path string, logger *log.Logger, reload ReloadFunc) (*Watcher, error) {
	if logger == nil {
		logger = log.Default()
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating config watcher: %w", err)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		fsw.Close()
		return nil, fmt.Errorf("resolving config path: %w", err)
	}
	if err := fsw.Add(filepath.Dir(abs)); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("watching config dir: %w", err)
	}

	w := &Watcher{
		fsw:    fsw,
		path:   abs,
		logger: logger,
		reload: reload,
		done:   make(chan struct{}),
	}
	go w.run()
	return w, nil
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	close(w.done)
	return w.fsw.Close()
}

func (w *Watcher) run() {
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if !w.matches(event) {
				continue
			}
			cfg, err := Load(w.path)
			if err != nil {
				w.logger.Warn("config reload failed", "path", w.path, "err", err)
				continue
			}
			w.logger.Info("config reloaded", "path", w.path)
			w.reload(cfg)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("config watcher error", "err", err)
		}
	}
}

func (w *Watcher) matches(event fsnotify.Event) bool {
	if event.Name != w.path {
		return false
	}
	return event.Op.Has(fsnotify.Write) || event.Op.Has(fsnotify.Create)
}
