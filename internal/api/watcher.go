package api

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// reloadDebounce collapses the events of one atomic replace into a reload.
const reloadDebounce = 100 * time.Millisecond

// Watcher reloads a Catalog when its snapshot file changes. It watches the
// directory, not the file: the store replaces the file by rename, which
// would drop a watch on the file itself.
type Watcher struct {
	cat    *Catalog
	target string
	fw     *fsnotify.Watcher
	logger *slog.Logger
}

// Watch starts watching the snapshot directory. Events are handled by Run.
func (c *Catalog) Watch() (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating watcher: %w", err)
	}
	target := filepath.Clean(c.store.Path())
	if err := fw.Add(filepath.Dir(target)); err != nil {
		fw.Close()
		return nil, fmt.Errorf("watching %s: %w", filepath.Dir(target), err)
	}
	return &Watcher{
		cat:    c,
		target: target,
		fw:     fw,
		logger: c.logger.With("path", target),
	}, nil
}

// Run handles events until ctx is done, then closes the watcher.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fw.Close()

	var debounce <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.target {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				debounce = time.After(reloadDebounce)
			}

		case <-debounce:
			debounce = nil
			if err := w.cat.Reload(); err != nil {
				w.logger.Warn("snapshot reload failed, keeping previous", "error", err)
			}

		case err, ok := <-w.fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error", "error", err)
		}
	}
}
