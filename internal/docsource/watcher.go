package docsource

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Handler reacts to document changes.
type Handler interface {
	Reindex(ctx context.Context, name string) (int, error)
	Remove(ctx context.Context, name string) error
}

// Watcher re-indexes documents when files in the directory change.
type Watcher struct {
	dir     *Directory
	handler Handler
	logger  *slog.Logger
	watcher *fsnotify.Watcher
}

func NewWatcher(dir *Directory, handler Handler, logger *slog.Logger) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher failed: %w", err)
	}
	if err := w.Add(dir.Dir); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("watch %s failed: %w", dir.Dir, err)
	}
	return &Watcher{dir: dir, handler: handler, logger: logger, watcher: w}, nil
}

// Run blocks until ctx is done or the watcher is closed. Events are handled
// one at a time.
func (w *Watcher) Run(ctx context.Context) {
	defer w.watcher.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handle(ctx, event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("document watcher error", "error", err)
		}
	}
}

func (w *Watcher) handle(ctx context.Context, event fsnotify.Event) {
	if !w.dir.Matches(event.Name) {
		return
	}
	name := filepath.Base(event.Name)

	switch {
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		if err := w.handler.Remove(ctx, name); err != nil {
			w.logger.Error("remove document chunks failed", "source", name, "error", err)
			return
		}
		w.logger.Info("document removed", "source", name)
	case event.Has(fsnotify.Create), event.Has(fsnotify.Write):
		n, err := w.handler.Reindex(ctx, name)
		if err != nil {
			w.logger.Error("reindex document failed", "source", name, "error", err)
			return
		}
		w.logger.Info("document reindexed", "source", name, "chunks", n)
	}
}
