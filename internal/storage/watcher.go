package storage

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// Watcher converts filesystem writes under an FSStore root into Events.
// Each completed object write (the rename in FSStore.Put, or a write by an
// external process) produces one event; duplicates are possible and
// ingestion is expected to tolerate them.
type Watcher struct {
	root   string
	fw     *fsnotify.Watcher
	events chan Event
	log    *slog.Logger
}

// NewWatcher starts watching root and all of its current subdirectories.
func NewWatcher(root string, logger *slog.Logger) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	w := &Watcher{
		root:   root,
		fw:     fw,
		events: make(chan Event, 64),
		log:    logger,
	}
	if err := w.addRecursive(root); err != nil {
		fw.Close()
		return nil, err
	}
	return w, nil
}

// Events returns the shard-arrival event channel. It is closed when Run
// returns.
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// Run pumps filesystem notifications into Events until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	defer close(w.events)
	defer w.fw.Close()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err, ok := <-w.fw.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("watcher error", "error", err)
		case ev, ok := <-w.fw.Events:
			if !ok {
				return nil
			}
			w.handle(ctx, ev)
		}
	}
}

func (w *Watcher) handle(ctx context.Context, ev fsnotify.Event) {
	if !ev.Op.Has(fsnotify.Create) && !ev.Op.Has(fsnotify.Write) {
		return
	}
	base := filepath.Base(ev.Name)
	if strings.HasPrefix(base, tmpPrefix) {
		return
	}

	info, err := os.Stat(ev.Name)
	if err != nil {
		// Renamed or removed between event and stat; nothing to report.
		return
	}

	if info.IsDir() {
		// New job prefix: watch it and emit events for anything already
		// inside (writes can race the watch registration).
		if err := w.addRecursive(ev.Name); err != nil {
			w.log.Warn("failed to watch new directory", "dir", ev.Name, "error", err)
		}
		w.emitExisting(ctx, ev.Name)
		return
	}

	w.emit(ctx, ev.Name)
}

func (w *Watcher) emitExisting(ctx context.Context, dir string) {
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if strings.HasPrefix(d.Name(), tmpPrefix) {
			return nil
		}
		w.emit(ctx, path)
		return nil
	})
}

func (w *Watcher) emit(ctx context.Context, path string) {
	rel, err := filepath.Rel(w.root, path)
	if err != nil {
		return
	}
	select {
	case w.events <- Event{Container: w.root, Key: filepath.ToSlash(rel)}:
	case <-ctx.Done():
	}
}

func (w *Watcher) addRecursive(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.fw.Add(path)
		}
		return nil
	})
}
