package settings

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	appLog "relcal/internal/log"
)

// Watcher reports changes to a settings file made by other processes
// (for example `relcal settings set`).
//
// The parent directory is watched rather than the file itself because
// FileStore replaces the file by rename.
type Watcher struct {
	path string

	mu     sync.Mutex
	nextID int
	subs   map[int]func()
}

func NewWatcher(path string) *Watcher {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = filepath.Clean(path)
	}
	return &Watcher{path: abs, subs: make(map[int]func())}
}

// Subscribe registers fn to be called after each change. The returned
// func removes the subscription.
func (w *Watcher) Subscribe(fn func()) func() {
	w.mu.Lock()
	defer w.mu.Unlock()
	id := w.nextID
	w.nextID++
	w.subs[id] = fn
	return func() {
		w.mu.Lock()
		defer w.mu.Unlock()
		delete(w.subs, id)
	}
}

// Run blocks until ctx is done or the underlying watcher fails.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("settings: fsnotify: %w", err)
	}
	defer fw.Close()

	dir := filepath.Dir(w.path)
	if err := fw.Add(dir); err != nil {
		return fmt.Errorf("settings: watch %s: %w", dir, err)
	}
	appLog.Info("watching settings file", "path", w.path)

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if w.relevant(ev) {
				appLog.Debug("settings file changed", "path", ev.Name, "op", ev.Op.String())
				w.emit()
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			appLog.Error("settings watcher error", err, "path", w.path)
		}
	}
}

func (w *Watcher) relevant(ev fsnotify.Event) bool {
	if filepath.Clean(ev.Name) != w.path {
		return false
	}
	return ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename) || ev.Has(fsnotify.Remove)
}

func (w *Watcher) emit() {
	w.mu.Lock()
	fns := make([]func(), 0, len(w.subs))
	for _, fn := range w.subs {
		fns = append(fns, fn)
	}
	w.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}
