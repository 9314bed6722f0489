// Package watch drives watch mode: a recursive fsnotify watcher over the
// selected project directories, debouncing change bursts into batches that
// the app replays against a command's watch-phase subset.
package watch

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/vk/buildgrid/internal/ctxlog"
)

// DefaultDebounce is how long the watcher waits after the last event before
// emitting a batch.
const DefaultDebounce = 200 * time.Millisecond

// ignoredDirs never trigger rebuilds and are not descended into.
var ignoredDirs = map[string]struct{}{
	".git":         {},
	".buildgrid":   {},
	"node_modules": {},
}

// Watcher emits debounced batches of changed paths.
type Watcher struct {
	fsw      *fsnotify.Watcher
	debounce time.Duration
}

// New creates a watcher over the given root directories, added recursively.
func New(roots []string, debounce time.Duration) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	w := &Watcher{fsw: fsw, debounce: debounce}

	for _, root := range roots {
		if err := w.addRecursive(root); err != nil {
			fsw.Close()
			return nil, err
		}
	}
	return w, nil
}

// Close releases the underlying fsnotify watcher.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}

// Run delivers debounced change batches to handle until the context is
// cancelled. Newly created directories are added to the watch set on the
// fly.
func (w *Watcher) Run(ctx context.Context, handle func(changed []string)) error {
	logger := ctxlog.FromContext(ctx)

	var timer *time.Timer
	var timerCh <-chan time.Time
	pending := make(map[string]struct{})

	for {
		select {
		case <-ctx.Done():
			logger.Debug("Watcher stopping.")
			return ctx.Err()

		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if ignored(event.Name) {
				continue
			}
			if event.Op.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := w.addRecursive(event.Name); err != nil {
						logger.Warn("Failed to watch new directory.", "dir", event.Name, "error", err)
					}
				}
			}
			pending[event.Name] = struct{}{}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			timerCh = timer.C

		case <-timerCh:
			changed := make([]string, 0, len(pending))
			for path := range pending {
				changed = append(changed, path)
			}
			pending = make(map[string]struct{})
			timerCh = nil
			logger.Debug("Change batch ready.", "paths", len(changed))
			handle(changed)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			logger.Warn("Watcher error.", "error", err)
		}
	}
}

func (w *Watcher) addRecursive(root string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			return nil
		}
		if _, skip := ignoredDirs[info.Name()]; skip && path != root {
			return filepath.SkipDir
		}
		return w.fsw.Add(path)
	})
}

func ignored(path string) bool {
	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if _, skip := ignoredDirs[part]; skip {
			return true
		}
	}
	return false
}
