package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher monitors the config file and reports reload requests. Editors
// typically write via rename, so the parent directory is watched and
// events for other files in it are ignored.
type Watcher struct {
	path     string
	debounce time.Duration
	reloads  chan struct{}
}

// NewWatcher creates a config file watcher.
func NewWatcher(path string) *Watcher {
	if path == "" {
		path = DefaultPath()
	}
	return &Watcher{
		path:     path,
		debounce: 500 * time.Millisecond,
		reloads:  make(chan struct{}, 1),
	}
}

// Reloads returns the channel signaled after the file settles post-change.
func (w *Watcher) Reloads() <-chan struct{} {
	return w.reloads
}

// Serve watches until the context is canceled. It implements
// suture.Service so a watcher crash is restarted with backoff.
func (w *Watcher) Serve(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	defer fsw.Close()

	dir := filepath.Dir(w.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if err := fsw.Add(dir); err != nil {
		return fmt.Errorf("watch config directory: %w", err)
	}

	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev, ok := <-fsw.Events:
			if !ok {
				return fmt.Errorf("fsnotify event channel closed")
			}
			if filepath.Clean(ev.Name) != filepath.Clean(w.path) {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			// Debounce: wait for the file to stop changing.
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				timerC = timer.C
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(w.debounce)
			}

		case err, ok := <-fsw.Errors:
			if !ok {
				return fmt.Errorf("fsnotify error channel closed")
			}
			return fmt.Errorf("config watch: %w", err)

		case <-timerC:
			timer = nil
			timerC = nil
			select {
			case w.reloads <- struct{}{}:
			default:
			}
		}
	}
}

// String implements fmt.Stringer for supervisor logs.
func (w *Watcher) String() string {
	return "config-watcher"
}
