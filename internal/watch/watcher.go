package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"gofirewalld/internal/persist"
)

// DefaultDelay is how long a path has to stay quiet before it is handled.
const DefaultDelay = 5 * time.Second

type Handler interface {
	Dispatch(path string) Class
}

// Watcher collects fsnotify events and hands each changed path to the
// handler once it has been quiet for the debounce delay. The handler always
// runs on the goroutine calling Run.
type Watcher struct {
	notify  *fsnotify.Watcher
	handler Handler
	delay   time.Duration

	dirs  []string
	files []string

	mu     sync.Mutex
	timers map[string]*time.Timer
	ready  chan string
	done   chan struct{}
}

func NewWatcher(h Handler, delay time.Duration) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if delay <= 0 {
		delay = DefaultDelay
	}
	return &Watcher{
		notify:  fw,
		handler: h,
		delay:   delay,
		timers:  make(map[string]*time.Timer),
		ready:   make(chan string),
		done:    make(chan struct{}),
	}, nil
}

// AddDir reports every file changed in dir. A missing directory is skipped.
func (w *Watcher) AddDir(dir string) error {
	dir = filepath.Clean(dir)
	if err := w.notify.Add(dir); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			slog.Debug("not watching missing directory", "dir", dir)
			return nil
		}
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	w.dirs = append(w.dirs, dir)
	return nil
}

// AddFile reports changes of a single file by watching its directory.
func (w *Watcher) AddFile(path string) error {
	path = filepath.Clean(path)
	parent := filepath.Dir(path)
	if !slices.Contains(w.dirs, parent) {
		if err := w.notify.Add(parent); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				slog.Debug("not watching file in missing directory", "path", path)
				return nil
			}
			return fmt.Errorf("watch %s: %w", parent, err)
		}
	}
	w.files = append(w.files, path)
	return nil
}

func (w *Watcher) wanted(path string) bool {
	if slices.Contains(w.files, path) {
		return true
	}
	return slices.Contains(w.dirs, filepath.Dir(path))
}

// Run delivers debounced paths until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.notify.Events:
			if !ok {
				return nil
			}
			if ev.Op == fsnotify.Chmod || !w.wanted(ev.Name) {
				continue
			}
			w.schedule(ev.Name)
		case err, ok := <-w.notify.Errors:
			if !ok {
				return nil
			}
			slog.Warn("watch error", "error", err)
		case path := <-w.ready:
			w.mu.Lock()
			delete(w.timers, path)
			w.mu.Unlock()
			w.handler.Dispatch(path)
		}
	}
}

// schedule (re)starts the quiet period of path. A timer that already fired
// has a delivery on its way to Run, which picks up the new change too, so
// it is left alone.
func (w *Watcher) schedule(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.timers[path]; ok {
		if t.Stop() {
			t.Reset(w.delay)
		}
		return
	}
	w.timers[path] = time.AfterFunc(w.delay, func() {
		select {
		case w.ready <- path:
		case <-w.done:
		}
	})
}

func (w *Watcher) stop() {
	w.mu.Lock()
	for path, t := range w.timers {
		t.Stop()
		delete(w.timers, path)
	}
	w.mu.Unlock()
	close(w.done)
	if err := w.notify.Close(); err != nil {
		slog.Debug("close watcher", "error", err)
	}
}

// AddLayout watches every record directory and file of layout.
func (w *Watcher) AddLayout(layout persist.Layout) error {
	for _, dir := range Dirs(layout) {
		if err := w.AddDir(dir); err != nil {
			return err
		}
	}
	for _, f := range Files(layout) {
		if err := w.AddFile(f); err != nil {
			return err
		}
	}
	return nil
}
