package config

import (
	"errors"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long a file must stay quiet before it is reloaded.
const DefaultDebounce = 500 * time.Millisecond

// WatchOptions configures Watch.
type WatchOptions[T any] struct {
	// Load parses the file. It runs on every change; nothing is cached.
	Load func(path string) (T, error)
	// Apply receives each successfully loaded value.
	Apply func(T)
	// OnError receives load failures. Apply is not called for them.
	OnError func(error)

	Debounce time.Duration
	Logger   *slog.Logger
}

// Watcher reloads a file whenever it changes on disk.
//
// The parent directory is watched rather than the file itself, so editors
// that save through a temp file and a rename keep triggering reloads.
type Watcher[T any] struct {
	path string
	opts WatchOptions[T]
	fs   *fsnotify.Watcher

	// mu serializes Load/Apply between the event loop and Reload.
	mu sync.Mutex

	done     chan struct{}
	exited   chan struct{}
	stopOnce sync.Once
}

// Watch starts watching path. The file is not loaded up front; callers
// load it themselves before or after starting the watcher.
func Watch[T any](path string, opts WatchOptions[T]) (*Watcher[T], error) {
	if opts.Load == nil || opts.Apply == nil {
		return nil, errors.New("watch: Load and Apply are required")
	}
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fs.Add(filepath.Dir(path)); err != nil {
		fs.Close()
		return nil, err
	}

	w := &Watcher[T]{
		path:   filepath.Clean(path),
		opts:   opts,
		fs:     fs,
		done:   make(chan struct{}),
		exited: make(chan struct{}),
	}
	opts.Logger.Info("Watching config file", "path", w.path, "debounce", opts.Debounce)
	go w.loop()
	return w, nil
}

// Reload loads and applies the file now, outside the change notifications.
func (w *Watcher[T]) Reload() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	value, err := w.opts.Load(w.path)
	if err != nil {
		w.opts.Logger.Warn("Config reload failed", "path", w.path, "error", err)
		if w.opts.OnError != nil {
			w.opts.OnError(err)
		}
		return err
	}
	w.opts.Apply(value)
	return nil
}

// Stop ends the watch and waits for any reload in progress. Safe to call
// more than once.
func (w *Watcher[T]) Stop() error {
	var err error
	w.stopOnce.Do(func() {
		close(w.done)
		err = w.fs.Close()
		<-w.exited
	})
	return err
}

func (w *Watcher[T]) loop() {
	defer close(w.exited)

	quiet := time.NewTimer(w.opts.Debounce)
	quiet.Stop()
	defer quiet.Stop()

	for {
		select {
		case <-w.done:
			return

		case ev, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != w.path || (!ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create)) {
				continue
			}
			w.opts.Logger.Debug("Config file touched", "op", ev.Op.String())
			quiet.Reset(w.opts.Debounce)

		case <-quiet.C:
			select {
			case <-w.done:
				return
			default:
			}
			w.opts.Logger.Info("Config file changed, reloading", "path", w.path)
			_ = w.Reload()

		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.opts.Logger.Warn("Config watcher error", "error", err)
		}
	}
}
