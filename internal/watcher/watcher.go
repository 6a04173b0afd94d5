// Package watcher provides file watching with debouncing using fsnotify.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/sync/errgroup"
)

// DefaultDebounce is how long a file must stay unchanged before it is handed
// to the handler.
const DefaultDebounce = 500 * time.Millisecond

// Handler processes one settled file. Files are handled one at a time, in
// the order they settled. A returned error is logged and does not stop the
// watcher.
type Handler func(ctx context.Context, path string) error

// Watcher reports regular files in a directory once writes to them stop.
type Watcher struct {
	dir          string
	debounce     time.Duration
	pattern      string
	scanExisting bool
	logger       *slog.Logger

	mu      sync.Mutex
	pending map[string]*pendingTimer
	queue   []string
	queued  map[string]bool
	signal  chan struct{}
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce sets the quiet period after the last write.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithPattern only reports files whose base name matches the glob.
func WithPattern(glob string) Option {
	return func(w *Watcher) {
		w.pattern = glob
	}
}

// WithScanExisting also reports files present when Run starts.
func WithScanExisting(scan bool) Option {
	return func(w *Watcher) {
		w.scanExisting = scan
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(w *Watcher) {
		if l != nil {
			w.logger = l
		}
	}
}

// New creates a Watcher for dir.
func New(dir string, opts ...Option) (*Watcher, error) {
	w := &Watcher{
		dir:      dir,
		debounce: DefaultDebounce,
		logger:   slog.Default(),
		pending:  make(map[string]*pendingTimer),
		queued:   make(map[string]bool),
		signal:   make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.pattern != "" {
		if _, err := filepath.Match(w.pattern, ""); err != nil {
			return nil, fmt.Errorf("invalid pattern %q: %w", w.pattern, err)
		}
	}
	info, err := os.Stat(dir)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", dir)
	}
	w.logger = w.logger.With("component", "watcher", "dir", dir)
	return w, nil
}

func (w *Watcher) matches(path string) bool {
	name := filepath.Base(path)
	if name == "" || name[0] == '.' {
		return false
	}
	if w.pattern == "" {
		return true
	}
	ok, _ := filepath.Match(w.pattern, name)
	return ok
}

// Run watches until ctx is done, calling handle for every settled file.
func (w *Watcher) Run(ctx context.Context, handle Handler) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer fsw.Close()
	if err := fsw.Add(w.dir); err != nil {
		return fmt.Errorf("watching %s: %w", w.dir, err)
	}
	defer w.stopTimers()

	if w.scanExisting {
		if err := w.enqueueExisting(); err != nil {
			return err
		}
	}
	w.logger.Info("watching for files", "pattern", w.pattern, "debounce", w.debounce)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return w.eventLoop(ctx, fsw)
	})
	g.Go(func() error {
		return w.worker(ctx, handle)
	})
	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (w *Watcher) eventLoop(ctx context.Context, fsw *fsnotify.Watcher) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			w.handleEvent(ev)
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error", "error", err)
		}
	}
}

func (w *Watcher) handleEvent(ev fsnotify.Event) {
	if !w.matches(ev.Name) {
		return
	}
	switch {
	case ev.Has(fsnotify.Create), ev.Has(fsnotify.Write):
		w.touch(ev.Name)
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		w.forget(ev.Name)
	}
}

// pendingTimer is the debounce timer for one path. A settle call only acts when
// its pendingTimer is still the current one for the path.
type pendingTimer struct {
	timer *time.Timer
}

// touch (re)starts the debounce timer for path. A timer that already fired
// is replaced, so its in-flight settle becomes a no-op.
func (w *Watcher) touch(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if d, ok := w.pending[path]; ok && d.timer.Stop() {
		d.timer.Reset(w.debounce)
		return
	}
	d := &pendingTimer{}
	d.timer = time.AfterFunc(w.debounce, func() { w.settle(path, d) })
	w.pending[path] = d
}

func (w *Watcher) forget(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if d, ok := w.pending[path]; ok {
		d.timer.Stop()
		delete(w.pending, path)
	}
}

func (w *Watcher) settle(path string, d *pendingTimer) {
	w.mu.Lock()
	if w.pending[path] != d {
		w.mu.Unlock()
		return
	}
	delete(w.pending, path)
	w.mu.Unlock()

	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return
	}
	w.enqueue(path)
}

func (w *Watcher) enqueue(path string) {
	w.mu.Lock()
	if w.queued[path] {
		w.mu.Unlock()
		return
	}
	w.queued[path] = true
	w.queue = append(w.queue, path)
	w.mu.Unlock()

	select {
	case w.signal <- struct{}{}:
	default:
	}
}

func (w *Watcher) enqueueExisting() error {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return fmt.Errorf("reading %s: %w", w.dir, err)
	}
	for _, e := range entries {
		path := filepath.Join(w.dir, e.Name())
		if e.Type().IsRegular() && w.matches(path) {
			w.enqueue(path)
		}
	}
	return nil
}

func (w *Watcher) next() (string, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.queue) == 0 {
		return "", false
	}
	path := w.queue[0]
	w.queue = w.queue[1:]
	delete(w.queued, path)
	return path, true
}

func (w *Watcher) worker(ctx context.Context, handle Handler) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.signal:
		}
		for {
			path, ok := w.next()
			if !ok {
				break
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			w.logger.Debug("file settled", "path", path)
			if err := handle(ctx, path); err != nil {
				w.logger.Error("handler failed", "path", path, "error", err)
			}
		}
	}
}

func (w *Watcher) stopTimers() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for path, d := range w.pending {
		d.timer.Stop()
		delete(w.pending, path)
	}
}
