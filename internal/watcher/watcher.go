// Package watcher turns filesystem activity in the documents directory into
// scan triggers. It never indexes anything itself: a burst of file events
// collapses into one callback, and the indexer's scan decides what changed.
package watcher

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const defaultDebounce = 5 * time.Second

// Watcher watches the documents tree and fires a debounced trigger on change.
type Watcher struct {
	root     string
	onChange func()
	debounce time.Duration

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	timer   *time.Timer
	started bool

	done     chan struct{}
	stopOnce sync.Once
	logger   *zap.Logger
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithLogger sets a logger for debug output.
func WithLogger(l *zap.Logger) Option {
	return func(w *Watcher) { w.logger = l }
}

// WithDebounce overrides the trigger debounce window.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// NewWatcher creates a watcher over root. onChange fires after events settle.
func NewWatcher(root string, onChange func(), opts ...Option) *Watcher {
	w := &Watcher{
		root:     root,
		onChange: onChange,
		debounce: defaultDebounce,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start begins watching. It runs until ctx is cancelled or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return nil
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		w.mu.Unlock()
		return err
	}
	w.watcher = fsw
	w.started = true
	w.mu.Unlock()

	if err := w.addTree(w.root); err != nil {
		w.Stop()
		return err
	}
	if w.logger != nil {
		w.logger.Debug("watcher started", zap.String("root", w.root), zap.Duration("debounce", w.debounce))
	}
	go w.run(ctx)
	return nil
}

func (w *Watcher) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			w.Stop()
			return
		case <-w.done:
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(ev)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			if err != nil && w.logger != nil {
				w.logger.Debug("watcher error", zap.Error(err))
			}
		}
	}
}

func (w *Watcher) handleEvent(ev fsnotify.Event) {
	if hiddenOrTemp(filepath.Base(ev.Name)) {
		return
	}
	// A new tenant directory needs its own watch before its files produce
	// events.
	if ev.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if err := w.addTree(ev.Name); err != nil && w.logger != nil {
				w.logger.Debug("watch new directory failed", zap.String("path", ev.Name), zap.Error(err))
			}
		}
	}
	if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
		return
	}
	if w.logger != nil {
		w.logger.Debug("watcher event", zap.String("op", ev.Op.String()), zap.String("path", ev.Name))
	}
	w.scheduleTrigger()
}

// scheduleTrigger arms the debounce timer, restarting it on each new event
// so the trigger fires once the burst settles.
func (w *Watcher) scheduleTrigger() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.started {
		return
	}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() {
		if w.logger != nil {
			w.logger.Debug("watcher trigger fired")
		}
		if w.onChange != nil {
			w.onChange()
		}
	})
}

func (w *Watcher) addTree(root string) error {
	w.mu.Lock()
	fsw := w.watcher
	w.mu.Unlock()
	if fsw == nil {
		return nil
	}
	if _, err := os.Stat(root); os.IsNotExist(err) {
		if err := os.MkdirAll(root, 0755); err != nil {
			return err
		}
	}
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && hiddenOrTemp(d.Name()) {
			return filepath.SkipDir
		}
		return fsw.Add(path)
	})
}

func hiddenOrTemp(name string) bool {
	if strings.HasPrefix(name, ".") {
		return true
	}
	lower := strings.ToLower(name)
	return strings.Contains(lower, "tmp") || strings.Contains(lower, "temp")
}

// Stop stops the watcher and releases resources.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.started || w.watcher == nil {
		w.mu.Unlock()
		return
	}
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	_ = w.watcher.Close()
	w.watcher = nil
	w.started = false
	w.mu.Unlock()
	w.stopOnce.Do(func() { close(w.done) })
}
