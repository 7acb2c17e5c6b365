package config

import (
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DebounceDelay is the default delay for debouncing file system events.
// Editors often write a config file in several bursts; the watcher waits
// for the writes to settle before reloading.
const DebounceDelay = 100 * time.Millisecond

// Watcher monitors the configuration file and delivers reloaded
// configurations to a callback. It watches the containing directory so
// atomic save patterns (write temp file, rename over target) are seen.
//
// All public methods are safe for concurrent use.
type Watcher struct {
	path     string
	onChange func(*Config)
	logger   *slog.Logger

	watcher *fsnotify.Watcher

	debounceDelay time.Duration
	debounceTimer *time.Timer
	debounceMu    sync.Mutex

	started bool
	done    chan struct{}
	stopped chan struct{}
}

// NewWatcher creates a watcher for the configuration file at path.
// onChange is invoked with the reloaded configuration after every
// settled change. Call Start() to begin watching and Close() when done.
func NewWatcher(path string, onChange func(*Config), logger *slog.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	w := &Watcher{
		path:          path,
		onChange:      onChange,
		logger:        logger,
		watcher:       fsw,
		debounceDelay: DebounceDelay,
		done:          make(chan struct{}),
		stopped:       make(chan struct{}),
	}

	if err := fsw.Add(filepath.Dir(path)); err != nil {
		fsw.Close()
		return nil, err
	}
	return w, nil
}

// SetDebounceDelay sets the debounce delay for batching rapid changes.
// Must be called before Start().
func (w *Watcher) SetDebounceDelay(d time.Duration) {
	w.debounceMu.Lock()
	defer w.debounceMu.Unlock()
	w.debounceDelay = d
}

// Start begins the event processing loop.
func (w *Watcher) Start() {
	w.started = true
	go w.eventLoop()
}

// Close stops the watcher and releases resources. After Close returns,
// the callback will not be invoked again. Closing a watcher that was
// never started only releases the underlying file watch.
func (w *Watcher) Close() error {
	close(w.done)
	err := w.watcher.Close()
	if w.started {
		<-w.stopped
	}
	return err
}

func (w *Watcher) eventLoop() {
	defer close(w.stopped)

	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.scheduleReload()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("config watcher error", "error", err)
		}
	}
}

// scheduleReload arms (or re-arms) the debounce timer.
func (w *Watcher) scheduleReload() {
	w.debounceMu.Lock()
	defer w.debounceMu.Unlock()

	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}
	w.debounceTimer = time.AfterFunc(w.debounceDelay, w.reload)
}

func (w *Watcher) reload() {
	select {
	case <-w.done:
		return
	default:
	}

	cfg, err := Load(w.path)
	if err != nil {
		w.logger.Warn("config reload failed", "path", w.path, "error", err)
		return
	}
	w.logger.Debug("config reloaded", "path", w.path)
	w.onChange(cfg)
}
