package config

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"nanoclaw/pkg/logging"
)

const (
	// DefaultDebounceInterval is the time to wait after the last write
	// before reloading.
	DefaultDebounceInterval = 500 * time.Millisecond

	// DefaultPollInterval is used when fsnotify is unavailable.
	DefaultPollInterval = 5 * time.Second
)

// WatcherOptions configures a Watcher.
type WatcherOptions struct {
	Debounce     time.Duration
	PollInterval time.Duration

	// OnChange receives every configuration that loads and validates.
	OnChange func(Config)

	// OnError receives load failures. The previous configuration stays in effect.
	OnError func(error)
}

// Watcher reloads a configuration file when it changes. It watches the
// parent directory so editors that replace the file atomically are seen,
// and falls back to polling when fsnotify cannot be used.
type Watcher struct {
	mu      sync.Mutex
	path    string
	opts    WatcherOptions
	fs      *fsnotify.Watcher
	stopCh  chan struct{}
	running bool
	lastMod time.Time

	debounceMu    sync.Mutex
	debounceTimer *time.Timer
}

// Watch starts watching path and returns the running watcher.
func Watch(path string, opts WatcherOptions) (*Watcher, error) {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounceInterval
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	w := &Watcher{path: abs, opts: opts, stopCh: make(chan struct{}), running: true}
	if info, err := os.Stat(abs); err == nil {
		w.lastMod = info.ModTime()
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		logging.Warn("ConfigWatcher", "fsnotify not available, falling back to polling: %v", err)
		go w.poll()
		return w, nil
	}
	if err := fsw.Add(filepath.Dir(abs)); err != nil {
		logging.Warn("ConfigWatcher", "Failed to watch %s, falling back to polling: %v", filepath.Dir(abs), err)
		fsw.Close()
		go w.poll()
		return w, nil
	}
	w.fs = fsw

	go w.processEvents(fsw.Events, fsw.Errors)
	logging.Info("ConfigWatcher", "Watching %s for changes", abs)
	return w, nil
}

func (w *Watcher) processEvents(eventsCh <-chan fsnotify.Event, errorsCh <-chan error) {
	for {
		select {
		case <-w.stopCh:
			return
		case event, ok := <-eventsCh:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			logging.Debug("ConfigWatcher", "Config file changed: %s (%s)", event.Name, event.Op)
			w.reloadDebounced()
		case err, ok := <-errorsCh:
			if !ok {
				return
			}
			logging.Error("ConfigWatcher", err, "fsnotify error")
		}
	}
}

func (w *Watcher) poll() {
	ticker := time.NewTicker(w.opts.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-w.stopCh:
			return
		case <-ticker.C:
			info, err := os.Stat(w.path)
			if err != nil {
				continue
			}
			w.mu.Lock()
			changed := info.ModTime().After(w.lastMod)
			if changed {
				w.lastMod = info.ModTime()
			}
			w.mu.Unlock()
			if changed {
				w.reloadDebounced()
			}
		}
	}
}

func (w *Watcher) reloadDebounced() {
	w.debounceMu.Lock()
	defer w.debounceMu.Unlock()

	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}
	w.debounceTimer = time.AfterFunc(w.opts.Debounce, w.reload)
}

func (w *Watcher) reload() {
	w.mu.Lock()
	running := w.running
	w.mu.Unlock()
	if !running {
		return
	}

	cfg, _, err := Load(w.path)
	if err != nil {
		logging.Warn("ConfigWatcher", "Ignoring invalid configuration change: %v", err)
		if w.opts.OnError != nil {
			w.opts.OnError(err)
		}
		return
	}
	logging.Info("ConfigWatcher", "Reloaded configuration from %s", w.path)
	if w.opts.OnChange != nil {
		w.opts.OnChange(cfg)
	}
}

// Stop ends the watch. It is safe to call more than once.
func (w *Watcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running {
		return
	}
	w.running = false
	close(w.stopCh)
	if w.fs != nil {
		w.fs.Close()
	}

	w.debounceMu.Lock()
	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}
	w.debounceMu.Unlock()
}
