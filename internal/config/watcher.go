package config

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"pseudoflow/internal/logging"
)

// Watcher reloads the configuration file when it changes on disk and hands
// the fresh *Config to a callback. Rapid editor saves are debounced.
type Watcher struct {
	mu       sync.Mutex
	watcher  *fsnotify.Watcher
	path     string
	onReload func(*Config)
	debounce time.Duration
	lastSeen time.Time
	stopCh   chan struct{}
	doneCh   chan struct{}
	running  bool
}

// NewWatcher creates a watcher for the given config file path.
func NewWatcher(path string, onReload func(*Config)) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		watcher:  w,
		path:     path,
		onReload: onReload,
		debounce: 500 * time.Millisecond,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}, nil
}

// Start begins watching. Non-blocking; events are handled on a goroutine.
// Watching the parent directory survives editors that replace the file.
func (w *Watcher) Start() error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	if err := w.watcher.Add(filepath.Dir(w.path)); err != nil {
		return err
	}

	go w.loop()
	return nil
}

func (w *Watcher) loop() {
	defer close(w.doneCh)
	log := logging.Get(logging.CategoryBoot)

	for {
		select {
		case <-w.stopCh:
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != filepath.Clean(w.path) {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			if !w.pastDebounce() {
				continue
			}
			cfg, err := Load(w.path)
			if err != nil {
				log.Warn("config reload failed: %v", err)
				continue
			}
			log.Info("config reloaded: %s", w.path)
			w.onReload(cfg)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Warn("config watcher error: %v", err)
		}
	}
}

func (w *Watcher) pastDebounce() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	now := time.Now()
	if now.Sub(w.lastSeen) < w.debounce {
		return false
	}
	w.lastSeen = now
	return true
}

// Stop halts the watcher and waits for the event loop to exit. Idempotent.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	_ = w.watcher.Close()
	<-w.doneCh
}
