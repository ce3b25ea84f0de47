package config

import (
	"os"
	"sync/atomic"
	"time"
)

// Watcher polls a config file's mtime and atomically swaps the in-memory
// snapshot when it changes, per SPEC_FULL.md §9's "ambient/global state"
// design note: a request reads a pointer to the snapshot once and uses it
// for its entire lifetime.
type Watcher struct {
	path     string
	snapshot atomic.Pointer[Config]
	lastMod  time.Time
	stop     chan struct{}
}

// NewWatcher loads path once and starts polling it every interval for
// changes. If interval is zero, the spec's 2-second default is used.
func NewWatcher(path string, interval time.Duration) (*Watcher, error) {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	w := &Watcher{path: path, stop: make(chan struct{})}
	w.snapshot.Store(cfg)
	if st, err := os.Stat(path); err == nil {
		w.lastMod = st.ModTime()
	}
	go w.poll(interval)
	return w, nil
}

// Load returns the current config snapshot. Safe for concurrent use; the
// returned pointer is stable for the lifetime of one request.
func (w *Watcher) Load() *Config { return w.snapshot.Load() }

// Close stops the polling goroutine.
func (w *Watcher) Close() { close(w.stop) }

func (w *Watcher) poll(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-w.stop:
			return
		case <-ticker.C:
			st, err := os.Stat(w.path)
			if err != nil {
				continue
			}
			if !st.ModTime().After(w.lastMod) {
				continue
			}
			cfg, err := Load(w.path)
			if err != nil {
				continue
			}
			w.lastMod = st.ModTime()
			w.snapshot.Store(cfg)
		}
	}
}
