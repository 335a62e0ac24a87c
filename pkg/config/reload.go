package config

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// reloadDebounce coalesces the burst of fsnotify events a single save
// typically produces (write + chmod + rename on some editors) into one
// reload, while still detecting changes within about a second.
const reloadDebounce = 200 * time.Millisecond

// Manager holds the active, validated Config snapshot and watches its
// source file for changes. Readers always see a complete, validated
// Config: a reload that fails validation logs the error and leaves the
// previous snapshot in place rather than ever applying a partially
// invalid config.
type Manager struct {
	path string

	current atomic.Pointer[Config]

	mu        sync.Mutex
	listeners []func(*Config)

	watcher *fsnotify.Watcher
	done    chan struct{}
}

// Initialize loads path once and starts watching it for changes. Callers
// that don't need hot-reload (tests, one-shot tools) can call Load
// directly instead.
func Initialize(path string) (*Manager, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	m := &Manager{path: path, done: make(chan struct{})}
	m.current.Store(cfg)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		slog.Warn("config: file watcher unavailable, hot-reload disabled", "error", err)
		return m, nil
	}
	if err := watcher.Add(path); err != nil {
		slog.Warn("config: could not watch config file, hot-reload disabled", "path", path, "error", err)
		_ = watcher.Close()
		return m, nil
	}
	m.watcher = watcher

	go m.watch()
	return m, nil
}

// Current returns the active Config snapshot. Safe for concurrent use and
// safe to retain: the returned pointer is never mutated, only replaced.
func (m *Manager) Current() *Config {
	return m.current.Load()
}

// OnReload registers fn to be called, with the newly-validated Config,
// every time a reload succeeds. fn is not called for the initial load.
func (m *Manager) OnReload(fn func(*Config)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
}

// Close stops the file watcher.
func (m *Manager) Close() error {
	close(m.done)
	if m.watcher != nil {
		return m.watcher.Close()
	}
	return nil
}

func (m *Manager) watch() {
	var pending *time.Timer
	reload := func() {
		cfg, err := Load(m.path)
		if err != nil {
			slog.Error("config: reload failed, keeping previous snapshot", "path", m.path, "error", err)
			return
		}
		m.current.Store(cfg)
		slog.Info("config: reloaded", "path", m.path, "strictness", cfg.Strictness)

		m.mu.Lock()
		listeners := append([]func(*Config){}, m.listeners...)
		m.mu.Unlock()
		for _, fn := range listeners {
			fn(cfg)
		}
	}

	for {
		select {
		case <-m.done:
			if pending != nil {
				pending.Stop()
			}
			return
		case event, ok := <-m.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if pending != nil {
				pending.Stop()
			}
			pending = time.AfterFunc(reloadDebounce, reload)
		case err, ok := <-m.watcher.Errors:
			if !ok {
				return
			}
			slog.Error("config: watcher error", "error", err)
		}
	}
}
