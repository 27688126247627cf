// Package shutdown signals graceful shutdown when the server sits idle,
// letting scale-to-zero platforms stop the machine between scrape runs.
package shutdown

import (
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"
	"time"
)

// WorkChecker reports whether background work is still in flight. The idle
// timer never fires while it returns true, so queued scrape jobs are not
// interrupted by a scale-down.
type WorkChecker func() bool

// IdleMonitor watches HTTP traffic and background work and closes its Idle
// channel once both have been quiet for the configured timeout.
type IdleMonitor struct {
	timeout   time.Duration
	logger    *slog.Logger
	inflight  atomic.Int64
	lastSeen  atomic.Int64 // unix nanos of the last observed activity
	idle      chan struct{}
	stop      chan struct{}
	skipPaths []string
	hasWork   WorkChecker
}

// IdleMonitorConfig configures an IdleMonitor. A zero Timeout disables
// monitoring entirely.
type IdleMonitorConfig struct {
	Timeout   time.Duration
	SkipPaths []string    // request paths that never count as activity
	HasWork   WorkChecker // optional, keeps the server up while jobs run
	Logger    *slog.Logger
}

func NewIdleMonitor(cfg IdleMonitorConfig) *IdleMonitor {
	m := &IdleMonitor{
		timeout:   cfg.Timeout,
		logger:    cfg.Logger,
		idle:      make(chan struct{}),
		stop:      make(chan struct{}),
		skipPaths: cfg.SkipPaths,
		hasWork:   cfg.HasWork,
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	m.touch()
	return m
}

// Start launches the monitoring loop. It is a no-op when the timeout is zero.
func (m *IdleMonitor) Start() {
	if m.timeout <= 0 {
		return
	}
	m.logger.Info("idle monitoring started", "timeout", m.timeout)
	go m.run()
}

// Stop ends monitoring without signaling idle.
func (m *IdleMonitor) Stop() {
	if m.timeout <= 0 {
		return
	}
	close(m.stop)
}

// Idle returns a channel that is closed when the idle timeout elapses.
func (m *IdleMonitor) Idle() <-chan struct{} {
	return m.idle
}

// Middleware counts requests as activity, skipping probe paths so health
// checks alone never keep the machine alive.
func (m *IdleMonitor) Middleware(next http.Handler) http.Handler {
	if m.timeout <= 0 {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		skip := false
		for _, p := range m.skipPaths {
			if strings.HasPrefix(r.URL.Path, p) {
				skip = true
				break
			}
		}
		if !skip {
			m.inflight.Add(1)
			m.touch()
			defer func() {
				m.inflight.Add(-1)
				m.touch()
			}()
		}
		next.ServeHTTP(w, r)
	})
}

func (m *IdleMonitor) touch() {
	m.lastSeen.Store(time.Now().UnixNano())
}

func (m *IdleMonitor) run() {
	interval := m.timeout / 4
	if interval < 5*time.Second {
		interval = 5 * time.Second
	}
	if interval > 30*time.Second {
		interval = 30 * time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			busy := m.inflight.Load() > 0
			if !busy && m.hasWork != nil {
				busy = m.hasWork()
			}
			if busy {
				// A busy tick resets the clock so the full grace period
				// applies again once the work drains.
				m.touch()
				continue
			}

			idleFor := time.Since(time.Unix(0, m.lastSeen.Load()))
			if idleFor >= m.timeout {
				m.logger.Info("idle timeout reached, requesting shutdown",
					"idle_for", idleFor,
					"timeout", m.timeout)
				close(m.idle)
				return
			}
		}
	}
}
