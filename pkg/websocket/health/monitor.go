// Package health tracks whether a stream is actually carrying data,
// independent of socket-level state. A connection whose socket looks open but
// delivers nothing is treated as dead once the data timeout elapses.
package health

import (
	"sync"
	"time"
)

// Stats are the cumulative counters for one monitor. Counters survive
// reconnects; only the timestamps are reset per session.
type Stats struct {
	TotalMessages   uint64    `json:"total_messages"`
	TotalReconnects uint64    `json:"total_reconnects"`
	TotalErrors     uint64    `json:"total_errors"`
	StartTime       time.Time `json:"start_time"`
	LastMessageTime time.Time `json:"last_message_time"`
}

// Report is a point-in-time snapshot with derived values.
type Report struct {
	Alive            bool    `json:"is_alive"`
	UptimeSeconds    float64 `json:"uptime_seconds"`
	IdleSeconds      float64 `json:"idle_seconds"`
	HealthPercentage float64 `json:"health_percentage"`
	Stats            Stats   `json:"stats"`
}

// Monitor decides liveness from inbound data flow. Every delivered frame is
// evidence of life; protocol frames (pong, subscription acks) do not count,
// which is what lets the monitor catch a link that is up but silent.
type Monitor struct {
	timeout          time.Duration
	warningThreshold time.Duration

	mu     sync.Mutex
	stats  Stats
	warned bool
}

// NewMonitor builds a monitor with the given data timeout. A zero
// warningThreshold defaults to timeout/2.
func NewMonitor(timeout, warningThreshold time.Duration) *Monitor {
	if warningThreshold <= 0 || warningThreshold >= timeout {
		warningThreshold = timeout / 2
	}
	now := time.Now()
	return &Monitor{
		timeout:          timeout,
		warningThreshold: warningThreshold,
		stats: Stats{
			StartTime:       now,
			LastMessageTime: now,
		},
	}
}

// OnMessage records one delivered frame and clears the warning latch.
func (m *Monitor) OnMessage() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stats.LastMessageTime = time.Now()
	m.stats.TotalMessages++
	m.warned = false
}

// OnError records one error observed at the transport boundary.
func (m *Monitor) OnError() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stats.TotalErrors++
}

// OnReconnect records one reconnect attempt.
func (m *Monitor) OnReconnect() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stats.TotalReconnects++
}

// IsAlive reports whether data arrived within the timeout window.
func (m *Monitor) IsAlive() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return time.Since(m.stats.LastMessageTime) < m.timeout
}

// Warning returns true at most once per idle stretch, when the stream has
// been silent past the warning threshold but not yet past the timeout. The
// latch is cleared by the next delivered frame.
func (m *Monitor) Warning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	idle := time.Since(m.stats.LastMessageTime)
	if idle >= m.warningThreshold && idle < m.timeout && !m.warned {
		m.warned = true
		return true
	}
	return false
}

// Reset restarts the idle window for a fresh session. Counters are preserved
// so observers see cumulative history across reconnects.
func (m *Monitor) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stats.LastMessageTime = time.Now()
	m.warned = false
}

// Report returns a consistent snapshot with derived values.
func (m *Monitor) Report() Report {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	idle := now.Sub(m.stats.LastMessageTime).Seconds()
	pct := (1 - idle/m.timeout.Seconds()) * 100
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}

	return Report{
		Alive:            idle < m.timeout.Seconds(),
		UptimeSeconds:    now.Sub(m.stats.StartTime).Seconds(),
		IdleSeconds:      idle,
		HealthPercentage: pct,
		Stats:            m.stats,
	}
}

// Timeout exposes the configured data timeout for log lines.
func (m *Monitor) Timeout() time.Duration {
	return m.timeout
}
