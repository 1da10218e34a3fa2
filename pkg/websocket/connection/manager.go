package connection

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	hl "github.com/sonirico/go-hyperliquid"
	"go.uber.org/zap"

	"github.com/zhajingwen/strong-hyperliquid-websocket/pkg/hyperliquid"
	"github.com/zhajingwen/strong-hyperliquid-websocket/pkg/websocket/health"
	"github.com/zhajingwen/strong-hyperliquid-websocket/pkg/websocket/security"
)

// MessageCallback receives every delivered data frame, in socket order,
// inline on the frame-reader goroutine. Heavy work belongs in the caller's
// own queues.
type MessageCallback func(msg hl.WSMessage)

// StateCallback observes state transitions. It is invoked synchronously and
// must not block.
type StateCallback func(state ConnectionState)

// Snapshot is the read-only observation surface of a Manager.
type Snapshot struct {
	State                 ConnectionState `json:"-"`
	StateName             string          `json:"state"`
	Endpoint              string          `json:"endpoint"`
	Health                health.Report   `json:"health"`
	Backoff               BackoffSnapshot `json:"backoff"`
	IntendedSubscriptions int             `json:"intended_subscriptions"`
	ActiveSubscriptions   int             `json:"active_subscriptions"`
}

// Manager supervises one logical subscription session to the venue's
// streaming endpoint: it owns the state machine, the intended subscription
// set, the health monitor and the backoff policy, and it creates, observes
// and replaces transport sessions. At most one transport session is live at
// any time.
//
// A Manager is single-use: once Start has returned (after Stop or after the
// retry budget is exhausted) it must be reconstructed, not restarted.
type Manager struct {
	cfg      Config
	endpoint string
	intended []hyperliquid.Subscription
	callback MessageCallback
	onState  StateCallback

	logger  *zap.Logger
	dialer  WebSocketDialer
	monitor *health.Monitor
	backoff *BackoffPolicy
	limiter security.RateLimiter
	valid   security.FrameValidator

	stateMu sync.RWMutex
	state   ConnectionState

	runMu   sync.Mutex
	running bool

	ctx      context.Context
	cancel   context.CancelFunc
	stopCh   chan struct{}
	stopOnce sync.Once

	sessMu sync.Mutex
	sess   *session

	healthLogMark uint64
}

// NewManager builds a supervisor for the given intended subscription set.
// A nil dialer selects the production gorilla/websocket dialer; tests inject
// their own. The endpoint may be an http(s) base URL; it is normalized to the
// venue's streaming endpoint up front.
func NewManager(
	cfg Config,
	intended []hyperliquid.Subscription,
	callback MessageCallback,
	logger *zap.Logger,
	dialer WebSocketDialer,
) (*Manager, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if callback == nil {
		return nil, fmt.Errorf("message callback is required")
	}
	for _, sub := range intended {
		if err := sub.Validate(); err != nil {
			return nil, fmt.Errorf("subscription %s: %w", sub, err)
		}
	}

	endpoint, err := hyperliquid.NormalizeEndpoint(cfg.Endpoint)
	if err != nil {
		return nil, err
	}

	if logger == nil {
		logger = zap.NewNop()
	}
	if dialer == nil {
		dialer = NewGorillaDialer(cfg)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Manager{
		cfg:      cfg,
		endpoint: endpoint,
		intended: append([]hyperliquid.Subscription(nil), intended...),
		callback: callback,
		logger:   logger,
		dialer:   dialer,
		monitor:  health.NewMonitor(cfg.DataTimeout, cfg.WarningThreshold),
		backoff:  NewBackoffPolicy(cfg.Backoff),
		limiter:  security.NewRateLimiter(cfg.RateLimitCapacity, cfg.RateLimitRefill),
		valid: security.NewFrameValidator(security.ValidationConfig{
			MaxFrameSize: int(cfg.MaxFrameSize),
			TypeField:    "channel",
		}),
		state:  StateDisconnected,
		ctx:    ctx,
		cancel: cancel,
		stopCh: make(chan struct{}),
	}, nil
}

// SetStateCallback registers an observer for state transitions. Call before
// Start.
func (m *Manager) SetStateCallback(cb StateCallback) {
	m.onState = cb
}

// Start runs the supervisor loop and blocks until Stop is called or the
// retry budget is exhausted. It returns nil on a clean stop and
// ErrRetriesExhausted when the manager ends in the failed state.
func (m *Manager) Start() error {
	if !m.beginRun() {
		return ErrAlreadyRunning
	}
	defer m.endRun()

	m.logger.Info("starting websocket session manager",
		zap.String("endpoint", m.endpoint),
		zap.Int("subscriptions", len(m.intended)))

	for {
		if m.stopRequested() {
			m.transition(StateDisconnected)
			return nil
		}

		m.transition(StateConnecting)
		sess, reason, err := m.establish()
		if err == nil {
			m.monitor.Reset()
			m.backoff.Reset()
			m.transition(StateConnected)
			m.logger.Info("connected",
				zap.String("endpoint", m.endpoint),
				zap.Int("subscriptions", len(m.intended)))

			sess.startPing(m.cfg.PingInterval)
			reason = m.observe(sess)
			m.teardown(sess)

			if reason == ReasonStopRequested {
				m.transition(StateDisconnected)
				m.logger.Info("stopped", zap.String("endpoint", m.endpoint))
				return nil
			}
		} else {
			m.monitor.OnError()
			m.logger.Warn("session establishment failed",
				zap.String("reason", string(reason)),
				zap.Error(err))
		}

		m.transition(StateReconnecting)
		m.monitor.OnReconnect()

		delay := m.backoff.NextDelay()
		m.backoff.RecordAttempt()
		if !m.backoff.ShouldRetry() {
			m.transition(StateFailed)
			m.logFinalStats()
			return ErrRetriesExhausted
		}

		snap := m.backoff.Snapshot()
		m.logger.Warn("reconnecting",
			zap.String("reason", string(reason)),
			zap.Int("attempt", snap.Attempt),
			zap.Int("max_attempts", snap.MaxAttempts),
			zap.Duration("delay", delay))

		if !m.sleep(delay) {
			m.transition(StateDisconnected)
			return nil
		}
	}
}

// Stop requests termination. The supervisor observes it at its next
// cancellable wait; an in-flight dial is cancelled immediately.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		close(m.stopCh)
		m.cancel()
	})
}

// GetState returns the current lifecycle state.
func (m *Manager) GetState() ConnectionState {
	m.stateMu.RLock()
	defer m.stateMu.RUnlock()
	return m.state
}

// IsHealthy reports whether the manager is connected and data is flowing.
func (m *Manager) IsHealthy() bool {
	return m.GetState() == StateConnected && m.monitor.IsAlive()
}

// Stats returns a consistent observation snapshot. It keeps answering after
// the manager has failed or stopped.
func (m *Manager) Stats() Snapshot {
	state := m.GetState()

	active := 0
	m.sessMu.Lock()
	if m.sess != nil {
		active = m.sess.activeCount()
	}
	m.sessMu.Unlock()

	return Snapshot{
		State:                 state,
		StateName:             state.String(),
		Endpoint:              m.endpoint,
		Health:                m.monitor.Report(),
		Backoff:               m.backoff.Snapshot(),
		IntendedSubscriptions: len(m.intended),
		ActiveSubscriptions:   active,
	}
}

// establish runs one connect cycle: dial, subscribe the whole intended set,
// then recheck the socket. Any failure rolls back the entire session; no
// partially subscribed session ever reaches the connected state.
func (m *Manager) establish() (*session, DisconnectReason, error) {
	sess := newSession(m.cfg, m.logger, m.dialer, m.monitor, m.limiter, m.valid, m.callback)
	m.setSession(sess)

	if err := sess.open(m.ctx, m.endpoint); err != nil {
		m.teardown(sess)
		var timeout *TimeoutError
		if errors.As(err, &timeout) {
			return nil, ReasonConnectTimeout, err
		}
		return nil, ReasonConnectFailed, err
	}

	for _, sub := range m.intended {
		if _, err := sess.subscribe(sub, m.cfg.SubscribeDeadline); err != nil {
			m.teardown(sess)
			return nil, ReasonSubscribeFailed, fmt.Errorf("subscribe %s: %w", sub, err)
		}
	}

	// The socket may have died mid-burst; a send into a half-open
	// connection can still report success.
	if !sess.isSocketAlive() {
		m.teardown(sess)
		return nil, ReasonSocketDead, fmt.Errorf("socket died during subscription")
	}

	return sess, "", nil
}

// observe is the monitoring loop of a connected session. It returns the
// reason the session must end.
func (m *Manager) observe(sess *session) DisconnectReason {
	ticker := time.NewTicker(m.cfg.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return ReasonStopRequested
		case <-ticker.C:
			if !sess.isSocketAlive() {
				if err := sess.terminalError(); err != nil {
					m.logger.Warn("transport error ended session", zap.Error(err))
				}
				return ReasonSocketDead
			}
			if !m.monitor.IsAlive() {
				return ReasonHealthDead
			}
			if m.monitor.Warning() {
				report := m.monitor.Report()
				m.logger.Warn("data stream idle",
					zap.Float64("idle_seconds", report.IdleSeconds),
					zap.Duration("data_timeout", m.monitor.Timeout()))
			}
			m.maybeLogHealth()
		}
	}
}

func (m *Manager) teardown(sess *session) {
	sess.close(m.cfg.CloseDeadline)
	m.setSession(nil)
}

func (m *Manager) setSession(sess *session) {
	m.sessMu.Lock()
	m.sess = sess
	m.sessMu.Unlock()
}

// transition moves the state machine and notifies the observer. Repeated
// transitions into the current state are dropped. The callback runs outside
// any lock; a panicking callback is contained.
func (m *Manager) transition(next ConnectionState) {
	m.stateMu.Lock()
	if m.state == next {
		m.stateMu.Unlock()
		return
	}
	prev := m.state
	m.state = next
	m.stateMu.Unlock()

	m.logger.Info("connection state changed",
		zap.String("from", prev.String()),
		zap.String("to", next.String()))

	if cb := m.onState; cb != nil {
		func() {
			defer func() {
				if r := recover(); r != nil {
					m.logger.Error("state callback panic", zap.Any("panic", r))
				}
			}()
			cb(next)
		}()
	}
}

// sleep waits out the backoff delay; a stop request interrupts it. Returns
// false when interrupted.
func (m *Manager) sleep(d time.Duration) bool {
	if d <= 0 {
		return !m.stopRequested()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-m.stopCh:
		return false
	case <-timer.C:
		return true
	}
}

func (m *Manager) stopRequested() bool {
	select {
	case <-m.stopCh:
		return true
	default:
		return false
	}
}

// maybeLogHealth emits a snapshot once per HealthLogEvery delivered messages.
func (m *Manager) maybeLogHealth() {
	report := m.monitor.Report()
	mark := report.Stats.TotalMessages / m.cfg.HealthLogEvery
	if mark == 0 || mark == m.healthLogMark {
		return
	}
	m.healthLogMark = mark

	m.logger.Info("health snapshot",
		zap.Uint64("total_messages", report.Stats.TotalMessages),
		zap.Uint64("total_reconnects", report.Stats.TotalReconnects),
		zap.Uint64("total_errors", report.Stats.TotalErrors),
		zap.Float64("uptime_seconds", report.UptimeSeconds),
		zap.Float64("idle_seconds", report.IdleSeconds),
		zap.Float64("health_percentage", report.HealthPercentage))
}

func (m *Manager) logFinalStats() {
	report := m.monitor.Report()
	m.logger.Error("retry budget exhausted, giving up",
		zap.Int("max_attempts", m.cfg.Backoff.MaxAttempts),
		zap.Uint64("total_messages", report.Stats.TotalMessages),
		zap.Uint64("total_reconnects", report.Stats.TotalReconnects),
		zap.Uint64("total_errors", report.Stats.TotalErrors),
		zap.Float64("uptime_seconds", report.UptimeSeconds))
}

func (m *Manager) beginRun() bool {
	m.runMu.Lock()
	defer m.runMu.Unlock()
	if m.running {
		return false
	}
	m.running = true
	return true
}

func (m *Manager) endRun() {
	m.runMu.Lock()
	m.running = false
	m.runMu.Unlock()
}
