package connection

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	hl "github.com/sonirico/go-hyperliquid"
	"go.uber.org/zap"

	"github.com/zhajingwen/strong-hyperliquid-websocket/pkg/hyperliquid"
	"github.com/zhajingwen/strong-hyperliquid-websocket/pkg/websocket/health"
	"github.com/zhajingwen/strong-hyperliquid-websocket/pkg/websocket/security"
)

// session owns one physical connection, from dial to teardown. The supervisor
// creates a fresh session per connect cycle and never reuses one: any
// transport error, liveness failure or explicit stop ends the session for
// good and the next cycle starts from a clean slate.
type session struct {
	id       string
	cfg      Config
	logger   *zap.Logger
	dialer   WebSocketDialer
	monitor  *health.Monitor
	limiter  security.RateLimiter
	valid    security.FrameValidator
	callback MessageCallback

	// conn is written once in open, before any worker starts.
	conn WebSocketConn

	ready         atomic.Bool
	readerStarted atomic.Bool
	pingStarted   atomic.Bool

	stopCh     chan struct{}
	stopOnce   sync.Once
	readerDone chan struct{}
	pingDone   chan struct{}

	// writeMu serializes frame writes; gorilla allows one writer at a time.
	writeMu sync.Mutex

	mu      sync.Mutex
	active  map[string]int // Subscription.Key() -> locally assigned id
	subSeq  int
	termErr error
}

func newSession(
	cfg Config,
	logger *zap.Logger,
	dialer WebSocketDialer,
	monitor *health.Monitor,
	limiter security.RateLimiter,
	valid security.FrameValidator,
	callback MessageCallback,
) *session {
	id := uuid.NewString()
	return &session{
		id:         id,
		cfg:        cfg,
		logger:     logger.With(zap.String("session_id", id)),
		dialer:     dialer,
		monitor:    monitor,
		limiter:    limiter,
		valid:      valid,
		callback:   callback,
		stopCh:     make(chan struct{}),
		readerDone: make(chan struct{}),
		pingDone:   make(chan struct{}),
		active:     make(map[string]int),
	}
}

// open dials the endpoint and starts the frame reader. It returns within the
// connect deadline: the dial runs on a worker that is abandoned on expiry
// (its late connection, if any, is closed).
func (s *session) open(ctx context.Context, endpoint string) error {
	dialCtx, cancel := context.WithTimeout(ctx, s.cfg.ConnectDeadline)
	defer cancel()

	type dialResult struct {
		conn WebSocketConn
		err  error
	}
	resultCh := make(chan dialResult, 1)

	go func() {
		conn, _, err := s.dialer.DialContext(dialCtx, endpoint, nil)
		resultCh <- dialResult{conn: conn, err: err}
	}()

	select {
	case r := <-resultCh:
		if r.err != nil {
			return fmt.Errorf("dial %s: %w", endpoint, r.err)
		}
		s.conn = r.conn
	case <-dialCtx.Done():
		go func() {
			if r := <-resultCh; r.conn != nil {
				_ = r.conn.Close()
			}
		}()
		return &TimeoutError{Op: "open", Deadline: s.cfg.ConnectDeadline}
	}

	s.conn.SetReadLimit(s.cfg.MaxFrameSize)
	s.ready.Store(true)
	s.readerStarted.Store(true)
	go s.readLoop()

	s.logger.Debug("socket open", zap.String("endpoint", endpoint))
	return nil
}

// subscribe serializes and sends one subscribe frame under the deadline. A
// successful send is a successful subscription: the venue sends no per-channel
// ack, the next data frame is the implicit confirmation.
func (s *session) subscribe(sub hyperliquid.Subscription, deadline time.Duration) (int, error) {
	frame, err := hyperliquid.SubscribeFrame(sub)
	if err != nil {
		return 0, err
	}

	if err := s.send(frame, "subscribe", deadline); err != nil {
		return 0, err
	}

	s.mu.Lock()
	s.subSeq++
	id := s.subSeq
	s.active[sub.Key()] = id
	s.mu.Unlock()

	s.logger.Debug("subscribed", zap.String("subscription", sub.String()), zap.Int("id", id))
	return id, nil
}

// startPing launches the keepalive producer. The wait is event-based: a stop
// signal interrupts it immediately, never after a full interval.
func (s *session) startPing(interval time.Duration) {
	s.pingStarted.Store(true)
	go s.pingLoop(interval)
}

func (s *session) pingLoop(interval time.Duration) {
	defer close(s.pingDone)

	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-timer.C:
		}

		if err := s.send(hyperliquid.PingFrame(), "ping", s.cfg.SubscribeDeadline); err != nil {
			if !s.stopping() {
				s.fail(fmt.Errorf("ping: %w", err))
			}
			return
		}
		timer.Reset(interval)
	}
}

// send writes one text frame on a worker bounded by the deadline. The write
// deadline on the connection is set as well so a healthy transport aborts on
// its own; the select is what guarantees the caller returns regardless.
func (s *session) send(frame []byte, op string, deadline time.Duration) error {
	if !s.limiter.Allow() {
		return fmt.Errorf("%s: outbound rate limit exceeded", op)
	}

	done := make(chan error, 1)
	go func() {
		s.writeMu.Lock()
		defer s.writeMu.Unlock()
		_ = s.conn.SetWriteDeadline(time.Now().Add(deadline))
		done <- s.conn.WriteMessage(websocket.TextMessage, frame)
	}()

	timer := time.NewTimer(deadline)
	defer timer.Stop()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("%s send: %w", op, err)
		}
		return nil
	case <-timer.C:
		return &TimeoutError{Op: op, Deadline: deadline}
	}
}

// readLoop pumps inbound frames until the socket dies or the session stops.
// Its termination is driven by socket closure: close() closes the socket to
// unwedge a blocked read.
func (s *session) readLoop() {
	defer close(s.readerDone)
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("frame reader panic", zap.Any("panic", r))
			s.fail(fmt.Errorf("reader panic: %v", r))
		}
	}()

	for {
		_, frame, err := s.conn.ReadMessage()
		if err != nil {
			if s.stopping() {
				return
			}
			s.monitor.OnError()
			s.fail(fmt.Errorf("read: %w", err))
			return
		}
		s.handleFrame(frame)
	}
}

func (s *session) handleFrame(frame []byte) {
	if err := s.valid.ValidateFrame(frame); err != nil {
		s.logger.Warn("dropping invalid frame",
			zap.Error(err),
			zap.Int("bytes", len(frame)))
		return
	}

	var envelope struct {
		Channel string          `json:"channel"`
		Data    json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(frame, &envelope); err != nil {
		s.logger.Warn("dropping undecodable frame", zap.Error(err))
		return
	}

	// Venue bookkeeping frames never reach the callback and do not count
	// as data flow; only real channel traffic keeps the stream alive.
	switch envelope.Channel {
	case hyperliquid.ChannelPong:
		return
	case hyperliquid.ChannelSubscriptionResponse:
		s.logger.Debug("subscription acknowledged", zap.ByteString("data", envelope.Data))
		return
	}

	s.monitor.OnMessage()
	s.deliver(hl.WSMessage{Channel: envelope.Channel, Data: envelope.Data})
}

// deliver invokes the application callback. A panicking callback is logged
// and contained; it never terminates the reader.
func (s *session) deliver(msg hl.WSMessage) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("message callback panic",
				zap.Any("panic", r),
				zap.String("channel", msg.Channel))
		}
	}()
	s.callback(msg)
}

// fail records the first terminal error and tears the socket down so the
// peer worker unblocks. The supervisor notices on its next health tick.
func (s *session) fail(err error) {
	s.mu.Lock()
	if s.termErr == nil {
		s.termErr = err
	}
	s.mu.Unlock()
	s.ready.Store(false)
	s.signalStop()
}

func (s *session) signalStop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
		if s.conn != nil {
			_ = s.conn.Close()
		}
	})
}

func (s *session) stopping() bool {
	select {
	case <-s.stopCh:
		return true
	default:
		return false
	}
}

// close tears the session down and joins its workers, returning within the
// deadline even if the socket is wedged: a worker that does not exit in time
// is abandoned.
func (s *session) close(deadline time.Duration) {
	s.ready.Store(false)
	s.signalStop()

	timer := time.NewTimer(deadline)
	defer timer.Stop()

	if s.readerStarted.Load() {
		select {
		case <-s.readerDone:
		case <-timer.C:
			s.logger.Warn("abandoning frame reader past close deadline")
			return
		}
	}
	if s.pingStarted.Load() {
		select {
		case <-s.pingDone:
		case <-timer.C:
			s.logger.Warn("abandoning ping worker past close deadline")
			return
		}
	}

	s.logger.Debug("session closed",
		zap.Int("active_subscriptions", s.activeCount()))
}

// isSocketAlive is the composite liveness probe: the ready signal is set, the
// reader is still running, no terminal error was recorded, and the socket
// handle answers a non-blocking query. Any single failure means dead; this is
// what catches zombie connections whose socket object still looks plausible.
func (s *session) isSocketAlive() bool {
	if s == nil || !s.ready.Load() {
		return false
	}

	select {
	case <-s.readerDone:
		return false
	default:
	}

	s.mu.Lock()
	terminal := s.termErr
	s.mu.Unlock()
	if terminal != nil {
		return false
	}

	if s.conn == nil {
		return false
	}
	if err := s.conn.Probe(); err != nil {
		s.logger.Debug("socket probe failed", zap.Error(err))
		return false
	}

	return true
}

func (s *session) activeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}

func (s *session) terminalError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.termErr
}
