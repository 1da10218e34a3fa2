package connection_test

import (
	"errors"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	hl "github.com/sonirico/go-hyperliquid"

	"github.com/zhajingwen/strong-hyperliquid-websocket/pkg/hyperliquid"
	"github.com/zhajingwen/strong-hyperliquid-websocket/pkg/websocket/connection"
)

var _ = Describe("Manager - Failure Handling", func() {
	newManager := func(cfg connection.Config, subs []hyperliquid.Subscription, cb connection.MessageCallback, dialer *fakeDialer) (*connection.Manager, *stateRecorder, chan error) {
		if cb == nil {
			cb = discardMessages
		}
		mgr, err := connection.NewManager(cfg, subs, cb, nil, dialer)
		Expect(err).ToNot(HaveOccurred())

		recorder := &stateRecorder{}
		mgr.SetStateCallback(recorder.record)

		errCh := make(chan error, 1)
		done := make(chan struct{})
		go func() {
			errCh <- mgr.Start()
			close(done)
		}()
		DeferCleanup(func() {
			mgr.Stop()
			Eventually(done, "5s").Should(BeClosed())
		})
		return mgr, recorder, errCh
	}

	Describe("connect deadline enforcement", func() {
		It("abandons a wedged dial, retries, and fails within a bounded time", func() {
			cfg := testConfig()
			cfg.ConnectDeadline = 100 * time.Millisecond

			dialer := &fakeDialer{wedged: true}
			start := time.Now()
			mgr, recorder, errCh := newManager(cfg, nil, nil, dialer)

			var runErr error
			Eventually(errCh, "5s").Should(Receive(&runErr))
			Expect(runErr).To(MatchError(connection.ErrRetriesExhausted))

			// Three deadlined attempts plus backoff sleeps, nowhere near a hang.
			Expect(time.Since(start)).To(BeNumerically("<", 3*time.Second))
			Expect(dialer.dialCount()).To(Equal(3))
			Expect(mgr.GetState()).To(Equal(connection.StateFailed))
			Expect(recorder.list()).To(Equal([]connection.ConnectionState{
				connection.StateConnecting,
				connection.StateReconnecting,
				connection.StateConnecting,
				connection.StateReconnecting,
				connection.StateConnecting,
				connection.StateReconnecting,
				connection.StateFailed,
			}))
		})

		It("keeps answering stats after entering the failed state", func() {
			cfg := testConfig()
			cfg.ConnectDeadline = 50 * time.Millisecond
			cfg.Backoff.MaxAttempts = 1

			dialer := &fakeDialer{dialErr: errors.New("connection refused")}
			mgr, _, errCh := newManager(cfg, nil, nil, dialer)

			Eventually(errCh, "5s").Should(Receive(MatchError(connection.ErrRetriesExhausted)))

			snap := mgr.Stats()
			Expect(snap.StateName).To(Equal("failed"))
			Expect(snap.Health.Stats.TotalErrors).To(BeNumerically(">=", 1))
			Expect(snap.Health.Stats.TotalReconnects).To(BeNumerically(">=", 1))
		})
	})

	Describe("subscribe failure", func() {
		It("rolls back the whole session without ever reporting connected", func() {
			cfg := testConfig()
			cfg.Backoff.MaxAttempts = 1

			conn := newFakeConn()
			conn.writeHook = func(writeCount int, _ []byte) error {
				if writeCount == 2 {
					return errors.New("broken pipe")
				}
				return nil
			}
			dialer := &fakeDialer{}
			dialer.queue(conn)

			subs := []hyperliquid.Subscription{
				hyperliquid.AllMids(),
				hyperliquid.Trades("BTC"),
				hyperliquid.Trades("ETH"),
			}
			mgr, recorder, errCh := newManager(cfg, subs, nil, dialer)

			Eventually(errCh, "5s").Should(Receive(MatchError(connection.ErrRetriesExhausted)))

			Expect(recorder.contains(connection.StateConnected)).To(BeFalse())
			Expect(conn.isClosed()).To(BeTrue())
			Expect(mgr.GetState()).To(Equal(connection.StateFailed))
		})
	})

	Describe("data stall", func() {
		It("declares a silent stream dead and reconnects", func() {
			cfg := testConfig()
			cfg.DataTimeout = 120 * time.Millisecond
			cfg.WarningThreshold = 60 * time.Millisecond
			cfg.HealthCheckInterval = 20 * time.Millisecond
			cfg.Backoff.MaxAttempts = 0

			stalled := newFakeConn()
			replacement := newFakeConn()
			dialer := &fakeDialer{}
			dialer.queue(stalled, replacement)

			subs := []hyperliquid.Subscription{hyperliquid.AllMids()}
			mgr, _, _ := newManager(cfg, subs, nil, dialer)

			// The first session never delivers a frame; liveness must trip.
			Eventually(dialer.dialCount, "5s", "10ms").Should(BeNumerically(">=", 2))
			Eventually(func() uint64 {
				return mgr.Stats().Health.Stats.TotalReconnects
			}, "5s", "10ms").Should(BeNumerically(">=", 1))

			Eventually(mgr.GetState, "5s", "10ms").Should(Equal(connection.StateConnected))
			Expect(stalled.isClosed()).To(BeTrue())
		})
	})

	Describe("zombie socket", func() {
		It("reconnects when the socket probe fails despite a quiet close", func() {
			cfg := testConfig()
			cfg.Backoff.MaxAttempts = 0

			zombie := newFakeConn()
			replacement := newFakeConn()
			dialer := &fakeDialer{}
			dialer.queue(zombie, replacement)

			mgr, _, _ := newManager(cfg, []hyperliquid.Subscription{hyperliquid.AllMids()}, nil, dialer)

			Eventually(mgr.GetState, "2s", "10ms").Should(Equal(connection.StateConnected))
			Expect(dialer.dialCount()).To(Equal(1))

			zombie.setProbeErr(errors.New("bad file descriptor"))

			Eventually(dialer.dialCount, "5s", "10ms").Should(Equal(2))
			Eventually(mgr.GetState, "5s", "10ms").Should(Equal(connection.StateConnected))
		})
	})

	Describe("callback exceptions", func() {
		It("keeps the reader alive through panicking callbacks", func() {
			cfg := testConfig()

			conn := newFakeConn()
			dialer := &fakeDialer{}
			dialer.queue(conn)

			var calls atomic.Int64
			panicky := func(hl.WSMessage) {
				calls.Add(1)
				panic("application bug")
			}

			mgr, _, _ := newManager(cfg, []hyperliquid.Subscription{hyperliquid.AllMids()}, panicky, dialer)

			Eventually(mgr.GetState, "2s", "10ms").Should(Equal(connection.StateConnected))

			conn.deliver(`{"channel":"allMids","data":{}}`)
			conn.deliver(`{"channel":"allMids","data":{}}`)
			conn.deliver(`{"channel":"allMids","data":{}}`)

			Eventually(calls.Load, "2s", "10ms").Should(Equal(int64(3)))
			Expect(mgr.Stats().Health.Stats.TotalMessages).To(Equal(uint64(3)))
			Consistently(mgr.GetState, "200ms").Should(Equal(connection.StateConnected))
		})
	})

	Describe("empty intended set", func() {
		It("reaches connected and later trips the data-flow liveness check", func() {
			cfg := testConfig()
			cfg.DataTimeout = 100 * time.Millisecond
			cfg.WarningThreshold = 50 * time.Millisecond
			cfg.HealthCheckInterval = 20 * time.Millisecond
			cfg.Backoff.MaxAttempts = 0

			first := newFakeConn()
			second := newFakeConn()
			dialer := &fakeDialer{}
			dialer.queue(first, second)

			mgr, recorder, _ := newManager(cfg, nil, nil, dialer)

			Eventually(func() bool {
				return recorder.contains(connection.StateConnected)
			}, "2s", "10ms").Should(BeTrue())
			Expect(mgr.Stats().IntendedSubscriptions).To(BeZero())

			// No data will ever arrive; the configured timeout must reconnect.
			Eventually(dialer.dialCount, "5s", "10ms").Should(BeNumerically(">=", 2))
		})
	})

	Describe("reader termination", func() {
		It("treats a read error as a dead socket and reconnects", func() {
			cfg := testConfig()
			cfg.Backoff.MaxAttempts = 0

			dying := newFakeConn()
			replacement := newFakeConn()
			dialer := &fakeDialer{}
			dialer.queue(dying, replacement)

			mgr, _, _ := newManager(cfg, []hyperliquid.Subscription{hyperliquid.AllMids()}, nil, dialer)

			Eventually(mgr.GetState, "2s", "10ms").Should(Equal(connection.StateConnected))

			// Simulate the peer dropping the connection.
			_ = dying.Close()

			Eventually(dialer.dialCount, "5s", "10ms").Should(Equal(2))
			Eventually(mgr.GetState, "5s", "10ms").Should(Equal(connection.StateConnected))
			Eventually(func() uint64 {
				return mgr.Stats().Health.Stats.TotalReconnects
			}, "2s", "10ms").Should(BeNumerically(">=", 1))
		})
	})
})
