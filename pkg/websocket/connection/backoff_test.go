package connection_test

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/zhajingwen/strong-hyperliquid-websocket/pkg/websocket/connection"
)

var _ = Describe("BackoffPolicy", func() {
	newPolicy := func(maxAttempts int, jitter float64) *connection.BackoffPolicy {
		return connection.NewBackoffPolicy(connection.BackoffConfig{
			InitialDelay:   time.Second,
			MaxDelay:       60 * time.Second,
			Multiplier:     2.0,
			MaxAttempts:    maxAttempts,
			JitterFraction: jitter,
		})
	}

	Describe("NextDelay without jitter", func() {
		It("doubles per attempt until the cap, then plateaus", func() {
			policy := newPolicy(0, 0)

			expected := []time.Duration{
				1 * time.Second,
				2 * time.Second,
				4 * time.Second,
				8 * time.Second,
				16 * time.Second,
				32 * time.Second,
				60 * time.Second,
				60 * time.Second,
			}

			for _, want := range expected {
				Expect(policy.NextDelay()).To(Equal(want))
				policy.RecordAttempt()
			}
		})

		It("is monotonically non-decreasing", func() {
			policy := newPolicy(0, 0)

			previous := time.Duration(0)
			for i := 0; i < 12; i++ {
				delay := policy.NextDelay()
				Expect(delay).To(BeNumerically(">=", previous))
				previous = delay
				policy.RecordAttempt()
			}
		})

		It("yields the initial delay at attempt zero", func() {
			Expect(newPolicy(0, 0).NextDelay()).To(Equal(time.Second))
		})
	})

	Describe("NextDelay with jitter", func() {
		It("stays within the jitter envelope and is never negative", func() {
			policy := newPolicy(0, 0.25)
			policy.RecordAttempt()
			policy.RecordAttempt() // base delay 4s

			for i := 0; i < 200; i++ {
				delay := policy.NextDelay()
				Expect(delay).To(BeNumerically(">=", 3*time.Second))
				Expect(delay).To(BeNumerically("<=", 5*time.Second))
			}
		})
	})

	Describe("ShouldRetry", func() {
		It("refuses once the attempt budget is spent", func() {
			policy := newPolicy(3, 0)

			Expect(policy.ShouldRetry()).To(BeTrue())
			policy.RecordAttempt()
			policy.RecordAttempt()
			Expect(policy.ShouldRetry()).To(BeTrue())
			policy.RecordAttempt()
			Expect(policy.ShouldRetry()).To(BeFalse())
		})

		It("never refuses with an unbounded budget", func() {
			policy := newPolicy(0, 0)

			for i := 0; i < 100; i++ {
				policy.RecordAttempt()
			}
			Expect(policy.ShouldRetry()).To(BeTrue())
		})
	})

	Describe("Reset", func() {
		It("restarts the delay sequence from the initial delay", func() {
			policy := newPolicy(10, 0)

			policy.RecordAttempt()
			policy.RecordAttempt()
			policy.RecordAttempt()
			Expect(policy.NextDelay()).To(Equal(8 * time.Second))

			policy.Reset()
			Expect(policy.NextDelay()).To(Equal(time.Second))
			Expect(policy.ShouldRetry()).To(BeTrue())
		})
	})

	Describe("Snapshot", func() {
		It("reports the attempt count and the un-jittered next delay", func() {
			policy := newPolicy(5, 0.25)
			policy.RecordAttempt()

			snap := policy.Snapshot()
			Expect(snap.Attempt).To(Equal(1))
			Expect(snap.MaxAttempts).To(Equal(5))
			Expect(snap.NextDelay).To(Equal(2 * time.Second))
			Expect(snap.LastAttemptTime).ToNot(BeZero())
		})
	})
})
