package hyperliquid

import (
	"context"
	"fmt"

	hl "github.com/sonirico/go-hyperliquid"
	"go.uber.org/zap"
)

// Metadata is a one-shot, deadlined client for the venue's REST info
// endpoint. It is deliberately independent of the WebSocket lifecycle: the
// session manager never calls it, so a slow or unreachable REST API can never
// stall the stream supervisor.
type Metadata struct {
	info   *hl.Info
	logger *zap.Logger
}

// NewMetadata builds a metadata client against the REST base URL
// (https://..., not the ws endpoint).
func NewMetadata(baseURL string, logger *zap.Logger) *Metadata {
	return &Metadata{
		info:   hl.NewInfo(baseURL, true, nil, nil),
		logger: logger,
	}
}

// Meta fetches the perpetuals universe. The SDK call runs on a worker
// goroutine and is abandoned when ctx expires.
func (m *Metadata) Meta(ctx context.Context) (*hl.Meta, error) {
	m.logger.Debug("fetching venue metadata", zap.String("op", "meta"))
	return callBounded(ctx, "meta", func() (*hl.Meta, error) {
		return m.info.Meta()
	})
}

// AllMids fetches the current mid price per asset.
func (m *Metadata) AllMids(ctx context.Context) (map[string]string, error) {
	m.logger.Debug("fetching venue metadata", zap.String("op", "allMids"))
	return callBounded(ctx, "allMids", func() (map[string]string, error) {
		return m.info.AllMids()
	})
}

// callBounded runs fn on a worker and returns whichever comes first: the
// result or ctx expiry. The worker is abandoned past the deadline; the
// underlying HTTP call finishes (or times out) on its own.
func callBounded[T any](ctx context.Context, op string, fn func() (T, error)) (T, error) {
	type result struct {
		val T
		err error
	}

	ch := make(chan result, 1)
	go func() {
		val, err := fn()
		ch <- result{val: val, err: err}
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			var zero T
			return zero, fmt.Errorf("fetch %s: %w", op, r.err)
		}
		return r.val, nil
	case <-ctx.Done():
		var zero T
		return zero, fmt.Errorf("fetch %s: %w", op, ctx.Err())
	}
}
