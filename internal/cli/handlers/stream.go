package handlers

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	hl "github.com/sonirico/go-hyperliquid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/zhajingwen/strong-hyperliquid-websocket/pkg/hyperliquid"
	"github.com/zhajingwen/strong-hyperliquid-websocket/pkg/websocket/connection"
)

const metadataDeadline = 10 * time.Second

// BuildSubscriptions assembles the intended subscription set from CLI input.
// The allMids channel is always included: it is the venue's highest-frequency
// feed and backs the data-flow liveness check, so sparse business channels
// alone never look like a dead stream.
func BuildSubscriptions(channel, interval string, coins []string) ([]hyperliquid.Subscription, error) {
	subs := []hyperliquid.Subscription{hyperliquid.AllMids()}

	for _, coin := range coins {
		switch channel {
		case "allMids":
			// already present
		case "trades":
			subs = append(subs, hyperliquid.Trades(coin))
		case "l2Book":
			subs = append(subs, hyperliquid.L2Book(coin))
		case "candle":
			subs = append(subs, hyperliquid.Candle(coin, interval))
		default:
			return nil, fmt.Errorf("unsupported channel %q", channel)
		}
	}

	return subs, nil
}

// ShowMeta fetches the perpetuals universe and current mids once, under its
// own deadline, fully decoupled from the streaming session.
func ShowMeta(ctx context.Context, baseURL string, logger *zap.Logger) {
	mctx, cancel := context.WithTimeout(ctx, metadataDeadline)
	defer cancel()

	md := hyperliquid.NewMetadata(baseURL, logger)

	meta, err := md.Meta(mctx)
	if err != nil {
		logger.Warn("metadata fetch failed", zap.Error(err))
		return
	}
	logger.Info("perpetuals universe", zap.Int("assets", len(meta.Universe)))

	mids, err := md.AllMids(mctx)
	if err != nil {
		logger.Warn("mid price fetch failed", zap.Error(err))
		return
	}
	logger.Info("mid prices fetched", zap.Int("assets", len(mids)))
}

// RunStream supervises the streaming session until interrupted or until the
// manager gives up. Received frames are logged; piping them elsewhere is a
// matter of swapping the callback.
func RunStream(cfg connection.Config, subs []hyperliquid.Subscription, logger *zap.Logger) error {
	mgr, err := connection.NewManager(cfg, subs, func(msg hl.WSMessage) {
		logger.Debug("frame",
			zap.String("channel", msg.Channel),
			zap.Int("bytes", len(msg.Data)))
	}, logger, nil)
	if err != nil {
		return fmt.Errorf("build session manager: %w", err)
	}

	mgr.SetStateCallback(func(state connection.ConnectionState) {
		logger.Info("session state", zap.String("state", state.String()))
	})

	g, ctx := errgroup.WithContext(context.Background())
	sigCtx, stopSignals := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	g.Go(mgr.Start)
	g.Go(func() error {
		<-sigCtx.Done()
		mgr.Stop()
		return nil
	})

	err = g.Wait()

	snap := mgr.Stats()
	logger.Info("final session stats",
		zap.String("state", snap.StateName),
		zap.Uint64("total_messages", snap.Health.Stats.TotalMessages),
		zap.Uint64("total_reconnects", snap.Health.Stats.TotalReconnects),
		zap.Uint64("total_errors", snap.Health.Stats.TotalErrors))

	return err
}
