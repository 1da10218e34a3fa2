package infrastructure

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

// RegisterLifecycle flushes buffered log output on shutdown.
func RegisterLifecycle(lc fx.Lifecycle, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			// Sync can fail on stdout; shutdown proceeds regardless.
			_ = logger.Sync()
			return nil
		},
	})
}
