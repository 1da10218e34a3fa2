package main

import (
	"go.uber.org/fx"

	"github.com/zhajingwen/strong-hyperliquid-websocket/internal/cli"
	"github.com/zhajingwen/strong-hyperliquid-websocket/internal/config"
	"github.com/zhajingwen/strong-hyperliquid-websocket/internal/infrastructure"
)

func main() {
	fx.New(
		// Configuration (env + .env)
		config.Module,

		// Logging and shutdown hooks
		infrastructure.Module,

		// CLI commands
		cli.Module,
	).Run()
}
