package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/zhajingwen/strong-hyperliquid-websocket/internal/cli/handlers"
	"github.com/zhajingwen/strong-hyperliquid-websocket/internal/config"
)

// Module provides the CLI commands
var Module = fx.Module("cli",
	fx.Provide(
		NewStreamCmd,
	),
	fx.Invoke(RunCLI),
)

// NewStreamCmd creates the stream command
func NewStreamCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stream",
		Short: "Stream venue channels over a supervised WebSocket session",
	}

	cmd.Flags().StringP("endpoint", "e", "", "Venue endpoint (http(s) or ws(s) URL); overrides config")
	cmd.Flags().StringSliceP("coin", "c", nil, "Coin to stream (repeatable)")
	cmd.Flags().String("channel", "", "Channel type for per-coin subscriptions (trades, l2Book, candle)")
	cmd.Flags().String("interval", "1m", "Candle interval (candle channel only)")
	cmd.Flags().Bool("show-meta", false, "Fetch the perpetuals universe before streaming")

	return cmd
}

// RunCLI executes the cobra CLI with fx dependencies
func RunCLI(streamCmd *cobra.Command, cfg *config.Config, logger *zap.Logger, shutdowner fx.Shutdowner) {
	rootCmd := &cobra.Command{
		Use:   "hlstream",
		Short: "Resilient Hyperliquid WebSocket session manager",
	}

	rootCmd.AddCommand(streamCmd)

	streamCmd.RunE = func(cmd *cobra.Command, args []string) error {
		return runStream(cmd, cfg, logger)
	}

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	_ = shutdowner.Shutdown()
}

// runStream resolves flags against config and hands over to the handler.
func runStream(cmd *cobra.Command, cfg *config.Config, logger *zap.Logger) error {
	if endpoint, _ := cmd.Flags().GetString("endpoint"); endpoint != "" {
		cfg.Stream.Endpoint = endpoint
	}
	coins, _ := cmd.Flags().GetStringSlice("coin")
	if len(coins) == 0 {
		coins = cfg.Stream.Coins
	}
	channel, _ := cmd.Flags().GetString("channel")
	if channel == "" {
		channel = cfg.Stream.Channel
	}
	interval, _ := cmd.Flags().GetString("interval")

	subs, err := handlers.BuildSubscriptions(channel, interval, coins)
	if err != nil {
		return err
	}

	if showMeta, _ := cmd.Flags().GetBool("show-meta"); showMeta {
		handlers.ShowMeta(cmd.Context(), cfg.Stream.Endpoint, logger)
	}

	return handlers.RunStream(cfg.ConnectionConfig(), subs, logger)
}
