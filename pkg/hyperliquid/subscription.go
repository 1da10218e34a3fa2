package hyperliquid

import (
	"fmt"
	"strings"
)

// Subscription describes one Hyperliquid stream channel. The zero fields are
// omitted from the wire frame, so the same struct covers market-wide channels
// (allMids), per-coin channels (trades, l2Book, candle) and per-user channels
// (userFills, orderUpdates).
type Subscription struct {
	Type     string `json:"type" mapstructure:"type"`
	Coin     string `json:"coin,omitempty" mapstructure:"coin"`
	Interval string `json:"interval,omitempty" mapstructure:"interval"`
	User     string `json:"user,omitempty" mapstructure:"user"`
}

// Key returns a stable identity for map lookups and log lines.
// Format: "type:coin:interval:user" (e.g. "l2Book:BTC::", "candle:ETH:1m:").
func (s Subscription) Key() string {
	return fmt.Sprintf("%s:%s:%s:%s", s.Type, s.Coin, s.Interval, s.User)
}

func (s Subscription) String() string {
	return strings.TrimRight(s.Key(), ":")
}

// Validate rejects descriptors the venue would silently ignore.
func (s Subscription) Validate() error {
	if s.Type == "" {
		return fmt.Errorf("subscription type is required")
	}
	if s.Type == "candle" && s.Interval == "" {
		return fmt.Errorf("candle subscription requires an interval")
	}
	return nil
}

// AllMids subscribes to mid prices for every listed asset. This is the
// venue's highest-frequency channel and doubles as the heartbeat the
// data-flow liveness check depends on.
func AllMids() Subscription {
	return Subscription{Type: "allMids"}
}

// Trades subscribes to executed trades for one coin.
func Trades(coin string) Subscription {
	return Subscription{Type: "trades", Coin: coin}
}

// L2Book subscribes to order book snapshots for one coin.
func L2Book(coin string) Subscription {
	return Subscription{Type: "l2Book", Coin: coin}
}

// Candle subscribes to klines for one coin at the given interval (e.g. "1m").
func Candle(coin, interval string) Subscription {
	return Subscription{Type: "candle", Coin: coin, Interval: interval}
}
