package hyperliquid

import (
	"fmt"
	"net/url"
	"strings"
)

// Default venue endpoints. Callers may pass the REST base URL; it is rewritten
// to the streaming endpoint by NormalizeEndpoint.
const (
	MainnetURL = "https://api.hyperliquid.xyz"
	TestnetURL = "https://api.hyperliquid-testnet.xyz"
)

// NormalizeEndpoint rewrites http(s) schemes to ws(s) and ensures the
// streaming path ("/ws") is present, so callers can hand over either the REST
// base URL or a fully-formed WebSocket URL.
func NormalizeEndpoint(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid endpoint %q: %w", raw, err)
	}

	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported endpoint scheme %q", u.Scheme)
	}

	if u.Host == "" {
		return "", fmt.Errorf("endpoint %q has no host", raw)
	}

	if !strings.HasSuffix(strings.TrimRight(u.Path, "/"), "/ws") {
		u.Path = strings.TrimRight(u.Path, "/") + "/ws"
	}

	return u.String(), nil
}
