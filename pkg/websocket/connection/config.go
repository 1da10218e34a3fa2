package connection

import (
	"fmt"
	"time"
)

// BackoffConfig parameterizes the reconnect delay policy.
type BackoffConfig struct {
	InitialDelay time.Duration `json:"initial_delay" mapstructure:"initial_delay"`
	MaxDelay     time.Duration `json:"max_delay" mapstructure:"max_delay"`
	Multiplier   float64       `json:"multiplier" mapstructure:"multiplier"`
	// MaxAttempts bounds connect attempts per connected episode; 0 means
	// retry forever.
	MaxAttempts int `json:"max_attempts" mapstructure:"max_attempts"`
	// JitterFraction spreads delays by ±fraction·delay; 0 disables jitter.
	JitterFraction float64 `json:"jitter_fraction" mapstructure:"jitter_fraction"`
}

// Config holds every knob of the session manager.
type Config struct {
	// Endpoint accepts http(s) or ws(s) URLs; http(s) is rewritten to the
	// venue's streaming endpoint before connecting.
	Endpoint string `json:"endpoint" validate:"required"`

	// Deadlines on operations that touch the transport. Exceeding the
	// connect or subscribe deadline produces a TimeoutError; close reports
	// no error. In every case the worker is abandoned.
	ConnectDeadline   time.Duration `json:"connect_deadline" mapstructure:"connect_deadline"`
	SubscribeDeadline time.Duration `json:"subscribe_deadline" mapstructure:"subscribe_deadline"`
	CloseDeadline     time.Duration `json:"close_deadline" mapstructure:"close_deadline"`

	// Liveness settings.
	PingInterval        time.Duration `json:"ping_interval" mapstructure:"ping_interval"`
	HealthCheckInterval time.Duration `json:"health_check_interval" mapstructure:"health_check_interval"`
	DataTimeout         time.Duration `json:"data_timeout" mapstructure:"data_timeout"`
	// WarningThreshold defaults to DataTimeout/2 when zero.
	WarningThreshold time.Duration `json:"warning_threshold" mapstructure:"warning_threshold"`

	// Transport buffer settings.
	HandshakeTimeout time.Duration `json:"handshake_timeout" mapstructure:"handshake_timeout"`
	ReadBufferSize   int           `json:"read_buffer_size" mapstructure:"read_buffer_size"`
	WriteBufferSize  int           `json:"write_buffer_size" mapstructure:"write_buffer_size"`
	MaxFrameSize     int64         `json:"max_frame_size" mapstructure:"max_frame_size"`

	// HealthLogEvery emits a health snapshot each time this many messages
	// have been delivered.
	HealthLogEvery uint64 `json:"health_log_every" mapstructure:"health_log_every"`

	// Outbound rate limiting (the venue throttles client frames).
	RateLimitCapacity int           `json:"rate_limit_capacity" mapstructure:"rate_limit_capacity"`
	RateLimitRefill   time.Duration `json:"rate_limit_refill" mapstructure:"rate_limit_refill"`

	Backoff BackoffConfig `json:"backoff" mapstructure:"backoff"`
}

// DefaultConfig returns a configuration with the venue defaults.
func DefaultConfig() Config {
	return Config{
		ConnectDeadline:     30 * time.Second,
		SubscribeDeadline:   15 * time.Second,
		CloseDeadline:       10 * time.Second,
		PingInterval:        10 * time.Second,
		HealthCheckInterval: 5 * time.Second,
		DataTimeout:         60 * time.Second,
		HandshakeTimeout:    45 * time.Second,
		ReadBufferSize:      4096,
		WriteBufferSize:     4096,
		MaxFrameSize:        1024 * 1024,
		HealthLogEvery:      1000,
		RateLimitCapacity:   2000,
		RateLimitRefill:     time.Minute,
		Backoff: BackoffConfig{
			InitialDelay:   time.Second,
			MaxDelay:       60 * time.Second,
			Multiplier:     2.0,
			MaxAttempts:    10,
			JitterFraction: 0.25,
		},
	}
}

// ApplyDefaults fills zero values with defaults. MaxAttempts and
// JitterFraction are left alone: zero is a meaningful setting for both
// (unbounded retries, deterministic delays).
func (c *Config) ApplyDefaults() {
	defaults := DefaultConfig()

	if c.ConnectDeadline == 0 {
		c.ConnectDeadline = defaults.ConnectDeadline
	}
	if c.SubscribeDeadline == 0 {
		c.SubscribeDeadline = defaults.SubscribeDeadline
	}
	if c.CloseDeadline == 0 {
		c.CloseDeadline = defaults.CloseDeadline
	}
	if c.PingInterval == 0 {
		c.PingInterval = defaults.PingInterval
	}
	if c.HealthCheckInterval == 0 {
		c.HealthCheckInterval = defaults.HealthCheckInterval
	}
	if c.DataTimeout == 0 {
		c.DataTimeout = defaults.DataTimeout
	}
	if c.WarningThreshold == 0 {
		c.WarningThreshold = c.DataTimeout / 2
	}
	if c.HandshakeTimeout == 0 {
		c.HandshakeTimeout = defaults.HandshakeTimeout
	}
	if c.ReadBufferSize == 0 {
		c.ReadBufferSize = defaults.ReadBufferSize
	}
	if c.WriteBufferSize == 0 {
		c.WriteBufferSize = defaults.WriteBufferSize
	}
	if c.MaxFrameSize == 0 {
		c.MaxFrameSize = defaults.MaxFrameSize
	}
	if c.HealthLogEvery == 0 {
		c.HealthLogEvery = defaults.HealthLogEvery
	}
	if c.RateLimitCapacity == 0 {
		c.RateLimitCapacity = defaults.RateLimitCapacity
	}
	if c.RateLimitRefill == 0 {
		c.RateLimitRefill = defaults.RateLimitRefill
	}
	if c.Backoff.InitialDelay == 0 {
		c.Backoff.InitialDelay = defaults.Backoff.InitialDelay
	}
	if c.Backoff.MaxDelay == 0 {
		c.Backoff.MaxDelay = defaults.Backoff.MaxDelay
	}
	if c.Backoff.Multiplier == 0 {
		c.Backoff.Multiplier = defaults.Backoff.Multiplier
	}
}

// Validate checks that the configuration is internally consistent.
func (c *Config) Validate() error {
	if c.Endpoint == "" {
		return fmt.Errorf("endpoint is required")
	}
	if c.ConnectDeadline <= 0 || c.SubscribeDeadline <= 0 || c.CloseDeadline <= 0 {
		return fmt.Errorf("transport deadlines must be positive")
	}
	if c.PingInterval <= 0 {
		return fmt.Errorf("ping interval must be positive")
	}
	if c.HealthCheckInterval <= 0 {
		return fmt.Errorf("health check interval must be positive")
	}
	if c.DataTimeout <= 0 {
		return fmt.Errorf("data timeout must be positive")
	}
	if c.WarningThreshold < 0 || c.WarningThreshold >= c.DataTimeout {
		return fmt.Errorf("warning threshold must be below the data timeout")
	}
	if c.MaxFrameSize <= 0 {
		return fmt.Errorf("max frame size must be positive")
	}
	if c.Backoff.InitialDelay <= 0 || c.Backoff.MaxDelay < c.Backoff.InitialDelay {
		return fmt.Errorf("backoff delays are inconsistent")
	}
	if c.Backoff.Multiplier < 1 {
		return fmt.Errorf("backoff multiplier must be at least 1")
	}
	if c.Backoff.MaxAttempts < 0 {
		return fmt.Errorf("backoff max attempts must not be negative")
	}
	if c.Backoff.JitterFraction < 0 || c.Backoff.JitterFraction > 1 {
		return fmt.Errorf("jitter fraction must be within [0, 1]")
	}
	return nil
}
