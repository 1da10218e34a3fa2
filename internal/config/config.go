package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/zhajingwen/strong-hyperliquid-websocket/pkg/websocket/connection"
)

// Config represents the application configuration.
type Config struct {
	Stream  StreamConfig  `mapstructure:"stream"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// StreamConfig configures the WebSocket session manager.
type StreamConfig struct {
	Endpoint string `mapstructure:"endpoint" validate:"required,url"`
	Testnet  bool   `mapstructure:"testnet"`

	// Default intended subscriptions built from config; CLI flags, when
	// given, replace them.
	Channel string   `mapstructure:"channel" validate:"required"`
	Coins   []string `mapstructure:"coins"`

	ConnectDeadline     time.Duration `mapstructure:"connect_deadline"`
	SubscribeDeadline   time.Duration `mapstructure:"subscribe_deadline"`
	CloseDeadline       time.Duration `mapstructure:"close_deadline"`
	PingInterval        time.Duration `mapstructure:"ping_interval"`
	HealthCheckInterval time.Duration `mapstructure:"health_check_interval"`
	DataTimeout         time.Duration `mapstructure:"data_timeout"`
	WarningThreshold    time.Duration `mapstructure:"warning_threshold"`

	Backoff BackoffConfig `mapstructure:"backoff"`
}

// BackoffConfig mirrors the reconnect policy knobs.
type BackoffConfig struct {
	InitialDelay   time.Duration `mapstructure:"initial_delay"`
	MaxDelay       time.Duration `mapstructure:"max_delay"`
	Multiplier     float64       `mapstructure:"multiplier"`
	MaxAttempts    int           `mapstructure:"max_attempts"`
	JitterFraction float64       `mapstructure:"jitter_fraction"`
}

// LoggingConfig represents logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format     string `mapstructure:"format" validate:"oneof=json console"`
	OutputPath string `mapstructure:"output_path" validate:"required"`
}

// LoadConfig loads configuration from environment variables, with an
// optional .env file.
func LoadConfig() (*Config, error) {
	// Load .env file if it exists (ignore errors if file doesn't exist)
	_ = godotenv.Load()

	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("HLSTREAM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// The testnet setting only swaps the endpoint when the caller did not
	// pin one.
	if config.Stream.Testnet && config.Stream.Endpoint == defaultMainnetEndpoint {
		config.Stream.Endpoint = defaultTestnetEndpoint
	}

	if err := validator.New().Struct(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

const (
	defaultMainnetEndpoint = "https://api.hyperliquid.xyz"
	defaultTestnetEndpoint = "https://api.hyperliquid-testnet.xyz"
)

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Stream defaults
	v.SetDefault("stream.endpoint", defaultMainnetEndpoint)
	v.SetDefault("stream.testnet", false)
	v.SetDefault("stream.channel", "allMids")
	v.SetDefault("stream.coins", []string{})
	v.SetDefault("stream.connect_deadline", 30*time.Second)
	v.SetDefault("stream.subscribe_deadline", 15*time.Second)
	v.SetDefault("stream.close_deadline", 10*time.Second)
	v.SetDefault("stream.ping_interval", 10*time.Second)
	v.SetDefault("stream.health_check_interval", 5*time.Second)
	v.SetDefault("stream.data_timeout", 60*time.Second)
	v.SetDefault("stream.warning_threshold", 30*time.Second)

	// Backoff defaults
	v.SetDefault("stream.backoff.initial_delay", time.Second)
	v.SetDefault("stream.backoff.max_delay", 60*time.Second)
	v.SetDefault("stream.backoff.multiplier", 2.0)
	v.SetDefault("stream.backoff.max_attempts", 10)
	v.SetDefault("stream.backoff.jitter_fraction", 0.25)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output_path", "stdout")
}

// ConnectionConfig maps the stream section onto the session manager config.
func (c *Config) ConnectionConfig() connection.Config {
	cfg := connection.DefaultConfig()
	cfg.Endpoint = c.Stream.Endpoint
	cfg.ConnectDeadline = c.Stream.ConnectDeadline
	cfg.SubscribeDeadline = c.Stream.SubscribeDeadline
	cfg.CloseDeadline = c.Stream.CloseDeadline
	cfg.PingInterval = c.Stream.PingInterval
	cfg.HealthCheckInterval = c.Stream.HealthCheckInterval
	cfg.DataTimeout = c.Stream.DataTimeout
	cfg.WarningThreshold = c.Stream.WarningThreshold
	cfg.Backoff = connection.BackoffConfig{
		InitialDelay:   c.Stream.Backoff.InitialDelay,
		MaxDelay:       c.Stream.Backoff.MaxDelay,
		Multiplier:     c.Stream.Backoff.Multiplier,
		MaxAttempts:    c.Stream.Backoff.MaxAttempts,
		JitterFraction: c.Stream.Backoff.JitterFraction,
	}
	return cfg
}
