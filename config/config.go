// Package config defines the application configuration for the
// marketfeed client: JSON file loading, environment overrides,
// defaults, and validation.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/c360/marketfeed/errors"
)

// Well-known public websocket endpoints
const (
	MainnetWSBaseURL = "wss://stream.binance.com:9443/ws"
	TestnetWSBaseURL = "wss://testnet.binance.vision/ws"
)

// Overflow policy names accepted by CommandQueueConfig.Overflow.
// "block" is the reference behavior: a full queue blocks the producer.
const (
	OverflowBlock      = "block"
	OverflowDropOldest = "drop_oldest"
	OverflowDropNewest = "drop_newest"
)

// Duration wraps time.Duration with JSON string encoding ("3s", "55m").
type Duration time.Duration

// UnmarshalJSON accepts either a duration string or nanoseconds.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch value := v.(type) {
	case float64:
		*d = Duration(time.Duration(value))
		return nil
	case string:
		parsed, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", value, err)
		}
		*d = Duration(parsed)
		return nil
	default:
		return fmt.Errorf("invalid duration value %v", v)
	}
}

// MarshalJSON encodes the duration as a string.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config represents the complete application configuration
type Config struct {
	// Endpoint overrides the websocket base URL; when empty the
	// mainnet or testnet default is chosen by UseTestnet.
	Endpoint   string `json:"endpoint,omitempty"`
	UseTestnet bool   `json:"use_testnet,omitempty"`

	// InitialTopics are subscribed on startup (normalized by the reconciler)
	InitialTopics []string `json:"initial_topics,omitempty"`

	// ReconnectDelay is the fixed wait between connection attempts.
	// Deliberately fixed: no backoff growth and no retry cap.
	ReconnectDelay Duration `json:"reconnect_delay,omitempty"`

	// StatsInterval drives the throughput report cadence
	StatsInterval Duration `json:"stats_interval,omitempty"`

	// PongInterval drives the unsolicited liveness pong cadence
	PongInterval Duration `json:"pong_interval,omitempty"`

	CommandQueue CommandQueueConfig `json:"command_queue,omitempty"`
	Metrics      MetricsConfig      `json:"metrics,omitempty"`
	NATS         NATSConfig         `json:"nats,omitempty"`
	Session      SessionConfig      `json:"session,omitempty"`
}

// CommandQueueConfig bounds the operator command queue.
//
// Overflow documents the behavior when the queue is full:
//   - "block" (default): the producing goroutine waits for space
//   - "drop_oldest": the oldest queued command is discarded
//   - "drop_newest": the new command is discarded
type CommandQueueConfig struct {
	Size     int    `json:"size,omitempty"`
	Overflow string `json:"overflow,omitempty"`
}

// MetricsConfig controls the optional Prometheus exposition server
type MetricsConfig struct {
	Enabled bool   `json:"enabled,omitempty"`
	Port    int    `json:"port,omitempty"`
	Path    string `json:"path,omitempty"`
}

// NATSConfig controls the optional event-forwarding sink
type NATSConfig struct {
	Enabled bool   `json:"enabled,omitempty"`
	URL     string `json:"url,omitempty"`
	Subject string `json:"subject,omitempty"`
}

// SessionConfig controls the listen-key credential lifecycle used for
// authenticated (account) streams. When disabled the client connects
// to the public endpoint without a token.
type SessionConfig struct {
	Enabled       bool     `json:"enabled,omitempty"`
	APIBase       string   `json:"api_base,omitempty"`
	APIKeyEnv     string   `json:"api_key_env,omitempty"`
	RenewInterval Duration `json:"renew_interval,omitempty"`
}

// Default returns the default configuration
func Default() *Config {
	return &Config{
		InitialTopics:  []string{"ethusdt@trade"},
		ReconnectDelay: Duration(3 * time.Second),
		StatsInterval:  Duration(5 * time.Second),
		PongInterval:   Duration(180 * time.Second),
		CommandQueue: CommandQueueConfig{
			Size:     100,
			Overflow: OverflowBlock,
		},
		Metrics: MetricsConfig{
			Port: 9090,
			Path: "/metrics",
		},
		NATS: NATSConfig{
			URL:     "nats://127.0.0.1:4222",
			Subject: "marketfeed.events",
		},
		Session: SessionConfig{
			APIBase:       "https://testnet.binancefuture.com",
			APIKeyEnv:     "BINANCE_API_KEY",
			RenewInterval: Duration(55 * time.Minute),
		},
	}
}

// Load reads configuration from a JSON file, applies environment
// overrides, and validates the result. An empty path yields defaults
// plus environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.WrapFatal(err, "config", "Load", "read config file")
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, errors.WrapFatal(err, "config", "Load", "parse config file")
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overlays MARKETFEED_* environment variables
func (c *Config) applyEnv() {
	if v := os.Getenv("MARKETFEED_ENDPOINT"); v != "" {
		c.Endpoint = v
	}
	if v := os.Getenv("MARKETFEED_USE_TESTNET"); v != "" {
		if parsed, err := strconv.ParseBool(v); err == nil {
			c.UseTestnet = parsed
		}
	}
	if v := os.Getenv("MARKETFEED_TOPICS"); v != "" {
		topics := strings.Split(v, ",")
		c.InitialTopics = c.InitialTopics[:0]
		for _, topic := range topics {
			if topic = strings.TrimSpace(topic); topic != "" {
				c.InitialTopics = append(c.InitialTopics, topic)
			}
		}
	}
	if v := os.Getenv("MARKETFEED_NATS_URL"); v != "" {
		c.NATS.URL = v
		c.NATS.Enabled = true
	}
}

// Validate checks the configuration for consistency
func (c *Config) Validate() error {
	if c.ReconnectDelay <= 0 {
		return errors.WrapFatal(
			fmt.Errorf("reconnect_delay must be positive, got %v", c.ReconnectDelay.Std()),
			"config", "Validate", "check reconnect delay")
	}
	if c.StatsInterval <= 0 {
		return errors.WrapFatal(
			fmt.Errorf("stats_interval must be positive, got %v", c.StatsInterval.Std()),
			"config", "Validate", "check stats interval")
	}
	if c.PongInterval <= 0 {
		return errors.WrapFatal(
			fmt.Errorf("pong_interval must be positive, got %v", c.PongInterval.Std()),
			"config", "Validate", "check pong interval")
	}
	if c.CommandQueue.Size <= 0 {
		return errors.WrapFatal(
			fmt.Errorf("command_queue.size must be positive, got %d", c.CommandQueue.Size),
			"config", "Validate", "check command queue size")
	}
	switch c.CommandQueue.Overflow {
	case OverflowBlock, OverflowDropOldest, OverflowDropNewest:
	default:
		return errors.WrapFatal(
			fmt.Errorf("command_queue.overflow must be one of block, drop_oldest, drop_newest; got %q",
				c.CommandQueue.Overflow),
			"config", "Validate", "check overflow policy")
	}
	if c.Metrics.Enabled && (c.Metrics.Port <= 0 || c.Metrics.Port > 65535) {
		return errors.WrapFatal(
			fmt.Errorf("metrics.port out of range: %d", c.Metrics.Port),
			"config", "Validate", "check metrics port")
	}
	if c.NATS.Enabled {
		if c.NATS.URL == "" {
			return errors.WrapFatal(
				fmt.Errorf("nats.url required when nats sink is enabled"),
				"config", "Validate", "check nats url")
		}
		if c.NATS.Subject == "" {
			return errors.WrapFatal(
				fmt.Errorf("nats.subject required when nats sink is enabled"),
				"config", "Validate", "check nats subject")
		}
	}
	if c.Session.Enabled {
		if c.Session.APIBase == "" {
			return errors.WrapFatal(
				fmt.Errorf("session.api_base required when session is enabled"),
				"config", "Validate", "check session api base")
		}
		if c.Session.APIKeyEnv == "" {
			return errors.WrapFatal(
				fmt.Errorf("session.api_key_env required when session is enabled"),
				"config", "Validate", "check session key env")
		}
		if c.Session.RenewInterval <= 0 {
			return errors.WrapFatal(
				fmt.Errorf("session.renew_interval must be positive"),
				"config", "Validate", "check session renew interval")
		}
	}
	return nil
}

// EndpointURL resolves the websocket base URL from the endpoint
// override or the testnet flag.
func (c *Config) EndpointURL() string {
	if c.Endpoint != "" {
		return c.Endpoint
	}
	if c.UseTestnet {
		return TestnetWSBaseURL
	}
	return MainnetWSBaseURL
}
