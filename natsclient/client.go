// Package natsclient provides a thin NATS connection wrapper used by
// the event-forwarding sink.
package natsclient

import (
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/c360/marketfeed/errors"
)

// Config holds NATS connection settings
type Config struct {
	URL           string
	ClientName    string
	MaxReconnects int
	ReconnectWait time.Duration
	Timeout       time.Duration
	DrainTimeout  time.Duration
}

// DefaultConfig returns reasonable connection defaults. MaxReconnects
// of -1 means reconnect forever; the feed should outlive broker
// restarts the same way it outlives exchange disconnects.
func DefaultConfig(url string) Config {
	return Config{
		URL:           url,
		ClientName:    "marketfeed",
		MaxReconnects: -1,
		ReconnectWait: 2 * time.Second,
		Timeout:       5 * time.Second,
		DrainTimeout:  10 * time.Second,
	}
}

// Client manages a single NATS connection
type Client struct {
	cfg    Config
	logger *slog.Logger

	mu   sync.RWMutex
	conn *nats.Conn
}

// New creates an unconnected client
func New(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{cfg: cfg, logger: logger.With("component", "natsclient")}
}

// Connect establishes the NATS connection
func (c *Client) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil && !c.conn.IsClosed() {
		return errors.ErrAlreadyStarted
	}

	opts := []nats.Option{
		nats.Name(c.cfg.ClientName),
		nats.MaxReconnects(c.cfg.MaxReconnects),
		nats.ReconnectWait(c.cfg.ReconnectWait),
		nats.Timeout(c.cfg.Timeout),
		nats.DrainTimeout(c.cfg.DrainTimeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			c.logger.Warn("nats disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			c.logger.Info("nats reconnected", "url", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			c.logger.Info("nats connection closed")
		}),
	}

	conn, err := nats.Connect(c.cfg.URL, opts...)
	if err != nil {
		return errors.WrapTransient(err, "natsclient", "Connect", "dial nats server")
	}

	c.conn = conn
	c.logger.Info("nats connected", "url", conn.ConnectedUrl())
	return nil
}

// Publish sends data to the given subject
func (c *Client) Publish(subject string, data []byte) error {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()

	if conn == nil || conn.IsClosed() {
		return errors.ErrNoConnection
	}
	if err := conn.Publish(subject, data); err != nil {
		return errors.WrapTransient(err, "natsclient", "Publish", "publish message")
	}
	return nil
}

// IsConnected reports whether the connection is currently up
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn != nil && c.conn.IsConnected()
}

// Close drains and closes the connection. Drain flushes buffered
// publishes before the connection is torn down.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil || c.conn.IsClosed() {
		return nil
	}
	if err := c.conn.Drain(); err != nil {
		c.conn.Close()
		return errors.Wrap(err, "natsclient", "Close", "drain connection")
	}
	c.conn = nil
	return nil
}
