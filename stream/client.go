package stream

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/c360/marketfeed/command"
	"github.com/c360/marketfeed/errors"
	"github.com/c360/marketfeed/event"
	"github.com/c360/marketfeed/metric"
)

const (
	handshakeTimeout = 10 * time.Second
	controlDeadline  = 5 * time.Second
)

// EndpointResolver returns the URL to dial for the next connection
// attempt. Resolvers that attach a session token re-evaluate it per
// attempt so a renewed token is picked up on reconnect.
type EndpointResolver func(ctx context.Context) (string, error)

// StaticEndpoint resolves to a fixed URL
func StaticEndpoint(url string) EndpointResolver {
	return func(context.Context) (string, error) {
		return url, nil
	}
}

// Options configures a Client
type Options struct {
	Endpoint      EndpointResolver
	InitialTopics []string

	ReconnectDelay time.Duration
	StatsInterval  time.Duration
	PongInterval   time.Duration

	// Commands is the queue the event loop consumes; closing it is an
	// implicit shutdown request
	Commands <-chan command.Command

	// Handler receives decoded domain events
	Handler event.Handler

	// Registry is optional; nil disables metrics
	Registry *metric.MetricsRegistry

	Logger *slog.Logger
}

// Client is the connection manager: it owns the reconnect loop and the
// per-connection event loop that multiplexes commands, inbound frames
// and the two monitor timers.
type Client struct {
	opts    Options
	rec     *Reconciler
	metrics *clientMetrics
	logger  *slog.Logger
	dialer  *websocket.Dialer

	shutdown bool
}

// NewClient creates a client. The reconciler is seeded with the
// initial topics so the first connection subscribes to them.
func NewClient(opts Options) (*Client, error) {
	if opts.Endpoint == nil {
		return nil, errors.WrapFatal(errors.ErrMissingConfig, "stream", "NewClient", "resolve endpoint")
	}
	if opts.Commands == nil {
		return nil, errors.WrapFatal(errors.ErrMissingConfig, "stream", "NewClient", "wire command queue")
	}
	if opts.ReconnectDelay <= 0 || opts.StatsInterval <= 0 || opts.PongInterval <= 0 {
		return nil, errors.WrapFatal(errors.ErrInvalidConfig, "stream", "NewClient", "check timer intervals")
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "stream")

	var metrics *clientMetrics
	if opts.Registry != nil {
		var err error
		if metrics, err = newClientMetrics(opts.Registry); err != nil {
			return nil, err
		}
	}

	rec := NewReconciler(opts.InitialTopics, logger)
	rec.metrics = metrics

	return &Client{
		opts:    opts,
		rec:     rec,
		metrics: metrics,
		logger:  logger,
		dialer:  &websocket.Dialer{HandshakeTimeout: handshakeTimeout},
	}, nil
}

// Run drives the reconnect loop until a quit command, command-source
// closure, or context cancellation. Connection failures are never
// fatal: the client waits a fixed delay and dials again.
func (c *Client) Run(ctx context.Context) error {
	first := true
	for !c.shutdown {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !first {
			c.metrics.incReconnects()
		}
		first = false

		url, err := c.opts.Endpoint(ctx)
		if err != nil {
			if errors.IsFatal(err) {
				return err
			}
			c.logger.Error("endpoint resolution failed", "error", err)
			if !c.wait(ctx) {
				return ctx.Err()
			}
			continue
		}

		c.logger.Info("connecting", "url", url)
		conn, resp, err := c.dialer.DialContext(ctx, url, nil)
		if resp != nil && resp.Body != nil {
			resp.Body.Close()
		}
		if err != nil {
			c.logger.Error("connect failed", "error", err)
			if !c.wait(ctx) {
				return ctx.Err()
			}
			continue
		}

		session := uuid.NewString()
		c.logger.Info("connected", "session", session)
		c.metrics.setConnected(true)

		c.runLoop(ctx, conn)

		c.metrics.setConnected(false)
		conn.Close()

		if !c.shutdown {
			c.logger.Warn("disconnected, reconnecting",
				"session", session,
				"delay", c.opts.ReconnectDelay.String())
			if !c.wait(ctx) {
				return ctx.Err()
			}
		}
	}
	return nil
}

// wait sleeps the fixed reconnect delay; false means the context ended
func (c *Client) wait(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(c.opts.ReconnectDelay):
		return true
	}
}

type frameKind int

const (
	frameText frameKind = iota
	framePing
	frameError
)

type frame struct {
	kind frameKind
	data []byte
	err  error
}

// runLoop is the per-connection event loop. It is the only goroutine
// that writes to the connection; the reader goroutine and the ping
// handler forward everything here.
func (c *Client) runLoop(ctx context.Context, conn *websocket.Conn) {
	done := make(chan struct{})
	defer close(done)

	frames := make(chan frame, 64)
	conn.SetPingHandler(func(appData string) error {
		select {
		case frames <- frame{kind: framePing, data: []byte(appData)}:
		case <-done:
		}
		return nil
	})
	go readFrames(conn, frames, done)

	c.rec.Bind(&connSender{conn: conn})
	c.rec.ResetSession()
	if err := c.rec.ResyncAll(); err != nil {
		c.logger.Error("resync failed", "error", err)
		return
	}

	monitor := NewMonitor(c.logger)
	statsTicker := time.NewTicker(c.opts.StatsInterval)
	defer statsTicker.Stop()
	pongTicker := time.NewTicker(c.opts.PongInterval)
	defer pongTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.shutdown = true
			c.sendClose(conn)
			return

		case cmd, ok := <-c.opts.Commands:
			if !ok {
				c.shutdown = true
				c.logger.Warn("command source closed, shutting down")
				c.sendClose(conn)
				return
			}
			if !c.handleCommand(cmd, conn) {
				return
			}

		case fr, ok := <-frames:
			if !ok {
				return
			}
			if !c.handleFrame(fr, conn, monitor) {
				return
			}

		case <-statsTicker.C:
			monitor.Report()

		case <-pongTicker.C:
			// proactive liveness signal, independent of any ping
			c.sendPong(conn, nil)
		}
	}
}

// readFrames pushes inbound text frames and read errors into the
// frame channel. Close frames and transport errors both surface as a
// read error; the loop decides how to log them.
func readFrames(conn *websocket.Conn, frames chan<- frame, done <-chan struct{}) {
	defer close(frames)
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			select {
			case frames <- frame{kind: frameError, err: err}:
			case <-done:
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		select {
		case frames <- frame{kind: frameText, data: data}:
		case <-done:
			return
		}
	}
}

// handleCommand dispatches one operator command. Returns false when
// the loop should exit.
func (c *Client) handleCommand(cmd command.Command, conn *websocket.Conn) bool {
	switch cmd.Kind {
	case command.KindSubscribe:
		for _, topic := range cmd.Topics {
			if err := c.rec.Subscribe(topic); err != nil {
				c.logger.Error("subscribe failed", "topic", topic, "error", err)
				return false
			}
		}
	case command.KindUnsubscribe:
		for _, topic := range cmd.Topics {
			if err := c.rec.Unsubscribe(topic); err != nil {
				c.logger.Error("unsubscribe failed", "topic", topic, "error", err)
				return false
			}
		}
	case command.KindListLocal:
		c.rec.LogLocal()
	case command.KindListServer:
		if err := c.rec.ListServer(); err != nil {
			c.logger.Error("list request failed", "error", err)
			return false
		}
	case command.KindHelp:
		c.logger.Info("help requested; see interactive prompt")
	case command.KindQuit:
		c.shutdown = true
		c.logger.Info("quit requested, closing connection")
		c.sendClose(conn)
		return false
	}
	return true
}

// handleFrame dispatches one inbound frame. Returns false when the
// loop should exit.
func (c *Client) handleFrame(fr frame, conn *websocket.Conn, monitor *Monitor) bool {
	switch fr.kind {
	case framePing:
		c.sendPong(conn, fr.data)
		return true

	case frameError:
		if websocket.IsCloseError(fr.err,
			websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			c.logger.Info("connection closed by server", "error", fr.err)
		} else {
			c.logger.Error("read failed", "error", fr.err)
		}
		return false

	case frameText:
		monitor.RecordMessage()
		c.metrics.incMessages()
		c.handleText(fr.data)
		return true

	default:
		return true
	}
}

// handleText classifies one text frame and routes it. Malformed
// payloads are logged and skipped; they never end the loop.
func (c *Client) handleText(data []byte) {
	class, err := event.Classify(data)
	if err != nil {
		c.metrics.incParseErrors()
		c.logger.Warn("undecodable frame", "error", err)
		return
	}

	switch class.Kind {
	case event.KindResponse:
		if err := c.rec.HandleResponse(data); err != nil {
			c.metrics.incParseErrors()
			c.logger.Warn("bad response frame", "error", err)
		}
	case event.KindDomain:
		decoded, err := event.Decode(class.Type, data)
		if err != nil {
			c.metrics.incParseErrors()
			c.logger.Warn("bad event payload", "type", class.Type, "error", err)
			return
		}
		if c.opts.Handler != nil {
			if err := c.opts.Handler.HandleEvent(class.Type, data, decoded); err != nil {
				c.logger.Warn("event handler failed", "type", class.Type, "error", err)
			}
		}
	case event.KindOpaque:
		c.logger.Debug("opaque frame", "bytes", len(data))
	}
}

func (c *Client) sendPong(conn *websocket.Conn, payload []byte) {
	deadline := time.Now().Add(controlDeadline)
	if err := conn.WriteControl(websocket.PongMessage, payload, deadline); err != nil {
		c.logger.Warn("pong write failed", "error", err)
	}
}

func (c *Client) sendClose(conn *websocket.Conn) {
	deadline := time.Now().Add(controlDeadline)
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	if err := conn.WriteControl(websocket.CloseMessage, msg, deadline); err != nil {
		c.logger.Warn("close write failed", "error", err)
	}
}

// connSender adapts a websocket connection to the Sender interface
type connSender struct {
	conn *websocket.Conn
}

func (s *connSender) SendText(data []byte) error {
	return s.conn.WriteMessage(websocket.TextMessage, data)
}
