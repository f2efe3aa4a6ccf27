package command

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/c360/marketfeed/config"
	"github.com/c360/marketfeed/errors"
	"github.com/c360/marketfeed/metric"
	"github.com/c360/marketfeed/pkg/buffer"
)

// drainInterval is how often the pump polls the buffer for queued
// commands. Interactive input arrives at human speed; 10ms keeps the
// perceived latency at zero without a busy loop.
const drainInterval = 10 * time.Millisecond

// Ingress is the bounded queue between command producers (stdin) and
// the stream event loop. Many writers, one reader. The overflow policy
// comes from configuration; Block is the default and applies
// backpressure to the producer.
type Ingress struct {
	buf    buffer.Buffer[Command]
	out    chan Command
	logger *slog.Logger

	startOnce sync.Once
	stopOnce  sync.Once
	done      chan struct{}
}

// NewIngress creates the command queue from configuration. The metrics
// registry is optional.
func NewIngress(cfg config.CommandQueueConfig, registry *metric.MetricsRegistry, logger *slog.Logger) (*Ingress, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "command")

	policy, ok := buffer.ParsePolicy(cfg.Overflow)
	if !ok {
		return nil, errors.WrapFatal(errors.ErrInvalidConfig,
			"command", "NewIngress", "parse overflow policy "+cfg.Overflow)
	}

	opts := []buffer.Option[Command]{
		buffer.WithOverflowPolicy[Command](policy),
		buffer.WithDropCallback[Command](func(cmd Command) {
			logger.Warn("command dropped, queue full", "kind", cmd.Kind.String())
		}),
	}
	if registry != nil {
		opts = append(opts, buffer.WithMetrics[Command](registry, "command_queue"))
	}

	buf, err := buffer.NewCircularBuffer(cfg.Size, opts...)
	if err != nil {
		return nil, errors.WrapFatal(err, "command", "NewIngress", "create command buffer")
	}

	return &Ingress{
		buf:    buf,
		out:    make(chan Command),
		logger: logger,
		done:   make(chan struct{}),
	}, nil
}

// Submit enqueues a command. With the Block policy this waits for
// space; with a drop policy it returns immediately.
func (in *Ingress) Submit(cmd Command) error {
	if err := in.buf.Write(cmd); err != nil {
		return errors.Wrap(err, "command", "Submit", "enqueue command")
	}
	return nil
}

// Commands returns the channel the event loop selects on
func (in *Ingress) Commands() <-chan Command {
	return in.out
}

// Start launches the pump goroutine that drains the buffer onto the
// output channel. It returns immediately.
func (in *Ingress) Start(ctx context.Context) {
	in.startOnce.Do(func() {
		go in.pump(ctx)
	})
}

func (in *Ingress) pump(ctx context.Context) {
	defer close(in.out)

	ticker := time.NewTicker(drainInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-in.done:
			return
		case <-ticker.C:
			for {
				cmd, ok := in.buf.Read()
				if !ok {
					break
				}
				select {
				case in.out <- cmd:
				case <-ctx.Done():
					return
				case <-in.done:
					return
				}
			}
		}
	}
}

// Close shuts the queue down. Blocked producers are woken with an
// error; queued commands are discarded.
func (in *Ingress) Close() error {
	var err error
	in.stopOnce.Do(func() {
		close(in.done)
		err = in.buf.Close()
	})
	return err
}
