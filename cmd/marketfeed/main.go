// Package main implements the entry point for the marketfeed client:
// a long-lived websocket consumer with runtime-adjustable stream
// subscriptions driven by interactive stdin commands.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/c360/marketfeed/command"
	"github.com/c360/marketfeed/config"
	"github.com/c360/marketfeed/event"
	"github.com/c360/marketfeed/metric"
	"github.com/c360/marketfeed/natsclient"
	"github.com/c360/marketfeed/pkg/retry"
	"github.com/c360/marketfeed/session"
	"github.com/c360/marketfeed/stream"
)

// Build information constants
const (
	Version = "0.1.0"
	appName = "marketfeed"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(); err != nil {
		slog.Error("application failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cliCfg := parseFlags()
	if err := validateFlags(cliCfg); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}

	if cliCfg.ShowVersion {
		fmt.Printf("%s version %s\n", appName, Version)
		return nil
	}
	if cliCfg.ShowHelp {
		printDetailedHelp()
		return nil
	}

	// .env is optional; real env vars win either way
	_ = godotenv.Load()

	logger := setupLogger(cliCfg.LogLevel, cliCfg.LogFormat)
	slog.SetDefault(logger)

	cfg, err := config.Load(cliCfg.ConfigPath)
	if err != nil {
		return err
	}
	if cliCfg.UseTestnet {
		cfg.UseTestnet = true
	}

	if cliCfg.Validate {
		slog.Info("configuration is valid")
		return nil
	}

	slog.Info("starting marketfeed",
		"endpoint", cfg.EndpointURL(),
		"initial_topics", cfg.InitialTopics)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Metrics
	var registry *metric.MetricsRegistry
	if cfg.Metrics.Enabled {
		registry = metric.NewMetricsRegistry()
		metricsServer := metric.NewServer(cfg.Metrics.Port, cfg.Metrics.Path, registry)
		if err := metricsServer.Start(); err != nil {
			return err
		}
		defer func() {
			if err := metricsServer.Stop(5 * time.Second); err != nil {
				slog.Warn("metrics server stop failed", "error", err)
			}
		}()
	}

	// Event sink
	handler, cleanup, err := setupEventHandler(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	// Session token (optional, for authenticated streams)
	endpoint, err := setupEndpoint(ctx, cfg, logger)
	if err != nil {
		return err
	}

	// Command ingress: stdin producer feeding the bounded queue
	ingress, err := command.NewIngress(cfg.CommandQueue, registry, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := ingress.Close(); err != nil {
			slog.Warn("command queue close failed", "error", err)
		}
	}()
	ingress.Start(ctx)

	reader := command.NewReader(os.Stdin, os.Stdout, ingress, logger)
	go reader.Run(ctx)

	client, err := stream.NewClient(stream.Options{
		Endpoint:       endpoint,
		InitialTopics:  cfg.InitialTopics,
		ReconnectDelay: cfg.ReconnectDelay.Std(),
		StatsInterval:  cfg.StatsInterval.Std(),
		PongInterval:   cfg.PongInterval.Std(),
		Commands:       ingress.Commands(),
		Handler:        handler,
		Registry:       registry,
		Logger:         logger,
	})
	if err != nil {
		return err
	}

	return client.Run(ctx)
}

// setupEventHandler wires the domain-event sink: NATS forwarding when
// enabled, structured logging otherwise.
func setupEventHandler(ctx context.Context, cfg *config.Config, logger *slog.Logger) (event.Handler, func(), error) {
	if !cfg.NATS.Enabled {
		return event.NewLogHandler(logger), func() {}, nil
	}

	client := natsclient.New(natsclient.DefaultConfig(cfg.NATS.URL), logger)
	if err := retry.Do(ctx, retry.Quick(), client.Connect); err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		if err := client.Close(); err != nil {
			slog.Warn("nats close failed", "error", err)
		}
	}
	return event.NewNATSHandler(client, cfg.NATS.Subject, logger), cleanup, nil
}

// setupEndpoint resolves the websocket URL, acquiring and renewing a
// listen key when the session layer is enabled.
func setupEndpoint(ctx context.Context, cfg *config.Config, logger *slog.Logger) (stream.EndpointResolver, error) {
	base := cfg.EndpointURL()
	if !cfg.Session.Enabled {
		return stream.StaticEndpoint(base), nil
	}

	source, err := session.NewListenKeySource(cfg.Session.APIBase, cfg.Session.APIKeyEnv, logger)
	if err != nil {
		return nil, err
	}
	token, err := source.Acquire(ctx)
	if err != nil {
		return nil, err
	}

	renewer := session.NewRenewer(source, token, cfg.Session.RenewInterval.Std(), logger)
	go renewer.Run(ctx)

	return stream.StaticEndpoint(session.TokenURL(base, token)), nil
}
