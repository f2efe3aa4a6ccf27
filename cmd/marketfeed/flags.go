package main

import (
	"flag"
	"fmt"
	"os"
)

// CLIConfig holds command-line configuration
type CLIConfig struct {
	ConfigPath  string
	LogLevel    string
	LogFormat   string
	UseTestnet  bool
	ShowVersion bool
	ShowHelp    bool
	Validate    bool
}

func parseFlags() *CLIConfig {
	cfg := &CLIConfig{}

	flag.StringVar(&cfg.ConfigPath, "config",
		getEnv("MARKETFEED_CONFIG", ""),
		"Path to configuration file; empty uses built-in defaults (env: MARKETFEED_CONFIG)")

	flag.StringVar(&cfg.LogLevel, "log-level",
		getEnv("MARKETFEED_LOG_LEVEL", "info"),
		"Log level: debug, info, warn, error (env: MARKETFEED_LOG_LEVEL)")

	flag.StringVar(&cfg.LogFormat, "log-format",
		getEnv("MARKETFEED_LOG_FORMAT", "text"),
		"Log format: json, text (env: MARKETFEED_LOG_FORMAT)")

	flag.BoolVar(&cfg.UseTestnet, "testnet",
		getEnvBool("MARKETFEED_USE_TESTNET", false),
		"Connect to the testnet endpoint (env: MARKETFEED_USE_TESTNET)")

	flag.BoolVar(&cfg.ShowVersion, "version", false, "Show version information")
	flag.BoolVar(&cfg.ShowVersion, "v", false, "Show version information")
	flag.BoolVar(&cfg.ShowHelp, "help", false, "Show help information")
	flag.BoolVar(&cfg.ShowHelp, "h", false, "Show help information")
	flag.BoolVar(&cfg.Validate, "validate", false, "Validate configuration and exit")

	flag.Usage = printDetailedHelp

	flag.Parse()

	return cfg
}

func validateFlags(cfg *CLIConfig) error {
	if cfg.ShowVersion || cfg.ShowHelp {
		return nil
	}

	if cfg.ConfigPath != "" {
		if _, err := os.Stat(cfg.ConfigPath); err != nil {
			return fmt.Errorf("config file not found: %s", cfg.ConfigPath)
		}
	}

	validLevels := []string{"debug", "info", "warn", "error"}
	if !contains(validLevels, cfg.LogLevel) {
		return fmt.Errorf("invalid log level: %s", cfg.LogLevel)
	}

	validFormats := []string{"json", "text"}
	if !contains(validFormats, cfg.LogFormat) {
		return fmt.Errorf("invalid log format: %s", cfg.LogFormat)
	}

	return nil
}

func printDetailedHelp() {
	_, _ = fmt.Fprintf(os.Stderr, `%s - dynamic market data stream client

Usage: %s [options]

Options:
`, appName, os.Args[0])
	flag.PrintDefaults()
	_, _ = fmt.Fprintf(os.Stderr, `
Interactive commands (on stdin):
  addsub <topic> [topic...]   subscribe, e.g. addsub btcusdt@trade
  delsub <topic> [topic...]   unsubscribe
  list                        show local desired/active sets
  listserver                  query server-side subscriptions
  help                        show command help
  quit                        close the connection and exit

Examples:
  # Run against testnet with a config file
  %s --config=configs/marketfeed.json --testnet

  # Run with debug logging
  %s --log-level=debug --log-format=text

Version: %s
`, os.Args[0], os.Args[0], Version)
}

// Environment variable helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		switch value {
		case "1", "true", "TRUE", "True":
			return true
		case "0", "false", "FALSE", "False":
			return false
		}
	}
	return defaultValue
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
