package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"
)

// Config is built once at startup and handed to every component.
type Config struct {
	Logger         zerolog.Logger
	LogLevel       zerolog.Level
	MaxSize        int64
	MaxAttempts    int
	PushgatewayURL string
	ListenAddr     string
}

func parseLogLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "critical", "fatal":
		return zerolog.FatalLevel
	default:
		return zerolog.InfoLevel
	}
}

// parseSize accepts plain byte counts ("9900000") and human sizes ("9.9MB", "6MiB").
func parseSize(raw string) (int64, error) {
	raw = strings.TrimSpace(raw)
	if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
		if i <= 0 {
			return 0, fmt.Errorf("size must be positive: %q", raw)
		}
		return i, nil
	}
	v, err := humanize.ParseBytes(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid size value %q: %w", raw, err)
	}
	if v == 0 {
		return 0, fmt.Errorf("size must be positive: %q", raw)
	}
	return int64(v), nil
}

func configFromCLI(c *cli.Context, logger zerolog.Logger) (Config, error) {
	maxSize, err := parseSize(c.String("max-size"))
	if err != nil {
		return Config{}, fmt.Errorf("failed to parse max-size: %w", err)
	}

	maxAttempts := c.Int("max-attempts")
	if maxAttempts < 1 {
		return Config{}, fmt.Errorf("max-attempts must be at least 1, got %d", maxAttempts)
	}

	level := parseLogLevel(c.String("log-level"))

	return Config{
		Logger:         logger.Level(level),
		LogLevel:       level,
		MaxSize:        maxSize,
		MaxAttempts:    maxAttempts,
		PushgatewayURL: c.String("pushgateway-url"),
		ListenAddr:     c.String("listen-addr"),
	}, nil
}
