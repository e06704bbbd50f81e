// Command webdogd is the webdog page-change-monitoring daemon.
//
// Usage:
//
//	webdogd -config webdog.yaml
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hazyhaar/webdog"
)

func main() {
	configPath := flag.String("config", "webdog.yaml", "path to webdog.yaml config file")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()

	var level slog.Level
	switch *logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, *configPath); err != nil {
		logger.Error("webdogd: fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, configPath string) error {
	cfg, err := webdog.LoadConfigFile(configPath)
	if err != nil {
		logger.Warn("webdogd: failed to load config file, using defaults", "path", configPath, "error", err)
		cfg = webdog.DefaultConfig()
	}

	var sinks []webdog.Sink
	for _, sc := range cfg.Sinks {
		switch sc.Type {
		case "stdout":
			sinks = append(sinks, webdog.NewStdoutSink(nil))
		case "webhook":
			sinks = append(sinks, webdog.NewWebhookSink(sc.URL, webdog.WithWebhookLogger(logger)))
		default:
			logger.Warn("webdogd: unknown sink type", "type", sc.Type)
		}
	}
	if len(sinks) == 0 {
		sinks = append(sinks, webdog.NewStdoutSink(nil))
	}

	p := webdog.New(cfg, logger, sinks...)

	if err := p.Start(ctx); err != nil && ctx.Err() == nil {
		return fmt.Errorf("start: %w", err)
	}
	p.Stop()
	return nil
}
