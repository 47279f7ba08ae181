// mumble-json-bridge is a runnable demo host process: it starts the
// broker against the demoapi catalog and runs until SIGINT/SIGTERM.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/mumble-voip/mumble-json-bridge/internal/broker"
	"github.com/mumble-voip/mumble-json-bridge/internal/config"
	"github.com/mumble-voip/mumble-json-bridge/internal/demoapi"
	"github.com/spf13/pflag"
)

func main() {
	configPath := pflag.StringP("config", "c", "", "path to a YAML config file (overrides "+config.EnvVar+")")
	help := pflag.BoolP("help", "h", false, "print usage")
	pflag.Parse()

	if *help {
		fmt.Fprintln(os.Stderr, "usage: mumble-json-bridge [-c config.yaml]")
		pflag.PrintDefaults()
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[mumble-json-bridge] config: %v\n", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel(cfg.LogLevel),
	}))

	b := broker.New(
		broker.WithPipeDir(cfg.PipeDir),
		broker.WithDispatcher(demoapi.New()),
		broker.WithWriteTimeoutMS(cfg.WriteTimeoutMS),
		broker.WithLogger(logger),
	)

	if err := b.Start(); err != nil {
		logger.Error("failed to start broker", "error", err)
		os.Exit(1)
	}
	logger.Info("broker started", "secret", b.Secret())

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	logger.Info("shutting down")
	b.Stop(true)
}

func logLevel(name string) slog.Level {
	switch name {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
