package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fablewright/fablevoice/internal/bus"
	"github.com/fablewright/fablevoice/internal/config"
	"github.com/fablewright/fablevoice/internal/eventstore"
	"github.com/fablewright/fablevoice/internal/natsserver"
	"github.com/fablewright/fablevoice/internal/runtime"
	"github.com/fablewright/fablevoice/internal/voiceline"
)

var version = "0.1.0-dev"

func main() {
	var (
		configPath  string
		showVersion bool
	)

	flag.StringVar(&configPath, "config", "fablevoice.yaml", "Path to configuration file")
	flag.BoolVar(&showVersion, "version", false, "Print version and exit")
	flag.Parse()

	if showVersion {
		fmt.Println(version)
		return
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	embedded, err := natsserver.Start(cfg.Bus, logger)
	if err != nil {
		logger.Error("failed to start embedded NATS server", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer embedded.Shutdown()

	busClient, err := bus.Connect(ctx, cfg.Bus, logger)
	if err != nil {
		logger.Error("failed to connect to bus", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer busClient.Close()

	store, err := eventstore.Open(ctx, cfg.EventStore, logger)
	if err != nil {
		logger.Error("failed to open run store", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer store.Close()

	pipeline, err := voiceline.NewPipeline(cfg, logger)
	if err != nil {
		logger.Error("failed to build voice line pipeline", slog.String("error", err.Error()))
		os.Exit(1)
	}

	service := voiceline.NewService(pipeline, busClient, store, logger)
	if err := service.Start(ctx); err != nil {
		logger.Error("failed to start voice line service", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer service.Stop()

	rt := runtime.New(cfg, logger, busClient)

	if err := rt.Start(ctx); err != nil {
		logger.Error("runtime exited with error", slog.String("error", err.Error()))
		time.Sleep(1 * time.Second)
		os.Exit(1)
	}

	logger.Info("shutdown complete")
}
