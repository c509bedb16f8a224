package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"trajectory-rl/internal/config"
	"trajectory-rl/internal/logging"
	"trajectory-rl/internal/worker"
)

var (
	configFile = flag.String("config", os.Getenv("CONFIG_FILE"), "Path to configuration file")
	logLevel   = flag.String("log-level", "", "Log level override (debug, info, warn, error)")
)

func main() {
	flag.Parse()

	cfg, err := config.LoadWorker(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if cfg.WorkerID == "" {
		cfg.WorkerID = "worker-" + uuid.NewString()
	}

	runner := &worker.Runner{
		WorkerID:      cfg.WorkerID,
		BufferURL:     cfg.BufferURL,
		TrainerURL:    cfg.TrainerURL,
		BatchEpisodes: cfg.BatchEpisodes,
		PolicyRefresh: cfg.PolicyRefresh,
		Seed:          cfg.Seed,
		Backoff:       cfg.Backoff,
		Env:           cfg.Env,
		Logger:        logger,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("Starting rollout worker",
		zap.String("workerId", cfg.WorkerID),
		zap.String("bufferUrl", cfg.BufferURL),
		zap.Int("batchEpisodes", cfg.BatchEpisodes),
	)
	if err := runner.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal("Worker stopped", zap.Error(err))
	}
	logger.Info("Rollout worker stopped")
}
