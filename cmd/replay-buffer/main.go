package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"trajectory-rl/internal/buffer"
	"trajectory-rl/internal/config"
	"trajectory-rl/internal/logging"
	"trajectory-rl/internal/server"
)

var (
	configFile = flag.String("config", os.Getenv("CONFIG_FILE"), "Path to configuration file")
	logLevel   = flag.String("log-level", "", "Log level override (debug, info, warn, error)")
)

func main() {
	flag.Parse()

	cfg, err := config.LoadBuffer(*configFile)
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

	device, err := buffer.DeviceByName(cfg.Buffer.Device)
	if err != nil {
		logger.Fatal("Invalid buffer device", zap.Error(err))
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	shared, err := buffer.NewShared(cfg.Buffer.MaxSteps,
		buffer.WithDefaultBufferLength(cfg.Buffer.DefaultBufferLength),
		buffer.WithDevice(device),
		buffer.WithLogger(logger.Named("buffer")),
		buffer.WithMetrics(reg, "replay"),
	)
	if err != nil {
		logger.Fatal("Failed to create buffer", zap.Error(err))
	}

	srv, err := server.New(shared, reg, logger.Named("server"))
	if err != nil {
		logger.Fatal("Failed to create server", zap.Error(err))
	}

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("Trajectory buffer listening",
			zap.String("address", httpServer.Addr),
			zap.Int("maxSteps", cfg.Buffer.MaxSteps),
			zap.String("device", cfg.Buffer.Device),
		)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigterm := make(chan os.Signal, 1)
	signal.Notify(sigterm, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigterm
	logger.Info("Received termination signal", zap.String("signal", sig.String()))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("Error stopping server", zap.Error(err))
	}
}
