package main

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/labelhive/labelhive/internal/adapters/directory"
	"github.com/labelhive/labelhive/internal/adapters/duckdb"
	"github.com/labelhive/labelhive/internal/config"
	"github.com/labelhive/labelhive/internal/core/services"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	logger.Info("starting hive dispatcher")

	if err := run(logger); err != nil {
		logger.Error("dispatcher startup failed", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		logger.Info("shutting down")
		cancel()
	}()

	repo, err := duckdb.NewRepository(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to init repository: %w", err)
	}
	defer repo.Close()

	seed := cfg.RandSeed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	rng := rand.New(rand.NewPCG(seed, seed>>1))

	workers := directory.New()
	notifier := services.NewNotificationBus(logger)
	svc := services.New(logger, repo, workers, notifier, services.SystemClock{}, rng)
	ticker := services.NewPoolTicker(logger, repo, svc, cfg.TickInterval)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return ticker.Run(ctx)
	})

	logger.Info("hive dispatcher running", "db_path", cfg.DBPath, "tick", cfg.TickInterval)
	return g.Wait()
}
