package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"nations/internal/config"
	"nations/internal/events"
	"nations/internal/game"
	"nations/internal/ledger"
	"nations/internal/payout"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := config.LoadDotEnv(); err != nil {
		slog.Error("load .env", "err", err)
		os.Exit(1)
	}
	cfg, err := config.LoadWorkerFromEnv()
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	store, err := ledger.Open(ctx, cfg.Store, logger)
	if err != nil {
		logger.Error("ledger open failed", "err", err)
		os.Exit(1)
	}
	defer store.Close()

	var publisher events.Publisher = events.Nop{}
	if len(cfg.KafkaBrokers) > 0 {
		publisher = events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
	}
	defer publisher.Close()

	svc := game.NewService(store, nil, logger, game.Options{Publisher: publisher})
	scheduler := payout.New(svc, logger, payout.Config{Every: cfg.PayoutEvery, Timeout: cfg.Store.WriteTimeout * 2})

	if cfg.RunOnce {
		n, err := scheduler.RunOnce(ctx)
		if err != nil {
			logger.Error("payout failed", "err", err)
			os.Exit(1)
		}
		logger.Info("worker run-once completed", "accounts", n)
		return
	}

	logger.Info("worker started", "every", cfg.PayoutEvery.String())
	scheduler.Run(ctx)
	logger.Info("worker shutdown")
}
