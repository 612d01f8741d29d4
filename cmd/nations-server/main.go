package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"nations/internal/api"
	"nations/internal/auth"
	"nations/internal/catalog"
	"nations/internal/config"
	"nations/internal/discord"
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
	cfg, err := config.LoadServerFromEnv()
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	cat := catalog.Default()
	if cfg.CatalogFile != "" {
		if cat, err = catalog.LoadFile(cfg.CatalogFile); err != nil {
			logger.Error("catalog load failed", "path", cfg.CatalogFile, "err", err)
			os.Exit(1)
		}
	}

	store, err := ledger.Open(ctx, cfg.Store, logger)
	if err != nil {
		logger.Error("ledger open failed", "backend", cfg.Store.Backend, "err", err)
		os.Exit(1)
	}
	defer store.Close()

	var publisher events.Publisher = events.Nop{}
	if len(cfg.KafkaBrokers) > 0 {
		publisher = events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		logger.Info("publishing ledger events", "topic", cfg.KafkaTopic, "brokers", len(cfg.KafkaBrokers))
	}
	defer publisher.Close()

	gameSvc := game.NewService(store, cat, logger, game.Options{
		Settings:  &game.Settings{StartingWallet: cfg.StartingWallet, StartingIncome: cfg.StartingIncome},
		Publisher: publisher,
	})

	var wg sync.WaitGroup
	// With NATIONS_STORE=postgres-native and a separate nations-worker, only
	// the worker may tick.
	if cfg.PayoutEnabled {
		scheduler := payout.New(gameSvc, logger, payout.Config{
			Every:          cfg.PayoutEvery,
			Timeout:        cfg.Store.WriteTimeout * 2,
			RunImmediately: cfg.PayoutOnStart,
		})
		wg.Add(1)
		go func() {
			defer wg.Done()
			scheduler.Run(ctx)
		}()
	} else {
		logger.Info("NATIONS_PAYOUT_ENABLED=false, payouts left to nations-worker")
	}

	if cfg.DiscordToken != "" {
		handler := discord.NewHandler(gameSvc, logger, discord.Options{
			AdminRole:   cfg.AdminRole,
			CreatorRole: cfg.CreatorRole,
			PayoutEvery: cfg.PayoutEvery,
		})
		bot, err := discord.NewBot(cfg.DiscordToken, handler, logger)
		if err != nil {
			logger.Error("discord init failed", "err", err)
			os.Exit(1)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := bot.Run(ctx); err != nil {
				logger.Error("discord gateway failed", "err", err)
			}
		}()
	} else {
		logger.Info("DISCORD_BOT_TOKEN not set, chat gateway disabled")
	}

	server := api.New(logger, auth.NewTokenVerifier(cfg.APIToken), gameSvc)
	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	logger.Info("nations api listening", "addr", cfg.Addr, "store", cfg.Store.Backend)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server failed", "err", err)
		stop()
		wg.Wait()
		os.Exit(1)
	}
	wg.Wait()
}
