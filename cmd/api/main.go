package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/safar/sportshop/internal/api"
	"github.com/safar/sportshop/internal/auth"
	"github.com/safar/sportshop/internal/cache"
	"github.com/safar/sportshop/internal/catalog"
	"github.com/safar/sportshop/internal/config"
	"github.com/safar/sportshop/internal/database"
	"github.com/safar/sportshop/internal/events"
	"github.com/safar/sportshop/internal/metrics"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.Auth.Validate(); err != nil {
		return err
	}
	slog.SetDefault(cfg.Log.NewLogger())

	if cfg.Database.MigrateOnStart {
		if err := database.Migrate(cfg.Database.URL, "up"); err != nil {
			return err
		}
		slog.Info("migrations applied")
	}

	db, err := database.NewConnection(&cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()
	slog.Info("connected to database")

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		return err
	}

	cat, err := catalog.New(db)
	if err != nil {
		return err
	}

	var products *cache.ProductCache
	if cfg.Redis.Enabled() {
		client := cache.NewClient(&cfg.Redis)
		defer client.Close()

		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := client.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			slog.Warn("redis unavailable, product cache disabled", "addr", cfg.Redis.Addr, "error", err)
		} else {
			products = cache.NewProductCache(client, cfg.Redis.ProductTTL)
			slog.Info("product cache enabled", "addr", cfg.Redis.Addr)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	relayDone := make(chan struct{})
	if cfg.Kafka.Enabled() {
		publisher := events.NewKafkaPublisher(&cfg.Kafka)
		defer publisher.Close()

		topicCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		if err := publisher.EnsureTopic(topicCtx, 3); err != nil {
			slog.Warn("ensure kafka topic", "topic", cfg.Kafka.Topic, "error", err)
		}
		cancel()

		relay := events.NewRelay(db, publisher, cfg.Kafka.BatchSize, cfg.Kafka.PollInterval)
		go func() {
			defer close(relayDone)
			if err := relay.Run(ctx); err != nil {
				slog.Error("outbox relay stopped", "error", err)
			}
		}()
	} else {
		close(relayDone)
		slog.Info("kafka not configured, events stay in the outbox")
	}

	server := api.NewServer(db, cat, products, auth.NewTokenIssuer(&cfg.Auth))
	httpServer := api.NewHTTPServer(server.Routes(), &cfg.Server)

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server starting", "port", cfg.Server.Port)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var serveErr error
	select {
	case serveErr = <-errCh:
		stop()
	case <-ctx.Done():
		slog.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("http shutdown", "error", err)
	}
	<-relayDone

	slog.Info("server stopped")
	return serveErr
}
