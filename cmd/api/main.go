package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/trellohooks/trellohooks/config"
	"github.com/trellohooks/trellohooks/internal/http/chi"
	"github.com/trellohooks/trellohooks/metrics"
	"github.com/trellohooks/trellohooks/trello"
	"github.com/trellohooks/trellohooks/webhook"
	"github.com/trellohooks/trellohooks/webhook/redis"
	"github.com/trellohooks/trellohooks/webhook/sqlite"
)

const shutdownTimeout = 30 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.GetConfig()
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	ctx, stop := signal.NotifyContext(
		context.Background(),
		syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT,
	)
	defer stop()

	repo, err := sqlite.NewRepository(cfg.DBPath)
	if err != nil {
		return err
	}
	defer repo.Close(ctx)

	client := trello.NewClient(cfg.TrelloAPIKey)
	engine := webhook.NewSyncEngine(repo, client, cfg.CallbackDomain, logger)
	notifier := webhook.NewNotifier(logger)

	if cfg.RedisAddr != "" {
		publisher, err := redis.NewPublisher(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.RedisStream)
		if err != nil {
			return err
		}
		defer publisher.Close(ctx)
		notifier.Register(publisher)
		logger.Info("redis stream publisher enabled", "stream", cfg.RedisStream)
	}

	exporter, err := metrics.NewExporter(repo)
	if err != nil {
		return err
	}
	defer exporter.Shutdown(context.Background())

	service := webhook.NewService(repo, engine, notifier, logger)
	service.Recorder = exporter

	r := chi.Handlers(ctx, service, cfg, exporter.Handler())

	srv := &http.Server{
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		Addr:         ":" + cfg.Port,
		Handler:      r,
	}

	errShutdown := make(chan error, 1)
	go shutdown(srv, ctx, errShutdown)

	logger.Info("listening", "port", cfg.Port)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return <-errShutdown
}

func shutdown(server *http.Server, ctxShutdown context.Context, errShutdown chan error) {
	<-ctxShutdown.Done()

	ctxTimeout, stop := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stop()

	if err := server.Shutdown(ctxTimeout); err != nil {
		errShutdown <- fmt.Errorf("forcing server close: %w", err)
		return
	}
	errShutdown <- nil
}
