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

	"github.com/joao-fontenele/doorpos/internal/config"
	"github.com/joao-fontenele/doorpos/internal/journal"
	"github.com/joao-fontenele/doorpos/internal/messaging"
	"github.com/joao-fontenele/doorpos/internal/telemetry"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load("journal")
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	if cfg.Journal.PostgresURL == "" {
		logger.Error("POSTGRES_URL environment variable is required")
		os.Exit(1)
	}
	if len(cfg.Journal.Brokers) == 0 {
		logger.Error("KAFKA_BROKERS environment variable is required")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	shutdownTracer, err := telemetry.InitTracerProvider(ctx, cfg.Telemetry)
	if err != nil {
		logger.Error("failed to initialize tracer", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownTracer(context.Background()) }()

	metricsHandler, shutdownMeter, err := telemetry.InitMeterProvider(cfg.Telemetry)
	if err != nil {
		logger.Error("failed to initialize meter", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownMeter(context.Background()) }()

	db, err := telemetry.OpenDB(cfg.Journal.PostgresURL, "journal")
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	if err := db.PingContext(ctx); err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}

	handler := journal.NewHandler(journal.NewRepository(db), logger)

	consumer := messaging.NewSaleConsumer(cfg.Journal.Brokers, cfg.Journal.Topic, cfg.Journal.GroupID, logger)
	defer func() { _ = consumer.Close() }()

	consumerDone := make(chan struct{})
	go func() {
		defer close(consumerDone)
		logger.Info("consuming sale events", "brokers", cfg.Journal.Brokers, "topic", cfg.Journal.Topic)
		if err := consumer.Consume(ctx, handler.Store); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("consumer error", "error", err)
			cancel()
		}
	}()

	mux := http.NewServeMux()
	mux.HandleFunc("GET /sales", telemetry.WithHTTPRoute(handler.HandleList))
	mux.HandleFunc("GET /sales/{orderId}", telemetry.WithHTTPRoute(handler.HandleGetByOrder))
	mux.Handle("GET /metrics", metricsHandler)

	port := cfg.Port
	if port == "" {
		port = "8083"
	}

	server := &http.Server{
		Addr:         ":" + port,
		Handler:      telemetry.NewServerHandler(mux, "journal"),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("starting journal service", "port", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()

	logger.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
	<-consumerDone
}
