package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joao-fontenele/doorpos/internal/config"
	"github.com/joao-fontenele/doorpos/internal/stubapi"
	"github.com/joao-fontenele/doorpos/internal/telemetry"
)

func main() {
	ctx := context.Background()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load("stubapi")
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	shutdownTracer, err := telemetry.InitTracerProvider(ctx, cfg.Telemetry)
	if err != nil {
		logger.Error("failed to initialize tracer", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownTracer(ctx) }()

	stub := stubapi.NewServer(stubapi.DefaultSeed(), logger)

	mux := http.NewServeMux()
	stub.Routes(mux, telemetry.WithHTTPRoute)

	port := cfg.Port
	if port == "" {
		port = "8100"
	}

	server := &http.Server{
		Addr:         ":" + port,
		Handler:      http.StripPrefix("/api", telemetry.NewServerHandler(mux, "stubapi")),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("starting stub orders api", "port", port, "base_url", "http://localhost:"+port+"/api")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("shutdown error", "error", err)
		os.Exit(1)
	}
}
