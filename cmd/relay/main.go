package main

import (
	"chat-relay/infrastructure/grpc/server"
	httpserver "chat-relay/infrastructure/http/server"
	"chat-relay/internal"
	"chat-relay/observability"
	"chat-relay/repositories"
	"chat-relay/runtime"
	"chat-relay/runtime/workers"
	"chat-relay/services"
	"chat-relay/sink"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/blugelabs/bluge"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/database"
	"github.com/mama165/sdk-go/logs"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Exit codes to provide meaningful status to the operating system or service manager (e.g., systemd).
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Relay terminated with error: %v\n", err)
	}
	os.Exit(code)
}

// run initializes all components, manages the server lifecycle, and centralizes error reporting.
// Every defer (database and index close) runs before the process exits.
func run() (int, error) {
	// 1. Configuration & Logger
	_ = godotenv.Load()
	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	logger := logs.GetLoggerFromString(config.LogLevel)
	ctx := context.Background()

	// 2. Database (BadgerDB) and index (Bluge)
	db, err := badger.Open(buildBadgerOpts(config, logger, ctx))
	if err != nil {
		return exitRuntime, fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		logger.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	if logger.Enabled(ctx, slog.LevelDebug) {
		endpoint := "/inspect"
		logger.Info("Debug Badger inspector available", "url", fmt.Sprintf("http://localhost:%d%s", config.DebugPort, endpoint))
		database.StartDebugServer(db, config.DebugPort, endpoint, MessageMapper)
	}

	store, err := repositories.NewStore(db, logger, config.LimitMessages)
	if err != nil {
		return exitRuntime, fmt.Errorf("store init failed: %w", err)
	}
	defer store.Close()

	blugeWriter, err := bluge.OpenWriter(bluge.DefaultConfig(config.BlugeFilepath))
	if err != nil {
		return exitRuntime, fmt.Errorf("failed to open bluge writer: %w", err)
	}
	defer func() {
		logger.Info("Closing Bluge...")
		_ = blugeWriter.Close()
	}()

	// 3. Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(registry)

	// 4. Relay core
	indexSink := sink.NewIndexSink(blugeWriter, logger)
	indexQueue := workers.NewIndexQueue(logger, config.IndexQueueSize, metrics)
	channels := runtime.NewRegistry(logger, config.SinkTimeout, metrics)
	identity := services.NewIdentityService(store, logger)
	replay := services.NewReplayService(store, identity, logger, metrics)
	relay := services.NewRelayService(store, channels, indexQueue, logger, metrics)
	sessions := services.NewSessionService(store, identity, channels, replay, relay, logger, metrics, config.ConnectionBufferSize)

	// 5. Supervision
	sup := workers.NewSupervisor(logger, config.RestartInterval, metrics)
	for i := 0; i < config.IndexWorkers; i++ {
		sup.Add(workers.NewIndexWorker(logger, store, indexSink, indexQueue.Jobs, config.IndexTimeout, metrics))
	}
	sup.Add(
		workers.NewHealthMonitoringWorker(logger, metrics, config.MetricInterval),
		workers.NewChannelCapacityWorker(logger, []workers.NamedChannel{
			{Name: "index_queue", Channel: indexQueue.Jobs},
		}, metrics, config.MetricInterval),
	)

	// 6. Context & Signals
	// NotifyContext captures OS signals and cancels the context to trigger a shutdown.
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errChan := make(chan error, 2)
	supervisorDone := make(chan struct{})
	go func() {
		defer close(supervisorDone)
		logger.Info("Starting supervisor...")
		// Workers outlive the signal, they are stopped once sessions are done
		sup.Run(context.WithoutCancel(ctx))
	}()

	// 7. gRPC health server
	grpcAddress := fmt.Sprintf("%s:%d", config.Host, config.GrpcPort)
	grpcListener, err := net.Listen("tcp", grpcAddress)
	if err != nil {
		sup.Stop()
		<-supervisorDone
		return exitRuntime, fmt.Errorf("failed to listen on %s: %w", grpcAddress, err)
	}
	healthServer := server.NewHealthServer(logger)
	go func() {
		if err := healthServer.Serve(grpcListener); err != nil {
			errChan <- err
		}
	}()

	// 8. HTTP server (websocket, search, metrics)
	address := fmt.Sprintf("%s:%d", config.Host, config.Port)
	chatServer := httpserver.NewChatServer(ctx, logger, sessions, indexSink, store, registry)
	httpServer := &http.Server{
		Addr:              address,
		Handler:           chatServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("Starting HTTP server", "address", address, "at", time.Now().UTC())
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()
	healthServer.Serving()

	// 9. Wait for Stop or Error
	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case err := <-errChan:
		stop()
		healthServer.Stop()
		shutdown(logger, config, httpServer, chatServer, sup, supervisorDone)
		return exitRuntime, err
	}

	// 10. Final Cleanup (Graceful Shutdown)
	logger.Info("Shutting down gracefully...")
	healthServer.Stop()
	shutdown(logger, config, httpServer, chatServer, sup, supervisorDone)
	logger.Info("Program stopped cleanly")

	return exitOK, nil
}

// shutdown runs before the deferred Bluge and Badger closes.
// Sessions are bound to the signal context and close themselves; a relay in
// flight still persists, broadcasts and queues its index job. Only then are
// the index workers stopped, they drain their queue on the way out.
func shutdown(
	logger *slog.Logger,
	config internal.Config,
	httpServer *http.Server,
	chatServer *httpserver.ChatServer,
	sup *workers.Supervisor,
	supervisorDone <-chan struct{},
) {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP server shutdown incomplete", "error", err)
	}
	if err := chatServer.Wait(shutdownCtx); err != nil {
		logger.Warn("Websocket sessions still running at shutdown", "error", err)
	}
	sup.Stop()
	<-supervisorDone
}

func buildBadgerOpts(config internal.Config, logger *slog.Logger, ctx context.Context) badger.Options {
	options := badger.DefaultOptions(config.BadgerFilepath)

	if logger.Enabled(ctx, slog.LevelDebug) {
		options = options.WithLoggingLevel(badger.DEBUG).
			WithBypassLockGuard(true)
	} else {
		options = options.WithLoggingLevel(badger.INFO)
	}

	return options
}
