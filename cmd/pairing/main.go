package main

import (
	"chat-pair/contract"
	"chat-pair/domain/event"
	grpcserver "chat-pair/infrastructure/grpc/server"
	httpserver "chat-pair/infrastructure/http/server"
	"chat-pair/infrastructure/storage"
	"chat-pair/internal"
	"chat-pair/matchmaking"
	"chat-pair/moderation"
	"chat-pair/observability"
	"chat-pair/runtime"
	"chat-pair/runtime/workers"
	"chat-pair/services"
	"chat-pair/translation"
	"chat-pair/transport"
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
	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	grpc3 "github.com/mama165/sdk-go/grpc"
	"github.com/mama165/sdk-go/logs"
	"google.golang.org/grpc"
)

// Exit codes to provide meaningful status to the operating system or service manager (e.g., systemd).
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

const (
	coordinationPath = "/v1/coordination"
	shutdownTimeout  = 10 * time.Second
)

// observerTransport is a coordination transport whose connectivity feeds the gRPC health status.
type observerTransport interface {
	contract.Transport
	grpcserver.Connectivity
}

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Pairing observer terminated with error: %v\n", err)
	}
	os.Exit(code)
}

// run builds one observer, serves it and waits for a signal or a server failure.
// Every defer runs before the exit code reaches main.
func run() (int, error) {
	// 1. Configuration & Logger
	_ = godotenv.Load()
	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	if err := config.Validate(); err != nil {
		return exitConfig, err
	}
	charReplacement, err := internal.CharacterRune(config.CharReplacement)
	if err != nil {
		return exitConfig, err
	}
	if config.ObserverID == "" {
		config.ObserverID = uuid.NewString()
	}

	logger := logs.GetLoggerFromString(config.LogLevel).With("observer", config.ObserverID)
	ctx := context.Background()

	// 2. Database (BadgerDB) holding the queue snapshot
	db, err := badger.Open(buildBadgerOpts(config, logger, ctx))
	if err != nil {
		return exitRuntime, fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		logger.Info("Closing BadgerDB...")
		_ = db.Close()
	}()
	snapshots := storage.NewSnapshotRepository(db, logger, "")

	// 3. Moderation & Translation
	censored, err := moderation.NewCensoredLoader(nil).LoadAll(moderation.DefaultCensoredDir)
	if err != nil {
		return exitRuntime, fmt.Errorf("censored words loading failed: %w", err)
	}
	moderator, err := moderation.NewModerator(censored.Words, charReplacement, logger)
	if err != nil {
		return exitRuntime, fmt.Errorf("moderator init failed: %w", err)
	}
	logger.Info("Moderation dictionaries loaded", "languages", censored.Languages, "words", len(censored.Words))

	gateway, err := buildGateway(config, logger)
	if err != nil {
		return exitRuntime, err
	}
	defer gateway.Close()

	// 4. Coordination transport
	var tr observerTransport
	var relay *transport.Relay
	switch config.Transport {
	case internal.TransportWebSocket:
		tr = transport.NewWebSocketTransport(logger, config.RelayURL, config.TransportBufferSize, config.ReconnectMaxInterval)
	default:
		tr = transport.NewBus(logger, config.TransportBufferSize).Attach()
	}
	defer func() { _ = tr.Close() }()
	if config.ServeRelay {
		relay = transport.NewRelay(logger, transport.DefaultWriteTimeout)
	}

	// 5. Queue, sessions, router & orchestration
	counter := event.NewCounter()
	events := make(chan event.DomainEvent, config.BufferSize)
	registry := runtime.NewRegistry(nil)
	queue := matchmaking.NewQueue(logger, matchmaking.Config{
		ObserverID:   config.ObserverID,
		Mode:         matchmaking.Mode(config.PairingMode),
		TTL:          config.QueueTTL,
		MatchTimeout: config.MatchTimeout,
	}, tr, registry, snapshots)
	router := runtime.NewMessageRouter(logger, runtime.RouterConfig{
		TranslationTimeout: config.TranslationTimeout,
		MessageLogSize:     config.MessageLogSize,
	}, registry, gateway, moderator, events)
	monitoring := observability.NewMonitoringManager(logger, config.ObserverID, config.PairingMode, counter)

	orchestrator := runtime.NewOrchestrator(logger, runtime.OrchestratorConfig{
		SinkTimeout:          config.SinkTimeout,
		MatchSweepInterval:   config.MatchSweepInterval,
		StateSyncInterval:    config.StateSyncInterval,
		HeartbeatInterval:    config.HeartbeatInterval,
		LatencyThreshold:     config.LatencyThreshold,
		SessionRetention:     config.SessionRetention,
		EvictionInterval:     config.EvictionInterval,
		LowCapacityThreshold: config.LowCapacityThreshold,
	}, workers.NewSupervisor(logger).WithRestartBackoff(config.RestartInterval, config.MaxRestartInterval), registry, queue, router, tr, events, counter, monitoring)

	if ws, ok := tr.(*transport.WebSocketTransport); ok {
		// Whatever was missed while disconnected comes back through the other observers.
		ws.OnConnect(queue.RequestState)
	}

	healthServer := grpcserver.NewHealthServer(logger, tr, time.Second)
	orchestrator.AddWorkers(healthServer)

	// 6. Context & Signals
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errChan := make(chan error, 3)

	// 7. Start the Engine (queue, transport and supervised workers)
	go func() {
		logger.Info("Starting orchestrator...", "mode", config.PairingMode, "transport", config.Transport)
		if err := orchestrator.Start(ctx); err != nil {
			errChan <- fmt.Errorf("orchestrator error: %w", err)
		}
	}()

	if logger.Enabled(ctx, slog.LevelDebug) {
		debugServer := internal.StartDebugServer(logger, db, config.DebugPort, "/inspect",
			internal.SnapshotMapper(time.Now), func() map[string]any {
				stats := monitoring.GetLatest()
				return map[string]any{"Observer": stats.ObserverID, "Mode": stats.Mode, "Queue": queue.Size()}
			})
		defer func() { _ = debugServer.Close() }()
		logger.Info("Debug Badger inspector available", "url", fmt.Sprintf("http://localhost:%d/inspect", config.DebugPort))
	}

	// 8. HTTP API
	chatService := services.NewChatService(logger, queue, registry, router, orchestrator.Sessions(), nil)
	api := httpserver.NewServer(logger, chatService, monitoring, httpserver.Config{
		ConnectionBufferSize: config.ConnectionBufferSize,
		AllowedOrigins:       config.Origins(),
	})
	if relay != nil {
		api.Handle(coordinationPath, relay)
		logger.Info("Serving coordination relay", "path", coordinationPath)
	}
	go func() {
		if err := api.Start(fmt.Sprintf("%s:%d", config.Host, config.Port)); err != nil {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	// 9. gRPC health
	grpcAddress := fmt.Sprintf("%s:%d", config.Host, config.GrpcPort)
	listener, err := net.Listen("tcp", grpcAddress)
	if err != nil {
		return exitRuntime, fmt.Errorf("failed to listen on %s: %w", grpcAddress, err)
	}
	s := grpc.NewServer(grpc.ChainUnaryInterceptor(grpc3.UnaryLoggingInterceptor(logger)))
	healthServer.Register(s)
	go func() {
		logger.Info("Starting gRPC server", "address", grpcAddress, "at", time.Now().UTC())
		if err := s.Serve(listener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			errChan <- fmt.Errorf("gRPC server error: %w", err)
		}
	}()

	// 10. Wait for Stop or Error
	code := exitOK
	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case err = <-errChan:
		logger.Error("Component failure, shutting down", "error", err)
		code = exitRuntime
	}

	// 11. Final Cleanup (Graceful Shutdown)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if relay != nil {
		relay.Shutdown()
	}
	if shutdownErr := api.Shutdown(shutdownCtx); shutdownErr != nil && !errors.Is(shutdownErr, http.ErrServerClosed) {
		logger.Warn("HTTP server shutdown failed", "error", shutdownErr)
	}
	s.GracefulStop()
	orchestrator.Stop()
	logger.Info("Program stopped cleanly")

	return code, err
}

func buildBadgerOpts(config internal.Config, logger *slog.Logger, ctx context.Context) badger.Options {
	if config.BadgerFilepath == "" {
		logger.Warn("BADGER_FILEPATH not set, the queue snapshot will not survive a restart")
		return badger.DefaultOptions("").WithInMemory(true).WithLoggingLevel(badger.WARNING)
	}

	options := badger.DefaultOptions(config.BadgerFilepath)
	if logger.Enabled(ctx, slog.LevelDebug) {
		options = options.WithLoggingLevel(badger.DEBUG).
			WithBypassLockGuard(true)
	} else {
		options = options.WithLoggingLevel(badger.INFO)
	}
	return options
}

// buildGateway stacks the translation service behind its breaker, the detector and the cache.
func buildGateway(config internal.Config, logger *slog.Logger) (*translation.CachedGateway, error) {
	breaker := translation.NewCircuitBreaker(logger, "translation", uint32(config.BreakerMaxFailures), config.BreakerTimeout)
	remote := translation.NewHTTPGateway(logger, &http.Client{}, config.TranslationURL, config.TranslationTimeout, breaker)

	var gateway contract.TranslationGateway = remote
	if config.LanguageDetection == internal.DetectionLocal {
		gateway = translation.NewGateway(remote, translation.NewLocalDetector())
	}

	cached, err := translation.NewCachedGateway(gateway, config.TranslationCacheSize)
	if err != nil {
		return nil, fmt.Errorf("translation cache init failed: %w", err)
	}
	return cached, nil
}
