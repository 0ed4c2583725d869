// Package main provides the planning poker server binary that serves the
// real-time room endpoint over WebSockets.
package main

import (
	"context"
	"flag"
	"log"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/scrumpoker/internal/config"
	"github.com/cory-johannsen/scrumpoker/internal/frontend/realtime"
	"github.com/cory-johannsen/scrumpoker/internal/observability"
	"github.com/cory-johannsen/scrumpoker/internal/poker"
	"github.com/cory-johannsen/scrumpoker/internal/pokerserver"
	"github.com/cory-johannsen/scrumpoker/internal/server"
)

func main() {
	start := time.Now()

	configPath := flag.String("config", "configs/dev.yaml", "path to configuration file; empty = defaults and environment only")
	flag.Parse()

	ctx := context.Background()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logging, zap.Fields(zap.String("service", cfg.Telemetry.ServiceName)))
	if err != nil {
		log.Fatalf("initializing logger: %v", err)
	}
	defer logger.Sync()

	shutdownTracing, err := observability.SetupTracing(ctx, cfg.Telemetry)
	if err != nil {
		logger.Fatal("initializing tracing", zap.Error(err))
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Warn("flushing traces", zap.Error(err))
		}
	}()

	logger.Info("starting poker server",
		zap.String("addr", cfg.Server.Addr()),
		zap.String("path", cfg.Server.Path),
		zap.Bool("strict_votes", cfg.Poker.StrictVotes),
		zap.Bool("tracing", cfg.Telemetry.Enabled),
	)

	rooms := poker.NewRegistry()
	hub := realtime.NewHub(logger.Named("hub"))
	coordinator, err := pokerserver.NewCoordinator(rooms, hub, pokerserver.Options{
		Deck:        cfg.Poker.Deck,
		StrictVotes: cfg.Poker.StrictVotes,
	}, logger.Named("rooms"))
	if err != nil {
		logger.Fatal("creating room coordinator", zap.Error(err))
	}
	acceptor := realtime.NewAcceptor(cfg.Server, hub, coordinator, logger.Named("realtime"))

	// Wire lifecycle. Services stop in reverse order, so health outlives the
	// endpoint it reports on.
	lifecycle := server.NewLifecycle(logger, cfg.Server.ShutdownTimeout)

	if cfg.Health.Enabled {
		health := server.NewHealthServer(cfg.Health, logger.Named("health"))
		lifecycle.Add("health", health)
		lifecycle.OnShutdown(func() { health.SetServing(false) })
		go markServing(acceptor, health)
	}

	lifecycle.Add("realtime", &server.FuncService{
		StartFn: acceptor.ListenAndServe,
		StopFn:  acceptor.Stop,
	})

	logger.Info("poker server initialized",
		zap.Duration("startup", time.Since(start)),
	)

	if err := lifecycle.Run(ctx); err != nil {
		logger.Error("server error", zap.Error(err))
	}
	logger.Info("rooms open at exit", zap.Int("count", rooms.Count()))
}

// markServing flips health to SERVING once the acceptor is listening.
func markServing(acceptor *realtime.Acceptor, health *server.HealthServer) {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for range ticker.C {
		if acceptor.IsRunning() {
			health.SetServing(true)
			return
		}
	}
}
