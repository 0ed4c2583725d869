package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/cory-johannsen/scrumpoker/internal/config"
)

// HealthService is the service name reported by HealthServer alongside the
// overall ("") status.
const HealthService = "scrumpoker.Room"

// HealthServer exposes the standard grpc.health.v1 service. It starts
// NOT_SERVING; callers flip it with SetServing once dependencies are up.
type HealthServer struct {
	cfg    config.HealthConfig
	logger *zap.Logger
	health *health.Server
	grpc   *grpc.Server

	mu       sync.Mutex
	listener net.Listener
}

// NewHealthServer creates a gRPC health server.
//
// Precondition: logger must be non-nil.
func NewHealthServer(cfg config.HealthConfig, logger *zap.Logger) *HealthServer {
	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	hs.SetServingStatus(HealthService, healthpb.HealthCheckResponse_NOT_SERVING)

	srv := grpc.NewServer()
	healthpb.RegisterHealthServer(srv, hs)

	return &HealthServer{
		cfg:    cfg,
		logger: logger,
		health: hs,
		grpc:   srv,
	}
}

// SetServing reports every service as SERVING or NOT_SERVING.
func (h *HealthServer) SetServing(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	h.health.SetServingStatus("", status)
	h.health.SetServingStatus(HealthService, status)
	h.logger.Info("health status changed", zap.Stringer("status", status))
}

// Start listens on the configured address and serves until Stop.
// This method blocks until the server is stopped.
func (h *HealthServer) Start() error {
	listener, err := net.Listen("tcp", h.cfg.Addr())
	if err != nil {
		return fmt.Errorf("listening on %s: %w", h.cfg.Addr(), err)
	}

	h.mu.Lock()
	h.listener = listener
	h.mu.Unlock()

	h.logger.Info("health server listening", zap.String("addr", listener.Addr().String()))
	if err := h.grpc.Serve(listener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return fmt.Errorf("serving health: %w", err)
	}
	return nil
}

// Stop marks every service NOT_SERVING and stops the gRPC server, forcing
// the stop when ctx expires first.
func (h *HealthServer) Stop(ctx context.Context) error {
	h.health.Shutdown()

	done := make(chan struct{})
	go func() {
		h.grpc.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		h.grpc.Stop()
		<-done
		return fmt.Errorf("stopping health server: %w", ctx.Err())
	}
}

// Addr returns the actual listening address, or empty string if not yet listening.
func (h *HealthServer) Addr() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.listener != nil {
		return h.listener.Addr().String()
	}
	return ""
}

// WaitForAddr polls until the server is listening or ctx ends.
func (h *HealthServer) WaitForAddr(ctx context.Context) (string, error) {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		if addr := h.Addr(); addr != "" {
			return addr, nil
		}
		select {
		case <-ctx.Done():
			return "", fmt.Errorf("waiting for health listener: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}
