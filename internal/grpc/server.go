// Package grpc exposes the standard gRPC health service. The overall status
// is SERVING while the process is up; IndexedService follows the spatial
// capability probe so load balancers can route indexed-heavy traffic.
package grpc

import (
	"context"
	"log/slog"
	"net"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mr1hm/go-disaster-proximity/internal/proximity"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// IndexedService is the health service name that tracks the indexed backend.
const IndexedService = "proximity.indexed"

type Diagnoser interface {
	Diagnostics(ctx context.Context) proximity.Diagnostics
}

type Option func(*Server)

func WithClock(c clockwork.Clock) Option {
	return func(s *Server) {
		s.clock = c
	}
}

type Server struct {
	health     *health.Server
	capability Diagnoser
	interval   time.Duration
	clock      clockwork.Clock
	grpcServer *grpc.Server
}

func NewServer(capability Diagnoser, interval time.Duration, opts ...Option) *Server {
	s := &Server{
		health:     health.NewServer(),
		capability: capability,
		interval:   interval,
		clock:      clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	s.health.SetServingStatus(IndexedService, healthpb.HealthCheckResponse_UNKNOWN)
	return s
}

func (s *Server) Start(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	s.grpcServer = grpc.NewServer()
	healthpb.RegisterHealthServer(s.grpcServer, s.health)

	slog.Info("gRPC server listening", "addr", addr)
	return s.grpcServer.Serve(lis)
}

func (s *Server) Stop() {
	s.health.Shutdown()
	if s.grpcServer != nil {
		s.grpcServer.GracefulStop()
	}
}

// Health returns the underlying health server.
func (s *Server) Health() healthpb.HealthServer {
	return s.health
}

// Sync copies the capability's cached state into the health service.
func (s *Server) Sync(ctx context.Context) {
	d := s.capability.Diagnostics(ctx)
	status := healthpb.HealthCheckResponse_NOT_SERVING
	switch {
	case d.Available:
		status = healthpb.HealthCheckResponse_SERVING
	case d.State == proximity.StateUnknown:
		status = healthpb.HealthCheckResponse_UNKNOWN
	}
	s.health.SetServingStatus(IndexedService, status)
}

// WatchCapability syncs once, then on every tick until ctx is done.
func (s *Server) WatchCapability(ctx context.Context) {
	s.Sync(ctx)

	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			s.Sync(ctx)
		}
	}
}
