// Package grpc serves the standard grpc.health.v1 service. Its status follows
// Data Store reachability.
package grpc

import (
	"context"
	"net"
	"time"

	"github.com/dmitrijs2005/requestmanager/internal/logging"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the health service name reported alongside the overall "" entry.
const ServiceName = "requestmanager"

// Pinger reports whether the Data Store answers.
type Pinger interface {
	Ping(ctx context.Context) error
}

// GRPCServer serves grpc.health.v1 and refreshes its status from Pinger.
type GRPCServer struct {
	address  string
	pinger   Pinger
	interval time.Duration
	health   *health.Server
	logger   logging.Logger
}

// NewGRPCServer returns a server for address that pings every interval
// (30s when interval is not positive).
func NewGRPCServer(a string, l logging.Logger, p Pinger, interval time.Duration) *GRPCServer {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &GRPCServer{
		address:  a,
		pinger:   p,
		interval: interval,
		health:   health.NewServer(),
		logger:   l.With("module", "grpc_server"),
	}
}

// Run listens on the configured address and serves until ctx is cancelled.
func (s *GRPCServer) Run(ctx context.Context) error {
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}
	s.logger.Info(ctx, "Starting gRPC server", "address", s.address)
	return s.Serve(ctx, listen)
}

// Serve accepts connections on lis until ctx is cancelled.
func (s *GRPCServer) Serve(ctx context.Context, lis net.Listener) error {
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(s.loggingInterceptor))
	healthpb.RegisterHealthServer(srv, s.health)

	s.refresh(ctx)

	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				s.logger.Info(ctx, "Stopping gRPC server...")
				s.health.Shutdown()
				srv.GracefulStop()
				return
			case <-ticker.C:
				s.refresh(ctx)
			}
		}
	}()

	if err := srv.Serve(lis); err != nil {
		return err
	}
	return nil
}

// refresh pings the Data Store and publishes the result.
func (s *GRPCServer) refresh(ctx context.Context) {
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	st := healthpb.HealthCheckResponse_SERVING
	if err := s.pinger.Ping(pingCtx); err != nil {
		s.logger.Warn(ctx, "database ping failed", "error", err)
		st = healthpb.HealthCheckResponse_NOT_SERVING
	}
	s.health.SetServingStatus("", st)
	s.health.SetServingStatus(ServiceName, st)
}
