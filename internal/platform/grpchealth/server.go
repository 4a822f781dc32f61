package grpchealth

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Pinger is satisfied by *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server exposes the standard gRPC health service and keeps the serving status
// in line with the database reachability.
type Server struct {
	grpcServer *grpc.Server
	health     *health.Server
	db         Pinger
	service    string
	logger     *slog.Logger
}

func NewServer(serviceName string, db Pinger, logger *slog.Logger) *Server {
	gs := grpc.NewServer()
	hs := health.NewServer()
	healthpb.RegisterHealthServer(gs, hs)
	return &Server{
		grpcServer: gs,
		health:     hs,
		db:         db,
		service:    serviceName,
		logger:     logger.With("component", "grpc_health"),
	}
}

// Serve listens on port and blocks until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, port int, checkInterval time.Duration) error {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return fmt.Errorf("grpc health listen on %d: %w", port, err)
	}

	s.Check(ctx)
	go s.watch(ctx, checkInterval)
	go func() {
		<-ctx.Done()
		s.health.Shutdown()
		s.grpcServer.GracefulStop()
	}()

	s.logger.Info("gRPC health server listening", "port", port)
	if err := s.grpcServer.Serve(lis); err != nil {
		return fmt.Errorf("grpc health serve: %w", err)
	}
	return nil
}

// Check pings the database once and updates the serving status.
func (s *Server) Check(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	status := healthpb.HealthCheckResponse_SERVING
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := s.db.Ping(pingCtx); err != nil {
		s.logger.WarnContext(ctx, "Database ping failed", "error", err)
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	s.health.SetServingStatus(s.service, status)
	s.health.SetServingStatus("", status)
	return status
}

func (s *Server) watch(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.Check(ctx)
		case <-ctx.Done():
			return
		}
	}
}
