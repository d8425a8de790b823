// Package grpcapi serves the standard grpc.health.v1 service. The overall
// status and the "beacon" service status follow beat store liveness.
package grpcapi

import (
	"context"
	"errors"
	"net"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/BrandonDHaskell/Beacon/server/internal/beacon/service"
	"github.com/BrandonDHaskell/Beacon/server/internal/observability"
)

// ServiceName is the health service name reported alongside the overall "".
const ServiceName = "beacon"

type Dependencies struct {
	Logger  *zap.Logger
	Addr    string
	Monitor *service.StoreMonitor // nil: always serving
	Tracer  *observability.Tracer // nil: no RPC spans
}

type Server struct {
	grpcServer *grpc.Server
	health     *health.Server
	logger     *zap.Logger
	addr       string
}

func NewServer(d Dependencies) *Server {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	var opts []grpc.ServerOption
	if d.Tracer != nil {
		opts = append(opts, grpc.StatsHandler(otelgrpc.NewServerHandler(
			otelgrpc.WithTracerProvider(d.Tracer.Provider()),
		)))
	}

	gs := grpc.NewServer(opts...)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(gs, hs)
	reflection.Register(gs)

	s := &Server{
		grpcServer: gs,
		health:     hs,
		logger:     logger,
		addr:       d.Addr,
	}

	s.setServing(true)
	if d.Monitor != nil {
		d.Monitor.OnChange(s.setServing)
	}

	return s
}

func (s *Server) setServing(healthy bool) {
	st := healthpb.HealthCheckResponse_SERVING
	if !healthy {
		st = healthpb.HealthCheckResponse_NOT_SERVING
	}
	s.health.SetServingStatus("", st)
	s.health.SetServingStatus(ServiceName, st)
	s.logger.Debug("grpc health status", zap.String("status", st.String()))
}

// Serve accepts connections on lis until Stop or Shutdown.
func (s *Server) Serve(lis net.Listener) error {
	err := s.grpcServer.Serve(lis)
	if errors.Is(err, grpc.ErrServerStopped) {
		return nil
	}
	return err
}

// Start listens on the configured address and serves.
func (s *Server) Start() error {
	lis, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	return s.Serve(lis)
}

// Shutdown drains in-flight RPCs, falling back to a hard stop when ctx ends.
func (s *Server) Shutdown(ctx context.Context) {
	s.health.Shutdown()

	done := make(chan struct{})
	go func() {
		s.grpcServer.GracefulStop()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		s.grpcServer.Stop()
	}
}
