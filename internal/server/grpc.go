package server

import (
	"context"
	"net"

	"PerpTrade/internal/observability"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// GRPCServer exposes the standard gRPC health service and server
// reflection for infrastructure probes. The domain API is served over
// HTTP; this endpoint exists for load balancers and service meshes that
// speak grpc_health_v1.
type GRPCServer struct {
	grpcServer   *grpc.Server
	healthServer *health.Server
	addr         string
	checker      *observability.HealthChecker
	log          zerolog.Logger
}

func NewGRPCServer(addr string, checker *observability.HealthChecker, logger zerolog.Logger) *GRPCServer {
	grpcServer := grpc.NewServer()

	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	reflection.Register(grpcServer)

	return &GRPCServer{
		grpcServer:   grpcServer,
		healthServer: healthServer,
		addr:         addr,
		checker:      checker,
		log:          logger,
	}
}

// Start listens and serves until ctx is cancelled.
func (s *GRPCServer) Start(ctx context.Context) error {
	lis, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}

	s.syncHealth()

	go func() {
		<-ctx.Done()
		s.grpcServer.GracefulStop()
	}()

	s.log.Info().Str("addr", s.addr).Msg("gRPC health server listening")
	return s.grpcServer.Serve(lis)
}

// syncHealth mirrors the HTTP readiness state into grpc_health_v1.
func (s *GRPCServer) syncHealth() {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if s.checker.IsReady() {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.healthServer.SetServingStatus("", status)
}

// SetServing flips the gRPC serving status alongside readiness changes.
func (s *GRPCServer) SetServing(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.healthServer.SetServingStatus("", status)
}
