// Package health serves grpc.health.v1 for the seeker. The overall service
// ("") and the "oev-seeker" service report SERVING only between MarkReady
// and Stop.
package health

import (
	"fmt"
	"net"

	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Service is the named service reported alongside the overall status
const Service = "oev-seeker"

type Server struct {
	addr   string
	grpc   *grpc.Server
	health *health.Server
	lis    net.Listener
}

func New(addr string) *Server {
	h := health.NewServer()
	h.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	h.SetServingStatus(Service, healthpb.HealthCheckResponse_NOT_SERVING)

	g := grpc.NewServer()
	healthpb.RegisterHealthServer(g, h)
	return &Server{addr: addr, grpc: g, health: h}
}

// Start listens and serves in the background
func (s *Server) Start() error {
	lis, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("health listen %s: %w", s.addr, err)
	}
	s.lis = lis
	go func() {
		if err := s.grpc.Serve(lis); err != nil {
			log.Error().Err(err).Msg("Health server stopped")
		}
	}()
	log.Info().Str("addr", lis.Addr().String()).Msg("gRPC health server listening")
	return nil
}

// Addr is the bound listen address, once started
func (s *Server) Addr() string {
	if s.lis == nil {
		return s.addr
	}
	return s.lis.Addr().String()
}

// MarkReady reports SERVING
func (s *Server) MarkReady() {
	s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	s.health.SetServingStatus(Service, healthpb.HealthCheckResponse_SERVING)
}

// Stop reports NOT_SERVING to watchers and shuts the server down
func (s *Server) Stop() {
	s.health.Shutdown()
	s.grpc.GracefulStop()
}
