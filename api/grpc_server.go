package api

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/bitmark-inc/logger"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"
)

// HealthService is the service name reported by the gRPC health endpoint.
const HealthService = "hierachain.relay.Hub"

// HealthServer exposes the standard gRPC health protocol for the hub so
// orchestrators can probe it without speaking ZeroMQ.
type HealthServer struct {
	log     *logger.L
	metrics *Metrics
	health  *health.Server

	grpcServer *grpc.Server
	listener   net.Listener

	running bool
	mu      sync.RWMutex
}

// NewHealthServer creates a health server. The hub is reported as
// NOT_SERVING until SetServing is called.
func NewHealthServer(metrics *Metrics) *HealthServer {
	h := health.NewServer()
	h.SetServingStatus(HealthService, healthpb.HealthCheckResponse_NOT_SERVING)

	return &HealthServer{
		log:     logger.New("grpc"),
		metrics: metrics,
		health:  h,
	}
}

// StartAsync listens on address and serves in a goroutine.
func (s *HealthServer) StartAsync(address string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("server is already running")
	}

	lis, err := net.Listen("tcp", address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", address, err)
	}
	s.listener = lis

	server := grpc.NewServer(
		grpc.UnaryInterceptor(s.unaryInterceptor),
		grpc.StreamInterceptor(s.streamInterceptor),
	)
	healthpb.RegisterHealthServer(server, s.health)
	reflection.Register(server)

	s.grpcServer = server
	s.running = true

	go func() {
		if err := server.Serve(lis); err != nil {
			s.log.Errorf("grpc serve: %v", err)
		}
	}()

	s.log.Infof("health on: %s", lis.Addr())
	return nil
}

// SetServing switches the reported status of the hub.
func (s *HealthServer) SetServing(serving bool) {
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		st = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus(HealthService, st)
}

// Addr returns the bound address, or "" before StartAsync.
func (s *HealthServer) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop reports every service as NOT_SERVING and stops the server gracefully.
func (s *HealthServer) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	s.running = false

	s.health.Shutdown()
	s.grpcServer.GracefulStop()
}

func (s *HealthServer) unaryInterceptor(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	s.metrics.RecordGRPCRequest(info.FullMethod, status.Code(err).String(), time.Since(start))
	return resp, err
}

func (s *HealthServer) streamInterceptor(srv interface{}, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
	start := time.Now()
	err := handler(srv, ss)
	s.metrics.RecordGRPCRequest(info.FullMethod, status.Code(err).String(), time.Since(start))
	return err
}
