// Package health exposes the host lifecycle as a gRPC health service on a
// Unix socket next to the activation channel.
//
// The service reports NOT_SERVING until the host has started, SERVING while
// it runs, and NOT_SERVING again once stopping begins.
package health

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"sync"

	"monarch"
	"monarch/internal/check"
	"monarch/lifetime"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// SocketPath returns the health socket for id in dir.
func SocketPath(dir string, id monarch.Identity) string {
	return filepath.Join(dir, id.FileStem()+".health.sock")
}

// Service serves grpc.health.v1.Health for the lifetime of the host.
type Service struct {
	path     string
	id       monarch.Identity
	lifetime *lifetime.Lifetime
	log      *slog.Logger

	mu         sync.Mutex
	srv        *grpc.Server
	hs         *grpchealth.Server
	done       chan struct{}
	unregister []func()
}

// NewService returns a health service listening on path and reporting the
// state of lt. Status is published for the empty service name and for id.
func NewService(path string, id monarch.Identity, lt *lifetime.Lifetime, log *slog.Logger) *Service {
	check.Assert(lt != nil, "health.NewService: lifetime must not be nil")
	if log == nil {
		log = slog.Default()
	}
	return &Service{path: path, id: id, lifetime: lt, log: log}
}

func (s *Service) Name() string { return "health" }

func (s *Service) Start(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.srv != nil {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("create health socket dir: %w", err)
	}
	// Remove stale socket from a previous run (may not exist).
	_ = os.Remove(s.path)
	ln, err := net.Listen("unix", s.path)
	if err != nil {
		return fmt.Errorf("listen unix %s: %w", s.path, err)
	}

	hs := grpchealth.NewServer()
	s.set(hs, healthpb.HealthCheckResponse_NOT_SERVING)

	srv := grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler()))
	healthpb.RegisterHealthServer(srv, hs)

	s.unregister = []func(){
		s.lifetime.Started().Register(func() { s.set(hs, healthpb.HealthCheckResponse_SERVING) }),
		s.lifetime.Stopping().Register(func() { s.set(hs, healthpb.HealthCheckResponse_NOT_SERVING) }),
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := srv.Serve(ln); err != nil {
			s.log.Error("Health server stopped.", "err", err)
		}
	}()

	s.srv, s.hs, s.done = srv, hs, done
	return nil
}

func (s *Service) set(hs *grpchealth.Server, status healthpb.HealthCheckResponse_ServingStatus) {
	hs.SetServingStatus("", status)
	hs.SetServingStatus(s.id.String(), status)
	s.log.Debug("Health status changed.", "status", status.String())
}

// Stop drains in-flight checks, falling back to a hard stop when ctx ends.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv, hs, done := s.srv, s.hs, s.done
	unregister := s.unregister
	s.srv, s.hs, s.done, s.unregister = nil, nil, nil, nil
	s.mu.Unlock()
	if srv == nil {
		return nil
	}

	for _, fn := range unregister {
		fn()
	}
	hs.Shutdown()

	stopped := make(chan struct{})
	go func() {
		srv.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-ctx.Done():
		srv.Stop()
	}
	<-done
	_ = os.Remove(s.path)
	return nil
}

// Check asks the health service at path for the overall status.
func Check(ctx context.Context, path string) (healthpb.HealthCheckResponse_ServingStatus, error) {
	conn, err := grpc.NewClient(
		"unix://"+path,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithStatsHandler(otelgrpc.NewClientHandler()),
	)
	if err != nil {
		return healthpb.HealthCheckResponse_UNKNOWN, fmt.Errorf("dial unix %s: %w", path, err)
	}
	defer conn.Close()

	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{})
	if err != nil {
		return healthpb.HealthCheckResponse_UNKNOWN, fmt.Errorf("health check: %w", err)
	}
	return resp.GetStatus(), nil
}
