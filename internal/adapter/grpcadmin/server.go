// Package grpcadmin exposes a minimal admin gRPC endpoint: the
// standard grpc.health.v1.Health service, reporting SERVING while the
// TCP run-state flag is in run and NOT_SERVING while paused, plus
// server reflection. Deployment probes (k8s, consul) speak health/v1
// natively, which is why this surface exists alongside the HTTP one.
package grpcadmin

import (
	"context"
	"log/slog"
	"net"
	"time"

	"github.com/grpc-ecosystem/go-grpc-middleware/v2/interceptors/logging"
	"github.com/grpc-ecosystem/go-grpc-middleware/v2/interceptors/recovery"
	"github.com/webitel/ca-rsrvd/internal/domain/runstate"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// ServiceName is the health-check service identifier probes ask for;
// the empty-string overall service is kept in sync with it.
const ServiceName = "cas.rsrvd"

// healthPollInterval is how often the health server re-samples the
// run-state flag; same order as the core's own pause-poll latency, so
// a probe never reports a state more than ~one poll stale.
const healthPollInterval = 500 * time.Millisecond

// Server wraps the grpc.Server and its health reporter.
type Server struct {
	GRPC   *grpc.Server
	Health *health.Server

	rs  *runstate.Controller
	log *slog.Logger
}

// interceptorLogger adapts slog to the go-grpc-middleware logging
// interceptor.
func interceptorLogger(l *slog.Logger) logging.Logger {
	return logging.LoggerFunc(func(ctx context.Context, lvl logging.Level, msg string, fields ...any) {
		l.Log(ctx, slog.Level(lvl), msg, fields...)
	})
}

// New builds the admin gRPC server: recovery and logging interceptors,
// an otelgrpc stats handler, health and reflection services.
func New(rs *runstate.Controller, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}

	recoveryOpts := []recovery.Option{
		recovery.WithRecoveryHandler(func(p any) error {
			log.Error("CAS: admin grpc panic recovered", "panic", p)
			return nil
		}),
	}

	srv := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(
			logging.UnaryServerInterceptor(interceptorLogger(log)),
			recovery.UnaryServerInterceptor(recoveryOpts...),
		),
		grpc.ChainStreamInterceptor(
			logging.StreamServerInterceptor(interceptorLogger(log)),
			recovery.StreamServerInterceptor(recoveryOpts...),
		),
	)

	hs := health.NewServer()
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	healthpb.RegisterHealthServer(srv, hs)
	reflection.Register(srv)

	return &Server{GRPC: srv, Health: hs, rs: rs, log: log}
}

// Serve accepts on ln and keeps the health status tracking the TCP
// run-state flag until ctx is canceled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	go s.trackRunState(ctx)
	return s.GRPC.Serve(ln)
}

func (s *Server) trackRunState(ctx context.Context) {
	ticker := time.NewTicker(healthPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			status := healthpb.HealthCheckResponse_NOT_SERVING
			if s.rs.TCP.IsRunning() {
				status = healthpb.HealthCheckResponse_SERVING
			}
			s.Health.SetServingStatus(ServiceName, status)
			s.Health.SetServingStatus("", status)
		}
	}
}

// Stop gracefully stops the server and marks every service
// NOT_SERVING so an in-flight probe sees the shutdown.
func (s *Server) Stop() {
	s.Health.Shutdown()
	s.GRPC.GracefulStop()
}
