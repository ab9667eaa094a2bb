package grpcadmin

import (
	"context"
	"log/slog"
	"net"

	"github.com/webitel/ca-rsrvd/internal/config"
	"go.uber.org/fx"
)

// Module serves the admin gRPC endpoint on cfg.GRPCAddr. An empty
// address disables it.
var Module = fx.Module("grpcadmin",
	fx.Provide(New),
	fx.Invoke(func(lc fx.Lifecycle, s *Server, cfg *config.Config, log *slog.Logger) {
		if cfg.GRPCAddr == "" {
			return
		}
		serveCtx, cancel := context.WithCancel(context.Background())
		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				ln, err := net.Listen("tcp", cfg.GRPCAddr)
				if err != nil {
					cancel()
					return err
				}
				log.Info("CAS: admin grpc listening", "addr", ln.Addr())
				go func() {
					if err := s.Serve(serveCtx, ln); err != nil {
						log.Error("CAS: admin grpc serve error", "error", err)
					}
				}()
				return nil
			},
			OnStop: func(ctx context.Context) error {
				cancel()
				s.Stop()
				return nil
			},
		})
	}),
)
