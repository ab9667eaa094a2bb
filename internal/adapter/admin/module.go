package admin

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"

	"github.com/webitel/ca-rsrvd/internal/config"
	"go.uber.org/fx"
)

// Module serves the admin HTTP surface on cfg.AdminAddr. An empty
// address disables the surface entirely.
var Module = fx.Module("admin",
	fx.Provide(NewHandler),
	fx.Invoke(func(lc fx.Lifecycle, h *Handler, cfg *config.Config, log *slog.Logger) {
		if cfg.AdminAddr == "" {
			return
		}
		srv := &http.Server{Handler: h.Router()}
		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				ln, err := net.Listen("tcp", cfg.AdminAddr)
				if err != nil {
					return err
				}
				log.Info("CAS: admin http listening", "addr", ln.Addr())
				go func() {
					if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
						log.Error("CAS: admin http serve error", "error", err)
					}
				}()
				return nil
			},
			OnStop: func(ctx context.Context) error {
				return srv.Shutdown(ctx)
			},
		})
	}),
)
