package rsrv

import (
	"context"
	"log/slog"

	"github.com/webitel/ca-rsrvd/internal/config"
	"go.uber.org/fx"
)

// Module provides Core to the fx graph and wires its Init/Run/Shutdown
// sequence into fx's lifecycle hooks, so the assembled application
// starts already bound and running and tears down cleanly on fx.Stop.
var Module = fx.Module("rsrv",
	fx.Provide(func(cfg *config.Config, collab Collaborators, log *slog.Logger) *Core {
		return New(cfg, collab, log)
	}),
	fx.Invoke(func(lc fx.Lifecycle, core *Core, cfg *config.Config) {
		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				if err := core.Init(ctx, cfg); err != nil {
					return err
				}
				core.Run()
				return nil
			},
			OnStop: func(ctx context.Context) error {
				core.Shutdown()
				return nil
			},
		})
	}),
)

// DefaultCollaborators provides a zero-valued Collaborators bundle
// (every field filled with its dependency-free stand-in by New) for
// embedding Core in an fx graph that wires no real collaborators.
// Mutually exclusive with a caller-supplied Collaborators provider
// such as cmd.NewCoreCollaborators.
var DefaultCollaborators = fx.Module("rsrv-default-collaborators",
	fx.Provide(func() Collaborators { return Collaborators{} }),
)
