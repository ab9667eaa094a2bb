package cmd

import (
	"github.com/webitel/ca-rsrvd/internal/adapter/admin"
	"github.com/webitel/ca-rsrvd/internal/adapter/eventbus"
	"github.com/webitel/ca-rsrvd/internal/adapter/grpcadmin"
	"github.com/webitel/ca-rsrvd/internal/collaborators"
	"github.com/webitel/ca-rsrvd/internal/config"
	"github.com/webitel/ca-rsrvd/internal/domain/circuit"
	"github.com/webitel/ca-rsrvd/internal/domain/runstate"
	"github.com/webitel/ca-rsrvd/internal/introspect"
	"github.com/webitel/ca-rsrvd/internal/rsrv"
	"go.uber.org/fx"
)

func NewApp(cfg *config.Config) *fx.App {
	return fx.New(
		fx.Provide(
			func() *config.Config { return cfg },
			ProvideLogger,
			NewCoreCollaborators,
		),
		collaborators.Module,
		eventbus.Module,
		rsrv.Module,
		// The adapters report against the one Core the rsrv module
		// assembled; expose its parts to the rest of the graph.
		fx.Provide(
			func(c *rsrv.Core) *introspect.Reporter { return c.Reporter },
			func(c *rsrv.Core) *runstate.Controller { return c.RunState },
			func(c *rsrv.Core) *circuit.Pools { return c.Pools },
		),
		admin.Module,
		grpcadmin.Module,
		fx.Invoke(
			ProvideTracerProvider,
			WatchConfigFile,
		),
	)
}

// NewCoreCollaborators assembles the Collaborators bundle rsrv.New
// consumes from the individually-provided collaborator interfaces.
// The message loop, name-search responder, beacon transmitter and
// server registrar stay at their dependency-free defaults until a
// real database layer is attached.
func NewCoreCollaborators(
	db collaborators.Database,
	sec collaborators.AccessSecurity,
	wd collaborators.Watchdog,
	pp collaborators.PoolPressure,
	events circuit.LifecycleSink,
) rsrv.Collaborators {
	return rsrv.Collaborators{
		Database: db,
		Security: sec,
		Watchdog: wd,
		Pressure: pp,
		Events:   events,
	}
}
