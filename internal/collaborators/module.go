package collaborators

import "go.uber.org/fx"

// Module provides the default, dependency-free collaborator
// implementations. A deployment wired to a real EPICS database layer
// would fx.Replace these with adapters talking to that process
// instead; the core only ever depends on the interfaces above.
var Module = fx.Module("collaborators",
	fx.Provide(
		fx.Annotate(
			NewInMemoryDatabase,
			fx.As(new(Database)),
		),
		func() AccessSecurity { return NoopAccessSecurity{} },
		fx.Annotate(
			NewMapWatchdog,
			fx.As(new(Watchdog)),
		),
		func() PoolPressure { return RuntimePoolPressure{} },
	),
)
