package registration

import "go.uber.org/fx"

// Module provides the Registry and a default NoopRegistrar. A
// deployment wired to a real database layer replaces Registrar via
// fx.Replace/fx.Decorate.
var Module = fx.Module("registration",
	fx.Provide(
		New,
		func() Registrar { return NoopRegistrar{} },
	),
)
