package idtable

import "go.uber.org/fx"

// ProvideFor provides the server-wide channel identifier table. The
// element type is fixed at the fx-graph construction site by its type
// parameter, since Table is generic and fx cannot infer type
// parameters from a bare constructor reference.
func ProvideFor[T any]() fx.Option {
	return fx.Provide(New[T])
}
