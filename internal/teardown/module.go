package teardown

import (
	"log/slog"

	"github.com/webitel/ca-rsrvd/internal/collaborators"
	"github.com/webitel/ca-rsrvd/internal/domain/circuit"
	"github.com/webitel/ca-rsrvd/internal/domain/idtable"
	"go.uber.org/fx"
)

// Module provides the Teardown Coordinator to the fx graph.
var Module = fx.Module("teardown",
	fx.Provide(func(
		pools *circuit.Pools,
		ids *idtable.Table[*circuit.Channel],
		wd collaborators.Watchdog,
		sec collaborators.AccessSecurity,
		db collaborators.Database,
		log *slog.Logger,
	) *Coordinator {
		return New(pools, ids, wd, sec, db, log)
	}),
)
