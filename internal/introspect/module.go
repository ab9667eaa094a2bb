package introspect

import (
	"github.com/webitel/ca-rsrvd/internal/domain/circuit"
	"github.com/webitel/ca-rsrvd/internal/domain/clientqueue"
	"github.com/webitel/ca-rsrvd/internal/domain/idtable"
	"go.uber.org/fx"
)

// Module provides the Reporter to the fx graph. Its interface list is
// populated after construction, once the interface binder has
// run, via SetInterfaces.
var Module = fx.Module("introspect",
	fx.Provide(func(q *clientqueue.Queue, ids *idtable.Table[*circuit.Channel], pools *circuit.Pools) *Reporter {
		return &Reporter{Queue: q, IDTable: ids, Pools: pools}
	}),
)
