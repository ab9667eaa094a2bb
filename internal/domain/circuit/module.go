package circuit

import (
	"os"
	"strconv"

	"github.com/webitel/ca-rsrvd/internal/collaborators"
	"go.uber.org/fx"
)

// Module provides the circuit package's pools and host resolver to the
// rest of the fx graph. Pool sizing reads EPICS_CA_MAX_ARRAY_BYTES
// directly rather than through internal/config so this package stays
// usable standalone in tests; internal/config's value takes priority
// once it is wired in by the server module.
var Module = fx.Module("circuit",
	fx.Provide(
		NewPoolsFromEnv,
		func() *HostResolver { return NewHostResolver(0) },
	),
)

// NewPoolsFromEnv seeds the six free pools using EPICS_CA_MAX_ARRAY_BYTES
// for the large-TCP size class, defaulting to MaxTCP when unset or
// unparsable (the real clamp is enforced again at config-resolution
// time; this is just a standalone-safe floor).
func NewPoolsFromEnv(pressure collaborators.PoolPressure) *Pools {
	largeLen := uint32(MaxTCP)
	if v := os.Getenv("EPICS_CA_MAX_ARRAY_BYTES"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 32); err == nil {
			largeLen = uint32(n)
		}
	}
	return NewPools(DefaultPoolSizes(largeLen), pressure)
}
