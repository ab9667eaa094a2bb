// Package circuit implements the per-connection Client Record (the
// "circuit" of the glossary) and the fixed-size slab pools it is
// carved out of.
package circuit

import (
	"github.com/webitel/ca-rsrvd/internal/collaborators"
	"github.com/webitel/ca-rsrvd/internal/domain/buffer"
	"github.com/webitel/ca-rsrvd/internal/domain/pool"
)

// MaxTCP is the fixed size of a small TCP buffer slab, the CA
// MAX_TCP message limit: large enough for the overwhelming
// majority of CA requests without ever touching the large pool.
const MaxTCP = 16384

// MaxUDPSend and MaxUDPRecv size the heap-allocated (unpooled) UDP
// buffers created per UDP pseudo-client.
const (
	MaxUDPSend = 1024
	MaxUDPRecv = 1024
)

// Default slab counts, matching rsrv_init()'s freeListInitPvt calls.
const (
	DefaultClientSlabs    = 8
	DefaultChannelSlabs   = 512
	DefaultEventSlabs     = 512
	DefaultSmallBufSlabs  = 16
	DefaultLargeBufSlabs  = 1
	DefaultPutNotifySlabs = 512
)

// Pools bundles the six fixed-size free pools the core hands
// allocations out of: clients, channels, monitor events, small/large
// TCP buffers, and put-notify records. None of them allocates on its
// own once seeded; AllocLarge and NewClient carve a large slab or a
// client record from the heap when the pool is empty and the memory
// oracle reports headroom, and such an item joins the pool's free list
// on release. Exhaustion is reported via ItemsAvailable so callers can
// apply admission policy (see internal/collaborators.PoolPressure).
type Pools struct {
	Clients     *pool.Pool[Client]
	Channels    *pool.Pool[Channel]
	Events      *pool.Pool[EventExt]
	SmallBufTCP *pool.Pool[[]byte]
	LargeBufTCP *pool.Pool[[]byte]
	PutNotifies *pool.Pool[PutNotify]

	largeBufSize uint32
	pressure     collaborators.PoolPressure
}

// PoolSizes configures the free-pool seed counts and the large-TCP
// buffer's size class, which is only known once
// EPICS_CA_MAX_ARRAY_BYTES has been resolved.
type PoolSizes struct {
	Clients        int
	Channels       int
	Events         int
	SmallBufTCP    int
	LargeBufTCP    int
	PutNotifies    int
	LargeBufTCPLen uint32 // rsrvSizeofLargeBufTCP, already clamped/floored by config
}

// DefaultPoolSizes returns the slab counts rsrv_init() seeds at
// startup, with the large-buffer size floored at MaxTCP.
func DefaultPoolSizes(largeBufLen uint32) PoolSizes {
	if largeBufLen < MaxTCP {
		largeBufLen = MaxTCP
	}
	return PoolSizes{
		Clients:        DefaultClientSlabs,
		Channels:       DefaultChannelSlabs,
		Events:         DefaultEventSlabs,
		SmallBufTCP:    DefaultSmallBufSlabs,
		LargeBufTCP:    DefaultLargeBufSlabs,
		PutNotifies:    DefaultPutNotifySlabs,
		LargeBufTCPLen: largeBufLen,
	}
}

// NewPools seeds all six pools up front; none of them grow on their
// own. pressure is the process-wide memory oracle AllocLarge consults
// when the large pool is empty; nil disables that fallback, making the
// large pool strictly slab-bounded (NewClient's heap fallback consults
// the oracle it is handed, not this one).
func NewPools(sz PoolSizes, pressure collaborators.PoolPressure) *Pools {
	return &Pools{
		Clients:  pool.New(sz.Clients, func() *Client { return &Client{} }, resetClient),
		Channels: pool.New(sz.Channels, func() *Channel { return &Channel{} }, resetChannel),
		Events:   pool.New(sz.Events, func() *EventExt { return &EventExt{} }, resetEvent),
		SmallBufTCP: pool.New(sz.SmallBufTCP, func() *[]byte {
			b := make([]byte, MaxTCP)
			return &b
		}, nil),
		LargeBufTCP: pool.New(sz.LargeBufTCP, func() *[]byte {
			b := make([]byte, sz.LargeBufTCPLen)
			return &b
		}, nil),
		PutNotifies:  pool.New(sz.PutNotifies, func() *PutNotify { return &PutNotify{} }, resetPutNotify),
		largeBufSize: sz.LargeBufTCPLen,
		pressure:     pressure,
	}
}

// LargeBufSize reports the configured size class of the large-TCP pool
// (rsrvSizeofLargeBufTCP).
func (p *Pools) LargeBufSize() uint32 { return p.largeBufSize }

// --- buffer.Allocator implementation, so buffer.ExpandSend/ExpandRecv
// can promote a Slot without depending on the pool package directly.

// AllocLarge satisfies buffer.Allocator: a promotion succeeds when
// the large pool has a free slab or the memory oracle reports
// sufficient space to carve one from the heap instead. A heap-carved
// slab joins the pool on release, so the large pool can grow past its
// seed exactly as far as the oracle allowed.
func (p *Pools) AllocLarge(size uint32) []byte {
	if size > p.largeBufSize {
		return nil
	}
	b := p.LargeBufTCP.Alloc()
	if b == nil {
		if p.pressure == nil || !p.pressure.SufficientSpace(uint64(p.largeBufSize)) {
			return nil
		}
		return make([]byte, p.largeBufSize)
	}
	buf := *b
	for i := range buf {
		buf[i] = 0
	}
	return buf
}

// ReleaseSmallTCP satisfies buffer.Allocator/buffer.Releaser.
func (p *Pools) ReleaseSmallTCP(buf []byte) {
	if cap(buf) == 0 {
		return
	}
	b := buf[:MaxTCP]
	p.SmallBufTCP.Free(&b)
}

// ReleaseLargeTCP satisfies buffer.Releaser.
func (p *Pools) ReleaseLargeTCP(buf []byte) {
	if cap(buf) == 0 {
		return
	}
	b := buf[:p.largeBufSize]
	p.LargeBufTCP.Free(&b)
}

var _ buffer.Allocator = (*Pools)(nil)
var _ buffer.Releaser = (*Pools)(nil)

// AllocSmallTCP hands out a zeroed small-TCP slab, or nil if the small
// pool is exhausted.
func (p *Pools) AllocSmallTCP() []byte {
	b := p.SmallBufTCP.Alloc()
	if b == nil {
		return nil
	}
	buf := *b
	for i := range buf {
		buf[i] = 0
	}
	return buf
}

// Snapshot reports the live counts used by introspection and the
// admin surfaces.
type Snapshot struct {
	ClientsFree     int
	ChannelsFree    int
	EventsFree      int
	SmallBufFree    int
	LargeBufFree    int
	PutNotifiesFree int

	ClientsSeed     int
	ChannelsSeed    int
	EventsSeed      int
	SmallBufSeed    int
	LargeBufSeed    int
	PutNotifiesSeed int

	LargeBufSize uint32
}

func (p *Pools) Snapshot() Snapshot {
	return Snapshot{
		ClientsFree:     p.Clients.ItemsAvailable(),
		ChannelsFree:    p.Channels.ItemsAvailable(),
		EventsFree:      p.Events.ItemsAvailable(),
		SmallBufFree:    p.SmallBufTCP.ItemsAvailable(),
		LargeBufFree:    p.LargeBufTCP.ItemsAvailable(),
		PutNotifiesFree: p.PutNotifies.ItemsAvailable(),
		ClientsSeed:     p.Clients.Seed(),
		ChannelsSeed:    p.Channels.Seed(),
		EventsSeed:      p.Events.Seed(),
		SmallBufSeed:    p.SmallBufTCP.Seed(),
		LargeBufSeed:    p.LargeBufTCP.Seed(),
		PutNotifiesSeed: p.PutNotifies.Seed(),
		LargeBufSize:    p.largeBufSize,
	}
}
