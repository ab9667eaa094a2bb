package circuit

import (
	"testing"

	"github.com/webitel/ca-rsrvd/internal/collaborators"
)

func TestAllocLargeFallsBackToHeapUnderSufficientSpace(t *testing.T) {
	pools := NewPools(PoolSizes{
		Clients: 1, Channels: 1, Events: 1, SmallBufTCP: 1, LargeBufTCP: 1,
		PutNotifies: 1, LargeBufTCPLen: MaxTCP,
	}, collaborators.AlwaysSufficient{})

	first := pools.AllocLarge(MaxTCP)
	if first == nil {
		t.Fatal("expected the seeded slab")
	}
	second := pools.AllocLarge(MaxTCP)
	if second == nil {
		t.Fatal("expected a heap-carved slab while the oracle reports space")
	}
	if len(second) != MaxTCP {
		t.Fatalf("heap-carved slab has wrong size %d", len(second))
	}

	// Both slabs return to the pool, so it may now exceed its seed.
	pools.ReleaseLargeTCP(first)
	pools.ReleaseLargeTCP(second)
	if avail := pools.LargeBufTCP.ItemsAvailable(); avail != 2 {
		t.Fatalf("expected 2 slabs on the free list after release, got %d", avail)
	}
}

func TestAllocLargeRefusedWhenPoolEmptyAndNoHeadroom(t *testing.T) {
	pools := NewPools(PoolSizes{
		Clients: 1, Channels: 1, Events: 1, SmallBufTCP: 1, LargeBufTCP: 1,
		PutNotifies: 1, LargeBufTCPLen: MaxTCP,
	}, collaborators.NeverSufficient{})

	if pools.AllocLarge(MaxTCP) == nil {
		t.Fatal("expected the seeded slab")
	}
	if got := pools.AllocLarge(MaxTCP); got != nil {
		t.Fatal("expected refusal with an empty pool and no memory headroom")
	}
}

func TestAllocLargeRefusesOversizedRequest(t *testing.T) {
	pools := NewPools(PoolSizes{
		Clients: 1, Channels: 1, Events: 1, SmallBufTCP: 1, LargeBufTCP: 1,
		PutNotifies: 1, LargeBufTCPLen: MaxTCP,
	}, collaborators.AlwaysSufficient{})

	if got := pools.AllocLarge(MaxTCP + 1); got != nil {
		t.Fatal("a request beyond the large size class must never be satisfied")
	}
}
