package collaborators

import "runtime"

// RuntimePoolPressure implements PoolPressure by comparing the
// requested allocation against the Go runtime's current heap
// headroom, standing in for osiSufficentSpaceInPool(), which
// consulted the OS/RTOS memory manager directly.
type RuntimePoolPressure struct {
	// MaxHeapBytes is the soft ceiling past which the oracle reports
	// insufficient space regardless of bytes requested. Zero disables
	// the ceiling (always sufficient, useful for tests).
	MaxHeapBytes uint64
}

func (p RuntimePoolPressure) SufficientSpace(bytes uint64) bool {
	if p.MaxHeapBytes == 0 {
		return true
	}
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return m.HeapInuse+bytes <= p.MaxHeapBytes
}

// AlwaysSufficient is a PoolPressure that never refuses admission;
// useful for tests that want pool exhaustion, not memory pressure, to
// be the only thing gating create_client.
type AlwaysSufficient struct{}

func (AlwaysSufficient) SufficientSpace(bytes uint64) bool { return true }

// NeverSufficient always refuses; exercises the admission-refusal
// path in tests without needing to actually drain a pool.
type NeverSufficient struct{}

func (NeverSufficient) SufficientSpace(bytes uint64) bool { return false }
