// Package buffer implements the paired send/receive ring-style byte
// buffers ("Buffer Slot", C3 of the design) each circuit owns, along
// with the one-way small-to-large promotion protocol.
package buffer

import "fmt"

// Type tags which pool (or the heap) owns a Slot's backing bytes, so
// Release always frees to the right place. A tagged sum like this
// removes the class of bug where a release path consults the wrong
// buffer's tag and frees to the wrong pool.
type Type int

const (
	// TypeUnknown marks a Slot that was never initialized; Release on
	// it is a corruption that is logged, never acted on.
	TypeUnknown Type = iota
	TypeSmallTCP
	TypeLargeTCP
	TypeUDP
)

func (t Type) String() string {
	switch t {
	case TypeSmallTCP:
		return "small-tcp"
	case TypeLargeTCP:
		return "large-tcp"
	case TypeUDP:
		return "udp"
	default:
		return "unknown"
	}
}

// Slot is one send or receive buffer. Invariant: Stack <= Count <=
// len(Bytes). Count is the high-water mark of valid bytes written;
// Stack is how far a reader has consumed from the front.
type Slot struct {
	Bytes []byte
	Stack uint32
	Count uint32
	Type  Type
}

// Releaser returns a Slot's backing bytes to the pool (or heap)
// identified by its Type tag. Implementations live in
// internal/domain/circuit, which owns the pool handles; buffer stays
// free of any dependency on the pool package's generic instantiation
// so it can be unit tested in isolation.
type Releaser interface {
	ReleaseSmallTCP(buf []byte)
	ReleaseLargeTCP(buf []byte)
}

// Release returns s.Bytes to the pool its Type names. An unrecognized
// type is logged by the caller as corruption and is never freed —
// refusing to act on a tag that cannot be trusted.
func Release(s *Slot, r Releaser) error {
	if s == nil || s.Bytes == nil {
		return nil
	}
	switch s.Type {
	case TypeSmallTCP:
		r.ReleaseSmallTCP(s.Bytes)
	case TypeLargeTCP:
		r.ReleaseLargeTCP(s.Bytes)
	case TypeUDP:
		// UDP buffers are heap-allocated, not pooled; nothing to do
		// beyond letting the GC reclaim them.
	default:
		s.Bytes = nil
		return fmt.Errorf("buffer: corrupt slot type %d during release, not freed", s.Type)
	}
	s.Bytes = nil
	return nil
}

// Allocator is the set of knobs ExpandSend/ExpandRecv need from the
// owning circuit to attempt a small->large promotion: a fresh large
// slab (or nil if the large pool is exhausted and there isn't enough
// headroom), and the pool to return the old small slab to.
type Allocator interface {
	// AllocLarge returns a zeroed large-TCP slab sized for at least
	// size bytes, or nil if none is available and there is
	// insufficient process-wide headroom to grow the heap instead.
	AllocLarge(size uint32) []byte
	ReleaseSmallTCP(buf []byte)
}

// ExpandSend attempts to promote s from small to large so a pending
// send of `size` bytes fits. Promotion is one-way: once large, a Slot
// never shrinks back for the life of its circuit. On failure s is
// left completely unchanged, and the caller must fail the oversized
// write itself.
func ExpandSend(s *Slot, size uint32, a Allocator) {
	if s.Type != TypeSmallTCP {
		return
	}
	newBuf := a.AllocLarge(size)
	if newBuf == nil {
		return
	}
	copy(newBuf, s.Bytes[:s.Stack])
	old := s.Bytes
	s.Bytes = newBuf
	s.Type = TypeLargeTCP
	a.ReleaseSmallTCP(old)
}

// ExpandRecv is ExpandSend's receive-side twin. Unlike ExpandSend it
// preserves the *unconsumed* window buf[Stack:Count], relocated to the
// start of the new buffer, and resets Stack to 0 — so a partially
// read message is never lost across the promotion.
func ExpandRecv(s *Slot, size uint32, a Allocator) {
	if s.Type != TypeSmallTCP {
		return
	}
	newBuf := a.AllocLarge(size)
	if newBuf == nil {
		return
	}
	unconsumed := s.Count - s.Stack
	copy(newBuf, s.Bytes[s.Stack:s.Count])
	old := s.Bytes
	s.Bytes = newBuf
	s.Count = unconsumed
	s.Stack = 0
	s.Type = TypeLargeTCP
	a.ReleaseSmallTCP(old)
}
