package buffer

import (
	"bytes"
	"testing"
)

type fakeAllocator struct {
	large    []byte
	released [][]byte
}

func (f *fakeAllocator) AllocLarge(size uint32) []byte {
	return f.large
}

func (f *fakeAllocator) ReleaseSmallTCP(buf []byte) {
	f.released = append(f.released, buf)
}

func (f *fakeAllocator) ReleaseLargeTCP(buf []byte) {
	f.released = append(f.released, buf)
}

func TestExpandSendPreservesStackBytes(t *testing.T) {
	small := make([]byte, 16)
	copy(small, []byte("hello"))
	s := &Slot{Bytes: small, Stack: 5, Count: 5, Type: TypeSmallTCP}

	a := &fakeAllocator{large: make([]byte, 32)}
	ExpandSend(s, 20, a)

	if s.Type != TypeLargeTCP {
		t.Fatalf("expected promotion to large, got %v", s.Type)
	}
	if !bytes.Equal(s.Bytes[:5], []byte("hello")) {
		t.Fatalf("stack bytes not preserved: %q", s.Bytes[:5])
	}
	if len(a.released) != 1 {
		t.Fatalf("expected old small slab released exactly once, got %d", len(a.released))
	}
}

func TestExpandSendNoopWhenLargePoolExhausted(t *testing.T) {
	small := make([]byte, 16)
	s := &Slot{Bytes: small, Stack: 3, Count: 3, Type: TypeSmallTCP}

	a := &fakeAllocator{large: nil}
	ExpandSend(s, 20, a)

	if s.Type != TypeSmallTCP {
		t.Fatalf("expected no promotion, got %v", s.Type)
	}
	if &s.Bytes[0] != &small[0] {
		t.Fatalf("slot buffer must be left untouched on failed promotion")
	}
}

func TestExpandRecvKeepsUnconsumedWindowAtFront(t *testing.T) {
	small := make([]byte, 16)
	copy(small, []byte("0123456789ABCDEF"))
	// Stack=4 means the first 4 bytes were already consumed by the
	// message loop; Count=10 means 10 bytes total have arrived.
	s := &Slot{Bytes: small, Stack: 4, Count: 10, Type: TypeSmallTCP}

	a := &fakeAllocator{large: make([]byte, 64)}
	ExpandRecv(s, 64, a)

	if s.Stack != 0 {
		t.Fatalf("expected Stack reset to 0, got %d", s.Stack)
	}
	if s.Count != 6 {
		t.Fatalf("expected Count=6 (10-4), got %d", s.Count)
	}
	want := []byte("456789")
	if !bytes.Equal(s.Bytes[:s.Count], want) {
		t.Fatalf("unconsumed window not preserved: got %q want %q", s.Bytes[:s.Count], want)
	}
}

func TestReleaseUnknownTypeIsNotFreed(t *testing.T) {
	s := &Slot{Bytes: make([]byte, 4), Type: TypeUnknown}
	a := &fakeAllocator{}
	err := Release(s, a)
	if err == nil {
		t.Fatalf("expected corruption error for unknown buffer type")
	}
	if len(a.released) != 0 {
		t.Fatalf("corrupt-typed buffer must not be freed to any pool")
	}
}

func TestReleaseRoutesToMatchingPool(t *testing.T) {
	s := &Slot{Bytes: make([]byte, 4), Type: TypeSmallTCP}
	a := &fakeAllocator{}
	if err := Release(s, a); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(a.released) != 1 {
		t.Fatalf("expected small-tcp release routed once, got %d", len(a.released))
	}
	if s.Bytes != nil {
		t.Fatalf("slot must not retain a reference after release")
	}
}
