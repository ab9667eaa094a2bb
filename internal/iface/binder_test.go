package iface

import (
	"context"
	"net"
	"testing"
	"time"
)

func TestGrabTCPSharesPortAcrossInterfaces(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	listeners, remaining, port, err := GrabTCP(ctx, nil, 0, []string{"127.0.0.1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer closeAll(listeners)

	if len(listeners) != 1 {
		t.Fatalf("expected 1 listener, got %d", len(listeners))
	}
	if len(remaining) != 1 {
		t.Fatalf("expected 1 remaining interface, got %d", len(remaining))
	}
	if port == 0 {
		t.Fatal("expected a concrete kernel-assigned port to be reported")
	}
	got := listeners[0].Addr().(*net.TCPAddr).Port
	if got != port {
		t.Fatalf("listener port %d does not match reported port %d", got, port)
	}
}

func TestGrabTCPEmptyAddrsDefaultsToAny(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	listeners, remaining, _, err := GrabTCP(ctx, nil, 0, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer closeAll(listeners)

	if len(remaining) != 1 || remaining[0] != "" {
		t.Fatalf("expected a single ANY interface, got %v", remaining)
	}
}

func TestGrabTCPRetriesOnPortCollision(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	occupied, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to occupy a port: %v", err)
	}
	defer occupied.Close()
	busyPort := occupied.Addr().(*net.TCPAddr).Port

	listeners, _, port, err := GrabTCP(ctx, nil, busyPort, []string{"127.0.0.1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer closeAll(listeners)

	if port == busyPort {
		t.Fatal("expected a different, kernel-chosen port after EADDRINUSE")
	}
}

func TestGrabTCPDropsUnavailableInterface(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	// 192.0.2.10 (TEST-NET-1) is not configured on any local
	// interface, so binding it fails with EADDRNOTAVAIL and the
	// binder must drop it and finish with the loopback entry alone.
	listeners, remaining, _, err := GrabTCP(ctx, nil, 0, []string{"192.0.2.10", "127.0.0.1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer closeAll(listeners)

	if len(remaining) != 1 || remaining[0] != "127.0.0.1" {
		t.Fatalf("expected the unavailable interface to be dropped, got %v", remaining)
	}
	if len(listeners) != 1 {
		t.Fatalf("expected 1 listener, got %d", len(listeners))
	}
}
