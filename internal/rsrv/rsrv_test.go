package rsrv

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/webitel/ca-rsrvd/internal/collaborators"
	"github.com/webitel/ca-rsrvd/internal/config"
	"github.com/webitel/ca-rsrvd/internal/domain/circuit"
	"github.com/webitel/ca-rsrvd/internal/domain/runstate"
)

func TestInitBindsSingleANYInterfaceWhenListEmpty(t *testing.T) {
	cfg := &config.Config{ServerPort: 0, BeaconPort: 0, LargeBufTCPLen: config.MinLargeBufTCP}
	core := New(cfg, Collaborators{}, nil)

	ctx := context.Background()
	if err := core.Init(ctx, cfg); err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer core.Shutdown()

	if len(core.ifaces) != 1 {
		t.Fatalf("expected exactly one interface config, got %d", len(core.ifaces))
	}
	if core.ifaces[0].Addr != "" {
		t.Fatalf("expected ANY interface (empty addr), got %q", core.ifaces[0].Addr)
	}
	if core.RunState.TCP.Get().String() != "pause" {
		t.Fatalf("expected TCP run-state to start paused")
	}
}

func TestRunAllowsClientThroughPausedInitially(t *testing.T) {
	cfg := &config.Config{ServerPort: 0, BeaconPort: 0, LargeBufTCPLen: config.MinLargeBufTCP}
	core := New(cfg, Collaborators{}, nil)

	ctx := context.Background()
	if err := core.Init(ctx, cfg); err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer core.Shutdown()

	addr := core.ifaces[0].TCP.Addr().(*net.TCPAddr)

	// Still paused: a connection attempt should succeed at the TCP
	// level (kernel backlog) but not yet produce a queued client.
	conn, err := net.DialTimeout("tcp", addr.String(), time.Second)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	time.Sleep(150 * time.Millisecond)
	if core.Queue.Len() != 0 {
		t.Fatalf("expected no queued client while paused, got %d", core.Queue.Len())
	}

	core.Run()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if core.Queue.Len() == 1 {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("expected a client to appear in the queue within 2s of rsrv_run(), got %d", core.Queue.Len())
}

func TestOpenChannelsTornDownRestoresPoolsAndIDTable(t *testing.T) {
	cfg := &config.Config{ServerPort: 0, BeaconPort: 0, LargeBufTCPLen: config.MinLargeBufTCP}
	core := New(cfg, Collaborators{}, nil)
	before := core.Pools.Snapshot()

	c := circuit.NewClient(core.Pools, collaborators.AlwaysSufficient{}, nil, circuit.ProtoTCP)
	if c == nil {
		t.Fatal("NewClient returned nil")
	}
	core.Queue.Append(c)

	db := collaborators.NewInMemoryDatabase()
	opened := 0
	for {
		ch := core.OpenChannel(c, db.NewChannel("test:pv"))
		if ch == nil {
			break
		}
		opened++
	}
	if opened != circuit.DefaultChannelSlabs {
		t.Fatalf("expected to exhaust the channel pool at %d, opened %d", circuit.DefaultChannelSlabs, opened)
	}
	if core.IDTable.Len() != opened {
		t.Fatalf("id table cardinality %d != %d opened channels", core.IDTable.Len(), opened)
	}

	core.Queue.Remove(c)
	core.Teardown.DestroyTCPClient(c)

	if core.IDTable.Len() != 0 {
		t.Fatalf("expected empty id table after teardown, got %d", core.IDTable.Len())
	}
	after := core.Pools.Snapshot()
	if after != before {
		t.Fatalf("pool counts not restored: before=%+v after=%+v", before, after)
	}
}

func TestUDPAndBeaconThreadsHandshakeWhilePaused(t *testing.T) {
	flag := runstate.NewFlag(runstate.Pause)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	udpStarted := make(chan struct{})
	go runUDPReceiver(ctx, flag, collaborators.NoopNameSearchResponder{}, nil, udpStarted)
	select {
	case <-udpStarted:
	case <-time.After(time.Second):
		t.Fatal("udp receiver never signaled start while paused")
	}

	beaconStarted := make(chan struct{})
	go runBeacon(ctx, flag, collaborators.NoopBeaconTransmitter{}, nil, beaconStarted)
	select {
	case <-beaconStarted:
	case <-time.After(time.Second):
		t.Fatal("beacon thread never signaled start while paused")
	}
}
