package listener

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/webitel/ca-rsrvd/internal/collaborators"
	"github.com/webitel/ca-rsrvd/internal/domain/circuit"
	"github.com/webitel/ca-rsrvd/internal/domain/clientqueue"
	"github.com/webitel/ca-rsrvd/internal/domain/runstate"
	"github.com/webitel/ca-rsrvd/internal/registration"
)

type blockingLoop struct {
	entered chan struct{}
	once    sync.Once
}

func (l *blockingLoop) Run(ctx context.Context, c *circuit.Client) {
	l.once.Do(func() { close(l.entered) })
	<-ctx.Done()
}

type recordingTeardown struct {
	mu        sync.Mutex
	destroyed []*circuit.Client
}

func (t *recordingTeardown) DestroyTCPClient(c *circuit.Client) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.destroyed = append(t.destroyed, c)
}
func (t *recordingTeardown) DestroyClient(c *circuit.Client) {
	t.DestroyTCPClient(c)
}

func newTestListener(t *testing.T, loop MessageLoop, td Teardown) (*Listener, *runstate.Flag) {
	t.Helper()
	pools := circuit.NewPools(circuit.PoolSizes{
		Clients: 4, Channels: 4, Events: 4, SmallBufTCP: 4, LargeBufTCP: 1,
		PutNotifies: 4, LargeBufTCPLen: circuit.MaxTCP,
	}, collaborators.AlwaysSufficient{})
	flag := runstate.NewFlag(runstate.Run)
	l := &Listener{
		Pools:       pools,
		Pressure:    collaborators.AlwaysSufficient{},
		DB:          collaborators.NewInMemoryDatabase(),
		Watchdog:    collaborators.NewMapWatchdog(),
		Announcer:   circuit.NoopVersionAnnouncer{},
		Queue:       clientqueue.New(),
		Registry:    registration.New(),
		MessageLoop: loop,
		Teardown:    td,
		RunState:    flag,
		Started:     make(chan struct{}),
	}
	return l, flag
}

func TestListenerAcceptsAndSpawnsMessageLoop(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	loop := &blockingLoop{entered: make(chan struct{})}
	td := &recordingTeardown{}
	l, _ := newTestListener(t, loop, td)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go l.Serve(ctx, ln)

	select {
	case <-l.Started:
	case <-time.After(time.Second):
		t.Fatal("listener did not signal start")
	}

	conn, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	select {
	case <-loop.entered:
	case <-time.After(time.Second):
		t.Fatal("message loop was never entered for the accepted connection")
	}

	if l.Queue.Len() != 1 {
		t.Fatalf("expected 1 queued client, got %d", l.Queue.Len())
	}
}

func TestListenerHonorsPauseBeforeAccepting(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	loop := &blockingLoop{entered: make(chan struct{})}
	td := &recordingTeardown{}
	l, flag := newTestListener(t, loop, td)
	flag.Set(runstate.Pause)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go l.Serve(ctx, ln)

	select {
	case <-l.Started:
	case <-time.After(time.Second):
		t.Fatal("listener did not signal start")
	}

	conn, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	select {
	case <-loop.entered:
		t.Fatal("message loop entered while paused")
	case <-time.After(250 * time.Millisecond):
	}

	flag.Set(runstate.Run)
	select {
	case <-loop.entered:
	case <-time.After(time.Second):
		t.Fatal("expected accept to proceed once run state resumed")
	}
}
