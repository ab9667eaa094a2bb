package eventbus

import (
	"context"
	"testing"
	"time"

	"github.com/webitel/ca-rsrvd/internal/collaborators"
	"github.com/webitel/ca-rsrvd/internal/domain/circuit"
)

func newTestClient(t *testing.T) (*circuit.Client, *circuit.Pools) {
	t.Helper()
	pools := circuit.NewPools(circuit.PoolSizes{
		Clients: 1, Channels: 2, Events: 2, SmallBufTCP: 2, LargeBufTCP: 1,
		PutNotifies: 2, LargeBufTCPLen: circuit.MaxTCP,
	}, collaborators.AlwaysSufficient{})
	c := circuit.NewClient(pools, collaborators.AlwaysSufficient{}, nil, circuit.ProtoUDP)
	if c == nil {
		t.Fatal("NewClient returned nil")
	}
	return c, pools
}

func TestCircuitConnectedReachesSubscriber(t *testing.T) {
	bus := New(nil, nil)
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	msgs, err := bus.Subscribe(ctx, TopicCircuitConnected)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	c, _ := newTestClient(t)
	bus.CircuitConnected(c)

	select {
	case msg := <-msgs:
		ev, err := DecodeCircuitEvent(msg)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if ev.CorrelationID != c.CorrelationID.String() {
			t.Fatalf("correlation id mismatch: %s vs %s", ev.CorrelationID, c.CorrelationID)
		}
		msg.Ack()
	case <-time.After(2 * time.Second):
		t.Fatal("no circuit.connected event received")
	}
}

func TestChannelClosedCarriesSidAndPV(t *testing.T) {
	bus := New(nil, nil)
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	msgs, err := bus.Subscribe(ctx, TopicChannelClosed)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	c, pools := newTestClient(t)
	ch := pools.Channels.Alloc()
	ch.Sid = 42
	db := collaborators.NewInMemoryDatabase()
	ch.DBChannel = db.NewChannel("test:ai1")

	bus.ChannelClosed(c, ch)

	select {
	case msg := <-msgs:
		ev, err := DecodeChannelEvent(msg)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if ev.Sid != 42 || ev.PV != "test:ai1" {
			t.Fatalf("unexpected payload: %+v", ev)
		}
		msg.Ack()
	case <-time.After(2 * time.Second):
		t.Fatal("no channel.closed event received")
	}
}

func TestTopicAllReceivesEveryEvent(t *testing.T) {
	bus := New(nil, nil)
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	msgs, err := bus.Subscribe(ctx, TopicAll)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	c, _ := newTestClient(t)
	bus.CircuitConnected(c)
	bus.CircuitDisconnected(c)

	for i := 0; i < 2; i++ {
		select {
		case msg := <-msgs:
			msg.Ack()
		case <-time.After(2 * time.Second):
			t.Fatalf("expected 2 events on %s, got %d", TopicAll, i)
		}
	}
}

func TestNoForwarderWhenURLEmpty(t *testing.T) {
	pub, err := NewAMQPForwarder(nil, "")
	if err != nil {
		t.Fatalf("empty url must not error: %v", err)
	}
	if pub != nil {
		t.Fatal("empty url must yield a nil forwarder")
	}
}
