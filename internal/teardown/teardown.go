// Package teardown implements the teardown coordinator: the ordered
// destruction of a circuit's channels, buffers and record, safe
// against event-facility callbacks that may still be in flight when
// teardown begins.
package teardown

import (
	"log/slog"
	"time"

	"github.com/sony/gobreaker"
	"github.com/webitel/ca-rsrvd/internal/collaborators"
	"github.com/webitel/ca-rsrvd/internal/domain/buffer"
	"github.com/webitel/ca-rsrvd/internal/domain/circuit"
	"github.com/webitel/ca-rsrvd/internal/domain/idtable"
)

// Coordinator owns the collaborators and breakers destroy_tcp_client
// needs: the ID table every channel must be removed from, the pools
// every freed object returns to, and the two non-fatal collaborator
// calls guarded by circuit breakers so a wedged
// collaborator degrades to fast-fail-and-log instead of stalling every
// teardown behind it.
type Coordinator struct {
	Pools    *circuit.Pools
	IDTable  *idtable.Table[*circuit.Channel]
	Watchdog collaborators.Watchdog
	Security collaborators.AccessSecurity
	DB       collaborators.Database
	Log      *slog.Logger

	// Events, if non-nil, is notified as channels and the circuit
	// itself are dismantled. Set by the initialization pipeline when
	// an event bus is wired in; nil in bare-core tests.
	Events circuit.LifecycleSink

	asBreaker *gobreaker.CircuitBreaker
	dbBreaker *gobreaker.CircuitBreaker
}

// New constructs a Coordinator with breakers sized for a single,
// locally-hosted collaborator: five consecutive failures within a
// 10 s window trips to open, recovering after 5 s half-open.
func New(pools *circuit.Pools, ids *idtable.Table[*circuit.Channel], wd collaborators.Watchdog, sec collaborators.AccessSecurity, db collaborators.Database, log *slog.Logger) *Coordinator {
	if log == nil {
		log = slog.Default()
	}
	settings := func(name string) gobreaker.Settings {
		return gobreaker.Settings{
			Name:     name,
			Interval: 10 * time.Second,
			Timeout:  5 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
		}
	}
	return &Coordinator{
		Pools:     pools,
		IDTable:   ids,
		Watchdog:  wd,
		Security:  sec,
		DB:        db,
		Log:       log,
		asBreaker: gobreaker.NewCircuitBreaker(settings("access-security")),
		dbBreaker: gobreaker.NewCircuitBreaker(settings("database")),
	}
}

// DestroyTCPClient implements destroy_tcp_client(c): event-facility
// quiesce, then channel teardown, then destroy_client. The ordering
// is a hard contract — do not reorder these steps.
func (t *Coordinator) DestroyTCPClient(c *circuit.Client) {
	t.quiesceEventFacility(c)

	for _, ch := range c.DrainChanList() {
		t.destroyChannel(c, ch)
	}
	for _, ch := range c.DrainPendingARList() {
		t.destroyChannel(c, ch)
	}

	if c.EventFacility != nil {
		if err := c.EventFacility.Close(); err != nil {
			t.Log.Warn("CAS: event facility close failed", "error", err, "circuit", c.CorrelationID)
		}
	}

	if t.Events != nil {
		t.Events.CircuitDisconnected(c)
	}

	t.DestroyClient(c)
}

// quiesceEventFacility deregisters the extra-labor callback and blocks
// until any already-queued invocation has completed, so step 2 below
// can never race a callback into a freed channel.
func (t *Coordinator) quiesceEventFacility(c *circuit.Client) {
	if c.EventFacility == nil {
		return
	}
	if err := c.EventFacility.AddExtraLabor(nil); err != nil {
		t.Log.Warn("CAS: extra-labor deregister failed", "error", err, "circuit", c.CorrelationID)
	}
	c.EventFacility.FlushExtraLabor()
}

// destroyChannel dismantles one channel: monitors, put-notify, id
// table entry, access security, database handle, pool slab.
func (t *Coordinator) destroyChannel(c *circuit.Client, ch *circuit.Channel) {
	for _, ev := range c.DrainEventQ(ch) {
		t.DB.CancelEvent(ev.DBEvent)
		t.Pools.Events.Free(ev)
	}

	if ch.PutNotify != nil {
		t.Pools.PutNotifies.Free(ch.PutNotify)
		ch.PutNotify = nil
	}

	if _, ok := t.IDTable.Remove(ch.Sid); !ok {
		t.Log.Warn("CAS: channel id not found in id table during teardown", "sid", ch.Sid)
	}

	if ch.ASClientPVT.Valid() {
		if _, err := t.asBreaker.Execute(func() (any, error) {
			return nil, t.Security.RemoveClient(ch.ASClientPVT)
		}); err != nil {
			t.Log.Warn("CAS: access-security remove_client failed", "error", err, "sid", ch.Sid)
		}
	}

	if ch.DBChannel != nil {
		if _, err := t.dbBreaker.Execute(func() (any, error) {
			t.DB.DeleteChannel(ch.DBChannel)
			return nil, nil
		}); err != nil {
			t.Log.Warn("CAS: database channel delete failed", "error", err, "sid", ch.Sid)
		}
	}

	if t.Events != nil {
		t.Events.ChannelClosed(c, ch)
	}

	t.Pools.Channels.Free(ch)
}

// DestroyClient implements destroy_client(c): watchdog removal, socket
// close, buffer release by type tag, and returning the record to its
// pool. Safe to call on a partially-initialized Client (NewClient's
// own failure path reuses the buffer-release half of this).
func (t *Coordinator) DestroyClient(c *circuit.Client) {
	if t.Watchdog != nil {
		t.Watchdog.Remove(c.CorrelationID.String())
	}

	if c.Conn != nil {
		if err := c.Conn.Close(); err != nil {
			t.Log.Debug("CAS: socket close", "error", err, "circuit", c.CorrelationID)
		}
	}

	if err := buffer.Release(&c.Send, t.Pools); err != nil {
		t.Log.Error("CAS: send buffer corruption on teardown", "error", err, "circuit", c.CorrelationID)
	}
	if err := buffer.Release(&c.Recv, t.Pools); err != nil {
		t.Log.Error("CAS: recv buffer corruption on teardown", "error", err, "circuit", c.CorrelationID)
	}

	t.Pools.Clients.Free(c)
}
