// Package listener implements the per-interface accept loop: it
// accepts TCP connections, constructs a Client Record, links it into
// the server-wide client queue, and spawns the per-client command
// loop.
package listener

import (
	"context"
	"log/slog"
	"net"
	"time"

	"github.com/webitel/ca-rsrvd/internal/collaborators"
	"github.com/webitel/ca-rsrvd/internal/domain/circuit"
	"github.com/webitel/ca-rsrvd/internal/domain/clientqueue"
	"github.com/webitel/ca-rsrvd/internal/domain/runstate"
	"github.com/webitel/ca-rsrvd/internal/priority"
	"github.com/webitel/ca-rsrvd/internal/registration"
)

// AcceptBacklog mirrors rsrv's listen(backlog=20); Go's
// net.Listen has no direct backlog knob, so this is documentation of
// intent only (see DESIGN.md) rather than a value actually passed
// anywhere.
const AcceptBacklog = 20

// AcceptRetryDelay is the back-off the listener sleeps after a failed
// accept or a failed client build before retrying.
const AcceptRetryDelay = 15 * time.Second

// PausePollInterval is how often the listener re-checks the TCP
// run-state flag while paused.
const PausePollInterval = 100 * time.Millisecond

// MessageLoop is the external per-client command loop (camsgtask),
// consumed here only through this contract. Run must block until the
// circuit disconnects (peer close, send/recv failure, or ctx
// cancellation) and then return; the listener calls the teardown
// coordinator immediately after Run returns, regardless of how it
// returned.
type MessageLoop interface {
	Run(ctx context.Context, c *circuit.Client)
}

// Teardown is the narrow contract the listener needs from the
// teardown coordinator: reap a circuit whose message loop has
// returned, or one that failed to fully construct.
type Teardown interface {
	DestroyTCPClient(c *circuit.Client)
	DestroyClient(c *circuit.Client)
}

// Listener runs the accept loop for one bound interface.
type Listener struct {
	Pools       *circuit.Pools
	Pressure    collaborators.PoolPressure
	DB          collaborators.Database
	Watchdog    collaborators.Watchdog
	Announcer   circuit.VersionAnnouncer
	Queue       *clientqueue.Queue
	Registry    *registration.Registry
	MessageLoop MessageLoop
	Teardown    Teardown
	RunState    *runstate.Flag
	Log         *slog.Logger

	// Events, if non-nil, is notified once a freshly built circuit has
	// been linked into the client queue.
	Events circuit.LifecycleSink

	// Hosts, if non-nil, seeds a new circuit's host name from cached
	// reverse DNS; the peer's own host-name message overwrites it
	// later in the command loop.
	Hosts *circuit.HostResolver

	// Started is closed once Serve has entered its accept loop, the
	// start/stop handshake rsrv_init performs with every
	// per-interface thread.
	Started chan struct{}
}

// Serve runs the accept loop against ln until ctx is canceled. ln is
// typically one of the listeners GrabTCP returned. Serve closes
// l.Started exactly once, immediately before entering the loop.
func (l *Listener) Serve(ctx context.Context, ln net.Listener) {
	log := l.Log
	if log == nil {
		log = slog.Default()
	}

	if l.Watchdog != nil {
		l.Watchdog.Insert("listener:" + ln.Addr().String())
		defer l.Watchdog.Remove("listener:" + ln.Addr().String())
	}

	if l.Started != nil {
		close(l.Started)
	}

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		for l.RunState.Get() == runstate.Pause {
			select {
			case <-ctx.Done():
				return
			case <-time.After(PausePollInterval):
			}
		}
		if l.RunState.Get() == runstate.Shutdown {
			return
		}

		type acceptResult struct {
			conn net.Conn
			err  error
		}
		resCh := make(chan acceptResult, 1)
		go func() {
			conn, err := ln.Accept()
			resCh <- acceptResult{conn, err}
		}()

		var res acceptResult
		select {
		case <-ctx.Done():
			return
		case res = <-resCh:
		}

		if res.err != nil {
			log.Error("CAS: accept failed", "error", res.err, "addr", ln.Addr())
			if !sleepOrDone(ctx, AcceptRetryDelay) {
				return
			}
			continue
		}

		c := l.buildClient(ctx, res.conn)
		if c == nil {
			if !sleepOrDone(ctx, AcceptRetryDelay) {
				return
			}
			continue
		}

		l.Queue.Append(c)
		if l.Events != nil {
			l.Events.CircuitConnected(c)
		}

		loopCtx := registration.AttachToContext(ctx, c)
		token := c.CorrelationID.String()
		go func() {
			l.Registry.AttachThread(token, c)
			defer l.Registry.DetachThread(token)
			if l.Watchdog != nil {
				l.Watchdog.Insert(token)
			}
			priority.BandMessageLoop.Yield()

			l.MessageLoop.Run(loopCtx, c)

			l.Queue.Remove(c)
			l.Teardown.DestroyTCPClient(c)
		}()
	}
}

// buildClient is the "build a TCP client" step: admission,
// pool allocation and TCP-specific finalization. On any failure it
// closes conn and frees whatever was partially allocated, returning
// nil so Serve retries after its back-off.
func (l *Listener) buildClient(ctx context.Context, conn net.Conn) *circuit.Client {
	c := circuit.NewClient(l.Pools, l.Pressure, conn, circuit.ProtoTCP)
	if c == nil {
		conn.Close()
		if l.Log != nil {
			l.Log.Warn("CAS: admission refused, pool exhausted and insufficient memory")
		}
		return nil
	}

	if err := circuit.FinalizeTCP(ctx, c, l.DB, l.Announcer, nil); err != nil {
		if l.Log != nil {
			l.Log.Error("CAS: create_tcp_client finalization failed", "error", err)
		}
		l.Teardown.DestroyClient(c)
		return nil
	}

	if l.Hosts != nil && c.PeerAddr != nil {
		if name := l.Hosts.Resolve(ctx, c.PeerAddr); name != "" {
			c.HostName = &name
		}
	}
	return c
}

func sleepOrDone(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
