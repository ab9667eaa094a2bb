// Package rsrv implements the server initialization pipeline: it
// wires the free pools, identifier table, client queue, run-state
// controller, Interface Binder, Listener Threads, UDP/beacon threads
// and Server Registration into one startable/pausable/stoppable Core,
// and exposes rsrv_run/rsrv_pause/rsrv_init's external entry points.
package rsrv

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/webitel/ca-rsrvd/internal/collaborators"
	"github.com/webitel/ca-rsrvd/internal/config"
	"github.com/webitel/ca-rsrvd/internal/domain/circuit"
	"github.com/webitel/ca-rsrvd/internal/domain/clientqueue"
	"github.com/webitel/ca-rsrvd/internal/domain/idtable"
	"github.com/webitel/ca-rsrvd/internal/domain/runstate"
	"github.com/webitel/ca-rsrvd/internal/iface"
	"github.com/webitel/ca-rsrvd/internal/introspect"
	"github.com/webitel/ca-rsrvd/internal/listener"
	"github.com/webitel/ca-rsrvd/internal/priority"
	"github.com/webitel/ca-rsrvd/internal/registration"
	"github.com/webitel/ca-rsrvd/internal/teardown"
)

// Collaborators bundles every external dependency Core needs but does
// not itself implement: all are optional and default to
// dependency-free stand-ins so Core is runnable standalone.
type Collaborators struct {
	Database    collaborators.Database
	Security    collaborators.AccessSecurity
	Watchdog    collaborators.Watchdog
	Pressure    collaborators.PoolPressure
	Announcer   circuit.VersionAnnouncer
	MessageLoop listener.MessageLoop
	NameSearch  collaborators.NameSearchResponder
	Beacon      collaborators.BeaconTransmitter
	Registrar   registration.Registrar
	Events      circuit.LifecycleSink
}

func (c *Collaborators) setDefaults() {
	if c.Database == nil {
		c.Database = collaborators.NewInMemoryDatabase()
	}
	if c.Security == nil {
		c.Security = collaborators.NoopAccessSecurity{}
	}
	if c.Watchdog == nil {
		c.Watchdog = collaborators.NewMapWatchdog()
	}
	if c.Pressure == nil {
		c.Pressure = collaborators.RuntimePoolPressure{}
	}
	if c.Announcer == nil {
		c.Announcer = circuit.NoopVersionAnnouncer{}
	}
	if c.MessageLoop == nil {
		c.MessageLoop = noopMessageLoop{}
	}
	if c.NameSearch == nil {
		c.NameSearch = collaborators.NoopNameSearchResponder{}
	}
	if c.Beacon == nil {
		c.Beacon = collaborators.NoopBeaconTransmitter{}
	}
	if c.Registrar == nil {
		c.Registrar = registration.NoopRegistrar{}
	}
	if c.Events == nil {
		c.Events = circuit.NoopLifecycleSink{}
	}
}

type noopMessageLoop struct{}

func (noopMessageLoop) Run(ctx context.Context, c *circuit.Client) { <-ctx.Done() }

// Core is the assembled resource core: everything rsrv_init wires up,
// gated by rsrv_run/rsrv_pause.
type Core struct {
	Pools    *circuit.Pools
	IDTable  *idtable.Table[*circuit.Channel]
	Queue    *clientqueue.Queue
	RunState *runstate.Controller
	Teardown *teardown.Coordinator
	Registry *registration.Registry
	Reporter *introspect.Reporter

	collab Collaborators
	hosts  *circuit.HostResolver
	log    *slog.Logger

	ifaces          []*iface.Config
	listeners       []*listener.Listener
	lnClosers       []net.Listener
	registrarCloser interface{ Close() error }

	runCancel context.CancelFunc
	wg        sync.WaitGroup
}

// New constructs Core's static parts (pools, id table, queue, run
// state, teardown coordinator) from cfg, ahead of Init binding any
// sockets. Any zero-valued field of collab is filled with a
// dependency-free default.
func New(cfg *config.Config, collab Collaborators, log *slog.Logger) *Core {
	if log == nil {
		log = slog.Default()
	}
	collab.setDefaults()

	pools := circuit.NewPools(circuit.DefaultPoolSizes(cfg.LargeBufTCPLen), collab.Pressure)
	ids := idtable.New[*circuit.Channel]()
	queue := clientqueue.New()
	rs := runstate.New()
	tc := teardown.New(pools, ids, collab.Watchdog, collab.Security, collab.Database, log)
	tc.Events = collab.Events
	registry := registration.New()
	reporter := &introspect.Reporter{Queue: queue, IDTable: ids, Pools: pools}

	return &Core{
		Pools:    pools,
		IDTable:  ids,
		Queue:    queue,
		RunState: rs,
		Teardown: tc,
		Registry: registry,
		Reporter: reporter,
		collab:   collab,
		hosts:    circuit.NewHostResolver(0),
		log:      log,
	}
}

// Init implements rsrv_init(): binds the TCP/UDP/beacon sockets for
// every configured interface (defaulting to a single ANY entry when
// cfg.Interfaces is empty), starts one Listener Thread, UDP receiver,
// (where applicable) UDP broadcast receiver and beacon goroutine per
// interface, registers the server with the database layer,
// and leaves every run-state flag paused — rsrv_run() must be called
// separately before any traffic is processed.
func (c *Core) Init(ctx context.Context, cfg *config.Config) error {
	// Process-wide: a peer resetting its circuit mid-send must surface
	// as a send error, never kill the process. Go already shields
	// network writes from SIGPIPE; this covers collaborator code
	// writing to broken pipes directly, and SIGALRM from collaborator
	// timers. Signal disposition is per-process in Go, so one call
	// here replaces a per-thread install.
	signal.Ignore(syscall.SIGPIPE, syscall.SIGALRM)

	addrs := cfg.Interfaces
	if len(addrs) == 0 {
		addrs = []string{""}
	}

	tcpListeners, remaining, port, err := iface.GrabTCP(ctx, c.log, cfg.ServerPort, addrs)
	if err != nil {
		return fmt.Errorf("rsrv: grab_tcp: %w", err)
	}
	if port != cfg.ServerPort {
		c.log.Warn("CAS: bound to a different TCP port than requested; UDP name search may not reach this server via unicast", "requested", cfg.ServerPort, "bound", port)
	}

	udpCfgs, err := iface.BindAll(c.log, remaining, iface.Ports{Name: port, Beacon: cfg.BeaconPort})
	if err != nil {
		for _, ln := range tcpListeners {
			ln.Close()
		}
		return fmt.Errorf("rsrv: bind udp sockets: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	c.runCancel = cancel

	for i, udpCfg := range udpCfgs {
		udpCfg.TCP = tcpListeners[i]
		c.ifaces = append(c.ifaces, udpCfg)

		l := &listener.Listener{
			Pools:       c.Pools,
			Pressure:    c.collab.Pressure,
			DB:          c.collab.Database,
			Watchdog:    c.collab.Watchdog,
			Announcer:   c.collab.Announcer,
			Queue:       c.Queue,
			Registry:    c.Registry,
			MessageLoop: c.collab.MessageLoop,
			Teardown:    c.Teardown,
			RunState:    c.RunState.TCP,
			Log:         c.log,
			Events:      c.collab.Events,
			Hosts:       c.hosts,
			Started:     make(chan struct{}),
		}
		c.listeners = append(c.listeners, l)
		c.lnClosers = append(c.lnClosers, tcpListeners[i])

		c.wg.Add(1)
		go func(l *listener.Listener, ln net.Listener) {
			defer c.wg.Done()
			l.Serve(runCtx, ln)
		}(l, tcpListeners[i])
		<-l.Started

		udpStarted := make(chan struct{})
		c.wg.Add(1)
		go func(conn *net.UDPConn) {
			defer c.wg.Done()
			runUDPReceiver(runCtx, c.RunState.UDP, c.collab.NameSearch, conn, udpStarted)
		}(udpCfg.UDP)
		<-udpStarted

		if udpCfg.UDPBcast != nil {
			bcastStarted := make(chan struct{})
			c.wg.Add(1)
			go func(conn *net.UDPConn) {
				defer c.wg.Done()
				runUDPReceiver(runCtx, c.RunState.UDP, c.collab.NameSearch, conn, bcastStarted)
			}(udpCfg.UDPBcast)
			<-bcastStarted
		}

		beaconStarted := make(chan struct{})
		c.wg.Add(1)
		go func(conn *net.UDPConn) {
			defer c.wg.Done()
			runBeacon(runCtx, c.RunState.Beacon, c.collab.Beacon, conn, beaconStarted)
		}(udpCfg.BeaconTx)
		<-beaconStarted
	}

	c.Reporter.SetInterfaces(c.ifaces)

	closer, err := c.collab.Registrar.RegisterServer(registration.Record{
		Name:          "CAS",
		Show:          func(level int) string { return c.Reporter.DumpString(level) },
		Stats:         func() (int, int) { s := c.Reporter.Fetch(); return s.ChannelCount, s.CircuitCount },
		CurrentClient: c.Registry.CurrentClient,
	})
	if err != nil {
		return fmt.Errorf("rsrv: register server: %w", err)
	}
	c.registrarCloser = closer

	return nil
}

// runUDPReceiver gates a NameSearchResponder's read loop by the UDP
// run-state flag: it closes started once the goroutine is live (the
// same start/stop handshake every per-interface thread performs with
// the pipeline), waits out the initial pause, then hands the socket
// to the collaborator's Serve loop, which itself consults paused()
// between datagrams so a later rsrv_pause() takes effect without the
// core needing to own the read loop directly.
func runUDPReceiver(ctx context.Context, flag *runstate.Flag, responder collaborators.NameSearchResponder, conn *net.UDPConn, started chan<- struct{}) {
	close(started)
	if !waitForRun(ctx, flag) {
		return
	}
	priority.BandUDPReceiver.Yield()
	responder.Serve(ctx, conn, func() bool { return flag.Get() == runstate.Pause })
}

// runBeacon is runUDPReceiver's twin for the beacon transmitter.
func runBeacon(ctx context.Context, flag *runstate.Flag, tx collaborators.BeaconTransmitter, conn *net.UDPConn, started chan<- struct{}) {
	close(started)
	if !waitForRun(ctx, flag) {
		return
	}
	priority.BandBeacon.Yield()
	tx.Run(ctx, conn, func() bool { return flag.Get() == runstate.Pause })
}

// waitForRun blocks, polling every PausePollInterval, until flag
// leaves Pause; returns false if ctx is canceled or flag reaches
// Shutdown first.
func waitForRun(ctx context.Context, flag *runstate.Flag) bool {
	for {
		switch flag.Get() {
		case runstate.Shutdown:
			return false
		case runstate.Pause:
			select {
			case <-ctx.Done():
				return false
			case <-time.After(listener.PausePollInterval):
			}
		default:
			return true
		}
	}
}

// OpenChannel binds a database channel handle to cl: allocates a
// Channel from the pool, assigns its sid through the identifier table
// and links it into cl's channel list, keeping the rule that every
// listed channel has a live id-table entry enforced in one place. The
// external message loop calls this when it claims a PV on a circuit's
// behalf; the Teardown Coordinator reverses it. Returns nil when the
// channel pool is exhausted, which the caller reports to the peer the
// same way any other resource refusal is reported.
func (c *Core) OpenChannel(cl *circuit.Client, dbch collaborators.DBChannel) *circuit.Channel {
	ch := c.Pools.Channels.Alloc()
	if ch == nil {
		return nil
	}
	ch.DBChannel = dbch
	ch.Sid = c.IDTable.Insert(ch)
	cl.AddChannel(ch)
	c.collab.Events.ChannelOpened(cl, ch)
	return ch
}

// Run implements rsrv_run(): transitions all three control flags to
// run, letting every already-started thread begin processing traffic.
func (c *Core) Run() { c.RunState.Run() }

// Pause implements rsrv_pause(): transitions all three control flags
// back to pause; existing circuits stay open, only new
// accept/recvfrom/beacon activity halts at the next poll point.
func (c *Core) Pause() { c.RunState.Pause() }

// Shutdown tears the core down: sets every flag to shutdown, cancels
// the per-interface goroutines' context, closes every bound socket,
// waits for the listener, UDP receiver and beacon goroutines to exit
// (per-circuit message-loop goroutines are not waited for), and closes
// the server registration.
func (c *Core) Shutdown() {
	c.RunState.Shutdown()
	if c.runCancel != nil {
		c.runCancel()
	}
	for _, cfg := range c.ifaces {
		cfg.Close()
	}
	c.wg.Wait()
	if c.registrarCloser != nil {
		c.registrarCloser.Close()
	}
}
