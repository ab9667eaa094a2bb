// Package runstate implements the run-state controller: the three
// independent pause/run/shutdown flags that gate the TCP listener,
// the UDP datagram path, and the beacon transmitter, each settable
// without disturbing the other two.
package runstate

import "sync/atomic"

// State is one of the three run-state values a Flag can hold.
type State int32

const (
	Pause State = iota
	Run
	Shutdown
)

func (s State) String() string {
	switch s {
	case Pause:
		return "pause"
	case Run:
		return "run"
	case Shutdown:
		return "shutdown"
	default:
		return "unknown"
	}
}

// Flag is one atomically-settable run-state value.
type Flag struct {
	v atomic.Int32
}

// NewFlag constructs a Flag starting in the given state.
func NewFlag(initial State) *Flag {
	f := &Flag{}
	f.v.Store(int32(initial))
	return f
}

func (f *Flag) Get() State       { return State(f.v.Load()) }
func (f *Flag) Set(s State)      { f.v.Store(int32(s)) }
func (f *Flag) IsShutdown() bool { return f.Get() == Shutdown }
func (f *Flag) IsPaused() bool   { return f.Get() == Pause }
func (f *Flag) IsRunning() bool  { return f.Get() == Run }

// Controller bundles the three independent run-state flags
// rsrv_run/rsrv_pause toggle together, but which Go's
// per-goroutine accept/receive/beacon loops can poll independently.
type Controller struct {
	TCP    *Flag
	UDP    *Flag
	Beacon *Flag
}

// New returns a Controller with all three flags paused, matching
// rsrv_init()'s startup state before rsrv_run() is first called.
func New() *Controller {
	return &Controller{
		TCP:    NewFlag(Pause),
		UDP:    NewFlag(Pause),
		Beacon: NewFlag(Pause),
	}
}

// Run transitions all three flags to Run, the effect of calling
// rsrv_run().
func (c *Controller) Run() {
	c.TCP.Set(Run)
	c.UDP.Set(Run)
	c.Beacon.Set(Run)
}

// Pause transitions all three flags to Pause, the effect of calling
// rsrv_pause(): accept/receive loops idle but circuits stay open.
func (c *Controller) Pause() {
	c.TCP.Set(Pause)
	c.UDP.Set(Pause)
	c.Beacon.Set(Pause)
}

// Shutdown transitions all three flags to Shutdown, the terminal
// state every loop's poll point treats as "exit now".
func (c *Controller) Shutdown() {
	c.TCP.Set(Shutdown)
	c.UDP.Set(Shutdown)
	c.Beacon.Set(Shutdown)
}
