package collaborators

import (
	"context"
	"net"
)

// NameSearchResponder is the UDP name-search responder body, an
// external collaborator. The core only owns gating its read loop by
// the UDP run-state flag and
// handing it the bound socket; parsing/answering CA_SEARCH requests
// is this collaborator's job.
type NameSearchResponder interface {
	// Serve reads and answers name-search datagrams from conn until
	// ctx is canceled, consulting paused() between datagrams so a
	// rsrv_pause() call takes effect at the next poll point
	// without the core needing to own this collaborator's read loop.
	Serve(ctx context.Context, conn *net.UDPConn, paused func() bool)
}

// BeaconTransmitter is the beacon transmitter's period/backoff
// logic, an external collaborator. The core owns gating its send
// loop's
// *start* by the beacon run-state flag and handing it the connected
// beacon socket; deciding when and what to send, and honoring paused()
// between beacons, is this collaborator's job.
type BeaconTransmitter interface {
	// Run sends beacons on conn until ctx is canceled.
	Run(ctx context.Context, conn *net.UDPConn, paused func() bool)
}

// NoopNameSearchResponder and NoopBeaconTransmitter are used
// standalone/in tests where no real search/beacon collaborator is
// wired in: they idle until ctx is done instead of busy-looping.
type NoopNameSearchResponder struct{}

func (NoopNameSearchResponder) Serve(ctx context.Context, conn *net.UDPConn, paused func() bool) {
	<-ctx.Done()
}

type NoopBeaconTransmitter struct{}

func (NoopBeaconTransmitter) Run(ctx context.Context, conn *net.UDPConn, paused func() bool) {
	<-ctx.Done()
}
