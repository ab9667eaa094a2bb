// Package priority models the five logical priority bands the server
// derives at startup. EPICS rsrv computes them by repeatedly asking
// the RTOS for "the highest priority strictly below the previous
// band" (epicsThreadHighestPriorityLevelBelow); Go's scheduler exposes
// no such concept to user goroutines; see DESIGN.md for why this is
// resolved as five ordinal tiers rather than silently dropped. The tiers still order two real things: the
// band an event session starts at (OneBandBelow), and (via Band.Yield)
// a best-effort scheduling hint.
package priority

import "runtime"

// Band is one of the five logical tiers, in descending order: lower
// numbers are "more important" and yield last.
type Band int

const (
	// BandMessageLoop is band 0: per-client TCP receive/message loop.
	BandMessageLoop Band = iota
	// BandSend is band 1: per-client TCP send.
	BandSend
	// BandListener is band 2: the TCP listener.
	BandListener
	// BandBeacon is band 3: the beacon sender.
	BandBeacon
	// BandUDPReceiver is band 4: UDP name-search receiver(s).
	BandUDPReceiver
)

func (b Band) String() string {
	switch b {
	case BandMessageLoop:
		return "message-loop"
	case BandSend:
		return "send"
	case BandListener:
		return "listener"
	case BandBeacon:
		return "beacon"
	case BandUDPReceiver:
		return "udp-receiver"
	default:
		return "unknown"
	}
}

// Yield is the best-effort scheduling hint a goroutine in Band b can
// apply before doing admission-sensitive work: lower (more important)
// bands never yield, higher-numbered bands call runtime.Gosched()
// once so the message-loop/send goroutines get first crack at the P
// under contention. This is advisory only — Go provides no priority
// preemption — and keeps the descending-priority intent without
// fabricating nonexistent OS priority classes.
func (b Band) Yield() {
	if b > BandSend {
		runtime.Gosched()
	}
}

// OneBandBelow returns the band logically below b, saturating at
// BandUDPReceiver (the lowest modeled band) exactly as rsrv's loop
// saturates at the lowest priority actually seen when no lower band
// exists. Used by create_tcp_client's event-session start, which
// runs one band below the client's own message-loop band.
func OneBandBelow(b Band) Band {
	if b >= BandUDPReceiver {
		return BandUDPReceiver
	}
	return b + 1
}
