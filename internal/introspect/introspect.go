// Package introspect implements casr(level)'s
// human-readable dump of connected circuits, channels, buffer/pool
// usage and interface bindings, and casStatsFetch's circuit/channel
// counters.
package introspect

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"unsafe"

	"github.com/webitel/ca-rsrvd/internal/domain/circuit"
	"github.com/webitel/ca-rsrvd/internal/domain/clientqueue"
	"github.com/webitel/ca-rsrvd/internal/domain/idtable"
	"github.com/webitel/ca-rsrvd/internal/iface"
)

// Reporter implements casr/casStatsFetch against a running core. It
// holds no lock of its own: every walk it performs takes the
// client-queue lock (via Queue.Walk) or the id-table lock (via
// Table.Len) for exactly as long as the walk itself, never longer.
type Reporter struct {
	Queue   *clientqueue.Queue
	IDTable *idtable.Table[*circuit.Channel]
	Pools   *circuit.Pools

	mu         sync.Mutex
	interfaces []*iface.Config
}

// SetInterfaces records the bound Interface Configs once the
// interface binder has produced them; called once by the
// initialization pipeline, read thereafter by Dump.
func (r *Reporter) SetInterfaces(cfgs []*iface.Config) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.interfaces = cfgs
}

func (r *Reporter) snapshotInterfaces() []*iface.Config {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.interfaces
}

// Stats is casStatsFetch's (&chanCount, &circuitCount) out-params.
type Stats struct {
	ChannelCount int
	CircuitCount int
}

// Fetch implements casStatsFetch: the id table's cardinality (the
// live channel count) and the client queue's length.
func (r *Reporter) Fetch() Stats {
	return Stats{
		ChannelCount: r.IDTable.Len(),
		CircuitCount: r.Queue.Len(),
	}
}

// Dump implements casr(level): write a level-graded report to w.
// Level 0 lists one line per circuit. Level >=1 adds thread/socket/
// buffer accounting per circuit. Level >=2 adds per-channel detail,
// interface bindings and pool occupancy. Level >=3 additionally notes
// that mutexes/the block semaphore exist (Go has no introspectable
// mutex state to dump, so this is a presence line, not a per-lock
// dump — see DESIGN.md).
func (r *Reporter) Dump(w io.Writer, level int) {
	stats := r.Fetch()
	fmt.Fprintf(w, "CAS: %d circuit(s), %d channel(s)\n", stats.CircuitCount, stats.ChannelCount)

	r.Queue.Walk(func(c *circuit.Client) {
		r.dumpClient(w, c, level)
	})

	if level >= 2 {
		r.dumpInterfaces(w)
		r.dumpPools(w)
	}
}

func (r *Reporter) dumpClient(w io.Writer, c *circuit.Client, level int) {
	fmt.Fprintf(w, "  %s\n", c.String())

	if level >= 1 {
		fmt.Fprintf(w, "    thread=%s socket=%v send_delay=%.3fs recv_delay=%.3fs "+
			"unprocessed_req=%d undelivered_resp=%d disconnect=%v send_type=%s recv_type=%s\n",
			c.ThreadToken(), c.Conn,
			c.SecondsSinceLastSend(), c.SecondsSinceLastRecv(),
			c.Recv.Count-c.Recv.Stack, c.Send.Stack,
			c.Disconnected(), c.Send.Type, c.Recv.Type)
	}

	if level >= 2 {
		// The per-channel walk runs two levels below the circuit dump
		// (casr's showChanList is handed level-2u), so casr(2) lists
		// channels tersely and casr(3+) descends into each one.
		chanLevel := level - 2
		totalBytes := int(unsafe.Sizeof(*c))
		c.WalkChanLists(func(ch *circuit.Channel) {
			// sid (4 bytes) + len(EventQ) slabs + optional put-notify,
			// the per-channel byte accounting casr(>=2) totals per
			// circuit (record, channels, events, put-notifies).
			totalBytes += 4 + len(ch.EventQ)*32
			if ch.PutNotify != nil {
				totalBytes += 16
			}
			dumpChannel(w, ch, chanLevel)
		})
		fmt.Fprintf(w, "    bytes=%d\n", totalBytes)
	}

	if level >= 3 {
		fmt.Fprintf(w, "    locks: send, chanList, eventQ, putNotify, blockSem (present)\n")
	}
}

// dumpChannel prints one channel at the rebased level: 0 is the terse
// one-liner, >=1 descends into each monitor subscription and the
// put-notify slot, >=2 adds the database/access-security bindings.
func dumpChannel(w io.Writer, ch *circuit.Channel, level int) {
	fmt.Fprintf(w, "      channel sid=%d events=%d put_notify=%v\n",
		ch.Sid, len(ch.EventQ), ch.PutNotify != nil)
	if level < 1 {
		return
	}

	for _, ev := range ch.EventQ {
		fmt.Fprintf(w, "        event mask=%#x header=%dB\n", ev.Mask, len(ev.HeaderSnapshot))
	}
	if pn := ch.PutNotify; pn != nil {
		fmt.Fprintf(w, "        put_notify pending=%v status=%d seq=%d\n",
			pn.Pending, pn.Status, pn.Sequence)
	}

	if level >= 2 {
		name := ""
		if ch.DBChannel != nil {
			name = ch.DBChannel.Name()
		}
		fmt.Fprintf(w, "        db=%q as_session=%v\n", name, ch.ASClientPVT.Valid())
	}
}

func (r *Reporter) dumpInterfaces(w io.Writer) {
	fmt.Fprintf(w, "  interfaces:\n")
	for _, cfg := range r.snapshotInterfaces() {
		addr := cfg.Addr
		if addr == "" {
			addr = "ANY"
		}
		fmt.Fprintf(w, "    %s tcp=%v udp=%v bcast=%v beacon_tx=%v\n",
			addr, cfg.TCP != nil, cfg.UDP != nil, cfg.UDPBcast != nil, cfg.BeaconTx != nil)
	}
}

func (r *Reporter) dumpPools(w io.Writer) {
	snap := r.Pools.Snapshot()
	fmt.Fprintf(w, "  pools: clients=%d channels=%d events=%d small_tcp=%d large_tcp=%d(%dB) put_notifies=%d\n",
		snap.ClientsFree, snap.ChannelsFree, snap.EventsFree,
		snap.SmallBufFree, snap.LargeBufFree, snap.LargeBufSize, snap.PutNotifiesFree)
}

// DumpString is Dump rendered to a string, for callers (the admin
// HTTP surface, `casr --watch`) that want the text rather than an
// io.Writer destination.
func (r *Reporter) DumpString(level int) string {
	var sb strings.Builder
	r.Dump(&sb, level)
	return sb.String()
}
