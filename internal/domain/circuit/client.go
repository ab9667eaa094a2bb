package circuit

import (
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/google/uuid"
	"github.com/webitel/ca-rsrvd/internal/collaborators"
	"github.com/webitel/ca-rsrvd/internal/domain/buffer"
)

// Protocol is the transport a Client speaks.
type Protocol int

const (
	ProtoUnknown Protocol = iota
	ProtoTCP
	ProtoUDP
)

// PriorityMin is the lowest CA priority class, assigned to every new
// Client until the message loop negotiates otherwise.
const PriorityMin uint8 = 0

// MinorVersionUnknown is the sentinel minor protocol version a Client
// carries before its peer's version request is parsed.
const MinorVersionUnknown uint16 = 0xffff

// Client is the per-connection "circuit": one Client Record per TCP
// connection. After construction it is owned exclusively
// by its message-loop goroutine; each of its four collection-guarding
// mutexes is documented at the field it protects, and the lock order
// client-queue-lock > ChanListLock > EventQLock must never be
// violated by a caller holding more than one of them at once.
type Client struct {
	// Identity
	CorrelationID uuid.UUID
	PeerAddr      net.Addr
	UserName      *string
	HostName      *string
	MinorVersion  uint16
	Priority      uint8

	// Transport
	Conn       net.Conn
	Proto      Protocol
	disconnect atomic.Bool
	lastSendAt atomic.Int64 // unix nanos
	lastRecvAt atomic.Int64

	// Buffers
	Send buffer.Slot
	Recv buffer.Slot

	// EventFacility is the database-layer handle used to deliver
	// monitor updates; nil until create_tcp_client's finalization step
	// establishes a session.
	EventFacility collaborators.EventFacility

	// lock guards the send path. Leaf lock: never held while acquiring
	// another.
	lock sync.Mutex

	// ChanListLock guards ChanList and ChanPendingUpdateARList.
	ChanListLock  sync.Mutex
	chanList      []*Channel
	chanPendingAR []*Channel

	// EventQLock guards every owned channel's EventQ: a channel's
	// monitor queue is never mutated except under its client's
	// EventQLock, never its own.
	EventQLock sync.Mutex

	// PutNotifyLock guards PutNotifyQueue. Leaf lock like lock.
	PutNotifyLock sync.Mutex
	putNotifyQue  []*PutNotify

	// blockSem is the counting event the send path blocks on under
	// backpressure; implemented as a 1-buffered channel used as a
	// binary semaphore, which is sufficient because only one sender
	// goroutine per circuit ever waits on it at a time.
	blockSem chan struct{}

	// tid is the goroutine-scope token casAttachThreadToClient binds,
	// standing in for the OS thread id rsrv stored — see DESIGN.md's
	// thread-local-storage resolution.
	tid string

	pools *Pools
}

// resetClient wipes a pooled Client back to its zero value before
// NewClient reinitializes it, so a later Alloc never observes a
// previous connection's peer identity or buffers.
func resetClient(c *Client) {
	*c = Client{}
}

// AdmissionSpaceNeeded is the headroom create_client requires: one
// client slot plus one small-TCP buffer's worth of bytes.
func AdmissionSpaceNeeded() uint64 {
	return uint64(unsafe.Sizeof(Client{})) + uint64(MaxTCP)
}

// Admit applies the fail-fast admission check: refuse only
// when *both* the free-client pool is empty *and* the process is
// below its configured "sufficient memory" threshold.
func Admit(pools *Pools, pressure collaborators.PoolPressure) bool {
	spaceOnFreeList := pools.Clients.ItemsAvailable() > 0 && pools.SmallBufTCP.ItemsAvailable() > 0
	return pressure.SufficientSpace(AdmissionSpaceNeeded()) || spaceOnFreeList
}

// NewClient implements create_client(): admission check, pool alloc,
// buffer setup per protocol. Returns nil if admission is refused or
// pool allocation fails; the caller owns closing sock in that case
// exactly as create_client's contract requires (the socket is not
// touched here).
func NewClient(pools *Pools, pressure collaborators.PoolPressure, conn net.Conn, proto Protocol) *Client {
	if !Admit(pools, pressure) {
		return nil
	}

	c := pools.Clients.Alloc()
	if c == nil {
		// The client pool is empty but memory headroom admitted the
		// circuit: carve the record from the heap. It joins the pool's
		// free list on release, as AllocLarge's heap-carved slabs do.
		if !pressure.SufficientSpace(AdmissionSpaceNeeded()) {
			return nil
		}
		c = &Client{}
	}

	c.CorrelationID = uuid.New()
	c.Conn = conn
	c.Proto = proto
	c.pools = pools
	c.blockSem = make(chan struct{}, 1)
	now := time.Now().UnixNano()
	c.lastSendAt.Store(now)
	c.lastRecvAt.Store(now)
	c.MinorVersion = MinorVersionUnknown
	c.Priority = PriorityMin

	switch proto {
	case ProtoTCP:
		sendBuf := pools.AllocSmallTCP()
		recvBuf := pools.AllocSmallTCP()
		if sendBuf == nil || recvBuf == nil {
			destroyPartial(c, pools)
			return nil
		}
		c.Send = buffer.Slot{Bytes: sendBuf, Type: buffer.TypeSmallTCP}
		c.Recv = buffer.Slot{Bytes: recvBuf, Type: buffer.TypeSmallTCP}
	case ProtoUDP:
		c.Send = buffer.Slot{Bytes: make([]byte, MaxUDPSend), Type: buffer.TypeUDP}
		c.Recv = buffer.Slot{Bytes: make([]byte, MaxUDPRecv), Type: buffer.TypeUDP}
	}

	return c
}

// destroyPartial releases whatever NewClient managed to allocate
// before a later step failed, mirroring destroy_client's tolerance of
// partial initialization.
func destroyPartial(c *Client, pools *Pools) {
	if c.Send.Bytes != nil {
		_ = buffer.Release(&c.Send, pools)
	}
	if c.Recv.Bytes != nil {
		_ = buffer.Release(&c.Recv, pools)
	}
	pools.Clients.Free(c)
}

// SetDisconnect marks the circuit as torn down; message-loop poll
// points consult this to stop processing.
func (c *Client) SetDisconnect()     { c.disconnect.Store(true) }
func (c *Client) Disconnected() bool { return c.disconnect.Load() }

// TouchSend/TouchRecv update the last-activity timestamps Introspection
// reports ("Secs since last send/receive").
func (c *Client) TouchSend() { c.lastSendAt.Store(time.Now().UnixNano()) }
func (c *Client) TouchRecv() { c.lastRecvAt.Store(time.Now().UnixNano()) }

func (c *Client) SecondsSinceLastSend() float64 {
	return time.Since(time.Unix(0, c.lastSendAt.Load())).Seconds()
}

func (c *Client) SecondsSinceLastRecv() float64 {
	return time.Since(time.Unix(0, c.lastRecvAt.Load())).Seconds()
}

// Lock/Unlock guard the send path (client->lock in rsrv terms).
func (c *Client) Lock()   { c.lock.Lock() }
func (c *Client) Unlock() { c.lock.Unlock() }

// BlockSend blocks the send path under flow control until SignalSend is
// called (or a timeout elapses); a zero or negative timeout blocks
// indefinitely.
func (c *Client) BlockSend(timeout time.Duration) {
	if timeout <= 0 {
		<-c.blockSem
		return
	}
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-c.blockSem:
	case <-t.C:
	}
}

// SignalSend releases one blocked sender, matching epicsEventSignal on
// blockSem; non-blocking if no one is waiting.
func (c *Client) SignalSend() {
	select {
	case c.blockSem <- struct{}{}:
	default:
	}
}

// AddChannel appends ch to ChanList under ChanListLock.
func (c *Client) AddChannel(ch *Channel) {
	c.ChanListLock.Lock()
	defer c.ChanListLock.Unlock()
	ch.Owner = c
	c.chanList = append(c.chanList, ch)
}

// ParkForACUpdate moves ch from ChanList to ChanPendingUpdateARList,
// where it is temporarily held during access-rights re-evaluation.
func (c *Client) ParkForACUpdate(ch *Channel) bool {
	c.ChanListLock.Lock()
	defer c.ChanListLock.Unlock()
	for i, x := range c.chanList {
		if x == ch {
			c.chanList = append(c.chanList[:i], c.chanList[i+1:]...)
			c.chanPendingAR = append(c.chanPendingAR, ch)
			return true
		}
	}
	return false
}

// UnparkFromACUpdate moves ch back from the pending-AR list to
// ChanList once re-evaluation completes.
func (c *Client) UnparkFromACUpdate(ch *Channel) bool {
	c.ChanListLock.Lock()
	defer c.ChanListLock.Unlock()
	for i, x := range c.chanPendingAR {
		if x == ch {
			c.chanPendingAR = append(c.chanPendingAR[:i], c.chanPendingAR[i+1:]...)
			c.chanList = append(c.chanList, ch)
			return true
		}
	}
	return false
}

// ChannelCount reports len(ChanList)+len(ChanPendingUpdateARList), the
// figure log_one_client prints.
func (c *Client) ChannelCount() int {
	c.ChanListLock.Lock()
	defer c.ChanListLock.Unlock()
	return len(c.chanList) + len(c.chanPendingAR)
}

// DrainChanList pops and returns every channel from ChanList, one
// lock acquisition per item — never holding ChanListLock across the
// per-channel teardown work that follows: no lock is held across any
// blocking call.
func (c *Client) DrainChanList() []*Channel {
	return drainList(&c.ChanListLock, &c.chanList)
}

// DrainPendingARList is DrainChanList's twin for the pending-AR list.
func (c *Client) DrainPendingARList() []*Channel {
	return drainList(&c.ChanListLock, &c.chanPendingAR)
}

func drainList(mu *sync.Mutex, list *[]*Channel) []*Channel {
	var out []*Channel
	for {
		mu.Lock()
		if len(*list) == 0 {
			mu.Unlock()
			break
		}
		ch := (*list)[len(*list)-1]
		*list = (*list)[:len(*list)-1]
		mu.Unlock()
		out = append(out, ch)
	}
	return out
}

// WalkChanLists calls fn for every channel currently in ChanList and
// ChanPendingUpdateARList, under ChanListLock, for read-only
// introspection. fn must not block or re-enter the client.
func (c *Client) WalkChanLists(fn func(*Channel)) {
	c.ChanListLock.Lock()
	defer c.ChanListLock.Unlock()
	for _, ch := range c.chanList {
		fn(ch)
	}
	for _, ch := range c.chanPendingAR {
		fn(ch)
	}
}

// DrainEventQ pops and returns every monitor subscription from ch's
// EventQ under the client's EventQLock.
func (c *Client) DrainEventQ(ch *Channel) []*EventExt {
	var out []*EventExt
	for {
		c.EventQLock.Lock()
		if len(ch.EventQ) == 0 {
			c.EventQLock.Unlock()
			break
		}
		ev := ch.EventQ[len(ch.EventQ)-1]
		ch.EventQ = ch.EventQ[:len(ch.EventQ)-1]
		c.EventQLock.Unlock()
		out = append(out, ev)
	}
	return out
}

// EnqueuePutNotify appends a put-notify record to the queue.
func (c *Client) EnqueuePutNotify(pn *PutNotify) {
	c.PutNotifyLock.Lock()
	defer c.PutNotifyLock.Unlock()
	c.putNotifyQue = append(c.putNotifyQue, pn)
}

// DrainPutNotifyQueue empties and returns the put-notify queue.
func (c *Client) DrainPutNotifyQueue() []*PutNotify {
	c.PutNotifyLock.Lock()
	defer c.PutNotifyLock.Unlock()
	out := c.putNotifyQue
	c.putNotifyQue = nil
	return out
}

// AttachThread binds the calling goroutine to this Client for the
// life of its message loop, the Go-idiomatic replacement for
// casAttachThreadToClient's OS thread-local binding (see DESIGN.md).
func (c *Client) AttachThread(token string) {
	c.tid = token
}

func (c *Client) ThreadToken() string { return c.tid }

func (c *Client) String() string {
	proto := "UKN"
	switch c.Proto {
	case ProtoTCP:
		proto = "TCP"
	case ProtoUDP:
		proto = "UDP"
	}
	user, host := "", ""
	if c.UserName != nil {
		user = *c.UserName
	}
	if c.HostName != nil {
		host = *c.HostName
	}
	return fmt.Sprintf("%s %s(%s): User=%q, %d Channels, Priority=%d",
		proto, c.PeerAddr, host, user, c.ChannelCount(), c.Priority)
}
