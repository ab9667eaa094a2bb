package circuit

import "github.com/webitel/ca-rsrvd/internal/collaborators"

// Channel is the "Channel-in-use" of the data model: a client-side
// handle to one process variable, bound to exactly one Client. It is
// owned by that Client's ChanList/ChanPendingUpdateARList and is also
// reachable by Sid through the identifier table.
type Channel struct {
	Sid uint32

	// Owner is a navigation-only back-reference: never use it to free
	// or outlive the Client.
	Owner *Client

	DBChannel   collaborators.DBChannel
	EventQ      []*EventExt
	PutNotify   *PutNotify
	ASClientPVT collaborators.ASClientToken
}

func resetChannel(c *Channel) {
	*c = Channel{}
}

// EventExt is one monitor subscription, owned by its channel's EventQ
// and mutated only under the owning client's eventqLock.
type EventExt struct {
	DBEvent collaborators.DBEvent
	Channel *Channel
	Mask    uint32
	// HeaderSnapshot is an opaque copy of the protocol header that
	// requested this monitor, replayed verbatim on delivery; parsing
	// its contents is the message loop's job, not the core's.
	HeaderSnapshot []byte
}

func resetEvent(e *EventExt) {
	*e = EventExt{}
}

// PutNotify is an outstanding server-side put-notify operation: a
// write that owes the originator a completion acknowledgement.
type PutNotify struct {
	Channel  *Channel
	Pending  bool
	Status   int32
	Sequence uint32
}

func resetPutNotify(p *PutNotify) {
	*p = PutNotify{}
}
