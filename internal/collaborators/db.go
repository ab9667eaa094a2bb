// Package collaborators defines the narrow interfaces the resource
// core consumes from (and exposes to) its external collaborators: the
// database/event layer, access security, the watchdog, and the
// pool-pressure oracle. Parsing CA wire messages, firing monitors and
// performing access checks all live behind these seams — this package
// specifies the *contracts*, not those internals, plus a
// lightweight in-memory default implementation so the core is
// runnable and testable standalone.
package collaborators

import (
	"context"
	"sync"
)

// DBChannel is the opaque database channel handle a Channel owns
// (dbch in the data model). The core never interprets it; it only
// creates and deletes it through Database.
type DBChannel interface {
	Name() string
}

// DBEvent is the opaque database event handle a monitor subscription
// owns (pdbev in the data model).
type DBEvent interface{}

// ASClientToken is the opaque access-security token a Channel carries
// (asClientPVT). The zero value means "no access-security session was
// ever established".
type ASClientToken struct {
	id uint64
}

// Valid reports whether the token names a live access-security
// session.
func (t ASClientToken) Valid() bool { return t.id != 0 }

// NewASClientToken mints a token for a live access-security session.
// Exported so collaborator implementations outside this package (and
// tests exercising the teardown path) can construct a valid token
// without reaching into the unexported field.
func NewASClientToken(id uint64) ASClientToken { return ASClientToken{id: id} }

// EventFacility is the per-circuit handle obtained from the database
// layer for delivering monitor updates (db_init_events/evuser in
// EPICS terms). The two-step "deregister then flush" pair is what
// makes teardown safe against in-flight monitor callbacks:
// once AddExtraLabor(nil) returns, FlushExtraLabor guarantees no
// extra-labor callback already queued will run after it returns.
type EventFacility interface {
	// AddExtraLabor registers a callback the database layer may invoke
	// out-of-band on this circuit's behalf. Passing a nil callback
	// deregisters it.
	AddExtraLabor(cb func()) error
	// FlushExtraLabor blocks until any extra-labor invocation already
	// in flight has completed.
	FlushExtraLabor()
	// StartEvents begins event delivery at the given logical priority
	// band (see internal/priority).
	StartEvents(name string, priority int) error
	// Close tears the session down. Must only be called after
	// AddExtraLabor(nil) + FlushExtraLabor have completed.
	Close() error
}

// Database is the collaborator that actually holds process variables,
// fires monitors, and deletes channel handles.
type Database interface {
	InitEvents(ctx context.Context) (EventFacility, error)
	CancelEvent(ev DBEvent)
	DeleteChannel(ch DBChannel)
}

// AccessSecurity is the access-control collaborator.
type AccessSecurity interface {
	// RemoveClient releases an access-security session. Failures here
	// are logged and teardown proceeds regardless.
	RemoveClient(tok ASClientToken) error
}

// Watchdog is the liveness-monitoring collaborator each message-loop
// goroutine registers with on attach and deregisters from on teardown.
type Watchdog interface {
	Insert(id string)
	Remove(id string)
}

// PoolPressure is the "pool-sufficient" admission predicate: either
// the relevant free pool has a slab, or the process
// has enough headroom to grow the heap instead.
type PoolPressure interface {
	SufficientSpace(bytes uint64) bool
}

// --- Default, dependency-free implementations used when no real
// database/access-security/watchdog backend is wired in (tests, and
// the introspection-only standalone mode).

// InMemoryDatabase is a minimal Database + EventFacility pair good
// enough for tests and for running the core without a real EPICS
// database layer attached.
type InMemoryDatabase struct {
	mu   sync.Mutex
	cnt  uint64
	pvs  map[string]struct{}
	fail bool // not consulted: InitEvents always succeeds
}

// NewInMemoryDatabase returns a Database collaborator backed only by
// process memory; every channel name "exists" implicitly.
func NewInMemoryDatabase() *InMemoryDatabase {
	return &InMemoryDatabase{pvs: make(map[string]struct{})}
}

func (d *InMemoryDatabase) InitEvents(ctx context.Context) (EventFacility, error) {
	return &inMemoryEventFacility{}, nil
}

func (d *InMemoryDatabase) CancelEvent(ev DBEvent) {}

func (d *InMemoryDatabase) DeleteChannel(ch DBChannel) {}

type namedChannel string

func (n namedChannel) Name() string { return string(n) }

// NewChannel mints a DBChannel handle for the named PV.
func (d *InMemoryDatabase) NewChannel(name string) DBChannel {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pvs[name] = struct{}{}
	return namedChannel(name)
}

type inMemoryEventFacility struct {
	mu     sync.Mutex
	cb     func()
	closed bool
}

func (f *inMemoryEventFacility) AddExtraLabor(cb func()) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cb = cb
	return nil
}

func (f *inMemoryEventFacility) FlushExtraLabor() {
	f.mu.Lock()
	defer f.mu.Unlock()
	// Nothing queued asynchronously in the in-memory facility: it
	// stores the extra-labor callback but never invokes it, so there
	// is nothing in flight to wait for.
}

func (f *inMemoryEventFacility) StartEvents(name string, priority int) error {
	return nil
}

func (f *inMemoryEventFacility) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// NoopAccessSecurity never fails RemoveClient; used where no real
// access-security layer is configured.
type NoopAccessSecurity struct{}

func (NoopAccessSecurity) RemoveClient(tok ASClientToken) error { return nil }

// MapWatchdog is an in-memory Watchdog good enough for tests and for
// standalone operation; it just tracks registered ids.
type MapWatchdog struct {
	mu  sync.Mutex
	ids map[string]struct{}
}

func NewMapWatchdog() *MapWatchdog {
	return &MapWatchdog{ids: make(map[string]struct{})}
}

func (w *MapWatchdog) Insert(id string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.ids[id] = struct{}{}
}

func (w *MapWatchdog) Remove(id string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.ids, id)
}

// Registered reports whether id is currently tracked; exported for
// tests.
func (w *MapWatchdog) Registered(id string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.ids[id]
	return ok
}
