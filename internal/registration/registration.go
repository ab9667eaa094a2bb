// Package registration implements server registration: the
// record the core hands the database layer so the endpoint shows up
// as a pluggable server with show/stats/current-client callbacks, and
// the thread-to-client binding casAttachThreadToClient/
// casClientInitiatingCurrentThread perform.
//
// EPICS rsrv's mechanism is OS thread-local storage: a message-loop
// thread calls casAttachThreadToClient once on entry and every later
// callback on that same OS thread recovers the Client Record from TLS.
// Go goroutines have no equivalent. The idiomatic replacement (see
// DESIGN.md) is two-layered: a
// context.Context key threaded explicitly through the one place a
// goroutine "attaches" to a Client Record (the message-loop entry
// point), plus a sync.Map keyed by a lightweight per-goroutine token
// for the rare collaborator callback that arrives without a context.
package registration

import (
	"context"
	"io"
	"sync"

	"github.com/webitel/ca-rsrvd/internal/domain/circuit"
)

type ctxKey struct{}

// AttachToContext returns a context carrying c as the current
// goroutine's bound Client Record, the context-scoped half of
// casAttachThreadToClient.
func AttachToContext(ctx context.Context, c *circuit.Client) context.Context {
	return context.WithValue(ctx, ctxKey{}, c)
}

// FromContext recovers the Client Record bound to ctx, if any.
func FromContext(ctx context.Context) *circuit.Client {
	c, _ := ctx.Value(ctxKey{}).(*circuit.Client)
	return c
}

// Registry is the process-wide casAttachThreadToClient /
// casClientInitiatingCurrentThread pair, plus the {name, show, stats,
// current_client} record registered with the database layer on init.
type Registry struct {
	byToken sync.Map // token (string) -> *circuit.Client
}

// New returns an empty Registry.
func New() *Registry { return &Registry{} }

// AttachThread implements casAttachThreadToClient: binds token (the
// calling goroutine's scope token) to c, so CurrentClient(token) can
// recover it later from a collaborator callback that has no context
// in hand. c.AttachThread(token) additionally records the token on
// the Client itself, standing in for rsrv storing its own thread id.
func (r *Registry) AttachThread(token string, c *circuit.Client) {
	c.AttachThread(token)
	r.byToken.Store(token, c)
}

// DetachThread removes token's binding; called by the Teardown
// Coordinator's caller once a circuit's message loop returns.
func (r *Registry) DetachThread(token string) {
	r.byToken.Delete(token)
}

// CurrentClient implements casClientInitiatingCurrentThread(): the
// Client Record bound to token, or nil if none.
func (r *Registry) CurrentClient(token string) *circuit.Client {
	v, ok := r.byToken.Load(token)
	if !ok {
		return nil
	}
	return v.(*circuit.Client)
}

// ShowFunc/StatsFunc/CurrentClientFunc are the three callbacks the
// registration record carries; Name is the server name
// string shown alongside registered servers.
type ShowFunc func(level int) string
type StatsFunc func() (chanCount, circuitCount int)
type CurrentClientFunc func(token string) *circuit.Client

// Record is the {name, show_fn, stats_fn, current_client_fn}
// registered with the database layer at rsrv_init() time.
type Record struct {
	Name          string
	Show          ShowFunc
	Stats         StatsFunc
	CurrentClient CurrentClientFunc
}

// Registrar is the narrow database-layer contract this package
// registers against; kept separate from internal/collaborators.Database
// since registration is a one-shot init-time call, not a per-channel
// concern.
type Registrar interface {
	RegisterServer(Record) (io.Closer, error)
}

// NoopRegistrar is used when no real database layer's server registry
// is wired in (standalone/test operation): it accepts the record and
// returns a no-op closer.
type NoopRegistrar struct{}

func (NoopRegistrar) RegisterServer(Record) (io.Closer, error) { return nopCloser{}, nil }

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
