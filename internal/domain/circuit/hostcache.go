package circuit

import (
	"context"
	"net"

	lru "github.com/hashicorp/golang-lru/v2"
)

// HostResolver resolves a peer's reverse-DNS name, cache-aside, so the
// message loop never blocks a send on a DNS round trip for a peer it
// has already seen. Adapted from the delivery service's peer identity
// cache: same cache-aside shape, keyed by address instead of identity.
type HostResolver struct {
	cache *lru.Cache[string, string]
}

// NewHostResolver builds a resolver with room for size distinct peer
// addresses; size <= 0 falls back to a sensible default.
func NewHostResolver(size int) *HostResolver {
	if size <= 0 {
		size = 10000
	}
	cache, _ := lru.New[string, string](size)
	return &HostResolver{cache: cache}
}

// Resolve returns the cached hostname for addr, doing the reverse
// lookup and populating the cache on a miss. A lookup failure is
// cached too (as the empty string) so a persistently unresolvable
// peer never pays the DNS timeout twice.
func (r *HostResolver) Resolve(ctx context.Context, addr net.Addr) string {
	host, _, splitErr := net.SplitHostPort(addr.String())
	if splitErr != nil {
		host = addr.String()
	}
	if cached, ok := r.cache.Get(host); ok {
		return cached
	}

	names, err := net.DefaultResolver.LookupAddr(ctx, host)
	var name string
	if err == nil && len(names) > 0 {
		name = names[0]
	}
	r.cache.Add(host, name)
	return name
}
