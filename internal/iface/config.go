// Package iface implements the interface binder: multi-interface TCP
// port sharing and the per-interface UDP unicast/broadcast/beacon
// socket set.
package iface

import "net"

// Config is the fully-bound socket set for one network interface.
type Config struct {
	// Addr is the interface's bind address; the empty string means
	// INADDR_ANY.
	Addr string

	TCP net.Listener

	// UDP is the unicast name-search receiver.
	UDP *net.UDPConn

	// UDPBcast is the broadcast receiver. Only present when StartBcast
	// is true: non-Windows, and Addr is not ANY.
	UDPBcast *net.UDPConn

	// BeaconTx is the beacon sender, connected to (broadcast addr,
	// beacon port).
	BeaconTx *net.UDPConn

	StartBcast bool
}

// Close releases every socket this Config holds. Safe to call more
// than once and on a partially-populated Config.
func (c *Config) Close() {
	if c.TCP != nil {
		c.TCP.Close()
	}
	if c.UDP != nil {
		c.UDP.Close()
	}
	if c.UDPBcast != nil {
		c.UDPBcast.Close()
	}
	if c.BeaconTx != nil {
		c.BeaconTx.Close()
	}
}
