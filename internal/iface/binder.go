package iface

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"syscall"

	"golang.org/x/sys/unix"
)

// reuseAddrControl enables SO_REUSEADDR before bind, the
// TIME_WAIT-tolerant semantics every interface's listener needs so a
// restart doesn't trip EADDRINUSE on a socket still draining.
func reuseAddrControl(_, _ string, c syscall.RawConn) error {
	var sockErr error
	err := c.Control(func(fd uintptr) {
		sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
	})
	if err != nil {
		return err
	}
	return sockErr
}

// GrabTCP implements rsrv_grap_tcp: bind one TCP listener per address
// in addrs, all sharing the same port, retrying per the three
// three bind-failure policies below. addrs is consumed in order;
// an EADDRNOTAVAIL interface is dropped from the returned list. A
// fatal bind error logs and blocks the calling goroutine on ctx
// (tests pass a cancelable context; production passes one tied to
// process shutdown) rather than ever silently giving up.
func GrabTCP(ctx context.Context, log *slog.Logger, preferredPort int, addrs []string) (listeners []*net.TCPListener, remaining []string, port int, err error) {
	if log == nil {
		log = slog.Default()
	}
	if len(addrs) == 0 {
		addrs = []string{""}
	}
	interfaces := append([]string(nil), addrs...)
	port = preferredPort

	for {
		if len(interfaces) == 0 {
			return nil, nil, 0, fmt.Errorf("iface: no interfaces left to bind")
		}

		var bound []*net.TCPListener
		restart := false

		for i, addr := range interfaces {
			lc := net.ListenConfig{Control: reuseAddrControl}
			ln, bindErr := lc.Listen(ctx, "tcp4", net.JoinHostPort(addr, strconv.Itoa(port)))
			if bindErr != nil {
				closeAll(bound)
				switch {
				case errors.Is(bindErr, syscall.EADDRNOTAVAIL):
					log.Warn("CAS: skipping interface, no longer available", "addr", addr)
					interfaces = append(append([]string{}, interfaces[:i]...), interfaces[i+1:]...)
					restart = true
				case errors.Is(bindErr, syscall.EADDRINUSE):
					log.Warn("CAS: tcp port in use, retrying with kernel-chosen port", "requested_port", port)
					port = 0
					restart = true
				default:
					log.Error("CAS: fatal bind error, suspending listener setup", "error", bindErr, "addr", addr)
					<-ctx.Done()
					return nil, nil, 0, bindErr
				}
				break
			}

			tln := ln.(*net.TCPListener)
			if i == 0 && port == 0 {
				port = tln.Addr().(*net.TCPAddr).Port
			}
			bound = append(bound, tln)
		}

		if !restart {
			return bound, interfaces, port, nil
		}
	}
}

func closeAll(listeners []*net.TCPListener) {
	for _, l := range listeners {
		l.Close()
	}
}
