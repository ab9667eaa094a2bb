package iface

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"runtime"
	"strconv"
	"syscall"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"
)

// Ports bundles the two well-known UDP port numbers every interface's
// socket set is built against.
type Ports struct {
	Name   int // shared with the TCP port: name-search unicast/broadcast receiver
	Beacon int
}

// BindAll builds the per-interface UDP socket set (unicast receiver,
// optional broadcast receiver, beacon sender) concurrently across
// addrs, since each interface's sockets are independent of every
// other's — only the TCP listeners in GrabTCP share state across
// interfaces and must stay sequential.
func BindAll(log *slog.Logger, addrs []string, ports Ports) ([]*Config, error) {
	if log == nil {
		log = slog.Default()
	}
	cfgs := make([]*Config, len(addrs))
	var g errgroup.Group
	for i, addr := range addrs {
		i, addr := i, addr
		g.Go(func() error {
			cfg, err := bindOne(log, addr, ports)
			if err != nil {
				return fmt.Errorf("iface: udp bind for %q: %w", addr, err)
			}
			cfgs[i] = cfg
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		for _, c := range cfgs {
			if c != nil {
				c.Close()
			}
		}
		return nil, err
	}
	return cfgs, nil
}

func bindOne(log *slog.Logger, addr string, ports Ports) (*Config, error) {
	cfg := &Config{Addr: addr}

	udpConn, err := reuseListenUDP(addr, ports.Name)
	if err != nil {
		return nil, fmt.Errorf("udp unicast receiver: %w", err)
	}
	cfg.UDP = udpConn

	bcastAddrs, err := broadcastAddrsForInterface(addr)
	if err != nil {
		cfg.Close()
		return nil, fmt.Errorf("cannot resolve broadcast address: %w", err)
	}
	if len(bcastAddrs) == 0 {
		cfg.Close()
		return nil, fmt.Errorf("no broadcast address found for interface %q", addr)
	}
	if addr == "" && len(bcastAddrs) > 1 {
		log.Warn("CAS: multiple broadcast addresses for ANY interface, using first", "chosen", bcastAddrs[0], "all", bcastAddrs)
	}
	bcastAddr := bcastAddrs[0]

	beaconTx, err := dialBeacon(addr, bcastAddr, ports.Beacon)
	if err != nil {
		cfg.Close()
		return nil, fmt.Errorf("udp beacon sender: %w", err)
	}
	cfg.BeaconTx = beaconTx

	if runtime.GOOS != "windows" && addr != "" {
		bcastRecv, err := reuseListenUDP(bcastAddr, ports.Name)
		if err != nil {
			cfg.Close()
			return nil, fmt.Errorf("udp broadcast receiver: %w", err)
		}
		cfg.UDPBcast = bcastRecv
		cfg.StartBcast = true
	}

	return cfg, nil
}

// reuseListenUDP binds a UDP socket with SO_REUSEADDR (and, where the
// platform supports it, datagram load-spreading across identical
// binds is left to the kernel's default reuse-port behavior under
// SO_REUSEADDR on Linux).
func reuseListenUDP(addr string, port int) (*net.UDPConn, error) {
	lc := net.ListenConfig{Control: reuseAddrControl}
	pc, err := lc.ListenPacket(context.Background(), "udp4", net.JoinHostPort(addr, strconv.Itoa(port)))
	if err != nil {
		return nil, err
	}
	return pc.(*net.UDPConn), nil
}

// dialBeacon opens the beacon-sender socket: bound to a random port on
// addr, connected to (bcastAddr, beaconPort), SO_BROADCAST enabled,
// read side shut down so nothing this process sends itself back to
// the beacon socket generates a POLLIN wakeup.
func dialBeacon(addr, bcastAddr string, beaconPort int) (*net.UDPConn, error) {
	dialer := net.Dialer{
		LocalAddr: &net.UDPAddr{IP: net.ParseIP(addr)},
		Control: func(_, _ string, c syscall.RawConn) error {
			var sockErr error
			err := c.Control(func(fd uintptr) {
				sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_BROADCAST, 1)
			})
			if err != nil {
				return err
			}
			return sockErr
		},
	}
	if addr == "" {
		dialer.LocalAddr = nil
	}
	conn, err := dialer.Dial("udp4", net.JoinHostPort(bcastAddr, strconv.Itoa(beaconPort)))
	if err != nil {
		return nil, err
	}
	udpConn := conn.(*net.UDPConn)

	rawConn, err := udpConn.SyscallConn()
	if err == nil {
		_ = rawConn.Control(func(fd uintptr) {
			_ = syscall.Shutdown(int(fd), syscall.SHUT_RD)
		})
	}
	return udpConn, nil
}

// broadcastAddrsForInterface enumerates the IPv4 broadcast addresses
// reachable from addr: every configured interface's broadcast address
// when addr is ANY, or just the one interface owning addr otherwise.
func broadcastAddrsForInterface(addr string) ([]string, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	var out []string
	for _, ifi := range ifaces {
		addrs, err := ifi.Addrs()
		if err != nil {
			continue
		}
		for _, a := range addrs {
			ipNet, ok := a.(*net.IPNet)
			if !ok {
				continue
			}
			ip4 := ipNet.IP.To4()
			if ip4 == nil {
				continue
			}
			if addr != "" && ip4.String() != addr {
				continue
			}
			mask := ipNet.Mask
			if len(mask) == 16 {
				mask = mask[12:]
			}
			bcast := make(net.IP, len(ip4))
			for i := range ip4 {
				bcast[i] = ip4[i] | ^mask[i]
			}
			out = append(out, bcast.String())
		}
	}
	return out, nil
}
