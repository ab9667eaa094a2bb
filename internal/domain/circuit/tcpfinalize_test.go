package circuit

import (
	"context"
	"errors"
	"net"
	"testing"

	"github.com/webitel/ca-rsrvd/internal/collaborators"
)

func tcpPipe(t *testing.T) (client, server *net.TCPConn) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	acceptedCh := make(chan *net.TCPConn, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			acceptedCh <- nil
			return
		}
		acceptedCh <- conn.(*net.TCPConn)
	}()

	dialed, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	server = <-acceptedCh
	if server == nil {
		t.Fatal("accept failed")
	}
	return dialed.(*net.TCPConn), server
}

func TestFinalizeTCPSetsOptionsAndOpensEventFacility(t *testing.T) {
	_, server := tcpPipe(t)
	defer server.Close()

	pools := testPools()
	c := NewClient(pools, collaborators.AlwaysSufficient{}, server, ProtoTCP)
	if c == nil {
		t.Fatal("expected admission")
	}

	db := collaborators.NewInMemoryDatabase()
	if err := FinalizeTCP(context.Background(), c, db, NoopVersionAnnouncer{}, nil); err != nil {
		t.Fatalf("FinalizeTCP: %v", err)
	}
	if c.EventFacility == nil {
		t.Fatal("expected an event facility session to be opened")
	}
	if c.PeerAddr == nil {
		t.Fatal("expected peer address to be recorded")
	}
}

func TestFinalizeTCPRejectsNonTCPConnection(t *testing.T) {
	pools := testPools()
	c := NewClient(pools, collaborators.AlwaysSufficient{}, nil, ProtoUDP)
	if c == nil {
		t.Fatal("expected admission")
	}
	c.Conn = nil

	err := FinalizeTCP(context.Background(), c, collaborators.NewInMemoryDatabase(), NoopVersionAnnouncer{}, nil)
	if err == nil {
		t.Fatal("expected an error for a non-TCP connection")
	}
	if errors.Is(err, context.Canceled) {
		t.Fatal("unexpected context-cancellation error")
	}
}
