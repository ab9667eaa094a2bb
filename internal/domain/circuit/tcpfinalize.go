package circuit

import (
	"context"
	"fmt"
	"net"

	"github.com/webitel/ca-rsrvd/internal/collaborators"
	"github.com/webitel/ca-rsrvd/internal/priority"
)

// VersionAnnouncer emits the initial version-reply message a new TCP
// circuit sends before anything else, create_tcp_client's last
// finalization step. Building and parsing that wire message is the
// camsgtask command loop's job; this interface is the
// seam the core calls through without knowing the message format.
type VersionAnnouncer interface {
	SendVersionReply(c *Client) error
}

// NoopVersionAnnouncer is used standalone/in tests where no real
// message-loop collaborator is wired in.
type NoopVersionAnnouncer struct{}

func (NoopVersionAnnouncer) SendVersionReply(c *Client) error { return nil }

// FinalizeTCP implements create_tcp_client's finalization: sets
// TCP_NODELAY/SO_KEEPALIVE, records the peer address, opens an
// event-facility session, registers extraLabor as its extra-labor
// callback, starts delivery one priority band below the message
// loop's own band (or the same band if none lower exists, per
// priority.OneBandBelow's saturation), and emits the initial version
// reply. On any failure the caller must route c through the Teardown
// Coordinator exactly as destroy_tcp_client does for any other
// failure mode — FinalizeTCP itself never frees c.
func FinalizeTCP(ctx context.Context, c *Client, db collaborators.Database, announcer VersionAnnouncer, extraLabor func()) error {
	if announcer == nil {
		announcer = NoopVersionAnnouncer{}
	}

	tcpConn, ok := c.Conn.(*net.TCPConn)
	if !ok {
		return fmt.Errorf("circuit: FinalizeTCP called on non-TCP connection")
	}
	if err := tcpConn.SetNoDelay(true); err != nil {
		return fmt.Errorf("circuit: TCP_NODELAY: %w", err)
	}
	if err := tcpConn.SetKeepAlive(true); err != nil {
		return fmt.Errorf("circuit: SO_KEEPALIVE: %w", err)
	}

	c.PeerAddr = c.Conn.RemoteAddr()

	ef, err := db.InitEvents(ctx)
	if err != nil {
		return fmt.Errorf("circuit: init_events: %w", err)
	}
	c.EventFacility = ef

	// The callback must be in place before delivery starts, so the
	// session can never fire extra labor into an unregistered slot.
	if extraLabor != nil {
		if err := ef.AddExtraLabor(extraLabor); err != nil {
			return fmt.Errorf("circuit: add_extra_labor_event: %w", err)
		}
	}

	band := priority.OneBandBelow(priority.BandMessageLoop)
	if err := ef.StartEvents(c.CorrelationID.String(), int(band)); err != nil {
		return fmt.Errorf("circuit: start_events: %w", err)
	}

	if err := announcer.SendVersionReply(c); err != nil {
		return fmt.Errorf("circuit: version reply: %w", err)
	}
	return nil
}
