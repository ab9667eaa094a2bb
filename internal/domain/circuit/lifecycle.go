package circuit

// LifecycleSink receives circuit and channel lifecycle notifications:
// a circuit entering or leaving the client queue, a channel being
// bound or torn down. The core calls these synchronously from the
// listener and teardown paths, so implementations must be cheap and
// non-blocking — hand off to a queue (see internal/adapter/eventbus)
// rather than doing I/O inline. ChannelClosed fires immediately
// before ch returns to its pool: implementations must copy what they
// need and never retain the passed pointers.
type LifecycleSink interface {
	CircuitConnected(c *Client)
	CircuitDisconnected(c *Client)
	ChannelOpened(c *Client, ch *Channel)
	ChannelClosed(c *Client, ch *Channel)
}

// NoopLifecycleSink is the default when no event bus is wired in.
type NoopLifecycleSink struct{}

func (NoopLifecycleSink) CircuitConnected(*Client)        {}
func (NoopLifecycleSink) CircuitDisconnected(*Client)     {}
func (NoopLifecycleSink) ChannelOpened(*Client, *Channel) {}
func (NoopLifecycleSink) ChannelClosed(*Client, *Channel) {}
