package eventbus

import "time"

// Topics the bus publishes on. Subscribers (the admin surface, an
// external metrics sink) pick the topics they care about; TopicAll
// receives every event.
const (
	TopicCircuitConnected    = "circuit.connected"
	TopicCircuitDisconnected = "circuit.disconnected"
	TopicChannelOpened       = "channel.opened"
	TopicChannelClosed       = "channel.closed"
	TopicAll                 = "cas.events"
)

// CircuitEvent is the payload for circuit.connected/disconnected.
type CircuitEvent struct {
	CorrelationID string    `json:"correlation_id"`
	Peer          string    `json:"peer,omitempty"`
	Channels      int       `json:"channels"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// ChannelEvent is the payload for channel.opened/closed.
type ChannelEvent struct {
	CorrelationID string    `json:"correlation_id"`
	Sid           uint32    `json:"sid"`
	PV            string    `json:"pv,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}
