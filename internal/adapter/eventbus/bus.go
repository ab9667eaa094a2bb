// Package eventbus publishes circuit and channel lifecycle events on
// an in-process watermill bus, with an optional AMQP fan-out for
// multi-replica deployments. It is the LifecycleSink the core's
// listener and teardown paths notify; everything downstream of those
// notifications (the admin WebSocket pump, external metrics sinks)
// subscribes here instead of touching the core.
package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/webitel/ca-rsrvd/internal/domain/circuit"
)

// Bus implements circuit.LifecycleSink over a gochannel pub/sub.
// Publishing is fire-and-forget from the caller's point of view: the
// core's listener/teardown paths must never block on a slow
// subscriber, so the gochannel is configured with a buffer and
// publishes drop a warning rather than stall when it is full.
type Bus struct {
	pubsub  *gochannel.GoChannel
	forward message.Publisher // optional AMQP publisher, nil when not configured
	log     *slog.Logger
}

// New builds an in-process Bus. forward, if non-nil, additionally
// re-publishes every event to an external broker (see NewAMQPForwarder).
func New(log *slog.Logger, forward message.Publisher) *Bus {
	if log == nil {
		log = slog.Default()
	}
	return &Bus{
		pubsub: gochannel.NewGoChannel(gochannel.Config{
			OutputChannelBuffer: 256,
		}, watermill.NewSlogLogger(log)),
		forward: forward,
		log:     log,
	}
}

// Subscribe returns a channel of messages published on topic. The
// subscription lives until ctx is canceled.
func (b *Bus) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	return b.pubsub.Subscribe(ctx, topic)
}

// Close shuts the underlying pub/sub down; in-flight subscribers see
// their channels closed.
func (b *Bus) Close() error {
	if b.forward != nil {
		if err := b.forward.Close(); err != nil {
			b.log.Warn("CAS: event forwarder close failed", "error", err)
		}
	}
	return b.pubsub.Close()
}

func (b *Bus) publish(topic string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		b.log.Warn("CAS: event marshal failed", "topic", topic, "error", err)
		return
	}
	msg := message.NewMessage(watermill.NewUUID(), data)
	msg.Metadata.Set("topic", topic)

	if err := b.pubsub.Publish(topic, msg); err != nil {
		b.log.Warn("CAS: event publish failed", "topic", topic, "error", err)
	}
	if err := b.pubsub.Publish(TopicAll, message.NewMessage(watermill.NewUUID(), data)); err != nil {
		b.log.Warn("CAS: event publish failed", "topic", TopicAll, "error", err)
	}

	if b.forward != nil {
		fwd := message.NewMessage(watermill.NewUUID(), data)
		fwd.Metadata.Set("topic", topic)
		if err := b.forward.Publish(topic, fwd); err != nil {
			b.log.Warn("CAS: event broker forward failed", "topic", topic, "error", err)
		}
	}
}

func circuitPayload(c *circuit.Client) CircuitEvent {
	ev := CircuitEvent{
		CorrelationID: c.CorrelationID.String(),
		Channels:      c.ChannelCount(),
		OccurredAt:    time.Now(),
	}
	if c.PeerAddr != nil {
		ev.Peer = c.PeerAddr.String()
	}
	return ev
}

func channelPayload(c *circuit.Client, ch *circuit.Channel) ChannelEvent {
	ev := ChannelEvent{
		CorrelationID: c.CorrelationID.String(),
		Sid:           ch.Sid,
		OccurredAt:    time.Now(),
	}
	if ch.DBChannel != nil {
		ev.PV = ch.DBChannel.Name()
	}
	return ev
}

// --- circuit.LifecycleSink

func (b *Bus) CircuitConnected(c *circuit.Client) {
	b.publish(TopicCircuitConnected, circuitPayload(c))
}

func (b *Bus) CircuitDisconnected(c *circuit.Client) {
	b.publish(TopicCircuitDisconnected, circuitPayload(c))
}

func (b *Bus) ChannelOpened(c *circuit.Client, ch *circuit.Channel) {
	b.publish(TopicChannelOpened, channelPayload(c, ch))
}

func (b *Bus) ChannelClosed(c *circuit.Client, ch *circuit.Channel) {
	b.publish(TopicChannelClosed, channelPayload(c, ch))
}

var _ circuit.LifecycleSink = (*Bus)(nil)

// DecodeCircuitEvent unmarshals a message published on one of the
// circuit.* topics.
func DecodeCircuitEvent(msg *message.Message) (CircuitEvent, error) {
	var ev CircuitEvent
	if err := json.Unmarshal(msg.Payload, &ev); err != nil {
		return ev, fmt.Errorf("eventbus: decode circuit event: %w", err)
	}
	return ev, nil
}

// DecodeChannelEvent unmarshals a message published on one of the
// channel.* topics.
func DecodeChannelEvent(msg *message.Message) (ChannelEvent, error) {
	var ev ChannelEvent
	if err := json.Unmarshal(msg.Payload, &ev); err != nil {
		return ev, fmt.Errorf("eventbus: decode channel event: %w", err)
	}
	return ev, nil
}
