package eventbus

import (
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-amqp/v3/pkg/amqp"
	"github.com/ThreeDotsLabs/watermill/message"
)

// Exchange is the topic exchange lifecycle events fan out on when an
// AMQP broker is configured.
const Exchange = "cas_rsrvd.events"

// NewAMQPForwarder builds the optional cluster fan-out publisher: a
// durable topic-exchange publisher every replica's bus forwards its
// lifecycle events through. Returns nil (no forwarding) when url is
// empty, so a single-node deployment needs no broker at all.
func NewAMQPForwarder(log *slog.Logger, url string) (message.Publisher, error) {
	if url == "" {
		return nil, nil
	}
	if log == nil {
		log = slog.Default()
	}
	cfg := amqp.NewDurablePubSubConfig(url, nil)
	cfg.Exchange = amqp.ExchangeConfig{
		GenerateName: func(topic string) string { return Exchange },
		Type:         "topic",
		Durable:      true,
	}
	return amqp.NewPublisher(cfg, watermill.NewSlogLogger(log))
}
