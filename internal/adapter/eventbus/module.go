package eventbus

import (
	"log/slog"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/webitel/ca-rsrvd/internal/config"
	"github.com/webitel/ca-rsrvd/internal/domain/circuit"
	"go.uber.org/fx"
)

// Module provides the lifecycle Bus (and exposes it as the core's
// LifecycleSink). The AMQP forwarder is only built when an AMQP URL
// is configured.
var Module = fx.Module("eventbus",
	fx.Provide(
		func(log *slog.Logger, cfg *config.Config) (message.Publisher, error) {
			return NewAMQPForwarder(log, cfg.AMQPURL)
		},
		New,
		func(b *Bus) circuit.LifecycleSink { return b },
	),
	fx.Invoke(func(lc fx.Lifecycle, b *Bus) {
		lc.Append(fx.StopHook(func() error { return b.Close() }))
	}),
)
