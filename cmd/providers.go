package cmd

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/webitel/ca-rsrvd/internal/config"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.uber.org/fx"
	"gopkg.in/natefinch/lumberjack.v2"
)

// ProvideLogger builds the process logger: slog over stderr, or over
// a rotating file when one is configured. Also installs it as the
// default so collaborator code logging through slog.Default() ends up
// in the same place.
func ProvideLogger(cfg *config.Config) *slog.Logger {
	var w io.Writer = os.Stderr
	if cfg.LogFile != "" {
		w = &lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    100, // MB
			MaxBackups: 3,
			MaxAge:     28, // days
			Compress:   true,
		}
	}
	logger := slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)
	return logger
}

// ProvideTracerProvider installs the global OpenTelemetry tracer
// provider the admin gRPC stats handler records into. No exporter is
// wired by default — a deployment appends its own collector exporter
// through OTEL_* env configuration or a code change; the provider
// still propagates context and keeps span attributes consistent.
func ProvideTracerProvider(lc fx.Lifecycle) error {
	res := resource.NewSchemaless(
		semconv.ServiceName(ServiceName),
		semconv.ServiceNamespace(ServiceNamespace),
		semconv.ServiceVersion(version),
	)

	tp := sdktrace.NewTracerProvider(sdktrace.WithResource(res))
	otel.SetTracerProvider(tp)

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return tp.Shutdown(ctx)
		},
	})
	return nil
}

// WatchConfigFile installs the advisory fsnotify watch on the config
// file (when one is configured) for the life of the app.
func WatchConfigFile(lc fx.Lifecycle, cfg *config.Config, log *slog.Logger) error {
	closer, err := config.WatchFile(log, cfg)
	if err != nil {
		return err
	}
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return closer.Close()
		},
	})
	return nil
}
