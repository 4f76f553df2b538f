package otelx

import (
	"context"
	"strconv"
	"time"

	"github.com/md-rashed-zaman/slotconfirm/libs/config"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

type Config struct {
	Enabled      bool
	ServiceName  string
	OTLPEndpoint string // host:port, e.g. jaeger:4317
	SampleRatio  float64
}

// ConfigFromEnv reads OTEL_ENABLED, OTEL_EXPORTER_OTLP_ENDPOINT and OTEL_SAMPLING_RATIO.
// Tracing is off unless enabled explicitly.
func ConfigFromEnv(serviceName string) Config {
	sampleRatio := 1.0
	if f, err := strconv.ParseFloat(config.String("OTEL_SAMPLING_RATIO", "1"), 64); err == nil && f >= 0 && f <= 1 {
		sampleRatio = f
	}
	return Config{
		Enabled:      config.Bool("OTEL_ENABLED", false),
		ServiceName:  serviceName,
		OTLPEndpoint: config.String("OTEL_EXPORTER_OTLP_ENDPOINT", "jaeger:4317"),
		SampleRatio:  sampleRatio,
	}
}

// Setup installs the W3C propagators and, when enabled, an OTLP tracer provider.
// Call the returned shutdown func during graceful shutdown.
func Setup(ctx context.Context, cfg Config) (func(context.Context) error, error) {
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	if !cfg.Enabled {
		return func(context.Context) error { return nil }, nil
	}

	exp, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint),
		otlptracegrpc.WithInsecure(),
		otlptracegrpc.WithTimeout(3*time.Second),
	)
	if err != nil {
		return nil, err
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceName(cfg.ServiceName)),
	)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))),
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}
