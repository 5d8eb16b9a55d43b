package monitoring

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/turtacn/trustkit/pkg/constants"
	"github.com/turtacn/trustkit/pkg/logger"
)

// TracingConfig controls the tracer provider.
type TracingConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	ServiceName string  `mapstructure:"service_name"`
	SampleRatio float64 `mapstructure:"sample_ratio"`
}

// Tracing owns the process tracer provider.
type Tracing struct {
	provider trace.TracerProvider
	sdk      *sdktrace.TracerProvider
	shutdown func(context.Context) error
}

// NewTracing builds a tracer provider and installs it globally. When tracing is
// disabled a no-op provider is installed. exporter may be nil, in which case spans
// are sampled and recorded but not exported.
func NewTracing(cfg TracingConfig, exporter sdktrace.SpanExporter, log logger.Logger) (*Tracing, error) {
	if log == nil {
		log = logger.NewNoopLogger()
	}
	ctx := context.Background()

	if !cfg.Enabled {
		provider := noop.NewTracerProvider()
		otel.SetTracerProvider(provider)
		log.Info(ctx, "Tracing is disabled")
		return &Tracing{provider: provider, shutdown: func(context.Context) error { return nil }}, nil
	}

	if cfg.SampleRatio < 0 || cfg.SampleRatio > 1 {
		return nil, fmt.Errorf("tracing sample ratio must be within [0, 1], got %v", cfg.SampleRatio)
	}
	name := cfg.ServiceName
	if name == "" {
		name = constants.DefaultServiceName
	}

	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceName(name)))
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))),
	}
	if exporter != nil {
		opts = append(opts, sdktrace.WithBatcher(exporter))
	}
	provider := sdktrace.NewTracerProvider(opts...)

	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	log.Info(ctx, "Tracing initialized",
		logger.String("service_name", name),
		logger.Any("sample_ratio", cfg.SampleRatio),
	)
	return &Tracing{provider: provider, sdk: provider, shutdown: provider.Shutdown}, nil
}

// Tracer returns a named tracer from the managed provider.
func (t *Tracing) Tracer(name string) trace.Tracer {
	return t.provider.Tracer(name)
}

// ForceFlush exports every span ended so far. It is a no-op when tracing is disabled.
func (t *Tracing) ForceFlush(ctx context.Context) error {
	if t.sdk == nil {
		return nil
	}
	return t.sdk.ForceFlush(ctx)
}

// Shutdown flushes pending spans and stops the exporter.
func (t *Tracing) Shutdown(ctx context.Context) error {
	return t.shutdown(ctx)
}
