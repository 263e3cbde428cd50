// Package tracing sets up OpenTelemetry and decorates sinks and fragment
// handlers with spans.
package tracing

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/zipkin"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/nfrund/wirecall/internal/transport"
)

const instrumentation = "wirecall"

// Config holds configuration for OpenTelemetry tracing
type Config struct {
	Enabled     bool
	ServiceName string
	ZipkinURL   string `validate:"omitempty,url"`
}

// DefaultConfig returns tracing disabled with a local Zipkin endpoint.
func DefaultConfig() Config {
	return Config{
		Enabled:     false,
		ServiceName: "wirecall",
		ZipkinURL:   "http://localhost:9411/api/v2/spans",
	}
}

// Setup returns a tracer exporting to Zipkin, or a no-op tracer when
// tracing is disabled. The returned shutdown flushes pending spans.
func Setup(ctx context.Context, cfg Config, version string) (trace.Tracer, func(context.Context) error, error) {
	if !cfg.Enabled {
		return noop.NewTracerProvider().Tracer(instrumentation), func(context.Context) error { return nil }, nil
	}

	exporter, err := zipkin.New(cfg.ZipkinURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create zipkin exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(cfg.ServiceName),
			semconv.ServiceVersionKey.String(version),
		),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create trace resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	return tp.Tracer(instrumentation), tp.Shutdown, nil
}

// Sink records a span around every offer to the wrapped sink.
type Sink struct {
	sink    transport.Sink
	tracer  trace.Tracer
	channel string
}

// TraceSink wraps sink so that each offer on channel is traced.
func TraceSink(sink transport.Sink, tracer trace.Tracer, channel transport.Channel) *Sink {
	return &Sink{sink: sink, tracer: tracer, channel: channel.String()}
}

func (s *Sink) Offer(buf []byte) bool {
	_, span := s.tracer.Start(context.Background(), "wire.offer."+s.channel,
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			attribute.String("messaging.system", instrumentation),
			attribute.String("messaging.operation", "publish"),
			attribute.String("messaging.destination", s.channel),
			attribute.Int("messaging.message_payload_size_bytes", len(buf)),
		),
	)
	defer span.End()

	ok := s.sink.Offer(buf)
	span.SetAttributes(attribute.Bool("wire.accepted", ok))
	if !ok {
		span.SetStatus(codes.Error, "offer not accepted")
	}
	return ok
}

func (s *Sink) IsConnected() bool {
	return s.sink.IsConnected()
}

// Close closes the wrapped sink if it owns resources.
func (s *Sink) Close() error {
	if c, ok := s.sink.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}

// Dispatcher matches agent.Dispatcher.
type Dispatcher interface {
	Handle(buf []byte, offset int) error
}

type dispatcher struct {
	next   Dispatcher
	tracer trace.Tracer
	iface  string
}

// TraceDispatcher wraps d so that each handled frame of iface is traced
// and failures are recorded on the span.
func TraceDispatcher(d Dispatcher, tracer trace.Tracer, iface string) Dispatcher {
	return &dispatcher{next: d, tracer: tracer, iface: iface}
}

func (d *dispatcher) Handle(buf []byte, offset int) error {
	_, span := d.tracer.Start(context.Background(), "wire.dispatch."+d.iface,
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.system", instrumentation),
			attribute.String("messaging.operation", "process"),
			attribute.String("wire.interface", d.iface),
			attribute.Int("messaging.message_payload_size_bytes", len(buf)-offset),
		),
	)
	defer span.End()

	if err := d.next.Handle(buf, offset); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}
