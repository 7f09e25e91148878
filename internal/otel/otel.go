package otel

import (
	"context"
	"strings"
	"sync"

	eventbus "github.com/hanpama/callwire/internal/eventbus"
	events "github.com/hanpama/callwire/internal/events"
	wire "github.com/hanpama/callwire/internal/wire"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
)

// Setup configures OpenTelemetry and attaches eventbus subscribers that
// turn call and batch lifecycle events into spans.
// If endpoint is empty, no telemetry is configured.
func Setup(endpoint, service string) (func(context.Context) error, error) {
	if endpoint == "" {
		return func(context.Context) error { return nil }, nil
	}
	exp, err := otlptracegrpc.New(context.Background(),
		otlptracegrpc.WithEndpoint(endpoint),
		otlptracegrpc.WithDialOption(grpc.WithInsecure()))
	if err != nil {
		return nil, err
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(service),
		)),
	)
	otel.SetTracerProvider(tp)

	sub := &subscriber{tracer: otel.Tracer("callwire")}
	sub.register()

	return tp.Shutdown, nil
}

type subscriber struct {
	tracer     trace.Tracer
	callSpans  sync.Map // callID -> trace.Span
	batchSpans sync.Map // batchKey -> trace.Span
}

type batchKey struct {
	callID int64
	seq    int64
}

func (s *subscriber) register() {
	eventbus.Subscribe(func(ctx context.Context, e events.CallStart) {
		_, span := s.tracer.Start(ctx, "rpc.call")
		span.SetAttributes(attribute.String("rpc.system", "callwire"))
		s.callSpans.Store(e.CallID, span)
	})

	eventbus.Subscribe(func(ctx context.Context, e events.CallEnd) {
		v, ok := s.callSpans.LoadAndDelete(e.CallID)
		if !ok {
			return
		}
		span := v.(trace.Span)
		span.SetAttributes(attribute.String("rpc.code", e.Code.String()))
		span.End()
	})

	eventbus.Subscribe(func(ctx context.Context, e events.BatchSubmit) {
		parent := ctx
		if v, ok := s.callSpans.Load(e.CallID); ok {
			parent = trace.ContextWithSpan(ctx, v.(trace.Span))
		}
		_, span := s.tracer.Start(parent, "rpc.batch")
		span.SetAttributes(attribute.String("rpc.batch.ops", opsAttr(e.Ops)))
		s.batchSpans.Store(batchKey{e.CallID, e.Seq}, span)
	})

	eventbus.Subscribe(func(ctx context.Context, e events.BatchComplete) {
		v, ok := s.batchSpans.LoadAndDelete(batchKey{e.CallID, e.Seq})
		if !ok {
			return
		}
		span := v.(trace.Span)
		span.SetAttributes(attribute.Bool("rpc.batch.ok", e.OK))
		span.End()
	})
}

func opsAttr(kinds []wire.OpKind) string {
	names := make([]string, len(kinds))
	for i, k := range kinds {
		names[i] = k.String()
	}
	return strings.Join(names, ",")
}
