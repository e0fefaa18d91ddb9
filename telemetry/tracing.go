package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

// NewTracerProvider builds an otel TracerProvider exporting spans to
// stdout by default; swap the exporter for a real backend without
// touching call sites, since every emit point only holds a
// trace.Tracer.
func NewTracerProvider(serviceName string) (*sdktrace.TracerProvider, error) {
	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, fmt.Errorf("telemetry: create trace exporter: %w", err)
	}

	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(
		semconv.ServiceName(serviceName),
	))
	if err != nil {
		return nil, fmt.Errorf("telemetry: build resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	return tp, nil
}

// StartIterationSpan opens one span per agent iteration loop tick.
// Callers must end the returned span when the tick completes.
func StartIterationSpan(ctx context.Context, tracer trace.Tracer, taskID string, iteration int) (context.Context, trace.Span) {
	return tracer.Start(ctx, "agent.iteration",
		trace.WithAttributes(
			attribute.String("task.id", taskID),
			attribute.Int("iteration", iteration),
		),
	)
}
