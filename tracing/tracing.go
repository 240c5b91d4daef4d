// Package tracing records a span per resource fetch. It is optional: with no
// TracerProvider configured the global one is used, which is a no-op unless
// the application installed one.
package tracing

import (
	"context"
	"time"

	"github.com/Keksclan/goRawrFeed/contextx"
	"github.com/Keksclan/goRawrFeed/errkind"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const instrumentation = "github.com/Keksclan/goRawrFeed"

// Config holds the OpenTelemetry configuration of a feed core.
type Config struct {
	// TracerProvider supplies the Tracer used to create spans. When nil the
	// global otel.GetTracerProvider() is used.
	TracerProvider trace.TracerProvider
}

// Tracer returns the configured tracer.
func (c *Config) Tracer() trace.Tracer {
	var tp trace.TracerProvider
	if c != nil {
		tp = c.TracerProvider
	}
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return tp.Tracer(instrumentation)
}

// StartFetch starts a client span named "<resource>.fetch" for key.
func StartFetch(ctx context.Context, tr trace.Tracer, resource, key string) (context.Context, trace.Span) {
	ctx, span := tr.Start(ctx, resource+".fetch", trace.WithSpanKind(trace.SpanKindClient))
	span.SetAttributes(
		attribute.String("rawrfeed.resource", resource),
		attribute.String("rawrfeed.key", key),
	)
	if id := contextx.FetchIDFromContext(ctx); id != "" {
		span.SetAttributes(attribute.String("rawrfeed.fetch_id", id))
	}
	return ctx, span
}

// RecordCache tags span with the cache lookup outcome.
func RecordCache(span trace.Span, state string) {
	span.SetAttributes(attribute.String("rawrfeed.cache", state))
}

// RecordRetry adds an event for a scheduled retry.
func RecordRetry(span trace.Span, attempt int, delay time.Duration, err error) {
	span.AddEvent("retry", trace.WithAttributes(
		attribute.Int("rawrfeed.attempt", attempt),
		attribute.Int64("rawrfeed.delay_ms", delay.Milliseconds()),
		attribute.String("rawrfeed.error_kind", errkind.KindOf(err).String()),
	))
}

// RecordResult sets the span status from err and its classified kind.
func RecordResult(span trace.Span, err error) {
	if err == nil {
		span.SetStatus(codes.Ok, "")
		return
	}
	c := errkind.Classify(err)
	span.SetAttributes(attribute.String("rawrfeed.error_kind", c.Kind.String()))
	if c.Status != 0 {
		span.SetAttributes(attribute.Int("http.response.status_code", c.Status))
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, c.Message)
}
