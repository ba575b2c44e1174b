package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "callscope"

// StartFinalizeSpan starts a span for end-of-call processing.
func StartFinalizeSpan(ctx context.Context, callID string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "finalize",
		trace.WithAttributes(
			attribute.String("call.id", callID),
		),
	)
}

// StartBillingSpan starts a span for a telephony billing fetch.
func StartBillingSpan(ctx context.Context, callSID string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "billing.fetch",
		trace.WithAttributes(
			attribute.String("call.sid", callSID),
		),
	)
}

// StartTagSpan starts a span for LLM tag evaluation.
func StartTagSpan(ctx context.Context, callID string, tagCount int) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "tags.evaluate",
		trace.WithAttributes(
			attribute.String("call.id", callID),
			attribute.Int("tags.count", tagCount),
		),
	)
}
