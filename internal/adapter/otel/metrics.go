package otel

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "callscope"

// Metrics holds all CallScope metric instruments.
type Metrics struct {
	CallsStarted    metric.Int64Counter
	CallsCompleted  metric.Int64Counter
	CallsRejected   metric.Int64Counter
	VoicemailsFound metric.Int64Counter
	WebhooksSent    metric.Int64Counter
	WebhookFailures metric.Int64Counter
	CallDuration    metric.Float64Histogram
	CallCost        metric.Float64Histogram
}

// NewMetrics creates all metric instruments.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.CallsStarted, err = meter.Int64Counter("callscope.calls.started",
		metric.WithDescription("Number of calls registered for tracking"))
	if err != nil {
		return nil, err
	}

	m.CallsCompleted, err = meter.Int64Counter("callscope.calls.completed",
		metric.WithDescription("Number of calls finalized"))
	if err != nil {
		return nil, err
	}

	m.CallsRejected, err = meter.Int64Counter("callscope.calls.rejected",
		metric.WithDescription("Number of calls classified as rejected"))
	if err != nil {
		return nil, err
	}

	m.VoicemailsFound, err = meter.Int64Counter("callscope.calls.voicemail",
		metric.WithDescription("Number of calls that reached voicemail"))
	if err != nil {
		return nil, err
	}

	m.WebhooksSent, err = meter.Int64Counter("callscope.webhooks.sent",
		metric.WithDescription("Number of webhook deliveries attempted"))
	if err != nil {
		return nil, err
	}

	m.WebhookFailures, err = meter.Int64Counter("callscope.webhooks.failed",
		metric.WithDescription("Number of webhook deliveries that failed"))
	if err != nil {
		return nil, err
	}

	m.CallDuration, err = meter.Float64Histogram("callscope.call.duration_seconds",
		metric.WithDescription("Call duration in seconds"))
	if err != nil {
		return nil, err
	}

	m.CallCost, err = meter.Float64Histogram("callscope.call.cost_usd",
		metric.WithDescription("Total call cost in USD"))
	if err != nil {
		return nil, err
	}

	return m, nil
}
