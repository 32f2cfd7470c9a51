package metrics

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var meter = otel.Meter("conversation-metrics")

// TurnMetrics provides metrics collection for conversation turns
type TurnMetrics struct {
	turnsCounter          metric.Int64Counter
	clarificationsCounter metric.Int64Counter
	errorsCounter         metric.Int64Counter
	turnDurationHistogram metric.Float64Histogram
	turnsActiveGauge      metric.Int64UpDownCounter
}

// NewTurnMetrics creates a new turn metrics collector
func NewTurnMetrics() (*TurnMetrics, error) {
	turnsCounter, err := meter.Int64Counter(
		"window_quote.turns.completed",
		metric.WithDescription("Total number of conversation turns by outcome"),
		metric.WithUnit("{turn}"),
	)
	if err != nil {
		return nil, err
	}

	clarificationsCounter, err := meter.Int64Counter(
		"window_quote.clarifications",
		metric.WithDescription("Clarification questions asked and answered"),
		metric.WithUnit("{clarification}"),
	)
	if err != nil {
		return nil, err
	}

	errorsCounter, err := meter.Int64Counter(
		"window_quote.turns.failed",
		metric.WithDescription("Total number of turns that ended in an error"),
		metric.WithUnit("{turn}"),
	)
	if err != nil {
		return nil, err
	}

	turnDurationHistogram, err := meter.Float64Histogram(
		"window_quote.turn.duration",
		metric.WithDescription("Duration of turn processing in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	turnsActiveGauge, err := meter.Int64UpDownCounter(
		"window_quote.turns.active",
		metric.WithDescription("Number of turns currently being processed"),
		metric.WithUnit("{turn}"),
	)
	if err != nil {
		return nil, err
	}

	return &TurnMetrics{
		turnsCounter:          turnsCounter,
		clarificationsCounter: clarificationsCounter,
		errorsCounter:         errorsCounter,
		turnDurationHistogram: turnDurationHistogram,
		turnsActiveGauge:      turnsActiveGauge,
	}, nil
}

// RecordTurnStarted marks a turn as in flight
func (tm *TurnMetrics) RecordTurnStarted(ctx context.Context, entry string) {
	tm.turnsActiveGauge.Add(ctx, 1,
		metric.WithAttributes(attribute.String("turn.entry", entry)),
	)
}

// RecordTurnCompleted records the outcome of a finished turn
func (tm *TurnMetrics) RecordTurnCompleted(ctx context.Context, entry, outcome string, duration time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("turn.entry", entry),
		attribute.String("turn.outcome", outcome),
	)
	tm.turnsCounter.Add(ctx, 1, attrs)
	tm.turnDurationHistogram.Record(ctx, duration.Seconds(), attrs)
	tm.turnsActiveGauge.Add(ctx, -1,
		metric.WithAttributes(attribute.String("turn.entry", entry)),
	)
}

// RecordTurnFailed records a turn that ended in an error
func (tm *TurnMetrics) RecordTurnFailed(ctx context.Context, entry, errorType string) {
	tm.errorsCounter.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("turn.entry", entry),
			attribute.String("error.type", errorType),
		),
	)
}

// RecordClarification records a clarification event, e.g. "asked" or "resolved"
func (tm *TurnMetrics) RecordClarification(ctx context.Context, category, status string) {
	tm.clarificationsCounter.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("clarification.category", category),
			attribute.String("clarification.status", status),
		),
	)
}
