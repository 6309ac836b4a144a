package playback

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "murmur.click/internal/playback"

// metrics holds the manager's instruments. Nil instruments are skipped.
type metrics struct {
	transitions metric.Int64Counter
	rejected    metric.Int64Counter
	pending     metric.Int64UpDownCounter
	startDelay  metric.Float64Histogram
}

func newMetrics(meter metric.Meter) *metrics {
	if meter == nil {
		meter = otel.Meter(meterName)
	}

	m := &metrics{}
	var err error

	m.transitions, err = meter.Int64Counter("murmur.playback.transitions",
		metric.WithDescription("Playback state transitions by target state"))
	if err != nil {
		slog.Warn("failed to create playback metric", "metric", "transitions", "error", err)
	}

	m.rejected, err = meter.Int64Counter("murmur.playback.rejected",
		metric.WithDescription("Play commands rejected because the queue was full"))
	if err != nil {
		slog.Warn("failed to create playback metric", "metric", "rejected", "error", err)
	}

	m.pending, err = meter.Int64UpDownCounter("murmur.playback.pending",
		metric.WithDescription("Playbacks waiting in the queue"))
	if err != nil {
		slog.Warn("failed to create playback metric", "metric", "pending", "error", err)
	}

	m.startDelay, err = meter.Float64Histogram("murmur.playback.start_delay",
		metric.WithDescription("Time from acceptance to first audio"),
		metric.WithUnit("s"))
	if err != nil {
		slog.Warn("failed to create playback metric", "metric", "start_delay", "error", err)
	}

	return m
}

func (m *metrics) transition(to State) {
	if m.transitions != nil {
		m.transitions.Add(context.Background(), 1, metric.WithAttributes(attribute.String("state", to.String())))
	}
}

func (m *metrics) reject(reason string) {
	if m.rejected != nil {
		m.rejected.Add(context.Background(), 1, metric.WithAttributes(attribute.String("reason", reason)))
	}
}

func (m *metrics) queued(delta int64) {
	if m.pending != nil {
		m.pending.Add(context.Background(), delta)
	}
}

func (m *metrics) started(wait time.Duration) {
	if m.startDelay != nil {
		m.startDelay.Record(context.Background(), wait.Seconds())
	}
}
