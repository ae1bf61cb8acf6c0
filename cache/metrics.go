package cache

import (
	"context"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// Metrics tracks cache behavior counters.
type Metrics struct {
	Hits          atomic.Int64
	Misses        atomic.Int64
	Dedups        atomic.Int64 // fetches answered by an in-flight request
	Invalidations atomic.Int64
	Cancellations atomic.Int64
	Rollbacks     atomic.Int64
	Errors        atomic.Int64

	// OpenTelemetry instruments, recorded alongside the atomic counters
	otelHitCounter          metric.Int64Counter
	otelMissCounter         metric.Int64Counter
	otelDedupCounter        metric.Int64Counter
	otelInvalidationCounter metric.Int64Counter
	otelCancellationCounter metric.Int64Counter
	otelRollbackCounter     metric.Int64Counter
	otelErrorCounter        metric.Int64Counter
}

func newMetrics() *Metrics {
	m := &Metrics{}

	meter := otel.Meter("paperdesk.dev/cache")

	m.otelHitCounter, _ = meter.Int64Counter("paperdesk.cache.hits",
		metric.WithDescription("Number of cache hits"))
	m.otelMissCounter, _ = meter.Int64Counter("paperdesk.cache.misses",
		metric.WithDescription("Number of cache misses"))
	m.otelDedupCounter, _ = meter.Int64Counter("paperdesk.cache.dedups",
		metric.WithDescription("Number of reads answered by an in-flight fetch"))
	m.otelInvalidationCounter, _ = meter.Int64Counter("paperdesk.cache.invalidations",
		metric.WithDescription("Number of cache invalidations"))
	m.otelCancellationCounter, _ = meter.Int64Counter("paperdesk.cache.cancellations",
		metric.WithDescription("Number of cancelled in-flight fetches"))
	m.otelRollbackCounter, _ = meter.Int64Counter("paperdesk.cache.rollbacks",
		metric.WithDescription("Number of optimistic-patch rollbacks"))
	m.otelErrorCounter, _ = meter.Int64Counter("paperdesk.cache.errors",
		metric.WithDescription("Number of fetch errors"))

	return m
}

func (m *Metrics) recordHit(ctx context.Context) {
	m.Hits.Add(1)
	if m.otelHitCounter != nil {
		m.otelHitCounter.Add(ctx, 1)
	}
}

func (m *Metrics) recordMiss(ctx context.Context) {
	m.Misses.Add(1)
	if m.otelMissCounter != nil {
		m.otelMissCounter.Add(ctx, 1)
	}
}

func (m *Metrics) recordDedup(ctx context.Context) {
	m.Dedups.Add(1)
	if m.otelDedupCounter != nil {
		m.otelDedupCounter.Add(ctx, 1)
	}
}

func (m *Metrics) recordInvalidation(ctx context.Context, count int64) {
	m.Invalidations.Add(count)
	if m.otelInvalidationCounter != nil {
		m.otelInvalidationCounter.Add(ctx, count)
	}
}

func (m *Metrics) recordCancellation(ctx context.Context, count int64) {
	m.Cancellations.Add(count)
	if m.otelCancellationCounter != nil {
		m.otelCancellationCounter.Add(ctx, count)
	}
}

func (m *Metrics) recordRollback(ctx context.Context) {
	m.Rollbacks.Add(1)
	if m.otelRollbackCounter != nil {
		m.otelRollbackCounter.Add(ctx, 1)
	}
}

func (m *Metrics) recordError(ctx context.Context) {
	m.Errors.Add(1)
	if m.otelErrorCounter != nil {
		m.otelErrorCounter.Add(ctx, 1)
	}
}

// Snapshot returns a point-in-time snapshot of metrics
func (m *Metrics) Snapshot() map[string]int64 {
	return map[string]int64{
		"hits":          m.Hits.Load(),
		"misses":        m.Misses.Load(),
		"dedups":        m.Dedups.Load(),
		"invalidations": m.Invalidations.Load(),
		"cancellations": m.Cancellations.Load(),
		"rollbacks":     m.Rollbacks.Load(),
		"errors":        m.Errors.Load(),
	}
}
