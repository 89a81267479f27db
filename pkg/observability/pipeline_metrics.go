package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	metricPostsTotal       = "analysisd.pipeline.posts.total"
	metricActionsTotal     = "analysisd.pipeline.actions.total"
	metricBatchesTotal     = "analysisd.pipeline.batches.total"
	metricBatchSize        = "analysisd.pipeline.batch.size"
	metricBatchDuration    = "analysisd.pipeline.batch.duration.seconds"
	metricThrottleWait     = "analysisd.pipeline.throttle.wait.seconds"
	metricPersistTotal     = "analysisd.pipeline.persist.writes.total"
	metricPersistDuration  = "analysisd.pipeline.persist.duration.seconds"
	metricPersistCoalesced = "analysisd.pipeline.persist.coalesced.total"
	metricPendingActions   = "analysisd.pipeline.pending.actions"

	attrResult  = "result"
	attrType    = "type"
	attrStatus  = "status"
	attrTrigger = "trigger"
)

// Post results.
const (
	PostAccepted  = "accepted"
	PostDuplicate = "duplicate"
	PostRejected  = "rejected"
)

// Action and persistence statuses.
const (
	StatusOK     = "ok"
	StatusFailed = "failed"
	StatusPanic  = "panic"
)

// durationBucketBoundaries covers 1ms to 120s: a batch spans from a cached
// delete to a slow remote fetch followed by analysis.
var durationBucketBoundaries = []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120}

var batchSizeBoundaries = []float64{1, 2, 5, 10, 20, 50, 100}

// PipelineMetrics holds OTel instruments for the action pipeline.
// All Record methods are safe to call on a nil receiver.
type PipelineMetrics struct {
	meter metric.Meter

	posts           metric.Int64Counter
	actions         metric.Int64Counter
	batches         metric.Int64Counter
	batchSize       metric.Float64Histogram
	batchDuration   metric.Float64Histogram
	throttleWait    metric.Float64Histogram
	persistWrites   metric.Int64Counter
	persistDuration metric.Float64Histogram
	coalesced       metric.Int64Counter
	pending         metric.Int64ObservableGauge
}

// NewPipelineMetrics creates pipeline instruments from the given meter.
func NewPipelineMetrics(mt metric.Meter) (*PipelineMetrics, error) {
	b := newMetricBuilder(mt)

	pm := &PipelineMetrics{
		meter:           mt,
		posts:           b.counter(metricPostsTotal, "Actions offered to the pipeline by result", "{action}"),
		actions:         b.counter(metricActionsTotal, "Actions executed by type and status", "{action}"),
		batches:         b.counter(metricBatchesTotal, "Batches processed by trigger", "{batch}"),
		batchSize:       b.histogram(metricBatchSize, "Actions per batch", "{action}", batchSizeBoundaries...),
		batchDuration:   b.histogram(metricBatchDuration, "Batch processing duration in seconds", "s", durationBucketBoundaries...),
		throttleWait:    b.histogram(metricThrottleWait, "Time spent waiting for the load throttle", "s", durationBucketBoundaries...),
		persistWrites:   b.counter(metricPersistTotal, "Pending-action writes by status", "{write}"),
		persistDuration: b.histogram(metricPersistDuration, "Pending-action write duration in seconds", "s", durationBucketBoundaries...),
		coalesced:       b.counter(metricPersistCoalesced, "Persistence requests dropped because a write was already queued", "{request}"),
		pending:         b.gauge(metricPendingActions, "Actions accepted but not yet completed", "{action}"),
	}

	err := b.err()
	if err != nil {
		return nil, err
	}

	return pm, nil
}

// TrackPending reports fn as the pending-actions gauge on every collection.
// The returned function stops reporting.
func (pm *PipelineMetrics) TrackPending(fn func() int64) (func(), error) {
	if pm == nil {
		return func() {}, nil
	}

	reg, err := pm.meter.RegisterCallback(func(_ context.Context, obs metric.Observer) error {
		obs.ObserveInt64(pm.pending, fn())

		return nil
	}, pm.pending)
	if err != nil {
		return nil, fmt.Errorf("register %s callback: %w", metricPendingActions, err)
	}

	return func() {
		// Unregister only fails for foreign registrations.
		_ = reg.Unregister()
	}, nil
}

// RecordPost counts one Post call with its result.
func (pm *PipelineMetrics) RecordPost(ctx context.Context, result string) {
	if pm == nil {
		return
	}

	pm.posts.Add(ctx, 1, metric.WithAttributes(attribute.String(attrResult, result)))
}

// RecordAction counts one executed action.
func (pm *PipelineMetrics) RecordAction(ctx context.Context, actionType, status string) {
	if pm == nil {
		return
	}

	pm.actions.Add(ctx, 1, metric.WithAttributes(
		attribute.String(attrType, actionType),
		attribute.String(attrStatus, status),
	))
}

// RecordBatch records a processed batch.
func (pm *PipelineMetrics) RecordBatch(ctx context.Context, trigger string, size int, duration time.Duration) {
	if pm == nil {
		return
	}

	attrs := metric.WithAttributes(attribute.String(attrTrigger, trigger))

	pm.batches.Add(ctx, 1, attrs)
	pm.batchSize.Record(ctx, float64(size), attrs)
	pm.batchDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordThrottleWait records time spent acquiring the load throttle.
func (pm *PipelineMetrics) RecordThrottleWait(ctx context.Context, wait time.Duration) {
	if pm == nil {
		return
	}

	pm.throttleWait.Record(ctx, wait.Seconds())
}

// RecordPersist records one pending-action write.
func (pm *PipelineMetrics) RecordPersist(ctx context.Context, status string, duration time.Duration) {
	if pm == nil {
		return
	}

	attrs := metric.WithAttributes(attribute.String(attrStatus, status))

	pm.persistWrites.Add(ctx, 1, attrs)
	pm.persistDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordCoalesced counts a dropped persistence request.
func (pm *PipelineMetrics) RecordCoalesced(ctx context.Context) {
	if pm == nil {
		return
	}

	pm.coalesced.Add(ctx, 1)
}
