package observability_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/Sumatoshi-tech/analysisd/pkg/observability"
)

func setupPipelineMeter(t *testing.T) (*observability.PipelineMetrics, *sdkmetric.ManualReader) {
	t.Helper()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	pm, err := observability.NewPipelineMetrics(mp.Meter("test"))
	require.NoError(t, err)

	return pm, reader
}

func collectMetrics(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()

	var rm metricdata.ResourceMetrics

	require.NoError(t, reader.Collect(context.Background(), &rm))

	return rm
}

func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for idx := range rm.ScopeMetrics {
		for midx := range rm.ScopeMetrics[idx].Metrics {
			if rm.ScopeMetrics[idx].Metrics[midx].Name == name {
				return &rm.ScopeMetrics[idx].Metrics[midx]
			}
		}
	}

	return nil
}

func sumByAttr(t *testing.T, m *metricdata.Metrics, key, value string) int64 {
	t.Helper()

	require.NotNil(t, m)

	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok, "expected Sum[int64] for %s", m.Name)

	var total int64

	for _, dp := range sum.DataPoints {
		if v, found := dp.Attributes.Value(attribute.Key(key)); found && v.AsString() == value {
			total += dp.Value
		}
	}

	return total
}

func TestPipelineMetrics_Counters(t *testing.T) {
	t.Parallel()

	pm, reader := setupPipelineMeter(t)
	ctx := context.Background()

	pm.RecordPost(ctx, observability.PostAccepted)
	pm.RecordPost(ctx, observability.PostAccepted)
	pm.RecordPost(ctx, observability.PostDuplicate)
	pm.RecordAction(ctx, "analyze", observability.StatusOK)
	pm.RecordAction(ctx, "delete", observability.StatusFailed)
	pm.RecordPersist(ctx, observability.StatusOK, time.Millisecond)
	pm.RecordCoalesced(ctx)
	pm.RecordCoalesced(ctx)

	rm := collectMetrics(t, reader)

	posts := findMetric(rm, "analysisd.pipeline.posts.total")
	assert.Equal(t, int64(2), sumByAttr(t, posts, "result", observability.PostAccepted))
	assert.Equal(t, int64(1), sumByAttr(t, posts, "result", observability.PostDuplicate))

	actions := findMetric(rm, "analysisd.pipeline.actions.total")
	assert.Equal(t, int64(1), sumByAttr(t, actions, "status", observability.StatusFailed))

	writes := findMetric(rm, "analysisd.pipeline.persist.writes.total")
	assert.Equal(t, int64(1), sumByAttr(t, writes, "status", observability.StatusOK))

	coalesced := findMetric(rm, "analysisd.pipeline.persist.coalesced.total")
	require.NotNil(t, coalesced)

	sum, ok := coalesced.Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, sum.DataPoints, 1)
	assert.Equal(t, int64(2), sum.DataPoints[0].Value)
}

func TestPipelineMetrics_RecordBatch(t *testing.T) {
	t.Parallel()

	pm, reader := setupPipelineMeter(t)
	ctx := context.Background()

	pm.RecordBatch(ctx, "size", 20, 150*time.Millisecond)
	pm.RecordBatch(ctx, "timeout", 3, 20*time.Millisecond)
	pm.RecordThrottleWait(ctx, 5*time.Millisecond)

	rm := collectMetrics(t, reader)

	batches := findMetric(rm, "analysisd.pipeline.batches.total")
	assert.Equal(t, int64(1), sumByAttr(t, batches, "trigger", "size"))
	assert.Equal(t, int64(1), sumByAttr(t, batches, "trigger", "timeout"))

	size := findMetric(rm, "analysisd.pipeline.batch.size")
	require.NotNil(t, size)

	hist, ok := size.Data.(metricdata.Histogram[float64])
	require.True(t, ok)

	var total float64
	for _, dp := range hist.DataPoints {
		total += dp.Sum
	}

	assert.InDelta(t, 23.0, total, 0.001)
	assert.NotNil(t, findMetric(rm, "analysisd.pipeline.throttle.wait.seconds"))
}

func TestPipelineMetrics_TrackPending(t *testing.T) {
	t.Parallel()

	pm, reader := setupPipelineMeter(t)

	var pending int64 = 7

	stop, err := pm.TrackPending(func() int64 { return pending })
	require.NoError(t, err)

	rm := collectMetrics(t, reader)

	gauge := findMetric(rm, "analysisd.pipeline.pending.actions")
	require.NotNil(t, gauge)

	data, ok := gauge.Data.(metricdata.Gauge[int64])
	require.True(t, ok)
	require.Len(t, data.DataPoints, 1)
	assert.Equal(t, int64(7), data.DataPoints[0].Value)

	stop()

	rm = collectMetrics(t, reader)
	if after := findMetric(rm, "analysisd.pipeline.pending.actions"); after != nil {
		data, ok = after.Data.(metricdata.Gauge[int64])
		require.True(t, ok)
		assert.Empty(t, data.DataPoints)
	}
}

func TestPipelineMetrics_NilReceiver(t *testing.T) {
	t.Parallel()

	var pm *observability.PipelineMetrics

	ctx := context.Background()

	pm.RecordPost(ctx, observability.PostRejected)
	pm.RecordAction(ctx, "analyze", observability.StatusPanic)
	pm.RecordBatch(ctx, "drain", 1, time.Second)
	pm.RecordThrottleWait(ctx, time.Second)
	pm.RecordPersist(ctx, observability.StatusFailed, time.Second)
	pm.RecordCoalesced(ctx)

	stop, err := pm.TrackPending(func() int64 { return 1 })
	require.NoError(t, err)
	stop()
}
