package observability

import (
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/metric"
)

// metricBuilder creates instruments on one meter and collects every creation
// failure, so a constructor checks a single error at the end.
type metricBuilder struct {
	meter metric.Meter
	errs  []error
}

func newMetricBuilder(mt metric.Meter) *metricBuilder {
	return &metricBuilder{meter: mt}
}

func (b *metricBuilder) counter(name, desc, unit string) metric.Int64Counter {
	inst, err := b.meter.Int64Counter(name, metric.WithDescription(desc), metric.WithUnit(unit))
	b.track(name, err)

	return inst
}

// histogram uses explicit bucket boundaries when bounds is non-empty.
func (b *metricBuilder) histogram(name, desc, unit string, bounds ...float64) metric.Float64Histogram {
	opts := []metric.Float64HistogramOption{metric.WithDescription(desc), metric.WithUnit(unit)}
	if len(bounds) > 0 {
		opts = append(opts, metric.WithExplicitBucketBoundaries(bounds...))
	}

	inst, err := b.meter.Float64Histogram(name, opts...)
	b.track(name, err)

	return inst
}

// gauge creates an observable gauge; values come from a registered callback.
func (b *metricBuilder) gauge(name, desc, unit string) metric.Int64ObservableGauge {
	inst, err := b.meter.Int64ObservableGauge(name, metric.WithDescription(desc), metric.WithUnit(unit))
	b.track(name, err)

	return inst
}

func (b *metricBuilder) track(name string, err error) {
	if err != nil {
		b.errs = append(b.errs, fmt.Errorf("create %s: %w", name, err))
	}
}

// err joins all creation failures, or returns nil.
func (b *metricBuilder) err() error {
	return errors.Join(b.errs...)
}
