package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	// FetchMetricsMeterName is the name used for the resource fetch meter
	FetchMetricsMeterName = "github.com/stacklok/view-exporter/fetch"

	// MirrorMetricsMeterName is the name used for the mirror meter
	MirrorMetricsMeterName = "github.com/stacklok/view-exporter/mirror"
)

// FetchMetrics holds the instruments recorded by the change listener
type FetchMetrics struct {
	fetchDuration metric.Float64Histogram
	itemsWritten  metric.Int64Counter
	unknownTotal  metric.Int64Counter
}

// NewFetchMetrics creates a new FetchMetrics instance with the given meter provider.
// If provider is nil, it returns nil (no-op metrics).
func NewFetchMetrics(provider metric.MeterProvider) (*FetchMetrics, error) {
	if provider == nil {
		return nil, nil
	}

	meter := provider.Meter(FetchMetricsMeterName)

	fetchDuration, err := meter.Float64Histogram(
		"view_exporter_fetch_duration_seconds",
		metric.WithDescription("Duration of resource fetches in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10),
	)
	if err != nil {
		return nil, err
	}

	itemsWritten, err := meter.Int64Counter(
		"view_exporter_items_written_total",
		metric.WithDescription("Number of items materialized by resource fetches"),
		metric.WithUnit("{item}"),
	)
	if err != nil {
		return nil, err
	}

	unknownTotal, err := meter.Int64Counter(
		"view_exporter_unknown_resources_total",
		metric.WithDescription("Number of notifications or bootstrap entries naming an unregistered resource"),
		metric.WithUnit("{notification}"),
	)
	if err != nil {
		return nil, err
	}

	return &FetchMetrics{
		fetchDuration: fetchDuration,
		itemsWritten:  itemsWritten,
		unknownTotal:  unknownTotal,
	}, nil
}

// RecordFetch records the outcome of a single resource fetch
func (m *FetchMetrics) RecordFetch(ctx context.Context, name string, items int, duration time.Duration, success bool) {
	if m == nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String("resource", name),
		attribute.Bool("success", success),
	)
	m.fetchDuration.Record(ctx, duration.Seconds(), attrs)
	if success {
		m.itemsWritten.Add(ctx, int64(items), metric.WithAttributes(attribute.String("resource", name)))
	}
}

// RecordUnknown counts a reference to an unregistered resource.
// The name is not used as an attribute because it comes from untrusted payloads.
func (m *FetchMetrics) RecordUnknown(ctx context.Context) {
	if m == nil {
		return
	}
	m.unknownTotal.Add(ctx, 1)
}

// MirrorMetrics holds the instruments recorded by the sync consumer
type MirrorMetrics struct {
	copiesTotal  metric.Int64Counter
	copyDuration metric.Float64Histogram
}

// NewMirrorMetrics creates a new MirrorMetrics instance with the given meter provider.
// If provider is nil, it returns nil (no-op metrics).
func NewMirrorMetrics(provider metric.MeterProvider) (*MirrorMetrics, error) {
	if provider == nil {
		return nil, nil
	}

	meter := provider.Meter(MirrorMetricsMeterName)

	copiesTotal, err := meter.Int64Counter(
		"view_exporter_mirror_copies_total",
		metric.WithDescription("Number of artifact copies attempted"),
		metric.WithUnit("{file}"),
	)
	if err != nil {
		return nil, err
	}

	copyDuration, err := meter.Float64Histogram(
		"view_exporter_mirror_copy_duration_seconds",
		metric.WithDescription("Duration of artifact copies in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	return &MirrorMetrics{
		copiesTotal:  copiesTotal,
		copyDuration: copyDuration,
	}, nil
}

// RecordCopy records a single artifact copy
func (m *MirrorMetrics) RecordCopy(ctx context.Context, duration time.Duration, success bool) {
	if m == nil {
		return
	}

	attrs := metric.WithAttributes(attribute.Bool("success", success))
	m.copiesTotal.Add(ctx, 1, attrs)
	m.copyDuration.Record(ctx, duration.Seconds(), attrs)
}
