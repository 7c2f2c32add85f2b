package mirror

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/stacklok/view-exporter/internal/otel"
	"github.com/stacklok/view-exporter/internal/telemetry"
)

// Source is the consuming side of the dispatch queue
type Source interface {
	// Next blocks for the next path; ok is false at end of stream
	Next(ctx context.Context) (path string, ok bool, err error)

	// Drain returns everything currently queued without blocking
	Drain() []string
}

// Consumer copies queued artifacts with a Transport
type Consumer struct {
	transport Transport
	metrics   *telemetry.MirrorMetrics
	tracer    trace.Tracer
}

// Option is a function that configures the consumer
type Option func(*Consumer)

// WithMirrorMetrics sets the metrics recorded for each copy
func WithMirrorMetrics(metrics *telemetry.MirrorMetrics) Option {
	return func(c *Consumer) {
		c.metrics = metrics
	}
}

// WithTracer sets the tracer used for batch spans
func WithTracer(tracer trace.Tracer) Option {
	return func(c *Consumer) {
		c.tracer = tracer
	}
}

// NewConsumer creates a consumer copying with transport
func NewConsumer(transport Transport, opts ...Option) *Consumer {
	c := &Consumer{transport: transport}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run copies artifacts from src until it reports end of stream, which returns
// nil, or ctx is done. The transport is closed on return.
func (c *Consumer) Run(ctx context.Context, src Source) error {
	defer func() {
		if err := c.transport.Close(); err != nil {
			slog.Warn("Failed to close mirror transport", "error", err)
		}
	}()

	for {
		path, ok, err := src.Next(ctx)
		if err != nil {
			return err
		}
		if !ok {
			slog.Info("Dispatch queue closed, mirror stopping")
			return nil
		}

		batch := dedupe(append([]string{path}, src.Drain()...))
		c.copyBatch(ctx, batch)
	}
}

// copyBatch copies every path in batch, continuing past failures
func (c *Consumer) copyBatch(ctx context.Context, batch []string) {
	ctx, span := otel.StartSpan(ctx, c.tracer, "mirror.batch",
		trace.WithAttributes(otel.AttrBatchSize.Int(len(batch))),
	)
	defer span.End()

	failed := 0
	for _, path := range batch {
		start := time.Now()
		err := c.transport.Copy(ctx, path)
		c.metrics.RecordCopy(ctx, time.Since(start), err == nil)
		if err == nil {
			continue
		}

		failed++
		otel.RecordError(span, err)
		slog.Error("Failed to mirror artifact", "path", path, "error", err)

		// Drop the connection so the next copy starts fresh
		if closeErr := c.transport.Close(); closeErr != nil {
			slog.Debug("Failed to reset mirror transport", "error", closeErr)
		}
	}

	if failed > 0 {
		slog.Warn("Mirror batch incomplete", "paths", len(batch), "failed", failed)
		return
	}
	slog.Debug("Mirrored batch", "paths", len(batch))
}

// dedupe removes repeated paths, keeping the first occurrence
func dedupe(paths []string) []string {
	seen := make(map[string]struct{}, len(paths))
	out := paths[:0]
	for _, path := range paths {
		if _, ok := seen[path]; ok {
			continue
		}
		seen[path] = struct{}{}
		out = append(out, path)
	}
	return out
}
