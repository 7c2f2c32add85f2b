package otel

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

func newRecorder(t *testing.T) (*tracetest.SpanRecorder, trace.Tracer) {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	return recorder, tp.Tracer("view-exporter-test")
}

func attrMap(span sdktrace.ReadOnlySpan) map[attribute.Key]attribute.Value {
	out := make(map[attribute.Key]attribute.Value)
	for _, kv := range span.Attributes() {
		out[kv.Key] = kv.Value
	}
	return out
}

func TestStartSpan_WithoutTracerKeepsParent(t *testing.T) {
	t.Parallel()

	recorder, tracer := newRecorder(t)
	parentCtx, parent := tracer.Start(context.Background(), "mirror.batch")

	ctx, span := StartSpan(parentCtx, nil, "listener.fetch")
	assert.Equal(t, parentCtx, ctx)
	assert.Equal(t, parent.SpanContext(), span.SpanContext())
	parent.End()

	require.Len(t, recorder.Ended(), 1)
	assert.Equal(t, "mirror.batch", recorder.Ended()[0].Name())
}

func TestStartSpan_FetchAttributes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		phase string
		items int
	}{
		{name: "incident", phase: "bootstrap", items: 3},
		{name: "font", phase: "notify", items: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name+"/"+tt.phase, func(t *testing.T) {
			t.Parallel()

			recorder, tracer := newRecorder(t)
			ctx, span := StartSpan(context.Background(), tracer, "listener.fetch",
				trace.WithAttributes(
					AttrResourceName.String(tt.name),
					AttrFetchPhase.String(tt.phase),
				),
			)
			assert.True(t, trace.SpanFromContext(ctx).SpanContext().IsValid())
			span.SetAttributes(AttrItemCount.Int(tt.items))
			span.End()

			ended := recorder.Ended()
			require.Len(t, ended, 1)
			assert.Equal(t, "listener.fetch", ended[0].Name())

			attrs := attrMap(ended[0])
			assert.Equal(t, tt.name, attrs[AttrResourceName].AsString())
			assert.Equal(t, tt.phase, attrs[AttrFetchPhase].AsString())
			assert.Equal(t, int64(tt.items), attrs[AttrItemCount].AsInt64())
			assert.Equal(t, codes.Unset, ended[0].Status().Code)
		})
	}
}

func TestRecordError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		err        error
		wantStatus codes.Code
		wantEvents int
	}{
		{name: "fetch failure", err: errors.New(`relation "incident_view" does not exist`), wantStatus: codes.Error, wantEvents: 1},
		{name: "no error", err: nil, wantStatus: codes.Unset, wantEvents: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			recorder, tracer := newRecorder(t)
			_, span := StartSpan(context.Background(), tracer, "mirror.batch",
				trace.WithAttributes(AttrBatchSize.Int(2)),
			)
			RecordError(span, tt.err)
			span.End()

			ended := recorder.Ended()
			require.Len(t, ended, 1)
			assert.Equal(t, tt.wantStatus, ended[0].Status().Code)
			assert.Len(t, ended[0].Events(), tt.wantEvents)
			if tt.err != nil {
				// The query text stays out of the status description
				assert.Equal(t, "operation failed", ended[0].Status().Description)
			}
		})
	}

	assert.NotPanics(t, func() { RecordError(nil, errors.New("copy failed")) })
}
