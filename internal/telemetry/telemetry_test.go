package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

func TestNew(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name             string
		config           *Config
		expectNoOpTracer bool
		expectNoOpMeter  bool
		errorContains    string
	}{
		{
			name:             "no-op telemetry when no config provided",
			expectNoOpTracer: true,
			expectNoOpMeter:  true,
		},
		{
			name:             "no-op telemetry when disabled",
			config:           &Config{Enabled: false, Metrics: &MetricsConfig{Enabled: true}},
			expectNoOpTracer: true,
			expectNoOpMeter:  true,
		},
		{
			name: "no-op providers when both signals disabled",
			config: &Config{
				Enabled: true,
				Tracing: &TracingConfig{Enabled: false},
				Metrics: &MetricsConfig{Enabled: false},
			},
			expectNoOpTracer: true,
			expectNoOpMeter:  true,
		},
		{
			name: "SDK providers when both signals enabled",
			config: &Config{
				Enabled:  true,
				Insecure: true,
				Tracing:  &TracingConfig{Enabled: true, Sampling: 1.0},
				Metrics:  &MetricsConfig{Enabled: true},
			},
		},
		{
			name: "error for invalid sampling",
			config: &Config{
				Enabled: true,
				Tracing: &TracingConfig{Enabled: true, Sampling: 1.5},
			},
			errorContains: "invalid telemetry configuration",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()

			tel, err := New(ctx, tt.config)
			if tt.errorContains != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errorContains)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, tel)

			_, noopTracer := tel.TracerProvider().(tracenoop.TracerProvider)
			assert.Equal(t, tt.expectNoOpTracer, noopTracer)
			if !tt.expectNoOpTracer {
				_, ok := tel.TracerProvider().(*sdktrace.TracerProvider)
				assert.True(t, ok, "expected SDK tracer provider")
			}

			_, noopMeter := tel.MeterProvider().(noop.MeterProvider)
			assert.Equal(t, tt.expectNoOpMeter, noopMeter)
			if !tt.expectNoOpMeter {
				_, ok := tel.MeterProvider().(*sdkmetric.MeterProvider)
				assert.True(t, ok, "expected SDK meter provider")
			}

			assert.NotNil(t, tel.Tracer("test"))

			// Shutdown errors are expected without a collector; only check it returns
			_ = tel.Shutdown(ctx)
		})
	}
}

func TestConfigDefaults(t *testing.T) {
	t.Parallel()

	cfg := &Config{}
	assert.Equal(t, DefaultServiceName, cfg.GetServiceName())
	assert.Equal(t, "unknown", cfg.GetServiceVersion())
	assert.Equal(t, DefaultEndpoint, cfg.GetEndpoint())
	assert.Equal(t, DefaultSampling, (&TracingConfig{}).GetSampling())
	assert.Equal(t, 0.5, (&TracingConfig{Sampling: 0.5}).GetSampling())

	cfg = &Config{ServiceName: "svc", ServiceVersion: "1.2.3", Endpoint: "otel:4318"}
	assert.Equal(t, "svc", cfg.GetServiceName())
	assert.Equal(t, "1.2.3", cfg.GetServiceVersion())
	assert.Equal(t, "otel:4318", cfg.GetEndpoint())
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	var nilCfg *Config
	assert.NoError(t, nilCfg.Validate())
	assert.NoError(t, (&Config{Enabled: false, Tracing: &TracingConfig{Enabled: true, Sampling: 3}}).Validate())
	assert.NoError(t, (&Config{Enabled: true, Tracing: &TracingConfig{Enabled: true, Sampling: 0.2}}).Validate())
	assert.Error(t, (&Config{Enabled: true, Tracing: &TracingConfig{Enabled: true, Sampling: -0.1}}).Validate())
}
