package infrastructure

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"

	"eyeparse/internal/config"
	"eyeparse/internal/shared/testutil"
)

func TestOTelInitialization(t *testing.T) {
	logger, _ := testutil.NewTestLogger(t)

	providers, err := InitializeOTel(config.OTelConfig{
		Enabled:        true,
		ServiceName:    "eyeparse-test",
		MetricsEnabled: true,
	}, logger)
	require.NoError(t, err)
	defer providers.Shutdown(context.Background())

	require.NotNil(t, providers.TracerProvider)
	require.NotNil(t, providers.Metrics)
	require.NotNil(t, providers.PrometheusHTTP)

	ctx, span := providers.Tracer.Start(context.Background(), "parse-file")
	assert.NotEmpty(t, TraceIDFromContext(ctx))
	SetSpanAttributes(ctx, map[string]interface{}{"file": "a.asc", "trials": 3})
	RecordError(ctx, errors.New("boom"))
	span.End()

	providers.Metrics.RecordFile(ctx, "a.asc", 3, 25*time.Millisecond, "")
	providers.Metrics.RecordFile(ctx, "b.asc", 0, time.Millisecond, "INCOMPLETE_TRIAL")
	providers.Metrics.RecordCache(ctx, true)
	providers.Metrics.RecordCache(ctx, false)

	w := httptest.NewRecorder()
	providers.PrometheusHTTP.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, "files_parsed_total")
	assert.Contains(t, body, "trials_total")
	assert.Contains(t, body, "parse_errors_total")
	assert.Contains(t, body, "cache_hits_total")
	assert.Contains(t, body, "file_parse_duration_seconds")
}

func TestOTelDisabled(t *testing.T) {
	logger, _ := testutil.NewTestLogger(t)

	providers, err := InitializeOTel(config.OTelConfig{ServiceName: "eyeparse-test"}, logger)
	require.NoError(t, err)

	assert.Nil(t, providers.TracerProvider)
	assert.Nil(t, providers.Metrics)
	assert.NotNil(t, providers.Tracer)
	assert.NoError(t, providers.Shutdown(context.Background()))
}

func TestNilPipelineMetricsAreNoop(t *testing.T) {
	var m *PipelineMetrics
	assert.NotPanics(t, func() {
		m.RecordFile(context.Background(), "a.asc", 1, time.Second, "")
		m.RecordTrialError(context.Background(), "PROCESSING")
		m.RecordCache(context.Background(), true)
	})
}

func TestNewPipelineMetricsOnNoopMeter(t *testing.T) {
	m, err := NewPipelineMetrics(noop.NewMeterProvider().Meter("test"))
	require.NoError(t, err)
	assert.NotPanics(t, func() {
		m.RecordFile(context.Background(), "a.asc", 2, time.Second, "MALFORMED_LOG")
	})
}
