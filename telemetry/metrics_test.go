package telemetry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// setupTestMetrics installs the real instruments backed by a ManualReader.
func setupTestMetrics(t *testing.T) *sdkmetric.ManualReader {
	t.Helper()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	m, err := newMetrics(mp)
	require.NoError(t, err)
	globalMetrics = m

	t.Cleanup(func() {
		_ = mp.Shutdown(context.Background())
		globalMetrics = nil
	})

	return reader
}

// collectMetrics reads all metrics from the ManualReader.
func collectMetrics(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	return rm
}

// findCounter finds a counter metric by name and returns its data points.
func findCounter(rm metricdata.ResourceMetrics, name string) []metricdata.DataPoint[int64] {
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name == name {
				if sum, ok := m.Data.(metricdata.Sum[int64]); ok {
					return sum.DataPoints
				}
			}
		}
	}
	return nil
}

// findHistogram finds a histogram metric by name and returns its data points.
func findHistogram(rm metricdata.ResourceMetrics, name string) []metricdata.HistogramDataPoint[float64] {
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name == name {
				if hist, ok := m.Data.(metricdata.Histogram[float64]); ok {
					return hist.DataPoints
				}
			}
		}
	}
	return nil
}

// hasAttr checks if a data point's attribute set contains the given key-value pair.
func hasAttr(attrs attribute.Set, key, value string) bool {
	v, ok := attrs.Value(attribute.Key(key))
	return ok && v.AsString() == value
}

func TestRecordHTTP(t *testing.T) {
	reader := setupTestMetrics(t)

	r := httptest.NewRequest(http.MethodPost, "/v1/transactions", nil)
	r = InjectTags(r)
	SetEndpoint(r, "transactions")

	RecordHTTP(context.Background(), r, http.StatusOK, 128, 5*time.Millisecond)

	rm := collectMetrics(t, reader)

	dps := findCounter(rm, "name_registry_http_requests_total")
	require.Len(t, dps, 1)
	require.EqualValues(t, 1, dps[0].Value)
	require.True(t, hasAttr(dps[0].Attributes, "endpoint", "transactions"))
	require.True(t, hasAttr(dps[0].Attributes, "status_class", "2xx"))

	bytesDps := findCounter(rm, "name_registry_http_response_bytes_total")
	require.Len(t, bytesDps, 1)
	require.EqualValues(t, 128, bytesDps[0].Value)

	histDps := findHistogram(rm, "name_registry_http_request_duration_seconds")
	require.Len(t, histDps, 1)
	require.Equal(t, uint64(1), histDps[0].Count)
}

func TestRecordHTTP_DefaultsWhenNoTags(t *testing.T) {
	reader := setupTestMetrics(t)

	// Request without InjectTags simulates a request that bypasses middleware
	r := httptest.NewRequest(http.MethodGet, "/unknown", nil)

	RecordHTTP(context.Background(), r, http.StatusNotFound, 0, 1*time.Millisecond)

	rm := collectMetrics(t, reader)

	dps := findCounter(rm, "name_registry_http_requests_total")
	require.Len(t, dps, 1)
	require.True(t, hasAttr(dps[0].Attributes, "endpoint", "unknown"))
	require.True(t, hasAttr(dps[0].Attributes, "status_class", "4xx"))
}

func TestRecordHTTP_NilGlobalMetrics(t *testing.T) {
	globalMetrics = nil

	r := httptest.NewRequest(http.MethodGet, "/test", nil)
	r = InjectTags(r)

	// Should not panic
	RecordHTTP(context.Background(), r, http.StatusOK, 0, 1*time.Millisecond)
}

func TestRecordInstruction(t *testing.T) {
	reader := setupTestMetrics(t)

	ctx := context.Background()
	RecordInstruction(ctx, "create", "ok", time.Millisecond)
	RecordInstruction(ctx, "create", "ok", time.Millisecond)
	RecordInstruction(ctx, "update", "out_of_space", time.Millisecond)

	rm := collectMetrics(t, reader)

	dps := findCounter(rm, "name_registry_instructions_total")
	require.Len(t, dps, 2)
	for _, dp := range dps {
		switch {
		case hasAttr(dp.Attributes, "op", "create"):
			require.True(t, hasAttr(dp.Attributes, "outcome", "ok"))
			require.EqualValues(t, 2, dp.Value)
		case hasAttr(dp.Attributes, "op", "update"):
			require.True(t, hasAttr(dp.Attributes, "outcome", "out_of_space"))
			require.EqualValues(t, 1, dp.Value)
		default:
			t.Fatalf("unexpected data point %v", dp.Attributes)
		}
	}

	histDps := findHistogram(rm, "name_registry_instruction_duration_seconds")
	require.Len(t, histDps, 2)
}

func TestRecordSignatureFailure(t *testing.T) {
	reader := setupTestMetrics(t)

	RecordSignatureFailure(context.Background())

	dps := findCounter(collectMetrics(t, reader), "name_registry_signature_failures_total")
	require.Len(t, dps, 1)
	require.EqualValues(t, 1, dps[0].Value)
}

func TestRecordInstruction_NilGlobalMetrics(t *testing.T) {
	globalMetrics = nil
	RecordInstruction(context.Background(), "delete", "ok", time.Millisecond)
	RecordSignatureFailure(context.Background())
}

func TestPrometheusHandler_NotFoundWhenDisabled(t *testing.T) {
	globalMetrics = nil

	rec := httptest.NewRecorder()
	PrometheusHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStatusClass(t *testing.T) {
	tests := []struct {
		status int
		want   string
	}{
		{200, "2xx"},
		{201, "2xx"},
		{299, "2xx"},
		{301, "3xx"},
		{304, "3xx"},
		{400, "4xx"},
		{404, "4xx"},
		{500, "5xx"},
		{503, "5xx"},
		{100, "unknown"},
		{0, "unknown"},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, StatusClass(tt.status), "StatusClass(%d)", tt.status)
	}
}
