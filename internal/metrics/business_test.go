package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// assertMetricLine checks that the Prometheus output contains a metric
// matching the given name, partial label pattern, and value.
func assertMetricLine(t *testing.T, output, name, labels, value string) {
	t.Helper()
	pattern := name + `\{[^}]*` + labels + `[^}]*\} ` + value
	assert.Regexp(t, pattern, output)
}

func TestNewDPAPIMetrics(t *testing.T) {
	t.Run("Success_CreateDPAPIMetrics", func(t *testing.T) {
		provider, err := NewProvider("test_app")
		require.NoError(t, err)

		dm, err := NewDPAPIMetrics(provider.Registry(), "test_app")

		require.NoError(t, err)
		assert.NotNil(t, dm)
	})
}

func TestDPAPIMetrics_RecordCacheLookup(t *testing.T) {
	provider, err := NewProvider("test_app")
	require.NoError(t, err)

	dm, err := NewDPAPIMetrics(provider.Registry(), "test_app")
	require.NoError(t, err)

	t.Run("Success_RecordHit", func(t *testing.T) {
		dm.RecordCacheLookup("l2", "hit")
	})

	t.Run("Success_RecordMiss", func(t *testing.T) {
		dm.RecordCacheLookup("l2", "miss")
	})
}

func TestDPAPIMetrics_RecordRPC(t *testing.T) {
	provider, err := NewProvider("test_app")
	require.NoError(t, err)

	dm, err := NewDPAPIMetrics(provider.Registry(), "test_app")
	require.NoError(t, err)

	dm.RecordRPC("success", 12*time.Millisecond)
	dm.RecordRPC("error", 34*time.Millisecond)
}

func TestNewNoOpDPAPIMetrics(t *testing.T) {
	noOp := NewNoOpDPAPIMetrics()

	assert.NotNil(t, noOp)
	assert.IsType(t, NoOpDPAPIMetrics{}, noOp)

	t.Run("NoOp_DoesNotPanic", func(t *testing.T) {
		noOp.RecordCacheLookup("l1", "hit")
		noOp.RecordRPC("success", 10*time.Millisecond)
		noOp.RecordCryptoOutcome("unprotect", "success")
	})
}

func TestDPAPIMetrics_Integration(t *testing.T) {
	provider, err := NewProvider("integration_test")
	require.NoError(t, err)

	dm, err := NewDPAPIMetrics(provider.Registry(), "integration_test")
	require.NoError(t, err)

	dm.RecordCacheLookup("l2", "hit")
	dm.RecordCacheLookup("l2", "hit")
	dm.RecordCacheLookup("l2", "miss")
	dm.RecordCryptoOutcome("unprotect", "success")
	dm.RecordCryptoOutcome("unprotect", "error")

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	provider.Handler().ServeHTTP(w, req)

	output := w.Body.String()

	assertMetricLine(t, output, `integration_test_cache_lookups_total`, `level="l2".*outcome="hit"`, `2`)
	assertMetricLine(t, output, `integration_test_cache_lookups_total`, `level="l2".*outcome="miss"`, `1`)
	assertMetricLine(t, output, `integration_test_crypto_operations_total`, `operation="unprotect".*status="success"`, `1`)
}
