package metrics_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kiranshivaraju/labelscan/internal/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegister_Idempotent(t *testing.T) {
	assert.NotPanics(t, func() {
		metrics.Register()
		metrics.Register()
	})
}

func TestHandler_ExposesCollectors(t *testing.T) {
	metrics.Register()
	metrics.AlternativesFailedTotal.Inc()
	metrics.AnalysisDegradedTotal.WithLabelValues("batch").Inc()
	metrics.ScansTotal.WithLabelValues("ok").Inc()

	srv := httptest.NewServer(metrics.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "labelscan_alternatives_failed_total")
	assert.Contains(t, string(body), `labelscan_analysis_degraded_total{mode="batch"}`)
	assert.Contains(t, string(body), `labelscan_scans_total{outcome="ok"}`)
}
