package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder_Observations(t *testing.T) {
	r, err := New()
	require.NoError(t, err)

	r.ObserveAttempt("imagen", "image", "failure", "AuthError", time.Second)
	r.ObserveAttempt("pollinations", "image", "success", "", 2*time.Second)
	r.ObserveFallback("imagen", "image", "AuthError")
	r.ObserveDelivery("pollinations", "image", "raw-link")
	r.RecordHTTPRequest(http.MethodPost, "/generations:sync", http.StatusOK, 3*time.Second)

	assert.InDelta(t, 1, testutil.ToFloat64(r.attempts.WithLabelValues("imagen", "image", "failure", "AuthError")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(r.fallbacks.WithLabelValues("imagen", "image", "AuthError")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(r.deliveries.WithLabelValues("pollinations", "image", "raw-link")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(r.httpRequests.WithLabelValues("POST", "/generations:sync", "200")), 0)
	assert.Equal(t, 2, testutil.CollectAndCount(r.attemptDuration))
}

func TestRecorder_Handler(t *testing.T) {
	r, err := New()
	require.NoError(t, err)
	r.ObserveDelivery("veo", "video", "uploaded")

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body, _ := io.ReadAll(rec.Body)
	assert.Contains(t, string(body), `mediagen_deliveries_total{kind="video",method="uploaded",provider="veo"} 1`)
	assert.Contains(t, string(body), "go_goroutines")
}

func TestNew_IndependentRegistries(t *testing.T) {
	_, err := New()
	require.NoError(t, err)
	_, err = New()
	require.NoError(t, err, "each recorder owns its registry")
}
