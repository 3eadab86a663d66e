package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder(t *testing.T) {
	before := testutil.ToFloat64(verificationsTotal.WithLabelValues("tiktok", "verified"))
	Recorder{}.RecordVerification("tiktok", "verified")
	assert.Equal(t, before+1, testutil.ToFloat64(verificationsTotal.WithLabelValues("tiktok", "verified")))

	before = testutil.ToFloat64(fetchFailuresTotal.WithLabelValues("youtube", "api"))
	Recorder{}.RecordFetchFailure("youtube", "api")
	assert.Equal(t, before+1, testutil.ToFloat64(fetchFailuresTotal.WithLabelValues("youtube", "api")))
}

func TestRecordBatch(t *testing.T) {
	before := testutil.ToFloat64(batchRunsTotal.WithLabelValues("empty"))
	RecordBatch("empty", 20*time.Millisecond)
	assert.Equal(t, before+1, testutil.ToFloat64(batchRunsTotal.WithLabelValues("empty")))
}

func TestPrometheusMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(PrometheusMiddleware())
	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })
	r.GET("/metrics", GinHandler())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.GreaterOrEqual(t, testutil.ToFloat64(requestsTotal.WithLabelValues("GET", "/ping", "200")), 1.0)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "bioverify_requests_total")
}
