package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorRecordsTasks(t *testing.T) {
	c := NewCollector("test")

	c.TaskStarted()
	c.TaskStarted()
	assert.Equal(t, float64(2), testutil.ToFloat64(c.activeTasks))

	c.TaskFinished("search_tweets", "completed", 2*time.Second)
	c.TaskFinished("search_tweets", "failed", time.Second)

	assert.Equal(t, float64(0), testutil.ToFloat64(c.activeTasks))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.tasksTotal.WithLabelValues("search_tweets", "completed")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.tasksTotal.WithLabelValues("search_tweets", "failed")))
	assert.Equal(t, 1, testutil.CollectAndCount(c.taskDuration))
}

func TestCollectorRecordsRetriesAndFallbacks(t *testing.T) {
	c := NewCollector("test")

	c.RetryObserved()
	c.RetryObserved()
	c.FallbackObserved("search_tweets")

	assert.Equal(t, float64(2), testutil.ToFloat64(c.retriesTotal))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.fallbacksTotal.WithLabelValues("search_tweets")))
}

func TestCollectorTracksActiveSchedules(t *testing.T) {
	c := NewCollector("test")

	c.SetSchedulesActive(3)
	assert.Equal(t, float64(3), testutil.ToFloat64(c.schedulesActive))

	c.SetSchedulesActive(1)
	assert.Equal(t, float64(1), testutil.ToFloat64(c.schedulesActive))
}

func TestCollectorRecordsHTTP(t *testing.T) {
	c := NewCollector("test")

	c.RecordHTTPRequest(http.MethodGet, "/api/tasks", 200, 5*time.Millisecond)
	c.RecordHTTPRequest(http.MethodGet, "/api/tasks", 200, 7*time.Millisecond)
	c.RecordHTTPRequest(http.MethodPost, "/api/tasks", 400, time.Millisecond)

	assert.Equal(t, float64(2), testutil.ToFloat64(c.httpRequests.WithLabelValues("GET", "/api/tasks", "2xx")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.httpRequests.WithLabelValues("POST", "/api/tasks", "4xx")))
}

func TestHandlerServesPrivateRegistry(t *testing.T) {
	c := NewCollector("test")
	c.TaskFinished("get_trends", "completed", time.Second)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "test_tasks_total"), "exposition should contain the namespaced family")
}

func TestNilCollectorIsSafe(t *testing.T) {
	var c *Collector

	c.TaskStarted()
	c.TaskFinished("search_tweets", "completed", time.Second)
	c.RetryObserved()
	c.FallbackObserved("get_trends")
	c.SetSchedulesActive(2)
	c.RecordHTTPRequest(http.MethodGet, "/health", 200, time.Millisecond)

	require.NotNil(t, c.Handler())
}

func TestStatusClass(t *testing.T) {
	tests := []struct {
		code int
		want string
	}{
		{200, "2xx"},
		{201, "2xx"},
		{301, "3xx"},
		{404, "4xx"},
		{500, "5xx"},
		{99, "unknown"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusClass(tt.code))
	}
}
