package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.SessionStarted()
		m.SessionEnded("ok")
		m.EventEmitted("friend-started-studying")
		m.EventDropped("queue_full")
		m.Delivery("published")
		m.SubscriberAdded()
		m.SubscriberRemoved()
	})
}

func TestMiddlewareLabelsByRoutePattern(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/api/v1/study-sessions/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/study-sessions/abc", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/study-sessions/def", nil))

	assert.Equal(t, 1, testutil.CollectAndCount(m.RequestDuration))

	m.SessionEnded("ok")
	m.SessionEnded("ok")
	assert.Equal(t, 2.0, testutil.ToFloat64(m.SessionsEnded.WithLabelValues("ok")))

	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, rr.Body.String(), "study_tracker_study_sessions_ended_total")
}
