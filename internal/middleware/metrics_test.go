package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"classhub-gateway/internal/observability"
)

func newMetricsRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(Metrics())
	r.Post("/api/webhooks/{provider}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})
	r.Get("/api/lessons/{id}", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("lesson"))
	})
	return r
}

func TestMetrics_LabelsByRoutePattern(t *testing.T) {
	router := newMetricsRouter()
	counter := observability.HTTPRequestsTotal.WithLabelValues(http.MethodPost, "/api/webhooks/{provider}", "202")
	before := testutil.ToFloat64(counter)

	for _, provider := range []string{"stripe", "zoom", "google-classroom"} {
		req := httptest.NewRequest(http.MethodPost, "/api/webhooks/"+provider, nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusAccepted, w.Code)
	}

	assert.Equal(t, before+3, testutil.ToFloat64(counter), "one series for every provider")
}

func TestMetrics_DefaultStatusCodeIsOK(t *testing.T) {
	router := newMetricsRouter()
	counter := observability.HTTPRequestsTotal.WithLabelValues(http.MethodGet, "/api/lessons/{id}", "200")
	before := testutil.ToFloat64(counter)

	req := httptest.NewRequest(http.MethodGet, "/api/lessons/42", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "lesson", w.Body.String())
	assert.Equal(t, before+1, testutil.ToFloat64(counter))
}

func TestMetrics_UnmatchedRoute(t *testing.T) {
	router := newMetricsRouter()
	counter := observability.HTTPRequestsTotal.WithLabelValues(http.MethodGet, unmatchedRoute, "404")
	before := testutil.ToFloat64(counter)

	req := httptest.NewRequest(http.MethodGet, "/does/not/exist", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, before+1, testutil.ToFloat64(counter))
}

func TestMetrics_WithoutRouter(t *testing.T) {
	handler := Metrics()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	req := httptest.NewRequest(http.MethodGet, "/raw", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusTeapot, w.Code)
	assert.Equal(t, unmatchedRoute, routePattern(req))
}

func TestMetrics_PanicsInNextHandler(t *testing.T) {
	handler := Metrics()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("handler panic")
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/test", nil)
	w := httptest.NewRecorder()

	assert.Panics(t, func() {
		handler.ServeHTTP(w, req)
	})
}

func TestResponseWriter_KeepsFirstStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := &responseWriter{ResponseWriter: rec, statusCode: http.StatusOK}

	rw.WriteHeader(http.StatusForbidden)
	rw.WriteHeader(http.StatusOK)

	assert.Equal(t, http.StatusForbidden, rw.statusCode)
}

func TestResponseWriter_HijackNotImplemented(t *testing.T) {
	rw := &responseWriter{ResponseWriter: httptest.NewRecorder(), statusCode: http.StatusOK}

	conn, buf, err := rw.Hijack()

	assert.Error(t, err)
	assert.Nil(t, conn)
	assert.Nil(t, buf)
}

func TestResponseWriter_Flush(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := &responseWriter{ResponseWriter: rec, statusCode: http.StatusOK}

	rw.Flush()

	assert.True(t, rec.Flushed)
}
