package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestMiddleware(t *testing.T) {
	Init()
	r := chi.NewRouter()
	r.Use(Middleware)
	r.Post("/v1/github/sync/{username}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})
	r.Get("/v1/runs/{run_id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})

	accepted := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodPost, "202"))
	missing := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "404"))
	ok := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "200"))

	for _, req := range []*http.Request{
		httptest.NewRequest(http.MethodPost, "/v1/github/sync/alice", nil),
		httptest.NewRequest(http.MethodPost, "/v1/github/sync/bob", nil),
		httptest.NewRequest(http.MethodGet, "/v1/runs/0190c3b4-0000-7000-8000-000000000001", nil),
		httptest.NewRequest(http.MethodGet, "/healthz", nil),
	} {
		r.ServeHTTP(httptest.NewRecorder(), req)
	}

	require.InDelta(t, accepted+2, testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodPost, "202")), 0)
	require.InDelta(t, missing+1, testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "404")), 0)
	require.InDelta(t, ok+1, testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "200")), 0,
		"handlers that never call WriteHeader count as 200")
	require.Positive(t, testutil.CollectAndCount(httpRequestDurationSeconds))
}
