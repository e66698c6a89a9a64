package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMiddlewareCountsByCodeAndMethod(t *testing.T) {
	m := New()
	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		_, _ = io.WriteString(w, "ok")
	}))

	for _, path := range []string{"/", "/", "/missing"} {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(m.requests.WithLabelValues("200", http.MethodGet)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("404", http.MethodGet)))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.inflight))
}

func TestObserveStorageSplitsResults(t *testing.T) {
	m := New()
	m.ObserveStorage("put", time.Now(), nil)
	m.ObserveStorage("put", time.Now(), errors.New("boom"))
	m.ObserveStorage("list", time.Now(), nil)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.storageOps.WithLabelValues("put", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.storageOps.WithLabelValues("put", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.storageOps.WithLabelValues("list", "ok")))
}

func TestHandlerExposesRegistry(t *testing.T) {
	m := New()
	m.ObserveStorage("delete", time.Now(), nil)

	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `s3drive_storage_operations_total{op="delete",result="ok"} 1`)
}
