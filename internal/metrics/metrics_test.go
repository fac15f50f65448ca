package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMiddleware_LabelsByRoutePattern(t *testing.T) {
	c := New("test")
	r := chi.NewRouter()
	r.Use(c.Middleware)
	r.Get("/appointments/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	for _, id := range []string{"a", "b"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/appointments/"+id, nil))
		require.Equal(t, http.StatusTeapot, rec.Code)
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(c.httpRequests.WithLabelValues("GET", "/appointments/{id}", "418")))
}

func TestCounters(t *testing.T) {
	c := New("test")

	c.RecordOperation("verify_otp", "invalid_otp")
	c.RecordRateLimited("otp")
	c.RecordRollover(3, nil)
	c.RecordRollover(0, errors.New("db down"))

	assert.Equal(t, 1.0, testutil.ToFloat64(c.operations.WithLabelValues("verify_otp", "invalid_otp")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.rateLimited.WithLabelValues("otp")))
	assert.Equal(t, 3.0, testutil.ToFloat64(c.rolledOver))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.rolloverErrors))
}

func TestHandler(t *testing.T) {
	c := New("test")
	c.RecordOperation("book", "ok")

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `appointment_operations_total{operation="book",outcome="ok",service="test"} 1`))
}
