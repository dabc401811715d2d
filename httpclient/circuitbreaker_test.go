package httpclient

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestCircuitBreaker_OpensAfterFailures(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	cb := NewCircuitBreakerClient(New(testConfig()), CircuitBreakerConfig{
		Name:         "test-open",
		MaxRequests:  1,
		Interval:     time.Minute,
		Timeout:      time.Minute,
		FailureRatio: 0.5,
		MinRequests:  2,
	}, testLogger())

	for i := 0; i < 3; i++ {
		req, err := http.NewRequest(http.MethodGet, server.URL, http.NoBody)
		require.NoError(t, err)
		_, _ = cb.Do(context.Background(), req)
	}

	assert.Equal(t, gobreaker.StateOpen, cb.State())

	req, err := http.NewRequest(http.MethodGet, server.URL, http.NoBody)
	require.NoError(t, err)
	before := atomic.LoadInt32(&hits)
	_, doErr := cb.Do(context.Background(), req)
	assert.ErrorIs(t, doErr, ErrCircuitOpen)
	assert.Equal(t, before, atomic.LoadInt32(&hits), "open breaker must short-circuit")
}

func TestCircuitBreaker_AuthFailuresDoNotTrip(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	cb := NewCircuitBreakerClient(New(testConfig()), CircuitBreakerConfig{
		Name:         "test-auth",
		MaxRequests:  1,
		Interval:     time.Minute,
		Timeout:      time.Minute,
		FailureRatio: 0.5,
		MinRequests:  2,
	}, testLogger())

	for i := 0; i < 5; i++ {
		req, err := http.NewRequest(http.MethodGet, server.URL, http.NoBody)
		require.NoError(t, err)
		resp, doErr := cb.Do(context.Background(), req)
		require.NoError(t, doErr)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		resp.Body.Close()
	}

	assert.Equal(t, gobreaker.StateClosed, cb.State())
}
