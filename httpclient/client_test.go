package httpclient

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() Config {
	return Config{
		Timeout:         5 * time.Second,
		MaxRetries:      0,
		RetryWaitMin:    1 * time.Millisecond,
		RetryWaitMax:    5 * time.Millisecond,
		MaxConnsPerHost: 10,
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 30*time.Second, cfg.Timeout)
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, time.Second, cfg.RetryWaitMin)
	assert.Equal(t, 5*time.Second, cfg.RetryWaitMax)
	assert.Equal(t, 100, cfg.MaxConnsPerHost)
}

func TestGet_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	client := New(testConfig())

	resp, err := client.Get(context.Background(), server.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), "ok")
}

func TestDo_Retries5xx(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&attempts, 1)
		if n <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	cfg := testConfig()
	cfg.MaxRetries = 3
	client := New(cfg)

	resp, err := client.Get(context.Background(), server.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int32(3), atomic.LoadInt32(&attempts))
}

func TestDo_DoesNotRetry501(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusNotImplemented)
	}))
	defer server.Close()

	cfg := testConfig()
	cfg.MaxRetries = 3
	client := New(cfg)

	resp, err := client.Get(context.Background(), server.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNotImplemented, resp.StatusCode)
	assert.Equal(t, int32(1), atomic.LoadInt32(&attempts))
}

func TestDo_RetryReplaysPostBody(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, `{"name":"test"}`, string(body))
		if atomic.AddInt32(&attempts, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	cfg := testConfig()
	cfg.MaxRetries = 2
	client := New(cfg)

	resp, err := client.Post(context.Background(), server.URL, "application/json",
		strings.NewReader(`{"name":"test"}`))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, int32(2), atomic.LoadInt32(&attempts))
}

func TestDo_RequestHookRuns(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "hooked", r.Header.Get("X-Test-Hook"))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := New(testConfig(), WithRequestHook(func(_ context.Context, req *http.Request) error {
		req.Header.Set("X-Test-Hook", "hooked")
		return nil
	}))

	resp, err := client.Get(context.Background(), server.URL)
	require.NoError(t, err)
	resp.Body.Close()
}

func TestDo_RequestHookErrorPropagatesUnchanged(t *testing.T) {
	var sent int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&sent, 1)
	}))
	defer server.Close()

	hookErr := errors.New("hook rejected request")
	client := New(testConfig(), WithRequestHook(func(context.Context, *http.Request) error {
		return hookErr
	}))

	_, err := client.Get(context.Background(), server.URL)
	assert.ErrorIs(t, err, hookErr)
	assert.Equal(t, int32(0), atomic.LoadInt32(&sent), "request must not be sent when a hook fails")
}

func TestDo_ResponseHookNotCalledOnSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	var hookCalls int32
	client := New(testConfig(), WithResponseHook(
		func(_ context.Context, _ *http.Request, resp *http.Response) (*http.Response, error) {
			atomic.AddInt32(&hookCalls, 1)
			return resp, nil
		}))

	resp, err := client.Get(context.Background(), server.URL)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, int32(0), atomic.LoadInt32(&hookCalls))
}

func TestDo_ResponseHookCanSubstituteResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	substitute := &http.Response{
		StatusCode: http.StatusOK,
		Body:       io.NopCloser(strings.NewReader("recovered")),
	}
	client := New(testConfig(), WithResponseHook(
		func(_ context.Context, _ *http.Request, resp *http.Response) (*http.Response, error) {
			resp.Body.Close()
			return substitute, nil
		}))

	resp, err := client.Get(context.Background(), server.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "recovered", string(body))
}

func TestSend_BypassesHooks(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("X-Test-Hook"))
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	client := New(testConfig(),
		WithRequestHook(func(_ context.Context, req *http.Request) error {
			req.Header.Set("X-Test-Hook", "hooked")
			return nil
		}),
		WithResponseHook(func(_ context.Context, _ *http.Request, _ *http.Response) (*http.Response, error) {
			t.Fatal("response hook must not run for Send")
			return nil, nil
		}),
	)

	req, err := http.NewRequest(http.MethodGet, server.URL, http.NoBody)
	require.NoError(t, err)

	resp, err := client.Send(context.Background(), req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestMarkRetried(t *testing.T) {
	req, err := http.NewRequest(http.MethodGet, "http://example.com", http.NoBody)
	require.NoError(t, err)

	assert.False(t, IsRetried(req))
	retried := MarkRetried(req)
	assert.True(t, IsRetried(retried))
	assert.False(t, IsRetried(req), "marking returns a copy, the original stays unmarked")
}

func TestCorrelationHook(t *testing.T) {
	hook := CorrelationHook()

	req, err := http.NewRequest(http.MethodGet, "http://example.com", http.NoBody)
	require.NoError(t, err)

	require.NoError(t, hook(context.Background(), req))
	assert.NotEmpty(t, req.Header.Get(CorrelationIDHeader))

	// An existing header is left alone.
	req.Header.Set(CorrelationIDHeader, "fixed-id")
	require.NoError(t, hook(context.Background(), req))
	assert.Equal(t, "fixed-id", req.Header.Get(CorrelationIDHeader))
}
