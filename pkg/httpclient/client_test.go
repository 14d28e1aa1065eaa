package httpclient

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastConfig(retries int) Config {
	return Config{
		Timeout:         5 * time.Second,
		MaxRetries:      retries,
		RetryWaitMin:    time.Millisecond,
		RetryWaitMax:    5 * time.Millisecond,
		MaxConnsPerHost: 4,
	}
}

func flakyServer(t *testing.T, failures int32, status int) (*httptest.Server, *int32, *[]string) {
	t.Helper()
	var calls int32
	var bodies []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		bodies = append(bodies, string(b))
		if atomic.AddInt32(&calls, 1) <= failures {
			w.WriteHeader(status)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)
	return srv, &calls, &bodies
}

func TestDo_RetriesIdempotentGet(t *testing.T) {
	srv, calls, _ := flakyServer(t, 2, http.StatusServiceUnavailable)
	c := New(fastConfig(2))

	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	resp, err := c.Do(context.Background(), req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int32(3), atomic.LoadInt32(calls))
}

func TestDo_PostWithoutKeyIsNotRetried(t *testing.T) {
	srv, calls, _ := flakyServer(t, 1, http.StatusServiceUnavailable)
	c := New(fastConfig(3))

	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, srv.URL, bytes.NewReader([]byte(`{}`)))
	require.NoError(t, err)
	resp, err := c.Do(context.Background(), req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, int32(1), atomic.LoadInt32(calls))
}

func TestDo_PostWithIdempotencyKeyReplaysBody(t *testing.T) {
	srv, calls, bodies := flakyServer(t, 1, http.StatusBadGateway)
	c := New(fastConfig(3))

	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, srv.URL, bytes.NewReader([]byte(`{"paymentMethod":"cash-taipei"}`)))
	require.NoError(t, err)
	req.Header.Set(IdempotencyKeyHeader, "k-1")

	resp, err := c.Do(context.Background(), req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, int32(2), atomic.LoadInt32(calls))
	assert.Equal(t, []string{`{"paymentMethod":"cash-taipei"}`, `{"paymentMethod":"cash-taipei"}`}, *bodies)
}

func TestDo_ClientErrorsAreReturnedAsIs(t *testing.T) {
	srv, calls, _ := flakyServer(t, 5, http.StatusBadRequest)
	c := New(fastConfig(3))

	req, _ := http.NewRequestWithContext(context.Background(), http.MethodGet, srv.URL, nil)
	resp, err := c.Do(context.Background(), req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, int32(1), atomic.LoadInt32(calls))
}

func TestDo_NetworkErrorAfterRetries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	c := New(fastConfig(1))
	req, _ := http.NewRequestWithContext(context.Background(), http.MethodGet, url, nil)
	_, err := c.Do(context.Background(), req)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 2 attempt(s)")
}

func TestDo_CanceledContextStopsRetrying(t *testing.T) {
	srv, _, _ := flakyServer(t, 10, http.StatusServiceUnavailable)
	cfg := fastConfig(5)
	cfg.RetryWaitMin = time.Hour
	cfg.RetryWaitMax = time.Hour
	c := New(cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)

	_, err := c.Do(ctx, req)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestIsRetryableRequest(t *testing.T) {
	get, _ := http.NewRequest(http.MethodGet, "http://x", nil)
	post, _ := http.NewRequest(http.MethodPost, "http://x", nil)
	assert.True(t, isRetryableRequest(get))
	assert.False(t, isRetryableRequest(post))

	post.Header.Set(IdempotencyKeyHeader, "abc")
	assert.True(t, isRetryableRequest(post))
}
