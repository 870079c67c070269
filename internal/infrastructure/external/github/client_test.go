package github

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/web3-hub/learning-hub/internal/domain/content"
	"github.com/web3-hub/learning-hub/internal/domain/shared"
	"github.com/web3-hub/learning-hub/pkg/circuitbreaker"
)

func newTestClient(t *testing.T, base string, limiter *RateLimiter) *Client {
	t.Helper()
	c, err := NewClient(ClientConfig{BaseURL: base, Tier: content.TierRemote, Timeout: time.Second, RateLimiter: limiter}, nil)
	require.NoError(t, err)
	return c
}

func TestClient_Fetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/main/zh/Web3QuickStart/01_FirstWeb3Identity/README.md" {
			_, _ = w.Write([]byte("# Identity"))
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL+"/main", nil)

	body, err := c.Fetch(context.Background(), "zh/Web3QuickStart/01_FirstWeb3Identity")
	require.NoError(t, err)
	assert.Equal(t, "# Identity", body)

	_, err = c.Fetch(context.Background(), "zh/missing")
	assert.ErrorIs(t, err, shared.ErrContentStatus)
	assert.False(t, IsRetryable(err))

	_, err = c.Fetch(context.Background(), "/")
	assert.ErrorIs(t, err, shared.ErrInvalidInput)
}

func TestClient_RateLimitedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Retry-After", "30")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	limiter := NewRateLimiter(DefaultRateLimiterConfig())
	c := newTestClient(t, srv.URL, limiter)

	_, err := c.Fetch(context.Background(), "a/b")
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, 30*time.Second, se.RetryAfter)
	assert.True(t, IsRetryable(err))

	assert.False(t, limiter.TryAllow(), "limiter blocked after 429")
	assert.False(t, limiter.Status().BlockedUntil.IsZero())
}

func TestRemoteSource_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	remote := NewRemoteSource(newTestClient(t, srv.URL, nil), RemoteConfig{MaxAttempts: 2, BreakerThreshold: 3})
	body, err := remote.Fetch(context.Background(), "x/y")
	require.NoError(t, err)
	assert.Equal(t, "ok", body)
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, content.TierRemote, remote.Tier())
}

func TestRemoteSource_NotFoundDoesNotTripBreaker(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	remote := NewRemoteSource(newTestClient(t, srv.URL, nil), RemoteConfig{MaxAttempts: 3, BreakerThreshold: 1})
	for i := 0; i < 3; i++ {
		_, err := remote.Fetch(context.Background(), "x/y")
		assert.ErrorIs(t, err, shared.ErrContentStatus)
	}
	assert.Equal(t, int32(3), calls.Load(), "404 is not retried")
	assert.Equal(t, circuitbreaker.StateClosed, remote.BreakerState())
}

func TestRemoteSource_BreakerOpensOnOutage(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	remote := NewRemoteSource(newTestClient(t, srv.URL, nil), RemoteConfig{MaxAttempts: 1, BreakerThreshold: 2, BreakerCooldown: time.Hour})
	for i := 0; i < 2; i++ {
		_, err := remote.Fetch(context.Background(), "x/y")
		assert.ErrorIs(t, err, shared.ErrContentStatus)
	}
	_, err := remote.Fetch(context.Background(), "x/y")
	assert.ErrorIs(t, err, circuitbreaker.ErrCircuitOpen)
	assert.Equal(t, int32(2), calls.Load())
}

func TestDirSource(t *testing.T) {
	root := t.TempDir()
	lesson := filepath.Join(root, "zh", "GetStartedWithBitcoin", "01_Cryptography")
	require.NoError(t, os.MkdirAll(lesson, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(lesson, "README.md"), []byte("# 密码学"), 0o644))

	src, err := NewDirSource(root)
	require.NoError(t, err)
	assert.Equal(t, content.TierLocal, src.Tier())

	body, err := src.Fetch(context.Background(), "zh/GetStartedWithBitcoin/01_Cryptography")
	require.NoError(t, err)
	assert.Equal(t, "# 密码学", body)

	_, err = src.Fetch(context.Background(), "zh/missing")
	assert.Error(t, err)

	_, err = src.Fetch(context.Background(), "../etc")
	assert.ErrorIs(t, err, shared.ErrInvalidInput)

	_, err = NewDirSource(filepath.Join(root, "nope"))
	assert.Error(t, err)
}

func TestParseRetryAfter(t *testing.T) {
	assert.Equal(t, 5*time.Second, parseRetryAfter("5"))
	assert.Equal(t, time.Duration(0), parseRetryAfter(""))
	assert.Equal(t, time.Duration(0), parseRetryAfter("soon"))
}

func TestRateLimiter_Bucket(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(RateLimiterConfig{RequestsPerSecond: 1, BurstSize: 2, WaitTimeout: 0})
	rl.now = func() time.Time { return now }
	rl.lastRefill = now

	assert.True(t, rl.TryAllow())
	assert.True(t, rl.TryAllow())
	assert.False(t, rl.TryAllow())

	var rle *RateLimitError
	assert.ErrorAs(t, rl.Allow(context.Background()), &rle)

	now = now.Add(time.Second)
	assert.True(t, rl.TryAllow())
}
