package infra

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/singleflight"
)

func TestCacheSetGet(t *testing.T) {
	c := NewCache(time.Minute)
	c.Set("k", 42)

	v, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, 42, v)

	c.Invalidate("k")
	_, ok = c.Get("k")
	assert.False(t, ok)
}

func TestCacheExpiry(t *testing.T) {
	c := NewCache(time.Minute)
	c.SetWithTTL("k", "v", -time.Second)
	_, ok := c.Get("k")
	assert.False(t, ok, "expired entry must not be returned")
}

func TestSharedFetchOutlivesFirstCaller(t *testing.T) {
	var g singleflight.Group
	var calls atomic.Int32
	started := make(chan struct{})
	release := make(chan struct{})
	fetch := func(ctx context.Context) (any, error) {
		calls.Add(1)
		close(started)
		select {
		case <-release:
			return "rows", nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	short, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	firstErr := make(chan error, 1)
	go func() {
		_, err := SharedFetch(short, &g, "k", time.Minute, fetch)
		firstErr <- err
	}()
	<-started

	type result struct {
		v   any
		err error
	}
	second := make(chan result, 1)
	go func() {
		v, err := SharedFetch(context.Background(), &g, "k", time.Minute, fetch)
		second <- result{v, err}
	}()

	assert.ErrorIs(t, <-firstErr, context.DeadlineExceeded)
	time.Sleep(10 * time.Millisecond)
	close(release)

	got := <-second
	require.NoError(t, got.err)
	assert.Equal(t, "rows", got.v)
	assert.Equal(t, int32(1), calls.Load())
}

func TestSharedFetchTimeout(t *testing.T) {
	var g singleflight.Group
	_, err := SharedFetch(context.Background(), &g, "k", 10*time.Millisecond, func(ctx context.Context) (any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestNewRateLimiter(t *testing.T) {
	l := NewRateLimiter(5)
	assert.Equal(t, 5, l.Burst())

	unlimited := NewRateLimiter(0)
	for i := 0; i < 100; i++ {
		require.NoError(t, unlimited.Wait(context.Background()))
	}
}

func TestRetryPolicyBackoff(t *testing.T) {
	p := RetryPolicy{InitialBackoff: 100 * time.Millisecond, MaxBackoff: time.Second, Multiplier: 2}
	assert.Equal(t, 100*time.Millisecond, p.Backoff(0))
	assert.Equal(t, 200*time.Millisecond, p.Backoff(1))
	assert.Equal(t, 400*time.Millisecond, p.Backoff(2))
	assert.Equal(t, time.Second, p.Backoff(10), "capped at MaxBackoff")
}

func TestRetrySucceedsAfterTransientErrors(t *testing.T) {
	p := RetryPolicy{MaxRetries: 3, InitialBackoff: time.Millisecond}
	calls := 0
	err := Retry(context.Background(), p, func(error) bool { return true }, func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryStopsAtBudget(t *testing.T) {
	p := RetryPolicy{MaxRetries: 2, InitialBackoff: time.Millisecond}
	calls := 0
	err := Retry(context.Background(), p, func(error) bool { return true }, func(context.Context) error {
		calls++
		return errors.New("down")
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls, "one call plus two retries")
}

func TestRetrySkipsNonRetryable(t *testing.T) {
	permanent := errors.New("permanent")
	calls := 0
	err := Retry(context.Background(), RetryPolicy{MaxRetries: 5}, func(err error) bool { return !errors.Is(err, permanent) }, func(context.Context) error {
		calls++
		return permanent
	})
	assert.ErrorIs(t, err, permanent)
	assert.Equal(t, 1, calls)
}

func TestRetryHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := RetryPolicy{MaxRetries: 5, InitialBackoff: time.Hour}
	err := Retry(ctx, p, func(error) bool { return true }, func(context.Context) error {
		return errors.New("down")
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDoGet(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "yes", r.Header.Get("X-Test"))
		assert.Equal(t, DefaultUserAgent, r.Header.Get("User-Agent"))
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	body, status, err := DoGet(context.Background(), srv.Client(), srv.URL, map[string]string{"X-Test": "yes"})
	require.NoError(t, err)
	defer body.Close()
	assert.Equal(t, http.StatusOK, status)
	data, _ := io.ReadAll(body)
	assert.JSONEq(t, `{"ok":true}`, string(data))
}

func TestDoGetHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, status, err := DoGet(context.Background(), srv.Client(), srv.URL, nil)
	var httpErr *ErrHTTP
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusTooManyRequests, status)
	assert.Equal(t, http.StatusTooManyRequests, httpErr.StatusCode)
}
