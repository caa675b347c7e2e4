package price

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func feedServer(rate *atomic.Value, calls *atomic.Int64, failing *atomic.Bool) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if failing.Load() {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		fmt.Fprintf(w, `{"solana":{"eur":%v}}`, rate.Load())
	}))
}

func TestRateFetchesFromFeed(t *testing.T) {
	var rate atomic.Value
	var calls atomic.Int64
	var failing atomic.Bool
	rate.Store(142.5)

	srv := feedServer(&rate, &calls, &failing)
	defer srv.Close()

	s := NewSource(srv.URL, time.Minute, 150.0)
	require.Equal(t, 142.5, s.Rate(context.Background()))
	require.Equal(t, int64(1), calls.Load())
}

func TestRateIsCachedWithinTTL(t *testing.T) {
	var rate atomic.Value
	var calls atomic.Int64
	var failing atomic.Bool
	rate.Store(140.0)

	srv := feedServer(&rate, &calls, &failing)
	defer srv.Close()

	s := NewSource(srv.URL, time.Minute, 150.0)
	require.Equal(t, 140.0, s.Rate(context.Background()))

	// A fresher feed value must not be visible while the cache is warm.
	rate.Store(999.0)
	require.Equal(t, 140.0, s.Rate(context.Background()))
	require.Equal(t, int64(1), calls.Load())
}

func TestRateRefreshesAfterTTL(t *testing.T) {
	var rate atomic.Value
	var calls atomic.Int64
	var failing atomic.Bool
	rate.Store(140.0)

	srv := feedServer(&rate, &calls, &failing)
	defer srv.Close()

	s := NewSource(srv.URL, 10*time.Millisecond, 150.0)
	require.Equal(t, 140.0, s.Rate(context.Background()))

	rate.Store(160.0)
	time.Sleep(20 * time.Millisecond)
	require.Equal(t, 160.0, s.Rate(context.Background()))
	require.Equal(t, int64(2), calls.Load())
}

func TestRateFallsBackToStaleValueOnFeedFailure(t *testing.T) {
	var rate atomic.Value
	var calls atomic.Int64
	var failing atomic.Bool
	rate.Store(140.0)

	srv := feedServer(&rate, &calls, &failing)
	defer srv.Close()

	s := NewSource(srv.URL, 10*time.Millisecond, 150.0)
	require.Equal(t, 140.0, s.Rate(context.Background()))

	failing.Store(true)
	time.Sleep(20 * time.Millisecond)
	require.Equal(t, 140.0, s.Rate(context.Background()), "stale value preferred over fallback")
}

func TestRateFallsBackToConstantWithoutCache(t *testing.T) {
	var rate atomic.Value
	var calls atomic.Int64
	var failing atomic.Bool
	rate.Store(140.0)
	failing.Store(true)

	srv := feedServer(&rate, &calls, &failing)
	defer srv.Close()

	s := NewSource(srv.URL, time.Minute, 150.0)
	require.Equal(t, 150.0, s.Rate(context.Background()))
}

func TestRateNeverFailsOnUnreachableFeed(t *testing.T) {
	s := NewSource("http://127.0.0.1:1/price", time.Minute, 150.0)
	require.Equal(t, 150.0, s.Rate(context.Background()))
}

func TestConversions(t *testing.T) {
	var rate atomic.Value
	var calls atomic.Int64
	var failing atomic.Bool
	rate.Store(150.0)

	srv := feedServer(&rate, &calls, &failing)
	defer srv.Close()

	s := NewSource(srv.URL, time.Minute, 150.0)
	require.InDelta(t, 0.133333, s.EURToSOL(context.Background(), 20.0), 1e-6)
	require.InDelta(t, 30.0, s.SOLToEUR(context.Background(), 0.2), 1e-9)
}
