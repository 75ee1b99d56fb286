package network

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"market-pulse/src/config"
	"market-pulse/src/helpers"
	"market-pulse/src/logger"
	"market-pulse/src/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *models.MConfig {
	cfg := config.Default().MConfig
	cfg.Network.MaxRetries = 2
	cfg.Network.RetryBaseDelayMs = 1
	cfg.Network.RequestTimeout = 2
	cfg.Network.UserAgent = "market-pulse-test"
	return cfg
}

func newManager(cfg *models.MConfig) *AsyncNetworkManager {
	return NewAsyncNetworkManager(cfg, logger.NewLoggerWithWriter(io.Discard, "ERROR", "network"), nil)
}

func TestGetRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "market-pulse-test", r.Header.Get("User-Agent"))
		assert.Equal(t, "AAPL", r.URL.Query().Get("symbols"))
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	body, err := newManager(testConfig()).Get(context.Background(), srv.URL+"/v7/quote", map[string]string{"symbols": "AAPL"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(body))
	assert.Equal(t, int32(3), calls.Load())
}

func TestGetGivesUpAfterMaxRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := newManager(testConfig()).Get(context.Background(), srv.URL, nil)
	require.Error(t, err)

	var netErr *helpers.NetworkError
	assert.True(t, errors.As(err, &netErr))
	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusServiceUnavailable, statusErr.Code)
	assert.Equal(t, int32(3), calls.Load())
}

func TestGetDoesNotRetryNotFound(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := newManager(testConfig()).Get(context.Background(), srv.URL, nil)
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestGetHonoursContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := newManager(testConfig()).Get(ctx, srv.URL, nil)
	require.Error(t, err)
	assert.Less(t, time.Since(start), time.Second)
}

func TestBreakerOpensAfterRepeatedFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	cfg := testConfig()
	cfg.Network.MaxRetries = 0
	cfg.Network.BreakerTimeoutSeconds = 60
	nm := newManager(cfg)

	for i := 0; i < 5; i++ {
		_, err := nm.Get(context.Background(), srv.URL, nil)
		require.Error(t, err)
	}
	before := calls.Load()

	_, err := nm.Get(context.Background(), srv.URL, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unavailable")
	assert.Equal(t, before, calls.Load())
}
