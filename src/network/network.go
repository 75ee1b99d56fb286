package network

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"market-pulse/src/helpers"
	"market-pulse/src/interfaces"
	"market-pulse/src/logger"
	"market-pulse/src/metrics"
	"market-pulse/src/models"

	"github.com/sony/gobreaker/v2"
)

type AsyncNetworkManager struct {
	Config       *models.MConfig
	ProxyManager interfaces.IProxyManager
	Logger       *logger.Logger
	Metrics      *metrics.Metrics

	mu       sync.RWMutex
	client   *http.Client
	breakers map[string]*gobreaker.CircuitBreaker[[]byte]
}

// -----------------------------------------------------------------------------

func NewAsyncNetworkManager(cfg *models.MConfig, log *logger.Logger, m *metrics.Metrics) *AsyncNetworkManager {
	var proxies []string
	if cfg.Network.Enabled {
		proxies = cfg.Network.Proxies
	}

	nm := &AsyncNetworkManager{
		Config:       cfg,
		ProxyManager: helpers.NewProxyManager(proxies, cfg.Network.UserAgent, log),
		Logger:       log,
		Metrics:      m,
		breakers:     make(map[string]*gobreaker.CircuitBreaker[[]byte]),
	}
	nm.client = nm.createClient()
	return nm
}

// -----------------------------------------------------------------------------

func (nm *AsyncNetworkManager) createClient() *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()

	if nm.ProxyManager.HasProxies() {
		proxyStr, err := nm.ProxyManager.GetCurrentProxy()
		if err == nil && proxyStr != "" {
			proxyURL, err := url.Parse(proxyStr)
			if err == nil {
				transport.Proxy = http.ProxyURL(proxyURL)
			}
		}
	}

	return &http.Client{
		Transport: transport,
		Timeout:   time.Duration(nm.Config.Network.RequestTimeout) * time.Second,
	}
}

// -----------------------------------------------------------------------------

func (nm *AsyncNetworkManager) rotateProxy() {
	if !nm.ProxyManager.HasProxies() {
		return
	}

	nm.ProxyManager.RotateProxy()
	client := nm.createClient()

	nm.mu.Lock()
	nm.client = client
	nm.mu.Unlock()
}

// -----------------------------------------------------------------------------

func (nm *AsyncNetworkManager) httpClient() *http.Client {
	nm.mu.RLock()
	defer nm.mu.RUnlock()
	return nm.client
}

// -----------------------------------------------------------------------------

// breaker returns (or creates) the circuit breaker guarding one upstream host
func (nm *AsyncNetworkManager) breaker(host string) *gobreaker.CircuitBreaker[[]byte] {
	nm.mu.RLock()
	cb, ok := nm.breakers[host]
	nm.mu.RUnlock()
	if ok {
		return cb
	}

	nm.mu.Lock()
	defer nm.mu.Unlock()
	if cb, ok = nm.breakers[host]; ok {
		return cb
	}

	netCfg := nm.Config.Network
	settings := gobreaker.Settings{
		Name:        host,
		MaxRequests: netCfg.BreakerMaxRequests,
		Interval:    time.Duration(netCfg.BreakerIntervalSeconds) * time.Second,
		Timeout:     time.Duration(netCfg.BreakerTimeoutSeconds) * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 5 && failureRatio >= 0.5
		},
		IsSuccessful: func(err error) bool {
			// client-side errors (404, bad symbol) say nothing about upstream health
			var se *StatusError
			return err == nil || (errors.As(err, &se) && se.Code >= 400 && se.Code < 500 && se.Code != http.StatusTooManyRequests)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			nm.Logger.Warning("Circuit breaker %s: %s -> %s", name, from, to)
			nm.Metrics.SetBreakerState(name, int(to))
		},
	}

	cb = gobreaker.NewCircuitBreaker[[]byte](settings)
	nm.breakers[host] = cb
	return cb
}

// -----------------------------------------------------------------------------

// StatusError is returned for non-200 upstream responses
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("bad status: %d", e.Code)
}

// -----------------------------------------------------------------------------

// Get performs a GET request with retries, proxy rotation and a per-host
// circuit breaker. The context bounds the whole call including retries.
func (nm *AsyncNetworkManager) Get(ctx context.Context, urlStr string, params map[string]string) ([]byte, error) {
	reqURL, err := url.Parse(urlStr)
	if err != nil {
		return nil, err
	}

	q := reqURL.Query()
	for k, v := range params {
		q.Set(k, v)
	}
	reqURL.RawQuery = q.Encode()
	finalURL := reqURL.String()

	netCfg := nm.Config.Network
	baseDelay := time.Duration(netCfg.RetryBaseDelayMs) * time.Millisecond

	attempt := 0
	body, err := nm.breaker(reqURL.Host).Execute(func() ([]byte, error) {
		return helpers.RetryWithBackoff(ctx, netCfg.MaxRetries, baseDelay, func() ([]byte, error) {
			attempt++
			if attempt > 1 {
				nm.rotateProxy()
			}
			return nm.do(ctx, finalURL, attempt)
		})
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, helpers.NewNetworkError(fmt.Sprintf("upstream %s unavailable", reqURL.Host), err)
		}
		return nil, helpers.NewNetworkError(fmt.Sprintf("GET %s failed after %d attempt(s)", reqURL.Path, attempt), err)
	}
	return body, nil
}

// -----------------------------------------------------------------------------

func (nm *AsyncNetworkManager) do(ctx context.Context, finalURL string, attempt int) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, finalURL, nil)
	if err != nil {
		return nil, helpers.Permanent(err)
	}
	req.Header.Set("User-Agent", nm.ProxyManager.GetUserAgent())
	req.Header.Set("Accept", "application/json")

	resp, err := nm.httpClient().Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, helpers.Permanent(ctx.Err())
		}
		nm.Logger.Debug("Request failed (attempt %d): %v", attempt, err)
		return nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusForbidden:
		nm.Logger.Info("Request blocked (%d). Rotating proxy.", resp.StatusCode)
		return nil, &StatusError{Code: resp.StatusCode}
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return nil, helpers.Permanent(&StatusError{Code: resp.StatusCode})
	case resp.StatusCode != http.StatusOK:
		nm.Logger.Debug("Bad status %d (attempt %d)", resp.StatusCode, attempt)
		return nil, &StatusError{Code: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	return body, nil
}
