package fetcher

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/risk-cli/internal/resilience"
)

// HTTPOptions configures the HTTP fetcher.
type HTTPOptions struct {
	UserAgent  string
	Timeout    time.Duration
	MaxRetries int

	// RatePerSec is the initial per-host request rate.
	RatePerSec float64

	// Retry overrides the backoff derived from MaxRetries.
	Retry *resilience.RetryConfig
}

// AdaptiveLimiter is a rate.Limiter that slows down after 429 responses
// and recovers on success. The rate stays between a quarter and twice the
// initial rate.
type AdaptiveLimiter struct {
	mu      sync.Mutex
	limiter *rate.Limiter
	current rate.Limit
	min     rate.Limit
	max     rate.Limit
}

// NewAdaptiveLimiter returns a limiter starting at initial events/sec.
func NewAdaptiveLimiter(initial rate.Limit, burst int) *AdaptiveLimiter {
	return &AdaptiveLimiter{
		limiter: rate.NewLimiter(initial, burst),
		current: initial,
		min:     initial / 4,
		max:     initial * 2,
	}
}

// Wait blocks until a request may proceed.
func (a *AdaptiveLimiter) Wait(ctx context.Context) error {
	return a.limiter.Wait(ctx)
}

// OnSuccess raises the rate by 20%.
func (a *AdaptiveLimiter) OnSuccess() { a.scale(1.2) }

// OnRateLimit halves the rate.
func (a *AdaptiveLimiter) OnRateLimit() {
	a.scale(0.5)
	zap.L().Warn("fetch: host rate limited, slowing down", zap.Float64("rate", float64(a.Limit())))
}

// Limit returns the current rate.
func (a *AdaptiveLimiter) Limit() rate.Limit {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.current
}

func (a *AdaptiveLimiter) scale(f float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.current = min(max(a.current*rate.Limit(f), a.min), a.max)
	a.limiter.SetLimit(a.current)
}

// HTTPFetcher downloads over HTTP(S) with per-host rate limiting, retries
// on transient failures, and a circuit breaker per host.
type HTTPFetcher struct {
	client   *http.Client
	opts     HTTPOptions
	retry    resilience.RetryConfig
	breakers *resilience.Breakers

	mu       sync.Mutex
	limiters map[string]*AdaptiveLimiter
}

// NewHTTPFetcher fills unset options with defaults: 30s timeout, 3
// retries, 5 requests/sec per host.
func NewHTTPFetcher(opts HTTPOptions) *HTTPFetcher {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.RatePerSec <= 0 {
		opts.RatePerSec = 5
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "risk-cli/1.0"
	}

	retry := resilience.RetryForAttempts(opts.MaxRetries)
	if opts.Retry != nil {
		retry = *opts.Retry
	}

	breaker := resilience.DefaultCircuitBreakerConfig()
	breaker.ShouldTrip = resilience.IsTransient

	return &HTTPFetcher{
		client: &http.Client{
			Timeout: opts.Timeout,
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		opts:     opts,
		retry:    retry,
		breakers: resilience.NewBreakers(breaker),
		limiters: make(map[string]*AdaptiveLimiter),
	}
}

func (f *HTTPFetcher) limiterFor(host string) *AdaptiveLimiter {
	f.mu.Lock()
	defer f.mu.Unlock()
	lim, ok := f.limiters[host]
	if !ok {
		burst := max(int(f.opts.RatePerSec), 1)
		lim = NewAdaptiveLimiter(rate.Limit(f.opts.RatePerSec), burst)
		f.limiters[host] = lim
	}
	return lim
}

// Breakers exposes the per-host circuit breakers for health reporting.
func (f *HTTPFetcher) Breakers() *resilience.Breakers { return f.breakers }

// Download GETs rawURL and returns the body of a 200 response.
func (f *HTTPFetcher) Download(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return nil, eris.Errorf("fetch: invalid url %q", rawURL)
	}
	lim := f.limiterFor(u.Host)
	cb := f.breakers.Get(u.Host)

	retry := f.retry
	retry.OnRetry = resilience.LogRetries("fetch", u.Redacted())

	body, err := resilience.DoVal(ctx, retry, func(ctx context.Context) (io.ReadCloser, error) {
		return resilience.ExecuteVal(ctx, cb, func(ctx context.Context) (io.ReadCloser, error) {
			return f.get(ctx, lim, u)
		})
	})
	if err != nil {
		var se *resilience.StatusError
		if errors.As(err, &se) {
			return nil, eris.Wrap(err, "fetch: unexpected status")
		}
		return nil, eris.Wrapf(err, "fetch: download %s", u.Redacted())
	}
	return body, nil
}

func (f *HTTPFetcher) get(ctx context.Context, lim *AdaptiveLimiter, u *url.URL) (io.ReadCloser, error) {
	if err := lim.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "fetch: rate limiter wait")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "fetch: create request")
	}
	req.Header.Set("User-Agent", f.opts.UserAgent)
	req.Header.Set("Accept", "text/csv, application/vnd.openxmlformats-officedocument.spreadsheetml.sheet, */*")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}

	if err := resilience.CheckStatus(resp.StatusCode, u.Redacted()); err != nil {
		_ = resp.Body.Close()
		if resp.StatusCode == http.StatusTooManyRequests {
			lim.OnRateLimit()
		}
		return nil, err
	}
	lim.OnSuccess()

	zap.L().Debug("fetch: downloaded",
		zap.String("url", u.Redacted()),
		zap.Int64("content_length", resp.ContentLength),
	)
	return resp.Body, nil
}
