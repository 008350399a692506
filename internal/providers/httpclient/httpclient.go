package httpclient

import (
	"context"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/time/rate"

	"github.com/meridian-robotics/rappd/internal/infrastructure/resilience"
)

// Config tunes an outbound client for one collaborator.
type Config struct {
	BaseURL      string
	Timeout      time.Duration
	RetryMax     int
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
	// RPS limits outbound request rate; zero or negative means unlimited.
	RPS float64
	// Breaker configuration; BreakerName doubles as the metric label.
	BreakerName      string
	FailureThreshold uint32
	Cooldown         time.Duration
	OnStateChange    func(name string, from, to resilience.State)
}

// Client wraps resty with a retrying transport, a client-side rate
// limiter, and a circuit breaker. One Client per collaborator.
type Client struct {
	Resty   *resty.Client
	Limiter *rate.Limiter
	Breaker *resilience.Breaker
}

// New creates a production-ready outbound client.
func New(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.RetryWaitMin == 0 {
		cfg.RetryWaitMin = 100 * time.Millisecond
	}
	if cfg.RetryWaitMax == 0 {
		cfg.RetryWaitMax = 2 * time.Second
	}
	if cfg.BreakerName == "" {
		cfg.BreakerName = "http-external"
	}

	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = cfg.RetryMax
	retryClient.RetryWaitMin = cfg.RetryWaitMin
	retryClient.RetryWaitMax = cfg.RetryWaitMax
	retryClient.Logger = nil // Disable logging

	restyClient := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetHeader("User-Agent", "rappd/1.0").
		SetJSONMarshaler(sonic.Marshal).
		SetJSONUnmarshaler(sonic.Unmarshal)
	restyClient.SetTransport(&retryablehttp.RoundTripper{Client: retryClient})

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RPS), int(cfg.RPS)+1)
	}

	breaker := resilience.New(cfg.BreakerName, resilience.Config{
		FailureThreshold: cfg.FailureThreshold,
		Cooldown:         cfg.Cooldown,
		OnStateChange:    cfg.OnStateChange,
	})

	return &Client{
		Resty:   restyClient,
		Limiter: limiter,
		Breaker: breaker,
	}
}

// Do runs one request through the limiter and the breaker. fn receives
// a context-bound request to finish and execute. Server-side errors
// (5xx) count against the breaker; the response is returned either way
// so callers can inspect structured bodies.
func (c *Client) Do(ctx context.Context, fn func(r *resty.Request) (*resty.Response, error)) (*resty.Response, error) {
	if err := c.Limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit: %w", err)
	}

	var resp *resty.Response
	err := c.Breaker.Do(func() error {
		var err error
		resp, err = fn(c.Resty.R().SetContext(ctx))
		if err != nil {
			return err
		}
		if resp.StatusCode() >= 500 {
			return fmt.Errorf("server error: %s", resp.Status())
		}
		return nil
	})

	return resp, err
}
