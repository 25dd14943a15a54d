package retry

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/strayhaven/edge/config"
)

// DefaultRetryableStatuses are HTTP status codes that trigger a retry
var DefaultRetryableStatuses = []int{502, 503, 504}

// DefaultRetryableMethods are HTTP methods safe to retry
var DefaultRetryableMethods = []string{"GET", "HEAD", "OPTIONS"}

// errRetryableStatus marks an attempt whose response should be retried.
var errRetryableStatus = errors.New("retryable upstream status")

// Policy retries idempotent, bodiless requests with exponential backoff.
type Policy struct {
	MaxRetries        int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	BackoffMultiplier float64
	RetryableStatuses map[int]bool
	RetryableMethods  map[string]bool
	PerTryTimeout     time.Duration

	// OnRetry is called before each retry with the failed attempt's error
	// and the wait that follows.
	OnRetry func(err error, wait time.Duration)
}

// NewPolicy creates a retry policy from config
func NewPolicy(cfg config.RetryConfig) *Policy {
	p := &Policy{
		MaxRetries:        cfg.MaxRetries,
		InitialBackoff:    cfg.InitialBackoff,
		MaxBackoff:        cfg.MaxBackoff,
		BackoffMultiplier: cfg.BackoffMultiplier,
		PerTryTimeout:     cfg.PerTryTimeout,
	}

	if p.InitialBackoff == 0 {
		p.InitialBackoff = 100 * time.Millisecond
	}
	if p.MaxBackoff == 0 {
		p.MaxBackoff = 2 * time.Second
	}
	if p.BackoffMultiplier == 0 {
		p.BackoffMultiplier = 2.0
	}

	statuses := cfg.RetryableStatuses
	if len(statuses) == 0 {
		statuses = DefaultRetryableStatuses
	}
	p.RetryableStatuses = make(map[int]bool, len(statuses))
	for _, s := range statuses {
		p.RetryableStatuses[s] = true
	}

	methods := cfg.RetryableMethods
	if len(methods) == 0 {
		methods = DefaultRetryableMethods
	}
	p.RetryableMethods = make(map[string]bool, len(methods))
	for _, m := range methods {
		p.RetryableMethods[strings.ToUpper(m)] = true
	}

	return p
}

// CanRetry reports whether req may be sent more than once: the method is
// in the retryable set and there is no body to replay.
func (p *Policy) CanRetry(req *http.Request) bool {
	if p.MaxRetries <= 0 || !p.RetryableMethods[req.Method] {
		return false
	}
	return req.Body == nil || req.Body == http.NoBody
}

// IsRetryable returns true if the method+status combination should be retried
func (p *Policy) IsRetryable(method string, statusCode int) bool {
	return p.RetryableMethods[method] && p.RetryableStatuses[statusCode]
}

func (p *Policy) newBackOff(ctx context.Context) backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = p.InitialBackoff
	bo.MaxInterval = p.MaxBackoff
	bo.Multiplier = p.BackoffMultiplier
	bo.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(bo, uint64(p.MaxRetries)), ctx)
}

// Execute sends req through transport, retrying when allowed. It returns
// the final response (which may itself carry a retryable status once
// retries are exhausted) and the number of attempts made.
func (p *Policy) Execute(ctx context.Context, transport http.RoundTripper, req *http.Request) (*http.Response, int, error) {
	if !p.CanRetry(req) {
		resp, err := p.roundTrip(ctx, transport, req)
		return resp, 1, err
	}

	var (
		attempts int
		lastResp *http.Response
	)
	op := func() error {
		if lastResp != nil {
			drainAndClose(lastResp.Body)
			lastResp = nil
		}
		attempts++

		resp, err := p.roundTrip(ctx, transport, req)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			return err
		}
		if p.RetryableStatuses[resp.StatusCode] {
			lastResp = resp
			return errRetryableStatus
		}
		lastResp = resp
		return nil
	}

	err := backoff.RetryNotify(op, p.newBackOff(ctx), func(err error, wait time.Duration) {
		if p.OnRetry != nil {
			p.OnRetry(err, wait)
		}
	})

	switch {
	case err == nil:
		return lastResp, attempts, nil
	case errors.Is(err, errRetryableStatus) && lastResp != nil:
		// Out of retries; hand the last upstream answer to the client.
		return lastResp, attempts, nil
	default:
		if lastResp != nil {
			drainAndClose(lastResp.Body)
		}
		return nil, attempts, err
	}
}

func (p *Policy) roundTrip(ctx context.Context, transport http.RoundTripper, req *http.Request) (*http.Response, error) {
	if p.PerTryTimeout <= 0 {
		return transport.RoundTrip(req.WithContext(ctx))
	}
	tryCtx, cancel := context.WithTimeout(ctx, p.PerTryTimeout)
	resp, err := transport.RoundTrip(req.WithContext(tryCtx))
	if err != nil {
		cancel()
		return nil, err
	}
	// The per-try deadline also covers streaming the body.
	resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}

func drainAndClose(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, io.LimitReader(body, 64<<10))
	_ = body.Close()
}
