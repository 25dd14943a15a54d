package health

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Status represents health status
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
	StatusUnknown   Status = "unknown"
)

// CheckResult is a snapshot of the most recent probe.
type CheckResult struct {
	URL       string        `json:"url"`
	Status    Status        `json:"status"`
	Latency   time.Duration `json:"latency_ns"`
	Error     string        `json:"error,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

// Target describes the origin to probe.
type Target struct {
	URL            string // scheme://host of the origin
	Path           string
	Method         string
	Timeout        time.Duration
	Interval       time.Duration
	HealthyAfter   int // consecutive successes needed to be healthy
	UnhealthyAfter int // consecutive failures needed to be unhealthy
	ExpectedStatus []StatusRange
}

// StatusRange represents a range of HTTP status codes.
type StatusRange struct {
	Lo, Hi int
}

// ParseStatusRange parses a status range string like "200", "2xx", "200-299".
func ParseStatusRange(s string) (StatusRange, error) {
	s = strings.TrimSpace(s)
	// Nxx
	if len(s) == 3 && s[1] == 'x' && s[2] == 'x' {
		base := int(s[0]-'0') * 100
		if base < 100 || base > 500 {
			return StatusRange{}, fmt.Errorf("invalid status range %q", s)
		}
		return StatusRange{base, base + 99}, nil
	}
	// N-M
	if lo, hi, ok := strings.Cut(s, "-"); ok {
		l, err1 := strconv.Atoi(lo)
		h, err2 := strconv.Atoi(hi)
		if err1 != nil || err2 != nil || l < 100 || h > 599 || l > h {
			return StatusRange{}, fmt.Errorf("invalid status range %q", s)
		}
		return StatusRange{l, h}, nil
	}
	code, err := strconv.Atoi(s)
	if err != nil || code < 100 || code > 599 {
		return StatusRange{}, fmt.Errorf("invalid status code %q", s)
	}
	return StatusRange{code, code}, nil
}

// ParseStatusRanges parses every entry, defaulting to 200-399 when empty.
func ParseStatusRanges(specs []string) ([]StatusRange, error) {
	if len(specs) == 0 {
		return []StatusRange{{200, 399}}, nil
	}
	out := make([]StatusRange, 0, len(specs))
	for _, s := range specs {
		r, err := ParseStatusRange(s)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

func matchStatus(code int, ranges []StatusRange) bool {
	for _, r := range ranges {
		if code >= r.Lo && code <= r.Hi {
			return true
		}
	}
	return false
}

// Checker actively probes a single origin and tracks its status with
// hysteresis.
type Checker struct {
	client   *http.Client
	target   Target
	onChange func(Status)

	mu              sync.RWMutex
	status          Status
	lastCheck       time.Time
	lastError       error
	latency         time.Duration
	consecutivePass int
	consecutiveFail int
}

// NewChecker creates a checker for t. onChange, if set, is called
// synchronously whenever the status flips.
func NewChecker(t Target, client *http.Client, onChange func(Status)) *Checker {
	applyDefaults(&t)
	if client == nil {
		client = &http.Client{}
	}
	return &Checker{
		client:   client,
		target:   t,
		onChange: onChange,
		status:   StatusUnknown,
	}
}

func applyDefaults(t *Target) {
	if t.Path == "" {
		t.Path = "/"
	}
	if t.Method == "" {
		t.Method = http.MethodGet
	}
	if t.Timeout == 0 {
		t.Timeout = 5 * time.Second
	}
	if t.Interval == 0 {
		t.Interval = 10 * time.Second
	}
	if len(t.ExpectedStatus) == 0 {
		t.ExpectedStatus = []StatusRange{{200, 399}}
	}
	if t.HealthyAfter <= 0 {
		t.HealthyAfter = 2
	}
	if t.UnhealthyAfter <= 0 {
		t.UnhealthyAfter = 3
	}
}

// Target returns the effective probe settings.
func (c *Checker) Target() Target {
	return c.target
}

// Run probes immediately and then every Interval until ctx is done.
func (c *Checker) Run(ctx context.Context) error {
	c.Check(ctx)

	ticker := time.NewTicker(c.target.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			c.Check(ctx)
		}
	}
}

// Check performs one probe and returns the resulting snapshot.
func (c *Checker) Check(ctx context.Context) CheckResult {
	healthy, latency, err := c.probe(ctx)
	if ctx.Err() != nil {
		// Shutting down; a cancelled probe says nothing about the origin.
		return c.Result()
	}
	c.update(healthy, latency, err)
	return c.Result()
}

func (c *Checker) probe(ctx context.Context) (bool, time.Duration, error) {
	ctx, cancel := context.WithTimeout(ctx, c.target.Timeout)
	defer cancel()

	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, c.target.Method, strings.TrimSuffix(c.target.URL, "/")+c.target.Path, nil)
	if err != nil {
		return false, 0, err
	}
	req.Header.Set("User-Agent", "strayhaven-edge-health/1")

	resp, err := c.client.Do(req)
	latency := time.Since(start)
	if err != nil {
		return false, latency, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if !matchStatus(resp.StatusCode, c.target.ExpectedStatus) {
		return false, latency, fmt.Errorf("unhealthy status code: %d", resp.StatusCode)
	}
	return true, latency, nil
}

// update applies threshold logic to a probe outcome.
func (c *Checker) update(healthy bool, latency time.Duration, err error) {
	c.mu.Lock()
	c.lastCheck = time.Now()
	c.lastError = err
	c.latency = latency

	old := c.status
	if healthy {
		c.consecutiveFail = 0
		c.consecutivePass++
		if c.consecutivePass >= c.target.HealthyAfter {
			c.status = StatusHealthy
		}
	} else {
		c.consecutivePass = 0
		c.consecutiveFail++
		if c.consecutiveFail >= c.target.UnhealthyAfter {
			c.status = StatusUnhealthy
		}
	}
	changed := old != c.status
	status := c.status
	c.mu.Unlock()

	if changed && c.onChange != nil {
		c.onChange(status)
	}
}

// Status returns the current status.
func (c *Checker) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

// Result returns the current snapshot.
func (c *Checker) Result() CheckResult {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r := CheckResult{
		URL:       c.target.URL + c.target.Path,
		Status:    c.status,
		Latency:   c.latency,
		Timestamp: c.lastCheck,
	}
	if c.lastError != nil {
		r.Error = c.lastError.Error()
	}
	return r
}
