package circuitbreaker

import (
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/strayhaven/edge/config"
)

// State mirrors gobreaker's states; the numeric values are exported as the
// edge_legacy_circuit_state gauge.
type State = gobreaker.State

const (
	StateClosed   = gobreaker.StateClosed
	StateHalfOpen = gobreaker.StateHalfOpen
	StateOpen     = gobreaker.StateOpen
)

// ErrOpen is returned without contacting the upstream while the breaker
// rejects requests.
var ErrOpen = errors.New("circuit breaker is open")

// errServerError marks a 5xx response so gobreaker counts it as a failure.
var errServerError = errors.New("upstream server error")

// Breaker guards one upstream. A nil *Breaker lets everything through.
type Breaker struct {
	cb       *gobreaker.CircuitBreaker[*http.Response]
	rejected atomic.Int64
	cfg      config.CircuitBreakerConfig
}

// New creates a breaker named name. onChange is called on every state
// transition.
func New(name string, cfg config.CircuitBreakerConfig, onChange func(from, to State)) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.MaxRequests <= 0 {
		cfg.MaxRequests = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	threshold := uint32(cfg.FailureThreshold)
	st := gobreaker.Settings{
		Name:        name,
		MaxRequests: uint32(cfg.MaxRequests),
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
	}
	if onChange != nil {
		st.OnStateChange = func(_ string, from, to gobreaker.State) {
			onChange(from, to)
		}
	}

	return &Breaker{
		cb:  gobreaker.NewCircuitBreaker[*http.Response](st),
		cfg: cfg,
	}
}

// Execute runs fn through the breaker. Transport errors and 5xx responses
// count as failures; a 5xx response is still returned to the caller.
func (b *Breaker) Execute(fn func() (*http.Response, error)) (*http.Response, error) {
	if b == nil {
		return fn()
	}

	resp, err := b.cb.Execute(func() (*http.Response, error) {
		resp, err := fn()
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= http.StatusInternalServerError {
			return resp, errServerError
		}
		return resp, nil
	})

	switch {
	case errors.Is(err, errServerError):
		return resp, nil
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		b.rejected.Add(1)
		return nil, ErrOpen
	}
	return resp, err
}

// State returns the current state, StateClosed for a nil breaker.
func (b *Breaker) State() State {
	if b == nil {
		return StateClosed
	}
	return b.cb.State()
}

// Snapshot is a point-in-time view of a circuit breaker
type Snapshot struct {
	Enabled             bool   `json:"enabled"`
	State               string `json:"state"`
	Requests            uint32 `json:"requests"`
	TotalFailures       uint32 `json:"total_failures"`
	ConsecutiveFailures uint32 `json:"consecutive_failures"`
	FailureThreshold    int    `json:"failure_threshold,omitempty"`
	Rejected            int64  `json:"rejected"`
}

// Snapshot returns the breaker's counters for the admin API.
func (b *Breaker) Snapshot() Snapshot {
	if b == nil {
		return Snapshot{State: StateClosed.String()}
	}
	c := b.cb.Counts()
	return Snapshot{
		Enabled:             true,
		State:               b.cb.State().String(),
		Requests:            c.Requests,
		TotalFailures:       c.TotalFailures,
		ConsecutiveFailures: c.ConsecutiveFailures,
		FailureThreshold:    b.cfg.FailureThreshold,
		Rejected:            b.rejected.Load(),
	}
}
