package proxy

import (
	"math"

	"golang.org/x/time/rate"

	"github.com/strayhaven/edge/config"
)

// NewLimiter returns a token bucket for cfg, or nil when RPS is zero.
// A zero burst defaults to one second's worth of tokens.
func NewLimiter(cfg config.RateLimitConfig) *rate.Limiter {
	if cfg.RPS <= 0 {
		return nil
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = int(math.Ceil(cfg.RPS))
	}
	return rate.NewLimiter(rate.Limit(cfg.RPS), burst)
}
