package config

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/strayhaven/edge/config"
	"github.com/strayhaven/edge/internal/health"
)

var validLogLevels = map[string]bool{
	"": true, "debug": true, "info": true, "warn": true, "error": true,
}

var validLogFormats = map[string]bool{
	"": true, "json": true, "console": true,
}

// validateLegacy checks the legacy origin client settings.
func validateLegacy(lc config.LegacyConfig) []error {
	var errs []error

	if lc.Timeout < 0 {
		errs = append(errs, fmt.Errorf("legacy.timeout must be >= 0"))
	}

	r := lc.Retry
	if r.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("legacy.retry.max_retries must be >= 0"))
	}
	if r.BackoffMultiplier != 0 && r.BackoffMultiplier < 1 {
		errs = append(errs, fmt.Errorf("legacy.retry.backoff_multiplier must be >= 1"))
	}
	if r.MaxBackoff > 0 && r.InitialBackoff > r.MaxBackoff {
		errs = append(errs, fmt.Errorf("legacy.retry.initial_backoff must not exceed max_backoff"))
	}
	for _, s := range r.RetryableStatuses {
		if s < 100 || s > 599 {
			errs = append(errs, fmt.Errorf("legacy.retry.retryable_statuses: invalid status %d", s))
		}
	}
	for _, m := range r.RetryableMethods {
		switch strings.ToUpper(m) {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
		default:
			errs = append(errs, fmt.Errorf("legacy.retry.retryable_methods: %q is not idempotent and bodiless", m))
		}
	}

	cb := lc.CircuitBreaker
	if cb.Enabled {
		if cb.FailureThreshold <= 0 {
			errs = append(errs, fmt.Errorf("legacy.circuit_breaker.failure_threshold must be > 0"))
		}
		if cb.MaxRequests < 0 {
			errs = append(errs, fmt.Errorf("legacy.circuit_breaker.max_requests must be >= 0"))
		}
		if cb.Timeout < 0 || cb.Interval < 0 {
			errs = append(errs, fmt.Errorf("legacy.circuit_breaker: durations must be >= 0"))
		}
	}

	rl := lc.RateLimit
	if rl.RPS < 0 {
		errs = append(errs, fmt.Errorf("legacy.rate_limit.rps must be >= 0"))
	}
	if rl.RPS > 0 && rl.Burst < 0 {
		errs = append(errs, fmt.Errorf("legacy.rate_limit.burst must be >= 0"))
	}

	hc := lc.HealthCheck
	if hc.Enabled {
		if hc.Path != "" && !strings.HasPrefix(hc.Path, "/") {
			errs = append(errs, fmt.Errorf("legacy.health_check.path must start with '/'"))
		}
		if hc.Interval < 0 || hc.Timeout < 0 {
			errs = append(errs, fmt.Errorf("legacy.health_check: durations must be >= 0"))
		}
		for _, s := range hc.ExpectedStatus {
			if _, err := health.ParseStatusRange(s); err != nil {
				errs = append(errs, fmt.Errorf("legacy.health_check.expected_status: %w", err))
			}
		}
	}

	return errs
}

// validateLogging checks level, format and rotation settings.
func validateLogging(lc config.LoggingConfig) []error {
	var errs []error
	if !validLogLevels[lc.Level] {
		errs = append(errs, fmt.Errorf("logging.level: invalid level %q", lc.Level))
	}
	if !validLogFormats[lc.Format] {
		errs = append(errs, fmt.Errorf("logging.format: invalid format %q", lc.Format))
	}
	rot := lc.Rotation
	if rot.MaxSize < 0 || rot.MaxBackups < 0 || rot.MaxAge < 0 {
		errs = append(errs, fmt.Errorf("logging.rotation: values must be >= 0"))
	}
	return errs
}

// validateNative checks static serving options. Route entries are never
// rejected; see Warnings.
func validateNative(nc config.NativeConfig) []error {
	var errs []error
	if c := nc.Compression; c.Enabled {
		if c.Level < -2 || c.Level > 9 {
			errs = append(errs, fmt.Errorf("native.compression.level must be between -2 and 9"))
		}
		if c.MinSize < 0 {
			errs = append(errs, fmt.Errorf("native.compression.min_size must be >= 0"))
		}
	}
	return errs
}
