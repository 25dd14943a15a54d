// Package edge assembles the classifier, forwarders, native handler and
// observability into the public and admin HTTP handlers.
package edge

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/strayhaven/edge/config"
	"github.com/strayhaven/edge/internal/circuitbreaker"
	"github.com/strayhaven/edge/internal/health"
	"github.com/strayhaven/edge/internal/metrics"
	"github.com/strayhaven/edge/internal/middleware"
	"github.com/strayhaven/edge/internal/native"
	"github.com/strayhaven/edge/internal/proxy"
	"github.com/strayhaven/edge/internal/retry"
	"github.com/strayhaven/edge/internal/routing"
	"github.com/strayhaven/edge/internal/tracing"
	"github.com/strayhaven/edge/variables"
)

// Edge holds every component built from one configuration.
type Edge struct {
	config    *config.Config
	logger    *zap.Logger
	startTime time.Time

	classifier *routing.Classifier
	bypass     *routing.GlobSet
	legacy     *proxy.Forwarder // nil in pass-through-only mode
	native     *native.Handler
	checker    *health.Checker // nil unless legacy health checks are enabled
	metrics    *metrics.Collector
	tracer     *tracing.Tracer

	transports []*http.Transport
}

// New creates an Edge from a validated configuration.
func New(cfg *config.Config, logger *zap.Logger) (*Edge, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Edge{
		config:    cfg,
		logger:    logger,
		startTime: time.Now(),
		metrics:   metrics.NewCollector(),
	}

	classifier, err := routing.NewClassifier(routing.Config{
		LegacyOrigin: cfg.Legacy.Origin,
		NativeRoutes: cfg.Native.Routes,
		Passthrough:  cfg.Passthrough.Patterns,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build classifier: %w", err)
	}
	e.classifier = classifier

	if e.bypass, err = routing.NewGlobSet(cfg.Passthrough.Bypass); err != nil {
		return nil, fmt.Errorf("passthrough.bypass: %w", err)
	}

	if e.tracer, err = tracing.New(cfg.Tracing); err != nil {
		return nil, fmt.Errorf("failed to initialize tracing: %w", err)
	}

	if err := e.initLegacy(); err != nil {
		return nil, fmt.Errorf("failed to initialize legacy origin: %w", err)
	}
	if err := e.initNative(); err != nil {
		return nil, fmt.Errorf("failed to initialize native handler: %w", err)
	}

	return e, nil
}

func (e *Edge) initLegacy() error {
	origin := e.classifier.Origin()
	if origin == nil {
		return nil
	}
	lc := e.config.Legacy

	transport, err := proxy.NewTransport(lc.Transport)
	if err != nil {
		return err
	}
	e.transports = append(e.transports, transport)

	var breaker *circuitbreaker.Breaker
	if lc.CircuitBreaker.Enabled {
		breaker = circuitbreaker.New("legacy", lc.CircuitBreaker, func(from, to circuitbreaker.State) {
			e.metrics.SetCircuitState(to)
			e.logger.Warn("legacy circuit breaker state changed",
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		})
	}

	var policy *retry.Policy
	if lc.Retry.MaxRetries > 0 {
		policy = retry.NewPolicy(lc.Retry)
	}

	e.legacy = proxy.New(proxy.Config{
		Name:      "legacy",
		Transport: transport,
		Timeout:   lc.Timeout,
		Retry:     policy,
		Breaker:   breaker,
		Limiter:   proxy.NewLimiter(lc.RateLimit),
		Recorder:  e.metrics,
		Logger:    e.logger,
	})

	hc := lc.HealthCheck
	if !hc.Enabled {
		return nil
	}
	ranges, err := health.ParseStatusRanges(hc.ExpectedStatus)
	if err != nil {
		return fmt.Errorf("health_check: %w", err)
	}
	e.checker = health.NewChecker(health.Target{
		URL:            origin.String(),
		Path:           hc.Path,
		Method:         hc.Method,
		Timeout:        hc.Timeout,
		Interval:       hc.Interval,
		HealthyAfter:   hc.HealthyAfter,
		UnhealthyAfter: hc.UnhealthyAfter,
		ExpectedStatus: ranges,
	}, &http.Client{Transport: transport}, func(s health.Status) {
		e.metrics.SetLegacyHealth(s)
		if s == health.StatusHealthy {
			e.logger.Info("legacy origin healthy", zap.String("origin", origin.String()))
			return
		}
		e.logger.Warn("legacy origin unhealthy", zap.String("origin", origin.String()))
	})
	return nil
}

func (e *Edge) initNative() error {
	nc := e.config.Native

	var forwarder *proxy.Forwarder
	if nc.Upstream != "" {
		transport, err := proxy.NewTransport(nc.Transport)
		if err != nil {
			return err
		}
		e.transports = append(e.transports, transport)
		forwarder = proxy.New(proxy.Config{
			Name:      "native",
			Transport: transport,
			Timeout:   nc.Timeout,
			Logger:    e.logger,
		})
	}

	h, err := native.New(nc, forwarder)
	if err != nil {
		return err
	}
	e.native = h
	return nil
}

// Handler returns the public handler with the full middleware chain.
func (e *Edge) Handler() http.Handler {
	accessLog := middleware.AccessLog(middleware.AccessLogConfig{
		Logger: e.logger.Named("access"),
		OnComplete: func(c *variables.Context, elapsed time.Duration) {
			e.metrics.RecordRequest(c.Action, c.Reason, elapsed)
		},
	})
	stack := middleware.Stack{
		middleware.Recovery(e.logger),
		middleware.RequestID(),
	}.When(e.tracer.Enabled(), e.tracer.Middleware()).With(accessLog)

	return stack.Wrap(NewDispatcher(e.classifier, e.bypass, e.native, e.legacy))
}

// Classifier returns the request classifier.
func (e *Edge) Classifier() *routing.Classifier {
	return e.classifier
}

// HealthChecker returns the legacy health checker, nil when disabled.
func (e *Edge) HealthChecker() *health.Checker {
	return e.checker
}

// Metrics returns the Prometheus collector.
func (e *Edge) Metrics() *metrics.Collector {
	return e.metrics
}

// Close flushes traces and releases idle upstream connections.
func (e *Edge) Close(ctx context.Context) error {
	for _, t := range e.transports {
		t.CloseIdleConnections()
	}
	return e.tracer.Shutdown(ctx)
}
