package proxy

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/strayhaven/edge/internal/circuitbreaker"
	edgeerrors "github.com/strayhaven/edge/internal/errors"
	"github.com/strayhaven/edge/internal/retry"
	"github.com/strayhaven/edge/variables"
)

// Error kinds reported to the Recorder.
const (
	KindTimeout     = "timeout"
	KindUnavailable = "unavailable"
	KindBadGateway  = "bad_gateway"
	KindRateLimited = "rate_limited"
)

// Recorder receives upstream outcomes. The legacy forwarder feeds the
// edge_legacy_* metrics through it.
type Recorder interface {
	UpstreamResponse(code int)
	UpstreamError(kind string)
	UpstreamRetry()
}

// Config holds forwarder configuration
type Config struct {
	Name          string // "legacy" or "native"; used for spans and logs
	Transport     http.RoundTripper
	Timeout       time.Duration // whole request, default 30s
	FlushInterval time.Duration // 0 copies without flushing; negative flushes after every write
	Retry         *retry.Policy
	Breaker       *circuitbreaker.Breaker
	Limiter       *rate.Limiter
	Recorder      Recorder
	Logger        *zap.Logger
	Tracer        trace.Tracer
}

// Forwarder sends requests to a single origin and streams the answer back.
type Forwarder struct {
	name          string
	transport     http.RoundTripper
	timeout       time.Duration
	flushInterval time.Duration
	retry         *retry.Policy
	breaker       *circuitbreaker.Breaker
	limiter       *rate.Limiter
	recorder      Recorder
	logger        *zap.Logger
	tracer        trace.Tracer
}

// New creates a new forwarder
func New(cfg Config) *Forwarder {
	f := &Forwarder{
		name:          cfg.Name,
		transport:     cfg.Transport,
		timeout:       cfg.Timeout,
		flushInterval: cfg.FlushInterval,
		retry:         cfg.Retry,
		breaker:       cfg.Breaker,
		limiter:       cfg.Limiter,
		recorder:      cfg.Recorder,
		logger:        cfg.Logger,
		tracer:        cfg.Tracer,
	}
	if f.name == "" {
		f.name = "upstream"
	}
	if f.transport == nil {
		f.transport = http.DefaultTransport
	}
	if f.timeout == 0 {
		f.timeout = 30 * time.Second
	}
	if f.logger == nil {
		f.logger = zap.NewNop()
	}
	if f.tracer == nil {
		f.tracer = otel.Tracer("github.com/strayhaven/edge/internal/proxy")
	}
	if f.retry != nil && f.recorder != nil {
		f.retry.OnRetry = func(error, time.Duration) { f.recorder.UpstreamRetry() }
	}
	return f
}

// Breaker returns the forwarder's circuit breaker, nil when disabled.
func (f *Forwarder) Breaker() *circuitbreaker.Breaker {
	return f.breaker
}

// Handler returns a handler that forwards every request to origin,
// keeping the request path and query unchanged.
func (f *Forwarder) Handler(origin *url.URL) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		target := *origin
		target.Path = r.URL.Path
		target.RawPath = r.URL.RawPath
		target.RawQuery = r.URL.RawQuery
		f.Forward(w, r, &target)
	})
}

// Forward sends r to target (an absolute URL) and copies the response to w.
func (f *Forwarder) Forward(w http.ResponseWriter, r *http.Request, target *url.URL) {
	varCtx := variables.GetFromRequest(r)
	varCtx.UpstreamAddr = target.Host

	ctx := r.Context()
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	ctx, span := f.tracer.Start(ctx, f.name+".forward",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", r.Method),
			attribute.String("server.address", target.Host),
			attribute.String("url.full", target.String()),
		),
	)
	defer span.End()

	if f.limiter != nil && !f.limiter.Allow() {
		span.SetStatus(codes.Error, "rate limited")
		f.fail(w, r, varCtx, KindRateLimited, nil)
		return
	}

	outReq := f.createProxyRequest(ctx, r, target)

	start := time.Now()
	attempts := 1
	resp, err := f.breaker.Execute(func() (*http.Response, error) {
		if f.retry != nil {
			var resp *http.Response
			var err error
			resp, attempts, err = f.retry.Execute(ctx, f.transport, outReq)
			return resp, err
		}
		return f.transport.RoundTrip(outReq)
	})
	varCtx.UpstreamResponseTime = time.Since(start)
	varCtx.Attempts = attempts
	span.SetAttributes(attribute.Int("edge.attempts", attempts))

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if r.Context().Err() != nil {
			// Client went away; nobody is left to answer.
			f.logger.Debug("client closed request",
				zap.String("upstream", f.name),
				zap.String("request_id", varCtx.RequestID),
			)
			return
		}
		f.fail(w, r, varCtx, classifyError(err), err)
		return
	}
	defer resp.Body.Close()

	varCtx.UpstreamStatus = resp.StatusCode
	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))
	if resp.StatusCode >= http.StatusInternalServerError {
		span.SetStatus(codes.Error, http.StatusText(resp.StatusCode))
	}
	if f.recorder != nil {
		f.recorder.UpstreamResponse(resp.StatusCode)
	}

	copyHeaders(w.Header(), resp.Header)
	w.WriteHeader(resp.StatusCode)
	f.copyBody(w, resp)
}

// createProxyRequest builds the outbound request. The caller's headers
// and body are reused; hop-by-hop headers are dropped.
func (f *Forwarder) createProxyRequest(ctx context.Context, r *http.Request, target *url.URL) *http.Request {
	targetURL := *target
	if targetURL.Path == r.URL.Path && targetURL.RawPath == "" {
		targetURL.RawPath = r.URL.RawPath
	}

	outReq := (&http.Request{
		Method:        r.Method,
		URL:           &targetURL,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Body:          r.Body,
		ContentLength: r.ContentLength,
		Host:          target.Host,
		Header:        r.Header.Clone(),
	}).WithContext(ctx)
	if r.ContentLength == 0 {
		outReq.Body = nil
	}
	if outReq.Header == nil {
		outReq.Header = make(http.Header)
	}

	removeHopHeaders(outReq.Header)

	if clientIP, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		if prior := outReq.Header.Values("X-Forwarded-For"); len(prior) > 0 {
			clientIP = strings.Join(prior, ", ") + ", " + clientIP
		}
		outReq.Header.Set("X-Forwarded-For", clientIP)
	}
	if r.TLS != nil {
		outReq.Header.Set("X-Forwarded-Proto", "https")
	} else {
		outReq.Header.Set("X-Forwarded-Proto", "http")
	}
	outReq.Header.Set("X-Forwarded-Host", r.Host)

	if _, ok := outReq.Header["User-Agent"]; !ok {
		// Suppress Go's default User-Agent.
		outReq.Header.Set("User-Agent", "")
	}

	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(outReq.Header))
	return outReq
}

// fail writes the JSON error for kind and reports it.
func (f *Forwarder) fail(w http.ResponseWriter, r *http.Request, varCtx *variables.Context, kind string, err error) {
	if f.recorder != nil {
		f.recorder.UpstreamError(kind)
	}

	var edgeErr *edgeerrors.EdgeError
	switch kind {
	case KindTimeout:
		edgeErr = edgeerrors.ErrGatewayTimeout.WithDetails(f.name + " origin timed out")
	case KindUnavailable:
		edgeErr = edgeerrors.ErrServiceUnavailable.WithDetails(f.name + " origin circuit open")
	case KindRateLimited:
		w.Header().Set("Retry-After", "1")
		edgeErr = edgeerrors.ErrServiceUnavailable.WithDetails(f.name + " origin rate limit exceeded")
	default:
		edgeErr = edgeerrors.ErrBadGateway.WithDetails(f.name + " origin unreachable")
	}
	if varCtx.RequestID != "" {
		edgeErr = edgeErr.WithRequestID(varCtx.RequestID)
	}

	fields := []zap.Field{
		zap.String("upstream", f.name),
		zap.String("kind", kind),
		zap.String("request_id", varCtx.RequestID),
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
	}
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	f.logger.Warn("upstream request failed", fields...)

	edgeErr.WriteJSON(w)
}

// classifyError maps a transport failure to an error kind.
func classifyError(err error) string {
	if errors.Is(err, circuitbreaker.ErrOpen) {
		return KindUnavailable
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}
	return KindBadGateway
}

func copyHeaders(dst, src http.Header) {
	for k, vv := range src {
		dst[k] = append(dst[k][:0:0], vv...)
	}
	removeHopHeaders(dst)
}

// copyBody streams the response body, flushing as configured. Event
// streams are always flushed immediately.
func (f *Forwarder) copyBody(w http.ResponseWriter, resp *http.Response) {
	interval := f.flushInterval
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "text/event-stream") {
		interval = -1
	}

	flusher, ok := w.(http.Flusher)
	if interval == 0 || !ok {
		_, _ = io.Copy(w, resp.Body)
		return
	}

	buf := make([]byte, 32*1024)
	last := time.Now()
	for {
		n, err := resp.Body.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return
			}
			if interval < 0 || time.Since(last) >= interval {
				flusher.Flush()
				last = time.Now()
			}
		}
		if err != nil {
			flusher.Flush()
			return
		}
	}
}

// Hop-by-hop headers that should be removed
var hopHeaders = []string{
	"Connection",
	"Proxy-Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// removeHopHeaders drops the fixed hop-by-hop set plus any header named
// in Connection.
func removeHopHeaders(header http.Header) {
	for _, v := range header.Values("Connection") {
		for _, name := range strings.Split(v, ",") {
			if name = strings.TrimSpace(name); name != "" {
				header.Del(name)
			}
		}
	}
	for _, h := range hopHeaders {
		header.Del(h)
	}
}
