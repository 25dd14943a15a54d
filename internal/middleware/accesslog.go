package middleware

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/strayhaven/edge/variables"
)

// AccessLogConfig configures the access log middleware
type AccessLogConfig struct {
	Logger    *zap.Logger
	SkipPaths []string
	// OnComplete runs after every request, logged or not and including
	// ones that panicked, with the filled variables.Context. The edge uses
	// it to record request metrics.
	OnComplete func(c *variables.Context, elapsed time.Duration)
}

// AccessLog logs one structured line per request, including the
// classification decision recorded by the dispatcher.
func AccessLog(cfg AccessLogConfig) Middleware {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	skip := make(map[string]bool, len(cfg.SkipPaths))
	for _, p := range cfg.SkipPaths {
		skip[p] = true
	}

	finish := cfg.finisher(logger, skip)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := acquireResponseWriter(w)
			panicked := true
			defer func() {
				status := rw.status
				if panicked && !rw.wroteHeader {
					// Recovery answers further out.
					status = http.StatusInternalServerError
				}
				finish(r, rw, status, time.Since(start))
				releaseResponseWriter(rw)
			}()

			next.ServeHTTP(rw, r)
			panicked = false
		})
	}
}

func (cfg AccessLogConfig) finisher(logger *zap.Logger, skip map[string]bool) func(*http.Request, *responseWriter, int, time.Duration) {
	return func(r *http.Request, rw *responseWriter, status int, elapsed time.Duration) {
		varCtx := variables.GetFromRequest(r)
		varCtx.Status = status
		varCtx.BodyBytesSent = rw.bytes

		if cfg.OnComplete != nil {
			cfg.OnComplete(varCtx, elapsed)
		}
		if skip[r.URL.Path] {
			return
		}

		var fields [20]zap.Field
		n := 0
		add := func(f zap.Field) { fields[n] = f; n++ }

		add(zap.String("request_id", varCtx.RequestID))
		add(zap.String("remote_addr", variables.ExtractClientIP(r)))
		add(zap.String("method", r.Method))
		add(zap.String("path", r.URL.Path))
		add(zap.Int("status", status))
		add(zap.Int64("body_bytes", rw.bytes))
		add(zap.Duration("duration", elapsed))
		if r.URL.RawQuery != "" {
			add(zap.String("query", r.URL.RawQuery))
		}
		if varCtx.Action != "" {
			add(zap.String("action", varCtx.Action))
		}
		if varCtx.Reason != "" {
			add(zap.String("reason", varCtx.Reason))
		}
		if varCtx.Target != "" {
			add(zap.String("target", varCtx.Target))
		}
		if varCtx.UpstreamAddr != "" {
			add(zap.String("upstream_addr", varCtx.UpstreamAddr))
			add(zap.Int("upstream_status", varCtx.UpstreamStatus))
			add(zap.Duration("upstream_duration", varCtx.UpstreamResponseTime))
		}
		if varCtx.Attempts > 1 {
			add(zap.Int("attempts", varCtx.Attempts))
		}
		if varCtx.TraceID != "" {
			add(zap.String("trace_id", varCtx.TraceID))
		}
		if ua := r.UserAgent(); ua != "" {
			add(zap.String("user_agent", ua))
		}

		logger.Info("HTTP request", fields[:n]...)
	}
}
