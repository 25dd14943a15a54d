package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/strayhaven/edge/variables"
)

func init() {
	// Batch crypto/rand reads into a pool to avoid a syscall per UUID.
	uuid.EnableRandPool()
}

// RequestIDHeader carries the request ID in both directions and to the
// upstream.
const RequestIDHeader = "X-Request-ID"

// maxRequestIDLen bounds client-supplied IDs.
const maxRequestIDLen = 128

// RequestIDConfig configures the request ID middleware
type RequestIDConfig struct {
	Header      string
	Generator   func() string
	TrustHeader bool // reuse a well-formed incoming ID
}

// DefaultRequestIDConfig provides default request ID settings
var DefaultRequestIDConfig = RequestIDConfig{
	Header:      RequestIDHeader,
	Generator:   func() string { return uuid.New().String() },
	TrustHeader: true,
}

// RequestID creates a request ID middleware with default config
func RequestID() Middleware {
	return RequestIDWithConfig(DefaultRequestIDConfig)
}

// RequestIDWithConfig assigns each request an ID and a pooled
// variables.Context that lives until the handler returns.
func RequestIDWithConfig(cfg RequestIDConfig) Middleware {
	if cfg.Header == "" {
		cfg.Header = RequestIDHeader
	}
	if cfg.Generator == nil {
		cfg.Generator = DefaultRequestIDConfig.Generator
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var requestID string
			if cfg.TrustHeader {
				requestID = r.Header.Get(cfg.Header)
				if !validRequestID(requestID) {
					requestID = ""
				}
			}
			if requestID == "" {
				requestID = cfg.Generator()
			}

			r.Header.Set(cfg.Header, requestID)
			w.Header().Set(cfg.Header, requestID)

			varCtx := variables.AcquireContext(r)
			varCtx.RequestID = requestID
			defer variables.ReleaseContext(varCtx)

			next.ServeHTTP(w, variables.WithContext(r, varCtx))
		})
	}
}

func validRequestID(id string) bool {
	if id == "" || len(id) > maxRequestIDLen {
		return false
	}
	for i := 0; i < len(id); i++ {
		c := id[i]
		if c < 0x21 || c > 0x7e {
			return false
		}
	}
	return true
}

// GetRequestID extracts the request ID from the request context
func GetRequestID(r *http.Request) string {
	if c := variables.FromContext(r.Context()); c != nil {
		return c.RequestID
	}
	return ""
}
