// Package variables carries per-request state between the middleware
// chain, the dispatcher and the forwarders.
package variables

import (
	"context"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"
)

// Context is the per-request record filled in as the request moves
// through the edge and read back by the access log.
type Context struct {
	Request   *http.Request
	RequestID string
	TraceID   string
	StartTime time.Time

	// Classification
	Action string // "continue" or "rewrite"; "bypass" when classification was skipped
	Reason string
	Target string // rewritten legacy URL, empty for native requests

	// Upstream
	UpstreamAddr         string
	UpstreamStatus       int
	UpstreamResponseTime time.Duration
	Attempts             int

	// Response
	Status        int
	BodyBytesSent int64
}

var contextPool = sync.Pool{
	New: func() any { return &Context{} },
}

// AcquireContext gets a Context from the pool and initialises it for r.
func AcquireContext(r *http.Request) *Context {
	c := contextPool.Get().(*Context)
	c.Request = r
	c.StartTime = time.Now()
	return c
}

// ReleaseContext zeroes c and returns it to the pool.
// The caller must ensure no goroutine reads from c after this call.
func ReleaseContext(c *Context) {
	if c == nil {
		return
	}
	*c = Context{}
	contextPool.Put(c)
}

// RequestContextKey is the context key for storing variable context
type RequestContextKey struct{}

// WithContext returns r carrying c.
func WithContext(r *http.Request, c *Context) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), RequestContextKey{}, c))
}

// FromContext returns the Context stored in ctx, or nil.
func FromContext(ctx context.Context) *Context {
	c, _ := ctx.Value(RequestContextKey{}).(*Context)
	return c
}

// GetFromRequest extracts the variable context from an HTTP request.
// Requests that did not pass through the request-id middleware get a
// fresh, unpooled Context.
func GetFromRequest(r *http.Request) *Context {
	if c := FromContext(r.Context()); c != nil {
		return c
	}
	return &Context{Request: r, StartTime: time.Now()}
}

// ExtractClientIP returns the left-most X-Forwarded-For entry, then
// X-Real-IP, then the peer address.
func ExtractClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if i := strings.IndexByte(xff, ','); i > 0 {
			return strings.TrimSpace(xff[:i])
		}
		return strings.TrimSpace(xff)
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
