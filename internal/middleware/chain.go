package middleware

import "net/http"

// Middleware wraps an http.Handler.
type Middleware func(http.Handler) http.Handler

// Stack is the ordered middleware list in front of the dispatcher. The
// first entry sees the request first.
type Stack []Middleware

// With returns a copy of s with ms appended. Nil entries are skipped.
func (s Stack) With(ms ...Middleware) Stack {
	out := make(Stack, 0, len(s)+len(ms))
	out = append(out, s...)
	for _, m := range ms {
		if m != nil {
			out = append(out, m)
		}
	}
	return out
}

// When appends m only if enabled, so optional layers such as tracing read
// inline with the rest of the stack.
func (s Stack) When(enabled bool, m Middleware) Stack {
	if !enabled {
		return s
	}
	return s.With(m)
}

// Wrap returns h behind every middleware in s. A nil h answers 404.
func (s Stack) Wrap(h http.Handler) http.Handler {
	if h == nil {
		h = http.NotFoundHandler()
	}
	for i := len(s) - 1; i >= 0; i-- {
		h = s[i](h)
	}
	return h
}
