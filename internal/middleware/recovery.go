package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"go.uber.org/zap"

	"github.com/strayhaven/edge/internal/errors"
)

// Recovery turns a panic in the wrapped handler into a 500 JSON response.
// http.ErrAbortHandler is re-raised so net/http can abort the connection.
func Recovery(logger *zap.Logger) Middleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}

				// Recovery sits outside the request-id middleware, so the ID
				// is only visible on the response headers.
				requestID := w.Header().Get(RequestIDHeader)
				logger.Error("panic recovered",
					zap.Any("error", rec),
					zap.String("request_id", requestID),
					zap.String("path", r.URL.Path),
					zap.ByteString("stack", debug.Stack()),
				)

				edgeErr := errors.ErrInternalServer.WithDetails(fmt.Sprintf("panic: %v", rec))
				if requestID != "" {
					edgeErr = edgeErr.WithRequestID(requestID)
				}
				edgeErr.WriteJSON(w)
			}()

			next.ServeHTTP(w, r)
		})
	}
}
