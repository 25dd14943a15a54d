package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// EdgeError is an error rendered to clients as a JSON body.
type EdgeError struct {
	Code       int    `json:"code"`
	Message    string `json:"message"`
	Details    string `json:"details,omitempty"`
	RequestID  string `json:"request_id,omitempty"`
	underlying error
}

func (e *EdgeError) Error() string {
	if e.underlying != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.underlying)
	}
	return e.Message
}

func (e *EdgeError) Unwrap() error {
	return e.underlying
}

// WriteJSON writes the error as JSON to the response.
// Base singletons use pre-serialized bytes.
func (e *EdgeError) WriteJSON(w http.ResponseWriter) {
	h := w.Header()
	h.Set("Content-Type", "application/json")
	h.Set("Cache-Control", "no-store")
	w.WriteHeader(e.Code)
	if pre, ok := preSerialized[e]; ok {
		_, _ = w.Write(pre)
		return
	}
	_ = json.NewEncoder(w).Encode(e)
}

// Common errors
var (
	ErrNotFound = &EdgeError{
		Code:    http.StatusNotFound,
		Message: "Not Found",
	}

	ErrMethodNotAllowed = &EdgeError{
		Code:    http.StatusMethodNotAllowed,
		Message: "Method Not Allowed",
	}

	ErrBadRequest = &EdgeError{
		Code:    http.StatusBadRequest,
		Message: "Bad Request",
	}

	ErrTooManyRequests = &EdgeError{
		Code:    http.StatusTooManyRequests,
		Message: "Too Many Requests",
	}

	ErrInternalServer = &EdgeError{
		Code:    http.StatusInternalServerError,
		Message: "Internal Server Error",
	}

	ErrBadGateway = &EdgeError{
		Code:    http.StatusBadGateway,
		Message: "Bad Gateway",
	}

	ErrServiceUnavailable = &EdgeError{
		Code:    http.StatusServiceUnavailable,
		Message: "Service Unavailable",
	}

	ErrGatewayTimeout = &EdgeError{
		Code:    http.StatusGatewayTimeout,
		Message: "Gateway Timeout",
	}
)

var preSerialized map[*EdgeError][]byte

func init() {
	bases := []*EdgeError{
		ErrNotFound, ErrMethodNotAllowed, ErrBadRequest, ErrTooManyRequests,
		ErrInternalServer, ErrBadGateway, ErrServiceUnavailable, ErrGatewayTimeout,
	}
	preSerialized = make(map[*EdgeError][]byte, len(bases))
	for _, e := range bases {
		b, _ := json.Marshal(e)
		b = append(b, '\n') // match json.Encoder behavior
		preSerialized[e] = b
	}
}

// New creates a new EdgeError
func New(code int, message string) *EdgeError {
	return &EdgeError{
		Code:    code,
		Message: message,
	}
}

// Wrap attaches err as the cause of a client-facing error.
func Wrap(err error, code int, message string) *EdgeError {
	return &EdgeError{
		Code:       code,
		Message:    message,
		underlying: err,
	}
}

// WithDetails returns a copy carrying details.
func (e *EdgeError) WithDetails(details string) *EdgeError {
	c := *e
	c.Details = details
	return &c
}

// WithRequestID returns a copy carrying the request ID.
func (e *EdgeError) WithRequestID(requestID string) *EdgeError {
	c := *e
	c.RequestID = requestID
	return &c
}

// WithCause returns a copy wrapping err.
func (e *EdgeError) WithCause(err error) *EdgeError {
	c := *e
	c.underlying = err
	return &c
}

// AsEdgeError finds an EdgeError anywhere in err's chain.
func AsEdgeError(err error) (*EdgeError, bool) {
	var ee *EdgeError
	if errors.As(err, &ee) {
		return ee, true
	}
	return nil, false
}
