package retry

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/strayhaven/edge/config"
)

func fastPolicy(maxRetries int) *Policy {
	return NewPolicy(config.RetryConfig{
		MaxRetries:     maxRetries,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
	})
}

// statusSequence replies with codes in order, repeating the last one.
func statusSequence(t *testing.T, codes ...int) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := int(hits.Add(1)) - 1
		if n >= len(codes) {
			n = len(codes) - 1
		}
		w.WriteHeader(codes[n])
		_, _ = io.WriteString(w, http.StatusText(codes[n]))
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func TestNewPolicyDefaults(t *testing.T) {
	p := NewPolicy(config.RetryConfig{RetryableMethods: []string{"get"}})
	if p.InitialBackoff != 100*time.Millisecond || p.MaxBackoff != 2*time.Second || p.BackoffMultiplier != 2.0 {
		t.Errorf("unexpected backoff defaults %+v", p)
	}
	for _, s := range DefaultRetryableStatuses {
		if !p.RetryableStatuses[s] {
			t.Errorf("status %d should be retryable by default", s)
		}
	}
	if !p.RetryableMethods["GET"] {
		t.Error("configured methods should be upper-cased")
	}
}

func TestCanRetry(t *testing.T) {
	p := fastPolicy(2)
	tests := []struct {
		name string
		req  *http.Request
		want bool
	}{
		{"get", mustRequest(t, "GET", nil), true},
		{"head", mustRequest(t, "HEAD", nil), true},
		{"post", mustRequest(t, "POST", nil), false},
		{"get with body", mustRequest(t, "GET", strings.NewReader("x")), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := p.CanRetry(tt.req); got != tt.want {
				t.Errorf("CanRetry = %v, want %v", got, tt.want)
			}
		})
	}
	if fastPolicy(0).CanRetry(mustRequest(t, "GET", nil)) {
		t.Error("zero max retries should disable retrying")
	}
}

func TestExecuteRetriesRetryableStatus(t *testing.T) {
	srv, hits := statusSequence(t, 503, 502, 200)
	p := fastPolicy(3)
	var notified int
	p.OnRetry = func(error, time.Duration) { notified++ }

	resp, attempts, err := p.Execute(context.Background(), http.DefaultTransport, mustRequest(t, "GET", nil, srv.URL))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	if attempts != 3 || hits.Load() != 3 {
		t.Errorf("attempts = %d, hits = %d, want 3", attempts, hits.Load())
	}
	if notified != 2 {
		t.Errorf("OnRetry called %d times, want 2", notified)
	}
}

func TestExecuteExhaustedReturnsLastResponse(t *testing.T) {
	srv, hits := statusSequence(t, 502)
	resp, attempts, err := fastPolicy(2).Execute(context.Background(), http.DefaultTransport, mustRequest(t, "GET", nil, srv.URL))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 502 {
		t.Errorf("status = %d, want 502", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "Bad Gateway" {
		t.Errorf("body = %q, final response body should be readable", body)
	}
	if attempts != 3 || hits.Load() != 3 {
		t.Errorf("attempts = %d, hits = %d, want 3", attempts, hits.Load())
	}
}

func TestExecuteDoesNotRetryPost(t *testing.T) {
	srv, hits := statusSequence(t, 503, 200)
	resp, attempts, err := fastPolicy(3).Execute(context.Background(), http.DefaultTransport, mustRequest(t, "POST", nil, srv.URL))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != 503 || attempts != 1 || hits.Load() != 1 {
		t.Errorf("status=%d attempts=%d hits=%d, want single 503", resp.StatusCode, attempts, hits.Load())
	}
}

func TestExecuteNonRetryableStatus(t *testing.T) {
	srv, hits := statusSequence(t, 500, 200)
	resp, _, err := fastPolicy(3).Execute(context.Background(), http.DefaultTransport, mustRequest(t, "GET", nil, srv.URL))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != 500 || hits.Load() != 1 {
		t.Errorf("500 is not retryable by default: status=%d hits=%d", resp.StatusCode, hits.Load())
	}
}

type failingTransport struct {
	calls atomic.Int32
	err   error
}

func (f *failingTransport) RoundTrip(*http.Request) (*http.Response, error) {
	f.calls.Add(1)
	return nil, f.err
}

func TestExecuteTransportErrors(t *testing.T) {
	ft := &failingTransport{err: errors.New("connection refused")}
	_, attempts, err := fastPolicy(2).Execute(context.Background(), ft, mustRequest(t, "GET", nil))
	if err == nil || !strings.Contains(err.Error(), "connection refused") {
		t.Fatalf("err = %v, want connection refused", err)
	}
	if attempts != 3 || ft.calls.Load() != 3 {
		t.Errorf("attempts = %d, calls = %d, want 3", attempts, ft.calls.Load())
	}
}

func TestExecuteStopsOnCancelledContext(t *testing.T) {
	ft := &failingTransport{err: errors.New("connection reset")}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := fastPolicy(5).Execute(ctx, ft, mustRequest(t, "GET", nil))
	if err == nil {
		t.Fatal("expected error")
	}
	if ft.calls.Load() > 1 {
		t.Errorf("calls = %d, cancelled context should stop retries", ft.calls.Load())
	}
}

func TestPerTryTimeout(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			select {
			case <-r.Context().Done():
			case <-time.After(2 * time.Second):
			}
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p := fastPolicy(1)
	p.PerTryTimeout = 50 * time.Millisecond
	resp, attempts, err := p.Execute(context.Background(), http.DefaultTransport, mustRequest(t, "GET", nil, srv.URL))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 || attempts != 2 {
		t.Errorf("status=%d attempts=%d, want 200 after 2 attempts", resp.StatusCode, attempts)
	}
}

func mustRequest(t *testing.T, method string, body io.Reader, url ...string) *http.Request {
	t.Helper()
	target := "http://legacy.invalid/"
	if len(url) > 0 {
		target = url[0]
	}
	req, err := http.NewRequest(method, target, body)
	if err != nil {
		t.Fatal(err)
	}
	return req
}
