package variables

import (
	"net/http/httptest"
	"testing"
)

func TestAcquireRelease(t *testing.T) {
	r := httptest.NewRequest("GET", "/adopt", nil)
	c := AcquireContext(r)
	if c.Request != r || c.StartTime.IsZero() {
		t.Fatalf("AcquireContext did not initialise: %+v", c)
	}
	c.RequestID = "abc"
	c.Action = "rewrite"
	c.UpstreamStatus = 502
	ReleaseContext(c)

	if c.RequestID != "" || c.Action != "" || c.UpstreamStatus != 0 || c.Request != nil {
		t.Errorf("ReleaseContext left state behind: %+v", c)
	}
	ReleaseContext(nil)
}

func TestGetFromRequest(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)

	fresh := GetFromRequest(r)
	if fresh == nil || fresh.Request != r {
		t.Fatal("expected a fresh context for a bare request")
	}

	c := AcquireContext(r)
	defer ReleaseContext(c)
	r2 := WithContext(r, c)
	if got := GetFromRequest(r2); got != c {
		t.Error("GetFromRequest should return the stored context")
	}
	if FromContext(r.Context()) != nil {
		t.Error("original request must not carry the context")
	}
}

func TestExtractClientIP(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{"xff single", map[string]string{"X-Forwarded-For": "203.0.113.7"}, "10.0.0.1:1234", "203.0.113.7"},
		{"xff chain", map[string]string{"X-Forwarded-For": "203.0.113.7, 10.0.0.2"}, "10.0.0.1:1234", "203.0.113.7"},
		{"x-real-ip", map[string]string{"X-Real-IP": "198.51.100.4"}, "10.0.0.1:1234", "198.51.100.4"},
		{"remote addr", nil, "192.0.2.9:5555", "192.0.2.9"},
		{"remote without port", nil, "192.0.2.9", "192.0.2.9"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/", nil)
			r.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			if got := ExtractClientIP(r); got != tt.want {
				t.Errorf("ExtractClientIP = %q, want %q", got, tt.want)
			}
		})
	}
}
