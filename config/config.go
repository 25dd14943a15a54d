package config

import (
	"time"
)

// Config represents the complete edge configuration
type Config struct {
	Listener    ListenerConfig    `yaml:"listener"`
	Legacy      LegacyConfig      `yaml:"legacy"`
	Native      NativeConfig      `yaml:"native"`
	Passthrough PassthroughConfig `yaml:"passthrough"`
	Logging     LoggingConfig     `yaml:"logging"`
	Admin       AdminConfig       `yaml:"admin"`
	Tracing     TracingConfig     `yaml:"tracing"`
	Shutdown    ShutdownConfig    `yaml:"shutdown"`
}

// ListenerConfig defines the public HTTP listener
type ListenerConfig struct {
	Address           string        `yaml:"address"` // e.g., ":8080"
	TLS               TLSConfig     `yaml:"tls"`
	ReadTimeout       time.Duration `yaml:"read_timeout"`
	WriteTimeout      time.Duration `yaml:"write_timeout"`
	IdleTimeout       time.Duration `yaml:"idle_timeout"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"`
	MaxHeaderBytes    int           `yaml:"max_header_bytes"`
}

// TLSConfig defines TLS settings for the listener
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// LegacyConfig describes the legacy origin that still serves non-native paths.
// An empty Origin puts the edge in pass-through-only mode.
type LegacyConfig struct {
	Origin         string               `yaml:"origin" redact:"url"`
	Timeout        time.Duration        `yaml:"timeout"` // whole-request timeout (default 30s)
	Transport      TransportConfig      `yaml:"transport"`
	Retry          RetryConfig          `yaml:"retry"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
	RateLimit      RateLimitConfig      `yaml:"rate_limit"`
	HealthCheck    HealthCheckConfig    `yaml:"health_check"`
}

// NativeConfig describes where natively-classified requests go.
// Upstream takes precedence over Root.
type NativeConfig struct {
	Routes       []string          `yaml:"routes"`                // added to the built-in native routes
	Upstream     string            `yaml:"upstream" redact:"url"` // new application server, e.g. http://127.0.0.1:3000
	Root         string            `yaml:"root"`                  // static export directory
	Index        string            `yaml:"index"`                 // default "index.html"
	CacheControl string            `yaml:"cache_control"`         // Cache-Control for static files
	Timeout      time.Duration     `yaml:"timeout"`
	Transport    TransportConfig   `yaml:"transport"`
	Compression  CompressionConfig `yaml:"compression"` // static mode only
}

// CompressionConfig controls gzip for files served from native.root.
type CompressionConfig struct {
	Enabled bool `yaml:"enabled"`
	Level   int  `yaml:"level"`    // 1-9, -2 huffman only; 0 uses the gzip default
	MinSize int  `yaml:"min_size"` // bytes; 0 uses 1024
}

// PassthroughConfig holds doublestar globs for paths that skip classification.
type PassthroughConfig struct {
	Patterns []string `yaml:"patterns"` // treated like assets by the classifier
	Bypass   []string `yaml:"bypass"`   // never reach the classifier at all
}

// TransportConfig tunes an upstream HTTP transport
type TransportConfig struct {
	MaxIdleConns          int           `yaml:"max_idle_conns"`
	MaxIdleConnsPerHost   int           `yaml:"max_idle_conns_per_host"`
	MaxConnsPerHost       int           `yaml:"max_conns_per_host"`
	IdleConnTimeout       time.Duration `yaml:"idle_conn_timeout"`
	DialTimeout           time.Duration `yaml:"dial_timeout"`
	TLSHandshakeTimeout   time.Duration `yaml:"tls_handshake_timeout"`
	ResponseHeaderTimeout time.Duration `yaml:"response_header_timeout"`
	DisableKeepAlives     bool          `yaml:"disable_keep_alives"`
	InsecureSkipVerify    bool          `yaml:"insecure_skip_verify"`
	CAFile                string        `yaml:"ca_file"`
}

// RetryConfig defines retry settings for idempotent legacy requests
type RetryConfig struct {
	MaxRetries        int           `yaml:"max_retries"`
	InitialBackoff    time.Duration `yaml:"initial_backoff"`
	MaxBackoff        time.Duration `yaml:"max_backoff"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier"`
	RetryableStatuses []int         `yaml:"retryable_statuses"`
	RetryableMethods  []string      `yaml:"retryable_methods"`
	PerTryTimeout     time.Duration `yaml:"per_try_timeout"`
}

// CircuitBreakerConfig defines circuit breaker settings for the legacy origin
type CircuitBreakerConfig struct {
	Enabled          bool          `yaml:"enabled"`
	FailureThreshold int           `yaml:"failure_threshold"` // consecutive failures to open
	MaxRequests      int           `yaml:"max_requests"`      // allowed while half-open
	Timeout          time.Duration `yaml:"timeout"`           // open -> half-open
	Interval         time.Duration `yaml:"interval"`          // closed-state count reset; 0 = never
}

// RateLimitConfig caps the request rate forwarded to the legacy origin
type RateLimitConfig struct {
	RPS   float64 `yaml:"rps"` // 0 disables limiting
	Burst int     `yaml:"burst"`
}

// HealthCheckConfig defines active health checking of the legacy origin
type HealthCheckConfig struct {
	Enabled        bool          `yaml:"enabled"`
	Path           string        `yaml:"path"`            // default "/"
	Method         string        `yaml:"method"`          // default "GET"
	Interval       time.Duration `yaml:"interval"`        // default 10s
	Timeout        time.Duration `yaml:"timeout"`         // default 5s
	HealthyAfter   int           `yaml:"healthy_after"`   // default 2
	UnhealthyAfter int           `yaml:"unhealthy_after"` // default 3
	ExpectedStatus []string      `yaml:"expected_status"` // e.g. ["200", "2xx", "200-299"]; default 200-399
}

// LoggingConfig defines logging settings
type LoggingConfig struct {
	Format   string            `yaml:"format"` // "json" or "console"
	Level    string            `yaml:"level"`
	Output   string            `yaml:"output"` // "stdout", "stderr" or a file path
	Rotation LogRotationConfig `yaml:"rotation"`
}

// LogRotationConfig defines log file rotation settings (powered by lumberjack).
type LogRotationConfig struct {
	MaxSize    int  `yaml:"max_size"`    // max megabytes before rotation (default 100)
	MaxBackups int  `yaml:"max_backups"` // old rotated files to keep (default 3)
	MaxAge     int  `yaml:"max_age"`     // days to retain old files (default 28)
	Compress   bool `yaml:"compress"`    // gzip rotated files
	LocalTime  bool `yaml:"local_time"`  // use local time in backup filenames
}

// AdminConfig defines admin API settings
type AdminConfig struct {
	Enabled bool          `yaml:"enabled"`
	Address string        `yaml:"address"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// MetricsConfig defines Prometheus exposition settings
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// TracingConfig defines OpenTelemetry settings
type TracingConfig struct {
	Enabled     bool              `yaml:"enabled"`
	Endpoint    string            `yaml:"endpoint"`
	ServiceName string            `yaml:"service_name"`
	SampleRate  float64           `yaml:"sample_rate"`          // 0.0 to 1.0
	Insecure    bool              `yaml:"insecure"`             // use insecure gRPC connection
	Headers     map[string]string `yaml:"headers" redact:"true"` // extra headers for OTLP exporter
}

// ShutdownConfig defines graceful shutdown settings
type ShutdownConfig struct {
	Timeout time.Duration `yaml:"timeout"` // default 30s
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	return &Config{
		Listener: ListenerConfig{
			Address:           ":8080",
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
			ReadHeaderTimeout: 10 * time.Second,
		},
		Legacy: LegacyConfig{
			Timeout: 30 * time.Second,
			Retry: RetryConfig{
				InitialBackoff:    100 * time.Millisecond,
				MaxBackoff:        2 * time.Second,
				BackoffMultiplier: 2.0,
			},
			CircuitBreaker: CircuitBreakerConfig{
				FailureThreshold: 5,
				MaxRequests:      1,
				Timeout:          30 * time.Second,
			},
			HealthCheck: HealthCheckConfig{
				Path:           "/",
				Method:         "GET",
				Interval:       10 * time.Second,
				Timeout:        5 * time.Second,
				HealthyAfter:   2,
				UnhealthyAfter: 3,
			},
		},
		Native: NativeConfig{
			Index:       "index.html",
			Timeout:     30 * time.Second,
			Compression: CompressionConfig{Enabled: true},
		},
		Passthrough: PassthroughConfig{
			Bypass: []string{"/_next/static/**", "/_next/image/**", "/favicon.ico"},
		},
		Logging: LoggingConfig{
			Format: "json",
			Level:  "info",
			Output: "stdout",
			Rotation: LogRotationConfig{
				MaxSize:    100,
				MaxBackups: 3,
				MaxAge:     28,
			},
		},
		Admin: AdminConfig{
			Enabled: true,
			Address: ":8081",
			Metrics: MetricsConfig{
				Enabled: true,
				Path:    "/metrics",
			},
		},
		Tracing: TracingConfig{
			ServiceName: "strayhaven-edge",
			SampleRate:  1.0,
		},
		Shutdown: ShutdownConfig{
			Timeout: 30 * time.Second,
		},
	}
}
