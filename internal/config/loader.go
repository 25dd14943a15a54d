package config

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strings"

	"github.com/goccy/go-yaml"

	"github.com/strayhaven/edge/config"
	"github.com/strayhaven/edge/internal/routing"
)

// Loader handles configuration loading and parsing
type Loader struct {
	envPattern *regexp.Regexp
	secrets    *config.SecretRegistry
}

// NewLoader creates a loader resolving ${env:...} and ${file:...} secret
// references.
func NewLoader() *Loader {
	return NewLoaderWithSecrets(config.DefaultSecretRegistry())
}

// NewLoaderWithSecrets creates a loader using a custom secret registry.
func NewLoaderWithSecrets(secrets *config.SecretRegistry) *Loader {
	return &Loader{
		envPattern: regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`),
		secrets:    secrets,
	}
}

// Load reads and parses a configuration file. An empty path yields the
// defaults plus environment overrides.
func (l *Loader) Load(path string) (*config.Config, error) {
	if path == "" {
		return l.finish(config.DefaultConfig())
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return l.Parse(data)
}

// Parse parses configuration from YAML bytes
func (l *Loader) Parse(data []byte) (*config.Config, error) {
	expanded := l.expandEnvVars(string(data))

	cfg := config.DefaultConfig()

	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := config.ResolveSecretRefs(context.Background(), cfg, l.secrets); err != nil {
		return nil, fmt.Errorf("failed to resolve secrets: %w", err)
	}

	return l.finish(cfg)
}

func (l *Loader) finish(cfg *config.Config) (*config.Config, error) {
	applyEnvOverrides(cfg)

	if err := l.validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} with environment variable values
func (l *Loader) expandEnvVars(input string) string {
	return l.envPattern.ReplaceAllStringFunc(input, func(match string) string {
		varName := strings.TrimPrefix(strings.TrimSuffix(match, "}"), "${")
		if value, exists := os.LookupEnv(varName); exists {
			return value
		}
		return match // Keep original if env var not set
	})
}

// applyEnvOverrides lets the process environment win over the file for the
// two settings deployments set per environment.
func applyEnvOverrides(cfg *config.Config) {
	if v, ok := LookupFirst(EnvLegacyOrigin, EnvLegacyOriginPublic); ok {
		cfg.Legacy.Origin = v
	}
	if v, ok := LookupFirst(EnvNativeRoutes, EnvNativeRoutesPublic); ok {
		cfg.Native.Routes = routing.ParseRouteList(v)
	}
}

// validate checks configuration for errors
func (l *Loader) validate(cfg *config.Config) error {
	var errs []error

	if cfg.Listener.Address == "" {
		errs = append(errs, errors.New("listener.address is required"))
	}
	if cfg.Listener.TLS.Enabled {
		if cfg.Listener.TLS.CertFile == "" {
			errs = append(errs, errors.New("listener.tls: enabled but cert_file not provided"))
		}
		if cfg.Listener.TLS.KeyFile == "" {
			errs = append(errs, errors.New("listener.tls: enabled but key_file not provided"))
		}
	}

	if _, err := routing.ParseOrigin(cfg.Legacy.Origin); err != nil {
		errs = append(errs, fmt.Errorf("legacy.origin: %w", err))
	}
	errs = append(errs, validateLegacy(cfg.Legacy)...)

	if cfg.Native.Upstream != "" {
		if _, err := routing.ParseOrigin(cfg.Native.Upstream); err != nil {
			errs = append(errs, fmt.Errorf("native.upstream: %w", err))
		}
	}
	errs = append(errs, validateNative(cfg.Native)...)

	if _, err := routing.NewGlobSet(cfg.Passthrough.Patterns); err != nil {
		errs = append(errs, fmt.Errorf("passthrough.patterns: %w", err))
	}
	if _, err := routing.NewGlobSet(cfg.Passthrough.Bypass); err != nil {
		errs = append(errs, fmt.Errorf("passthrough.bypass: %w", err))
	}

	errs = append(errs, validateLogging(cfg.Logging)...)

	if cfg.Admin.Enabled {
		if cfg.Admin.Address == "" {
			errs = append(errs, errors.New("admin.address is required when admin is enabled"))
		} else if cfg.Admin.Address == cfg.Listener.Address {
			errs = append(errs, errors.New("admin.address must differ from listener.address"))
		}
		if cfg.Admin.Metrics.Enabled && !strings.HasPrefix(cfg.Admin.Metrics.Path, "/") {
			errs = append(errs, errors.New("admin.metrics.path must start with '/'"))
		}
	}

	if cfg.Tracing.Enabled && (cfg.Tracing.SampleRate < 0 || cfg.Tracing.SampleRate > 1) {
		errs = append(errs, errors.New("tracing.sample_rate must be between 0.0 and 1.0"))
	}

	if cfg.Shutdown.Timeout < 0 {
		errs = append(errs, errors.New("shutdown.timeout must be >= 0"))
	}

	return errors.Join(errs...)
}

// Warnings returns non-fatal configuration issues worth logging at startup.
func Warnings(cfg *config.Config) []string {
	var out []string
	if strings.TrimSpace(cfg.Legacy.Origin) == "" {
		out = append(out, "no legacy origin configured; every request is served natively")
	} else if u, err := url.Parse(strings.TrimSpace(cfg.Legacy.Origin)); err == nil {
		if u.Path != "" && u.Path != "/" {
			out = append(out, fmt.Sprintf("legacy.origin path %q is ignored; rewritten URLs keep the request path", u.Path))
		}
		if u.User != nil {
			out = append(out, "legacy.origin credentials are ignored; rewritten URLs carry only scheme and host")
		}
	}
	for _, r := range cfg.Native.Routes {
		if !strings.HasPrefix(r, "/") {
			out = append(out, fmt.Sprintf("native route %q does not start with '/' and never matches", r))
			continue
		}
		if len(r) > 1 && strings.HasSuffix(r, "/") {
			out = append(out, fmt.Sprintf("native route %q ends with '/' and only matches paths below it literally", r))
		}
	}
	if cfg.Native.Upstream == "" && cfg.Native.Root == "" {
		out = append(out, "neither native.upstream nor native.root is set; native requests will 404")
	}
	return out
}
