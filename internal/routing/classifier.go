package routing

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Action is what the edge does with a classified request.
type Action int

const (
	// Continue serves the request natively.
	Continue Action = iota
	// Rewrite forwards the request to the legacy origin.
	Rewrite
)

func (a Action) String() string {
	switch a {
	case Continue:
		return "continue"
	case Rewrite:
		return "rewrite"
	default:
		return "unknown"
	}
}

// Reason explains which step produced a Decision.
type Reason string

const (
	ReasonAsset    Reason = "asset"
	ReasonNative   Reason = "native"
	ReasonNoOrigin Reason = "no_origin"
	ReasonLegacy   Reason = "legacy"
)

// Decision is the result of classifying one request.
type Decision struct {
	Action Action
	Reason Reason
	Target *url.URL // set only for Rewrite
}

// Config holds everything the classifier needs, fixed at construction.
type Config struct {
	// LegacyOrigin is the base URL of the legacy application. Empty means
	// every request is served natively.
	LegacyOrigin string
	// NativeRoutes are added to DefaultNativeRoutes.
	NativeRoutes []string
	// Passthrough are extra doublestar globs treated like assets.
	Passthrough []string
}

// Classifier decides per request whether a path is native or legacy.
// It holds only immutable data and is safe for concurrent use.
type Classifier struct {
	routes      *RouteSet
	origin      *url.URL
	passthrough *GlobSet
}

// NewClassifier builds a Classifier. An empty origin is valid; an
// unparseable one is not.
func NewClassifier(cfg Config) (*Classifier, error) {
	origin, err := ParseOrigin(cfg.LegacyOrigin)
	if err != nil {
		return nil, err
	}
	globs, err := NewGlobSet(cfg.Passthrough)
	if err != nil {
		return nil, fmt.Errorf("passthrough: %w", err)
	}
	return &Classifier{
		routes:      NewRouteSet(DefaultNativeRoutes, cfg.NativeRoutes),
		origin:      origin,
		passthrough: globs,
	}, nil
}

// ParseOrigin parses an origin base URL such as the legacy origin. It
// returns nil, nil for an empty string. Only scheme and host are kept, so
// userinfo is dropped. Errors never echo a password.
func ParseOrigin(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		var uerr *url.Error
		if errors.As(err, &uerr) {
			err = uerr.Err
		}
		return nil, fmt.Errorf("invalid origin: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid origin %q: scheme must be http or https", u.Redacted())
	}
	if u.Host == "" {
		return nil, fmt.Errorf("invalid origin %q: missing host", u.Redacted())
	}
	return &url.URL{Scheme: u.Scheme, Host: u.Host}, nil
}

// Classify decides what to do with a request for path and query. The query
// may be passed with or without its leading '?'.
func (c *Classifier) Classify(path, query string) Decision {
	if IsAsset(path) || c.passthrough.Match(path) {
		return Decision{Action: Continue, Reason: ReasonAsset}
	}
	if c.routes.Contains(path) {
		return Decision{Action: Continue, Reason: ReasonNative}
	}
	if c.origin == nil {
		return Decision{Action: Continue, Reason: ReasonNoOrigin}
	}
	return Decision{
		Action: Rewrite,
		Reason: ReasonLegacy,
		Target: c.target(path, query),
	}
}

func (c *Classifier) target(path, query string) *url.URL {
	return &url.URL{
		Scheme:   c.origin.Scheme,
		Host:     c.origin.Host,
		Path:     path,
		RawQuery: strings.TrimPrefix(query, "?"),
	}
}

// Origin returns a copy of the legacy origin, or nil in pass-through-only mode.
func (c *Classifier) Origin() *url.URL {
	if c.origin == nil {
		return nil
	}
	u := *c.origin
	return &u
}

// Routes returns the effective native route set.
func (c *Classifier) Routes() *RouteSet {
	return c.routes
}

// Passthrough returns the extra passthrough globs.
func (c *Classifier) Passthrough() []string {
	return c.passthrough.Patterns()
}
