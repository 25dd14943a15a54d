package routing

import (
	"fmt"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// assetPrefixes are never forwarded: framework build output, static files
// and the application's own API.
var assetPrefixes = []string{
	"/_next",
	"/static",
	"/api",
}

var wellKnownFiles = map[string]bool{
	"/favicon.ico":      true,
	"/robots.txt":       true,
	"/site.webmanifest": true,
}

// IsAsset reports whether path must be served natively regardless of the
// route table. It depends only on the path string.
func IsAsset(path string) bool {
	for _, p := range assetPrefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	if wellKnownFiles[path] {
		return true
	}
	return HasExtension(path)
}

// HasExtension reports whether the last path segment ends in a file
// extension, i.e. path matches `\.[^/]+$`.
func HasExtension(path string) bool {
	dot := strings.LastIndexByte(path, '.')
	if dot < 0 || dot == len(path)-1 {
		return false
	}
	return strings.IndexByte(path[dot+1:], '/') < 0
}

// GlobSet is a list of doublestar patterns matched against request paths.
type GlobSet struct {
	patterns []string
}

// NewGlobSet validates the patterns up front.
func NewGlobSet(patterns []string) (*GlobSet, error) {
	gs := &GlobSet{}
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("invalid glob pattern %q", p)
		}
		gs.patterns = append(gs.patterns, p)
	}
	return gs, nil
}

// Match reports whether any pattern matches path.
func (gs *GlobSet) Match(path string) bool {
	if gs == nil {
		return false
	}
	for _, p := range gs.patterns {
		// Patterns are validated in NewGlobSet, so the error is always nil.
		if ok, _ := doublestar.Match(p, path); ok {
			return true
		}
	}
	return false
}

// Patterns returns a copy of the configured patterns.
func (gs *GlobSet) Patterns() []string {
	if gs == nil {
		return nil
	}
	return append([]string(nil), gs.patterns...)
}
