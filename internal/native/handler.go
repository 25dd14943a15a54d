// Package native serves requests the classifier leaves with the new
// application: either by forwarding to its server or from a static export.
package native

import (
	"fmt"
	"net/http"

	"github.com/klauspost/compress/gzhttp"
	"github.com/klauspost/compress/gzip"

	"github.com/strayhaven/edge/config"
	edgeerrors "github.com/strayhaven/edge/internal/errors"
	"github.com/strayhaven/edge/internal/proxy"
	"github.com/strayhaven/edge/internal/routing"
	"github.com/strayhaven/edge/variables"
)

// Mode names how native requests are served.
type Mode string

const (
	ModeUpstream Mode = "upstream"
	ModeStatic   Mode = "static"
	ModeNone     Mode = "none"
)

// Handler is the destination for Continue decisions.
type Handler struct {
	mode   Mode
	target string
	next   http.Handler
	static *StaticHandler
}

// New builds the native handler. Upstream wins over Root; with neither,
// every request gets a JSON 404. forwarder is only used in upstream mode.
func New(cfg config.NativeConfig, forwarder *proxy.Forwarder) (*Handler, error) {
	switch {
	case cfg.Upstream != "":
		origin, err := routing.ParseOrigin(cfg.Upstream)
		if err != nil {
			return nil, fmt.Errorf("native.upstream: %w", err)
		}
		if forwarder == nil {
			return nil, fmt.Errorf("native.upstream set without a forwarder")
		}
		return &Handler{mode: ModeUpstream, target: origin.String(), next: forwarder.Handler(origin)}, nil

	case cfg.Root != "":
		static, err := NewStatic(cfg.Root, cfg.Index, cfg.CacheControl)
		if err != nil {
			return nil, fmt.Errorf("native.root: %w", err)
		}
		next, err := compress(static, cfg.Compression)
		if err != nil {
			return nil, fmt.Errorf("native.compression: %w", err)
		}
		return &Handler{mode: ModeStatic, target: static.Root(), next: next, static: static}, nil
	}
	return &Handler{mode: ModeNone}, nil
}

// compress wraps h with gzip content negotiation when enabled.
func compress(h http.Handler, cfg config.CompressionConfig) (http.Handler, error) {
	if !cfg.Enabled {
		return h, nil
	}
	level := cfg.Level
	if level == 0 {
		level = gzip.DefaultCompression
	}
	minSize := cfg.MinSize
	if minSize == 0 {
		minSize = 1024
	}
	wrap, err := gzhttp.NewWrapper(gzhttp.CompressionLevel(level), gzhttp.MinSize(minSize))
	if err != nil {
		return nil, err
	}
	return wrap(h), nil
}

// Mode reports how requests are served.
func (h *Handler) Mode() Mode {
	return h.mode
}

// Target is the upstream origin or static root, empty in ModeNone.
func (h *Handler) Target() string {
	return h.target
}

// Stats returns static file statistics, nil unless in ModeStatic.
func (h *Handler) Stats() map[string]any {
	if h.static == nil {
		return nil
	}
	return h.static.Stats()
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.next != nil {
		h.next.ServeHTTP(w, r)
		return
	}
	e := edgeerrors.ErrNotFound
	if id := variables.GetFromRequest(r).RequestID; id != "" {
		e = e.WithRequestID(id)
	}
	e.WriteJSON(w)
}
