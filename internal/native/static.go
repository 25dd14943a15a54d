package native

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync/atomic"

	edgeerrors "github.com/strayhaven/edge/internal/errors"
	"github.com/strayhaven/edge/variables"
)

// notFoundPage is served with a 404 status when present in the root.
const notFoundPage = "404.html"

var errForbidden = edgeerrors.New(http.StatusForbidden, "Forbidden")

// StaticHandler serves a static export directory. "/adopt" resolves to
// adopt, adopt.html or adopt/<index>, in that order.
type StaticHandler struct {
	root         string
	index        string
	cacheControl string
	served       atomic.Int64
	missed       atomic.Int64
}

// NewStatic creates a StaticHandler rooted at root.
func NewStatic(root, index, cacheControl string) (*StaticHandler, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving root path: %w", err)
	}
	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, fmt.Errorf("root directory %q: %w", absRoot, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root %q is not a directory", absRoot)
	}
	if index == "" {
		index = "index.html"
	}
	return &StaticHandler{
		root:         absRoot,
		index:        index,
		cacheControl: cacheControl,
	}, nil
}

// Root returns the absolute directory being served.
func (h *StaticHandler) Root() string {
	return h.root
}

// ServeHTTP serves static files.
func (h *StaticHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		h.writeError(w, r, edgeerrors.ErrMethodNotAllowed)
		return
	}
	if hasDotDot(r.URL.Path) {
		h.writeError(w, r, errForbidden)
		return
	}

	name, ok := h.resolve(r.URL.Path)
	if !ok {
		h.missed.Add(1)
		if page, ok := h.file("/" + notFoundPage); ok {
			h.serveFile(w, r, page, http.StatusNotFound)
			return
		}
		h.writeError(w, r, edgeerrors.ErrNotFound)
		return
	}

	h.served.Add(1)
	h.serveFile(w, r, name, http.StatusOK)
}

// resolve maps a URL path to a regular file under root.
func (h *StaticHandler) resolve(urlPath string) (string, bool) {
	clean := path.Clean("/" + urlPath)
	if clean == "/" {
		return h.file("/" + h.index)
	}
	for _, c := range []string{clean, clean + ".html", clean + "/" + h.index} {
		if name, ok := h.file(c); ok {
			return name, true
		}
	}
	return "", false
}

func (h *StaticHandler) file(rel string) (string, bool) {
	full := filepath.Join(h.root, filepath.FromSlash(rel))
	info, err := os.Stat(full)
	if err != nil || !info.Mode().IsRegular() {
		return "", false
	}
	return full, true
}

func (h *StaticHandler) serveFile(w http.ResponseWriter, r *http.Request, name string, status int) {
	f, err := os.Open(name)
	if err != nil {
		h.writeError(w, r, edgeerrors.ErrNotFound)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		h.writeError(w, r, edgeerrors.ErrInternalServer)
		return
	}

	if h.cacheControl != "" && status == http.StatusOK {
		w.Header().Set("Cache-Control", h.cacheControl)
	}
	if status != http.StatusOK {
		// ServeContent always answers 200; the custom 404 page is written
		// directly.
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "no-store")
		w.WriteHeader(status)
		if r.Method != http.MethodHead {
			_, _ = io.Copy(w, f)
		}
		return
	}
	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
}

func (h *StaticHandler) writeError(w http.ResponseWriter, r *http.Request, e *edgeerrors.EdgeError) {
	if id := variables.GetFromRequest(r).RequestID; id != "" {
		e = e.WithRequestID(id)
	}
	e.WriteJSON(w)
}

// Stats returns file serving statistics.
func (h *StaticHandler) Stats() map[string]any {
	return map[string]any{
		"root":   h.root,
		"served": h.served.Load(),
		"missed": h.missed.Load(),
	}
}

func hasDotDot(p string) bool {
	if !strings.Contains(p, "..") {
		return false
	}
	for _, seg := range strings.Split(p, "/") {
		if seg == ".." {
			return true
		}
	}
	return false
}
