package edge

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/julienschmidt/httprouter"
	"go.uber.org/zap"

	"github.com/strayhaven/edge/config"
	"github.com/strayhaven/edge/internal/circuitbreaker"
	edgeerrors "github.com/strayhaven/edge/internal/errors"
	"github.com/strayhaven/edge/internal/health"
)

// AdminHandler returns the admin API router.
func (e *Edge) AdminHandler() http.Handler {
	router := httprouter.New()
	router.RedirectTrailingSlash = false
	router.RedirectFixedPath = false
	router.HandleMethodNotAllowed = true

	router.GET("/healthz", e.handleHealthz)
	router.GET("/readyz", e.handleReadyz)
	router.GET("/routes", e.handleRoutes)
	router.GET("/classify", e.handleClassify)
	router.GET("/config", e.handleConfig)

	if mc := e.config.Admin.Metrics; mc.Enabled {
		router.Handler(http.MethodGet, mc.Path, e.metrics.Handler())
	}

	router.NotFound = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		edgeerrors.ErrNotFound.WriteJSON(w)
	})
	router.MethodNotAllowed = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		edgeerrors.ErrMethodNotAllowed.WriteJSON(w)
	})
	return router
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (e *Edge) handleHealthz(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
		"uptime":    time.Since(e.startTime).Round(time.Second).String(),
	})
}

type legacyStatus struct {
	Origin         string                   `json:"origin,omitempty"`
	Mode           string                   `json:"mode"`
	Health         *health.CheckResult      `json:"health,omitempty"`
	CircuitBreaker *circuitbreaker.Snapshot `json:"circuit_breaker,omitempty"`
}

// handleReadyz always answers 200 while the edge serves: a legacy outage
// degrades the status but native traffic is still handled.
func (e *Edge) handleReadyz(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	status := "ready"
	legacy := legacyStatus{Mode: "passthrough"}

	if origin := e.classifier.Origin(); origin != nil {
		legacy.Origin = origin.String()
		legacy.Mode = "rewrite"

		snap := e.legacy.Breaker().Snapshot()
		legacy.CircuitBreaker = &snap
		if snap.State == circuitbreaker.StateOpen.String() {
			status = "degraded"
		}
	}
	if e.checker != nil {
		res := e.checker.Result()
		legacy.Health = &res
		if res.Status == health.StatusUnhealthy {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status": status,
		"legacy": legacy,
		"native": map[string]any{
			"mode":   e.native.Mode(),
			"target": e.native.Target(),
		},
	})
}

func (e *Edge) handleRoutes(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var origin string
	if u := e.classifier.Origin(); u != nil {
		origin = u.String()
	}
	resp := map[string]any{
		"native_routes": e.classifier.Routes().Routes(),
		"legacy_origin": origin,
		"passthrough":   e.classifier.Passthrough(),
		"bypass":        e.bypass.Patterns(),
		"native": map[string]any{
			"mode":   e.native.Mode(),
			"target": e.native.Target(),
		},
	}
	if stats := e.native.Stats(); stats != nil {
		resp["static"] = stats
	}
	writeJSON(w, http.StatusOK, resp)
}

type classifyResponse struct {
	Path   string `json:"path"`
	Query  string `json:"query,omitempty"`
	Action string `json:"action"`
	Reason string `json:"reason"`
	Target string `json:"target,omitempty"`
}

// handleClassify runs the classifier without serving anything.
func (e *Edge) handleClassify(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	q := r.URL.Query()
	path := q.Get("path")
	if path == "" || path[0] != '/' {
		edgeerrors.ErrBadRequest.WithDetails("path query parameter must start with '/'").WriteJSON(w)
		return
	}
	query := q.Get("query")

	resp := classifyResponse{Path: path, Query: query}
	if e.bypass.Match(path) {
		resp.Action = ActionBypass
		resp.Reason = ActionBypass
		writeJSON(w, http.StatusOK, resp)
		return
	}

	d := e.classifier.Classify(path, query)
	resp.Action = d.Action.String()
	resp.Reason = string(d.Reason)
	if d.Target != nil {
		resp.Target = d.Target.String()
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleConfig shows the effective configuration, secrets redacted.
func (e *Edge) handleConfig(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	redacted, err := config.RedactConfig(e.config)
	if err == nil {
		var out []byte
		if out, err = yaml.Marshal(redacted); err == nil {
			w.Header().Set("Content-Type", "application/yaml")
			w.Write(out)
			return
		}
	}
	e.logger.Error("rendering config", zap.Error(err))
	edgeerrors.ErrInternalServer.WriteJSON(w)
}
