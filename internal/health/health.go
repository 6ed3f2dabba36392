// Package health serves the liveness and readiness probes for the relay.
//
// /healthz answers 200 whenever the process can serve HTTP. /readyz answers
// 200 only while every registered [Checker] passes; for this service that
// means the UDP telemetry socket is bound and the stored configuration
// loaded. A silent console does not make the process unready.
//
// Both endpoints respond with a JSON {"status": "ok"|"fail"} body, readiness
// adding a "checks" map with one entry per checker.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// checkTimeout bounds a single readiness probe.
const checkTimeout = 5 * time.Second

// Checker is one named readiness probe. Check returns nil while the
// dependency is healthy and must respect context cancellation. The name
// appears as a key in the readiness response, e.g. "telemetry" or "config".
type Checker struct {
	Name  string
	Check func(ctx context.Context) error
}

// Handler serves /healthz and /readyz. The checker list is fixed at
// construction, so a Handler is safe for concurrent use.
type Handler struct {
	checkers []Checker
}

// result is the response body shared by both endpoints.
type result struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// New builds a Handler that evaluates checkers in the order given.
func New(checkers ...Checker) *Handler {
	return &Handler{checkers: append([]Checker(nil), checkers...)}
}

// Register adds both probe routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

// Healthz reports liveness: serving the request is the proof.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, result{Status: "ok"})
}

// Readyz runs every checker under its own [checkTimeout] and answers 503
// with per-checker detail when any fail.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	res := result{Status: "ok", Checks: make(map[string]string, len(h.checkers))}
	status := http.StatusOK

	for _, c := range h.checkers {
		if err := runCheck(r.Context(), c); err != nil {
			res.Checks[c.Name] = "fail: " + err.Error()
			res.Status = "fail"
			status = http.StatusServiceUnavailable
		} else {
			res.Checks[c.Name] = "ok"
		}
	}
	writeJSON(w, status, res)
}

func runCheck(ctx context.Context, c Checker) error {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()
	return c.Check(ctx)
}

// writeJSON encodes v with the given status code, falling back to a plain
// 500 when encoding fails.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"status":"error"}`, http.StatusInternalServerError)
	}
}
