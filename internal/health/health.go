// Package health serves the probe endpoints of the HTTP transports:
//
//	GET /health   "OK" in plain text
//	GET /healthz  liveness, always {"status":"ok"}
//	GET /readyz   readiness, 503 when a required check fails
package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Status is the overall or per-check outcome in a [Report].
type Status string

const (
	StatusOK       Status = "ok"
	StatusDegraded Status = "degraded"
	StatusFail     Status = "fail"
	StatusDisabled Status = "disabled"
)

// checkTimeout bounds each readiness check.
const checkTimeout = 5 * time.Second

// ErrDisabled reports a dependency that configuration switched off. Such a
// check shows as "disabled" and never affects readiness.
var ErrDisabled = errors.New("health: dependency disabled")

// Checker is one named readiness check. A failing Optional check degrades
// the report instead of failing it.
type Checker struct {
	Name     string
	Check    func(ctx context.Context) error
	Optional bool
}

// Report is the JSON body of /healthz and /readyz. Failed checks read
// "fail: <error>".
type Report struct {
	Status Status            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Handler serves the probe endpoints for a fixed set of checks.
type Handler struct {
	checkers []Checker
}

// New returns a handler evaluating checkers on every /readyz request.
func New(checkers ...Checker) *Handler {
	return &Handler{checkers: append([]Checker(nil), checkers...)}
}

// Register mounts the probe routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("OK"))
}

func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	respond(w, http.StatusOK, Report{Status: StatusOK})
}

func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	rep := h.Check(r.Context())
	code := http.StatusOK
	if rep.Status == StatusFail {
		code = http.StatusServiceUnavailable
	}
	respond(w, code, rep)
}

// Check runs every checker concurrently, each under [checkTimeout], and
// folds the outcomes into a report.
func (h *Handler) Check(ctx context.Context) Report {
	rep := Report{Status: StatusOK, Checks: make(map[string]string, len(h.checkers))}
	var mu sync.Mutex
	var g errgroup.Group
	for _, c := range h.checkers {
		g.Go(func() error {
			cctx, cancel := context.WithTimeout(ctx, checkTimeout)
			defer cancel()
			err := c.Check(cctx)

			mu.Lock()
			defer mu.Unlock()
			rep.record(c, err)
			return nil
		})
	}
	_ = g.Wait()
	return rep
}

func (r *Report) record(c Checker, err error) {
	switch {
	case err == nil:
		r.Checks[c.Name] = string(StatusOK)
	case errors.Is(err, ErrDisabled):
		r.Checks[c.Name] = string(StatusDisabled)
	default:
		r.Checks[c.Name] = string(StatusFail) + ": " + err.Error()
		switch {
		case !c.Optional:
			r.Status = StatusFail
		case r.Status == StatusOK:
			r.Status = StatusDegraded
		}
	}
}

func respond(w http.ResponseWriter, code int, rep Report) {
	body, err := json.Marshal(rep)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_, _ = w.Write(append(body, '\n'))
}
