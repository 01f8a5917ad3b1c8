package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"rwaledger/pkg/logger"
)

// Checker is a dependency that can report its health
type Checker interface {
	Health(ctx context.Context) error
}

const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

type dependency struct {
	checker  Checker
	required bool
}

// Handler serves liveness, readiness and detailed health. Checks run
// concurrently so one slow backend does not hide the others.
type Handler struct {
	log     *logger.Logger
	deps    map[string]dependency
	started time.Time
	service string
	version string
}

func New(log *logger.Logger, service, version string) *Handler {
	return &Handler{
		log:     log,
		deps:    make(map[string]dependency),
		started: time.Now(),
		service: service,
		version: version,
	}
}

// Require registers a dependency the ledger cannot serve without
func (h *Handler) Require(name string, c Checker) *Handler {
	h.deps[name] = dependency{checker: c, required: true}
	return h
}

// Optional registers a dependency whose failure only degrades the service
func (h *Handler) Optional(name string, c Checker) *Handler {
	h.deps[name] = dependency{checker: c}
	return h
}

// HealthStatus is the body of /health and /ready
type HealthStatus struct {
	Status    string                     `json:"status"`
	Service   string                     `json:"service"`
	Version   string                     `json:"version"`
	Uptime    string                     `json:"uptime"`
	Timestamp time.Time                  `json:"timestamp"`
	Checks    map[string]ComponentHealth `json:"checks"`
}

type ComponentHealth struct {
	Status   string `json:"status"`
	Required bool   `json:"required"`
	Latency  string `json:"latency"`
	Error    string `json:"error,omitempty"`
}

func (h *Handler) HandleLiveness(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

// HandleReadiness answers 503 when a required dependency is down
func (h *Handler) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	status := h.respond(w, r, 5*time.Second)
	if status.Status == StatusUnhealthy {
		h.log.Warnw("Readiness check failed", "checks", status.Checks)
	}
}

// HandleHealth reports every dependency; degraded still answers 200
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, 10*time.Second)
}

func (h *Handler) respond(w http.ResponseWriter, r *http.Request, timeout time.Duration) HealthStatus {
	ctx, cancel := context.WithTimeout(r.Context(), timeout)
	defer cancel()

	status := h.evaluate(ctx)
	code := http.StatusOK
	if status.Status == StatusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, status)
	return status
}

func (h *Handler) evaluate(ctx context.Context) HealthStatus {
	var (
		mu      sync.Mutex
		g       errgroup.Group
		results = make(map[string]ComponentHealth, len(h.deps))
	)
	for name, dep := range h.deps {
		g.Go(func() error {
			start := time.Now()
			err := dep.checker.Health(ctx)
			c := ComponentHealth{Status: StatusHealthy, Required: dep.required, Latency: time.Since(start).String()}
			if err != nil {
				c.Status, c.Error = StatusUnhealthy, err.Error()
			}
			mu.Lock()
			results[name] = c
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	overall := StatusHealthy
	for _, c := range results {
		if c.Status == StatusHealthy {
			continue
		}
		if c.Required {
			overall = StatusUnhealthy
			break
		}
		overall = StatusDegraded
	}

	return HealthStatus{
		Status:    overall,
		Service:   h.service,
		Version:   h.version,
		Uptime:    time.Since(h.started).Round(time.Second).String(),
		Timestamp: time.Now().UTC(),
		Checks:    results,
	}
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
