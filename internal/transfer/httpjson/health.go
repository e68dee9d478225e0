package httpjson

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/mediavault/mediavault-core/internal/refstore"
	"github.com/mediavault/mediavault-core/internal/storage"
)

// Status constants for a component or the overall repository.
const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// ComponentStatus reports one component's health.
type ComponentStatus struct {
	Status  string `json:"status"`
	Latency string `json:"latency,omitempty"`
	Error   string `json:"error,omitempty"`
}

// RepoStatus is the body HandleReadiness writes.
type RepoStatus struct {
	Status     string                      `json:"status"`
	Timestamp  time.Time                   `json:"timestamp"`
	Components map[string]*ComponentStatus `json:"components"`
}

// HealthChecker answers liveness/readiness probes for a repository exposed
// over httpjson, generalized from the teacher's handler.HealthChecker: the
// "database" component becomes "refstore" (can HEAD be resolved or at
// least reached without error), and "storage" stays storage — the same
// two-component shape, pointed at this domain's two backing stores.
type HealthChecker struct {
	refs    *refstore.Store
	backend storage.Backend
	logger  zerolog.Logger
}

// NewHealthChecker builds a HealthChecker over refs and backend.
func NewHealthChecker(refs *refstore.Store, backend storage.Backend, logger zerolog.Logger) *HealthChecker {
	return &HealthChecker{refs: refs, backend: backend, logger: logger.With().Str("component", "transfer.health").Logger()}
}

// HandleLiveness always returns 200 once the process is serving requests.
func (h *HealthChecker) HandleLiveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": StatusHealthy})
}

// HandleReadiness checks the ref store and storage backend are both
// reachable before reporting ready.
func (h *HealthChecker) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := h.check(ctx)
	w.Header().Set("Content-Type", "application/json")
	if status.Status == StatusUnhealthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	json.NewEncoder(w).Encode(status)
}

func (h *HealthChecker) check(ctx context.Context) *RepoStatus {
	status := &RepoStatus{Status: StatusHealthy, Timestamp: time.Now().UTC(), Components: map[string]*ComponentStatus{}}
	status.Components["refstore"] = h.checkRefstore(ctx)
	status.Components["storage"] = h.checkStorage(ctx)
	for _, c := range status.Components {
		if c.Status == StatusUnhealthy {
			status.Status = StatusUnhealthy
		} else if c.Status == StatusDegraded && status.Status != StatusUnhealthy {
			status.Status = StatusDegraded
		}
	}
	return status
}

// checkRefstore resolves HEAD, treating a missing-ref error (an empty
// repository has no HEAD target yet) as healthy and any other error as the
// store itself being unreachable.
func (h *HealthChecker) checkRefstore(ctx context.Context) *ComponentStatus {
	start := time.Now()
	_, err := h.refs.ResolveHead(ctx)
	latency := time.Since(start)
	if err != nil && !storage.IsNotFound(err) {
		h.logger.Warn().Err(err).Msg("refstore health check failed")
		return &ComponentStatus{Status: StatusUnhealthy, Latency: latency.String(), Error: err.Error()}
	}
	return &ComponentStatus{Status: StatusHealthy, Latency: latency.String()}
}

func (h *HealthChecker) checkStorage(ctx context.Context) *ComponentStatus {
	start := time.Now()
	err := h.backend.HealthCheck(ctx)
	latency := time.Since(start)
	if err != nil {
		h.logger.Warn().Err(err).Msg("storage health check failed")
		return &ComponentStatus{Status: StatusUnhealthy, Latency: latency.String(), Error: err.Error()}
	}
	return &ComponentStatus{Status: StatusHealthy, Latency: latency.String()}
}
