package rest

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
)

// HealthChecker probes a single dependency
type HealthChecker func(ctx context.Context) error

// HealthService aggregates dependency probes for the readiness endpoint
type HealthService struct {
	checkers map[string]HealthChecker
}

// NewHealthService creates an empty health service
func NewHealthService() *HealthService {
	return &HealthService{checkers: make(map[string]HealthChecker)}
}

// Register adds a named dependency probe
func (h *HealthService) Register(name string, checker HealthChecker) {
	h.checkers[name] = checker
}

// DatabaseChecker probes the SQL connection
func DatabaseChecker(db *sql.DB) HealthChecker {
	return func(ctx context.Context) error {
		return db.PingContext(ctx)
	}
}

// RedisChecker probes the Redis connection
func RedisChecker(client *redis.Client) HealthChecker {
	return func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	}
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// LivenessHandler always reports ok once the process is serving
func (h *HealthService) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
}

// ReadinessHandler probes every registered dependency
func (h *HealthService) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := make(map[string]string, len(h.checkers))
	healthy := true
	for name, check := range h.checkers {
		if err := check(ctx); err != nil {
			checks[name] = err.Error()
			healthy = false
		} else {
			checks[name] = "ok"
		}
	}

	status := http.StatusOK
	resp := healthResponse{Status: "ok", Checks: checks}
	if !healthy {
		status = http.StatusServiceUnavailable
		resp.Status = "degraded"
	}

	writeJSON(w, status, resp)
}
