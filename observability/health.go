package observability

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"
)

// HealthStatus represents the health status of a component.
type HealthStatus string

const (
	HealthStatusOK        HealthStatus = "ok"
	HealthStatusDegraded  HealthStatus = "degraded"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

// ComponentHealth represents the health of a single component.
type ComponentHealth struct {
	Status    HealthStatus `json:"status"`
	Message   string       `json:"message,omitempty"`
	LatencyMS int64        `json:"latency_ms,omitempty"`
}

// HealthReport is the body of the health endpoint.
type HealthReport struct {
	Status        HealthStatus               `json:"status"`
	Version       string                     `json:"version"`
	UptimeSeconds int64                      `json:"uptime_seconds"`
	Timestamp     string                     `json:"timestamp"`
	Checks        map[string]ComponentHealth `json:"checks"`
}

// HealthCheckFunc checks one component.
type HealthCheckFunc func(ctx context.Context) ComponentHealth

// HealthChecker aggregates component checks.
type HealthChecker struct {
	version string
	start   time.Time

	mu     sync.RWMutex
	checks map[string]HealthCheckFunc
}

// NewHealthChecker creates a new health checker.
func NewHealthChecker(version string) *HealthChecker {
	return &HealthChecker{
		version: version,
		start:   time.Now(),
		checks:  make(map[string]HealthCheckFunc),
	}
}

// RegisterCheck registers a health check for a component, replacing any
// previous check of that name.
func (hc *HealthChecker) RegisterCheck(name string, fn HealthCheckFunc) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	hc.checks[name] = fn
}

// Check runs every registered check. The overall status is the worst
// component status.
func (hc *HealthChecker) Check(ctx context.Context) HealthReport {
	hc.mu.RLock()
	names := make([]string, 0, len(hc.checks))
	for name := range hc.checks {
		names = append(names, name)
	}
	fns := make(map[string]HealthCheckFunc, len(hc.checks))
	for k, v := range hc.checks {
		fns[k] = v
	}
	hc.mu.RUnlock()
	sort.Strings(names)

	report := HealthReport{
		Status:        HealthStatusOK,
		Version:       hc.version,
		UptimeSeconds: int64(time.Since(hc.start).Seconds()),
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Checks:        make(map[string]ComponentHealth, len(names)),
	}
	for _, name := range names {
		start := time.Now()
		h := fns[name](ctx)
		if h.LatencyMS == 0 {
			h.LatencyMS = time.Since(start).Milliseconds()
		}
		report.Checks[name] = h

		switch h.Status {
		case HealthStatusUnhealthy:
			report.Status = HealthStatusUnhealthy
		case HealthStatusDegraded:
			if report.Status != HealthStatusUnhealthy {
				report.Status = HealthStatusDegraded
			}
		}
	}
	return report
}

// Handler returns an HTTP handler for health checks. An unhealthy report is
// served with 503.
func (hc *HealthChecker) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		report := hc.Check(ctx)

		w.Header().Set("Content-Type", "application/json")
		if report.Status == HealthStatusUnhealthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		} else {
			w.WriteHeader(http.StatusOK)
		}
		_ = json.NewEncoder(w).Encode(report)
	}
}

// ErrorCheck adapts a check returning an error. A non-nil error marks the
// component with the failing status.
func ErrorCheck(failing HealthStatus, check func(ctx context.Context) error) HealthCheckFunc {
	return func(ctx context.Context) ComponentHealth {
		if err := check(ctx); err != nil {
			return ComponentHealth{Status: failing, Message: err.Error()}
		}
		return ComponentHealth{Status: HealthStatusOK}
	}
}
