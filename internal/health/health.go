// Package health reports the progress of a retrieval run over HTTP.
package health

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/goccy/go-json"
)

// Status represents the health status of a component.
type Status string

const (
	// StatusHealthy indicates the component is healthy.
	StatusHealthy Status = "healthy"
	// StatusUnhealthy indicates the component is unhealthy.
	StatusUnhealthy Status = "unhealthy"
)

// Check represents a health check result.
type Check struct {
	Status    Status                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

// CheckFunc produces one named check result.
type CheckFunc func(context.Context) Check

// Checker performs health checks.
type Checker struct {
	mu     sync.RWMutex
	checks map[string]CheckFunc
}

// NewChecker creates a new health checker.
func NewChecker() *Checker {
	return &Checker{
		checks: make(map[string]CheckFunc),
	}
}

// RegisterCheck registers a health check function.
func (c *Checker) RegisterCheck(name string, checkFunc CheckFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks[name] = checkFunc
}

// Report is the body served on /health.
type Report struct {
	Status    Status           `json:"status"`
	Checks    map[string]Check `json:"checks"`
	Timestamp time.Time        `json:"timestamp"`
}

// Run performs all registered checks. The report is unhealthy when any
// check is.
func (c *Checker) Run(ctx context.Context) Report {
	c.mu.RLock()
	defer c.mu.RUnlock()

	report := Report{
		Status:    StatusHealthy,
		Checks:    make(map[string]Check, len(c.checks)),
		Timestamp: time.Now(),
	}
	for name, checkFunc := range c.checks {
		check := checkFunc(ctx)
		if check.Status == StatusUnhealthy {
			report.Status = StatusUnhealthy
		}
		report.Checks[name] = check
	}
	return report
}

// Handler returns an HTTP handler serving the report, with 503 when it is
// unhealthy.
func (c *Checker) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report := c.Run(r.Context())

		code := http.StatusOK
		if report.Status == StatusUnhealthy {
			code = http.StatusServiceUnavailable
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(report)
	}
}

// ReadinessHandler returns a simple readiness check handler.
func ReadinessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready\n"))
	}
}

// LivenessHandler returns a simple liveness check handler.
func LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("alive\n"))
	}
}
