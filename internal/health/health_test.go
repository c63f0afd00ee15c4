package health

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"
)

func serveHealth(t *testing.T, checker *Checker) (int, Report) {
	t.Helper()
	rr := httptest.NewRecorder()
	checker.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}

	var response Report
	if err := json.NewDecoder(rr.Body).Decode(&response); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	return rr.Code, response
}

func TestTracker_Check(t *testing.T) {
	tests := []struct {
		name       string
		update     func(tr *Tracker)
		wantStatus Status
		wantState  string
		wantError  string
		wantBackup string
	}{
		{
			name:       "starting",
			update:     func(tr *Tracker) {},
			wantStatus: StatusHealthy,
			wantState:  "starting",
		},
		{
			name: "polling",
			update: func(tr *Tracker) {
				tr.SetState("checking", nil)
				tr.SetState("polling", nil)
			},
			wantStatus: StatusHealthy,
			wantState:  "polling",
		},
		{
			name: "succeeded with backup",
			update: func(tr *Tracker) {
				tr.SetState("done", nil)
				tr.SetBackup(42, "sonarr_backup.zip")
				tr.SetState("succeeded", nil)
			},
			wantStatus: StatusHealthy,
			wantState:  "succeeded",
			wantBackup: "sonarr_backup.zip",
		},
		{
			name: "failed keeps error",
			update: func(tr *Tracker) {
				tr.SetState("polling", nil)
				tr.SetState(FailedState, errors.New("backup creation timed out"))
			},
			wantStatus: StatusUnhealthy,
			wantState:  FailedState,
			wantError:  "backup creation timed out",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := NewTracker()
			tt.update(tr)

			check := tr.Check(context.Background())
			if check.Status != tt.wantStatus {
				t.Errorf("Status = %v, want %v", check.Status, tt.wantStatus)
			}
			if got := check.Details["state"]; got != tt.wantState {
				t.Errorf("state = %v, want %v", got, tt.wantState)
			}
			if got, _ := check.Details["error"].(string); got != tt.wantError {
				t.Errorf("error = %q, want %q", got, tt.wantError)
			}
			if got, _ := check.Details["backup_name"].(string); got != tt.wantBackup {
				t.Errorf("backup_name = %q, want %q", got, tt.wantBackup)
			}

			state, lastErr := tr.State()
			if state != tt.wantState || lastErr != tt.wantError {
				t.Errorf("State() = %q, %q", state, lastErr)
			}
		})
	}
}

func TestHealthHandler(t *testing.T) {
	tracker := NewTracker()
	checker := NewChecker()
	checker.RegisterCheck("run", tracker.Check)
	checker.RegisterCheck("storage", func(ctx context.Context) Check {
		return Check{Status: StatusHealthy, Timestamp: time.Now()}
	})

	tracker.SetState("extracting", nil)
	code, response := serveHealth(t, checker)
	if code != http.StatusOK {
		t.Errorf("status code = %v, want %v", code, http.StatusOK)
	}
	if response.Status != StatusHealthy || len(response.Checks) != 2 {
		t.Errorf("unexpected response %+v", response)
	}

	tracker.SetState(FailedState, errors.New("symlink encountered at /dest/a"))
	code, response = serveHealth(t, checker)
	if code != http.StatusServiceUnavailable {
		t.Errorf("status code = %v, want %v", code, http.StatusServiceUnavailable)
	}
	if response.Status != StatusUnhealthy {
		t.Errorf("overall status = %v, want unhealthy", response.Status)
	}
	if got := response.Checks["run"].Details["error"]; got != "symlink encountered at /dest/a" {
		t.Errorf("run error = %v", got)
	}
}

func TestChecker_Run(t *testing.T) {
	checker := NewChecker()
	if report := checker.Run(context.Background()); report.Status != StatusHealthy || len(report.Checks) != 0 {
		t.Errorf("empty checker report = %+v, want healthy with no checks", report)
	}

	checker.RegisterCheck("storage", func(ctx context.Context) Check {
		return Check{Status: StatusUnhealthy, Timestamp: time.Now()}
	})
	if report := checker.Run(context.Background()); report.Status != StatusUnhealthy {
		t.Errorf("report status = %v, want unhealthy", report.Status)
	}
}

func TestProbeHandlers(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		want    string
	}{
		{"ready", ReadinessHandler(), "ready\n"},
		{"live", LivenessHandler(), "alive\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			tt.handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/"+tt.name, nil))

			if rr.Code != http.StatusOK {
				t.Errorf("status code = %v, want %v", rr.Code, http.StatusOK)
			}
			if rr.Body.String() != tt.want {
				t.Errorf("body = %q, want %q", rr.Body.String(), tt.want)
			}
		})
	}
}
