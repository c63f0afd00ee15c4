package health

import (
	"context"
	"sync"
	"time"
)

// FailedState is the run state reported as unhealthy.
const FailedState = "failed"

// Tracker remembers the latest state of a run. It satisfies the run's state
// observer and serves the result as a health check.
type Tracker struct {
	mu         sync.RWMutex
	state      string
	lastErr    string
	backupID   int64
	backupName string
	updated    time.Time
}

// NewTracker creates a tracker in the "starting" state.
func NewTracker() *Tracker {
	return &Tracker{state: "starting", updated: time.Now()}
}

// SetState records a state change. A nil err keeps the previous error.
func (t *Tracker) SetState(state string, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state = state
	if err != nil {
		t.lastErr = err.Error()
	}
	t.updated = time.Now()
}

// SetBackup records the backup the run resolved.
func (t *Tracker) SetBackup(id int64, name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.backupID = id
	t.backupName = name
	t.updated = time.Now()
}

// State returns the current state and the last recorded error.
func (t *Tracker) State() (string, string) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state, t.lastErr
}

// Check reports the run as a health check.
func (t *Tracker) Check(ctx context.Context) Check {
	t.mu.RLock()
	defer t.mu.RUnlock()

	details := map[string]interface{}{
		"state":      t.state,
		"updated_at": t.updated,
	}
	if t.lastErr != "" {
		details["error"] = t.lastErr
	}
	if t.backupName != "" {
		details["backup_id"] = t.backupID
		details["backup_name"] = t.backupName
	}

	status := StatusHealthy
	if t.state == FailedState {
		status = StatusUnhealthy
	}

	return Check{
		Status:    status,
		Timestamp: time.Now(),
		Details:   details,
	}
}
