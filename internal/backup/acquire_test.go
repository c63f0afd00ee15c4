package backup

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/imedwei/arr-backup/internal/arr"
	"github.com/imedwei/arr-backup/internal/freshness"
)

func newTestAcquirer(api API, clock Clock, forceNew bool, opts ...Option) *Acquirer {
	policy := freshness.NewMaxAgePolicy(freshness.Config{MaxAge: time.Hour, ForceNew: forceNew})
	opts = append([]Option{WithClock(clock)}, opts...)
	return NewAcquirer(api, policy, Options{}, discardLogger, opts...)
}

func TestAcquire_ReusesFreshBackup(t *testing.T) {
	clock := newFakeClock()
	now := clock.Now()
	api := &mockAPI{listFn: func(int) ([]arr.Backup, error) {
		return []arr.Backup{
			manual(1, now.Add(-3*time.Hour)),
			manual(2, now.Add(-30*time.Minute)),
			scheduled(3, now.Add(-1*time.Minute)),
		}, nil
	}}

	got, err := newTestAcquirer(api, clock, false).Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if got.ID != 2 {
		t.Errorf("Acquire() = backup %d, want 2", got.ID)
	}
	if api.triggers != 0 {
		t.Errorf("triggers = %d, want 0", api.triggers)
	}
	if api.listCalls != 1 {
		t.Errorf("list calls = %d, want 1", api.listCalls)
	}
}

func TestAcquire_TriggersWhenNoManualBackup(t *testing.T) {
	clock := newFakeClock()
	observer := &recordingObserver{}
	api := &mockAPI{listFn: func(call int) ([]arr.Backup, error) {
		now := clock.Now()
		switch call {
		case 0, 1:
			return []arr.Backup{scheduled(1, now.Add(-time.Minute))}, nil
		default:
			return []arr.Backup{
				scheduled(1, now.Add(-time.Minute)),
				manual(7, now.Add(-2*time.Minute)),
			}, nil
		}
	}}

	got, err := newTestAcquirer(api, clock, false, WithObserver(observer)).Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if got.ID != 7 {
		t.Errorf("Acquire() = backup %d, want 7", got.ID)
	}
	if api.triggers != 1 {
		t.Errorf("triggers = %d, want 1", api.triggers)
	}
	if api.listCalls != 3 {
		t.Errorf("list calls = %d, want 3", api.listCalls)
	}
	if clock.sleeps != 1 {
		t.Errorf("sleeps = %d, want 1", clock.sleeps)
	}

	wantStates := []string{"checking", "triggering", "polling", "done"}
	if !reflect.DeepEqual(observer.states, wantStates) {
		t.Errorf("states = %v, want %v", observer.states, wantStates)
	}
	if observer.id != 7 {
		t.Errorf("observer backup id = %d, want 7", observer.id)
	}
}

func TestAcquire_TriggersWhenStale(t *testing.T) {
	clock := newFakeClock()
	start := clock.Now()
	api := &mockAPI{listFn: func(call int) ([]arr.Backup, error) {
		if call == 0 {
			return []arr.Backup{manual(1, start.Add(-time.Hour))}, nil
		}
		return []arr.Backup{manual(1, start.Add(-time.Hour)), manual(2, clock.Now())}, nil
	}}

	got, err := newTestAcquirer(api, clock, false).Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if got.ID != 2 || api.triggers != 1 {
		t.Errorf("Acquire() = backup %d after %d triggers, want 2 after 1", got.ID, api.triggers)
	}
	if clock.sleeps != 0 {
		t.Errorf("sleeps = %d, want 0", clock.sleeps)
	}
}

func TestAcquire_Timeout(t *testing.T) {
	clock := newFakeClock()
	start := clock.Now()
	api := &mockAPI{listFn: func(int) ([]arr.Backup, error) {
		return []arr.Backup{manual(1, start.Add(-2*time.Hour))}, nil
	}}

	_, err := newTestAcquirer(api, clock, false).Acquire(context.Background())
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("Acquire() error = %v, want ErrTimeout", err)
	}
	if got := Classify(err); got != "timeout" {
		t.Errorf("Classify() = %q, want timeout", got)
	}
	if api.triggers != 1 {
		t.Errorf("triggers = %d, want 1", api.triggers)
	}
	// Polls at 0s, 5s, ..., 60s; the check at 65s is past the deadline.
	if api.listCalls != 1+13 {
		t.Errorf("list calls = %d, want 14", api.listCalls)
	}
	if clock.sleeps != 13 {
		t.Errorf("sleeps = %d, want 13", clock.sleeps)
	}
	if elapsed := clock.Now().Sub(start); elapsed != 65*time.Second {
		t.Errorf("elapsed = %v, want 65s", elapsed)
	}
}

func TestAcquire_CustomPolling(t *testing.T) {
	clock := newFakeClock()
	api := &mockAPI{}
	policy := freshness.NewMaxAgePolicy(freshness.Config{MaxAge: time.Hour})
	a := NewAcquirer(api, policy, Options{PollInterval: time.Second, Timeout: 3 * time.Second}, discardLogger, WithClock(clock))

	_, err := a.Acquire(context.Background())
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("Acquire() error = %v, want ErrTimeout", err)
	}
	if api.listCalls != 1+4 {
		t.Errorf("list calls = %d, want 5", api.listCalls)
	}
}

func TestAcquire_Failures(t *testing.T) {
	listErr := &arr.TransportError{Op: "list backups", Err: errors.New("connection refused")}
	triggerErr := &arr.ServerError{Op: "trigger backup", StatusCode: 500}

	tests := []struct {
		name          string
		api           *mockAPI
		wantKind      string
		wantTriggers  int
		wantListCalls int
	}{
		{
			name:          "list fails while checking",
			api:           &mockAPI{listFn: func(int) ([]arr.Backup, error) { return nil, listErr }},
			wantKind:      "transport",
			wantTriggers:  0,
			wantListCalls: 1,
		},
		{
			name:          "trigger fails",
			api:           &mockAPI{triggerErr: triggerErr},
			wantKind:      "server",
			wantTriggers:  1,
			wantListCalls: 1,
		},
		{
			name: "list fails while polling",
			api: &mockAPI{listFn: func(call int) ([]arr.Backup, error) {
				if call == 0 {
					return nil, nil
				}
				return nil, &arr.DecodeError{Op: "list backups", Err: errors.New("bad json")}
			}},
			wantKind:      "decode",
			wantTriggers:  1,
			wantListCalls: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			observer := &recordingObserver{}
			_, err := newTestAcquirer(tt.api, newFakeClock(), false, WithObserver(observer)).Acquire(context.Background())
			if err == nil {
				t.Fatal("Acquire() expected error")
			}
			if got := Classify(err); got != tt.wantKind {
				t.Errorf("Classify() = %q, want %q (error %v)", got, tt.wantKind, err)
			}
			if tt.api.triggers != tt.wantTriggers {
				t.Errorf("triggers = %d, want %d", tt.api.triggers, tt.wantTriggers)
			}
			if tt.api.listCalls != tt.wantListCalls {
				t.Errorf("list calls = %d, want %d", tt.api.listCalls, tt.wantListCalls)
			}
			if last := observer.states[len(observer.states)-1]; last != "failed" || observer.lastErr == nil {
				t.Errorf("last state = %q (err %v), want failed", last, observer.lastErr)
			}
		})
	}
}

func TestAcquire_ForceNewIgnoresExistingFreshBackup(t *testing.T) {
	clock := newFakeClock()
	start := clock.Now()
	existing := manual(1, start.Add(-10*time.Minute))
	api := &mockAPI{listFn: func(call int) ([]arr.Backup, error) {
		if call <= 1 {
			return []arr.Backup{existing}, nil
		}
		return []arr.Backup{existing, manual(2, clock.Now())}, nil
	}}

	got, err := newTestAcquirer(api, clock, true).Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if got.ID != 2 {
		t.Errorf("Acquire() = backup %d, want 2", got.ID)
	}
	if api.triggers != 1 {
		t.Errorf("triggers = %d, want 1", api.triggers)
	}
	if clock.sleeps != 1 {
		t.Errorf("sleeps = %d, want 1", clock.sleeps)
	}
}

func TestAcquire_CancelledWhileSleeping(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestAcquirer(&mockAPI{}, newFakeClock(), false).Acquire(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Acquire() error = %v, want context.Canceled", err)
	}
	if got := Classify(err); got != "cancelled" {
		t.Errorf("Classify() = %q, want cancelled", got)
	}
}

func TestSupersedes(t *testing.T) {
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	tests := []struct {
		name      string
		candidate arr.Backup
		previous  arr.Backup
		want      bool
	}{
		{"newer", manual(1, base.Add(time.Second)), manual(2, base), true},
		{"older", manual(3, base.Add(-time.Second)), manual(2, base), false},
		{"same time higher id", manual(3, base), manual(2, base), true},
		{"same backup", manual(2, base), manual(2, base), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := supersedes(tt.candidate, tt.previous); got != tt.want {
				t.Errorf("supersedes() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRealClock_SleepCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	if err := (realClock{}).Sleep(ctx, time.Minute); !errors.Is(err, context.Canceled) {
		t.Errorf("Sleep() error = %v, want context.Canceled", err)
	}
	if time.Since(start) > time.Second {
		t.Error("Sleep() did not return promptly after cancellation")
	}
}
