package backup

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/imedwei/arr-backup/internal/arr"
	"github.com/imedwei/arr-backup/internal/freshness"
	"github.com/imedwei/arr-backup/internal/metrics"
)

// Polling defaults.
const (
	DefaultPollInterval = 5 * time.Second
	DefaultTimeout      = 60 * time.Second
)

// Options holds the polling knobs of the acquisition state machine.
type Options struct {
	PollInterval time.Duration
	Timeout      time.Duration
}

// Option customizes an Acquirer or Orchestrator.
type Option func(*settings)

type settings struct {
	clock    Clock
	observer StateObserver
}

// WithClock replaces the wall clock, typically with a fake in tests.
func WithClock(c Clock) Option {
	return func(s *settings) { s.clock = c }
}

// WithObserver reports state changes to o. A nil observer is ignored.
func WithObserver(o StateObserver) Option {
	return func(s *settings) {
		if o != nil {
			s.observer = o
		}
	}
}

func applyOptions(opts []Option) settings {
	s := settings{clock: realClock{}, observer: nopObserver{}}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

// Acquirer obtains a manual backup that satisfies the freshness policy,
// triggering a new one and polling for it when needed.
type Acquirer struct {
	api      API
	policy   freshness.Policy
	options  Options
	clock    Clock
	observer StateObserver
	logger   *slog.Logger
}

// NewAcquirer creates an acquirer. Zero Options fields take the defaults.
func NewAcquirer(api API, policy freshness.Policy, options Options, logger *slog.Logger, opts ...Option) *Acquirer {
	if options.PollInterval <= 0 {
		options.PollInterval = DefaultPollInterval
	}
	if options.Timeout <= 0 {
		options.Timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := applyOptions(opts)

	return &Acquirer{
		api:      api,
		policy:   policy,
		options:  options,
		clock:    s.clock,
		observer: s.observer,
		logger:   logger,
	}
}

// Acquire runs the state machine to completion and returns the resolved
// backup. Errors from the API are returned unchanged in kind; no call is
// retried except the polling list.
func (a *Acquirer) Acquire(ctx context.Context) (arr.Backup, error) {
	start := a.clock.Now()
	defer func() {
		metrics.PhaseDuration.WithLabelValues("acquire").Observe(a.clock.Now().Sub(start).Seconds())
	}()

	a.enter(StateChecking)
	a.logger.Info("Looking for a fresh manual backup", "max_age", a.policy.MaxAge())
	backups, err := a.api.ListBackups(ctx)
	if err != nil {
		return arr.Backup{}, a.fail(fmt.Errorf("failed to list backups: %w", err))
	}

	existing, found := arr.LatestManual(backups)
	// A fresh backup that was not reused means a new one is forced; the
	// polled result must then be newer so the old one is not picked up.
	var mustSupersede bool
	if found {
		now := a.clock.Now()
		reuse, reason := a.policy.Reuse(existing.Age(now))
		a.logger.Info("Freshness decision",
			"backup_id", existing.ID,
			"backup_name", existing.Name,
			"reuse", reuse,
			"reason", reason,
		)
		if reuse {
			metrics.BackupsReused.Inc()
			return a.done(existing, now), nil
		}
		mustSupersede = a.policy.Fresh(existing.Age(now))
	} else {
		a.logger.Info("No manual backup found", "backups", len(backups))
	}

	a.enter(StateTriggering)
	if err := a.api.TriggerBackup(ctx); err != nil {
		return arr.Backup{}, a.fail(fmt.Errorf("failed to trigger backup: %w", err))
	}
	metrics.BackupsTriggered.Inc()
	deadline := a.clock.Now().Add(a.options.Timeout)

	a.enter(StatePolling)
	for polls := 0; ; polls++ {
		now := a.clock.Now()
		if now.After(deadline) {
			return arr.Backup{}, a.fail(fmt.Errorf("%w after %s and %d polls", ErrTimeout, a.options.Timeout, polls))
		}

		metrics.PollAttempts.Inc()
		backups, err := a.api.ListBackups(ctx)
		if err != nil {
			return arr.Backup{}, a.fail(fmt.Errorf("failed to list backups while polling: %w", err))
		}

		candidate, ok := arr.LatestManual(backups)
		if ok && a.policy.Fresh(candidate.Age(now)) && (!mustSupersede || supersedes(candidate, existing)) {
			return a.done(candidate, now), nil
		}

		a.logger.Debug("Backup not ready yet",
			"poll", polls+1,
			"remaining", deadline.Sub(now).Round(time.Second),
		)
		if err := a.clock.Sleep(ctx, a.options.PollInterval); err != nil {
			return arr.Backup{}, a.fail(fmt.Errorf("polling interrupted: %w", err))
		}
	}
}

func supersedes(candidate, previous arr.Backup) bool {
	if candidate.CreatedAt.Equal(previous.CreatedAt) {
		return candidate.ID > previous.ID
	}
	return candidate.CreatedAt.After(previous.CreatedAt)
}

func (a *Acquirer) enter(state State) {
	a.logger.Debug("Acquisition state", "state", state)
	a.observer.SetState(string(state), nil)
}

func (a *Acquirer) done(b arr.Backup, now time.Time) arr.Backup {
	age := b.Age(now)
	metrics.LastBackupAge.Set(age.Seconds())
	a.logger.Info("Backup resolved",
		"backup_id", b.ID,
		"backup_name", b.Name,
		"created_at", b.CreatedAt,
		"age", age.Round(time.Second),
	)
	a.observer.SetState(string(StateDone), nil)
	a.observer.SetBackup(b.ID, b.Name)
	return b
}

func (a *Acquirer) fail(err error) error {
	a.logger.Error("Acquisition failed", "error", err)
	a.observer.SetState(string(StateFailed), err)
	return err
}
