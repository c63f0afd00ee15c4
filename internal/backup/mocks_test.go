package backup

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/imedwei/arr-backup/internal/arr"
	"github.com/imedwei/arr-backup/internal/storage"
)

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// fakeClock advances only when Sleep is called.
type fakeClock struct {
	now    time.Time
	sleeps int
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	c.sleeps++
	c.now = c.now.Add(d)
	return ctx.Err()
}

// mockAPI answers list calls through listFn; call 0 is the Checking list.
type mockAPI struct {
	listFn     func(call int) ([]arr.Backup, error)
	listCalls  int
	triggerErr error
	triggers   int
	deleteErr  error
	deleted    []int64
}

func (m *mockAPI) ListBackups(ctx context.Context) ([]arr.Backup, error) {
	call := m.listCalls
	m.listCalls++
	if m.listFn == nil {
		return nil, nil
	}
	return m.listFn(call)
}

func (m *mockAPI) TriggerBackup(ctx context.Context) error {
	m.triggers++
	return m.triggerErr
}

func (m *mockAPI) DeleteBackup(ctx context.Context, id int64) error {
	m.deleted = append(m.deleted, id)
	return m.deleteErr
}

// recordingObserver keeps every reported state.
type recordingObserver struct {
	mu      sync.Mutex
	states  []string
	lastErr error
	id      int64
	name    string
}

func (r *recordingObserver) SetState(state string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, state)
	r.lastErr = err
}

func (r *recordingObserver) SetBackup(id int64, name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.id = id
	r.name = name
}

type mockStorage struct {
	stored     bool
	uploadErr  error
	uploadKey  string
	uploaded   []byte
	metadata   map[string]string
	listResult []storage.ObjectInfo
	listErr    error
	deleted    []string
}

func (m *mockStorage) Upload(ctx context.Context, key string, reader io.Reader, metadata map[string]string) error {
	m.uploadKey = key
	m.metadata = metadata
	m.uploaded, _ = io.ReadAll(reader)
	return m.uploadErr
}

func (m *mockStorage) Exists(ctx context.Context, key string) (bool, error) {
	return m.stored, nil
}

func (m *mockStorage) Delete(ctx context.Context, key string) error {
	m.deleted = append(m.deleted, key)
	return nil
}

func (m *mockStorage) List(ctx context.Context, prefix string) ([]storage.ObjectInfo, error) {
	return m.listResult, m.listErr
}

func manual(id int64, created time.Time) arr.Backup {
	return arr.Backup{
		ID:        id,
		Name:      "sonarr_backup_v4.0.5.1710_" + created.Format("2006.01.02_15.04.05") + ".zip",
		CreatedAt: created,
		Type:      arr.BackupTypeManual,
	}
}

func scheduled(id int64, created time.Time) arr.Backup {
	b := manual(id, created)
	b.Type = arr.BackupTypeScheduled
	return b
}
