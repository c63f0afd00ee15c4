package backup

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/imedwei/arr-backup/internal/archive"
	"github.com/imedwei/arr-backup/internal/arr"
	"github.com/imedwei/arr-backup/internal/config"
	"github.com/imedwei/arr-backup/internal/freshness"
	"github.com/imedwei/arr-backup/internal/metrics"
	"github.com/imedwei/arr-backup/internal/storage"
	"github.com/imedwei/arr-backup/internal/utils"
)

// ToolName is recorded in the metadata of every offsite copy.
const ToolName = "arr-backup"

// Orchestrator coordinates one retrieval run.
type Orchestrator struct {
	config    *config.Config
	api       API
	storage   storage.Storage
	acquirer  *Acquirer
	extractor *archive.Extractor
	clock     Clock
	observer  StateObserver
	logger    *slog.Logger
}

// NewOrchestrator creates a new run orchestrator. store may be nil when
// offsite storage is disabled.
func NewOrchestrator(cfg *config.Config, api API, store storage.Storage, logger *slog.Logger, opts ...Option) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	s := applyOptions(opts)

	policy := freshness.NewMaxAgePolicy(freshness.Config{
		MaxAge:   cfg.MaxBackupAge,
		ForceNew: cfg.ForceBackup,
	})
	acquirer := NewAcquirer(api, policy, Options{
		PollInterval: cfg.PollInterval,
		Timeout:      cfg.BackupTimeout,
	}, logger.With("component", "acquirer"), opts...)

	return &Orchestrator{
		config:    cfg,
		api:       api,
		storage:   store,
		acquirer:  acquirer,
		extractor: archive.NewExtractor(logger),
		clock:     s.clock,
		observer:  s.observer,
		logger:    logger,
	}
}

// Run executes the retrieval run. Every failure is terminal; files already
// extracted when a later step fails are left in place.
func (o *Orchestrator) Run(ctx context.Context) (err error) {
	startTime := o.clock.Now()
	o.logger.Info("Starting backup retrieval", "server", o.config.BaseURL)

	metrics.Info.WithLabelValues(arr.Version, o.config.StorageProvider).Set(1)

	defer func() {
		metrics.RecordRun(err == nil)
		metrics.PhaseDuration.WithLabelValues("total").Observe(o.clock.Now().Sub(startTime).Seconds())
		if err != nil {
			o.observer.SetState(string(StateFailed), err)
			return
		}
		metrics.LastSuccessTimestamp.Set(float64(o.clock.Now().Unix()))
		o.observer.SetState(string(StateSucceeded), nil)
	}()

	if err := o.checkPreconditions(); err != nil {
		return err
	}

	b, err := o.acquirer.Acquire(ctx)
	if err != nil {
		return err
	}

	name, err := b.FileName()
	if err != nil {
		return &archive.UnsafePathError{Name: b.Name, Reason: err.Error()}
	}
	src := filepath.Join(o.config.ConfigDir, "Backups", "manual", name)

	o.observer.SetState(string(StateExtracting), nil)
	extractStart := o.clock.Now()
	result, err := o.extractor.ExtractFile(ctx, src, o.config.DestDir)
	if err != nil {
		return fmt.Errorf("failed to extract %s: %w", name, err)
	}
	metrics.PhaseDuration.WithLabelValues("extract").Observe(o.clock.Now().Sub(extractStart).Seconds())

	if o.storage != nil {
		o.observer.SetState(string(StateUploading), nil)
		if err := o.uploadOffsite(ctx, b, src); err != nil {
			return err
		}

		if o.config.RetentionDays > 0 {
			if err := o.cleanupOldBackups(ctx); err != nil {
				o.logger.Warn("Failed to cleanup old offsite backups", "error", err)
			}
		}
	}

	if o.config.DeleteBackup {
		o.observer.SetState(string(StateDeleting), nil)
		if err := o.api.DeleteBackup(ctx, b.ID); err != nil {
			return fmt.Errorf("failed to delete backup %d from server: %w", b.ID, err)
		}
		o.logger.Info("Deleted backup from server", "backup_id", b.ID, "backup_name", b.Name)
	} else {
		o.logger.Debug("Keeping backup on server", "backup_id", b.ID)
	}

	o.logger.Info("Backup retrieval completed",
		"backup_name", b.Name,
		"destination", o.config.DestDir,
		"files", result.Files,
		"size", utils.FormatBytes(result.Bytes),
		"duration", o.clock.Now().Sub(startTime),
	)
	return nil
}

// checkPreconditions verifies the local directories before any network call.
func (o *Orchestrator) checkPreconditions() error {
	info, err := os.Stat(o.config.DestDir)
	if err != nil {
		return fmt.Errorf("%w: destination directory %s: %v", ErrPrecondition, o.config.DestDir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: destination %s is not a directory", ErrPrecondition, o.config.DestDir)
	}

	info, err = os.Stat(o.config.ConfigDir)
	if err != nil {
		return fmt.Errorf("%w: config directory %s: %v", ErrPrecondition, o.config.ConfigDir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: config directory %s is not a directory", ErrPrecondition, o.config.ConfigDir)
	}

	empty, err := isEmptyDir(o.config.DestDir)
	if err != nil {
		return fmt.Errorf("%w: reading destination directory: %v", ErrPrecondition, err)
	}
	if !empty {
		return fmt.Errorf("%w: destination directory %s is not empty", ErrPrecondition, o.config.DestDir)
	}

	return nil
}

func isEmptyDir(dir string) (bool, error) {
	f, err := os.Open(dir)
	if err != nil {
		return false, err
	}
	defer func() {
		_ = f.Close()
	}()

	_, err = f.Readdirnames(1)
	if errors.Is(err, io.EOF) {
		return true, nil
	}
	return false, err
}

// offsiteKey returns the storage key for a backup, grouped by year and month
// of its creation time.
func (o *Orchestrator) offsiteKey(b arr.Backup) string {
	created := b.CreatedAt.UTC()
	filename := utils.GenerateOffsiteFilename(o.config.BackupFilePrefix, created, b.Name)
	return fmt.Sprintf("%d/%02d/%s", created.Year(), created.Month(), filename)
}

// uploadOffsite copies the source archive to offsite storage.
func (o *Orchestrator) uploadOffsite(ctx context.Context, b arr.Backup, src string) error {
	f, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("%w: open %s: %v", ErrOffsite, src, err)
	}
	defer func() {
		if err := f.Close(); err != nil {
			o.logger.Warn("Failed to close archive", "error", err)
		}
	}()

	var size int64
	if info, err := f.Stat(); err == nil {
		size = info.Size()
	}

	key := o.offsiteKey(b)
	exists, err := o.storage.Exists(ctx, key)
	if err != nil {
		return fmt.Errorf("%w: checking %s: %v", ErrOffsite, key, err)
	}
	if exists {
		// Keys derive from the creation time, so a reused backup lands on the
		// same key as its earlier copy.
		o.logger.Info("Backup already stored offsite, skipping upload", "storage_key", key)
		return nil
	}

	metadata := map[string]string{
		"backup-id":        strconv.FormatInt(b.ID, 10),
		"backup-name":      b.Name,
		"backup-timestamp": b.CreatedAt.UTC().Format(time.RFC3339),
		"backup-tool":      ToolName,
	}

	o.logger.Info("Starting upload to storage", "provider", o.config.StorageProvider, "storage_key", key)
	uploadStart := o.clock.Now()

	if err := o.storage.Upload(ctx, key, f, metadata); err != nil {
		return fmt.Errorf("%w: %v", ErrOffsite, err)
	}

	uploadDuration := o.clock.Now().Sub(uploadStart)
	metrics.PhaseDuration.WithLabelValues("upload").Observe(uploadDuration.Seconds())
	o.logger.Info("Offsite upload completed",
		"storage_key", key,
		"size", utils.FormatBytes(size),
		"upload_duration", uploadDuration,
		"rate", utils.FormatRate(utils.Throughput(size, uploadDuration)),
	)
	return nil
}

// cleanupOldBackups removes offsite copies older than the retention period.
func (o *Orchestrator) cleanupOldBackups(ctx context.Context) error {
	o.logger.Info("Starting cleanup of old backups", "retention_days", o.config.RetentionDays)

	now := o.clock.Now()
	cutoff := now.AddDate(0, 0, -o.config.RetentionDays)

	objects, err := o.storage.List(ctx, "")
	if err != nil {
		return fmt.Errorf("failed to list backups: %w", err)
	}

	var deleted int
	for _, obj := range objects {
		backupTime, err := utils.ParseOffsiteFilename(obj.Key)
		if err != nil {
			o.logger.Warn("Failed to parse backup timestamp, using last modified time",
				"filename", obj.Key,
				"error", err,
			)
			backupTime = obj.LastModified
		}

		if !backupTime.Before(cutoff) {
			continue
		}

		o.logger.Info("Deleting old backup",
			"filename", obj.Key,
			"backup_time", backupTime,
			"age_days", int(now.Sub(backupTime).Hours()/24),
		)
		if err := o.storage.Delete(ctx, obj.Key); err != nil {
			o.logger.Error("Failed to delete old backup", "filename", obj.Key, "error", err)
			continue
		}
		deleted++
		metrics.OffsiteDeleted.Inc()
	}

	o.logger.Info("Cleanup completed", "deleted_count", deleted)
	return nil
}
