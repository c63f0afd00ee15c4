package arr

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

// BackupType is the origin of a backup as reported by the server.
type BackupType string

const (
	// BackupTypeManual is a backup requested through the API or UI.
	BackupTypeManual BackupType = "manual"
	// BackupTypeScheduled is a backup created by the server's own schedule.
	BackupTypeScheduled BackupType = "scheduled"
	// BackupTypeUpdate is a backup the server takes before applying an update.
	BackupTypeUpdate BackupType = "update"
)

// UnmarshalJSON rejects backup types the server is not known to emit.
func (t *BackupType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("backup type must be a string: %w", err)
	}
	switch v := BackupType(strings.ToLower(s)); v {
	case BackupTypeManual, BackupTypeScheduled, BackupTypeUpdate:
		*t = v
		return nil
	default:
		return fmt.Errorf("unknown backup type %q", s)
	}
}

// Backup is one backup record returned by GET /api/v3/system/backup.
type Backup struct {
	ID        int64      `json:"id"`
	Name      string     `json:"name"`
	CreatedAt time.Time  `json:"time"`
	Type      BackupType `json:"type"`
}

// offset-less layouts the server uses for "time"; values are UTC.
var localTimeLayouts = []string{
	"2006-01-02T15:04:05.9999999",
	"2006-01-02T15:04:05",
}

// UnmarshalJSON decodes a backup record and normalizes CreatedAt to UTC.
func (b *Backup) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID   *int64          `json:"id"`
		Name string          `json:"name"`
		Time json.RawMessage `json:"time"`
		Type BackupType      `json:"type"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw.ID == nil {
		return fmt.Errorf("backup record is missing id")
	}
	if raw.Type == "" {
		return fmt.Errorf("backup record %d is missing type", *raw.ID)
	}

	createdAt, err := parseBackupTime(raw.Time)
	if err != nil {
		return fmt.Errorf("backup record %d: %w", *raw.ID, err)
	}

	*b = Backup{
		ID:        *raw.ID,
		Name:      raw.Name,
		CreatedAt: createdAt,
		Type:      raw.Type,
	}
	return nil
}

func parseBackupTime(raw json.RawMessage) (time.Time, error) {
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return time.Time{}, fmt.Errorf("missing time")
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return time.Time{}, fmt.Errorf("time must be a string: %w", err)
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), nil
	}
	for _, layout := range localTimeLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid time %q", s)
}

// Age returns how long ago the backup was created. It is negative when the
// server clock is ahead of ours.
func (b Backup) Age(now time.Time) time.Duration {
	return now.Sub(b.CreatedAt)
}

// IsRecent reports whether the backup is younger than maxAge. A negative age
// is never recent.
func (b Backup) IsRecent(now time.Time, maxAge time.Duration) bool {
	age := b.Age(now)
	return age >= 0 && age < maxAge
}

// IsManual reports whether the backup was requested explicitly.
func (b Backup) IsManual() bool {
	return b.Type == BackupTypeManual
}

// FileName returns the backup name after checking that it is a plain file
// name, so it can be joined onto the server's backup directory.
func (b Backup) FileName() (string, error) {
	name := b.Name
	if name == "" {
		return "", fmt.Errorf("backup %d has no name", b.ID)
	}
	if name == "." || strings.ContainsAny(name, `/\`) || strings.ContainsRune(name, 0) || !filepath.IsLocal(name) {
		return "", fmt.Errorf("backup %d has unsafe name %q", b.ID, name)
	}
	return name, nil
}

// LatestManual returns the manual backup with the newest CreatedAt. Ties go
// to the highest ID. The second result is false when there is no manual
// backup at all.
func LatestManual(backups []Backup) (Backup, bool) {
	var latest Backup
	found := false
	for _, b := range backups {
		if !b.IsManual() {
			continue
		}
		if !found || b.CreatedAt.After(latest.CreatedAt) ||
			(b.CreatedAt.Equal(latest.CreatedAt) && b.ID > latest.ID) {
			latest = b
			found = true
		}
	}
	return latest, found
}
