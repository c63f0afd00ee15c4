// Package utils provides utility functions for the backup retrieval tool.
package utils

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"
)

const offsiteExt = ".zip"

// GenerateOffsiteFilename creates a timestamped filename for the offsite copy
// of a server backup.
func GenerateOffsiteFilename(prefix string, timestamp time.Time, backupName string) string {
	// Format: prefix-sonarr-2006-01-02T15-04-05-000Z.zip
	// Using dashes instead of colons for better filesystem compatibility
	t := timestamp.UTC()
	ms := t.Nanosecond() / 1000000
	timeStr := fmt.Sprintf("%s-%03dZ", t.Format("2006-01-02T15-04-05"), ms)

	app := applicationName(backupName)

	if prefix != "" {
		prefix = strings.TrimSuffix(prefix, "-")
		return fmt.Sprintf("%s-%s-%s%s", prefix, app, timeStr, offsiteExt)
	}

	return fmt.Sprintf("backup-%s-%s%s", app, timeStr, offsiteExt)
}

// applicationName extracts the application from a server backup name, e.g.
// "sonarr_backup_v4.0.5.1710_2024.05.01_10.20.30.zip" -> "sonarr".
func applicationName(backupName string) string {
	name, _, _ := strings.Cut(backupName, "_")
	name = strings.TrimSuffix(strings.ToLower(name), offsiteExt)

	var b strings.Builder
	for _, r := range name {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "unknown"
	}
	return b.String()
}

// ParseOffsiteFilename extracts the timestamp from an offsite filename.
// Format: prefix-app-2006-01-02T15-04-05-000Z.zip
func ParseOffsiteFilename(filename string) (time.Time, error) {
	// Keys may carry a year/month directory
	if i := strings.LastIndex(filename, "/"); i >= 0 {
		filename = filename[i+1:]
	}
	name := strings.TrimSuffix(filename, offsiteExt)

	// Find the timestamp part (last 24 characters: 2006-01-02T15-04-05-000Z)
	if len(name) < 24 {
		return time.Time{}, fmt.Errorf("filename too short to contain timestamp")
	}

	timeStr := name[len(name)-24:]
	if !strings.HasSuffix(timeStr, "Z") {
		return time.Time{}, fmt.Errorf("invalid timestamp format")
	}

	datePart := timeStr[:19] // 2006-01-02T15-04-05
	msPart := timeStr[20:23] // 000

	ms, err := strconv.Atoi(msPart)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid milliseconds: %w", err)
	}

	t, err := time.Parse("2006-01-02T15-04-05", datePart)
	if err != nil {
		return time.Time{}, err
	}

	return t.Add(time.Duration(ms) * time.Millisecond).UTC(), nil
}
