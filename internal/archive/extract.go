// Package archive unpacks backup zip archives without letting their contents
// escape the destination directory.
//
// File permissions and symbolic links recorded in the archive are never
// reproduced. Every file is created with the default mode (0666 less umask).
package archive

import (
	"archive/zip"
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/imedwei/arr-backup/internal/metrics"
	"github.com/imedwei/arr-backup/internal/utils"
)

// Result summarizes a finished extraction.
type Result struct {
	Files int
	Dirs  int
	Bytes int64
}

// Extractor writes archive entries to disk.
type Extractor struct {
	logger *slog.Logger
}

// NewExtractor creates a new extractor.
func NewExtractor(logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{
		logger: logger.With("component", "extractor"),
	}
}

// ExtractFile opens the zip archive at src and extracts it into dest.
func (e *Extractor) ExtractFile(ctx context.Context, src, dest string) (*Result, error) {
	zr, err := zip.OpenReader(src)
	if err != nil && !errors.Is(err, zip.ErrInsecurePath) {
		return nil, &IOError{Op: "open archive", Path: src, Err: err}
	}
	// ErrInsecurePath still yields a usable reader; entries are checked
	// individually below.
	defer func() {
		if err := zr.Close(); err != nil {
			e.logger.Warn("Failed to close archive", "path", src, "error", err)
		}
	}()

	return e.Extract(ctx, &zr.Reader, dest)
}

// Extract writes every entry of zr below dest, in archive order. The first
// failure aborts the extraction; entries written before it are left in place.
func (e *Extractor) Extract(ctx context.Context, zr *zip.Reader, dest string) (*Result, error) {
	root, err := filepath.Abs(dest)
	if err != nil {
		return nil, &IOError{Op: "resolve destination", Path: dest, Err: err}
	}

	start := time.Now()
	result := &Result{}
	e.logger.Info("Extracting archive", "destination", root, "entries", len(zr.File))

	for _, f := range zr.File {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		rel, isDir, err := entryPath(f.Name)
		if err != nil {
			e.logger.Error("Rejected archive entry", "entry", f.Name, "error", err)
			return result, err
		}
		isDir = isDir || f.FileInfo().IsDir()

		outPath, err := resolve(root, rel)
		if err != nil {
			e.logger.Error("Rejected archive entry", "entry", f.Name, "error", err)
			return result, err
		}

		if err := checkNoSymlinks(root, rel); err != nil {
			e.logger.Error("Symlink encountered", "entry", f.Name, "error", err)
			return result, err
		}

		if isDir {
			if err := os.MkdirAll(outPath, 0o777); err != nil {
				return result, &IOError{Op: "create directory", Path: outPath, Err: err}
			}
			result.Dirs++
			continue
		}

		n, err := e.writeFile(f, outPath)
		result.Bytes += n
		metrics.ExtractedBytes.Add(float64(n))
		if err != nil {
			return result, err
		}
		result.Files++
		metrics.ExtractedFiles.Inc()
	}

	e.logger.Info("Archive extracted",
		"destination", root,
		"files", result.Files,
		"directories", result.Dirs,
		"size", utils.FormatBytes(result.Bytes),
		"duration", time.Since(start),
	)
	return result, nil
}

// writeFile copies one entry to outPath, replacing any regular file there.
func (e *Extractor) writeFile(f *zip.File, outPath string) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(outPath), 0o777); err != nil {
		return 0, &IOError{Op: "create directory", Path: filepath.Dir(outPath), Err: err}
	}

	rc, err := f.Open()
	if err != nil {
		return 0, &IOError{Op: "read entry", Path: f.Name, Err: err}
	}
	defer func() {
		_ = rc.Close()
	}()

	out, err := os.OpenFile(outPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o666)
	if err != nil {
		return 0, &IOError{Op: "create file", Path: outPath, Err: err}
	}

	n, copyErr := copyEntry(out, rc, func(written int64, elapsed time.Duration) {
		e.logger.Info("Extraction progress",
			"entry", f.Name,
			"written", utils.FormatBytes(written),
			"rate", utils.FormatRate(utils.Throughput(written, elapsed)),
		)
	})

	closeErr := out.Close()
	if copyErr != nil {
		return n, &IOError{Op: "write file", Path: outPath, Err: copyErr}
	}
	if closeErr != nil {
		return n, &IOError{Op: "close file", Path: outPath, Err: closeErr}
	}
	return n, nil
}

// entryPath validates a raw entry name and returns it as a cleaned relative
// OS path. Backslashes count as separators regardless of platform.
func entryPath(name string) (string, bool, error) {
	if name == "" {
		return "", false, &UnsafePathError{Name: name, Reason: "empty path"}
	}
	if strings.ContainsRune(name, 0) {
		return "", false, &UnsafePathError{Name: name, Reason: "path contains NUL byte"}
	}

	slashed := strings.ReplaceAll(name, `\`, "/")
	isDir := strings.HasSuffix(slashed, "/")

	if strings.HasPrefix(slashed, "/") {
		return "", false, &UnsafePathError{Name: name, Reason: "absolute path"}
	}

	rel := filepath.FromSlash(slashed)
	if filepath.IsAbs(rel) || filepath.VolumeName(rel) != "" {
		return "", false, &UnsafePathError{Name: name, Reason: "absolute path"}
	}

	rel = filepath.Clean(rel)
	if !filepath.IsLocal(rel) {
		return "", false, &UnsafePathError{Name: name, Reason: "path escapes destination"}
	}
	return rel, isDir, nil
}

// resolve joins rel onto root and verifies the result is root or below it.
func resolve(root, rel string) (string, error) {
	out := filepath.Join(root, rel)
	back, err := filepath.Rel(root, out)
	if err != nil || back == ".." || strings.HasPrefix(back, ".."+string(filepath.Separator)) || filepath.IsAbs(back) {
		return "", &UnsafePathError{Name: rel, Reason: "path escapes destination"}
	}
	return out, nil
}

// checkNoSymlinks walks rel component by component below root and fails if
// any existing component is a symbolic link.
func checkNoSymlinks(root, rel string) error {
	if rel == "." {
		return nil
	}
	current := root
	for _, part := range strings.Split(rel, string(filepath.Separator)) {
		current = filepath.Join(current, part)
		info, err := os.Lstat(current)
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		if err != nil {
			return &IOError{Op: "inspect path", Path: current, Err: err}
		}
		if info.Mode()&fs.ModeSymlink != 0 {
			return &SymlinkError{Path: current}
		}
	}
	return nil
}
