// Package staging sweeps compiler staging files that an interrupted process
// left in the output tree.
package staging

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"kettle/internal/fileutil"
	"kettle/internal/logging"
)

// CleanStaleResult contains the outcome of a sweep.
type CleanStaleResult struct {
	Removed []string
	Errors  []CleanupError
}

// CleanupError pairs a path with its cleanup error.
type CleanupError struct {
	Path  string
	Error error
}

// CleanStale removes staging files under outputRoot last modified more than
// maxAge ago. Younger files may belong to a compile that is still running.
func CleanStale(ctx context.Context, outputRoot string, maxAge time.Duration, logger *slog.Logger) CleanStaleResult {
	result := CleanStaleResult{}
	logger = logging.NewComponentLogger(logger, "staging")

	outputRoot = strings.TrimSpace(outputRoot)
	if outputRoot == "" {
		return result
	}
	cutoff := time.Now().Add(-maxAge)

	err := filepath.WalkDir(outputRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			result.Errors = append(result.Errors, CleanupError{Path: path, Error: err})
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if !d.Type().IsRegular() || !fileutil.IsStagingFile(d.Name()) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			result.Errors = append(result.Errors, CleanupError{Path: path, Error: err})
			return nil
		}
		if !info.ModTime().Before(cutoff) {
			return nil
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			result.Errors = append(result.Errors, CleanupError{Path: path, Error: err})
			logger.Warn("failed to remove stale staging file",
				logging.String("path", path),
				logging.Error(err),
				logging.String("impact", "leftover file stays in output tree"),
			)
			return nil
		}
		result.Removed = append(result.Removed, path)
		logger.Info("removed stale staging file",
			logging.String("path", path),
			logging.Duration("age", time.Since(info.ModTime())),
		)
		return nil
	})
	if err != nil {
		result.Errors = append(result.Errors, CleanupError{Path: outputRoot, Error: err})
	}
	return result
}
