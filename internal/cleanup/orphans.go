package cleanup

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// SweepOrphanedTempDirs removes job temp directories left behind by a
// previous process, preserving any newer than maxAge. Called once at
// startup and periodically by maintenance.
//
// Returns the number of directories removed.
func SweepOrphanedTempDirs(logger *slog.Logger, baseDir string, maxAge time.Duration) (int, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if _, err := os.Stat(baseDir); os.IsNotExist(err) {
		logger.Debug("temp base directory does not exist, skipping sweep",
			slog.String("path", baseDir),
		)
		return 0, nil
	}

	entries, err := os.ReadDir(baseDir)
	if err != nil {
		logger.Error("failed to read temp base directory",
			slog.String("path", baseDir),
			slog.String("error", err.Error()),
		)
		return 0, err
	}

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for _, entry := range entries {
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), TempDirPrefix) {
			continue
		}

		dirPath := filepath.Join(baseDir, entry.Name())
		info, err := entry.Info()
		if err != nil {
			logger.Warn("failed to stat temp directory",
				slog.String("path", dirPath),
				slog.String("error", err.Error()),
			)
			continue
		}
		if info.ModTime().After(cutoff) {
			logger.Debug("preserving recent temp directory",
				slog.String("path", dirPath),
				slog.Duration("age", time.Since(info.ModTime()).Round(time.Second)),
			)
			continue
		}

		if err := os.RemoveAll(dirPath); err != nil {
			logger.Warn("failed to remove orphaned temp directory",
				slog.String("path", dirPath),
				slog.String("error", err.Error()),
			)
			continue
		}
		removed++
	}

	if removed > 0 {
		logger.Info("removed orphaned temp directories",
			slog.String("path", baseDir),
			slog.Int("removed", removed),
		)
	}
	return removed, nil
}
