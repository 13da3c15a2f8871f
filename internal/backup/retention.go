package backup

import (
	"os"
	"path/filepath"
	"time"

	"krisa-backup/internal/logging"
)

// RetentionSweeper deletes encrypted artifacts older than a retention
// window. Age comes from the date token in the filename, never from
// filesystem timestamps, which copy operations routinely rewrite.
type RetentionSweeper struct {
	logger *logging.Logger
	now    func() time.Time
}

// NewRetentionSweeper creates a sweeper using the wall clock
func NewRetentionSweeper(logger *logging.Logger) *RetentionSweeper {
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}
	return &RetentionSweeper{logger: logger, now: time.Now}
}

// Sweep removes artifacts in dir whose filename date falls before the
// cutoff and returns how many were deleted. A non-positive retention
// disables sweeping entirely.
func (rs *RetentionSweeper) Sweep(dir string, retentionDays int) (int, error) {
	if retentionDays <= 0 {
		return 0, nil
	}

	matches, err := filepath.Glob(filepath.Join(dir, "*"+ArchiveSuffix))
	if err != nil {
		return 0, NewStorageError("failed to list archive directory", err).WithContext("path", dir)
	}

	nowUTC := rs.now().UTC()
	today := time.Date(nowUTC.Year(), nowUTC.Month(), nowUTC.Day(), 0, 0, 0, 0, time.UTC)
	cutoff := today.AddDate(0, 0, -retentionDays)

	deleted := 0
	for _, path := range matches {
		parsed, err := ParseArchiveName(filepath.Base(path))
		if err != nil {
			rs.logger.Debugf("Skipping %s: no parseable date token", filepath.Base(path))
			continue
		}
		if !parsed.Date.Before(cutoff) {
			continue
		}
		if err := os.Remove(path); err != nil {
			rs.logger.Warnf("Could not remove expired artifact %s: %v", path, err)
			continue
		}
		deleted++
	}

	rs.logger.LogRetentionSweep(dir, retentionDays, deleted)
	return deleted, nil
}
