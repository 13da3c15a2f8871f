package backup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"krisa-backup/internal/logging"
)

// SQLiteAdapter dumps and restores a SQLite database file living inside a
// container. Dumps use the sqlite3 ".backup" command so the copy is
// consistent even while the owning process holds the database open.
type SQLiteAdapter struct {
	dataset Dataset
	runner  CommandRunner
	logger  *logging.Logger
}

// NewSQLiteAdapter creates an adapter for a SQLite dataset
func NewSQLiteAdapter(dataset Dataset, runner CommandRunner, logger *logging.Logger) *SQLiteAdapter {
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}
	return &SQLiteAdapter{dataset: dataset, runner: runner, logger: logger}
}

// Dataset returns the descriptor the adapter was built from
func (sa *SQLiteAdapter) Dataset() Dataset {
	return sa.dataset
}

// containerTempPath is where snapshots are staged inside the container
// before being copied out or moved into place
func (sa *SQLiteAdapter) containerTempPath(suffix string) string {
	return fmt.Sprintf("/tmp/%s-%s.db", sa.dataset.Name, suffix)
}

// Dump snapshots the database file into targetDir via the sqlite3
// online-backup command followed by a docker cp out of the container
func (sa *SQLiteAdapter) Dump(ctx context.Context, targetDir, dateTag string) (string, error) {
	dumpPath := filepath.Join(targetDir, BuildDumpName(sa.dataset.Name, dateTag, sa.dataset.DumpSuffix))
	tempPath := sa.containerTempPath("backup")

	argv := []string{
		"docker", "exec", sa.dataset.Container,
		"sqlite3", sa.dataset.DBPath,
		".backup " + tempPath,
	}
	result, err := sa.runner.Run(ctx, argv, CommandOptions{})
	if err != nil {
		sa.logger.LogDumpResult(sa.dataset.Name, dumpPath, 0, err)
		return "", err
	}
	if result.Failed() {
		dumpErr := NewCommandError(fmt.Sprintf("sqlite3 backup of %s failed", sa.dataset.Name), nil).
			WithContext("exit_code", result.ExitCode).
			WithContext("stderr", result.Stderr)
		sa.logger.LogDumpResult(sa.dataset.Name, dumpPath, 0, dumpErr)
		return "", dumpErr
	}

	argv = []string{
		"docker", "cp",
		fmt.Sprintf("%s:%s", sa.dataset.Container, tempPath),
		dumpPath,
	}
	result, err = sa.runner.Run(ctx, argv, CommandOptions{})
	if err != nil {
		sa.logger.LogDumpResult(sa.dataset.Name, dumpPath, 0, err)
		return "", err
	}
	if result.Failed() {
		copyErr := NewCommandError(fmt.Sprintf("failed to copy %s snapshot out of container", sa.dataset.Name), nil).
			WithContext("exit_code", result.ExitCode).
			WithContext("stderr", result.Stderr)
		sa.logger.LogDumpResult(sa.dataset.Name, dumpPath, 0, copyErr)
		return "", copyErr
	}

	var size int64
	if info, statErr := os.Stat(dumpPath); statErr == nil {
		size = info.Size()
	}
	sa.logger.LogDumpResult(sa.dataset.Name, dumpPath, size, nil)

	return dumpPath, nil
}

// Restore copies a dump into the container and moves it over the live
// database file. The mv is atomic within the container filesystem, so the
// owning process never observes a half-written file.
func (sa *SQLiteAdapter) Restore(ctx context.Context, dumpPath string) error {
	if _, err := os.Stat(dumpPath); err != nil {
		return NewNotFoundError("dump file not found", err).WithContext("path", dumpPath)
	}

	tempPath := sa.containerTempPath("restore")

	argv := []string{
		"docker", "cp",
		dumpPath,
		fmt.Sprintf("%s:%s", sa.dataset.Container, tempPath),
	}
	result, err := sa.runner.Run(ctx, argv, CommandOptions{})
	if err != nil {
		return err
	}
	if result.Failed() {
		return NewCommandError(fmt.Sprintf("failed to copy dump into %s container", sa.dataset.Name), nil).
			WithContext("exit_code", result.ExitCode).
			WithContext("stderr", result.Stderr)
	}

	argv = []string{
		"docker", "exec", sa.dataset.Container,
		"mv", tempPath, sa.dataset.DBPath,
	}
	result, err = sa.runner.Run(ctx, argv, CommandOptions{})
	if err != nil {
		return err
	}
	if result.Failed() {
		return NewCommandError(fmt.Sprintf("failed to replace %s database file", sa.dataset.Name), nil).
			WithContext("exit_code", result.ExitCode).
			WithContext("stderr", result.Stderr)
	}

	return nil
}
