package backup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"krisa-backup/internal/logging"
)

// postgresTolerated enumerates the benign restore noise pg_restore emits
// when replaying --clean statements against objects that were already reset
var postgresTolerated = ToleratedPatterns{
	"already exists",
	"does not exist",
}

// PostgresAdapter dumps and restores a PostgreSQL database running inside a
// container, using pg_dump and pg_restore through docker exec
type PostgresAdapter struct {
	dataset Dataset
	runner  CommandRunner
	logger  *logging.Logger
}

// NewPostgresAdapter creates an adapter for a PostgreSQL dataset
func NewPostgresAdapter(dataset Dataset, runner CommandRunner, logger *logging.Logger) *PostgresAdapter {
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}
	return &PostgresAdapter{dataset: dataset, runner: runner, logger: logger}
}

// Dataset returns the descriptor the adapter was built from
func (pa *PostgresAdapter) Dataset() Dataset {
	return pa.dataset
}

// Dump produces a custom-format pg_dump snapshot in targetDir. The dump
// streams straight from the container to the file, never through memory.
func (pa *PostgresAdapter) Dump(ctx context.Context, targetDir, dateTag string) (string, error) {
	dumpPath := filepath.Join(targetDir, BuildDumpName(pa.dataset.Name, dateTag, pa.dataset.DumpSuffix))

	argv := []string{
		"docker", "exec", "-i", pa.dataset.Container,
		"pg_dump",
		"-U", pa.dataset.Username,
		"-d", pa.dataset.Database,
		"-Fc",
	}

	result, err := pa.runner.Run(ctx, argv, CommandOptions{StdoutFile: dumpPath})
	if err != nil {
		pa.removePartial(dumpPath)
		pa.logger.LogDumpResult(pa.dataset.Name, dumpPath, 0, err)
		return "", err
	}
	if result.Failed() {
		pa.removePartial(dumpPath)
		dumpErr := NewCommandError(fmt.Sprintf("pg_dump of %s failed", pa.dataset.Name), nil).
			WithContext("exit_code", result.ExitCode).
			WithContext("stderr", result.Stderr)
		pa.logger.LogDumpResult(pa.dataset.Name, dumpPath, 0, dumpErr)
		return "", dumpErr
	}

	var size int64
	if info, statErr := os.Stat(dumpPath); statErr == nil {
		size = info.Size()
	}
	pa.logger.LogDumpResult(pa.dataset.Name, dumpPath, size, nil)

	return dumpPath, nil
}

// Restore replaces the live database contents with a dump. The sequence is
// deliberate: disconnect other sessions, reset the public schema, then
// replay the dump with ownership and privilege statements stripped.
func (pa *PostgresAdapter) Restore(ctx context.Context, dumpPath string) error {
	if _, err := os.Stat(dumpPath); err != nil {
		return NewNotFoundError("dump file not found", err).WithContext("path", dumpPath)
	}

	// Lingering sessions would block the schema drop. Failure here is
	// non-fatal: an idle database simply has none to terminate.
	terminateSQL := fmt.Sprintf(
		"SELECT pg_terminate_backend(pid) FROM pg_stat_activity WHERE datname = '%s' AND pid <> pg_backend_pid();",
		pa.dataset.Database,
	)
	if result, err := pa.runPSQL(ctx, terminateSQL); err != nil || result.Failed() {
		pa.logger.Warnf("Could not terminate active sessions for %s, continuing", pa.dataset.Name)
	}

	resetSQL := "DROP SCHEMA public CASCADE; CREATE SCHEMA public; GRANT ALL ON SCHEMA public TO public;"
	result, err := pa.runPSQL(ctx, resetSQL)
	if err != nil {
		return err
	}
	if result.Failed() {
		return NewCommandError(fmt.Sprintf("failed to reset schema for %s", pa.dataset.Name), nil).
			WithContext("exit_code", result.ExitCode).
			WithContext("stderr", result.Stderr)
	}

	dumpFile, err := os.Open(dumpPath)
	if err != nil {
		return NewStorageError("failed to open dump file", err).WithContext("path", dumpPath)
	}
	defer dumpFile.Close()

	argv := []string{
		"docker", "exec", "-i", pa.dataset.Container,
		"pg_restore",
		"-U", pa.dataset.Username,
		"-d", pa.dataset.Database,
		"--clean", "--if-exists",
		"--no-owner", "--no-privileges",
	}
	result, err = pa.runner.Run(ctx, argv, CommandOptions{Stdin: dumpFile})
	if err != nil {
		return err
	}
	if result.Failed() {
		if !postgresTolerated.Tolerates(result.Stderr) {
			return NewCommandError(fmt.Sprintf("pg_restore of %s failed", pa.dataset.Name), nil).
				WithContext("exit_code", result.ExitCode).
				WithContext("stderr", result.Stderr)
		}
		pa.logger.Warnf("Restore of %s completed with warnings", pa.dataset.Name)
	}

	return nil
}

// runPSQL executes a SQL snippet inside the container through psql
func (pa *PostgresAdapter) runPSQL(ctx context.Context, sql string) (*CommandResult, error) {
	argv := []string{
		"docker", "exec", "-i", pa.dataset.Container,
		"psql",
		"-U", pa.dataset.Username,
		"-d", pa.dataset.Database,
		"-c", sql,
	}
	return pa.runner.Run(ctx, argv, CommandOptions{})
}

// removePartial deletes an incomplete dump so a failed run never leaves a
// truncated file that a later restore could pick up
func (pa *PostgresAdapter) removePartial(dumpPath string) {
	if err := os.Remove(dumpPath); err != nil && !os.IsNotExist(err) {
		pa.logger.Warnf("Could not remove partial dump %s: %v", dumpPath, err)
	}
}
