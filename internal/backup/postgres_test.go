package backup

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"krisa-backup/internal/logging"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPostgresAdapterForTest(runner CommandRunner) *PostgresAdapter {
	ds := BuiltinDatasets()[0]
	ds.applyDefaults()
	return NewPostgresAdapter(ds, runner, logging.NewDefaultLogger())
}

func TestPostgresAdapter_Dump(t *testing.T) {
	runner := newFakeRunner()
	adapter := newPostgresAdapterForTest(runner)
	dir := t.TempDir()

	dumpPath, err := adapter.Dump(context.Background(), dir, "21-01-26")

	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "postgres-backup-21-01-26.dump"), dumpPath)

	data, err := os.ReadFile(dumpPath)
	require.NoError(t, err)
	assert.NotEmpty(t, data)

	require.Len(t, runner.calls, 1)
	assert.Equal(t, []string{
		"docker", "exec", "-i", "krisa-db",
		"pg_dump", "-U", "postgres", "-d", "postgres", "-Fc",
	}, runner.calls[0])
}

func TestPostgresAdapter_Dump_CommandFails(t *testing.T) {
	runner := newFakeRunner()
	runner.results["pg_dump"] = &CommandResult{ExitCode: 1, Stderr: "connection refused"}
	adapter := newPostgresAdapterForTest(runner)
	dir := t.TempDir()

	_, err := adapter.Dump(context.Background(), dir, "21-01-26")

	require.Error(t, err)
	var pErr *PipelineError
	require.ErrorAs(t, err, &pErr)
	assert.Equal(t, ErrorTypeCommand, pErr.Type)
	assert.Equal(t, "connection refused", pErr.Context["stderr"])

	entries, readErr := os.ReadDir(dir)
	require.NoError(t, readErr)
	assert.Empty(t, entries, "partial dump must not survive a failed pg_dump")
}

func TestPostgresAdapter_Restore(t *testing.T) {
	runner := newFakeRunner()
	adapter := newPostgresAdapterForTest(runner)
	dumpPath := filepath.Join(t.TempDir(), "postgres-backup-21-01-26.dump")
	require.NoError(t, os.WriteFile(dumpPath, []byte("dump"), 0600))

	err := adapter.Restore(context.Background(), dumpPath)

	require.NoError(t, err)
	require.Len(t, runner.calls, 3)

	psqlPrefix := []string{"docker", "exec", "-i", "krisa-db", "psql", "-U", "postgres", "-d", "postgres", "-c"}
	assert.Equal(t, psqlPrefix, runner.calls[0][:len(psqlPrefix)])
	assert.Equal(t, psqlPrefix, runner.calls[1][:len(psqlPrefix)])

	terminate := strings.Join(runner.calls[0], " ")
	assert.Contains(t, terminate, "pg_terminate_backend")

	reset := strings.Join(runner.calls[1], " ")
	assert.Contains(t, reset, "DROP SCHEMA public CASCADE")
	assert.Contains(t, reset, "CREATE SCHEMA public")
	assert.Contains(t, reset, "GRANT ALL ON SCHEMA public TO public")

	restore := runner.calls[2]
	assert.Equal(t, []string{
		"docker", "exec", "-i", "krisa-db",
		"pg_restore", "-U", "postgres", "-d", "postgres",
		"--clean", "--if-exists", "--no-owner", "--no-privileges",
	}, restore)
}

func TestPostgresAdapter_Restore_MissingDump(t *testing.T) {
	adapter := newPostgresAdapterForTest(newFakeRunner())

	err := adapter.Restore(context.Background(), filepath.Join(t.TempDir(), "nope.dump"))

	assert.True(t, IsNotFoundError(err))
}

func TestPostgresAdapter_Restore_TerminateFailureIgnored(t *testing.T) {
	runner := newFakeRunner()
	runner.results["psql"] = &CommandResult{ExitCode: 1, Stderr: "FATAL: terminating connection"}
	adapter := newPostgresAdapterForTest(runner)
	dumpPath := filepath.Join(t.TempDir(), "postgres-backup-21-01-26.dump")
	require.NoError(t, os.WriteFile(dumpPath, []byte("dump"), 0600))

	err := adapter.Restore(context.Background(), dumpPath)

	// Both psql calls fail with the scripted result; only the schema
	// reset failure is fatal.
	require.Error(t, err)
	var pErr *PipelineError
	require.ErrorAs(t, err, &pErr)
	assert.Equal(t, ErrorTypeCommand, pErr.Type)
	assert.Contains(t, pErr.Message, "reset schema")
}

func TestPostgresAdapter_Restore_ToleratedStderr(t *testing.T) {
	runner := newFakeRunner()
	runner.results["pg_restore"] = &CommandResult{
		ExitCode: 1,
		Stderr:   `pg_restore: error: could not execute query: ERROR: relation "users" already exists`,
	}
	adapter := newPostgresAdapterForTest(runner)
	dumpPath := filepath.Join(t.TempDir(), "postgres-backup-21-01-26.dump")
	require.NoError(t, os.WriteFile(dumpPath, []byte("dump"), 0600))

	err := adapter.Restore(context.Background(), dumpPath)

	assert.NoError(t, err, "benign replay noise must not fail the restore")
}

func TestPostgresAdapter_Restore_FatalStderr(t *testing.T) {
	runner := newFakeRunner()
	runner.results["pg_restore"] = &CommandResult{
		ExitCode: 1,
		Stderr:   "pg_restore: error: could not execute query: ERROR: out of memory",
	}
	adapter := newPostgresAdapterForTest(runner)
	dumpPath := filepath.Join(t.TempDir(), "postgres-backup-21-01-26.dump")
	require.NoError(t, os.WriteFile(dumpPath, []byte("dump"), 0600))

	err := adapter.Restore(context.Background(), dumpPath)

	require.Error(t, err)
	var pErr *PipelineError
	require.ErrorAs(t, err, &pErr)
	assert.Equal(t, ErrorTypeCommand, pErr.Type)
	assert.Contains(t, pErr.Message, "pg_restore")
}
