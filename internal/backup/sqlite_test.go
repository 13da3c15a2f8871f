package backup

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"krisa-backup/internal/logging"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSQLiteAdapterForTest(runner CommandRunner) *SQLiteAdapter {
	ds := BuiltinDatasets()[1]
	ds.applyDefaults()
	return NewSQLiteAdapter(ds, runner, logging.NewDefaultLogger())
}

func TestSQLiteAdapter_Dump(t *testing.T) {
	runner := newFakeRunner()
	runner.onRun = func(argv []string, opts CommandOptions) {
		// docker cp materializes the snapshot on the host
		if commandKey(argv) == "cp" {
			_ = os.WriteFile(argv[len(argv)-1], []byte("sqlite-bytes"), 0600)
		}
	}
	adapter := newSQLiteAdapterForTest(runner)
	dir := t.TempDir()

	dumpPath, err := adapter.Dump(context.Background(), dir, "21-01-26")

	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "sqlite-backup-21-01-26.db"), dumpPath)

	data, err := os.ReadFile(dumpPath)
	require.NoError(t, err)
	assert.Equal(t, "sqlite-bytes", string(data))

	require.Len(t, runner.calls, 2)
	assert.Equal(t, []string{
		"docker", "exec", "krisa-bot",
		"sqlite3", "/app/data/db/bot.db", ".backup /tmp/sqlite-backup.db",
	}, runner.calls[0])
	assert.Equal(t, []string{
		"docker", "cp", "krisa-bot:/tmp/sqlite-backup.db", dumpPath,
	}, runner.calls[1])
}

func TestSQLiteAdapter_Dump_BackupCommandFails(t *testing.T) {
	runner := newFakeRunner()
	runner.results["sqlite3"] = &CommandResult{ExitCode: 1, Stderr: "database is locked"}
	adapter := newSQLiteAdapterForTest(runner)

	_, err := adapter.Dump(context.Background(), t.TempDir(), "21-01-26")

	require.Error(t, err)
	var pErr *PipelineError
	require.ErrorAs(t, err, &pErr)
	assert.Equal(t, ErrorTypeCommand, pErr.Type)
	assert.Len(t, runner.calls, 1, "the copy must not run after a failed snapshot")
}

func TestSQLiteAdapter_Dump_CopyFails(t *testing.T) {
	runner := newFakeRunner()
	runner.results["cp"] = &CommandResult{ExitCode: 1, Stderr: "no such container"}
	adapter := newSQLiteAdapterForTest(runner)

	_, err := adapter.Dump(context.Background(), t.TempDir(), "21-01-26")

	require.Error(t, err)
	assert.Len(t, runner.calls, 2)
}

func TestSQLiteAdapter_Restore(t *testing.T) {
	runner := newFakeRunner()
	adapter := newSQLiteAdapterForTest(runner)
	dumpPath := filepath.Join(t.TempDir(), "sqlite-backup-21-01-26.db")
	require.NoError(t, os.WriteFile(dumpPath, []byte("sqlite-bytes"), 0600))

	err := adapter.Restore(context.Background(), dumpPath)

	require.NoError(t, err)
	require.Len(t, runner.calls, 2)
	assert.Equal(t, []string{
		"docker", "cp", dumpPath, "krisa-bot:/tmp/sqlite-restore.db",
	}, runner.calls[0])
	assert.Equal(t, []string{
		"docker", "exec", "krisa-bot",
		"mv", "/tmp/sqlite-restore.db", "/app/data/db/bot.db",
	}, runner.calls[1])
}

func TestSQLiteAdapter_Restore_MissingDump(t *testing.T) {
	runner := newFakeRunner()
	adapter := newSQLiteAdapterForTest(runner)

	err := adapter.Restore(context.Background(), filepath.Join(t.TempDir(), "nope.db"))

	assert.True(t, IsNotFoundError(err))
	assert.Empty(t, runner.calls)
}

func TestSQLiteAdapter_Restore_MoveFails(t *testing.T) {
	runner := newFakeRunner()
	runner.results["mv"] = &CommandResult{ExitCode: 1, Stderr: "read-only file system"}
	adapter := newSQLiteAdapterForTest(runner)
	dumpPath := filepath.Join(t.TempDir(), "sqlite-backup-21-01-26.db")
	require.NoError(t, os.WriteFile(dumpPath, []byte("sqlite-bytes"), 0600))

	err := adapter.Restore(context.Background(), dumpPath)

	require.Error(t, err)
	var pErr *PipelineError
	require.ErrorAs(t, err, &pErr)
	assert.Equal(t, ErrorTypeCommand, pErr.Type)
}
