package backup

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"krisa-backup/internal/logging"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSweeperAt(now time.Time) *RetentionSweeper {
	sweeper := NewRetentionSweeper(logging.NewDefaultLogger())
	sweeper.now = func() time.Time { return now }
	return sweeper
}

func touchArtifact(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("artifact"), 0600))
	return path
}

func TestRetentionSweeper_Sweep(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 1, 21, 14, 30, 0, 0, time.UTC)

	expired := touchArtifact(t, dir, "krisa-db-13-01-26.tar.gz.gpg")
	boundary := touchArtifact(t, dir, "krisa-db-14-01-26.tar.gz.gpg")
	fresh := touchArtifact(t, dir, "krisa-db-21-01-26.tar.gz.gpg")
	otherPrefix := touchArtifact(t, dir, "krisa-bot-01-01-26.tar.gz.gpg")

	deleted, err := newSweeperAt(now).Sweep(dir, 7)

	require.NoError(t, err)
	assert.Equal(t, 2, deleted)
	assert.NoFileExists(t, expired)
	assert.NoFileExists(t, otherPrefix)
	assert.FileExists(t, boundary, "an artifact exactly at the cutoff is retained")
	assert.FileExists(t, fresh)
}

func TestRetentionSweeper_Sweep_AgeFromNameNotMtime(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 1, 21, 0, 0, 0, 0, time.UTC)

	// A freshly written file whose name says it is old must still go
	old := touchArtifact(t, dir, "krisa-db-01-12-25.tar.gz.gpg")

	deleted, err := newSweeperAt(now).Sweep(dir, 7)

	require.NoError(t, err)
	assert.Equal(t, 1, deleted)
	assert.NoFileExists(t, old)
}

func TestRetentionSweeper_Sweep_SkipsUnparseableNames(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 1, 21, 0, 0, 0, 0, time.UTC)

	malformed := touchArtifact(t, dir, "notadate.tar.gz.gpg")
	unrelated := touchArtifact(t, dir, "keepme.txt")

	deleted, err := newSweeperAt(now).Sweep(dir, 7)

	require.NoError(t, err)
	assert.Equal(t, 0, deleted)
	assert.FileExists(t, malformed)
	assert.FileExists(t, unrelated)
}

func TestRetentionSweeper_Sweep_DisabledRetention(t *testing.T) {
	dir := t.TempDir()
	ancient := touchArtifact(t, dir, "krisa-db-01-01-20.tar.gz.gpg")

	for _, days := range []int{0, -1} {
		deleted, err := newSweeperAt(time.Now()).Sweep(dir, days)
		require.NoError(t, err)
		assert.Equal(t, 0, deleted)
	}
	assert.FileExists(t, ancient)
}

func TestRetentionSweeper_Sweep_EmptyDirectory(t *testing.T) {
	deleted, err := newSweeperAt(time.Now()).Sweep(t.TempDir(), 7)

	require.NoError(t, err)
	assert.Equal(t, 0, deleted)
}
