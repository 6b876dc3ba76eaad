package storage

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteAtomicCreatesFile(t *testing.T) {
	dir := t.TempDir()
	s, err := NewLocalStorage(dir, "backups")
	require.NoError(t, err)

	rel, err := s.WriteAtomic("BMS/inbox.xlsx", []byte("payload"))
	require.NoError(t, err)
	assert.Equal(t, "BMS/inbox.xlsx", rel)

	data, err := os.ReadFile(filepath.Join(dir, "BMS", "inbox.xlsx"))
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), data)

	// No temp files may linger after a successful write.
	entries, err := os.ReadDir(filepath.Join(dir, "BMS"))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestWriteAtomicReplacesExisting(t *testing.T) {
	dir := t.TempDir()
	s, err := NewLocalStorage(dir, "backups")
	require.NoError(t, err)

	_, err = s.WriteAtomic("overview.xlsx", []byte("v1"))
	require.NoError(t, err)
	_, err = s.WriteAtomic("overview.xlsx", []byte("v2"))
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, "overview.xlsx"))
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), data)
}

func TestBackupExistingMovesPriorVersion(t *testing.T) {
	dir := t.TempDir()
	s, err := NewLocalStorage(dir, "backups")
	require.NoError(t, err)

	_, err = s.WriteAtomic("done.xlsx", []byte("run-1"))
	require.NoError(t, err)

	now := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	backupRel, err := s.BackupExisting("done.xlsx", now)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("backups", "done.20260314-093000.xlsx"), backupRel)

	// Run 1 content is byte-recoverable from the backup.
	data, err := os.ReadFile(filepath.Join(dir, backupRel))
	require.NoError(t, err)
	assert.Equal(t, []byte("run-1"), data)

	_, err = os.Stat(filepath.Join(dir, "done.xlsx"))
	assert.True(t, os.IsNotExist(err))
}

func TestBackupExistingKeepsFacultySubdir(t *testing.T) {
	dir := t.TempDir()
	s, err := NewLocalStorage(dir, "backups")
	require.NoError(t, err)

	_, err = s.WriteAtomic("BMS/inbox.xlsx", []byte("bms"))
	require.NoError(t, err)
	_, err = s.WriteAtomic("EEMCS/inbox.xlsx", []byte("eemcs"))
	require.NoError(t, err)

	now := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	first, err := s.BackupExisting("BMS/inbox.xlsx", now)
	require.NoError(t, err)
	second, err := s.BackupExisting("EEMCS/inbox.xlsx", now)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join("backups", "BMS", "inbox.20260314-093000.xlsx"), first)
	assert.NotEqual(t, first, second, "same bucket name in two faculties must not collide")
}

func TestBackupExistingNoTarget(t *testing.T) {
	s, err := NewLocalStorage(t.TempDir(), "backups")
	require.NoError(t, err)

	backupRel, err := s.BackupExisting("missing.xlsx", time.Now())
	require.NoError(t, err)
	assert.Empty(t, backupRel)
}

func TestCleanupOlderThanOnlyTouchesBackups(t *testing.T) {
	dir := t.TempDir()
	s, err := NewLocalStorage(dir, "backups")
	require.NoError(t, err)

	_, err = s.WriteAtomic("live.xlsx", []byte("live"))
	require.NoError(t, err)
	_, err = s.WriteAtomic(filepath.Join("backups", "old.xlsx"), []byte("old"))
	require.NoError(t, err)

	old := time.Now().Add(-48 * time.Hour)
	require.NoError(t, os.Chtimes(filepath.Join(dir, "backups", "old.xlsx"), old, old))

	deleted, err := s.CleanupOlderThan(24 * time.Hour)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join("backups", "old.xlsx")}, deleted)

	_, err = os.Stat(filepath.Join(dir, "live.xlsx"))
	assert.NoError(t, err)
}
