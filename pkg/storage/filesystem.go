package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// LocalStorage persists export artifacts on disk under a base directory.
// Workbook writes go through WriteAtomic so a crash mid-write never leaves
// a half-written file at the destination path.
type LocalStorage struct {
	baseDir      string
	backupSubdir string
}

// NewLocalStorage ensures the base directory exists and returns a handle.
func NewLocalStorage(baseDir, backupSubdir string) (*LocalStorage, error) {
	if baseDir == "" {
		baseDir = "./exports"
	}
	if backupSubdir == "" {
		backupSubdir = "backups"
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create exports directory: %w", err)
	}
	return &LocalStorage{baseDir: baseDir, backupSubdir: backupSubdir}, nil
}

// WriteAtomic writes data to a temporary file in the destination directory
// and renames it into place. The destination either keeps its previous
// content or holds the complete new content, never a partial write.
func (s *LocalStorage) WriteAtomic(filename string, data []byte) (string, error) {
	path := s.resolve(filename)
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("prepare export directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return "", fmt.Errorf("create temp export file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", fmt.Errorf("write temp export file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", fmt.Errorf("sync temp export file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("close temp export file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("replace export file: %w", err)
	}
	return filename, nil
}

// BackupExisting renames the current file at filename into the timestamped
// backup location. Returns the backup's relative path, or "" when there was
// nothing to back up. A rename failure leaves the original untouched.
func (s *LocalStorage) BackupExisting(filename string, now time.Time) (string, error) {
	path := s.resolve(filename)
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("stat export file: %w", err)
	}

	base := filepath.Base(filename)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	backupName := fmt.Sprintf("%s.%s%s", stem, now.Format("20060102-150405"), ext)
	// Faculty subdirectories carry over so same-named buckets never collide.
	backupRel := filepath.Join(s.backupSubdir, filepath.Dir(filename), backupName)
	backupPath := s.resolve(backupRel)

	if err := os.MkdirAll(filepath.Dir(backupPath), 0o755); err != nil {
		return "", fmt.Errorf("prepare backup directory: %w", err)
	}
	if err := os.Rename(path, backupPath); err != nil {
		return "", fmt.Errorf("backup export file: %w", err)
	}
	return backupRel, nil
}

// Open returns a read-only handle for the stored file.
func (s *LocalStorage) Open(filename string) (*os.File, error) {
	path := s.resolve(filename)
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open export file: %w", err)
	}
	return file, nil
}

// Delete removes a stored file if present.
func (s *LocalStorage) Delete(filename string) error {
	path := s.resolve(filename)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete export file: %w", err)
	}
	return nil
}

// CleanupOlderThan removes backups older than the provided TTL and returns
// deleted names. Only the backup subdirectory is touched; live exports are
// never cleaned up.
func (s *LocalStorage) CleanupOlderThan(ttl time.Duration) ([]string, error) {
	cutoff := time.Now().Add(-ttl)
	backupDir := filepath.Join(s.baseDir, s.backupSubdir)
	if _, err := os.Stat(backupDir); os.IsNotExist(err) {
		return nil, nil
	}
	deleted := make([]string, 0)
	err := filepath.WalkDir(backupDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if info.ModTime().After(cutoff) {
			return nil
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return err
		}
		rel, err := filepath.Rel(s.baseDir, path)
		if err != nil {
			rel = path
		}
		deleted = append(deleted, rel)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("cleanup backups: %w", err)
	}
	return deleted, nil
}

// Path exposes the underlying absolute path (useful for debugging).
func (s *LocalStorage) Path(filename string) string {
	return s.resolve(filename)
}

func (s *LocalStorage) resolve(filename string) string {
	if filepath.IsAbs(filename) {
		return filename
	}
	return filepath.Join(s.baseDir, filename)
}
