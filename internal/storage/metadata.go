// SQLite-backed transfer journal. Records every upload, download, and
// deletion with owner, size, and timestamps so operators can answer "who
// stored what, when" without scanning the file system.

package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// MetadataStore persists file transfer metadata via SQLite.
type MetadataStore struct {
	db *sql.DB
	mu sync.Mutex
}

// MetadataStats holds aggregate statistics from the journal.
type MetadataStats struct {
	TotalFiles     int64
	TotalBytes     int64
	TotalDownloads int64
	UniqueOwners   int64
}

// OpenMetadata opens (or creates) the journal database at dbPath.
func OpenMetadata(dbPath string) (*MetadataStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0750); err != nil {
		return nil, fmt.Errorf("create metadata directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open metadata database: %w", err)
	}
	// SQLite supports only one writer.
	db.SetMaxOpenConns(1)

	m := &MetadataStore{db: db}
	if err := m.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate metadata database: %w", err)
	}
	log.Infof("Metadata journal opened at %s", dbPath)
	return m, nil
}

func (m *MetadataStore) migrate() error {
	_, err := m.db.Exec(`
		CREATE TABLE IF NOT EXISTS files (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			owner TEXT NOT NULL,
			name TEXT NOT NULL,
			size INTEGER NOT NULL,
			uploaded_at TIMESTAMP NOT NULL,
			deleted INTEGER NOT NULL DEFAULT 0,
			download_count INTEGER NOT NULL DEFAULT 0,
			UNIQUE(owner, name)
		);
		CREATE INDEX IF NOT EXISTS idx_files_owner ON files(owner);
	`)
	return err
}

// RecordUpload journals a completed upload, replacing any previous entry
// for the same (owner, name).
func (m *MetadataStore) RecordUpload(owner, name string, size int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, err := m.db.Exec(`
		INSERT INTO files (owner, name, size, uploaded_at, deleted, download_count)
		VALUES (?, ?, ?, ?, 0, 0)
		ON CONFLICT(owner, name) DO UPDATE SET
			size = excluded.size,
			uploaded_at = excluded.uploaded_at,
			deleted = 0
	`, owner, name, size, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("record upload: %w", err)
	}
	return nil
}

// RecordDownload bumps the download counter for a file.
func (m *MetadataStore) RecordDownload(owner, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, err := m.db.Exec(`
		UPDATE files SET download_count = download_count + 1
		WHERE owner = ? AND name = ? AND deleted = 0
	`, owner, name)
	if err != nil {
		return fmt.Errorf("record download: %w", err)
	}
	return nil
}

// RecordDelete marks a file deleted in the journal.
func (m *MetadataStore) RecordDelete(owner, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, err := m.db.Exec(`
		UPDATE files SET deleted = 1 WHERE owner = ? AND name = ?
	`, owner, name)
	if err != nil {
		return fmt.Errorf("record delete: %w", err)
	}
	return nil
}

// Stats returns aggregate journal statistics for live files.
func (m *MetadataStore) Stats() (MetadataStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var stats MetadataStats
	row := m.db.QueryRow(`
		SELECT COUNT(*), COALESCE(SUM(size), 0), COALESCE(SUM(download_count), 0), COUNT(DISTINCT owner)
		FROM files WHERE deleted = 0
	`)
	if err := row.Scan(&stats.TotalFiles, &stats.TotalBytes, &stats.TotalDownloads, &stats.UniqueOwners); err != nil {
		return stats, fmt.Errorf("query stats: %w", err)
	}
	return stats, nil
}

// Close closes the journal database.
func (m *MetadataStore) Close() error {
	return m.db.Close()
}
