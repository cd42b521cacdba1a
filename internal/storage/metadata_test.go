package storage

import (
	"path/filepath"
	"testing"
)

func newMetadata(t *testing.T) *MetadataStore {
	t.Helper()
	m, err := OpenMetadata(filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { m.Close() })
	return m
}

func TestMetadataJournal(t *testing.T) {
	m := newMetadata(t)

	if err := m.RecordUpload("bob", "a.txt", 100); err != nil {
		t.Fatal(err)
	}
	if err := m.RecordUpload("alice", "b.txt", 200); err != nil {
		t.Fatal(err)
	}
	if err := m.RecordDownload("bob", "a.txt"); err != nil {
		t.Fatal(err)
	}
	if err := m.RecordDownload("bob", "a.txt"); err != nil {
		t.Fatal(err)
	}

	stats, err := m.Stats()
	if err != nil {
		t.Fatal(err)
	}
	if stats.TotalFiles != 2 || stats.TotalBytes != 300 || stats.TotalDownloads != 2 || stats.UniqueOwners != 2 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}

func TestMetadataReuploadReplaces(t *testing.T) {
	m := newMetadata(t)

	if err := m.RecordUpload("bob", "a.txt", 100); err != nil {
		t.Fatal(err)
	}
	if err := m.RecordUpload("bob", "a.txt", 250); err != nil {
		t.Fatal(err)
	}

	stats, err := m.Stats()
	if err != nil {
		t.Fatal(err)
	}
	if stats.TotalFiles != 1 || stats.TotalBytes != 250 {
		t.Errorf("unexpected stats after re-upload: %+v", stats)
	}
}

func TestMetadataDeleteExcludedFromStats(t *testing.T) {
	m := newMetadata(t)

	if err := m.RecordUpload("bob", "a.txt", 100); err != nil {
		t.Fatal(err)
	}
	if err := m.RecordDelete("bob", "a.txt"); err != nil {
		t.Fatal(err)
	}

	stats, err := m.Stats()
	if err != nil {
		t.Fatal(err)
	}
	if stats.TotalFiles != 0 || stats.TotalBytes != 0 {
		t.Errorf("deleted file still counted: %+v", stats)
	}
}
