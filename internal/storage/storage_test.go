package storage

import (
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func mustUpload(t *testing.T, s *Store, owner, name, content string) {
	t.Helper()
	p, err := s.Create(owner, name)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := io.WriteString(p, content); err != nil {
		t.Fatal(err)
	}
	if err := p.Commit(); err != nil {
		t.Fatal(err)
	}
}

func TestValidateName(t *testing.T) {
	tests := []struct {
		name  string
		input string
		valid bool
	}{
		{"plain", "a.txt", true},
		{"with spaces", "my report.pdf", true},
		{"empty", "", false},
		{"dot", ".", false},
		{"dotdot", "..", false},
		{"traversal", "../etc/passwd", false},
		{"slash", "dir/a.txt", false},
		{"backslash", `dir\a.txt`, false},
		{"nul byte", "a\x00.txt", false},
		{"hidden", ".bashrc", false},
		{"too long", strings.Repeat("a", 256), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateName(tt.input)
			if tt.valid && err != nil {
				t.Errorf("ValidateName(%q) = %v, want nil", tt.input, err)
			}
			if !tt.valid && !errors.Is(err, ErrInvalidName) {
				t.Errorf("ValidateName(%q) = %v, want ErrInvalidName", tt.input, err)
			}
		})
	}
}

func TestCreateCommitListStat(t *testing.T) {
	s := newStore(t)
	mustUpload(t, s, "bob", "a.txt", "hello world")

	rec, err := s.Stat("bob", "a.txt")
	if err != nil {
		t.Fatal(err)
	}
	if rec.Size != 11 || rec.Owner != "bob" || rec.Name != "a.txt" {
		t.Errorf("unexpected record: %+v", rec)
	}

	records, err := s.List("bob")
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 || records[0].Name != "a.txt" {
		t.Errorf("List = %+v, want a.txt only", records)
	}
}

func TestStagedFileInvisibleUntilCommit(t *testing.T) {
	s := newStore(t)
	p, err := s.Create("bob", "a.txt")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := io.WriteString(p, "partial"); err != nil {
		t.Fatal(err)
	}

	records, err := s.List("bob")
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 0 {
		t.Errorf("staged file visible in List: %+v", records)
	}
	if _, err := s.Stat("bob", "a.txt"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Stat on staged file = %v, want ErrNotFound", err)
	}

	if err := p.Commit(); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Stat("bob", "a.txt"); err != nil {
		t.Errorf("Stat after commit = %v", err)
	}
}

func TestAbortLeavesNothing(t *testing.T) {
	s := newStore(t)
	p, err := s.Create("bob", "a.txt")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := io.WriteString(p, "half-written"); err != nil {
		t.Fatal(err)
	}
	p.Abort()

	records, err := s.List("bob")
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 0 {
		t.Errorf("aborted upload left artifacts: %+v", records)
	}
}

func TestCommitReplacesExisting(t *testing.T) {
	s := newStore(t)
	mustUpload(t, s, "bob", "a.txt", "old")
	mustUpload(t, s, "bob", "a.txt", "new content")

	data, err := s.Preview("bob", "a.txt", 1024)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "new content" {
		t.Errorf("Preview = %q, want replacement content", data)
	}
}

func TestPreviewTruncates(t *testing.T) {
	s := newStore(t)
	mustUpload(t, s, "bob", "a.txt", strings.Repeat("x", 5000))

	data, err := s.Preview("bob", "a.txt", 1024)
	if err != nil {
		t.Fatal(err)
	}
	if len(data) != 1024 {
		t.Errorf("Preview length = %d, want 1024", len(data))
	}
}

func TestDelete(t *testing.T) {
	s := newStore(t)
	mustUpload(t, s, "bob", "a.txt", "data")

	if err := s.Delete("bob", "a.txt"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Stat("bob", "a.txt"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Stat after delete = %v, want ErrNotFound", err)
	}
	if err := s.Delete("bob", "a.txt"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second Delete = %v, want ErrNotFound", err)
	}
}

func TestOwnersAreIsolated(t *testing.T) {
	s := newStore(t)
	mustUpload(t, s, "bob", "a.txt", "bob's file")

	if _, err := s.Stat("alice", "a.txt"); !errors.Is(err, ErrNotFound) {
		t.Errorf("alice can stat bob's file: %v", err)
	}
	records, err := s.List("alice")
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 0 {
		t.Errorf("alice sees bob's files: %+v", records)
	}
}

func TestOwnerNameValidated(t *testing.T) {
	s := newStore(t)
	if _, err := s.Create("../evil", "a.txt"); !errors.Is(err, ErrInvalidName) {
		t.Errorf("Create with traversal owner = %v, want ErrInvalidName", err)
	}
	if _, err := s.List(".."); !errors.Is(err, ErrInvalidName) {
		t.Errorf("List with traversal owner = %v, want ErrInvalidName", err)
	}
}

func TestConcurrentUploadDeleteRace(t *testing.T) {
	s := newStore(t)
	content := strings.Repeat("x", 64*1024)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			p, err := s.Create("bob", "race.txt")
			if err != nil {
				t.Errorf("Create: %v", err)
				return
			}
			if _, err := io.WriteString(p, content); err != nil {
				p.Abort()
				t.Errorf("Write: %v", err)
				return
			}
			if err := p.Commit(); err != nil {
				t.Errorf("Commit: %v", err)
				return
			}
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			if err := s.Delete("bob", "race.txt"); err != nil && !errors.Is(err, ErrNotFound) {
				t.Errorf("Delete: %v", err)
				return
			}
		}
	}()

	// A racing delete must never expose a half-written file: every open
	// either misses entirely or sees the full committed content.
	for i := 0; i < 200; i++ {
		f, rec, err := s.Open("bob", "race.txt")
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			t.Fatalf("Open: %v", err)
		}
		if rec.Size != int64(len(content)) {
			t.Errorf("visible file has size %d, want %d", rec.Size, len(content))
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		if string(data) != content {
			t.Errorf("visible file content truncated to %d bytes", len(data))
		}
	}
	wg.Wait()

	s.mu.Lock()
	remaining := len(s.locks)
	s.mu.Unlock()
	if remaining != 0 {
		t.Errorf("lock map holds %d entries after all releases, want 0", remaining)
	}
}

func TestFileLocksReleased(t *testing.T) {
	s := newStore(t)
	mustUpload(t, s, "bob", "a.txt", "data")

	f, _, err := s.Open("bob", "a.txt")
	if err != nil {
		t.Fatal(err)
	}
	f.Close()
	if err := s.Delete("bob", "a.txt"); err != nil {
		t.Fatal(err)
	}

	s.mu.Lock()
	remaining := len(s.locks)
	s.mu.Unlock()
	if remaining != 0 {
		t.Errorf("lock map holds %d entries after release, want 0", remaining)
	}
}
