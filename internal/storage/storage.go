// Package storage implements the on-disk file store: one namespace per
// user, staged writes that become visible only on commit, and per-file
// locking so concurrent uploads and deletes of the same name are
// serialized.
package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"
)

var log = logrus.New()

// SetLogger replaces the package-level logger.
func SetLogger(l *logrus.Logger) { log = l }

var (
	// ErrNotFound reports a file that does not exist in the owner's
	// namespace.
	ErrNotFound = errors.New("file not found")
	// ErrInvalidName reports a file or user name rejected by the safe-name
	// policy.
	ErrInvalidName = errors.New("invalid name")
)

const (
	statCacheTTL = 30 * time.Second
	maxNameLen   = 255

	// partialPrefix hides staged files from List until they are committed.
	partialPrefix = ".partial-"
)

// FileRecord is the metadata returned for one stored file.
type FileRecord struct {
	Name    string
	Owner   string
	Size    int64
	ModTime time.Time
}

// Store is the storage collaborator. All methods are safe for concurrent
// use from multiple connection handlers.
type Store struct {
	root string

	mu    sync.Mutex
	locks map[string]*fileLock

	statCache *cache.Cache
}

// New opens (or creates) a store rooted at root.
func New(root string) (*Store, error) {
	if err := os.MkdirAll(root, 0750); err != nil {
		return nil, fmt.Errorf("create storage root: %w", err)
	}
	return &Store{
		root:      root,
		locks:     make(map[string]*fileLock),
		statCache: cache.New(statCacheTTL, time.Minute),
	}, nil
}

// ValidateName enforces the safe-name policy: no path separators, no
// traversal components, no control characters, bounded length. It applies
// to file names and usernames alike because both become path elements.
func ValidateName(name string) error {
	if name == "" || len(name) > maxNameLen {
		return ErrInvalidName
	}
	if strings.ContainsAny(name, "/\\") || strings.ContainsRune(name, 0) {
		return ErrInvalidName
	}
	// Dot-prefixed names are reserved for staged files and never listed.
	if strings.HasPrefix(name, ".") {
		return ErrInvalidName
	}
	return nil
}

// fileLock serializes operations on one (owner, name) pair. refs counts
// holders and waiters so the map entry can be dropped once uncontended.
type fileLock struct {
	mu   sync.Mutex
	refs int
}

// lock acquires the per-(owner, name) mutex and returns its release
// function. Entries are removed from the map when the last holder
// releases, so the map does not grow with every file name ever touched.
func (s *Store) lock(owner, name string) func() {
	key := owner + "/" + name
	s.mu.Lock()
	fl, ok := s.locks[key]
	if !ok {
		fl = &fileLock{}
		s.locks[key] = fl
	}
	fl.refs++
	s.mu.Unlock()

	fl.mu.Lock()
	return func() {
		fl.mu.Unlock()
		s.mu.Lock()
		fl.refs--
		if fl.refs == 0 {
			delete(s.locks, key)
		}
		s.mu.Unlock()
	}
}

func (s *Store) userDir(owner string) (string, error) {
	if err := ValidateName(owner); err != nil {
		return "", fmt.Errorf("owner %q: %w", owner, err)
	}
	dir := filepath.Join(s.root, owner)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return "", fmt.Errorf("create user directory: %w", err)
	}
	return dir, nil
}

// PendingFile is a staged upload. Bytes written to it live in a hidden
// temp file and become visible under the final name only on Commit. The
// per-file lock is held until Commit or Abort.
type PendingFile struct {
	f      *os.File
	tmp    string
	final  string
	store  *Store
	key    string
	unlock func()
	done   bool
}

// Write implements io.Writer.
func (p *PendingFile) Write(b []byte) (int, error) {
	return p.f.Write(b)
}

// Commit flushes and closes the staged file and moves it to its final
// name.
func (p *PendingFile) Commit() error {
	if p.done {
		return errors.New("pending file already finished")
	}
	p.done = true
	defer p.unlock()

	if err := p.f.Sync(); err != nil {
		p.f.Close()
		os.Remove(p.tmp)
		return fmt.Errorf("flush staged file: %w", err)
	}
	if err := p.f.Close(); err != nil {
		os.Remove(p.tmp)
		return fmt.Errorf("close staged file: %w", err)
	}
	if err := os.Rename(p.tmp, p.final); err != nil {
		os.Remove(p.tmp)
		return fmt.Errorf("commit staged file: %w", err)
	}
	p.store.statCache.Delete(p.key)
	return nil
}

// Abort discards the staged file. No partial artifact remains visible.
func (p *PendingFile) Abort() {
	if p.done {
		return
	}
	p.done = true
	p.f.Close()
	if err := os.Remove(p.tmp); err != nil && !os.IsNotExist(err) {
		log.Warnf("Failed to remove staged file %s: %v", p.tmp, err)
	}
	p.unlock()
}

// Create stages a new file for owner. The caller must finish the returned
// PendingFile with Commit or Abort.
func (s *Store) Create(owner, name string) (*PendingFile, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	dir, err := s.userDir(owner)
	if err != nil {
		return nil, err
	}

	unlock := s.lock(owner, name)
	tmp := filepath.Join(dir, partialPrefix+name)
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0640)
	if err != nil {
		unlock()
		return nil, fmt.Errorf("stage file: %w", err)
	}
	return &PendingFile{
		f:      f,
		tmp:    tmp,
		final:  filepath.Join(dir, name),
		store:  s,
		key:    owner + "/" + name,
		unlock: unlock,
	}, nil
}

// Open opens an existing file for reading and returns its record. The
// per-file lock is held only for the stat+open pair; reading from an
// already-open file is safe even if it is deleted concurrently.
func (s *Store) Open(owner, name string) (*os.File, FileRecord, error) {
	if err := ValidateName(name); err != nil {
		return nil, FileRecord{}, err
	}
	dir, err := s.userDir(owner)
	if err != nil {
		return nil, FileRecord{}, err
	}

	unlock := s.lock(owner, name)
	defer unlock()

	path := filepath.Join(dir, name)
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, FileRecord{}, ErrNotFound
		}
		return nil, FileRecord{}, fmt.Errorf("open file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, FileRecord{}, fmt.Errorf("stat file: %w", err)
	}
	return f, recordFromInfo(owner, info), nil
}

// Stat returns the record for one file. Results are cached briefly so
// repeated previews and stats of hot files stay off the disk.
func (s *Store) Stat(owner, name string) (FileRecord, error) {
	if err := ValidateName(name); err != nil {
		return FileRecord{}, err
	}
	key := owner + "/" + name
	if cached, ok := s.statCache.Get(key); ok {
		return cached.(FileRecord), nil
	}

	dir, err := s.userDir(owner)
	if err != nil {
		return FileRecord{}, err
	}
	info, err := os.Stat(filepath.Join(dir, name))
	if err != nil {
		if os.IsNotExist(err) {
			return FileRecord{}, ErrNotFound
		}
		return FileRecord{}, fmt.Errorf("stat file: %w", err)
	}
	rec := recordFromInfo(owner, info)
	s.statCache.Set(key, rec, cache.DefaultExpiration)
	return rec, nil
}

// List returns records for all of owner's files, sorted by name. Staged
// and hidden files are excluded.
func (s *Store) List(owner string) ([]FileRecord, error) {
	dir, err := s.userDir(owner)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("list user directory: %w", err)
	}

	records := make([]FileRecord, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		records = append(records, recordFromInfo(owner, info))
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Name < records[j].Name })
	return records, nil
}

// Preview returns up to n leading bytes of the file.
func (s *Store) Preview(owner, name string, n int) ([]byte, error) {
	f, rec, err := s.Open(owner, name)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if int64(n) > rec.Size {
		n = int(rec.Size)
	}
	buf := make([]byte, n)
	read, err := io.ReadFull(f, buf)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return nil, fmt.Errorf("read preview: %w", err)
	}
	return buf[:read], nil
}

// Delete removes the file from the owner's namespace.
func (s *Store) Delete(owner, name string) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	dir, err := s.userDir(owner)
	if err != nil {
		return err
	}

	unlock := s.lock(owner, name)
	defer unlock()

	if err := os.Remove(filepath.Join(dir, name)); err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return fmt.Errorf("delete file: %w", err)
	}
	s.statCache.Delete(owner + "/" + name)
	return nil
}

// Root returns the storage root directory.
func (s *Store) Root() string { return s.root }

func recordFromInfo(owner string, info os.FileInfo) FileRecord {
	return FileRecord{
		Name:    info.Name(),
		Owner:   owner,
		Size:    info.Size(),
		ModTime: info.ModTime(),
	}
}
