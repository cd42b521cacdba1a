// Package auth verifies client credentials against the credentials file
// and issues session resume tokens.
package auth

import (
	"bufio"
	"crypto/subtle"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

var log = logrus.New()

// SetLogger replaces the package-level logger.
func SetLogger(l *logrus.Logger) { log = l }

// Store holds the username/secret pairs loaded from the credentials file.
// Entries whose secret starts with a bcrypt prefix are compared as bcrypt
// hashes; anything else is compared in constant time.
type Store struct {
	mu    sync.RWMutex
	path  string
	creds map[string]string
}

// Load reads the credentials file at path. Each line is `username:secret`;
// blank lines and lines starting with '#' are skipped. A missing file is
// an error: the server refuses to run without credentials.
func Load(path string) (*Store, error) {
	s := &Store{path: path}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Reload re-reads the credentials file, replacing the in-memory set
// atomically.
func (s *Store) Reload() error {
	f, err := os.Open(s.path)
	if err != nil {
		return fmt.Errorf("open credentials file: %w", err)
	}
	defer f.Close()

	creds := make(map[string]string)
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		username, secret, ok := strings.Cut(line, ":")
		if !ok || username == "" || secret == "" {
			log.Warnf("Skipping malformed credentials line %d in %s", lineNo, s.path)
			continue
		}
		creds[username] = secret
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read credentials file: %w", err)
	}

	s.mu.Lock()
	s.creds = creds
	s.mu.Unlock()
	log.Infof("Loaded %d credential(s) from %s", len(creds), s.path)
	return nil
}

// Verify reports whether the given username/secret pair is valid.
func (s *Store) Verify(username, secret string) bool {
	s.mu.RLock()
	stored, ok := s.creds[username]
	s.mu.RUnlock()
	if !ok {
		// Burn comparable time so unknown users are not distinguishable
		// by response latency.
		subtle.ConstantTimeCompare([]byte(secret), []byte(secret))
		return false
	}
	if strings.HasPrefix(stored, "$2") {
		return bcrypt.CompareHashAndPassword([]byte(stored), []byte(secret)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(stored), []byte(secret)) == 1
}

// Has reports whether a username exists in the store.
func (s *Store) Has(username string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.creds[username]
	return ok
}

// Path returns the credentials file path backing the store.
func (s *Store) Path() string { return s.path }
