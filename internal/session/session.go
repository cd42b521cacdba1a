// Package session tracks per-connection state: identity, authentication
// status, and the active transfer. A Session is owned by exactly one
// connection handler and is never shared across connections, so it needs
// no locking of its own.
package session

import (
	"github.com/google/uuid"

	"git.uuxo.net/uuxo/socket-file-server/internal/protocol"
)

// Direction of a file transfer relative to the server.
type Direction int

const (
	DirectionUpload Direction = iota
	DirectionDownload
)

func (d Direction) String() string {
	if d == DirectionUpload {
		return "upload"
	}
	return "download"
}

// TransferContext holds the state of one in-flight transfer. Created when
// a transfer command is accepted, discarded on completion or abort.
type TransferContext struct {
	Direction   Direction
	Filename    string
	Size        int64
	Transferred int64
	ChunkSize   int
}

// Verifier checks a username/secret pair. Satisfied by *auth.Store.
type Verifier interface {
	Verify(username, secret string) bool
}

// Session is the per-connection state machine's data. Created when a
// connection is accepted and destroyed when it closes.
type Session struct {
	// ID correlates log lines for one connection.
	ID string
	// RemoteAddr is the peer's address, for logging.
	RemoteAddr string

	authenticated bool
	username      string
	transfer      *TransferContext
}

// New returns an unauthenticated session for a connection from remoteAddr.
func New(remoteAddr string) *Session {
	return &Session{
		ID:         uuid.NewString(),
		RemoteAddr: remoteAddr,
	}
}

// Authenticate consults the verifier and, on success, marks the session
// authenticated as username. Bad credentials return false rather than an
// error so the caller can answer with a normal failure response.
func (s *Session) Authenticate(v Verifier, username, secret string) bool {
	if !v.Verify(username, secret) {
		return false
	}
	s.authenticated = true
	s.username = username
	return true
}

// Adopt marks the session authenticated as username without consulting a
// verifier. Used for token-based re-login where the token has already been
// validated.
func (s *Session) Adopt(username string) {
	s.authenticated = true
	s.username = username
}

// Authenticated reports whether the session has logged in.
func (s *Session) Authenticated() bool { return s.authenticated }

// Username returns the authenticated username, or "" before login.
func (s *Session) Username() string { return s.username }

// RequireAuthenticated fails with an AuthError unless the session has
// logged in.
func (s *Session) RequireAuthenticated() error {
	if !s.authenticated {
		return &protocol.AuthError{Reason: "authentication required"}
	}
	return nil
}

// Logout clears authentication state. The connection stays open and a new
// login is allowed.
func (s *Session) Logout() {
	s.authenticated = false
	s.username = ""
	s.transfer = nil
}

// BeginTransfer installs tc as the active transfer. Only one transfer may
// be active at a time; a second one fails with a StateError without
// disturbing the first.
func (s *Session) BeginTransfer(tc *TransferContext) error {
	if s.transfer != nil {
		return &protocol.StateError{Reason: "a transfer is already active"}
	}
	s.transfer = tc
	return nil
}

// EndTransfer discards the active transfer context.
func (s *Session) EndTransfer() {
	s.transfer = nil
}

// Transfer returns the active transfer context, or nil.
func (s *Session) Transfer() *TransferContext { return s.transfer }
