package session

import (
	"errors"
	"testing"

	"git.uuxo.net/uuxo/socket-file-server/internal/protocol"
)

type fakeVerifier struct {
	username string
	secret   string
}

func (v fakeVerifier) Verify(username, secret string) bool {
	return username == v.username && secret == v.secret
}

func TestAuthenticate(t *testing.T) {
	v := fakeVerifier{username: "bob", secret: "secret1"}

	tests := []struct {
		name     string
		username string
		secret   string
		want     bool
	}{
		{"valid", "bob", "secret1", true},
		{"wrong secret", "bob", "nope", false},
		{"unknown user", "alice", "secret1", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New("127.0.0.1:1234")
			if got := s.Authenticate(v, tt.username, tt.secret); got != tt.want {
				t.Fatalf("Authenticate = %v, want %v", got, tt.want)
			}
			if s.Authenticated() != tt.want {
				t.Errorf("Authenticated = %v after login attempt", s.Authenticated())
			}
			if tt.want && s.Username() != tt.username {
				t.Errorf("Username = %q, want %q", s.Username(), tt.username)
			}
		})
	}
}

func TestRequireAuthenticated(t *testing.T) {
	s := New("127.0.0.1:1234")
	err := s.RequireAuthenticated()
	var ae *protocol.AuthError
	if !errors.As(err, &ae) {
		t.Fatalf("RequireAuthenticated = %v, want AuthError", err)
	}

	s.Adopt("bob")
	if err := s.RequireAuthenticated(); err != nil {
		t.Fatalf("RequireAuthenticated after login = %v", err)
	}
}

func TestLogoutAllowsRelogin(t *testing.T) {
	v := fakeVerifier{username: "bob", secret: "secret1"}
	s := New("127.0.0.1:1234")
	if !s.Authenticate(v, "bob", "secret1") {
		t.Fatal("login failed")
	}

	s.Logout()
	if s.Authenticated() || s.Username() != "" {
		t.Error("logout did not clear authentication state")
	}
	if !s.Authenticate(v, "bob", "secret1") {
		t.Error("re-login after logout failed")
	}
}

func TestTransferExclusivity(t *testing.T) {
	s := New("127.0.0.1:1234")
	s.Adopt("bob")

	first := &TransferContext{Direction: DirectionUpload, Filename: "a.txt", Size: 10}
	if err := s.BeginTransfer(first); err != nil {
		t.Fatalf("BeginTransfer = %v", err)
	}

	err := s.BeginTransfer(&TransferContext{Direction: DirectionDownload, Filename: "b.txt"})
	var se *protocol.StateError
	if !errors.As(err, &se) {
		t.Fatalf("second BeginTransfer = %v, want StateError", err)
	}
	if s.Transfer() != first {
		t.Error("rejected transfer disturbed the active one")
	}

	s.EndTransfer()
	if s.Transfer() != nil {
		t.Error("EndTransfer did not clear the context")
	}
	if err := s.BeginTransfer(first); err != nil {
		t.Errorf("BeginTransfer after EndTransfer = %v", err)
	}
}
