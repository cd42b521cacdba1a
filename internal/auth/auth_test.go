package auth

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"
)

func writeCredentials(t *testing.T, lines string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "id_passwd.txt")
	if err := os.WriteFile(path, []byte(lines), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestVerifyPlaintext(t *testing.T) {
	store, err := Load(writeCredentials(t, "bob:secret1\nalice:hunter2\n"))
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name     string
		username string
		secret   string
		want     bool
	}{
		{"valid bob", "bob", "secret1", true},
		{"valid alice", "alice", "hunter2", true},
		{"wrong secret", "bob", "secret2", false},
		{"unknown user", "carol", "secret1", false},
		{"empty secret", "bob", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := store.Verify(tt.username, tt.secret); got != tt.want {
				t.Errorf("Verify(%q, %q) = %v, want %v", tt.username, tt.secret, got, tt.want)
			}
		})
	}
}

func TestVerifyBcrypt(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	store, err := Load(writeCredentials(t, "bob:"+string(hash)+"\n"))
	if err != nil {
		t.Fatal(err)
	}

	if !store.Verify("bob", "s3cret") {
		t.Error("valid bcrypt secret rejected")
	}
	if store.Verify("bob", "wrong") {
		t.Error("invalid bcrypt secret accepted")
	}
}

func TestLoadSkipsMalformedLines(t *testing.T) {
	store, err := Load(writeCredentials(t, "# comment\n\nbob:secret1\nnocolonhere\n:nouser\n"))
	if err != nil {
		t.Fatal(err)
	}
	if !store.Has("bob") {
		t.Error("valid entry missing")
	}
	if store.Has("nocolonhere") {
		t.Error("malformed entry loaded")
	}
}

func TestLoadMissingFileFails(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.txt")); err == nil {
		t.Error("expected error for missing credentials file")
	}
}

func TestReload(t *testing.T) {
	path := writeCredentials(t, "bob:secret1\n")
	store, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("carol:letmein\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if err := store.Reload(); err != nil {
		t.Fatal(err)
	}
	if store.Verify("bob", "secret1") {
		t.Error("stale credential still valid after reload")
	}
	if !store.Verify("carol", "letmein") {
		t.Error("new credential not picked up")
	}
}

func TestTokenRoundTrip(t *testing.T) {
	token, err := IssueToken("signing-secret", "bob", time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	username, err := VerifyToken("signing-secret", token)
	if err != nil {
		t.Fatal(err)
	}
	if username != "bob" {
		t.Errorf("VerifyToken subject = %q, want %q", username, "bob")
	}
}

func TestTokenWrongSecret(t *testing.T) {
	token, err := IssueToken("signing-secret", "bob", time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := VerifyToken("other-secret", token); err == nil {
		t.Error("token verified with wrong signing secret")
	}
}

func TestTokenExpired(t *testing.T) {
	token, err := IssueToken("signing-secret", "bob", -time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := VerifyToken("signing-secret", token); err == nil {
		t.Error("expired token accepted")
	}
}
