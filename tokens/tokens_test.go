package tokens

import (
	"crypto/rand"
	"encoding/base64"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"chattercast/crypto"
)

func TestFileStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secrets", "twitch.json")
	fs := FileStore{Path: path}
	cred := Credential{Access: "abc123", Refresh: "r456", ExpiresAt: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)}

	if err := fs.Save(cred); err != nil {
		t.Fatalf("Save() err = %v", err)
	}
	got, err := fs.Load()
	if err != nil {
		t.Fatalf("Load() err = %v", err)
	}
	if got.Access != cred.Access || got.Refresh != cred.Refresh || !got.ExpiresAt.Equal(cred.ExpiresAt) {
		t.Errorf("Load() = %+v, want %+v", got, cred)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("file mode = %v, want 0600", info.Mode().Perm())
	}
}

func TestFileStoreEncrypted(t *testing.T) {
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		t.Fatal(err)
	}
	enc, err := crypto.NewAESEncryptor(base64.StdEncoding.EncodeToString(key))
	if err != nil {
		t.Fatalf("NewAESEncryptor: %v", err)
	}

	path := filepath.Join(t.TempDir(), "twitch.json")
	fs := FileStore{Path: path, Encryptor: enc}
	cred := Credential{Access: "supersecret"}
	if err := fs.Save(cred); err != nil {
		t.Fatalf("Save() err = %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(raw), "supersecret") {
		t.Error("credential stored in plaintext despite encryptor")
	}

	got, err := fs.Load()
	if err != nil {
		t.Fatalf("Load() err = %v", err)
	}
	if got.Access != "supersecret" {
		t.Errorf("Load() access = %q", got.Access)
	}
}

func TestOpenMissingFile(t *testing.T) {
	s, err := Open(FileStore{Path: filepath.Join(t.TempDir(), "nope.json")})
	if err != nil {
		t.Fatalf("Open() on missing file err = %v, want nil", err)
	}
	if s.Get().Access != "" {
		t.Error("missing file should yield empty credential")
	}
}

func TestStoreSetPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "twitch.json")
	s, err := Open(FileStore{Path: path})
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Set(Credential{Access: "oauth:tok1"}); err != nil {
		t.Fatalf("Set() err = %v", err)
	}
	if s.Get().Access != "oauth:tok1" {
		t.Error("Get() should reflect the new credential")
	}

	// A fresh store sees the persisted value.
	s2, err := Open(FileStore{Path: path})
	if err != nil {
		t.Fatal(err)
	}
	if s2.Get().Access != "oauth:tok1" {
		t.Error("persisted credential not visible to a new store")
	}
}

func TestCredentialPrefixHelpers(t *testing.T) {
	tests := []struct {
		access string
		bare   string
		irc    string
	}{
		{"abc", "abc", "oauth:abc"},
		{"oauth:abc", "abc", "oauth:abc"},
	}
	for _, tt := range tests {
		c := Credential{Access: tt.access}
		if got := c.Bare(); got != tt.bare {
			t.Errorf("Bare(%q) = %q, want %q", tt.access, got, tt.bare)
		}
		if got := c.IRC(); got != tt.irc {
			t.Errorf("IRC(%q) = %q, want %q", tt.access, got, tt.irc)
		}
	}
}
