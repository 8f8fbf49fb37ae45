// Package tokens persists the bot's user OAuth credential in a JSON file and
// exposes process-wide get/set semantics. The file is read once at startup and
// rewritten whenever the supervisor or refresher obtains a new credential.
// When an encryptor is configured the file contents are sealed at rest.
package tokens

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"chattercast/crypto"
)

// Credential is the stored user token set.
type Credential struct {
	Access    string    `json:"access"`
	Refresh   string    `json:"refresh,omitempty"`
	ExpiresAt time.Time `json:"expires_at,omitempty"`
}

// Bare returns the access token without any "oauth:" prefix, as required by
// Helix API calls.
func (c Credential) Bare() string {
	return strings.TrimPrefix(c.Access, "oauth:")
}

// IRC returns the access token with the "oauth:" prefix required by the IRC
// PASS command.
func (c Credential) IRC() string {
	if strings.HasPrefix(c.Access, "oauth:") {
		return c.Access
	}
	return "oauth:" + c.Access
}

// FileStore reads and writes a credential file. Encryptor is optional; when
// set, the JSON payload is sealed before hitting disk.
type FileStore struct {
	Path      string
	Encryptor crypto.Encryptor
}

// Load reads and decodes the credential file.
func (fs FileStore) Load() (Credential, error) {
	data, err := os.ReadFile(fs.Path)
	if err != nil {
		return Credential{}, fmt.Errorf("load credential: %w", err)
	}
	if fs.Encryptor != nil {
		plain, err := crypto.DecryptString(fs.Encryptor, strings.TrimSpace(string(data)))
		if err != nil {
			return Credential{}, fmt.Errorf("load credential: %w", err)
		}
		data = []byte(plain)
	}
	var cred Credential
	if err := json.Unmarshal(data, &cred); err != nil {
		return Credential{}, fmt.Errorf("load credential: decode: %w", err)
	}
	return cred, nil
}

// Save encodes and writes the credential file with owner-only permissions.
func (fs FileStore) Save(cred Credential) error {
	if err := os.MkdirAll(filepath.Dir(fs.Path), 0o700); err != nil {
		return fmt.Errorf("save credential: %w", err)
	}
	data, err := json.Marshal(cred)
	if err != nil {
		return fmt.Errorf("save credential: encode: %w", err)
	}
	if fs.Encryptor != nil {
		sealed, err := crypto.EncryptString(fs.Encryptor, string(data))
		if err != nil {
			return fmt.Errorf("save credential: %w", err)
		}
		data = []byte(sealed)
	}
	if err := os.WriteFile(fs.Path, data, 0o600); err != nil {
		return fmt.Errorf("save credential: %w", err)
	}
	return nil
}

// Store is the in-memory credential slot backed by a FileStore. Get never
// touches disk; Set persists before updating the slot so a crash between the
// two leaves the durable copy fresh.
type Store struct {
	mu   sync.RWMutex
	cred Credential
	file FileStore
}

// Open loads the credential file into a Store. A missing file yields an empty
// credential without error so first-run authorization can populate it.
func Open(file FileStore) (*Store, error) {
	s := &Store{file: file}
	cred, err := file.Load()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return s, nil
		}
		return nil, err
	}
	s.cred = cred
	return s, nil
}

// Get returns the current credential.
func (s *Store) Get() Credential {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cred
}

// Set persists and installs a new credential.
func (s *Store) Set(cred Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.file.Save(cred); err != nil {
		return err
	}
	s.cred = cred
	return nil
}
