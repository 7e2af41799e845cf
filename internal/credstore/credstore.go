// Package credstore stores Git access tokens encrypted at rest with a
// symmetric key. The ingestion worker reads credentials when cloning or
// pulling; plaintext never touches disk.
package credstore

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/crypto/chacha20poly1305"
)

// Credential is one stored Git access token.
type Credential struct {
	TenantID string `json:"tenant_id"`
	RepoID   string `json:"repo_id"`
	Username string `json:"username,omitempty"`
	Token    string `json:"token"`
}

// Store is a file-backed encrypted credential store.
type Store struct {
	mu   sync.Mutex
	path string
	aead interface {
		Seal(dst, nonce, plaintext, additionalData []byte) []byte
		Open(dst, nonce, ciphertext, additionalData []byte) ([]byte, error)
		NonceSize() int
	}
}

// New opens a store at path with a 32-byte symmetric key.
func New(path string, key []byte) (*Store, error) {
	if len(key) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("credential key must be %d bytes, got %d", chacha20poly1305.KeySize, len(key))
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create credential dir: %w", err)
	}
	return &Store{path: path, aead: aead}, nil
}

// Put stores or replaces the credential for (tenant, repo).
func (s *Store) Put(cred Credential) error {
	if cred.TenantID == "" || cred.RepoID == "" {
		return fmt.Errorf("credential requires tenant and repo")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	creds, err := s.load()
	if err != nil {
		return err
	}
	creds[credKey(cred.TenantID, cred.RepoID)] = cred
	return s.save(creds)
}

// Get returns the credential for (tenant, repo), or ok=false.
func (s *Store) Get(tenant, repo string) (Credential, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	creds, err := s.load()
	if err != nil {
		return Credential{}, false, err
	}
	cred, ok := creds[credKey(tenant, repo)]
	return cred, ok, nil
}

// Delete removes the credential for (tenant, repo).
func (s *Store) Delete(tenant, repo string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	creds, err := s.load()
	if err != nil {
		return err
	}
	delete(creds, credKey(tenant, repo))
	return s.save(creds)
}

func credKey(tenant, repo string) string { return tenant + "\x00" + repo }

func (s *Store) load() (map[string]Credential, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[string]Credential), nil
		}
		return nil, fmt.Errorf("read credential store: %w", err)
	}

	nonceSize := s.aead.NonceSize()
	if len(data) < nonceSize {
		return nil, fmt.Errorf("credential store is corrupt")
	}

	plaintext, err := s.aead.Open(nil, data[:nonceSize], data[nonceSize:], nil)
	if err != nil {
		return nil, fmt.Errorf("decrypt credential store: %w", err)
	}

	creds := make(map[string]Credential)
	if err := json.Unmarshal(plaintext, &creds); err != nil {
		return nil, fmt.Errorf("parse credential store: %w", err)
	}
	return creds, nil
}

func (s *Store) save(creds map[string]Credential) error {
	plaintext, err := json.Marshal(creds)
	if err != nil {
		return err
	}

	nonce := make([]byte, s.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return fmt.Errorf("generate nonce: %w", err)
	}

	sealed := s.aead.Seal(nil, nonce, plaintext, nil)
	out := append(nonce, sealed...)

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, out, 0o600); err != nil {
		return fmt.Errorf("write credential store: %w", err)
	}
	return os.Rename(tmp, s.path)
}
