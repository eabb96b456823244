package credential

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Store persists a single credential across runs.
type Store interface {
	// Load returns the stored credential, ErrNotFound when there is none,
	// or an error wrapping ErrCorrupt when the contents cannot be decoded.
	Load(ctx context.Context) (*Credential, error)
	// Save replaces the stored credential.
	Save(ctx context.Context, cred *Credential) error
}

const recordVersion = 1

type record struct {
	Version      int       `json:"version"`
	AccessToken  string    `json:"access_token,omitempty"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	TokenType    string    `json:"token_type,omitempty"`
	Expiry       time.Time `json:"expiry,omitzero"`
	Scopes       []string  `json:"scopes,omitempty"`

	// Sealed holds the encrypted JSON of the record above when the store
	// is configured with a key. The other fields are empty in that case.
	Sealed string `json:"sealed,omitempty"`
}

// FileStore keeps the credential in a versioned JSON document on disk.
// Writes are atomic and the file is readable by the owner only.
type FileStore struct {
	path       string
	encryption *Encryption
}

// NewFileStore creates a store at path. encryption may be nil.
func NewFileStore(path string, encryption *Encryption) *FileStore {
	return &FileStore{path: path, encryption: encryption}
}

// Path returns the file location.
func (s *FileStore) Path() string {
	return s.path
}

// Load implements Store.
func (s *FileStore) Load(_ context.Context) (*Credential, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read credential file: %w", err)
	}

	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if rec.Version != recordVersion {
		return nil, fmt.Errorf("%w: unsupported record version %d", ErrCorrupt, rec.Version)
	}

	if rec.Sealed != "" {
		if !s.encryption.Enabled() {
			return nil, fmt.Errorf("%w: credential is encrypted but no key is configured", ErrCorrupt)
		}
		plain, err := s.encryption.Open(rec.Sealed)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		if err := json.Unmarshal(plain, &rec); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
	}

	if rec.AccessToken == "" {
		return nil, fmt.Errorf("%w: missing access token", ErrCorrupt)
	}

	return &Credential{
		AccessToken:  rec.AccessToken,
		RefreshToken: rec.RefreshToken,
		TokenType:    rec.TokenType,
		Expiry:       rec.Expiry,
		Scopes:       rec.Scopes,
	}, nil
}

// Save implements Store.
func (s *FileStore) Save(_ context.Context, cred *Credential) error {
	rec := record{
		Version:      recordVersion,
		AccessToken:  cred.AccessToken,
		RefreshToken: cred.RefreshToken,
		TokenType:    cred.TokenType,
		Expiry:       cred.Expiry,
		Scopes:       cred.Scopes,
	}

	if s.encryption.Enabled() {
		plain, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("failed to encode credential: %w", err)
		}
		sealed, err := s.encryption.Seal(plain)
		if err != nil {
			return fmt.Errorf("failed to encrypt credential: %w", err)
		}
		rec = record{Version: recordVersion, Sealed: sealed}
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode credential: %w", err)
	}
	return writeFileAtomic(s.path, data)
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create credential directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if err := tmp.Chmod(0600); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to restrict credential file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write credential file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to sync credential file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close credential file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to replace credential file: %w", err)
	}
	return nil
}
