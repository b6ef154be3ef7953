package store

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"obvcore/internal/codec"
	"obvcore/internal/domain"
)

const keyFilename = "identity.keys.enc"

// ErrNoKeyFile is returned when no owned identity has been initialised.
var ErrNoKeyFile = errors.New("no identity key file")

// KeyFile persists the private keys of the owned identity, sealed under a
// passphrase.
type KeyFile struct {
	dir    string
	params scryptParams
	mu     sync.Mutex
}

// NewKeyFile returns a KeyFile rooted at dir.
func NewKeyFile(dir string) *KeyFile {
	return &KeyFile{dir: dir, params: defaultScryptParams()}
}

// Path is the location of the key file.
func (s *KeyFile) Path() string { return filepath.Join(s.dir, keyFilename) }

// SaveOwnedKeys seals keys and writes them to disk.
func (s *KeyFile) SaveOwnedKeys(passphrase string, keys domain.OwnedIdentityKeys) error {
	if passphrase == "" {
		return errors.New("passphrase required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := codec.Marshal(keys)
	if err != nil {
		return err
	}
	sealed, err := sealWithPassphrase(passphrase, raw, s.params)
	if err != nil {
		return err
	}
	return writeFile(s.Path(), sealed, 0o600)
}

// LoadOwnedKeys reads and opens the key file.
func (s *KeyFile) LoadOwnedKeys(passphrase string) (domain.OwnedIdentityKeys, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := readFile(s.Path())
	if err != nil {
		return domain.OwnedIdentityKeys{}, err
	}
	if b == nil {
		return domain.OwnedIdentityKeys{}, ErrNoKeyFile
	}
	pt, err := openWithPassphrase(passphrase, b)
	if err != nil {
		return domain.OwnedIdentityKeys{}, err
	}
	var keys domain.OwnedIdentityKeys
	if err := codec.Unmarshal(pt, &keys); err != nil {
		return domain.OwnedIdentityKeys{}, fmt.Errorf("decode owned keys: %w", err)
	}
	return keys, nil
}

// Compile-time assertion that KeyFile implements domain.KeyFileStore.
var _ domain.KeyFileStore = (*KeyFile)(nil)
