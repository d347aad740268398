package tokenstore

import (
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/goliatone/hashid/pkg/hashid"
	"golang.org/x/crypto/chacha20poly1305"

	authsphere "github.com/authsphere/go-authsphere"
)

// File persists the token encrypted at rest. The token is sealed with
// XChaCha20-Poly1305 and the file name is derived from the scope, so two
// sessions against different backends never collide on disk.
type File struct {
	path string
	aead cipher.AEAD
	mu   sync.Mutex
}

// NewFile creates a file-backed store under dir. Scope is any stable string
// identifying the session, typically the backend base URL. Key must be 32
// bytes.
func NewFile(dir, scope string, key []byte) (*File, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("token store: invalid key: %w", err)
	}

	id, err := hashid.NewUUID(scope)
	if err != nil {
		return nil, fmt.Errorf("token store: could not derive file name: %w", err)
	}

	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("token store: could not create directory: %w", err)
	}

	return &File{
		path: filepath.Join(dir, id.String()+".token"),
		aead: aead,
	}, nil
}

func (f *File) Get() (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("token store: read failed: %w", err)
	}

	nonceSize := f.aead.NonceSize()
	if len(data) < nonceSize {
		return "", fmt.Errorf("token store: sealed token is truncated")
	}

	plain, err := f.aead.Open(nil, data[:nonceSize], data[nonceSize:], nil)
	if err != nil {
		return "", fmt.Errorf("token store: unseal failed: %w", err)
	}

	return string(plain), nil
}

func (f *File) Set(token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	nonce := make([]byte, f.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return fmt.Errorf("token store: nonce generation failed: %w", err)
	}

	sealed := f.aead.Seal(nonce, nonce, []byte(token), nil)
	if err := os.WriteFile(f.path, sealed, 0o600); err != nil {
		return fmt.Errorf("token store: write failed: %w", err)
	}

	return nil
}

func (f *File) Clear() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.Remove(f.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("token store: clear failed: %w", err)
	}
	return nil
}

var _ authsphere.TokenStore = (*File)(nil)
