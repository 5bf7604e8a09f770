// Package filerepo stores a tier's keys in a single JSON file, optionally
// encrypted at rest.
package filerepo

import (
	"context"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/jrsteele09/passport-session/tokenstore"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

const (
	fileMode = 0o600
	dirMode  = 0o700

	keyInfo = "passport-session token file v1"
)

var _ tokenstore.Repo = (*Repo)(nil)

// ErrCorrupt is returned when the file cannot be decrypted or decoded.
var ErrCorrupt = errors.New("token file corrupt or key mismatch")

type Repo struct {
	path   string
	aead   cipher.AEAD
	mu     sync.Mutex
	logger zerolog.Logger
}

type Option func(*Repo) error

// WithEncryptionKey encrypts the file with XChaCha20-Poly1305 under a key
// derived from passphrase. An empty passphrase leaves the file in plain text.
func WithEncryptionKey(passphrase string) Option {
	return func(r *Repo) error {
		if passphrase == "" {
			return nil
		}
		key := make([]byte, chacha20poly1305.KeySize)
		if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(passphrase), nil, []byte(keyInfo)), key); err != nil {
			return fmt.Errorf("derive key: %w", err)
		}
		aead, err := chacha20poly1305.NewX(key)
		if err != nil {
			return fmt.Errorf("init cipher: %w", err)
		}
		r.aead = aead
		return nil
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(r *Repo) error {
		r.logger = logger
		return nil
	}
}

// New returns a repo persisting to path, creating its directory if needed.
func New(path string, options ...Option) (*Repo, error) {
	if path == "" {
		return nil, errors.New("[filerepo New] path is required")
	}
	r := &Repo{
		path:   filepath.Clean(path),
		logger: log.Logger,
	}
	for _, opt := range options {
		if err := opt(r); err != nil {
			return nil, fmt.Errorf("[filerepo New] %w", err)
		}
	}
	if err := os.MkdirAll(filepath.Dir(r.path), dirMode); err != nil {
		return nil, fmt.Errorf("[filerepo New] create directory: %w", err)
	}
	r.logger = r.logger.With().Str("component", "filerepo").Str("path", r.path).Logger()
	return r, nil
}

func (r *Repo) Path() string {
	return r.path
}

func (r *Repo) Get(_ context.Context, key string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	values, err := r.read()
	if err != nil {
		return "", err
	}
	v, ok := values[key]
	if !ok {
		return "", tokenstore.ErrNotFound
	}
	return v, nil
}

func (r *Repo) Upsert(_ context.Context, key, value string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	values, err := r.read()
	if err != nil {
		return err
	}
	values[key] = value
	return r.write(values)
}

func (r *Repo) Delete(_ context.Context, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	values, err := r.read()
	if err != nil {
		// An unreadable file cannot hold a usable session; drop it.
		if errors.Is(err, ErrCorrupt) {
			return r.remove()
		}
		return err
	}
	if _, ok := values[key]; !ok {
		return nil
	}
	delete(values, key)
	return r.write(values)
}

func (r *Repo) read() (map[string]string, error) {
	data, err := os.ReadFile(r.path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read token file: %w", err)
	}
	if len(data) == 0 {
		return map[string]string{}, nil
	}

	if r.aead != nil {
		if data, err = r.open(data); err != nil {
			return nil, err
		}
	}
	values := map[string]string{}
	if err := json.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return values, nil
}

// write replaces the file atomically. An empty map removes the file so that
// a cleared store leaves nothing behind.
func (r *Repo) write(values map[string]string) error {
	if len(values) == 0 {
		return r.remove()
	}
	data, err := json.Marshal(values)
	if err != nil {
		return fmt.Errorf("encode token file: %w", err)
	}
	if r.aead != nil {
		if data, err = r.seal(data); err != nil {
			return err
		}
	}

	tmp, err := os.CreateTemp(filepath.Dir(r.path), ".tokens-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := tmp.Chmod(fileMode); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, r.path); err != nil {
		return fmt.Errorf("replace token file: %w", err)
	}
	return nil
}

func (r *Repo) remove() error {
	if err := os.Remove(r.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove token file: %w", err)
	}
	return nil
}

func (r *Repo) seal(plain []byte) ([]byte, error) {
	nonce := make([]byte, r.aead.NonceSize(), r.aead.NonceSize()+len(plain)+r.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	return r.aead.Seal(nonce, nonce, plain, nil), nil
}

func (r *Repo) open(data []byte) ([]byte, error) {
	if len(data) < r.aead.NonceSize() {
		return nil, ErrCorrupt
	}
	nonce, ciphertext := data[:r.aead.NonceSize()], data[r.aead.NonceSize():]
	plain, err := r.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrCorrupt
	}
	return plain, nil
}
