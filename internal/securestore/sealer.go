package securestore

import (
	"crypto/sha256"
	"fmt"
	"io"
	"sync"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwe"
	"golang.org/x/crypto/hkdf"
)

const contentKeyInfo = "launchpad/auth-state/v1"

// Sealer encrypts and decrypts payloads with a key derived from a KeyStore.
type Sealer struct {
	keys KeyStore

	mu  sync.Mutex
	cek []byte
}

// NewSealer creates a sealer backed by keys.
func NewSealer(keys KeyStore) *Sealer {
	return &Sealer{keys: keys}
}

// contentKey derives the AES-256 content key once and reuses it afterwards.
// A key store failure is not memoized so a later call can retry.
func (s *Sealer) contentKey() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cek != nil {
		return s.cek, nil
	}

	ikm, err := s.keys.Key()
	if err != nil {
		return nil, err
	}

	cek := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, ikm, nil, []byte(contentKeyInfo)), cek); err != nil {
		return nil, fmt.Errorf("failed to derive content key: %w", err)
	}
	s.cek = cek
	return s.cek, nil
}

// Seal returns payload as a compact JWE.
func (s *Sealer) Seal(payload []byte) ([]byte, error) {
	cek, err := s.contentKey()
	if err != nil {
		return nil, err
	}
	return jwe.Encrypt(payload, jwe.WithKey(jwa.DIRECT, cek), jwe.WithContentEncryption(jwa.A256GCM))
}

// Open decrypts a compact JWE produced by Seal. Modified or truncated input
// fails authentication and returns an error.
func (s *Sealer) Open(sealed []byte) ([]byte, error) {
	cek, err := s.contentKey()
	if err != nil {
		return nil, err
	}
	return jwe.Decrypt(sealed, jwe.WithKey(jwa.DIRECT, cek))
}
