package tokenstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"launchpad/internal/securestore"
	"launchpad/pkg/auth"
	"launchpad/pkg/logging"
)

// RecordKey is the fixed key of the sealed AuthState record.
const RecordKey = "auth_state"

// Sealer encrypts records before they reach the blob store.
type Sealer interface {
	Seal(payload []byte) ([]byte, error)
	Open(sealed []byte) ([]byte, error)
}

// Store is the single source of truth for the session.
//
// SECURITY: the AuthState is only ever written sealed. Token values are never
// logged; audit lines carry only flags and expiry.
type Store struct {
	blobs  securestore.BlobStore
	sealer Sealer

	// mu serializes writers so the persisted record and the cache always hold
	// the same value.
	mu    sync.Mutex
	cache atomic.Pointer[auth.AuthState]
}

// New creates a store over blobs, sealing every record with sealer.
func New(blobs securestore.BlobStore, sealer Sealer) *Store {
	return &Store{blobs: blobs, sealer: sealer}
}

// NewFileStore wires a store over the standard on-disk layout rooted at
// dataDir: <dataDir>/secure/auth_state.jwe and <dataDir>/keys/auth_state.key.
func NewFileStore(dataDir string) *Store {
	keys := securestore.NewFileKeyStore(dataDir, RecordKey)
	blobs := securestore.NewFileBlobStore(dataDir, securestore.SecureNamespace, ".jwe")
	return New(blobs, securestore.NewSealer(keys))
}

// Current returns the session snapshot. The first call loads it from disk;
// racing first calls agree on a single value. Current never fails: any load
// problem yields the empty state.
func (s *Store) Current() auth.AuthState {
	if p := s.cache.Load(); p != nil {
		return *p
	}

	loaded := s.load()
	if s.cache.CompareAndSwap(nil, &loaded) {
		return loaded
	}
	return *s.cache.Load()
}

// Replace persists state and then publishes it. The returned value is the one
// now visible to Current.
//
// If persisting fails the state is still published in memory, so the session
// keeps working for the rest of the process but will not survive a restart.
func (s *Store) Replace(state auth.AuthState) auth.AuthState {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.persist(state); err != nil {
		logging.Error("TokenStore", err, "Failed to persist session, keeping it in memory only")
	}

	snapshot := state
	s.cache.Store(&snapshot)

	logging.Audit("TokenStore", "session_replaced",
		"authorized", state.Authorized,
		"has_refresh_token", state.RefreshToken != "",
		"expires_at", state.AccessTokenExpiry)
	return snapshot
}

// Clear removes the persisted record and resets the cache to the empty state.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.blobs.Delete(RecordKey); err != nil {
		logging.Error("TokenStore", &auth.StorageError{Op: "delete", Err: err}, "Failed to remove persisted session")
	}

	empty := auth.Empty()
	s.cache.Store(&empty)
	logging.Audit("TokenStore", "session_cleared")
}

// Invalidate reloads the record from disk and publishes it. Used when another
// process rewrote the record. A first Current still loading the previous
// record cannot overwrite the reloaded value.
func (s *Store) Invalidate() auth.AuthState {
	s.mu.Lock()
	defer s.mu.Unlock()

	loaded := s.load()
	s.cache.Store(&loaded)
	return loaded
}

type watchable interface {
	Watch(ctx context.Context, key string, onChange func()) error
}

// Watch invalidates the cache whenever the persisted record changes on disk
// and then calls onChange, until ctx is done. It fails if the underlying blob
// store cannot be watched.
func (s *Store) Watch(ctx context.Context, onChange func(auth.AuthState)) error {
	w, ok := s.blobs.(watchable)
	if !ok {
		return errors.New("blob store does not support watching")
	}
	return w.Watch(ctx, RecordKey, func() {
		state := s.Invalidate()
		if onChange != nil {
			onChange(state)
		}
	})
}

func (s *Store) persist(state auth.AuthState) error {
	payload, err := json.Marshal(state)
	if err != nil {
		return &auth.StorageError{Op: "encode", Err: err}
	}
	sealed, err := s.sealer.Seal(payload)
	if err != nil {
		return &auth.StorageError{Op: "seal", Err: err}
	}
	if err := s.blobs.Put(RecordKey, sealed); err != nil {
		return &auth.StorageError{Op: "write", Err: err}
	}
	return nil
}

func (s *Store) load() auth.AuthState {
	state, err := s.read()
	if err != nil {
		if !errors.Is(err, securestore.ErrNotFound) {
			logging.Warn("TokenStore", "Discarding unreadable session: %v", err)
		}
		return auth.Empty()
	}
	if state.Authorized && (state.AccessToken == "" || state.AccessTokenExpiry.IsZero()) {
		logging.Warn("TokenStore", "Persisted session claims authorization without an access token, ignoring it")
		return auth.Empty()
	}
	logging.Debug("TokenStore", "Loaded session (authorized=%t)", state.Authorized)
	return state
}

func (s *Store) read() (auth.AuthState, error) {
	sealed, err := s.blobs.Get(RecordKey)
	if err != nil {
		if errors.Is(err, securestore.ErrNotFound) {
			return auth.AuthState{}, err
		}
		return auth.AuthState{}, &auth.StorageError{Op: "read", Err: err}
	}
	payload, err := s.sealer.Open(sealed)
	if err != nil {
		return auth.AuthState{}, &auth.StorageError{Op: "open", Err: err}
	}
	var state auth.AuthState
	if err := json.Unmarshal(payload, &state); err != nil {
		return auth.AuthState{}, &auth.StorageError{Op: "decode", Err: fmt.Errorf("malformed session record: %w", err)}
	}
	return state, nil
}
