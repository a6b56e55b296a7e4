package tokenstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"launchpad/internal/securestore"
	"launchpad/pkg/auth"
)

type memBlobs struct {
	mu      sync.Mutex
	data    map[string][]byte
	putErr  error
	getErr  error
	gets    int
	deleted int
}

func newMemBlobs() *memBlobs { return &memBlobs{data: map[string][]byte{}} }

// stallingBlobs holds the first Get after reading, so a test can rewrite the
// record while that read is still in flight.
type stallingBlobs struct {
	*memBlobs
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func (s *stallingBlobs) Get(key string) ([]byte, error) {
	data, err := s.memBlobs.Get(key)
	first := false
	s.once.Do(func() { first = true })
	if first {
		close(s.entered)
		<-s.release
	}
	return data, err
}

func (m *memBlobs) Get(key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gets++
	if m.getErr != nil {
		return nil, m.getErr
	}
	d, ok := m.data[key]
	if !ok {
		return nil, securestore.ErrNotFound
	}
	return d, nil
}

func (m *memBlobs) Put(key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.putErr != nil {
		return m.putErr
	}
	m.data[key] = data
	return nil
}

func (m *memBlobs) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleted++
	delete(m.data, key)
	return nil
}

func sampleState(token string) auth.AuthState {
	return auth.AuthState{
		Authorized:        true,
		AccessToken:       token,
		AccessTokenExpiry: time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC),
		RefreshToken:      "refresh-" + token,
		IDToken:           "id-" + token,
	}
}

func TestStore_EmptyByDefault(t *testing.T) {
	store := NewFileStore(t.TempDir())

	got := store.Current()
	assert.False(t, got.Authorized)
	assert.Empty(t, got.AccessToken)
	assert.Empty(t, got.RefreshToken)
}

func TestStore_ReplacePersistsAcrossInstances(t *testing.T) {
	dir := t.TempDir()
	state := sampleState("A")
	state.LastError = &auth.ErrorRecord{Type: "token_exchange", Code: "invalid_grant"}

	returned := NewFileStore(dir).Replace(state)
	assert.Equal(t, state, returned)

	reloaded := NewFileStore(dir).Current()
	assert.Equal(t, state, reloaded)

	raw, err := os.ReadFile(securestore.NewFileBlobStore(dir, securestore.SecureNamespace, ".jwe").Path(RecordKey))
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "refresh-A")
}

func TestStore_ClearResetsState(t *testing.T) {
	dir := t.TempDir()
	store := NewFileStore(dir)
	store.Replace(sampleState("A"))

	store.Clear()

	got := store.Current()
	assert.False(t, got.Authorized)
	assert.Empty(t, got.AccessToken)
	assert.Empty(t, got.RefreshToken)
	assert.False(t, NewFileStore(dir).Current().Authorized)
}

func TestStore_CorruptedRecordYieldsEmptyState(t *testing.T) {
	dir := t.TempDir()
	NewFileStore(dir).Replace(sampleState("A"))

	path := securestore.NewFileBlobStore(dir, securestore.SecureNamespace, ".jwe").Path(RecordKey)
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	raw[len(raw)-5] ^= 0x01
	require.NoError(t, os.WriteFile(path, raw, 0o600))

	var got auth.AuthState
	assert.NotPanics(t, func() { got = NewFileStore(dir).Current() })
	assert.Equal(t, auth.Empty(), got)
}

func TestStore_MalformedJSONYieldsEmptyState(t *testing.T) {
	dir := t.TempDir()
	keys := securestore.NewFileKeyStore(dir, RecordKey)
	blobs := securestore.NewFileBlobStore(dir, securestore.SecureNamespace, ".jwe")
	sealed, err := securestore.NewSealer(keys).Seal([]byte("{not json"))
	require.NoError(t, err)
	require.NoError(t, blobs.Put(RecordKey, sealed))

	assert.Equal(t, auth.Empty(), NewFileStore(dir).Current())
}

func TestStore_AuthorizedWithoutTokenIsIgnored(t *testing.T) {
	blobs := newMemBlobs()
	store := New(blobs, securestore.NewSealer(securestore.NewFileKeyStore(t.TempDir(), "k")))
	store.Replace(auth.AuthState{Authorized: true})

	store.Invalidate()
	assert.Equal(t, auth.Empty(), store.Current())
}

func TestStore_ReadErrorYieldsEmptyState(t *testing.T) {
	blobs := newMemBlobs()
	blobs.getErr = errors.New("permission denied")
	store := New(blobs, securestore.NewSealer(securestore.NewFileKeyStore(t.TempDir(), "k")))

	assert.Equal(t, auth.Empty(), store.Current())
}

func TestStore_PersistFailureStillPublishes(t *testing.T) {
	blobs := newMemBlobs()
	blobs.putErr = errors.New("disk full")
	store := New(blobs, securestore.NewSealer(securestore.NewFileKeyStore(t.TempDir(), "k")))

	state := sampleState("A")
	store.Replace(state)

	assert.Equal(t, state, store.Current())
	assert.Empty(t, blobs.data)
}

func TestStore_CachesAfterFirstLoad(t *testing.T) {
	blobs := newMemBlobs()
	store := New(blobs, securestore.NewSealer(securestore.NewFileKeyStore(t.TempDir(), "k")))

	for i := 0; i < 5; i++ {
		store.Current()
	}
	assert.Equal(t, 1, blobs.gets)
}

func TestStore_ConcurrentFirstAccessAgrees(t *testing.T) {
	dir := t.TempDir()
	NewFileStore(dir).Replace(sampleState("A"))
	store := NewFileStore(dir)

	var wg sync.WaitGroup
	results := make([]auth.AuthState, 16)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = store.Current()
		}(i)
	}
	wg.Wait()

	for _, r := range results {
		assert.Equal(t, sampleState("A"), r)
	}
}

func TestStore_ConcurrentReplaceCacheMatchesDisk(t *testing.T) {
	dir := t.TempDir()
	store := NewFileStore(dir)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			store.Replace(sampleState(fmt.Sprintf("T%d", i)))
		}(i)
	}
	// Readers must only ever see whole values.
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got := store.Current()
			if got.Authorized {
				assert.Equal(t, "refresh-"+got.AccessToken, got.RefreshToken)
				assert.Equal(t, "id-"+got.AccessToken, got.IDToken)
			}
		}()
	}
	wg.Wait()

	final := store.Current()
	require.True(t, final.Authorized)
	assert.Equal(t, final, NewFileStore(dir).Current())
}

func TestStore_WatchPicksUpExternalWrites(t *testing.T) {
	dir := t.TempDir()
	store := NewFileStore(dir)
	assert.False(t, store.Current().Authorized)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes := make(chan auth.AuthState, 16)
	require.NoError(t, store.Watch(ctx, func(s auth.AuthState) {
		select {
		case changes <- s:
		default:
		}
	}))

	NewFileStore(dir).Replace(sampleState("B"))

	deadline := time.After(5 * time.Second)
	for {
		select {
		case s := <-changes:
			if s.Authorized {
				assert.Equal(t, "B", s.AccessToken)
				assert.Equal(t, "B", store.Current().AccessToken)
				return
			}
		case <-deadline:
			t.Fatal("expected external write to be observed")
		}
	}
}

func TestStore_WatchUnsupported(t *testing.T) {
	store := New(newMemBlobs(), securestore.NewSealer(securestore.NewFileKeyStore(t.TempDir(), "k")))
	assert.Error(t, store.Watch(context.Background(), nil))
}

func TestStore_InvalidateWinsOverInFlightFirstLoad(t *testing.T) {
	sealer := securestore.NewSealer(securestore.NewFileKeyStore(t.TempDir(), "k"))
	mem := newMemBlobs()
	New(mem, sealer).Replace(sampleState("old"))

	blobs := &stallingBlobs{memBlobs: mem, entered: make(chan struct{}), release: make(chan struct{})}
	store := New(blobs, sealer)

	first := make(chan auth.AuthState, 1)
	go func() { first <- store.Current() }()
	<-blobs.entered

	// Another process rewrites the record while the first load holds the
	// old bytes.
	New(mem, sealer).Replace(sampleState("new"))
	assert.Equal(t, "new", store.Invalidate().AccessToken)

	close(blobs.release)
	assert.Equal(t, "new", (<-first).AccessToken)
	assert.Equal(t, "new", store.Current().AccessToken)
}
