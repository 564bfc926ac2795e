package credential

import (
	"context"
	"sync"

	"github.com/awnumar/memguard"
)

// MemoryStore keeps the pair in memguard enclaves for the life of the
// process. Nothing survives a restart, which suits short-lived tools and
// tests.
type MemoryStore struct {
	mu      sync.RWMutex
	access  *memguard.Enclave
	refresh *memguard.Enclave
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Get(_ context.Context) (*Pair, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.access == nil && m.refresh == nil {
		return nil, nil
	}
	access, err := openEnclave(m.access)
	if err != nil {
		return nil, &StorageError{Op: "load", Record: AccessTokenKey, Err: err}
	}
	refresh, err := openEnclave(m.refresh)
	if err != nil {
		return nil, &StorageError{Op: "load", Record: RefreshTokenKey, Err: err}
	}
	return &Pair{AccessToken: access, RefreshToken: refresh}, nil
}

func (m *MemoryStore) Set(_ context.Context, pair Pair) error {
	access := sealEnclave(pair.AccessToken)
	refresh := sealEnclave(pair.RefreshToken)
	m.mu.Lock()
	m.access, m.refresh = access, refresh
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) SetAccessToken(_ context.Context, token string) error {
	access := sealEnclave(token)
	m.mu.Lock()
	m.access = access
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) CompareAndSet(_ context.Context, refreshToken string, pair Pair) (bool, error) {
	access := sealEnclave(pair.AccessToken)
	refresh := sealEnclave(pair.RefreshToken)
	m.mu.Lock()
	defer m.mu.Unlock()
	current, err := openEnclave(m.refresh)
	if err != nil {
		return false, &StorageError{Op: "load", Record: RefreshTokenKey, Err: err}
	}
	if current != refreshToken {
		return false, nil
	}
	m.access, m.refresh = access, refresh
	return true, nil
}

func (m *MemoryStore) Clear(_ context.Context) error {
	m.mu.Lock()
	m.access, m.refresh = nil, nil
	m.mu.Unlock()
	return nil
}

func sealEnclave(token string) *memguard.Enclave {
	if token == "" {
		return nil
	}
	// NewEnclave wipes its argument, so hand it a private copy.
	return memguard.NewEnclave([]byte(token))
}

func openEnclave(e *memguard.Enclave) (string, error) {
	if e == nil {
		return "", nil
	}
	buf, err := e.Open()
	if err != nil {
		return "", err
	}
	defer buf.Destroy()
	return string(buf.Bytes()), nil
}
