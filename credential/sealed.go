package credential

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	icrypto "github.com/jmcleod/tokenkeeper/internal/crypto"
	"github.com/jmcleod/tokenkeeper/internal/util"
	"github.com/jmcleod/tokenkeeper/storage"
)

const (
	credentialRecordType = "CREDENTIAL"
	keyRecordType        = "RECORD_KEY"
	recordKeyID          = "current"
	sealVersion          = 1
)

// SealedStore persists the credential pair in a storage.Repository,
// encrypted at rest with AES-256-GCM. Entries live under the auth server
// origin as namespace, so one repository can hold pairs for several
// servers.
//
// The record key is random and sealed with a wrapping key before being
// stored; the wrapping key never touches the repository.
type SealedStore struct {
	repo      storage.Repository
	namespace string
	logger    *slog.Logger

	mu  sync.RWMutex
	key []byte

	// writeMu orders writes so CompareAndSet is atomic within the process.
	writeMu sync.Mutex
}

var _ Store = (*SealedStore)(nil)

// SealedOption configures a SealedStore.
type SealedOption func(*SealedStore)

// WithLogger sets the logger used for key lifecycle events.
// If not set, a default JSON logger writing to stderr is used.
func WithLogger(l *slog.Logger) SealedOption {
	return func(s *SealedStore) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewSealedStore opens the credential entries for namespace. wrappingKey
// must be 32 bytes; it is bound to the namespace before use, so the same
// key cannot open another origin's record key.
func NewSealedStore(ctx context.Context, repo storage.Repository, namespace string, wrappingKey []byte, opts ...SealedOption) (*SealedStore, error) {
	if repo == nil {
		return nil, errors.New("repository is required")
	}
	if namespace == "" {
		return nil, errors.New("namespace is required")
	}
	if len(wrappingKey) != util.KeyLength {
		return nil, fmt.Errorf("wrapping key must be exactly %d bytes, got %d", util.KeyLength, len(wrappingKey))
	}
	s := &SealedStore{
		repo:      repo,
		namespace: namespace,
		logger:    slog.New(slog.NewJSONHandler(os.Stderr, nil)),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "credential")

	nsKey, err := icrypto.DeriveNamespaceKey(wrappingKey, namespace)
	if err != nil {
		return nil, fmt.Errorf("binding wrapping key: %w", err)
	}
	defer util.WipeBytes(nsKey)

	key, err := s.loadOrCreateRecordKey(ctx, nsKey)
	if err != nil {
		return nil, &StorageError{Op: "open", Namespace: namespace, Err: err}
	}
	s.key = key
	return s, nil
}

// Namespace returns the origin the store is bound to.
func (s *SealedStore) Namespace() string {
	return s.namespace
}

// Close wipes the record key. The store must not be used afterwards.
func (s *SealedStore) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	util.WipeBytes(s.key)
	s.key = nil
}

func (s *SealedStore) Get(ctx context.Context) (*Pair, error) {
	access, err := s.load(ctx, AccessTokenKey)
	if err != nil {
		return nil, err
	}
	refresh, err := s.load(ctx, RefreshTokenKey)
	if err != nil {
		return nil, err
	}
	if access == "" && refresh == "" {
		return nil, nil
	}
	return &Pair{AccessToken: access, RefreshToken: refresh}, nil
}

func (s *SealedStore) Set(ctx context.Context, pair Pair) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.set(ctx, pair)
}

func (s *SealedStore) CompareAndSet(ctx context.Context, refreshToken string, pair Pair) (bool, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	current, err := s.load(ctx, RefreshTokenKey)
	if err != nil {
		return false, err
	}
	if current != refreshToken {
		return false, nil
	}
	if err := s.set(ctx, pair); err != nil {
		return false, err
	}
	return true, nil
}

func (s *SealedStore) set(ctx context.Context, pair Pair) error {
	access, err := s.seal(AccessTokenKey, pair.AccessToken)
	if err != nil {
		return err
	}
	refresh, err := s.seal(RefreshTokenKey, pair.RefreshToken)
	if err != nil {
		return err
	}
	err = s.repo.Batch(ctx, s.namespace, func(tx storage.BatchTx) error {
		if err := putOrDelete(tx, AccessTokenKey, access); err != nil {
			return err
		}
		return putOrDelete(tx, RefreshTokenKey, refresh)
	})
	if err != nil {
		return &StorageError{Op: "save", Namespace: s.namespace, Err: err}
	}
	return nil
}

func (s *SealedStore) SetAccessToken(ctx context.Context, token string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	env, err := s.seal(AccessTokenKey, token)
	if err != nil {
		return err
	}
	if env == nil {
		err = s.repo.Delete(ctx, s.namespace, credentialRecordType, AccessTokenKey)
		if storage.IsNotFound(err) {
			err = nil
		}
	} else {
		err = s.repo.Put(ctx, s.namespace, credentialRecordType, AccessTokenKey, env)
	}
	if err != nil {
		return &StorageError{Op: "save", Namespace: s.namespace, Record: AccessTokenKey, Err: err}
	}
	return nil
}

func (s *SealedStore) Clear(ctx context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	err := s.repo.Batch(ctx, s.namespace, func(tx storage.BatchTx) error {
		if err := tx.Delete(credentialRecordType, AccessTokenKey); err != nil {
			return err
		}
		return tx.Delete(credentialRecordType, RefreshTokenKey)
	})
	if err != nil {
		return &StorageError{Op: "clear", Namespace: s.namespace, Err: err}
	}
	return nil
}

func (s *SealedStore) load(ctx context.Context, id string) (string, error) {
	env, err := s.repo.Get(ctx, s.namespace, credentialRecordType, id)
	if storage.IsNotFound(err) {
		return "", nil
	}
	if err != nil {
		return "", &StorageError{Op: "load", Namespace: s.namespace, Record: id, Err: err}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.key == nil {
		return "", &StorageError{Op: "load", Namespace: s.namespace, Record: id, Err: errors.New("store is closed")}
	}
	data, err := storage.OpenRecord(s.key, env, s.aad(id))
	if err != nil {
		return "", &StorageError{Op: "load", Namespace: s.namespace, Record: id, Err: err}
	}
	defer util.WipeBytes(data)
	return string(data), nil
}

// seal returns nil for an empty token, meaning "remove the entry".
func (s *SealedStore) seal(id, token string) (*storage.Envelope, error) {
	if token == "" {
		return nil, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.key == nil {
		return nil, &StorageError{Op: "save", Namespace: s.namespace, Record: id, Err: errors.New("store is closed")}
	}
	env, err := storage.SealRecord(s.key, []byte(token), s.aad(id))
	if err != nil {
		return nil, &StorageError{Op: "save", Namespace: s.namespace, Record: id, Err: err}
	}
	return env, nil
}

func (s *SealedStore) aad(id string) []byte {
	return icrypto.AADCredential(s.namespace, id, sealVersion)
}

func putOrDelete(tx storage.BatchTx, id string, env *storage.Envelope) error {
	if env == nil {
		return tx.Delete(credentialRecordType, id)
	}
	return tx.Put(credentialRecordType, id, env)
}

// loadOrCreateRecordKey retrieves the sealed record key from the repository
// or generates a new one. When the stored key cannot be unsealed (for
// example after a wrapping key change) a fresh key replaces it and the old
// credential entries are dropped, since they can no longer be read.
func (s *SealedStore) loadOrCreateRecordKey(ctx context.Context, wrappingKey []byte) ([]byte, error) {
	aad := icrypto.AADRecordKey(s.namespace, sealVersion)
	env, err := s.repo.Get(ctx, s.namespace, keyRecordType, recordKeyID)
	switch {
	case err == nil:
		key, openErr := storage.OpenRecord(wrappingKey, env, aad)
		if openErr == nil && len(key) == util.AESKeySize {
			return key, nil
		}
		s.logger.Warn("record key could not be unsealed, discarding stored credentials",
			"namespace", s.namespace)
	case storage.IsNotFound(err):
	default:
		return nil, fmt.Errorf("loading record key: %w", err)
	}

	key, err := util.NewAESKey()
	if err != nil {
		return nil, err
	}
	sealed, err := storage.SealRecord(wrappingKey, key, aad)
	if err != nil {
		util.WipeBytes(key)
		return nil, fmt.Errorf("sealing record key: %w", err)
	}
	err = s.repo.Batch(ctx, s.namespace, func(tx storage.BatchTx) error {
		if err := tx.Put(keyRecordType, recordKeyID, sealed); err != nil {
			return err
		}
		if err := tx.Delete(credentialRecordType, AccessTokenKey); err != nil {
			return err
		}
		return tx.Delete(credentialRecordType, RefreshTokenKey)
	})
	if err != nil {
		util.WipeBytes(key)
		return nil, fmt.Errorf("storing record key: %w", err)
	}
	return key, nil
}
