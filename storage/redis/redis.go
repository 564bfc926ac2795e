// Package redis implements storage.Repository on top of Redis.
//
// Every record is a string key holding the JSON envelope. A per-namespace
// set indexes the records so namespaces can be listed and told apart from
// missing records. Batches run inside MULTI/EXEC.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/jmcleod/tokenkeeper/storage"
)

const defaultPrefix = "tokenkeeper"

// Store implements storage.Repository backed by Redis.
type Store struct {
	client goredis.UniversalClient
	prefix string
}

var _ storage.Repository = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithKeyPrefix overrides the key prefix (default "tokenkeeper").
func WithKeyPrefix(prefix string) Option {
	return func(s *Store) {
		if prefix != "" {
			s.prefix = prefix
		}
	}
}

// NewRepository returns a Repository using an existing client.
func NewRepository(client goredis.UniversalClient, opts ...Option) *Store {
	s := &Store{client: client, prefix: defaultPrefix}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewRepositoryFromAddr dials addr and verifies the connection with PING.
func NewRepositoryFromAddr(ctx context.Context, addr string, opts ...Option) (*Store, error) {
	client := goredis.NewClient(&goredis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}
	return NewRepository(client, opts...), nil
}

// Close closes the underlying client.
func (s *Store) Close() error {
	return s.client.Close()
}

func member(recordType, recordID string) string {
	return recordType + ":" + recordID
}

func (s *Store) recordKey(namespace, recordType, recordID string) string {
	return s.prefix + ":" + namespace + ":" + member(recordType, recordID)
}

func (s *Store) indexKey(namespace string) string {
	return s.prefix + ":" + namespace + ":__index"
}

func (s *Store) Put(ctx context.Context, namespace, recordType, recordID string, envelope *storage.Envelope) error {
	data, err := json.Marshal(envelope)
	if err != nil {
		return err
	}
	_, err = s.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Set(ctx, s.recordKey(namespace, recordType, recordID), data, 0)
		pipe.SAdd(ctx, s.indexKey(namespace), member(recordType, recordID))
		return nil
	})
	return err
}

func (s *Store) Get(ctx context.Context, namespace, recordType, recordID string) (*storage.Envelope, error) {
	data, err := s.client.Get(ctx, s.recordKey(namespace, recordType, recordID)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, s.notFoundError(ctx, namespace, recordType, recordID)
	}
	if err != nil {
		return nil, err
	}
	var env storage.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decoding envelope: %w", err)
	}
	return &env, nil
}

func (s *Store) Delete(ctx context.Context, namespace, recordType, recordID string) error {
	var del *goredis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		del = pipe.Del(ctx, s.recordKey(namespace, recordType, recordID))
		pipe.SRem(ctx, s.indexKey(namespace), member(recordType, recordID))
		return nil
	})
	if err != nil {
		return err
	}
	if del.Val() == 0 {
		return s.notFoundError(ctx, namespace, recordType, recordID)
	}
	return nil
}

// Batch queues fn's writes into a single MULTI/EXEC. If fn returns an
// error nothing is sent to Redis.
func (s *Store) Batch(ctx context.Context, namespace string, fn func(tx storage.BatchTx) error) error {
	_, err := s.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		return fn(&batchTx{ctx: ctx, store: s, pipe: pipe, namespace: namespace})
	})
	return err
}

type batchTx struct {
	ctx       context.Context
	store     *Store
	pipe      goredis.Pipeliner
	namespace string
}

func (tx *batchTx) Put(recordType, recordID string, envelope *storage.Envelope) error {
	data, err := json.Marshal(envelope)
	if err != nil {
		return err
	}
	tx.pipe.Set(tx.ctx, tx.store.recordKey(tx.namespace, recordType, recordID), data, 0)
	tx.pipe.SAdd(tx.ctx, tx.store.indexKey(tx.namespace), member(recordType, recordID))
	return nil
}

func (tx *batchTx) Delete(recordType, recordID string) error {
	tx.pipe.Del(tx.ctx, tx.store.recordKey(tx.namespace, recordType, recordID))
	tx.pipe.SRem(tx.ctx, tx.store.indexKey(tx.namespace), member(recordType, recordID))
	return nil
}

func (s *Store) notFoundError(ctx context.Context, namespace, recordType, recordID string) error {
	n, err := s.client.Exists(ctx, s.indexKey(namespace)).Result()
	if err == nil && n == 0 {
		return fmt.Errorf("%s: %w", namespace, storage.ErrNamespaceNotFound)
	}
	return fmt.Errorf("%s/%s: %w", recordType, recordID, storage.ErrNotFound)
}
