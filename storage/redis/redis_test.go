package redis

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmcleod/tokenkeeper/storage"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *Store) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	s := NewRepository(client, WithKeyPrefix("tk-test"))
	t.Cleanup(func() { s.Close() })
	return mr, s
}

func TestRedisStorage(t *testing.T) {
	ctx := context.Background()
	mr, s := newTestRedis(t)

	namespace := "https://auth.example.com"
	recordType := "CREDENTIAL"
	env := &storage.Envelope{Ver: 1, Scheme: storage.SchemeAESGCM, Nonce: make([]byte, 12), Ciphertext: []byte("cipher")}

	t.Run("PutGet", func(t *testing.T) {
		require.NoError(t, s.Put(ctx, namespace, recordType, "accessToken", env))
		got, err := s.Get(ctx, namespace, recordType, "accessToken")
		require.NoError(t, err)
		assert.Equal(t, env.Ciphertext, got.Ciphertext)
		assert.True(t, mr.Exists("tk-test:"+namespace+":CREDENTIAL:accessToken"))
	})

	t.Run("NotFound", func(t *testing.T) {
		_, err := s.Get(ctx, "https://nobody.example.com", recordType, "accessToken")
		assert.ErrorIs(t, err, storage.ErrNamespaceNotFound)
		_, err = s.Get(ctx, namespace, recordType, "missing")
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("RecordTypesAreSeparate", func(t *testing.T) {
		require.NoError(t, s.Put(ctx, namespace, recordType, "refreshToken", env))
		require.NoError(t, s.Put(ctx, namespace, "KEY", "record", env))
		_, err := s.Get(ctx, namespace, "KEY", "refreshToken")
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, s.Delete(ctx, namespace, "KEY", "record"))
		assert.ErrorIs(t, s.Delete(ctx, namespace, "KEY", "record"), storage.ErrNotFound)
	})

	t.Run("BatchCommit", func(t *testing.T) {
		err := s.Batch(ctx, namespace, func(tx storage.BatchTx) error {
			if err := tx.Delete(recordType, "accessToken"); err != nil {
				return err
			}
			return tx.Delete(recordType, "refreshToken")
		})
		require.NoError(t, err)
		for _, id := range []string{"accessToken", "refreshToken"} {
			_, err := s.Get(ctx, namespace, recordType, id)
			assert.ErrorIs(t, err, storage.ErrNotFound)
		}
	})

	t.Run("BatchAbortSendsNothing", func(t *testing.T) {
		boom := errors.New("boom")
		err := s.Batch(ctx, namespace, func(tx storage.BatchTx) error {
			tx.Put(recordType, "accessToken", env)
			return boom
		})
		assert.ErrorIs(t, err, boom)
		_, err = s.Get(ctx, namespace, recordType, "accessToken")
		assert.True(t, storage.IsNotFound(err))
	})
}

func TestRedisServerDown(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	s := NewRepository(goredis.NewClient(&goredis.Options{Addr: mr.Addr()}))
	defer s.Close()
	mr.Close()

	_, err = s.Get(context.Background(), "ns", "CREDENTIAL", "accessToken")
	require.Error(t, err)
	assert.False(t, storage.IsNotFound(err), "transport errors must not look like a missing record")
}
