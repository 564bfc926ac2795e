package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jmcleod/tokenkeeper/authapi"
	"github.com/jmcleod/tokenkeeper/client"
	"github.com/jmcleod/tokenkeeper/credential"
	"github.com/jmcleod/tokenkeeper/internal/config"
	"github.com/jmcleod/tokenkeeper/internal/util"
	"github.com/jmcleod/tokenkeeper/storage"
	bboltstorage "github.com/jmcleod/tokenkeeper/storage/bbolt"
	pgstorage "github.com/jmcleod/tokenkeeper/storage/postgres"
	redisstorage "github.com/jmcleod/tokenkeeper/storage/redis"
)

// openRepository opens the configured durable backend. The returned func
// releases it.
func openRepository(ctx context.Context, c *config.Config) (storage.Repository, func(), error) {
	switch c.Store {
	case config.StoreBolt:
		if err := os.MkdirAll(c.DataDir, 0o700); err != nil {
			return nil, nil, fmt.Errorf("failed to create data directory: %w", err)
		}
		repo, err := bboltstorage.NewRepositoryFromFile(filepath.Join(c.DataDir, "credentials.db"), nil)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open credential storage: %w", err)
		}
		return repo, func() { repo.Close() }, nil
	case config.StorePostgres:
		repo, err := pgstorage.NewRepositoryFromDSN(ctx, c.PostgresDSN)
		if err != nil {
			return nil, nil, err
		}
		return repo, repo.Close, nil
	case config.StoreRedis:
		repo, err := redisstorage.NewRepositoryFromAddr(ctx, c.RedisAddr)
		if err != nil {
			return nil, nil, err
		}
		return repo, func() { repo.Close() }, nil
	}
	return nil, nil, fmt.Errorf("store %q is not durable", c.Store)
}

// openStore returns the credential store for origin.
func openStore(ctx context.Context, c *config.Config, origin string) (credential.Store, func(), error) {
	if !c.Durable() {
		logger.Warn("memory store selected, credentials end with this process")
		return credential.NewMemoryStore(), func() {}, nil
	}

	repo, closeRepo, err := openRepository(ctx, c)
	if err != nil {
		return nil, nil, err
	}
	key, err := credential.DeriveWrappingKey(ctx, repo, origin, c.Passphrase, util.DefaultArgon2idParams())
	if err != nil {
		closeRepo()
		return nil, nil, err
	}
	store, err := credential.NewSealedStore(ctx, repo, origin, key, credential.WithLogger(logger))
	util.WipeBytes(key)
	if err != nil {
		closeRepo()
		return nil, nil, err
	}
	return store, func() {
		store.Close()
		closeRepo()
	}, nil
}

// openClient builds a client for the configured server and store.
func openClient(ctx context.Context) (*client.Client, func(), error) {
	api, err := authapi.New(cfg.BaseURL)
	if err != nil {
		return nil, nil, err
	}
	store, closeStore, err := openStore(ctx, cfg, api.Origin())
	if err != nil {
		return nil, nil, err
	}
	c, err := client.New(cfg.BaseURL, store,
		client.WithLogger(logger),
		client.WithRefreshTimeout(cfg.RefreshTimeout),
		client.WithRequestTimeout(cfg.RequestTimeout),
		client.WithProactiveRefresh(cfg.ProactiveRefresh),
	)
	if err != nil {
		closeStore()
		return nil, nil, err
	}
	return c, func() {
		c.Close()
		closeStore()
	}, nil
}

var errSignedOut = errors.New("not signed in")
