package credential

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmcleod/tokenkeeper/internal/util"
	"github.com/jmcleod/tokenkeeper/storage"
)

const (
	kdfRecordType = "KDF"
	saltRecordID  = "salt"
	saltSize      = 16
)

// DeriveWrappingKey turns a passphrase into a 32-byte wrapping key for
// NewSealedStore using Argon2id. The salt is generated on first use and
// kept beside the credentials in the clear; it is not secret.
func DeriveWrappingKey(ctx context.Context, repo storage.Repository, namespace, passphrase string, params util.Argon2idParams) ([]byte, error) {
	if passphrase == "" {
		return nil, errors.New("passphrase must not be empty")
	}
	salt, err := loadOrCreateSalt(ctx, repo, namespace)
	if err != nil {
		return nil, &StorageError{Op: "open", Namespace: namespace, Record: saltRecordID, Err: err}
	}
	return util.DeriveArgon2idKey(passphrase, salt, params)
}

func loadOrCreateSalt(ctx context.Context, repo storage.Repository, namespace string) ([]byte, error) {
	env, err := repo.Get(ctx, namespace, kdfRecordType, saltRecordID)
	if err == nil {
		salt, err := storage.OpenRaw(env)
		if err != nil {
			return nil, err
		}
		if len(salt) == 0 {
			return nil, errors.New("stored salt is empty")
		}
		return salt, nil
	}
	if !storage.IsNotFound(err) {
		return nil, fmt.Errorf("loading salt: %w", err)
	}
	salt, err := util.RandomBytes(saltSize)
	if err != nil {
		return nil, err
	}
	if err := repo.Put(ctx, namespace, kdfRecordType, saltRecordID, storage.RawRecord(salt)); err != nil {
		return nil, fmt.Errorf("storing salt: %w", err)
	}
	return salt, nil
}
