package storage

import (
	"bytes"
	"testing"

	"github.com/jmcleod/tokenkeeper/internal/util"
)

func TestEnvelope(t *testing.T) {
	key, _ := util.NewAESKey()
	plain := []byte("access-token-value")
	aad := []byte("tokenkeeper:credential:https://auth.example.com:accessToken")

	env, err := SealRecord(key, plain, aad)
	if err != nil {
		t.Fatalf("SealRecord failed: %v", err)
	}

	if env.Ver != 1 {
		t.Errorf("expected version 1, got %d", env.Ver)
	}
	if bytes.Contains(env.Ciphertext, plain) {
		t.Error("ciphertext must not contain the plaintext")
	}

	decrypted, err := OpenRecord(key, env, aad)
	if err != nil {
		t.Fatalf("OpenRecord failed: %v", err)
	}

	if !bytes.Equal(plain, decrypted) {
		t.Errorf("expected %s, got %s", plain, decrypted)
	}

	t.Run("WrongAAD", func(t *testing.T) {
		_, err := OpenRecord(key, env, []byte("tokenkeeper:credential:other:accessToken"))
		if err == nil {
			t.Error("expected error with wrong AAD, got nil")
		}
	})

	t.Run("WrongKey", func(t *testing.T) {
		wrongKey, _ := util.NewAESKey()
		_, err := OpenRecord(wrongKey, env, aad)
		if err == nil {
			t.Error("expected error with wrong key, got nil")
		}
	})

	t.Run("UnsupportedVersion", func(t *testing.T) {
		badEnv := *env
		badEnv.Ver = 99
		if _, err := OpenRecord(key, &badEnv, aad); err == nil {
			t.Error("expected error for unsupported version")
		}
	})

	t.Run("RawSchemeRejected", func(t *testing.T) {
		if _, err := OpenRecord(key, RawRecord(plain), aad); err == nil {
			t.Error("expected error opening a raw envelope as sealed")
		}
	})
}

func TestRawRecord(t *testing.T) {
	salt := []byte("0123456789abcdef")
	env := RawRecord(salt)
	salt[0] = 'X'

	got, err := OpenRaw(env)
	if err != nil {
		t.Fatalf("OpenRaw failed: %v", err)
	}
	if string(got) != "0123456789abcdef" {
		t.Errorf("raw record should copy its input, got %q", got)
	}

	clone := env.Clone()
	clone.Ciphertext[0] = 'Y'
	if env.Ciphertext[0] == 'Y' {
		t.Error("Clone should deep-copy ciphertext")
	}
}
