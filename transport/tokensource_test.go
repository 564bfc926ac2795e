package transport

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/jmcleod/tokenkeeper/credential"
)

func TestTokenSource(t *testing.T) {
	ctx := context.Background()

	t.Run("NoToken", func(t *testing.T) {
		store := seeded(t, credential.Pair{})
		_, err := NewTokenSource(ctx, store, &fakeRefresher{store: store}, 0).Token()
		assert.ErrorIs(t, err, ErrNoToken)
	})

	t.Run("Opaque", func(t *testing.T) {
		store := seeded(t, credential.Pair{AccessToken: "A1", RefreshToken: "R1"})
		r := &fakeRefresher{store: store, token: "A2"}
		tok, err := NewTokenSource(ctx, store, r, time.Minute).Token()
		require.NoError(t, err)
		assert.Equal(t, "A1", tok.AccessToken)
		assert.Equal(t, "Bearer", tok.TokenType)
		assert.True(t, tok.Expiry.IsZero())
		assert.Zero(t, r.calls.Load())
	})

	t.Run("ExpiringJWT", func(t *testing.T) {
		fresh := expiringJWT(t, time.Hour)
		store := seeded(t, credential.Pair{AccessToken: expiringJWT(t, time.Second), RefreshToken: "R1"})
		r := &fakeRefresher{store: store, token: fresh}
		tok, err := NewTokenSource(ctx, store, r, time.Minute).Token()
		require.NoError(t, err)
		assert.Equal(t, fresh, tok.AccessToken)
		assert.False(t, tok.Expiry.IsZero())
		assert.Equal(t, int64(1), r.calls.Load())
	})
}

func TestTokenSourceWithOAuth2Client(t *testing.T) {
	srv := &protected{valid: "A1"}
	ts := httptest.NewServer(srv)
	defer ts.Close()
	store := seeded(t, credential.Pair{AccessToken: "A1", RefreshToken: "R1"})

	ctx := context.Background()
	client := oauth2.NewClient(ctx, NewTokenSource(ctx, store, &fakeRefresher{store: store}, 0))
	resp, err := client.Get(ts.URL + "/api/profile")
	require.NoError(t, err)
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []string{"Bearer A1"}, srv.headers())
}
