package cmd

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/jmcleod/tokenkeeper/authapi"
	"github.com/jmcleod/tokenkeeper/devserver"
)

func startServer(t *testing.T) (*devserver.Server, string) {
	t.Helper()
	srv, err := devserver.New(
		devserver.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		devserver.WithBcryptCost(bcrypt.MinCost),
	)
	require.NoError(t, err)
	_, err = srv.AddUser("alice", "alice@example.com", "pw", "user")
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return srv, ts.URL
}

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetArgs(args)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetOut(&out)
	rootCmd.SetErr(io.Discard)
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestSessionCommands(t *testing.T) {
	srv, url := startServer(t)
	common := []string{
		"--base-url", url,
		"--store", "bbolt",
		"--data-dir", t.TempDir(),
		"--passphrase", "correct horse",
		"--log-level", "error",
	}
	with := func(args ...string) []string {
		return append(append([]string{}, args...), common...)
	}

	out, err := run(t, "alice\npw\n", with("login")...)
	require.NoError(t, err)
	assert.Contains(t, out, "Signed in to "+url+" as alice (user)")

	out, err = run(t, "", with("whoami")...)
	require.NoError(t, err)
	assert.Equal(t, "alice <alice@example.com> role=user id=1\n", out)

	srv.RevokeAccessTokens()
	out, err = run(t, "", with("get", "/api/profile")...)
	require.NoError(t, err)
	assert.Contains(t, out, `"username":"alice"`)
	assert.Equal(t, int64(1), srv.RefreshCount())

	_, err = run(t, "", with("get", "/api/admin")...)
	assert.ErrorIs(t, err, authapi.ErrForbidden)

	out, err = run(t, "", with("token", "--skew", "0s")...)
	require.NoError(t, err)
	assert.Contains(t, out, "expires: ")

	out, err = run(t, "", with("logout")...)
	require.NoError(t, err)
	assert.Contains(t, out, "Signed out")

	_, err = run(t, "", with("whoami")...)
	assert.ErrorIs(t, err, errSignedOut)
}

func TestLoginRejected(t *testing.T) {
	_, url := startServer(t)
	_, err := run(t, "", "login", "-u", "alice", "--password", "nope",
		"--base-url", url, "--store", "memory", "--log-level", "error")
	assert.ErrorIs(t, err, authapi.ErrInvalidCredentials)
}

func TestInvalidConfig(t *testing.T) {
	_, err := run(t, "", "whoami", "--store", "floppy", "--log-level", "error")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown store")

	_, err = run(t, "", "whoami", "--store", "bbolt", "--passphrase", "", "--log-level", "error")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "passphrase is required")
}

func TestSeedUser(t *testing.T) {
	logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	srv, err := devserver.New(devserver.WithLogger(logger), devserver.WithBcryptCost(bcrypt.MinCost))
	require.NoError(t, err)

	require.NoError(t, seedUser(srv, "root:pw:admin"))
	require.NoError(t, seedUser(srv, "bob:pw"))
	assert.Error(t, seedUser(srv, "bob:pw"), "duplicate")
	for _, bad := range []string{"", "carol", ":pw", "carol:"} {
		assert.Error(t, seedUser(srv, bad), bad)
	}
}
