// Package credential holds the access/refresh token pair for one auth
// server origin.
//
// A Store is the only owner of the persisted pair. Writes are visible to
// the next Get immediately; nothing is buffered between calls, so the
// request pipeline always attaches the freshest access token.
package credential

import "context"

// Record IDs of the two persisted entries.
const (
	AccessTokenKey  = "accessToken"
	RefreshTokenKey = "refreshToken"
)

// Pair is the credential pair issued by the auth server. Either field may
// be empty when only one entry is stored.
type Pair struct {
	AccessToken  string
	RefreshToken string
}

// Empty reports whether neither token is present.
func (p Pair) Empty() bool {
	return p.AccessToken == "" && p.RefreshToken == ""
}

// Store is a durable key-value surface for the credential pair.
type Store interface {
	// Get returns the stored pair, or nil when nothing is stored.
	Get(ctx context.Context) (*Pair, error)
	// Set replaces both entries. An empty field removes that entry.
	Set(ctx context.Context, pair Pair) error
	// SetAccessToken replaces the access entry and leaves the refresh
	// entry untouched.
	SetAccessToken(ctx context.Context, token string) error
	// Clear removes both entries.
	Clear(ctx context.Context) error
	// CompareAndSet replaces both entries with pair, as Set does, but only
	// while the stored refresh entry still equals refreshToken ("" matches
	// an absent entry). It reports whether the write happened.
	CompareAndSet(ctx context.Context, refreshToken string, pair Pair) (bool, error)
}

// AccessToken returns the stored access token. A storage failure is
// reported as an empty token alongside the error, so callers can degrade
// to anonymous.
func AccessToken(ctx context.Context, s Store) (string, error) {
	pair, err := s.Get(ctx)
	if err != nil || pair == nil {
		return "", err
	}
	return pair.AccessToken, nil
}

// RefreshToken returns the stored refresh token with the same degradation
// rules as AccessToken.
func RefreshToken(ctx context.Context, s Store) (string, error) {
	pair, err := s.Get(ctx)
	if err != nil || pair == nil {
		return "", err
	}
	return pair.RefreshToken, nil
}
