package transport

import (
	"context"
	"errors"
	"time"

	"golang.org/x/oauth2"

	"github.com/jmcleod/tokenkeeper/credential"
)

// ErrNoToken is returned by TokenSource when no access token is stored.
var ErrNoToken = errors.New("no access token stored")

// TokenSource exposes the stored access token as an oauth2.TokenSource so
// code built on oauth2.NewClient shares the session. Expiring JWTs are
// refreshed through the same Refresher the transport uses.
type TokenSource struct {
	ctx       context.Context
	store     credential.Store
	refresher Refresher
	skew      time.Duration
}

var _ oauth2.TokenSource = (*TokenSource)(nil)

// NewTokenSource returns a TokenSource bound to ctx.
func NewTokenSource(ctx context.Context, store credential.Store, refresher Refresher, skew time.Duration) *TokenSource {
	return &TokenSource{ctx: ctx, store: store, refresher: refresher, skew: skew}
}

func (s *TokenSource) Token() (*oauth2.Token, error) {
	token, err := credential.AccessToken(s.ctx, s.store)
	if err != nil {
		return nil, err
	}
	if token == "" {
		return nil, ErrNoToken
	}
	if credential.ExpiresWithin(token, time.Now(), s.skew) {
		if token, err = s.refresher.Refresh(s.ctx); err != nil {
			return nil, err
		}
	}
	tok := &oauth2.Token{AccessToken: token, TokenType: "Bearer"}
	if exp, ok := credential.AccessExpiry(token); ok {
		tok.Expiry = exp
	}
	return tok, nil
}
