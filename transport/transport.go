// Package transport attaches the stored access token to outbound requests
// and recovers from 401 responses through a single refresh and retry.
package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/jmcleod/tokenkeeper/credential"
	"github.com/jmcleod/tokenkeeper/refresh"
)

// Refresher produces a new access token. *refresh.Coordinator satisfies it.
type Refresher interface {
	Refresh(ctx context.Context) (string, error)
}

// Transport is an http.RoundTripper for protected endpoints.
type Transport struct {
	base      http.RoundTripper
	store     credential.Store
	refresher Refresher
	isRefresh func(*http.Request) bool
	skew      time.Duration
	now       func() time.Time
	logger    *slog.Logger
}

var _ http.RoundTripper = (*Transport)(nil)

// Option configures a Transport.
type Option func(*Transport)

// WithBase sets the transport that actually dispatches requests.
// Defaults to http.DefaultTransport.
func WithBase(rt http.RoundTripper) Option {
	return func(t *Transport) {
		if rt != nil {
			t.base = rt
		}
	}
}

// WithRefreshMatcher identifies requests to the refresh endpoint, which
// are passed through untouched.
func WithRefreshMatcher(fn func(*http.Request) bool) Option {
	return func(t *Transport) {
		t.isRefresh = fn
	}
}

// WithProactiveRefresh refreshes before dispatch when the stored access
// token is a JWT expiring within skew. Zero disables it.
func WithProactiveRefresh(skew time.Duration) Option {
	return func(t *Transport) {
		t.skew = skew
	}
}

// WithLogger sets the structured logger.
// If not set, a default JSON logger writing to stderr is used.
func WithLogger(l *slog.Logger) Option {
	return func(t *Transport) {
		if l != nil {
			t.logger = l
		}
	}
}

func New(store credential.Store, refresher Refresher, opts ...Option) *Transport {
	t := &Transport{
		base:      http.DefaultTransport,
		store:     store,
		refresher: refresher,
		now:       time.Now,
		logger:    slog.New(slog.NewJSONHandler(os.Stderr, nil)),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.logger = t.logger.With("component", "transport")
	return t
}

// envelope is the per-call state shared by every attempt of one logical
// request.
type envelope struct {
	retried bool
}

// RoundTrip sends req with the current access token. A 401 triggers one
// refresh and one retry; if the refresh fails the original 401 is
// returned. req itself is never modified.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.isRefresh != nil && t.isRefresh(req) {
		return t.base.RoundTrip(req)
	}

	body, err := replayableBody(req)
	if err != nil {
		return nil, err
	}
	ctx := req.Context()
	env := &envelope{}

	token := t.accessToken(ctx)
	if token != "" && t.skew > 0 && credential.ExpiresWithin(token, t.now(), t.skew) {
		fresh, err := t.refresher.Refresh(ctx)
		switch {
		case err == nil:
			token = fresh
		case errors.Is(err, refresh.ErrCancelled):
			return nil, err
		default:
			// Credentials are gone; the request goes out anonymous and a
			// 401 is final.
			t.logger.Info("proactive refresh failed", "error", err)
			env.retried = true
			token = ""
		}
	}

	resp, err := t.send(req, body, token)
	if err != nil || resp.StatusCode != http.StatusUnauthorized || env.retried {
		return resp, err
	}
	env.retried = true

	// Another request may have refreshed while this one was in flight.
	fresh := t.accessToken(ctx)
	if fresh == "" || fresh == token {
		fresh, err = t.refresher.Refresh(ctx)
		if err != nil {
			t.logger.Info("refresh after 401 failed", "path", req.URL.Path, "error", err)
			return resp, nil
		}
	}
	drain(resp)

	return t.send(req, body, fresh)
}

func (t *Transport) accessToken(ctx context.Context) string {
	token, err := credential.AccessToken(ctx, t.store)
	if err != nil {
		t.logger.Warn("reading access token failed, sending without credentials", "error", err)
		return ""
	}
	return token
}

func (t *Transport) send(req *http.Request, body func() (io.ReadCloser, error), token string) (*http.Response, error) {
	out := req.Clone(req.Context())
	if body != nil {
		rc, err := body()
		if err != nil {
			return nil, fmt.Errorf("rewinding request body: %w", err)
		}
		out.Body = rc
		out.GetBody = body
	}
	if token != "" {
		out.Header.Set("Authorization", "Bearer "+token)
	}
	return t.base.RoundTrip(out)
}

// replayableBody returns a function yielding a fresh copy of the request
// body for each attempt, or nil when the request has none.
func replayableBody(req *http.Request) (func() (io.ReadCloser, error), error) {
	if req.Body == nil || req.Body == http.NoBody {
		return nil, nil
	}
	if req.GetBody != nil {
		req.Body.Close()
		return req.GetBody, nil
	}
	data, err := io.ReadAll(req.Body)
	req.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("buffering request body: %w", err)
	}
	return func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(data)), nil
	}, nil
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
	resp.Body.Close()
}
