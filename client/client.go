// Package client wires the credential store, refresh coordinator, session
// and token transport together for one auth server.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/jmcleod/tokenkeeper/authapi"
	"github.com/jmcleod/tokenkeeper/credential"
	"github.com/jmcleod/tokenkeeper/refresh"
	"github.com/jmcleod/tokenkeeper/session"
	"github.com/jmcleod/tokenkeeper/transport"
)

// DefaultRequestTimeout bounds protected requests made through HTTPClient.
const DefaultRequestTimeout = 30 * time.Second

// Client is the application-facing entry point.
type Client struct {
	api       *authapi.Client
	store     credential.Store
	coord     *refresh.Coordinator
	session   *session.Session
	transport *transport.Transport
	http      *http.Client
	logger    *slog.Logger
	closeOnce sync.Once
}

type options struct {
	logger         *slog.Logger
	base           http.RoundTripper
	refreshTimeout time.Duration
	requestTimeout time.Duration
	authTimeout    time.Duration
	proactiveSkew  time.Duration
}

// Option configures a Client.
type Option func(*options)

// WithLogger sets the structured logger shared by every component.
// If not set, a default JSON logger writing to stderr is used.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithBaseTransport sets the RoundTripper underneath the token transport
// and the auth client.
func WithBaseTransport(rt http.RoundTripper) Option {
	return func(o *options) {
		o.base = rt
	}
}

// WithRefreshTimeout bounds a single refresh exchange.
func WithRefreshTimeout(d time.Duration) Option {
	return func(o *options) {
		o.refreshTimeout = d
	}
}

// WithRequestTimeout bounds protected requests, retries included.
func WithRequestTimeout(d time.Duration) Option {
	return func(o *options) {
		o.requestTimeout = d
	}
}

// WithAuthTimeout bounds login, register, refresh and me calls.
func WithAuthTimeout(d time.Duration) Option {
	return func(o *options) {
		o.authTimeout = d
	}
}

// WithProactiveRefresh refreshes JWT access tokens expiring within skew
// before sending a request. Zero disables it.
func WithProactiveRefresh(skew time.Duration) Option {
	return func(o *options) {
		o.proactiveSkew = skew
	}
}

// New builds a client for the auth server at baseURL, keeping credentials
// in store. The session starts Unknown; call Bootstrap.
func New(baseURL string, store credential.Store, opts ...Option) (*Client, error) {
	o := options{
		logger:         slog.New(slog.NewJSONHandler(os.Stderr, nil)),
		base:           http.DefaultTransport,
		refreshTimeout: refresh.DefaultTimeout,
		requestTimeout: DefaultRequestTimeout,
		authTimeout:    authapi.DefaultTimeout,
	}
	for _, opt := range opts {
		opt(&o)
	}

	api, err := authapi.New(baseURL,
		authapi.WithHTTPClient(&http.Client{Transport: o.base}),
		authapi.WithTimeout(o.authTimeout),
		authapi.WithLogger(o.logger),
	)
	if err != nil {
		return nil, err
	}

	c := &Client{api: api, store: store, logger: o.logger.With("component", "client")}
	c.coord = refresh.New(store, api,
		refresh.WithTimeout(o.refreshTimeout),
		refresh.WithLogger(o.logger),
		refresh.WithInvalidator(refresh.InvalidatorFunc(func(ctx context.Context, cause error) {
			c.session.Expire(ctx, cause)
		})),
	)
	c.session = session.New(api, store,
		session.WithLogger(o.logger),
		session.WithRefresher(c.coord),
	)
	c.transport = transport.New(store, c.coord,
		transport.WithBase(o.base),
		transport.WithRefreshMatcher(api.IsRefreshRequest),
		transport.WithProactiveRefresh(o.proactiveSkew),
		transport.WithLogger(o.logger),
	)
	c.http = &http.Client{Transport: c.transport, Timeout: o.requestTimeout}
	return c, nil
}

// Session returns the session owned by the client.
func (c *Client) Session() *session.Session {
	return c.session
}

// HTTPClient returns an *http.Client that attaches the access token and
// recovers from expiry.
func (c *Client) HTTPClient() *http.Client {
	return c.http
}

// Origin returns the auth server origin, which is also the credential
// namespace.
func (c *Client) Origin() string {
	return c.api.Origin()
}

// TokenSource exposes the stored access token to oauth2-based code.
func (c *Client) TokenSource(ctx context.Context, skew time.Duration) oauth2.TokenSource {
	return transport.NewTokenSource(ctx, c.store, c.coord, skew)
}

// Bootstrap resolves the initial session state. See session.Session.Bootstrap.
func (c *Client) Bootstrap(ctx context.Context) error {
	return c.session.Bootstrap(ctx)
}

// Login signs in. See session.Session.Login.
func (c *Client) Login(ctx context.Context, username, password string) (*session.Identity, error) {
	return c.session.Login(ctx, username, password)
}

// Register creates an account and signs in. See session.Session.Register.
func (c *Client) Register(ctx context.Context, username, email, password string) (*session.Identity, error) {
	return c.session.Register(ctx, username, email, password)
}

// Logout clears credentials and identity.
func (c *Client) Logout(ctx context.Context) {
	c.session.Logout(ctx)
}

// Get issues a protected GET for path, resolved against the base URL.
func (c *Client) Get(ctx context.Context, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.api.URL(path), nil)
	if err != nil {
		return nil, err
	}
	return c.http.Do(req)
}

// GetJSON issues a protected GET and decodes a 2xx body into out. A 401
// that survived the refresh-and-retry matches authapi.ErrUnauthorized; a
// 403 matches authapi.ErrForbidden.
func (c *Client) GetJSON(ctx context.Context, path string, out any) error {
	resp, err := c.Get(ctx, path)
	if err != nil {
		return fmt.Errorf("%w: %w", authapi.ErrNetwork, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%w: reading response: %w", authapi.ErrNetwork, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e authapi.ErrorResponse
		_ = json.Unmarshal(data, &e)
		return authapi.NewResponseError(path, resp.StatusCode, e.Message)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decoding %s: %w", path, err)
	}
	return nil
}

// Close aborts any in-flight refresh. Pending callers fail with
// refresh.ErrCancelled. The store is owned by the caller and left open.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		c.coord.Close()
		c.http.CloseIdleConnections()
	})
}
