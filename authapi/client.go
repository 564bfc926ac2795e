// Package authapi is the wire client for the authentication endpoints:
// login, register, refresh and me.
//
// It never goes through the request interceptor; the refresh exchange in
// particular must not be intercepted, or a rejected refresh token would
// trigger another refresh.
package authapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

const (
	LoginPath    = "/auth/login"
	RegisterPath = "/auth/register"
	RefreshPath  = "/auth/refresh"
	MePath       = "/auth/me"

	// DefaultTimeout bounds every auth exchange.
	DefaultTimeout = 10 * time.Second

	maxBodySize = 1 << 20
)

// Client talks to one auth server.
type Client struct {
	base   *url.URL
	http   *http.Client
	logger *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client. Its Transport must not be the
// token-attaching transport.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			cp := *hc
			c.http = &cp
		}
	}
}

// WithTimeout overrides DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithLogger sets the structured logger.
// If not set, a default JSON logger writing to stderr is used.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// New returns a client for the server at baseURL. A path in baseURL is
// kept as a prefix for every endpoint.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing base URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("base URL must be http or https, got %q", baseURL)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("base URL has no host: %q", baseURL)
	}
	u.Path = strings.TrimSuffix(u.Path, "/")
	u.RawQuery, u.Fragment = "", ""

	c := &Client{
		base:   u,
		http:   &http.Client{Timeout: DefaultTimeout},
		logger: slog.New(slog.NewJSONHandler(os.Stderr, nil)),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "authapi")
	return c, nil
}

// Origin returns scheme://host of the auth server. Credentials are kept
// per origin.
func (c *Client) Origin() string {
	return c.base.Scheme + "://" + c.base.Host
}

// URL resolves an endpoint path against the base URL.
func (c *Client) URL(path string) string {
	return c.base.JoinPath(path).String()
}

// IsRefreshRequest reports whether req targets this server's refresh
// endpoint.
func (c *Client) IsRefreshRequest(req *http.Request) bool {
	if req.URL == nil || !strings.EqualFold(req.URL.Host, c.base.Host) {
		return false
	}
	return strings.TrimSuffix(req.URL.Path, "/") == c.base.JoinPath(RefreshPath).Path
}

// Login exchanges a username and password for a credential pair.
func (c *Client) Login(ctx context.Context, username, password string) (*TokenResponse, error) {
	var out TokenResponse
	if err := c.do(ctx, http.MethodPost, LoginPath, "", LoginRequest{Username: username, Password: password}, &out); err != nil {
		return nil, err
	}
	if err := out.validate(true); err != nil {
		return nil, err
	}
	return &out, nil
}

// Register creates an account and returns its first credential pair.
func (c *Client) Register(ctx context.Context, username, email, password string) (*TokenResponse, error) {
	var out TokenResponse
	body := RegisterRequest{Username: username, Email: email, Password: password}
	if err := c.do(ctx, http.MethodPost, RegisterPath, "", body, &out); err != nil {
		return nil, err
	}
	if err := out.validate(true); err != nil {
		return nil, err
	}
	return &out, nil
}

// Refresh presents refreshToken as bearer and returns a new access token.
// RefreshToken in the result is set only when the server rotated it.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	var out TokenResponse
	if err := c.do(ctx, http.MethodPost, RefreshPath, refreshToken, nil, &out); err != nil {
		return nil, err
	}
	if err := out.validate(false); err != nil {
		return nil, err
	}
	return &out, nil
}

// Me returns the identity behind accessToken.
func (c *Client) Me(ctx context.Context, accessToken string) (*User, error) {
	var out MeResponse
	if err := c.do(ctx, http.MethodGet, MePath, accessToken, nil, &out); err != nil {
		return nil, err
	}
	return &out.User, nil
}

func (r *TokenResponse) validate(pair bool) error {
	if r.AccessToken == "" {
		return fmt.Errorf("%w: response has no access_token", ErrUnexpectedStatus)
	}
	if pair && (r.RefreshToken == "" || r.User == nil) {
		return fmt.Errorf("%w: response has no refresh_token or user", ErrUnexpectedStatus)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, endpoint, bearer string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.URL(endpoint), body)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Debug("auth request failed", "endpoint", endpoint, "error", err)
		return fmt.Errorf("%w: %w", ErrNetwork, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return fmt.Errorf("%w: reading response: %w", ErrNetwork, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e ErrorResponse
		_ = json.Unmarshal(data, &e)
		c.logger.Debug("auth request rejected", "endpoint", endpoint, "status", resp.StatusCode)
		return NewResponseError(endpoint, resp.StatusCode, e.Message)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: decoding %s response: %w", ErrUnexpectedStatus, endpoint, err)
	}
	return nil
}

// IsTransient reports whether err is a network failure rather than an
// answer from the server.
func IsTransient(err error) bool {
	return errors.Is(err, ErrNetwork)
}
