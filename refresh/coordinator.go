// Package refresh exchanges the refresh token for a new access token.
//
// Any number of goroutines may call Coordinator.Refresh at once; they all
// share a single exchange and observe the same result. The exchange is
// detached from the first caller's context so that one caller giving up
// does not fail the others.
package refresh

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jmcleod/tokenkeeper/authapi"
	"github.com/jmcleod/tokenkeeper/credential"
)

// DefaultTimeout bounds a single exchange.
const DefaultTimeout = 10 * time.Second

// Exchanger performs the refresh exchange against the auth server.
// *authapi.Client satisfies it.
type Exchanger interface {
	Refresh(ctx context.Context, refreshToken string) (*authapi.TokenResponse, error)
}

// Invalidator is told when credentials can no longer be recovered, so the
// owner of the session can drop its identity.
type Invalidator interface {
	Invalidate(ctx context.Context, cause error)
}

// InvalidatorFunc adapts a function to Invalidator.
type InvalidatorFunc func(ctx context.Context, cause error)

func (f InvalidatorFunc) Invalidate(ctx context.Context, cause error) { f(ctx, cause) }

// State is the coordinator's position in the refresh protocol.
type State int

const (
	Idle State = iota
	Refreshing
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Refreshing:
		return "refreshing"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// call is one in-flight exchange. token and err are written once, before
// done is closed.
type call struct {
	done    chan struct{}
	waiters int // guarded by Coordinator.mu
	token   string
	err     error
}

// Coordinator owns the refresh protocol for one credential store.
type Coordinator struct {
	store     credential.Store
	exchanger Exchanger
	inval     Invalidator
	timeout   time.Duration
	logger    *slog.Logger

	base   context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	state    State
	inflight *call
	closed   bool

	exchanges atomic.Int64
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithTimeout overrides DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithLogger sets the structured logger.
// If not set, a default JSON logger writing to stderr is used.
func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithInvalidator registers the party to notify when the session must end.
func WithInvalidator(inv Invalidator) Option {
	return func(c *Coordinator) {
		c.inval = inv
	}
}

// New returns an idle coordinator.
func New(store credential.Store, exchanger Exchanger, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:     store,
		exchanger: exchanger,
		timeout:   DefaultTimeout,
		logger:    slog.New(slog.NewJSONHandler(os.Stderr, nil)),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "refresh")
	c.base, c.cancel = context.WithCancel(context.Background())
	return c
}

// State returns the current protocol state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Exchanges returns how many exchanges have been started.
func (c *Coordinator) Exchanges() int64 {
	return c.exchanges.Load()
}

// Refresh returns a fresh access token. If an exchange is already in
// flight the caller joins it instead of starting another.
//
// On ErrNoRefreshToken and ErrRefreshFailed the store has been cleared and
// the invalidator notified before Refresh returns, unless the credentials
// changed during the exchange. A successful exchange whose credentials
// changed returns ErrSuperseded and writes nothing. If ctx ends first the
// caller gets ErrCancelled and the exchange carries on for the others.
func (c *Coordinator) Refresh(ctx context.Context) (string, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return "", ErrCancelled
	}
	cl := c.inflight
	if cl == nil {
		cl = &call{done: make(chan struct{})}
		c.inflight = cl
		c.state = Refreshing
		c.exchanges.Add(1)
		c.wg.Add(1)
		go c.run(cl)
	}
	cl.waiters++
	if cl.waiters > 1 {
		c.logger.Debug("joined in-flight refresh", "waiters", cl.waiters)
	}
	c.mu.Unlock()

	select {
	case <-cl.done:
		return cl.token, cl.err
	case <-ctx.Done():
		return "", fmt.Errorf("%w: %w", ErrCancelled, ctx.Err())
	case <-c.base.Done():
		return "", ErrCancelled
	}
}

// Close aborts any in-flight exchange and fails its waiters with
// ErrCancelled. Later calls to Refresh fail immediately.
func (c *Coordinator) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	c.cancel()
	c.wg.Wait()
}

func (c *Coordinator) run(cl *call) {
	defer c.wg.Done()

	ctx, cancel := context.WithTimeout(c.base, c.timeout)
	defer cancel()
	token, err := c.exchange(ctx)

	c.mu.Lock()
	c.inflight = nil
	c.state = Idle
	c.mu.Unlock()

	cl.token, cl.err = token, err
	close(cl.done)
}

func (c *Coordinator) exchange(ctx context.Context) (string, error) {
	refreshToken, err := credential.RefreshToken(ctx, c.store)
	if err != nil {
		if c.base.Err() != nil {
			return "", ErrCancelled
		}
		c.logger.Warn("reading refresh token failed, treating as absent", "error", err)
		c.invalidate(ctx, "", true, ErrNoRefreshToken)
		return "", ErrNoRefreshToken
	}
	if refreshToken == "" {
		c.invalidate(ctx, "", false, ErrNoRefreshToken)
		return "", ErrNoRefreshToken
	}

	resp, err := c.exchanger.Refresh(ctx, refreshToken)
	if err != nil {
		if c.base.Err() != nil {
			return "", ErrCancelled
		}
		failure := fmt.Errorf("%w: %w", ErrRefreshFailed, err)
		c.invalidate(ctx, refreshToken, false, failure)
		return "", failure
	}

	next := credential.Pair{AccessToken: resp.AccessToken, RefreshToken: refreshToken}
	if resp.RefreshToken != "" {
		next.RefreshToken = resp.RefreshToken
	}
	stored, err := c.store.CompareAndSet(ctx, refreshToken, next)
	switch {
	case err != nil:
		// The new token is still valid for this process.
		c.logger.Error("persisting refreshed access token failed", "error", err)
	case !stored:
		c.logger.Info("credentials changed during refresh, discarding result")
		return "", ErrSuperseded
	}
	c.logger.Debug("access token refreshed", "rotated", resp.RefreshToken != "")
	return resp.AccessToken, nil
}

// invalidate drops the credentials the exchange started from and tells the
// session owner. Credentials stored since (a new login, or a logout) are
// left alone and nobody is told. force clears regardless, for a store that
// could not be read. It runs on a context detached from the exchange
// deadline so cleanup is not skipped when the exchange timed out.
func (c *Coordinator) invalidate(ctx context.Context, refreshToken string, force bool, cause error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
	defer cancel()

	if force {
		if err := c.store.Clear(ctx); err != nil {
			c.logger.Error("clearing credentials failed", "error", err)
		}
	} else {
		cleared, err := c.store.CompareAndSet(ctx, refreshToken, credential.Pair{})
		if err != nil {
			c.logger.Error("clearing credentials failed", "error", err)
		} else if !cleared {
			c.logger.Info("credentials changed during refresh, leaving them", "error", cause)
			return
		}
	}
	c.logger.Warn("refresh unrecoverable, credentials cleared", "error", cause)
	if c.inval != nil {
		c.inval.Invalidate(ctx, cause)
	}
}
