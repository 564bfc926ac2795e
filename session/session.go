// Package session holds the identity of the current user and the
// login, register and logout operations that change it.
//
// A Session is constructed once per process and passed to whoever needs
// it; there is no package-level instance. It is the only writer of the
// session state. The refresh coordinator reaches it through Expire.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/jmcleod/tokenkeeper/authapi"
	"github.com/jmcleod/tokenkeeper/credential"
	"github.com/jmcleod/tokenkeeper/refresh"
)

// Identity is the server-asserted user. It is never edited client-side.
type Identity = authapi.User

// State is the session lifecycle position.
type State int

const (
	// Unknown is the state before Bootstrap resolves.
	Unknown State = iota
	Authenticated
	Anonymous
)

func (s State) String() string {
	switch s {
	case Unknown:
		return "unknown"
	case Authenticated:
		return "authenticated"
	case Anonymous:
		return "anonymous"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// AuthAPI is the subset of the auth endpoint client the session uses.
// *authapi.Client satisfies it.
type AuthAPI interface {
	Login(ctx context.Context, username, password string) (*authapi.TokenResponse, error)
	Register(ctx context.Context, username, email, password string) (*authapi.TokenResponse, error)
	Me(ctx context.Context, accessToken string) (*authapi.User, error)
}

// Refresher exchanges the refresh token for a new access token.
type Refresher interface {
	Refresh(ctx context.Context) (string, error)
}

// Listener observes state changes. identity is nil unless state is
// Authenticated.
type Listener func(state State, identity *Identity)

// Session is the process-wide authentication state.
type Session struct {
	api       AuthAPI
	store     credential.Store
	refresher Refresher
	logger    *slog.Logger

	// writeMu serializes sign-in, sign-out and expiry so a stale expiry
	// cannot land between a new sign-in's store write and its transition.
	writeMu sync.Mutex

	mu       sync.RWMutex
	state    State
	identity *Identity

	ready     chan struct{}
	readyOnce sync.Once
	bootOnce  sync.Once
	bootErr   error

	subMu     sync.Mutex
	listeners map[int]Listener
	nextSubID int
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the structured logger.
// If not set, a default JSON logger writing to stderr is used.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithRefresher lets Bootstrap recover an expired access token before
// giving up on the stored credentials.
func WithRefresher(r Refresher) Option {
	return func(s *Session) {
		s.refresher = r
	}
}

// New returns a session in the Unknown state. Call Bootstrap before
// relying on State.
func New(api AuthAPI, store credential.Store, opts ...Option) *Session {
	s := &Session{
		api:       api,
		store:     store,
		logger:    slog.New(slog.NewJSONHandler(os.Stderr, nil)),
		ready:     make(chan struct{}),
		listeners: make(map[int]Listener),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "session")
	return s
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Identity returns a copy of the current identity, or nil when not
// authenticated.
func (s *Session) Identity() *Identity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.identity == nil {
		return nil
	}
	id := *s.identity
	return &id
}

// Ready is closed once the session has left Unknown.
func (s *Session) Ready() <-chan struct{} {
	return s.ready
}

// Wait blocks until the session has left Unknown or ctx ends.
func (s *Session) Wait(ctx context.Context) (State, error) {
	select {
	case <-s.ready:
		return s.State(), nil
	case <-ctx.Done():
		return Unknown, ctx.Err()
	}
}

// Subscribe registers fn for every state or identity change and returns a
// function that removes it. fn runs on the goroutine making the change and
// must not call back into the session's mutating methods.
func (s *Session) Subscribe(fn Listener) (unsubscribe func()) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	id := s.nextSubID
	s.nextSubID++
	s.listeners[id] = fn
	return func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		delete(s.listeners, id)
	}
}

// Bootstrap resolves the initial state from stored credentials. Only the
// first call does any work; later calls return its result.
//
// A stored access token is confirmed with the identity lookup. If the
// lookup is refused and a Refresher is configured, one refresh is tried
// before the credentials are discarded.
func (s *Session) Bootstrap(ctx context.Context) error {
	s.bootOnce.Do(func() {
		s.bootErr = s.bootstrap(ctx)
	})
	return s.bootErr
}

func (s *Session) bootstrap(ctx context.Context) error {
	access, err := credential.AccessToken(ctx, s.store)
	if err != nil {
		s.logger.Warn("reading stored credentials failed, starting anonymous", "error", err)
		s.discard(ctx)
		return nil
	}
	if access == "" {
		s.transition(Anonymous, nil)
		return nil
	}

	user, err := s.api.Me(ctx, access)
	if errors.Is(err, authapi.ErrUnauthorized) && s.refresher != nil {
		var fresh string
		if fresh, err = s.refresher.Refresh(ctx); err == nil {
			user, err = s.api.Me(ctx, fresh)
		}
		if errors.Is(err, refresh.ErrSuperseded) {
			// A concurrent Login or Logout already settled the state.
			return nil
		}
	}
	if err != nil {
		s.logger.Info("stored credentials rejected, starting anonymous", "error", err)
		s.discard(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return nil
	}
	s.transition(Authenticated, user)
	return nil
}

// Login authenticates with a username and password. On failure the state
// is unchanged and the error matches authapi.ErrInvalidCredentials or
// authapi.ErrNetwork.
func (s *Session) Login(ctx context.Context, username, password string) (*Identity, error) {
	resp, err := s.api.Login(ctx, username, password)
	if err != nil {
		return nil, err
	}
	return s.establish(ctx, resp)
}

// Register creates an account and signs in as it, with the same contract
// as Login.
func (s *Session) Register(ctx context.Context, username, email, password string) (*Identity, error) {
	resp, err := s.api.Register(ctx, username, email, password)
	if err != nil {
		return nil, err
	}
	return s.establish(ctx, resp)
}

func (s *Session) establish(ctx context.Context, resp *authapi.TokenResponse) (*Identity, error) {
	pair := credential.Pair{AccessToken: resp.AccessToken, RefreshToken: resp.RefreshToken}

	s.writeMu.Lock()
	if err := s.store.Set(ctx, pair); err != nil {
		s.logger.Error("saving credentials failed", "error", err)
		s.discardLocked(ctx)
		s.writeMu.Unlock()
		return nil, fmt.Errorf("saving credentials: %w", err)
	}
	s.transition(Authenticated, resp.User)
	s.writeMu.Unlock()

	s.logger.Info("signed in", "user_id", resp.User.ID, "username", resp.User.Username)
	return s.Identity(), nil
}

// Logout always succeeds: stored credentials are cleared best-effort and
// the session becomes Anonymous.
func (s *Session) Logout(ctx context.Context) {
	s.discard(ctx)
	s.logger.Info("signed out")
}

// Invalidate drops the identity and whatever credentials are stored,
// regardless of who wrote them.
func (s *Session) Invalidate(ctx context.Context, cause error) {
	s.logger.Warn("session invalidated", "cause", cause)
	s.discard(ctx)
}

// Expire drops the identity after the refresh coordinator gave up on the
// stored credentials. The coordinator clears only the pair it was
// refreshing, so a pair found in the store belongs to a later sign-in and
// Expire leaves the session alone.
func (s *Session) Expire(ctx context.Context, cause error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	pair, err := s.store.Get(ctx)
	switch {
	case err != nil:
		s.logger.Warn("session expired, credentials unreadable", "cause", cause, "error", err)
		s.discardLocked(ctx)
	case pair != nil && !pair.Empty():
		s.logger.Info("ignoring expiry, credentials were replaced", "cause", cause)
	default:
		s.logger.Warn("session expired", "cause", cause)
		s.transition(Anonymous, nil)
	}
}

func (s *Session) discard(ctx context.Context) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.discardLocked(ctx)
}

func (s *Session) discardLocked(ctx context.Context) {
	if err := s.store.Clear(ctx); err != nil {
		s.logger.Error("clearing credentials failed", "error", err)
	}
	s.transition(Anonymous, nil)
}

func (s *Session) transition(state State, user *authapi.User) {
	var identity *Identity
	if user != nil {
		u := *user
		identity = &u
	}

	s.mu.Lock()
	changed := s.state != state || !sameIdentity(s.identity, identity)
	s.state, s.identity = state, identity
	s.mu.Unlock()

	if state != Unknown {
		s.readyOnce.Do(func() { close(s.ready) })
	}
	if changed {
		s.notify(state, identity)
	}
}

func (s *Session) notify(state State, identity *Identity) {
	s.subMu.Lock()
	fns := make([]Listener, 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.subMu.Unlock()

	for _, fn := range fns {
		var id *Identity
		if identity != nil {
			cp := *identity
			id = &cp
		}
		fn(state, id)
	}
}

func sameIdentity(a, b *Identity) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
