// Package devserver is a development auth server speaking the same wire
// protocol as the production one: login, register, refresh and me under
// /auth, plus sample resources under /api.
//
// It exists for integration tests and local demos. Users live in memory,
// tokens are HS256 JWTs, and test hooks can revoke tokens, slow down or
// count refresh exchanges.
package devserver

import (
	_ "embed"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-openapi/runtime/middleware"
	"golang.org/x/crypto/bcrypt"

	"github.com/jmcleod/tokenkeeper/internal/util"
)

const (
	DefaultAccessTTL  = 15 * time.Minute
	DefaultRefreshTTL = 30 * 24 * time.Hour
)

//go:embed openapi.yaml
var openapiSpec []byte

// Server holds users, signing key and test hooks.
type Server struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	rotate     bool
	bcryptCost int
	now        func() time.Time

	users       *userStore
	rateLimiter *loginRateLimiter
	audit       *auditLogger

	accessGen    atomic.Int64
	refreshGen   atomic.Int64
	refreshCount atomic.Int64
	refreshDelay atomic.Int64
}

// Option configures the Server.
type Option func(*Server)

// WithLogger sets the structured logger for audit events.
// If not set, a default JSON logger writing to stderr is used.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.audit = newAuditLogger(logger)
	}
}

// WithSecret sets the HS256 signing key. A random key is used otherwise,
// so tokens do not survive a restart.
func WithSecret(secret []byte) Option {
	return func(s *Server) {
		s.secret = util.CopyBytes(secret)
	}
}

// WithAccessTTL sets the access token lifetime.
func WithAccessTTL(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.accessTTL = d
		}
	}
}

// WithRefreshTTL sets the refresh token lifetime.
func WithRefreshTTL(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.refreshTTL = d
		}
	}
}

// WithRefreshRotation makes refresh answers carry a new refresh token.
func WithRefreshRotation(on bool) Option {
	return func(s *Server) {
		s.rotate = on
	}
}

// WithBcryptCost overrides bcrypt.DefaultCost. Tests use bcrypt.MinCost.
func WithBcryptCost(cost int) Option {
	return func(s *Server) {
		s.bcryptCost = cost
	}
}

// New creates a Server with no users.
func New(opts ...Option) (*Server, error) {
	s := &Server{
		accessTTL:   DefaultAccessTTL,
		refreshTTL:  DefaultRefreshTTL,
		bcryptCost:  bcrypt.DefaultCost,
		now:         time.Now,
		users:       newUserStore(),
		rateLimiter: newLoginRateLimiter(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if len(s.secret) == 0 {
		secret, err := util.RandomBytes(32)
		if err != nil {
			return nil, err
		}
		s.secret = secret
	}
	if len(s.secret) < 16 {
		return nil, errors.New("signing secret must be at least 16 bytes")
	}
	if s.audit == nil {
		s.audit = newAuditLogger(slog.New(slog.NewJSONHandler(os.Stderr, nil)))
	}
	return s, nil
}

// Router returns a chi.Router with all routes mounted.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(SecurityHeaders)

	r.Get("/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/yaml")
		w.Write(openapiSpec)
	})
	r.Handle("/docs*", middleware.SwaggerUI(middleware.SwaggerUIOpts{
		SpecURL: "/openapi.yaml",
		Path:    "docs",
	}, nil))

	r.Get("/", s.Index)

	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", s.Register)
		r.Post("/login", s.Login)
		r.With(s.requireToken(refreshTokenType)).Post("/refresh", s.Refresh)
		r.With(s.requireToken(accessTokenType)).Get("/me", s.Me)
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/public", s.Public)
		r.With(s.requireToken(accessTokenType)).Get("/profile", s.Profile)
		r.With(s.requireToken(accessTokenType)).Get("/admin", s.Admin)
	})

	return r
}

// AddUser creates an account directly, bypassing rate limits and audit.
func (s *Server) AddUser(username, email, password, role string) (int64, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return 0, err
	}
	u, err := s.users.create(username, email, hash, role)
	if err != nil {
		return 0, err
	}
	return u.ID, nil
}

// RevokeAccessTokens invalidates every access token issued so far.
// Refresh tokens stay valid.
func (s *Server) RevokeAccessTokens() {
	s.accessGen.Add(1)
}

// RevokeRefreshTokens invalidates every refresh token issued so far.
func (s *Server) RevokeRefreshTokens() {
	s.refreshGen.Add(1)
}

// RefreshCount returns how many refresh exchanges succeeded.
func (s *Server) RefreshCount() int64 {
	return s.refreshCount.Load()
}

// SetRefreshDelay holds every refresh exchange for d before answering.
func (s *Server) SetRefreshDelay(d time.Duration) {
	s.refreshDelay.Store(int64(d))
}
