package devserver

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/jmcleod/tokenkeeper/authapi"
)

const maxRequestBody = 64 << 10

// ProfileResponse is the body of GET /api/profile.
type ProfileResponse struct {
	Message string  `json:"message"`
	Profile Profile `json:"profile"`
}

type Profile struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Role     string `json:"role"`
}

// DataResponse is the body of GET /api/public and GET /api/admin.
type DataResponse struct {
	Message string `json:"message"`
	Data    string `json:"data"`
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

func (s *Server) Index(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "JWT Auth System"})
}

// Register handles POST /auth/register.
func (s *Server) Register(w http.ResponseWriter, r *http.Request) {
	var req authapi.RegisterRequest
	if !decodeBody(w, r, &req) {
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.TrimSpace(req.Email)
	if req.Username == "" || req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "Username, email and password are required")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.bcryptCost)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Password cannot be used")
		return
	}
	u, err := s.users.create(req.Username, req.Email, hash, "user")
	switch {
	case errors.Is(err, errUsernameTaken):
		s.audit.logFailure(AuditRegisterFailure, r, err.Error())
		writeError(w, http.StatusBadRequest, "Username already exists")
		return
	case errors.Is(err, errEmailTaken):
		s.audit.logFailure(AuditRegisterFailure, r, err.Error())
		writeError(w, http.StatusBadRequest, "Email already exists")
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, "Registration failed")
		return
	}

	access, refresh, err := s.issuePair(u.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Token issuance failed")
		return
	}
	s.audit.logUser(AuditRegister, r, u)
	writeJSON(w, http.StatusCreated, authapi.TokenResponse{
		Message:      "User created successfully",
		AccessToken:  access,
		RefreshToken: refresh,
		User:         u.public(),
	})
}

// Login handles POST /auth/login.
func (s *Server) Login(w http.ResponseWriter, r *http.Request) {
	var req authapi.LoginRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "Username and password are required")
		return
	}

	if blocked, retryAfter := s.rateLimiter.check(req.Username); blocked {
		s.audit.logFailure(AuditLoginRateLimited, r, "locked out", slog.String("username", req.Username))
		writeRateLimited(w, retryAfter)
		return
	}

	u, ok := s.users.byName(req.Username)
	if !ok || bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(req.Password)) != nil {
		s.rateLimiter.recordFailure(req.Username)
		s.audit.logFailure(AuditLoginFailure, r, "invalid credentials", slog.String("username", req.Username))
		writeError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}
	s.rateLimiter.recordSuccess(req.Username)

	access, refresh, err := s.issuePair(u.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Token issuance failed")
		return
	}
	s.audit.logUser(AuditLoginSuccess, r, u)
	writeJSON(w, http.StatusOK, authapi.TokenResponse{
		Message:      "Login successful",
		AccessToken:  access,
		RefreshToken: refresh,
		User:         u.public(),
	})
}

// Refresh handles POST /auth/refresh. The refresh token arrives as bearer.
func (s *Server) Refresh(w http.ResponseWriter, r *http.Request) {
	if d := time.Duration(s.refreshDelay.Load()); d > 0 {
		select {
		case <-time.After(d):
		case <-r.Context().Done():
			return
		}
	}
	u, ok := s.currentUser(w, r)
	if !ok {
		return
	}

	resp := authapi.TokenResponse{}
	var err error
	if resp.AccessToken, err = s.issue(u.ID, accessTokenType); err != nil {
		writeError(w, http.StatusInternalServerError, "Token issuance failed")
		return
	}
	if s.rotate {
		if resp.RefreshToken, err = s.issue(u.ID, refreshTokenType); err != nil {
			writeError(w, http.StatusInternalServerError, "Token issuance failed")
			return
		}
	}
	s.refreshCount.Add(1)
	s.audit.logUser(AuditRefresh, r, u, slog.Bool("rotated", s.rotate))
	writeJSON(w, http.StatusOK, resp)
}

// Me handles GET /auth/me.
func (s *Server) Me(w http.ResponseWriter, r *http.Request) {
	u, ok := s.currentUser(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, authapi.MeResponse{User: *u.public()})
}

// Public handles GET /api/public.
func (s *Server) Public(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, DataResponse{
		Message: "This is a public endpoint",
		Data:    "Anyone can access this",
	})
}

// Profile handles GET /api/profile.
func (s *Server) Profile(w http.ResponseWriter, r *http.Request) {
	u, ok := s.currentUser(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, ProfileResponse{
		Message: "Profile data retrieved successfully",
		Profile: Profile{Username: u.Username, Email: u.Email, Role: u.Role},
	})
}

// Admin handles GET /api/admin. Only the admin role is let through.
func (s *Server) Admin(w http.ResponseWriter, r *http.Request) {
	u, ok := s.currentUser(w, r)
	if !ok {
		return
	}
	if u.Role != "admin" {
		s.audit.logUser(AuditAdminDenied, r, u)
		writeError(w, http.StatusForbidden, "Access denied. Admins only.")
		return
	}
	writeJSON(w, http.StatusOK, DataResponse{
		Message: "Admin data retrieved successfully",
		Data:    "Secret admin data",
	})
}
