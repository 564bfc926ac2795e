package devserver

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
)

type contextKey int

const userIDKey contextKey = iota

// requireToken rejects requests without a valid bearer token of the given
// type and stores the token's user ID on the request context.
func (s *Server) requireToken(typ string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := bearerToken(r)
			if !ok {
				writeError(w, http.StatusUnauthorized, tokenMessages[errTokenMissing])
				return
			}
			_, userID, err := s.verify(raw, typ)
			if err != nil {
				if typ == refreshTokenType {
					s.audit.logFailure(AuditRefreshFailure, r, err.Error())
				}
				writeError(w, http.StatusUnauthorized, tokenMessages[err])
				return
			}
			ctx := context.WithValue(r.Context(), userIDKey, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// currentUser loads the user bound by requireToken. It writes a 404 when
// the account no longer exists.
func (s *Server) currentUser(w http.ResponseWriter, r *http.Request) (*user, bool) {
	id, _ := r.Context().Value(userIDKey).(int64)
	u, ok := s.users.get(id)
	if !ok {
		s.audit.log(AuditUserMissing, r, slog.Int64("user_id", id))
		writeError(w, http.StatusNotFound, "User not found")
		return nil, false
	}
	return u, true
}
