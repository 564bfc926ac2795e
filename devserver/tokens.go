package devserver

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/golang-jwt/jwt/v5"

	"github.com/jmcleod/tokenkeeper/internal/uuid"
)

const (
	accessTokenType  = "access"
	refreshTokenType = "refresh"
)

var (
	errTokenMissing   = errors.New("missing token")
	errTokenExpired   = errors.New("token has expired")
	errTokenInvalid   = errors.New("invalid token")
	errTokenRevoked   = errors.New("token has been revoked")
	errTokenWrongType = errors.New("wrong token type")
)

// tokenMessages are the client-facing texts for token errors.
var tokenMessages = map[error]string{
	errTokenMissing:   "Missing token",
	errTokenExpired:   "Token has expired",
	errTokenInvalid:   "Invalid token",
	errTokenRevoked:   "Token has been revoked",
	errTokenWrongType: "Wrong token type",
}

// tokenClaims is the JWT payload. Gen ties a token to the revocation
// generation current when it was issued.
type tokenClaims struct {
	jwt.RegisteredClaims
	Type string `json:"type"`
	Gen  int64  `json:"gen"`
}

func (s *Server) issue(userID int64, typ string) (string, error) {
	now := s.now()
	ttl, gen := s.accessTTL, s.accessGen.Load()
	if typ == refreshTokenType {
		ttl, gen = s.refreshTTL, s.refreshGen.Load()
	}
	claims := tokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New(),
			Subject:   strconv.FormatInt(userID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Type: typ,
		Gen:  gen,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("signing %s token: %w", typ, err)
	}
	return signed, nil
}

func (s *Server) issuePair(userID int64) (access, refresh string, err error) {
	if access, err = s.issue(userID, accessTokenType); err != nil {
		return "", "", err
	}
	if refresh, err = s.issue(userID, refreshTokenType); err != nil {
		return "", "", err
	}
	return access, refresh, nil
}

// verify parses raw and checks signature, expiry, type and generation.
// Errors are always one of the errToken values.
func (s *Server) verify(raw, typ string) (*tokenClaims, int64, error) {
	var claims tokenClaims
	_, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, 0, errTokenExpired
	case err != nil:
		return nil, 0, errTokenInvalid
	}
	if claims.Type != typ {
		return nil, 0, errTokenWrongType
	}
	gen := s.accessGen.Load()
	if typ == refreshTokenType {
		gen = s.refreshGen.Load()
	}
	if claims.Gen != gen {
		return nil, 0, errTokenRevoked
	}
	id, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return nil, 0, errTokenInvalid
	}
	return &claims, id, nil
}
