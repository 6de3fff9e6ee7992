package access

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/gorilla/mux"
	"github.com/relabs-tech/netinventory/core/logger"
)

// TokenLifetime is how long a session token issued at login remains valid.
const TokenLifetime = 8 * time.Hour

// Claims is the payload of a session token. The identity fields use the
// JSON names the browser client expects.
type Claims struct {
	Username           string `json:"username"`
	Role               string `json:"role"`
	MustChangePassword bool   `json:"mustChangePassword"`
	jwt.RegisteredClaims
}

// NewToken creates a signed HS256 session token for the identity. The
// lifetime is normally TokenLifetime; tests pass shorter values.
func NewToken(identity *Identity, secret string, lifetime time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Username:           identity.Username,
		Role:               identity.Role,
		MustChangePassword: identity.MustChangePassword,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(lifetime)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// ParseToken verifies a session token and returns the encoded identity.
func ParseToken(tokenString, secret string) (*Identity, error) {
	claims := Claims{}
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	if !token.Valid || claims.Username == "" {
		return nil, errors.New("invalid token")
	}
	return &Identity{
		Username:           claims.Username,
		Role:               claims.Role,
		MustChangePassword: claims.MustChangePassword,
	}, nil
}

// NewTokenMiddleware returns a middleware handler to validate
// JWT bearer tokens.
//
// Tokens are accepted as "Authorization: Bearer" header. A missing token
// yields http.StatusUnauthorized, an invalid or expired token yields
// http.StatusForbidden. On success the encoded identity is stored in the
// request context for downstream handlers, and the request logger is
// tagged with the identity.
func NewTokenMiddleware(secret string) mux.MiddlewareFunc {
	return func(h http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if identity := IdentityFromContext(r.Context()); identity != nil { // already authenticated?
				h.ServeHTTP(w, r)
				return
			}

			tokenString := ""
			bearer := r.Header.Get("Authorization")
			if len(bearer) >= 8 && strings.ToLower(bearer[:7]) == "bearer " {
				tokenString = bearer[7:]
			}
			if len(tokenString) == 0 {
				http.Error(w, "bearer token missing", http.StatusUnauthorized)
				return
			}

			identity, err := ParseToken(tokenString, secret)
			if err != nil {
				http.Error(w, "invalid token", http.StatusForbidden)
				return
			}

			ctx := identity.ContextWithIdentity(r.Context())
			ctx, _ = logger.ContextWithLoggerIdentity(ctx, identity.Username)
			h.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// AdminOnly wraps a handler so that it can only be reached with the admin
// role. Composed after the token middleware on admin-only routes.
func AdminOnly(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity := IdentityFromContext(r.Context())
		if !identity.IsAdmin() {
			w.Header().Set("Content-Type", "application/json; charset=utf-8")
			w.WriteHeader(http.StatusForbidden)
			w.Write([]byte(`{"message":"Admin required."}`))
			return
		}
		h.ServeHTTP(w, r)
	}
}
