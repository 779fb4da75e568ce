/*
auth.go - Request authentication

MODES:
  Bearer:  Authorization: Bearer <HS256 JWT>. The "sub" claim is the acting
           user id recorded in CreatedBy audit fields.
  API key: X-API-Key: <static key>. Accepted only on the statement print and
           email routes, so the scheduler and the email pipeline can call
           back without a user session.

When auth is disabled (local development) every request acts as
AnonymousActor.
*/
package api

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// APIKeyHeader carries the static service key.
const APIKeyHeader = "X-API-Key"

const (
	// AnonymousActor is recorded when auth is disabled.
	AnonymousActor = "anonymous"

	// ServiceActor is recorded for requests authenticated by API key.
	ServiceActor = "service"
)

// AuthConfig configures the authentication middleware.
type AuthConfig struct {
	Enabled   bool
	JWTSecret string
	JWTIssuer string
	APIKey    string
}

type actorKey struct{}

// WithActor stores the acting user id on the context.
func WithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFrom returns the acting user id, or AnonymousActor.
func ActorFrom(ctx context.Context) string {
	if a, ok := ctx.Value(actorKey{}).(string); ok && a != "" {
		return a
	}
	return AnonymousActor
}

// =============================================================================
// TOKENS
// =============================================================================

// IssueToken signs a bearer token for userID.
func IssueToken(secret, issuer, userID string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		Issuer:    issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// parseToken validates a bearer token and returns its subject.
func parseToken(cfg AuthConfig, tokenStr string) (string, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if cfg.JWTIssuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.JWTIssuer))
	}

	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (any, error) {
		return []byte(cfg.JWTSecret), nil
	}, opts...)
	if err != nil {
		return "", err
	}
	if !token.Valid || claims.Subject == "" {
		return "", errors.New("token has no subject")
	}
	return claims.Subject, nil
}

func bearerToken(r *http.Request) string {
	parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return strings.TrimSpace(parts[1])
	}
	return ""
}

// =============================================================================
// MIDDLEWARE
// =============================================================================

// RequireAuth accepts bearer tokens only.
func RequireAuth(cfg AuthConfig) func(http.Handler) http.Handler {
	return authenticate(cfg, false)
}

// RequireAuthOrAPIKey accepts bearer tokens or the static API key.
func RequireAuthOrAPIKey(cfg AuthConfig) func(http.Handler) http.Handler {
	return authenticate(cfg, true)
}

func authenticate(cfg AuthConfig, allowAPIKey bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !cfg.Enabled {
				next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), AnonymousActor)))
				return
			}

			if allowAPIKey && cfg.APIKey != "" {
				if key := r.Header.Get(APIKeyHeader); key != "" {
					if subtle.ConstantTimeCompare([]byte(key), []byte(cfg.APIKey)) != 1 {
						writeError(w, http.StatusUnauthorized, "Invalid API key", nil)
						return
					}
					next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), ServiceActor)))
					return
				}
			}

			tokenStr := bearerToken(r)
			if tokenStr == "" {
				writeError(w, http.StatusUnauthorized, "Missing bearer token", nil)
				return
			}
			actor, err := parseToken(cfg, tokenStr)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "Invalid or expired token", err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), actor)))
		})
	}
}
