// Package middleware provides the request guards shared by the auth
// routes: bearer authentication (JWT or API key), role and scope checks,
// and the Redis token-bucket rate limiter.
package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/tenant-auth/internal/model"
	"github.com/iliyamo/tenant-auth/internal/token"
)

// APIKeyLookup is the slice of key persistence the auth middleware
// needs; *repository.APIKeyRepo satisfies it.
type APIKeyLookup interface {
	GetActiveByHash(ctx context.Context, hash string) (*model.APIKey, error)
	TouchLastUsed(ctx context.Context, id string) error
}

// Context keys set by Auth for downstream handlers.
const (
	CtxProfileID   = "profile_id"
	CtxTenantID    = "tenant_id"
	CtxEmail       = "email"
	CtxRole        = "role"
	CtxScopes      = "scopes"
	CtxAccessToken = "access_token"
	CtxAuthKind    = "auth_kind"
)

// Auth kinds stored under CtxAuthKind.
const (
	AuthKindSession = "session"
	AuthKindAPIKey  = "api_key"
)

// Auth returns a middleware that authenticates a Bearer credential. The
// "duk_" prefix routes the value to the API key verifier before any
// signature work; everything else is verified as an access token. On
// success the caller's identity is injected into the echo context.
func Auth(issuer *token.Issuer, keys APIKeyLookup) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			auth := c.Request().Header.Get("Authorization")
			if !strings.HasPrefix(auth, "Bearer ") {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing bearer token"})
			}
			raw := strings.TrimPrefix(auth, "Bearer ")

			if strings.HasPrefix(raw, token.APIKeyPrefix) {
				return authAPIKey(c, next, issuer, keys, raw)
			}

			claims, err := issuer.VerifyAccessToken(raw)
			if err != nil {
				if err == token.ErrTokenExpired {
					return c.JSON(http.StatusUnauthorized, echo.Map{"error": "token expired"})
				}
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
			}
			c.Set(CtxProfileID, claims.Subject)
			c.Set(CtxTenantID, claims.TenantID)
			c.Set(CtxEmail, claims.Email)
			c.Set(CtxRole, claims.Role)
			c.Set(CtxAccessToken, raw)
			c.Set(CtxAuthKind, AuthKindSession)
			return next(c)
		}
	}
}

// authAPIKey verifies a prefixed API key: signature first, then the
// store row, so a revoked key fails even though its signature is valid.
// Every failure mode returns the same body.
func authAPIKey(c echo.Context, next echo.HandlerFunc, issuer *token.Issuer, keys APIKeyLookup, raw string) error {
	claims, err := issuer.VerifyAPIKey(raw)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid api key"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	rec, err := keys.GetActiveByHash(ctx, token.HashRaw(raw))
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid api key"})
	}
	if rec.ExpiresAt != nil && time.Now().UTC().After(*rec.ExpiresAt) {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid api key"})
	}
	// Best effort; a failed stamp must not fail the request.
	_ = keys.TouchLastUsed(ctx, rec.ID)

	c.Set(CtxProfileID, claims.Subject)
	c.Set(CtxTenantID, claims.TenantID)
	c.Set(CtxScopes, rec.Scopes)
	c.Set(CtxAuthKind, AuthKindAPIKey)
	return next(c)
}

// RequireRole returns a middleware that enforces that the authenticated
// caller has one of the given roles. Assumes Auth ran earlier in the
// chain; API key callers carry no role and are rejected.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	allowed := make(map[string]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			role, ok := c.Get(CtxRole).(string)
			if !ok || !allowed[role] {
				return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
			}
			return next(c)
		}
	}
}

// RequireScope returns a middleware that enforces an API key scope.
// Session callers (full interactive logins) pass unconditionally.
func RequireScope(scope string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if kind, _ := c.Get(CtxAuthKind).(string); kind != AuthKindAPIKey {
				return next(c)
			}
			scopes, _ := c.Get(CtxScopes).([]string)
			key := model.APIKey{Scopes: scopes}
			if !key.HasScope(scope) {
				return c.JSON(http.StatusForbidden, echo.Map{"error": "insufficient scope"})
			}
			return next(c)
		}
	}
}
