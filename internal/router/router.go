// Package router wires the HTTP routes to their handlers and middleware.
package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/tenant-auth/internal/handler"
	"github.com/iliyamo/tenant-auth/internal/middleware"
	"github.com/iliyamo/tenant-auth/internal/repository"
	"github.com/iliyamo/tenant-auth/internal/token"
)

// RegisterRoutes registers routes that require no authentication.
func RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", handler.Health)
}

// RegisterAuth registers the credential flows. Unauthenticated
// operations live under /v1/auth; everything behind a bearer credential
// lives under /v1 with the Auth middleware applied.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, pw *handler.PasswordHandler,
	mfa *handler.MFAHandler, keys *handler.APIKeyHandler,
	issuer *token.Issuer, keyRepo *repository.APIKeyRepo) {

	g := e.Group("/v1/auth")
	g.POST("/register", a.Register)
	g.POST("/login", a.Login)
	// Second step of an MFA login; authenticated by the challenge token
	// in the body, not by a bearer header.
	g.POST("/login/mfa", mfa.LoginVerify)
	g.POST("/refresh", a.Refresh)
	g.POST("/forgot-password", pw.Forgot)
	g.POST("/reset-password", pw.Reset)

	auth := e.Group("/v1")
	auth.Use(middleware.Auth(issuer, keyRepo))

	auth.POST("/auth/logout", a.Logout)
	auth.GET("/me", a.Me)
	auth.DELETE("/me", a.DeleteAccount)

	auth.POST("/mfa/setup", mfa.Setup)
	auth.POST("/mfa/verify", mfa.Verify)
	auth.POST("/mfa/disable", mfa.Disable)

	auth.POST("/api-keys", keys.Create)
	auth.GET("/api-keys", keys.List)
	auth.DELETE("/api-keys/:id", keys.Revoke)
}
