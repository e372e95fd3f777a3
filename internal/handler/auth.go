// Package handler contains the HTTP-facing orchestration of the auth
// flows. Handlers compose the token issuer, the session store, the
// lockout guard and the repositories; every store failure is mapped to
// the error taxonomy before it leaves the handler boundary, and
// credential failures always produce the same generic message so the
// response never reveals whether the email or the password was wrong.
package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/tenant-auth/internal/config"
	"github.com/iliyamo/tenant-auth/internal/guard"
	"github.com/iliyamo/tenant-auth/internal/middleware"
	"github.com/iliyamo/tenant-auth/internal/model"
	"github.com/iliyamo/tenant-auth/internal/queue"
	"github.com/iliyamo/tenant-auth/internal/repository"
	"github.com/iliyamo/tenant-auth/internal/session"
	"github.com/iliyamo/tenant-auth/internal/token"
	"github.com/iliyamo/tenant-auth/internal/utils"
)

// AuthHandler bundles dependencies for the register/login/refresh/logout
// endpoints.
type AuthHandler struct {
	Cfg      config.Config
	Issuer   *token.Issuer
	Profiles ProfileStore
	Sessions SessionManager
	Guard    LoginGuard
}

func NewAuthHandler(cfg config.Config, iss *token.Issuer, p ProfileStore, s SessionManager, g LoginGuard) *AuthHandler {
	return &AuthHandler{Cfg: cfg, Issuer: iss, Profiles: p, Sessions: s, Guard: g}
}

// ----- DTOs -----

type registerReq struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	TenantID  string `json:"tenantId"`
	Role      string `json:"role"`
}
type loginReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	TenantID string `json:"tenantId"`
}
type refreshReq struct {
	RefreshToken string `json:"refreshToken"`
}

type userPart struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	TenantID  string `json:"tenantId"`
	Role      string `json:"role"`
}
type tokenPart struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	SessionID    string `json:"sessionId"`
	ExpiresIn    int64  `json:"expiresIn"` // seconds until the access token expires
}
type authResp struct {
	User   userPart  `json:"user"`
	Tokens tokenPart `json:"tokens"`
}

func toUserPart(p *model.Profile) userPart {
	return userPart{
		ID:        p.ID,
		Email:     p.Email,
		FirstName: p.FirstName,
		LastName:  p.LastName,
		TenantID:  p.TenantID,
		Role:      p.Role,
	}
}

// reqContext bounds every DB touch in a handler to 5 seconds.
func reqContext(c echo.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request().Context(), 5*time.Second)
}

// Register creates a profile and returns an authenticated session
// immediately. Weak passwords report every violated rule at once;
// a duplicate email within the tenant is a 409.
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.TenantID = strings.TrimSpace(req.TenantID)
	if req.Email == "" || req.Password == "" || req.TenantID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "email, password and tenantId required"})
	}
	if strength := utils.ValidateStrength(req.Password); !strength.Valid {
		return c.JSON(http.StatusBadRequest, echo.Map{
			"error":   "validation failed",
			"details": strength.Errors,
		})
	}
	role := strings.ToUpper(strings.TrimSpace(req.Role))
	if role == "" {
		role = "MEMBER"
	}

	ctx, cancel := reqContext(c)
	defer cancel()

	hash, err := utils.HashPassword(req.Password, h.Cfg.BcryptCost)
	if err != nil {
		return internalError(c, "hash password", err)
	}
	profile := &model.Profile{
		TenantID:     req.TenantID,
		Email:        req.Email,
		PasswordHash: hash,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		Role:         role,
	}
	id, err := h.Profiles.Create(ctx, profile)
	if err != nil {
		if err == repository.ErrEmailExists {
			return c.JSON(http.StatusConflict, echo.Map{"error": "email already registered"})
		}
		return internalError(c, "create profile", err)
	}
	profile.ID = id
	profile.Status = model.ProfileStatusActive

	tokens, err := h.startSession(ctx, c, profile)
	if err != nil {
		return internalError(c, "start session", err)
	}
	return c.JSON(http.StatusCreated, authResp{User: toUserPart(profile), Tokens: tokens})
}

// Login verifies credentials. The response never distinguishes an
// unknown email from a wrong password or a suspended account; only the
// lock state gets its own message, after the account is already locked.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.TenantID = strings.TrimSpace(req.TenantID)
	if req.Email == "" || req.Password == "" || req.TenantID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "email, password and tenantId required"})
	}

	ctx, cancel := reqContext(c)
	defer cancel()

	ip := c.RealIP()
	if err := h.Guard.CheckIP(ctx, ip); err != nil {
		h.recordAttempt(ctx, c, req, false, model.AttemptReasonRateLimited)
		return c.JSON(http.StatusTooManyRequests, echo.Map{"error": "too many login attempts, try again later"})
	}

	profile, err := h.Profiles.GetByEmail(ctx, req.TenantID, req.Email)
	if err != nil {
		if err == repository.ErrNotFound {
			h.recordAttempt(ctx, c, req, false, model.AttemptReasonUnknownEmail)
			return invalidCredentials(c)
		}
		return internalError(c, "load profile", err)
	}

	now := time.Now().UTC()
	if guard.Locked(profile, now) {
		h.recordAttempt(ctx, c, req, false, model.AttemptReasonLocked)
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "account temporarily locked, try again later"})
	}
	if profile.Status == model.ProfileStatusSuspended || profile.Status == model.ProfileStatusInactive {
		h.recordAttempt(ctx, c, req, false, model.AttemptReasonSuspended)
		return invalidCredentials(c)
	}

	if !utils.VerifyPassword(profile.PasswordHash, req.Password) {
		locked, gerr := h.Guard.RecordFailure(ctx, profile)
		if gerr != nil {
			c.Logger().Errorf("record login failure: %v", gerr)
		}
		h.recordAttempt(ctx, c, req, false, model.AttemptReasonBadPassword)
		if locked {
			publishLock(profile, ip)
		}
		return invalidCredentials(c)
	}

	if profile.MFAEnabled {
		challenge, err := h.Issuer.NewMFAChallengeToken(profile.ID)
		if err != nil {
			return internalError(c, "issue mfa challenge", err)
		}
		h.recordAttempt(ctx, c, req, false, model.AttemptReasonMFARequired)
		return c.JSON(http.StatusOK, echo.Map{
			"requiresMfa": true,
			"mfaToken":    challenge,
			"userId":      profile.ID,
		})
	}

	if err := h.Guard.RecordSuccess(ctx, profile, ip); err != nil {
		return internalError(c, "record login success", err)
	}
	h.recordAttempt(ctx, c, req, true, "")

	tokens, err := h.startSession(ctx, c, profile)
	if err != nil {
		return internalError(c, "start session", err)
	}
	return c.JSON(http.StatusOK, authResp{User: toUserPart(profile), Tokens: tokens})
}

// Refresh exchanges a valid refresh token for a new access/refresh pair.
// Rotation is mandatory: the presented token stops working whether or
// not the exchange succeeds past the rotate.
func (h *AuthHandler) Refresh(c echo.Context) error {
	var req refreshReq
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.RefreshToken) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "refreshToken required"})
	}

	ctx, cancel := reqContext(c)
	defer cancel()

	sess, err := h.Sessions.ValidateRefresh(ctx, strings.TrimSpace(req.RefreshToken))
	if err != nil {
		if err == session.ErrSessionExpired {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "refresh token expired"})
		}
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid refresh token"})
	}

	profile, err := h.Profiles.GetByID(ctx, sess.ProfileID)
	if err != nil {
		if err == repository.ErrNotFound {
			// Profile was deleted; the session must die with it.
			_ = h.Sessions.Invalidate(ctx, sess.ID)
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid refresh token"})
		}
		return internalError(c, "load profile", err)
	}

	access, exp, err := h.Issuer.NewAccessToken(profile.ID, profile.Email, profile.TenantID, profile.Role)
	if err != nil {
		return internalError(c, "issue access token", err)
	}
	newRefresh, err := h.Sessions.Rotate(ctx, sess.ID, access)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid refresh token"})
	}

	return c.JSON(http.StatusOK, tokenPart{
		AccessToken:  access,
		RefreshToken: newRefresh,
		SessionID:    sess.ID,
		ExpiresIn:    int64(time.Until(exp).Seconds()),
	})
}

// Logout revokes the session bound to the presented access token.
// Runs behind the Auth middleware. Idempotent from the client's view:
// logging out an already-dead session still returns 200.
func (h *AuthHandler) Logout(c echo.Context) error {
	raw, _ := c.Get(middleware.CtxAccessToken).(string)
	if raw == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing bearer token"})
	}

	ctx, cancel := reqContext(c)
	defer cancel()

	if err := h.Sessions.InvalidateByAccessToken(ctx, raw); err != nil && err != session.ErrSessionInvalid {
		return internalError(c, "invalidate session", err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "logged out"})
}

// DeleteAccount soft-deletes the caller's profile and revokes every
// session it holds. The row survives for the retention window, stays
// invisible to lookups and no longer blocks the email for re-use.
func (h *AuthHandler) DeleteAccount(c echo.Context) error {
	profileID, _ := c.Get(middleware.CtxProfileID).(string)

	ctx, cancel := reqContext(c)
	defer cancel()

	profile, err := h.Profiles.GetByID(ctx, profileID)
	if err != nil {
		if err == repository.ErrNotFound {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "profile not found"})
		}
		return internalError(c, "load profile", err)
	}
	if err := h.Profiles.SoftDelete(ctx, profileID); err != nil {
		if err == repository.ErrNotFound {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "profile not found"})
		}
		return internalError(c, "delete profile", err)
	}
	if _, err := h.Sessions.InvalidateAllForProfile(ctx, profileID, ""); err != nil {
		c.Logger().Errorf("revoke sessions after delete: %v", err)
	}
	publishSecurity(queue.SecurityAccountDeleted, profile)
	return c.JSON(http.StatusOK, echo.Map{"message": "account deleted"})
}

// Me returns the authenticated caller's identity from the token claims.
func (h *AuthHandler) Me(c echo.Context) error {
	return c.JSON(http.StatusOK, echo.Map{
		"profileId": c.Get(middleware.CtxProfileID),
		"tenantId":  c.Get(middleware.CtxTenantID),
		"email":     c.Get(middleware.CtxEmail),
		"role":      c.Get(middleware.CtxRole),
	})
}

// startSession issues an access token and creates the session bound to
// it, returning the full token bundle.
func (h *AuthHandler) startSession(ctx context.Context, c echo.Context, p *model.Profile) (tokenPart, error) {
	access, exp, err := h.Issuer.NewAccessToken(p.ID, p.Email, p.TenantID, p.Role)
	if err != nil {
		return tokenPart{}, err
	}
	created, err := h.Sessions.Create(ctx, p.ID, access, session.Meta{
		UserAgent: c.Request().UserAgent(),
		IPAddress: c.RealIP(),
	})
	if err != nil {
		return tokenPart{}, err
	}
	return tokenPart{
		AccessToken:  access,
		RefreshToken: created.RefreshToken,
		SessionID:    created.Session.ID,
		ExpiresIn:    int64(time.Until(exp).Seconds()),
	}, nil
}

// recordAttempt appends to the login audit log; failures are logged and
// swallowed so auditing can never block authentication.
func (h *AuthHandler) recordAttempt(ctx context.Context, c echo.Context, req loginReq, success bool, reason string) {
	a := &model.LoginAttempt{
		TenantID:  req.TenantID,
		Email:     req.Email,
		IPAddress: c.RealIP(),
		UserAgent: c.Request().UserAgent(),
		Success:   success,
		Reason:    reason,
	}
	if err := h.Guard.RecordAttempt(ctx, a); err != nil {
		c.Logger().Errorf("record login attempt: %v", err)
	}
}
