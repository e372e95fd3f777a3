package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/tenant-auth/internal/config"
	"github.com/iliyamo/tenant-auth/internal/queue"
	"github.com/iliyamo/tenant-auth/internal/repository"
	queue_publisher "github.com/iliyamo/tenant-auth/internal/service"
	"github.com/iliyamo/tenant-auth/internal/token"
	"github.com/iliyamo/tenant-auth/internal/utils"
)

// PasswordHandler implements the forgot/reset password flow.
type PasswordHandler struct {
	Cfg      config.Config
	Profiles ProfileStore
	Resets   ResetTokenStore
	Sessions SessionManager
}

func NewPasswordHandler(cfg config.Config, p ProfileStore, r ResetTokenStore, s SessionManager) *PasswordHandler {
	return &PasswordHandler{Cfg: cfg, Profiles: p, Resets: r, Sessions: s}
}

type forgotReq struct {
	Email    string `json:"email"`
	TenantID string `json:"tenantId"`
}
type resetReq struct {
	Token    string `json:"token"`
	Password string `json:"password"`
	TenantID string `json:"tenantId"`
}

// forgotBody is the one response Forgot ever returns with 200. Unknown
// emails get byte-identical output to known ones.
var forgotBody = echo.Map{"message": "if the email exists, a reset link has been sent"}

// Forgot issues a single-use reset token and hands it to the mailer
// queue. The response is independent of whether the email exists.
func (h *PasswordHandler) Forgot(c echo.Context) error {
	var req forgotReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.TenantID = strings.TrimSpace(req.TenantID)
	if req.Email == "" || req.TenantID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "email and tenantId required"})
	}

	ctx, cancel := reqContext(c)
	defer cancel()

	profile, err := h.Profiles.GetByEmail(ctx, req.TenantID, req.Email)
	if err != nil {
		if err == repository.ErrNotFound {
			return c.JSON(http.StatusOK, forgotBody)
		}
		// Even store failures return the generic body; the error is
		// only visible server-side.
		c.Logger().Errorf("forgot password lookup: %v", err)
		return c.JSON(http.StatusOK, forgotBody)
	}

	raw, err := utils.RandomHex(32)
	if err != nil {
		return internalError(c, "generate reset token", err)
	}
	exp := time.Now().UTC().Add(h.Cfg.ResetTTL)
	if _, err := h.Resets.Create(ctx, profile.ID, token.HashRaw(raw), exp); err != nil {
		return internalError(c, "store reset token", err)
	}

	if err := queue_publisher.PublishPasswordReset(ctx, queue.PasswordResetRequestedEvent{
		ProfileID:   profile.ID,
		TenantID:    profile.TenantID,
		Email:       profile.Email,
		ResetToken:  raw,
		ExpiresAt:   exp.Format(time.RFC3339),
		RequestedAt: time.Now().UTC().Format(time.RFC3339),
	}); err != nil {
		// The token row exists; the user can retry the email later.
		c.Logger().Errorf("publish reset event: %v", err)
	}
	return c.JSON(http.StatusOK, forgotBody)
}

// Reset consumes a reset token and installs the new password. Used and
// expired tokens get the same response as unknown ones. All other
// sessions of the profile are revoked once the password changes.
func (h *PasswordHandler) Reset(c echo.Context) error {
	var req resetReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.TenantID = strings.TrimSpace(req.TenantID)
	if req.Token == "" || req.Password == "" || req.TenantID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "token, password and tenantId required"})
	}

	ctx, cancel := reqContext(c)
	defer cancel()

	rec, err := h.Resets.GetByHash(ctx, token.HashRaw(req.Token))
	if err != nil {
		if err == repository.ErrNotFound {
			return invalidResetToken(c)
		}
		return internalError(c, "load reset token", err)
	}
	now := time.Now().UTC()
	if rec.UsedAt != nil || now.After(rec.ExpiresAt) {
		return invalidResetToken(c)
	}

	if strength := utils.ValidateStrength(req.Password); !strength.Valid {
		return c.JSON(http.StatusBadRequest, echo.Map{
			"error":   "validation failed",
			"details": strength.Errors,
		})
	}

	profile, err := h.Profiles.GetByID(ctx, rec.ProfileID)
	if err != nil {
		if err == repository.ErrNotFound {
			return invalidResetToken(c)
		}
		return internalError(c, "load profile", err)
	}
	if profile.TenantID != req.TenantID {
		return invalidResetToken(c)
	}

	// Consume before writing the password so a concurrent reset with the
	// same token loses here instead of double-applying.
	if err := h.Resets.Consume(ctx, rec.ID); err != nil {
		if err == repository.ErrConflict {
			return invalidResetToken(c)
		}
		return internalError(c, "consume reset token", err)
	}

	hash, err := utils.HashPassword(req.Password, h.Cfg.BcryptCost)
	if err != nil {
		return internalError(c, "hash password", err)
	}
	if err := h.Profiles.UpdatePassword(ctx, profile.ID, hash); err != nil {
		return internalError(c, "update password", err)
	}

	if _, err := h.Sessions.InvalidateAllForProfile(ctx, profile.ID, ""); err != nil {
		c.Logger().Errorf("revoke sessions after reset: %v", err)
	}
	publishSecurity(queue.SecurityPasswordChanged, profile)

	return c.JSON(http.StatusOK, echo.Map{"message": "password updated"})
}

func invalidResetToken(c echo.Context) error {
	return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid or expired token"})
}
