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
	"github.com/iliyamo/tenant-auth/internal/session"
	"github.com/iliyamo/tenant-auth/internal/token"
	"github.com/iliyamo/tenant-auth/internal/utils"
)

const backupCodeCount = 10
const backupCodeLength = 10

// MFAHandler implements TOTP setup, verification, disable, and the
// second step of an MFA login.
type MFAHandler struct {
	Cfg         config.Config
	Issuer      *token.Issuer
	Profiles    ProfileStore
	BackupCodes BackupCodeStore
	Sessions    SessionManager
	Guard       LoginGuard
}

func NewMFAHandler(cfg config.Config, iss *token.Issuer, p ProfileStore, b BackupCodeStore, s SessionManager, g LoginGuard) *MFAHandler {
	return &MFAHandler{Cfg: cfg, Issuer: iss, Profiles: p, BackupCodes: b, Sessions: s, Guard: g}
}

type mfaCodeReq struct {
	Code string `json:"code"`
}
type mfaLoginReq struct {
	MFAToken string `json:"mfaToken"`
	Code     string `json:"code"`
}

// Setup generates a fresh TOTP secret for the caller and returns it with
// the provisioning URI for the authenticator app. The secret is stored
// unconfirmed; MFA only becomes required after the first verified code.
func (h *MFAHandler) Setup(c echo.Context) error {
	profileID, _ := c.Get(middleware.CtxProfileID).(string)

	ctx, cancel := reqContext(c)
	defer cancel()

	profile, err := h.Profiles.GetByID(ctx, profileID)
	if err != nil {
		return internalError(c, "load profile", err)
	}
	if profile.MFAEnabled {
		return c.JSON(http.StatusConflict, echo.Map{"error": "mfa already enabled"})
	}

	secret, err := token.NewTOTPSecret()
	if err != nil {
		return internalError(c, "generate totp secret", err)
	}
	if err := h.Profiles.SaveMFASecret(ctx, profileID, secret); err != nil {
		return internalError(c, "store totp secret", err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"secret":          secret,
		"provisioningUri": token.TOTPProvisioningURI(secret, h.Cfg.JWTIssuer, profile.Email),
	})
}

// Verify checks a TOTP code against the pending secret and flips MFA on
// upon first success, returning the one-time batch of backup codes.
func (h *MFAHandler) Verify(c echo.Context) error {
	profileID, _ := c.Get(middleware.CtxProfileID).(string)
	var req mfaCodeReq
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.Code) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "code required"})
	}

	ctx, cancel := reqContext(c)
	defer cancel()

	profile, err := h.Profiles.GetByID(ctx, profileID)
	if err != nil {
		return internalError(c, "load profile", err)
	}
	if profile.MFASecret == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "mfa setup not started"})
	}
	if !token.VerifyTOTPCode(profile.MFASecret, req.Code, time.Now().UTC()) {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid code"})
	}
	if profile.MFAEnabled {
		return c.JSON(http.StatusOK, echo.Map{"enabled": true})
	}

	codes, hashes, err := h.newBackupCodes()
	if err != nil {
		return internalError(c, "generate backup codes", err)
	}
	if err := h.BackupCodes.ReplaceForProfile(ctx, profileID, hashes); err != nil {
		return internalError(c, "store backup codes", err)
	}
	if err := h.Profiles.SetMFAEnabled(ctx, profileID, true); err != nil {
		return internalError(c, "enable mfa", err)
	}
	publishSecurity(queue.SecurityMFAEnabled, profile)

	return c.JSON(http.StatusOK, echo.Map{
		"enabled":     true,
		"backupCodes": codes, // shown exactly once
	})
}

// Disable turns MFA off. A valid current TOTP code (or unused backup
// code) is required so a hijacked session cannot silently strip the
// second factor without it.
func (h *MFAHandler) Disable(c echo.Context) error {
	profileID, _ := c.Get(middleware.CtxProfileID).(string)
	var req mfaCodeReq
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.Code) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "code required"})
	}

	ctx, cancel := reqContext(c)
	defer cancel()

	profile, err := h.Profiles.GetByID(ctx, profileID)
	if err != nil {
		return internalError(c, "load profile", err)
	}
	if !profile.MFAEnabled {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "mfa not enabled"})
	}
	if !h.verifySecondFactor(ctx, profile, req.Code) {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid code"})
	}

	if err := h.Profiles.SetMFAEnabled(ctx, profileID, false); err != nil {
		return internalError(c, "disable mfa", err)
	}
	if err := h.BackupCodes.DeleteForProfile(ctx, profileID); err != nil {
		c.Logger().Errorf("delete backup codes: %v", err)
	}
	publishSecurity(queue.SecurityMFADisabled, profile)
	return c.JSON(http.StatusOK, echo.Map{"enabled": false})
}

// LoginVerify is the second step of an MFA login: the challenge token
// from the password step plus a TOTP or backup code buy a session.
func (h *MFAHandler) LoginVerify(c echo.Context) error {
	var req mfaLoginReq
	if err := c.Bind(&req); err != nil || req.MFAToken == "" || strings.TrimSpace(req.Code) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "mfaToken and code required"})
	}

	profileID, err := h.Issuer.VerifyMFAChallengeToken(req.MFAToken)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid or expired mfa token"})
	}

	ctx, cancel := reqContext(c)
	defer cancel()

	profile, err := h.Profiles.GetByID(ctx, profileID)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid or expired mfa token"})
	}
	if guard.Locked(profile, time.Now().UTC()) {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "account temporarily locked, try again later"})
	}

	if !h.verifySecondFactor(ctx, profile, req.Code) {
		h.recordMFAAttempt(ctx, c, profile, false)
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid code"})
	}

	if err := h.Guard.RecordSuccess(ctx, profile, c.RealIP()); err != nil {
		return internalError(c, "record login success", err)
	}
	h.recordMFAAttempt(ctx, c, profile, true)

	access, exp, err := h.Issuer.NewAccessToken(profile.ID, profile.Email, profile.TenantID, profile.Role)
	if err != nil {
		return internalError(c, "issue access token", err)
	}
	created, err := h.Sessions.Create(ctx, profile.ID, access, session.Meta{
		UserAgent: c.Request().UserAgent(),
		IPAddress: c.RealIP(),
	})
	if err != nil {
		return internalError(c, "start session", err)
	}

	return c.JSON(http.StatusOK, authResp{
		User: toUserPart(profile),
		Tokens: tokenPart{
			AccessToken:  access,
			RefreshToken: created.RefreshToken,
			SessionID:    created.Session.ID,
			ExpiresIn:    int64(time.Until(exp).Seconds()),
		},
	})
}

// verifySecondFactor accepts either the current TOTP code or an unused
// backup code, consuming the backup code on match.
func (h *MFAHandler) verifySecondFactor(ctx context.Context, p *model.Profile, code string) bool {
	if token.VerifyTOTPCode(p.MFASecret, code, time.Now().UTC()) {
		return true
	}
	codes, err := h.BackupCodes.ListUnused(ctx, p.ID)
	if err != nil {
		return false
	}
	for _, bc := range codes {
		if utils.VerifyPassword(bc.CodeHash, strings.TrimSpace(code)) {
			// Consume may lose a race with a concurrent login using the
			// same code; the loser is rejected.
			return h.BackupCodes.Consume(ctx, bc.ID) == nil
		}
	}
	return false
}

func (h *MFAHandler) newBackupCodes() ([]string, []string, error) {
	codes := make([]string, 0, backupCodeCount)
	hashes := make([]string, 0, backupCodeCount)
	for i := 0; i < backupCodeCount; i++ {
		code, err := utils.RandomString(backupCodeLength)
		if err != nil {
			return nil, nil, err
		}
		hash, err := utils.HashPassword(code, h.Cfg.BcryptCost)
		if err != nil {
			return nil, nil, err
		}
		codes = append(codes, code)
		hashes = append(hashes, hash)
	}
	return codes, hashes, nil
}

func (h *MFAHandler) recordMFAAttempt(ctx context.Context, c echo.Context, p *model.Profile, success bool) {
	reason := ""
	if !success {
		reason = model.AttemptReasonBadMFACode
	}
	a := &model.LoginAttempt{
		TenantID:  p.TenantID,
		Email:     p.Email,
		IPAddress: c.RealIP(),
		UserAgent: c.Request().UserAgent(),
		Success:   success,
		Reason:    reason,
	}
	if err := h.Guard.RecordAttempt(ctx, a); err != nil {
		c.Logger().Errorf("record login attempt: %v", err)
	}
}
