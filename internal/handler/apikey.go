package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/tenant-auth/internal/config"
	"github.com/iliyamo/tenant-auth/internal/middleware"
	"github.com/iliyamo/tenant-auth/internal/model"
	"github.com/iliyamo/tenant-auth/internal/repository"
	"github.com/iliyamo/tenant-auth/internal/token"
)

// APIKeyHandler implements API key issuance, listing and revocation.
// Everything is scoped to the authenticated caller: listing returns only
// the caller's keys and revocation refuses keys owned by anyone else.
type APIKeyHandler struct {
	Cfg    config.Config
	Issuer *token.Issuer
	Keys   APIKeyStore
}

func NewAPIKeyHandler(cfg config.Config, iss *token.Issuer, k APIKeyStore) *APIKeyHandler {
	return &APIKeyHandler{Cfg: cfg, Issuer: iss, Keys: k}
}

type createKeyReq struct {
	Name      string   `json:"name"`
	Scopes    []string `json:"scopes"`
	ExpiresIn string   `json:"expiresIn"` // Go duration; empty applies the default, "never" disables expiry
}

type apiKeyPart struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Scopes     []string   `json:"scopes"`
	Active     bool       `json:"active"`
	ExpiresAt  *time.Time `json:"expiresAt,omitempty"`
	LastUsedAt *time.Time `json:"lastUsedAt,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
}

func toAPIKeyPart(k *model.APIKey) apiKeyPart {
	return apiKeyPart{
		ID:         k.ID,
		Name:       k.Name,
		Scopes:     k.Scopes,
		Active:     k.Active,
		ExpiresAt:  k.ExpiresAt,
		LastUsedAt: k.LastUsedAt,
		CreatedAt:  k.CreatedAt,
	}
}

// Create issues a signed key for the caller. The plaintext key appears
// in this response and nowhere else, ever.
func (h *APIKeyHandler) Create(c echo.Context) error {
	profileID, _ := c.Get(middleware.CtxProfileID).(string)
	tenantID, _ := c.Get(middleware.CtxTenantID).(string)

	var req createKeyReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "name required"})
	}
	if len(req.Scopes) == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "at least one scope required"})
	}
	for _, s := range req.Scopes {
		if strings.TrimSpace(s) == "" {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "empty scope"})
		}
	}

	var ttl time.Duration // 0 -> issuer default
	switch {
	case req.ExpiresIn == "":
	case strings.EqualFold(req.ExpiresIn, "never"):
		ttl = -1
	default:
		d, err := time.ParseDuration(req.ExpiresIn)
		if err != nil || d <= 0 {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid expiresIn"})
		}
		ttl = d
	}

	key, expAt, err := h.Issuer.NewAPIKey(profileID, tenantID, req.Scopes, "profile", ttl)
	if err != nil {
		return internalError(c, "sign api key", err)
	}

	ctx, cancel := reqContext(c)
	defer cancel()

	rec := &model.APIKey{
		TenantID:  tenantID,
		ProfileID: profileID,
		Name:      req.Name,
		KeyHash:   token.HashRaw(key),
		Scopes:    req.Scopes,
		ExpiresAt: expAt,
	}
	id, err := h.Keys.Create(ctx, rec)
	if err != nil {
		return internalError(c, "store api key", err)
	}
	rec.ID = id
	rec.Active = true
	rec.CreatedAt = time.Now().UTC()

	resp := struct {
		apiKeyPart
		Key string `json:"key"`
	}{toAPIKeyPart(rec), key}
	return c.JSON(http.StatusCreated, resp)
}

// List returns the caller's keys. Key values are not recoverable.
func (h *APIKeyHandler) List(c echo.Context) error {
	profileID, _ := c.Get(middleware.CtxProfileID).(string)

	ctx, cancel := reqContext(c)
	defer cancel()

	keys, err := h.Keys.ListByProfile(ctx, profileID)
	if err != nil {
		return internalError(c, "list api keys", err)
	}
	out := make([]apiKeyPart, 0, len(keys))
	for _, k := range keys {
		out = append(out, toAPIKeyPart(k))
	}
	return c.JSON(http.StatusOK, echo.Map{"keys": out})
}

// Revoke deactivates one of the caller's keys. A key the caller does
// not own reports 404, not 403, so the endpoint confirms nothing about
// other owners' key ids.
func (h *APIKeyHandler) Revoke(c echo.Context) error {
	profileID, _ := c.Get(middleware.CtxProfileID).(string)
	keyID := c.Param("id")

	ctx, cancel := reqContext(c)
	defer cancel()

	if err := h.Keys.Revoke(ctx, keyID, profileID); err != nil {
		if err == repository.ErrNotFound {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "key not found"})
		}
		return internalError(c, "revoke api key", err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "key revoked"})
}
