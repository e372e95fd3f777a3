package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/tenant-auth/internal/model"
	"github.com/iliyamo/tenant-auth/internal/repository"
	"github.com/iliyamo/tenant-auth/internal/token"
)

type fakeKeyLookup struct {
	rows    map[string]*model.APIKey // by key hash
	touched []string
}

func (f *fakeKeyLookup) GetActiveByHash(_ context.Context, hash string) (*model.APIKey, error) {
	if k, ok := f.rows[hash]; ok {
		cp := *k
		return &cp, nil
	}
	return nil, repository.ErrNotFound
}

func (f *fakeKeyLookup) TouchLastUsed(_ context.Context, id string) error {
	f.touched = append(f.touched, id)
	return nil
}

func newIssuer() *token.Issuer {
	return token.NewIssuer(token.IssuerConfig{Secret: "mw-secret", Issuer: "tenant-auth"})
}

// runAuth sends one request with the given Authorization header through
// Auth into a probe handler that records the context it saw.
func runAuth(t *testing.T, issuer *token.Issuer, keys APIKeyLookup, authorization string) (*httptest.ResponseRecorder, echo.Context) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/v1/me", nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	h := Auth(issuer, keys)(func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})
	if err := h(c); err != nil {
		e.HTTPErrorHandler(err, c)
	}
	return rec, c
}

func TestAuthRejectsMissingOrMalformedHeader(t *testing.T) {
	iss := newIssuer()
	for _, header := range []string{"", "Basic abc", "Bearer"} {
		rec, _ := runAuth(t, iss, &fakeKeyLookup{}, header)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("header %q: status = %d", header, rec.Code)
		}
	}
}

func TestAuthSessionTokenSetsIdentity(t *testing.T) {
	iss := newIssuer()
	access, _, err := iss.NewAccessToken("prof-1", "alice@acme.test", "acme", "ADMIN")
	if err != nil {
		t.Fatal(err)
	}
	rec, c := runAuth(t, iss, &fakeKeyLookup{}, "Bearer "+access)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if got, _ := c.Get(CtxProfileID).(string); got != "prof-1" {
		t.Errorf("profile id = %q", got)
	}
	if got, _ := c.Get(CtxTenantID).(string); got != "acme" {
		t.Errorf("tenant id = %q", got)
	}
	if got, _ := c.Get(CtxRole).(string); got != "ADMIN" {
		t.Errorf("role = %q", got)
	}
	if got, _ := c.Get(CtxAuthKind).(string); got != AuthKindSession {
		t.Errorf("auth kind = %q", got)
	}
	if got, _ := c.Get(CtxAccessToken).(string); got != access {
		t.Error("raw access token not stored for logout")
	}
}

func TestAuthRejectsForgedToken(t *testing.T) {
	other := token.NewIssuer(token.IssuerConfig{Secret: "other-secret", Issuer: "tenant-auth"})
	access, _, err := other.NewAccessToken("prof-1", "a@b.test", "acme", "MEMBER")
	if err != nil {
		t.Fatal(err)
	}
	rec, _ := runAuth(t, newIssuer(), &fakeKeyLookup{}, "Bearer "+access)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestAuthAPIKeyHappyPath(t *testing.T) {
	iss := newIssuer()
	key, _, err := iss.NewAPIKey("prof-1", "acme", []string{"read"}, "profile", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	keys := &fakeKeyLookup{rows: map[string]*model.APIKey{
		token.HashRaw(key): {ID: "key-1", ProfileID: "prof-1", TenantID: "acme", Scopes: []string{"read"}, Active: true},
	}}

	rec, c := runAuth(t, iss, keys, "Bearer "+key)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if got, _ := c.Get(CtxAuthKind).(string); got != AuthKindAPIKey {
		t.Errorf("auth kind = %q", got)
	}
	if scopes, _ := c.Get(CtxScopes).([]string); len(scopes) != 1 || scopes[0] != "read" {
		t.Errorf("scopes = %v", c.Get(CtxScopes))
	}
	if len(keys.touched) != 1 || keys.touched[0] != "key-1" {
		t.Errorf("last_used not stamped: %v", keys.touched)
	}
}

func TestAuthAPIKeyFailuresAreUniform(t *testing.T) {
	iss := newIssuer()
	key, _, err := iss.NewAPIKey("prof-1", "acme", []string{"read"}, "profile", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	past := time.Now().UTC().Add(-time.Minute)

	cases := []struct {
		name string
		keys APIKeyLookup
		cred string
	}{
		{"revoked (no row)", &fakeKeyLookup{}, key},
		{"row expired", &fakeKeyLookup{rows: map[string]*model.APIKey{
			token.HashRaw(key): {ID: "key-1", ExpiresAt: &past, Active: true},
		}}, key},
		{"garbage after prefix", &fakeKeyLookup{}, token.APIKeyPrefix + "garbage"},
	}
	var bodies []string
	for _, tc := range cases {
		rec, _ := runAuth(t, iss, tc.keys, "Bearer "+tc.cred)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("%s: status = %d", tc.name, rec.Code)
		}
		bodies = append(bodies, rec.Body.String())
	}
	for i := 1; i < len(bodies); i++ {
		if bodies[i] != bodies[0] {
			t.Errorf("failure bodies differ: %q vs %q", bodies[0], bodies[i])
		}
	}
}

func TestRequireRole(t *testing.T) {
	e := echo.New()
	h := RequireRole("ADMIN", "OWNER")(func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})

	run := func(role string, set bool) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		if set {
			c.Set(CtxRole, role)
		}
		if err := h(c); err != nil {
			e.HTTPErrorHandler(err, c)
		}
		return rec.Code
	}

	if code := run("ADMIN", true); code != http.StatusOK {
		t.Errorf("ADMIN: status = %d", code)
	}
	if code := run("MEMBER", true); code != http.StatusForbidden {
		t.Errorf("MEMBER: status = %d", code)
	}
	// API key callers carry no role at all.
	if code := run("", false); code != http.StatusForbidden {
		t.Errorf("no role: status = %d", code)
	}
}

func TestRequireScope(t *testing.T) {
	e := echo.New()
	h := RequireScope("write")(func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})

	run := func(kind string, scopes []string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		c.Set(CtxAuthKind, kind)
		if scopes != nil {
			c.Set(CtxScopes, scopes)
		}
		if err := h(c); err != nil {
			e.HTTPErrorHandler(err, c)
		}
		return rec.Code
	}

	if code := run(AuthKindSession, nil); code != http.StatusOK {
		t.Errorf("session caller: status = %d", code)
	}
	if code := run(AuthKindAPIKey, []string{"write"}); code != http.StatusOK {
		t.Errorf("exact scope: status = %d", code)
	}
	if code := run(AuthKindAPIKey, []string{"*"}); code != http.StatusOK {
		t.Errorf("wildcard scope: status = %d", code)
	}
	if code := run(AuthKindAPIKey, []string{"read"}); code != http.StatusForbidden {
		t.Errorf("missing scope: status = %d", code)
	}
}
