package handler

import (
	"context"
	"fmt"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/tenant-auth/internal/config"
	"github.com/iliyamo/tenant-auth/internal/model"
	"github.com/iliyamo/tenant-auth/internal/repository"
	"github.com/iliyamo/tenant-auth/internal/session"
	"github.com/iliyamo/tenant-auth/internal/token"
)

// In-memory fakes for the handler dependency interfaces. fakeProfiles
// additionally satisfies guard.ProfileStore and fakeAttempts satisfies
// guard.AttemptStore, so tests can drive a real Guard against them.

type fakeProfiles struct {
	mu     sync.Mutex
	rows   map[string]*model.Profile
	nextID int
}

func newFakeProfiles(seed ...*model.Profile) *fakeProfiles {
	f := &fakeProfiles{rows: map[string]*model.Profile{}}
	for _, p := range seed {
		cp := *p
		f.rows[p.ID] = &cp
	}
	return f
}

func (f *fakeProfiles) Create(_ context.Context, p *model.Profile) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, row := range f.rows {
		if row.TenantID == p.TenantID && row.Email == p.Email && row.DeletedAt == nil {
			return "", repository.ErrEmailExists
		}
	}
	f.nextID++
	id := fmt.Sprintf("prof-%d", f.nextID)
	cp := *p
	cp.ID = id
	cp.Status = model.ProfileStatusActive
	f.rows[id] = &cp
	return id, nil
}

func (f *fakeProfiles) GetByEmail(_ context.Context, tenantID, email string) (*model.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, row := range f.rows {
		if row.TenantID == tenantID && row.Email == email && row.DeletedAt == nil {
			cp := *row
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeProfiles) GetByID(_ context.Context, id string) (*model.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[id]
	if !ok || row.DeletedAt != nil {
		return nil, repository.ErrNotFound
	}
	cp := *row
	return &cp, nil
}

func (f *fakeProfiles) UpdatePassword(_ context.Context, id, hash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[id]
	if !ok {
		return repository.ErrNotFound
	}
	row.PasswordHash = hash
	return nil
}

func (f *fakeProfiles) SaveMFASecret(_ context.Context, id, secret string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[id]
	if !ok {
		return repository.ErrNotFound
	}
	row.MFASecret = secret
	return nil
}

func (f *fakeProfiles) SetMFAEnabled(_ context.Context, id string, enabled bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[id]
	if !ok {
		return repository.ErrNotFound
	}
	row.MFAEnabled = enabled
	if !enabled {
		row.MFASecret = ""
	}
	return nil
}

func (f *fakeProfiles) SoftDelete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[id]
	if !ok || row.DeletedAt != nil {
		return repository.ErrNotFound
	}
	now := time.Now().UTC()
	row.DeletedAt = &now
	return nil
}

func (f *fakeProfiles) SaveLockoutState(_ context.Context, id string, attempts int, until *time.Time, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[id]
	if !ok {
		return repository.ErrNotFound
	}
	row.FailedAttempts = attempts
	row.LockUntil = until
	row.Status = status
	return nil
}

func (f *fakeProfiles) SaveLoginSuccess(_ context.Context, id, ip string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[id]
	if !ok {
		return repository.ErrNotFound
	}
	row.FailedAttempts = 0
	row.LockUntil = nil
	row.Status = model.ProfileStatusActive
	row.LastLoginIP = ip
	return nil
}

func (f *fakeProfiles) get(id string) *model.Profile {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *f.rows[id]
	return &cp
}

type fakeAttempts struct {
	mu   sync.Mutex
	rows []*model.LoginAttempt
}

func (f *fakeAttempts) Insert(_ context.Context, a *model.LoginAttempt) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows = append(f.rows, a)
	return nil
}

func (f *fakeAttempts) CountByIPSince(_ context.Context, _ string, _ time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.rows), nil
}

// fakeSessions keeps sessions in memory keyed by id, resolving refresh
// tokens by hash like the real store.
type fakeSessions struct {
	mu         sync.Mutex
	rows       map[string]*model.Session
	nextID     int
	revokedAll []string // profile ids passed to InvalidateAllForProfile
	expired    bool     // ValidateRefresh reports ErrSessionExpired
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{rows: map[string]*model.Session{}}
}

func (f *fakeSessions) Create(_ context.Context, profileID, accessToken string, meta session.Meta) (*session.Created, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	id := fmt.Sprintf("sess-%d", f.nextID)
	raw := fmt.Sprintf("refresh-raw-%d", f.nextID)
	s := &model.Session{
		ID:               id,
		ProfileID:        profileID,
		AccessTokenHash:  token.HashRaw(accessToken),
		RefreshTokenHash: token.HashRaw(raw),
		Status:           model.SessionStatusActive,
		ExpiresAt:        time.Now().UTC().Add(time.Hour),
		RefreshExpiresAt: time.Now().UTC().Add(2 * time.Hour),
		UserAgent:        meta.UserAgent,
		IPAddress:        meta.IPAddress,
	}
	f.rows[id] = s
	return &session.Created{Session: s, RefreshToken: raw}, nil
}

func (f *fakeSessions) ValidateRefresh(_ context.Context, refreshRaw string) (*model.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.expired {
		return nil, session.ErrSessionExpired
	}
	hash := token.HashRaw(refreshRaw)
	for _, s := range f.rows {
		if s.RefreshTokenHash == hash && s.Status == model.SessionStatusActive {
			cp := *s
			return &cp, nil
		}
	}
	return nil, session.ErrSessionInvalid
}

func (f *fakeSessions) Rotate(_ context.Context, id, newAccessToken string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.rows[id]
	if !ok || s.Status != model.SessionStatusActive {
		return "", session.ErrSessionInvalid
	}
	f.nextID++
	raw := fmt.Sprintf("refresh-raw-%d", f.nextID)
	s.AccessTokenHash = token.HashRaw(newAccessToken)
	s.RefreshTokenHash = token.HashRaw(raw)
	return raw, nil
}

func (f *fakeSessions) Invalidate(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.rows[id]; ok && s.Status == model.SessionStatusActive {
		s.Status = model.SessionStatusRevoked
	}
	return nil
}

func (f *fakeSessions) InvalidateByAccessToken(_ context.Context, accessToken string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	hash := token.HashRaw(accessToken)
	for _, s := range f.rows {
		if s.AccessTokenHash == hash && s.Status == model.SessionStatusActive {
			s.Status = model.SessionStatusRevoked
			return nil
		}
	}
	return session.ErrSessionInvalid
}

func (f *fakeSessions) InvalidateAllForProfile(_ context.Context, profileID, excludeID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.revokedAll = append(f.revokedAll, profileID)
	var n int64
	for id, s := range f.rows {
		if s.ProfileID == profileID && s.Status == model.SessionStatusActive && id != excludeID {
			s.Status = model.SessionStatusRevoked
			n++
		}
	}
	return n, nil
}

// stubGuard is a LoginGuard whose CheckIP answer is fixed. Lockout tests
// use a real guard.Guard over fakeProfiles/fakeAttempts instead.
type stubGuard struct {
	checkIPErr error
	attempts   fakeAttempts
}

func (g *stubGuard) CheckIP(_ context.Context, _ string) error { return g.checkIPErr }

func (g *stubGuard) RecordFailure(_ context.Context, p *model.Profile) (bool, error) {
	p.FailedAttempts++
	return false, nil
}

func (g *stubGuard) RecordSuccess(_ context.Context, p *model.Profile, _ string) error {
	p.FailedAttempts = 0
	return nil
}

func (g *stubGuard) RecordAttempt(ctx context.Context, a *model.LoginAttempt) error {
	return g.attempts.Insert(ctx, a)
}

type fakeResets struct {
	mu     sync.Mutex
	rows   map[string]*model.PasswordResetToken // by id
	nextID int
}

func newFakeResets() *fakeResets {
	return &fakeResets{rows: map[string]*model.PasswordResetToken{}}
}

func (f *fakeResets) Create(_ context.Context, profileID, tokenHash string, exp time.Time) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	id := fmt.Sprintf("reset-%d", f.nextID)
	f.rows[id] = &model.PasswordResetToken{ID: id, ProfileID: profileID, TokenHash: tokenHash, ExpiresAt: exp}
	return id, nil
}

func (f *fakeResets) GetByHash(_ context.Context, tokenHash string) (*model.PasswordResetToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.rows {
		if r.TokenHash == tokenHash {
			cp := *r
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeResets) Consume(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.rows[id]
	if !ok {
		return repository.ErrNotFound
	}
	if r.UsedAt != nil {
		return repository.ErrConflict
	}
	now := time.Now().UTC()
	r.UsedAt = &now
	return nil
}

type fakeBackupCodes struct {
	mu     sync.Mutex
	rows   map[string]*model.BackupCode
	nextID int
}

func newFakeBackupCodes() *fakeBackupCodes {
	return &fakeBackupCodes{rows: map[string]*model.BackupCode{}}
}

func (f *fakeBackupCodes) ReplaceForProfile(_ context.Context, profileID string, hashes []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, bc := range f.rows {
		if bc.ProfileID == profileID {
			delete(f.rows, id)
		}
	}
	for _, h := range hashes {
		f.nextID++
		id := fmt.Sprintf("bc-%d", f.nextID)
		f.rows[id] = &model.BackupCode{ID: id, ProfileID: profileID, CodeHash: h}
	}
	return nil
}

func (f *fakeBackupCodes) ListUnused(_ context.Context, profileID string) ([]*model.BackupCode, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.BackupCode
	for _, bc := range f.rows {
		if bc.ProfileID == profileID && bc.UsedAt == nil {
			cp := *bc
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeBackupCodes) Consume(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	bc, ok := f.rows[id]
	if !ok || bc.UsedAt != nil {
		return repository.ErrConflict
	}
	now := time.Now().UTC()
	bc.UsedAt = &now
	return nil
}

func (f *fakeBackupCodes) DeleteForProfile(_ context.Context, profileID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, bc := range f.rows {
		if bc.ProfileID == profileID {
			delete(f.rows, id)
		}
	}
	return nil
}

func (f *fakeBackupCodes) countUnused(profileID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, bc := range f.rows {
		if bc.ProfileID == profileID && bc.UsedAt == nil {
			n++
		}
	}
	return n
}

type fakeKeys struct {
	mu     sync.Mutex
	rows   map[string]*model.APIKey
	nextID int
}

func newFakeKeys() *fakeKeys { return &fakeKeys{rows: map[string]*model.APIKey{}} }

func (f *fakeKeys) Create(_ context.Context, k *model.APIKey) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	id := fmt.Sprintf("key-%d", f.nextID)
	cp := *k
	cp.ID = id
	cp.Active = true
	cp.CreatedAt = time.Now().UTC()
	f.rows[id] = &cp
	return id, nil
}

func (f *fakeKeys) ListByProfile(_ context.Context, profileID string) ([]*model.APIKey, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.APIKey
	for _, k := range f.rows {
		if k.ProfileID == profileID {
			cp := *k
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeKeys) Revoke(_ context.Context, id, profileID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	k, ok := f.rows[id]
	if !ok || k.ProfileID != profileID {
		return repository.ErrNotFound
	}
	k.Active = false
	return nil
}

func sessionMeta() session.Meta { return session.Meta{} }

// testConfig keeps bcrypt cheap so the suite stays fast.
func testConfig() config.Config {
	return config.Config{
		JWTSecret:  "test-secret",
		JWTIssuer:  "tenant-auth",
		BcryptCost: 4,
		ResetTTL:   time.Hour,
	}
}

func testIssuer() *token.Issuer {
	return token.NewIssuer(token.IssuerConfig{Secret: "test-secret", Issuer: "tenant-auth"})
}

// doJSON runs one handler against a synthetic JSON request. setup may
// plant context values the auth middleware would normally provide.
func doJSON(t *testing.T, h echo.HandlerFunc, method, target, body string, setup func(echo.Context)) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if setup != nil {
		setup(c)
	}
	if err := h(c); err != nil {
		e.HTTPErrorHandler(err, c)
	}
	return rec
}
