package handler

import (
	"context"
	"time"

	"github.com/iliyamo/tenant-auth/internal/model"
	"github.com/iliyamo/tenant-auth/internal/session"
)

// The handler structs depend on these narrow interfaces rather than the
// concrete repositories so tests can substitute in-memory fakes. The
// production wiring in cmd/server passes the repository and store types,
// which satisfy them.

// ProfileStore is the profile persistence surface the handlers use.
type ProfileStore interface {
	Create(ctx context.Context, p *model.Profile) (string, error)
	GetByEmail(ctx context.Context, tenantID, email string) (*model.Profile, error)
	GetByID(ctx context.Context, id string) (*model.Profile, error)
	UpdatePassword(ctx context.Context, id, hash string) error
	SaveMFASecret(ctx context.Context, id, secret string) error
	SetMFAEnabled(ctx context.Context, id string, enabled bool) error
	SoftDelete(ctx context.Context, id string) error
}

// SessionManager is the session lifecycle surface; *session.Store
// implements it.
type SessionManager interface {
	Create(ctx context.Context, profileID, accessToken string, meta session.Meta) (*session.Created, error)
	ValidateRefresh(ctx context.Context, refreshRaw string) (*model.Session, error)
	Rotate(ctx context.Context, id, newAccessToken string) (string, error)
	Invalidate(ctx context.Context, id string) error
	InvalidateByAccessToken(ctx context.Context, accessToken string) error
	InvalidateAllForProfile(ctx context.Context, profileID, excludeID string) (int64, error)
}

// LoginGuard is the lockout/rate surface; *guard.Guard implements it.
type LoginGuard interface {
	CheckIP(ctx context.Context, ip string) error
	RecordFailure(ctx context.Context, p *model.Profile) (bool, error)
	RecordSuccess(ctx context.Context, p *model.Profile, ip string) error
	RecordAttempt(ctx context.Context, a *model.LoginAttempt) error
}

// ResetTokenStore persists single-use password reset tokens.
type ResetTokenStore interface {
	Create(ctx context.Context, profileID, tokenHash string, exp time.Time) (string, error)
	GetByHash(ctx context.Context, tokenHash string) (*model.PasswordResetToken, error)
	Consume(ctx context.Context, id string) error
}

// BackupCodeStore persists hashed MFA backup codes.
type BackupCodeStore interface {
	ReplaceForProfile(ctx context.Context, profileID string, hashes []string) error
	ListUnused(ctx context.Context, profileID string) ([]*model.BackupCode, error)
	Consume(ctx context.Context, id string) error
	DeleteForProfile(ctx context.Context, profileID string) error
}

// APIKeyStore persists API key metadata.
type APIKeyStore interface {
	Create(ctx context.Context, k *model.APIKey) (string, error)
	ListByProfile(ctx context.Context, profileID string) ([]*model.APIKey, error)
	Revoke(ctx context.Context, id, profileID string) error
}
