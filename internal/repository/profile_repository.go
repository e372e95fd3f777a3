package repository

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/tenant-auth/internal/model"
)

// ProfileRepo persists tenant-scoped user profiles.
type ProfileRepo struct{ DB *sql.DB }

func NewProfileRepo(db *sql.DB) *ProfileRepo { return &ProfileRepo{DB: db} }

const profileColumns = `id, tenant_id, email, password_hash, first_name, last_name, role,
	mfa_enabled, mfa_secret, failed_attempts, lock_until, status,
	last_login_at, last_login_ip, created_at, updated_at, deleted_at`

// Create inserts a profile and returns its generated ID. Email
// uniqueness is scoped to (tenant_id, email) and ignores soft-deleted
// rows; the check runs inside a transaction together with the insert so
// two concurrent registrations cannot both pass it.
func (r *ProfileRepo) Create(ctx context.Context, p *model.Profile) (string, error) {
	p.Email = strings.ToLower(strings.TrimSpace(p.Email))
	id := uuid.NewString()

	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer func() { _ = tx.Rollback() }()

	var existing int
	err = tx.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM profiles WHERE tenant_id=? AND email=? AND deleted_at IS NULL",
		p.TenantID, p.Email).Scan(&existing)
	if err != nil {
		return "", err
	}
	if existing > 0 {
		return "", ErrEmailExists
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO profiles
		 (id, tenant_id, email, password_hash, first_name, last_name, role, status)
		 VALUES (?,?,?,?,?,?,?,?)`,
		id, p.TenantID, p.Email, p.PasswordHash, p.FirstName, p.LastName, p.Role,
		model.ProfileStatusActive)
	if err != nil {
		// The partial unique index (tenant_id, email) WHERE deleted_at IS NULL
		// is the backstop for races the count check missed.
		if strings.Contains(strings.ToLower(err.Error()), "1062") {
			return "", ErrEmailExists
		}
		return "", err
	}
	if err := tx.Commit(); err != nil {
		return "", err
	}
	return id, nil
}

// GetByEmail fetches a live profile by normalized email within a tenant.
func (r *ProfileRepo) GetByEmail(ctx context.Context, tenantID, email string) (*model.Profile, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	return r.scanOne(r.DB.QueryRowContext(ctx,
		"SELECT "+profileColumns+" FROM profiles WHERE tenant_id=? AND email=? AND deleted_at IS NULL LIMIT 1",
		tenantID, email))
}

// GetByID fetches a live profile by id.
func (r *ProfileRepo) GetByID(ctx context.Context, id string) (*model.Profile, error) {
	return r.scanOne(r.DB.QueryRowContext(ctx,
		"SELECT "+profileColumns+" FROM profiles WHERE id=? AND deleted_at IS NULL LIMIT 1", id))
}

// SaveLockoutState writes the failed-attempt counter, lock window and
// status computed by the lockout guard. Last write wins under
// concurrent failures, which the design accepts for the counter.
func (r *ProfileRepo) SaveLockoutState(ctx context.Context, id string, attempts int, lockUntil *time.Time, status string) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE profiles SET failed_attempts=?, lock_until=?, status=?, updated_at=NOW() WHERE id=?",
		attempts, lockUntil, status, id)
	return err
}

// SaveLoginSuccess resets the lockout state and records the last login.
func (r *ProfileRepo) SaveLoginSuccess(ctx context.Context, id, ip string) error {
	_, err := r.DB.ExecContext(ctx,
		`UPDATE profiles SET failed_attempts=0, lock_until=NULL, status=?,
		 last_login_at=NOW(), last_login_ip=?, updated_at=NOW() WHERE id=?`,
		model.ProfileStatusActive, ip, id)
	return err
}

// UpdatePassword replaces the stored bcrypt hash.
func (r *ProfileRepo) UpdatePassword(ctx context.Context, id, hash string) error {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE profiles SET password_hash=?, updated_at=NOW() WHERE id=? AND deleted_at IS NULL",
		hash, id)
	if err != nil {
		return err
	}
	return mustAffect(res)
}

// SaveMFASecret stores an unconfirmed TOTP secret during setup. The
// enabled flag is untouched; it only flips on first verified code.
func (r *ProfileRepo) SaveMFASecret(ctx context.Context, id, secret string) error {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE profiles SET mfa_secret=?, updated_at=NOW() WHERE id=? AND deleted_at IS NULL",
		secret, id)
	if err != nil {
		return err
	}
	return mustAffect(res)
}

// SetMFAEnabled flips the MFA flag; disabling also clears the secret.
func (r *ProfileRepo) SetMFAEnabled(ctx context.Context, id string, enabled bool) error {
	var res sql.Result
	var err error
	if enabled {
		res, err = r.DB.ExecContext(ctx,
			"UPDATE profiles SET mfa_enabled=1, updated_at=NOW() WHERE id=? AND deleted_at IS NULL", id)
	} else {
		res, err = r.DB.ExecContext(ctx,
			"UPDATE profiles SET mfa_enabled=0, mfa_secret='', updated_at=NOW() WHERE id=? AND deleted_at IS NULL", id)
	}
	if err != nil {
		return err
	}
	return mustAffect(res)
}

// SoftDelete marks the profile deleted. Dependent sessions and keys are
// revoked by the callers; the row itself stays for the retention window.
func (r *ProfileRepo) SoftDelete(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE profiles SET deleted_at=NOW(), updated_at=NOW() WHERE id=? AND deleted_at IS NULL", id)
	if err != nil {
		return err
	}
	return mustAffect(res)
}

func (r *ProfileRepo) scanOne(row *sql.Row) (*model.Profile, error) {
	var p model.Profile
	var lockUntil, lastLogin, deletedAt sql.NullTime
	var lastIP sql.NullString
	err := row.Scan(&p.ID, &p.TenantID, &p.Email, &p.PasswordHash, &p.FirstName, &p.LastName,
		&p.Role, &p.MFAEnabled, &p.MFASecret, &p.FailedAttempts, &lockUntil, &p.Status,
		&lastLogin, &lastIP, &p.CreatedAt, &p.UpdatedAt, &deletedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if lockUntil.Valid {
		p.LockUntil = &lockUntil.Time
	}
	if lastLogin.Valid {
		p.LastLoginAt = &lastLogin.Time
	}
	if lastIP.Valid {
		p.LastLoginIP = lastIP.String
	}
	if deletedAt.Valid {
		p.DeletedAt = &deletedAt.Time
	}
	return &p, nil
}

// mustAffect converts a zero-row update into ErrNotFound.
func mustAffect(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
