package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/tenant-auth/internal/model"
)

// ResetTokenRepo persists single-use password reset tokens.
type ResetTokenRepo struct{ DB *sql.DB }

func NewResetTokenRepo(db *sql.DB) *ResetTokenRepo { return &ResetTokenRepo{DB: db} }

// Create inserts a reset token row for the profile.
func (r *ResetTokenRepo) Create(ctx context.Context, profileID, tokenHash string, exp time.Time) (string, error) {
	id := uuid.NewString()
	_, err := r.DB.ExecContext(ctx,
		"INSERT INTO password_reset_tokens (id, profile_id, token_hash, expires_at) VALUES (?,?,?,?)",
		id, profileID, tokenHash, exp)
	if err != nil {
		return "", err
	}
	return id, nil
}

// GetByHash fetches a reset token by hash. Used and expired tokens are
// returned as-is; the caller decides how to report them.
func (r *ResetTokenRepo) GetByHash(ctx context.Context, tokenHash string) (*model.PasswordResetToken, error) {
	var t model.PasswordResetToken
	var usedAt sql.NullTime
	err := r.DB.QueryRowContext(ctx,
		`SELECT id, profile_id, token_hash, expires_at, used_at, created_at
		 FROM password_reset_tokens WHERE token_hash=? LIMIT 1`,
		tokenHash).Scan(&t.ID, &t.ProfileID, &t.TokenHash, &t.ExpiresAt, &usedAt, &t.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if usedAt.Valid {
		t.UsedAt = &usedAt.Time
	}
	return &t, nil
}

// Consume marks a token used. The used_at IS NULL guard makes the token
// strictly single-use even under concurrent resets; the loser of the
// race gets ErrConflict.
func (r *ResetTokenRepo) Consume(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE password_reset_tokens SET used_at=NOW() WHERE id=? AND used_at IS NULL", id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrConflict
	}
	return nil
}
