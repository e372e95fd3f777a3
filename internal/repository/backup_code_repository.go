package repository

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"github.com/iliyamo/tenant-auth/internal/model"
)

// BackupCodeRepo persists bcrypt-hashed MFA backup codes. Codes are
// written in a batch when MFA is enabled and consumed one at a time.
type BackupCodeRepo struct{ DB *sql.DB }

func NewBackupCodeRepo(db *sql.DB) *BackupCodeRepo { return &BackupCodeRepo{DB: db} }

// ReplaceForProfile deletes any previous batch and inserts the new code
// hashes in one transaction, so a profile never holds two generations of
// codes at once.
func (r *BackupCodeRepo) ReplaceForProfile(ctx context.Context, profileID string, hashes []string) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM mfa_backup_codes WHERE profile_id=?", profileID); err != nil {
		return err
	}
	for _, h := range hashes {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO mfa_backup_codes (id, profile_id, code_hash) VALUES (?,?,?)",
			uuid.NewString(), profileID, h); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// ListUnused returns the profile's unconsumed codes. The batch is small
// (ten rows) so the bcrypt comparison loop in the handler stays cheap.
func (r *BackupCodeRepo) ListUnused(ctx context.Context, profileID string) ([]*model.BackupCode, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT id, profile_id, code_hash, used_at, created_at
		 FROM mfa_backup_codes WHERE profile_id=? AND used_at IS NULL`, profileID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var codes []*model.BackupCode
	for rows.Next() {
		var c model.BackupCode
		var usedAt sql.NullTime
		if err := rows.Scan(&c.ID, &c.ProfileID, &c.CodeHash, &usedAt, &c.CreatedAt); err != nil {
			return nil, err
		}
		if usedAt.Valid {
			c.UsedAt = &usedAt.Time
		}
		codes = append(codes, &c)
	}
	return codes, rows.Err()
}

// Consume marks one code used; the used_at IS NULL guard keeps each code
// strictly single-use under concurrent logins.
func (r *BackupCodeRepo) Consume(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE mfa_backup_codes SET used_at=NOW() WHERE id=? AND used_at IS NULL", id)
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

// DeleteForProfile removes all codes, used by MFA disable.
func (r *BackupCodeRepo) DeleteForProfile(ctx context.Context, profileID string) error {
	_, err := r.DB.ExecContext(ctx,
		"DELETE FROM mfa_backup_codes WHERE profile_id=?", profileID)
	return err
}
