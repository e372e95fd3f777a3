package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/iliyamo/tenant-auth/internal/model"
)

// SessionRepo persists sessions. Tokens are stored hashed; revocation is
// a conditional status transition so a racing write can never move a
// session back from REVOKED to ACTIVE.
type SessionRepo struct{ DB *sql.DB }

func NewSessionRepo(db *sql.DB) *SessionRepo { return &SessionRepo{DB: db} }

const sessionColumns = `id, profile_id, access_token_hash, refresh_token_hash,
	expires_at, refresh_expires_at, status, user_agent, ip_address, device_info,
	last_used_at, created_at`

// Create inserts a session row with status ACTIVE.
func (r *SessionRepo) Create(ctx context.Context, s *model.Session) error {
	_, err := r.DB.ExecContext(ctx,
		`INSERT INTO sessions
		 (id, profile_id, access_token_hash, refresh_token_hash, expires_at,
		  refresh_expires_at, status, user_agent, ip_address, device_info, last_used_at)
		 VALUES (?,?,?,?,?,?,?,?,?,?,NOW())`,
		s.ID, s.ProfileID, s.AccessTokenHash, s.RefreshTokenHash, s.ExpiresAt,
		s.RefreshExpiresAt, model.SessionStatusActive, s.UserAgent, s.IPAddress, s.DeviceInfo)
	return err
}

// GetByID fetches a session regardless of status.
func (r *SessionRepo) GetByID(ctx context.Context, id string) (*model.Session, error) {
	return r.scanOne(r.DB.QueryRowContext(ctx,
		"SELECT "+sessionColumns+" FROM sessions WHERE id=? LIMIT 1", id))
}

// GetActiveByRefreshHash fetches the ACTIVE session holding the given
// refresh token hash. At most one such row exists per hash.
func (r *SessionRepo) GetActiveByRefreshHash(ctx context.Context, hash string) (*model.Session, error) {
	return r.scanOne(r.DB.QueryRowContext(ctx,
		"SELECT "+sessionColumns+" FROM sessions WHERE refresh_token_hash=? AND status=? LIMIT 1",
		hash, model.SessionStatusActive))
}

// GetActiveByAccessHash fetches the ACTIVE session bound to an access
// token hash. Used by logout to find the caller's own session.
func (r *SessionRepo) GetActiveByAccessHash(ctx context.Context, hash string) (*model.Session, error) {
	return r.scanOne(r.DB.QueryRowContext(ctx,
		"SELECT "+sessionColumns+" FROM sessions WHERE access_token_hash=? AND status=? LIMIT 1",
		hash, model.SessionStatusActive))
}

// Rotate swaps in new token hashes after a refresh and stamps last use.
// Only an ACTIVE session can rotate; a revoked one returns ErrConflict.
func (r *SessionRepo) Rotate(ctx context.Context, id, accessHash, refreshHash string) error {
	res, err := r.DB.ExecContext(ctx,
		`UPDATE sessions SET access_token_hash=?, refresh_token_hash=?, last_used_at=NOW()
		 WHERE id=? AND status=?`,
		accessHash, refreshHash, id, model.SessionStatusActive)
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

// SetStatus transitions a session out of ACTIVE. The WHERE clause makes
// the call idempotent: a session already expired or revoked stays put.
func (r *SessionRepo) SetStatus(ctx context.Context, id, status string) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE sessions SET status=? WHERE id=? AND status=?",
		status, id, model.SessionStatusActive)
	return err
}

// ActiveIDsForProfile lists the profile's active session ids so the
// caller can evict the matching cache entries after a bulk revoke.
func (r *SessionRepo) ActiveIDsForProfile(ctx context.Context, profileID string) ([]string, error) {
	rows, err := r.DB.QueryContext(ctx,
		"SELECT id FROM sessions WHERE profile_id=? AND status=?",
		profileID, model.SessionStatusActive)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// RevokeAllForProfile revokes every active session of a profile except
// the optionally excluded one (the session performing a password reset).
func (r *SessionRepo) RevokeAllForProfile(ctx context.Context, profileID, excludeID string) (int64, error) {
	var res sql.Result
	var err error
	if excludeID == "" {
		res, err = r.DB.ExecContext(ctx,
			"UPDATE sessions SET status=? WHERE profile_id=? AND status=?",
			model.SessionStatusRevoked, profileID, model.SessionStatusActive)
	} else {
		res, err = r.DB.ExecContext(ctx,
			"UPDATE sessions SET status=? WHERE profile_id=? AND status=? AND id<>?",
			model.SessionStatusRevoked, profileID, model.SessionStatusActive, excludeID)
	}
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ExpiredIDs lists sessions past expiry or already out of ACTIVE, for
// the periodic sweep. Limited so one sweep stays bounded.
func (r *SessionRepo) ExpiredIDs(ctx context.Context, now time.Time, limit int) ([]string, error) {
	rows, err := r.DB.QueryContext(ctx,
		"SELECT id FROM sessions WHERE expires_at < ? OR status <> ? LIMIT ?",
		now, model.SessionStatusActive, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// DeleteByIDs removes swept session rows.
func (r *SessionRepo) DeleteByIDs(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	// database/sql has no slice expansion; build the placeholder list.
	q := "DELETE FROM sessions WHERE id IN (?"
	args := []interface{}{ids[0]}
	for _, id := range ids[1:] {
		q += ",?"
		args = append(args, id)
	}
	q += ")"
	res, err := r.DB.ExecContext(ctx, q, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *SessionRepo) scanOne(row *sql.Row) (*model.Session, error) {
	var s model.Session
	err := row.Scan(&s.ID, &s.ProfileID, &s.AccessTokenHash, &s.RefreshTokenHash,
		&s.ExpiresAt, &s.RefreshExpiresAt, &s.Status, &s.UserAgent, &s.IPAddress,
		&s.DeviceInfo, &s.LastUsedAt, &s.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}
