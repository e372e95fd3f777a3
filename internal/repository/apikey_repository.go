package repository

import (
	"context"
	"database/sql"
	"strings"

	"github.com/google/uuid"

	"github.com/iliyamo/tenant-auth/internal/model"
)

// APIKeyRepo persists API key metadata. The plaintext key is never
// stored; lookups go through the SHA-256 hash of the full key string.
type APIKeyRepo struct{ DB *sql.DB }

func NewAPIKeyRepo(db *sql.DB) *APIKeyRepo { return &APIKeyRepo{DB: db} }

const apiKeyColumns = `id, tenant_id, profile_id, name, key_hash, scopes,
	expires_at, active, last_used_at, created_at`

// Create inserts an API key row and returns its generated ID.
func (r *APIKeyRepo) Create(ctx context.Context, k *model.APIKey) (string, error) {
	id := uuid.NewString()
	_, err := r.DB.ExecContext(ctx,
		`INSERT INTO api_keys (id, tenant_id, profile_id, name, key_hash, scopes, expires_at, active)
		 VALUES (?,?,?,?,?,?,?,1)`,
		id, k.TenantID, nullEmpty(k.ProfileID), k.Name, k.KeyHash,
		strings.Join(k.Scopes, ","), k.ExpiresAt)
	if err != nil {
		return "", err
	}
	return id, nil
}

// GetActiveByHash fetches an active (non-revoked) key by hash.
func (r *APIKeyRepo) GetActiveByHash(ctx context.Context, hash string) (*model.APIKey, error) {
	return r.scanOne(r.DB.QueryRowContext(ctx,
		"SELECT "+apiKeyColumns+" FROM api_keys WHERE key_hash=? AND active=1 LIMIT 1", hash))
}

// ListByProfile returns all keys owned by a profile, newest first.
func (r *APIKeyRepo) ListByProfile(ctx context.Context, profileID string) ([]*model.APIKey, error) {
	rows, err := r.DB.QueryContext(ctx,
		"SELECT "+apiKeyColumns+" FROM api_keys WHERE profile_id=? ORDER BY created_at DESC", profileID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var keys []*model.APIKey
	for rows.Next() {
		k, err := r.scanRow(rows)
		if err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// Revoke flips a key inactive, but only when the caller owns it. A key
// that is missing, already revoked or owned by someone else reports
// ErrNotFound so revocation leaks nothing about other tenants' keys.
func (r *APIKeyRepo) Revoke(ctx context.Context, id, profileID string) error {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE api_keys SET active=0 WHERE id=? AND profile_id=? AND active=1",
		id, profileID)
	if err != nil {
		return err
	}
	return mustAffect(res)
}

// TouchLastUsed stamps the key on each authenticated use.
func (r *APIKeyRepo) TouchLastUsed(ctx context.Context, id string) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE api_keys SET last_used_at=NOW() WHERE id=?", id)
	return err
}

func (r *APIKeyRepo) scanOne(row *sql.Row) (*model.APIKey, error) {
	k, err := scanAPIKey(row.Scan)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return k, err
}

func (r *APIKeyRepo) scanRow(rows *sql.Rows) (*model.APIKey, error) {
	return scanAPIKey(rows.Scan)
}

func scanAPIKey(scan func(...interface{}) error) (*model.APIKey, error) {
	var k model.APIKey
	var profileID sql.NullString
	var scopes string
	var expiresAt, lastUsed sql.NullTime
	err := scan(&k.ID, &k.TenantID, &profileID, &k.Name, &k.KeyHash, &scopes,
		&expiresAt, &k.Active, &lastUsed, &k.CreatedAt)
	if err != nil {
		return nil, err
	}
	k.ProfileID = profileID.String
	if scopes != "" {
		k.Scopes = strings.Split(scopes, ",")
	}
	if expiresAt.Valid {
		k.ExpiresAt = &expiresAt.Time
	}
	if lastUsed.Valid {
		k.LastUsedAt = &lastUsed.Time
	}
	return &k, nil
}

func nullEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
