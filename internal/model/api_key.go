package model

import "time"

// APIKey models a row in the `api_keys` table. Keys belong to a tenant
// and optionally a profile (tenant-level keys have an empty ProfileID).
// The full key value is a signed token returned exactly once at creation;
// only its SHA-256 hash is stored for lookup and revocation.
//
// Fields:
//  ID         – primary key (uuid).
//  TenantID   – owning tenant.
//  ProfileID  – owning profile; empty for tenant-level keys.
//  Name       – operator-facing label.
//  KeyHash    – SHA-256 hex digest of the full key string.
//  Scopes     – granted scopes, stored as a comma-joined column.
//  ExpiresAt  – optional expiry (nullable; nil keys never expire).
//  Active     – false once revoked.
//  LastUsedAt – touched on every authenticated use (nullable).
//  CreatedAt  – row creation time.
type APIKey struct {
	ID         string
	TenantID   string
	ProfileID  string
	Name       string
	KeyHash    string
	Scopes     []string
	ExpiresAt  *time.Time
	Active     bool
	LastUsedAt *time.Time
	CreatedAt  time.Time
}

// HasScope reports whether the key grants the given scope. A key with
// the wildcard "*" scope grants everything.
func (k *APIKey) HasScope(scope string) bool {
	for _, s := range k.Scopes {
		if s == scope || s == "*" {
			return true
		}
	}
	return false
}
