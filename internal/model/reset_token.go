package model

import "time"

// PasswordResetToken models an entry in the `password_reset_tokens`
// table. Tokens are single-use: a used or expired token is permanently
// invalid even though the raw value would still hash to the stored
// digest. Only the SHA-256 hash of the raw token is persisted.
//
// Fields:
//  ID        – primary key (uuid).
//  ProfileID – profile the token can reset.
//  TokenHash – SHA-256 hex digest of the raw token.
//  ExpiresAt – expiry, one hour after issuance.
//  UsedAt    – set when the token is consumed (nullable).
//  CreatedAt – row creation time.
type PasswordResetToken struct {
	ID        string
	ProfileID string
	TokenHash string
	ExpiresAt time.Time
	UsedAt    *time.Time
	CreatedAt time.Time
}

// BackupCode models an entry in the `mfa_backup_codes` table. Codes are
// generated in batches of ten when MFA is enabled, stored bcrypt-hashed,
// and each one can be consumed exactly once in place of a TOTP code.
//
// Fields:
//  ID        – primary key (uuid).
//  ProfileID – owner of the code.
//  CodeHash  – bcrypt hash of the raw code.
//  UsedAt    – set when the code is consumed (nullable).
//  CreatedAt – row creation time.
type BackupCode struct {
	ID        string
	ProfileID string
	CodeHash  string
	UsedAt    *time.Time
	CreatedAt time.Time
}
