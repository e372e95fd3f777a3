package model

import "time"

// Profile status values as stored in the `profiles.status` column.
// A profile moves between these states through the lockout guard and
// the account lifecycle handlers; LOCKED is transient and expires
// together with the lock_until timestamp.
const (
	ProfileStatusActive    = "ACTIVE"
	ProfileStatusSuspended = "SUSPENDED"
	ProfileStatusLocked    = "LOCKED"
	ProfileStatusInactive  = "INACTIVE"
)

// Profile represents a tenant-scoped user record as stored in the
// `profiles` table. Email uniqueness is enforced per (tenant_id, email)
// and only among rows whose deleted_at is NULL; the repository performs
// that check inside the insert transaction.
//
// Fields:
//  ID             – primary key (uuid).
//  TenantID       – owning tenant identifier.
//  Email          – normalized (lowercased, trimmed) email address.
//  PasswordHash   – bcrypt hash of the password.
//  FirstName      – given name.
//  LastName       – family name.
//  Role           – role name embedded into issued access tokens.
//  MFAEnabled     – whether TOTP verification is required at login.
//  MFASecret      – base32 TOTP secret; set at setup, confirmed on first verify.
//  FailedAttempts – consecutive failed login counter.
//  LockUntil      – account locked while this is in the future (nullable).
//  Status         – one of the ProfileStatus* constants.
//  LastLoginAt    – timestamp of last successful login (nullable).
//  LastLoginIP    – source IP of last successful login.
//  CreatedAt      – row creation time.
//  UpdatedAt      – last mutation time.
//  DeletedAt      – soft-delete marker (nullable); deleted rows are invisible
//                   to lookups and do not count toward email uniqueness.
type Profile struct {
	ID             string
	TenantID       string
	Email          string
	PasswordHash   string
	FirstName      string
	LastName       string
	Role           string
	MFAEnabled     bool
	MFASecret      string
	FailedAttempts int
	LockUntil      *time.Time
	Status         string
	LastLoginAt    *time.Time
	LastLoginIP    string
	CreatedAt      time.Time
	UpdatedAt      time.Time
	DeletedAt      *time.Time
}
