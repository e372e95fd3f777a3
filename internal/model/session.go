package model

import "time"

// Session status values as stored in the `sessions.status` column.
// The only legal transitions are ACTIVE -> EXPIRED and ACTIVE -> REVOKED;
// the repository enforces this with conditional updates so a revoked
// session can never be resurrected by a racing write.
const (
	SessionStatusActive  = "ACTIVE"
	SessionStatusExpired = "EXPIRED"
	SessionStatusRevoked = "REVOKED"
)

// Session models an entry in the `sessions` table. Each session belongs
// to exactly one profile and holds only hashes of the tokens bound to it;
// the raw refresh token is returned to the client once and never stored.
//
// Fields:
//  ID               – primary key (uuid), also the cache key suffix.
//  ProfileID        – owner of the session.
//  AccessTokenHash  – SHA-256 hex digest of the current access token.
//  RefreshTokenHash – SHA-256 hex digest of the current refresh token.
//  ExpiresAt        – when the session itself expires.
//  RefreshExpiresAt – when the refresh token stops being exchangeable.
//  Status           – one of the SessionStatus* constants.
//  UserAgent        – client user agent captured at creation.
//  IPAddress        – client IP captured at creation.
//  DeviceInfo       – free-form device description.
//  LastUsedAt       – updated on every successful refresh.
//  CreatedAt        – row creation time.
type Session struct {
	ID               string
	ProfileID        string
	AccessTokenHash  string
	RefreshTokenHash string
	ExpiresAt        time.Time
	RefreshExpiresAt time.Time
	Status           string
	UserAgent        string
	IPAddress        string
	DeviceInfo       string
	LastUsedAt       time.Time
	CreatedAt        time.Time
}
