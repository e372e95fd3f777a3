// Package queue defines the message payloads exchanged over the broker
// and the background consumer that turns them into notifications.
package queue

// Queue names. Both are declared durable by publisher and consumer.
const (
	PasswordResetQueue = "auth.password_reset"
	SecurityQueue      = "auth.security"
)

// PasswordResetRequestedEvent is published when a profile asks for a
// password reset. The downstream mailer consumes it; the raw token is
// included because the email is the only channel that may ever carry it.
type PasswordResetRequestedEvent struct {
	ProfileID   string `json:"profile_id"`
	TenantID    string `json:"tenant_id"`
	Email       string `json:"email"`
	ResetToken  string `json:"reset_token"`
	ExpiresAt   string `json:"expires_at"`
	RequestedAt string `json:"requested_at"`
}

// Security event types published on SecurityQueue.
const (
	SecurityAccountLocked   = "account_locked"
	SecurityPasswordChanged = "password_changed"
	SecurityMFAEnabled      = "mfa_enabled"
	SecurityMFADisabled     = "mfa_disabled"
	SecurityAccountDeleted  = "account_deleted"
)

// SecurityEvent is published for account-level security changes so
// downstream consumers can notify the user or feed an audit trail
// without querying the primary database.
type SecurityEvent struct {
	Type       string `json:"type"`
	ProfileID  string `json:"profile_id"`
	TenantID   string `json:"tenant_id"`
	Email      string `json:"email"`
	IPAddress  string `json:"ip_address,omitempty"`
	OccurredAt string `json:"occurred_at"`
}
