package model

import "time"

// Login attempt failure reasons recorded in the audit log. The reason is
// for operators only; clients always receive the same generic message.
const (
	AttemptReasonUnknownEmail  = "unknown_email"
	AttemptReasonBadPassword   = "bad_password"
	AttemptReasonLocked        = "account_locked"
	AttemptReasonSuspended     = "account_suspended"
	AttemptReasonRateLimited   = "rate_limited"
	AttemptReasonMFARequired   = "mfa_required"
	AttemptReasonBadMFACode    = "bad_mfa_code"
)

// LoginAttempt models a row in the append-only `login_attempts` table.
// Rows are never mutated or deleted during normal operation; the lockout
// guard and the IP rate window only ever count them over a trailing
// window, which is why the table carries indexes on
// (tenant_id, email, created_at) and (ip_address, created_at).
//
// Fields:
//  ID        – primary key (uuid).
//  TenantID  – tenant the attempt targeted.
//  Email     – normalized email the attempt targeted.
//  IPAddress – source IP of the attempt.
//  UserAgent – client user agent.
//  Success   – whether the attempt authenticated.
//  Reason    – one of the AttemptReason* constants when Success is false.
//  CreatedAt – attempt time.
type LoginAttempt struct {
	ID        string
	TenantID  string
	Email     string
	IPAddress string
	UserAgent string
	Success   bool
	Reason    string
	CreatedAt time.Time
}
