// Package guard makes the lockout and rate-limit decisions for login.
// Decision logic lives here, away from persistence, so the rules are
// testable without a database: the guard computes the next state and
// hands it to small injected store interfaces.
package guard

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/tenant-auth/internal/model"
)

// ErrRateLimited is returned when an IP exceeds the trailing-window
// attempt budget. Independent of per-account lockout.
var ErrRateLimited = errors.New("too many login attempts")

// Defaults per the account security policy.
const (
	DefaultMaxFailures = 5
	DefaultLockWindow  = 15 * time.Minute
	DefaultIPLimit     = 10
	DefaultIPWindow    = 15 * time.Minute
)

// ProfileStore is the slice of profile persistence the guard mutates.
type ProfileStore interface {
	SaveLockoutState(ctx context.Context, id string, attempts int, lockUntil *time.Time, status string) error
	SaveLoginSuccess(ctx context.Context, id, ip string) error
}

// AttemptStore records audit rows and serves the window count fallback.
type AttemptStore interface {
	Insert(ctx context.Context, a *model.LoginAttempt) error
	CountByIPSince(ctx context.Context, ip string, since time.Time) (int, error)
}

// Guard tracks failed logins per profile and attempt volume per IP.
type Guard struct {
	profiles    ProfileStore
	attempts    AttemptStore
	cache       *redis.Client // may be nil; IP window falls back to the attempt log
	maxFailures int
	lockWindow  time.Duration
	ipLimit     int
	ipWindow    time.Duration
	now         func() time.Time
}

// New builds a Guard with the default thresholds.
func New(profiles ProfileStore, attempts AttemptStore, cache *redis.Client) *Guard {
	return &Guard{
		profiles:    profiles,
		attempts:    attempts,
		cache:       cache,
		maxFailures: DefaultMaxFailures,
		lockWindow:  DefaultLockWindow,
		ipLimit:     DefaultIPLimit,
		ipWindow:    DefaultIPWindow,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Locked reports whether the profile is locked at the given instant.
// A profile whose lock window has passed is implicitly unlocked; the
// counter stays where it is until a successful login resets it.
func Locked(p *model.Profile, now time.Time) bool {
	return p.LockUntil != nil && now.Before(*p.LockUntil)
}

// RecordFailure bumps the failed-attempt counter and, at the threshold,
// locks the account for the lock window. Returns true when this failure
// locked the account.
func (g *Guard) RecordFailure(ctx context.Context, p *model.Profile) (bool, error) {
	attempts := p.FailedAttempts + 1
	lockUntil := p.LockUntil
	status := p.Status
	locked := false
	if attempts >= g.maxFailures {
		until := g.now().Add(g.lockWindow)
		lockUntil = &until
		status = model.ProfileStatusLocked
		locked = true
	}
	if err := g.profiles.SaveLockoutState(ctx, p.ID, attempts, lockUntil, status); err != nil {
		return false, err
	}
	p.FailedAttempts = attempts
	p.LockUntil = lockUntil
	p.Status = status
	return locked, nil
}

// RecordSuccess clears the lockout state and stamps the last login.
func (g *Guard) RecordSuccess(ctx context.Context, p *model.Profile, ip string) error {
	if err := g.profiles.SaveLoginSuccess(ctx, p.ID, ip); err != nil {
		return err
	}
	p.FailedAttempts = 0
	p.LockUntil = nil
	p.Status = model.ProfileStatusActive
	return nil
}

// RecordAttempt appends an audit row. Attempts are recorded win or lose;
// failures here are logged by the caller but never block the login flow.
func (g *Guard) RecordAttempt(ctx context.Context, a *model.LoginAttempt) error {
	return g.attempts.Insert(ctx, a)
}

// CheckIP enforces the per-IP trailing window: more than ipLimit
// attempts within ipWindow fails fast with ErrRateLimited. The counter
// lives in Redis keyed by IP; without Redis the attempt log serves the
// same count (slower, but the limit still holds).
func (g *Guard) CheckIP(ctx context.Context, ip string) error {
	if ip == "" {
		return nil
	}
	if g.cache != nil {
		key := "login:ip:" + ip
		n, err := g.cache.Incr(ctx, key).Result()
		if err == nil {
			if n == 1 {
				_ = g.cache.Expire(ctx, key, g.ipWindow).Err()
			}
			if n > int64(g.ipLimit) {
				return ErrRateLimited
			}
			return nil
		}
	}
	n, err := g.attempts.CountByIPSince(ctx, ip, g.now().Add(-g.ipWindow))
	if err != nil {
		// Counting failed; let the per-account lockout carry the load
		// rather than locking everyone out on a store hiccup.
		return nil
	}
	if n >= g.ipLimit {
		return ErrRateLimited
	}
	return nil
}
