// Package session implements the session lifecycle on top of the
// relational store and a Redis mirror. The store is the source of truth;
// the cache only ever accelerates rejection and lookup, so losing it (or
// running without Redis at all) can never grant access.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/tenant-auth/internal/model"
	"github.com/iliyamo/tenant-auth/internal/token"
)

// Validation failures. ErrSessionExpired tells the caller the refresh
// token must not be retried; ErrSessionInvalid covers everything else
// (unknown id, revoked, hash mismatch).
var (
	ErrSessionInvalid = errors.New("session invalid")
	ErrSessionExpired = errors.New("session expired")
)

// Repo is the persistence surface the store needs. *repository.SessionRepo
// satisfies it; tests substitute an in-memory fake.
type Repo interface {
	Create(ctx context.Context, s *model.Session) error
	GetByID(ctx context.Context, id string) (*model.Session, error)
	GetActiveByRefreshHash(ctx context.Context, hash string) (*model.Session, error)
	GetActiveByAccessHash(ctx context.Context, hash string) (*model.Session, error)
	Rotate(ctx context.Context, id, accessHash, refreshHash string) error
	SetStatus(ctx context.Context, id, status string) error
	ActiveIDsForProfile(ctx context.Context, profileID string) ([]string, error)
	RevokeAllForProfile(ctx context.Context, profileID, excludeID string) (int64, error)
	ExpiredIDs(ctx context.Context, now time.Time, limit int) ([]string, error)
	DeleteByIDs(ctx context.Context, ids []string) (int64, error)
}

// Meta carries the client metadata captured when a session is created.
type Meta struct {
	UserAgent  string
	IPAddress  string
	DeviceInfo string
}

// Created is returned by Create: the persisted session plus the raw
// refresh token, which exists in plaintext only in this response.
type Created struct {
	Session      *model.Session
	RefreshToken string
}

// cacheEntry is the JSON mirror kept under session:<id>.
type cacheEntry struct {
	Status    string    `json:"status"`
	ProfileID string    `json:"profile_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Store coordinates session rows and their cache mirror.
type Store struct {
	repo       Repo
	cache      *redis.Client // may be nil; every cache path degrades to the repo
	sessionTTL time.Duration
	refreshTTL time.Duration
	sweepLimit int
	now        func() time.Time
}

// New builds a Store. sessionTTL bounds the access-side session lifetime
// (and the cache TTL); refreshTTL bounds how long the refresh token can
// be exchanged.
func New(repo Repo, cache *redis.Client, sessionTTL, refreshTTL time.Duration) *Store {
	if sessionTTL <= 0 {
		sessionTTL = 7 * 24 * time.Hour
	}
	if refreshTTL <= 0 {
		refreshTTL = sessionTTL
	}
	return &Store{
		repo:       repo,
		cache:      cache,
		sessionTTL: sessionTTL,
		refreshTTL: refreshTTL,
		sweepLimit: 500,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Create persists a new active session bound to the given access token
// and returns it together with a fresh refresh token. The cache mirror
// is written best-effort; a cache failure does not fail the login.
func (s *Store) Create(ctx context.Context, profileID, accessToken string, meta Meta) (*Created, error) {
	refresh, err := token.NewRefreshToken(s.refreshTTL)
	if err != nil {
		return nil, err
	}
	now := s.now()
	sess := &model.Session{
		ID:               uuid.NewString(),
		ProfileID:        profileID,
		AccessTokenHash:  token.HashRaw(accessToken),
		RefreshTokenHash: token.HashRaw(refresh.Raw),
		ExpiresAt:        now.Add(s.sessionTTL),
		RefreshExpiresAt: refresh.Exp,
		Status:           model.SessionStatusActive,
		UserAgent:        meta.UserAgent,
		IPAddress:        meta.IPAddress,
		DeviceInfo:       meta.DeviceInfo,
		LastUsedAt:       now,
		CreatedAt:        now,
	}
	if err := s.repo.Create(ctx, sess); err != nil {
		return nil, err
	}
	s.writeMirror(ctx, sess)
	return &Created{Session: sess, RefreshToken: refresh.Raw}, nil
}

// Validate checks a session id / refresh token pair. A cached REVOKED or
// EXPIRED marker rejects without touching the store; every grant goes
// through the authoritative row. An expired session is eagerly
// invalidated before ErrSessionExpired is returned, so the same token
// can never be retried into a grant.
func (s *Store) Validate(ctx context.Context, id, refreshRaw string) (*model.Session, error) {
	if e := s.readMirror(ctx, id); e != nil && e.Status != model.SessionStatusActive {
		return nil, ErrSessionInvalid
	}
	sess, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, ErrSessionInvalid
	}
	if sess.Status != model.SessionStatusActive {
		// Store wins over whatever the cache held.
		s.writeMirror(ctx, sess)
		return nil, ErrSessionInvalid
	}
	if token.HashRaw(refreshRaw) != sess.RefreshTokenHash {
		return nil, ErrSessionInvalid
	}
	now := s.now()
	if now.After(sess.ExpiresAt) || now.After(sess.RefreshExpiresAt) {
		_ = s.expire(ctx, sess.ID)
		return nil, ErrSessionExpired
	}
	s.writeMirror(ctx, sess)
	return sess, nil
}

// ValidateRefresh resolves an active session from a raw refresh token,
// the lookup the refresh endpoint starts from.
func (s *Store) ValidateRefresh(ctx context.Context, refreshRaw string) (*model.Session, error) {
	sess, err := s.repo.GetActiveByRefreshHash(ctx, token.HashRaw(refreshRaw))
	if err != nil {
		return nil, ErrSessionInvalid
	}
	if s.now().After(sess.RefreshExpiresAt) {
		_ = s.expire(ctx, sess.ID)
		return nil, ErrSessionExpired
	}
	return sess, nil
}

// Rotate installs a new access/refresh pair on an active session and
// returns the new raw refresh token. The old refresh token stops working
// the moment the row updates.
func (s *Store) Rotate(ctx context.Context, id, newAccessToken string) (string, error) {
	refresh, err := token.NewRefreshToken(s.refreshTTL)
	if err != nil {
		return "", err
	}
	if err := s.repo.Rotate(ctx, id, token.HashRaw(newAccessToken), token.HashRaw(refresh.Raw)); err != nil {
		return "", ErrSessionInvalid
	}
	if sess, err := s.repo.GetByID(ctx, id); err == nil {
		s.writeMirror(ctx, sess)
	}
	return refresh.Raw, nil
}

// Invalidate revokes a session and evicts its mirror. Revoking an
// already-revoked session is a no-op.
func (s *Store) Invalidate(ctx context.Context, id string) error {
	if err := s.repo.SetStatus(ctx, id, model.SessionStatusRevoked); err != nil {
		return err
	}
	s.evict(ctx, id)
	return nil
}

// InvalidateByAccessToken revokes the session bound to the given raw
// access token, used by logout.
func (s *Store) InvalidateByAccessToken(ctx context.Context, accessToken string) error {
	sess, err := s.repo.GetActiveByAccessHash(ctx, token.HashRaw(accessToken))
	if err != nil {
		return ErrSessionInvalid
	}
	return s.Invalidate(ctx, sess.ID)
}

// InvalidateAllForProfile revokes every active session of a profile
// except excludeID (empty to revoke all), evicting each mirror.
func (s *Store) InvalidateAllForProfile(ctx context.Context, profileID, excludeID string) (int64, error) {
	ids, err := s.repo.ActiveIDsForProfile(ctx, profileID)
	if err != nil {
		return 0, err
	}
	n, err := s.repo.RevokeAllForProfile(ctx, profileID, excludeID)
	if err != nil {
		return 0, err
	}
	for _, id := range ids {
		if id != excludeID {
			s.evict(ctx, id)
		}
	}
	return n, nil
}

// CleanupExpired removes sessions past expiry or already out of ACTIVE
// and evicts their mirrors. Driven by a timer in main, not per request.
func (s *Store) CleanupExpired(ctx context.Context) (int64, error) {
	ids, err := s.repo.ExpiredIDs(ctx, s.now(), s.sweepLimit)
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}
	n, err := s.repo.DeleteByIDs(ctx, ids)
	if err != nil {
		return 0, err
	}
	for _, id := range ids {
		s.evict(ctx, id)
	}
	return n, nil
}

func (s *Store) expire(ctx context.Context, id string) error {
	if err := s.repo.SetStatus(ctx, id, model.SessionStatusExpired); err != nil {
		return err
	}
	s.evict(ctx, id)
	return nil
}

func cacheKey(id string) string { return "session:" + id }

func (s *Store) writeMirror(ctx context.Context, sess *model.Session) {
	if s.cache == nil {
		return
	}
	ttl := time.Until(sess.ExpiresAt)
	if ttl <= 0 {
		ttl = time.Minute
	}
	body, err := json.Marshal(cacheEntry{
		Status:    sess.Status,
		ProfileID: sess.ProfileID,
		ExpiresAt: sess.ExpiresAt,
	})
	if err != nil {
		return
	}
	_ = s.cache.Set(ctx, cacheKey(sess.ID), body, ttl).Err()
}

func (s *Store) readMirror(ctx context.Context, id string) *cacheEntry {
	if s.cache == nil {
		return nil
	}
	raw, err := s.cache.Get(ctx, cacheKey(id)).Result()
	if err != nil {
		return nil
	}
	var e cacheEntry
	if err := json.Unmarshal([]byte(raw), &e); err != nil {
		return nil
	}
	return &e
}

func (s *Store) evict(ctx context.Context, id string) {
	if s.cache == nil {
		return
	}
	_ = s.cache.Del(ctx, cacheKey(id)).Err()
}
