package guard

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/tenant-auth/internal/model"
)

type fakeProfileStore struct {
	lockoutCalls int
	successCalls int
	lastAttempts int
	lastUntil    *time.Time
	lastStatus   string
	err          error
}

func (f *fakeProfileStore) SaveLockoutState(_ context.Context, _ string, attempts int, until *time.Time, status string) error {
	if f.err != nil {
		return f.err
	}
	f.lockoutCalls++
	f.lastAttempts = attempts
	f.lastUntil = until
	f.lastStatus = status
	return nil
}

func (f *fakeProfileStore) SaveLoginSuccess(_ context.Context, _, _ string) error {
	if f.err != nil {
		return f.err
	}
	f.successCalls++
	return nil
}

type fakeAttemptStore struct {
	rows  []*model.LoginAttempt
	count int
	err   error
}

func (f *fakeAttemptStore) Insert(_ context.Context, a *model.LoginAttempt) error {
	f.rows = append(f.rows, a)
	return nil
}

func (f *fakeAttemptStore) CountByIPSince(_ context.Context, _ string, _ time.Time) (int, error) {
	return f.count, f.err
}

func newTestGuard(profiles *fakeProfileStore, attempts *fakeAttemptStore, cache *redis.Client) *Guard {
	g := New(profiles, attempts, cache)
	g.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	return g
}

func TestRecordFailureLocksAtThreshold(t *testing.T) {
	ps := &fakeProfileStore{}
	g := newTestGuard(ps, &fakeAttemptStore{}, nil)

	p := &model.Profile{ID: "p1", Status: model.ProfileStatusActive}
	for i := 1; i <= DefaultMaxFailures; i++ {
		locked, err := g.RecordFailure(context.Background(), p)
		if err != nil {
			t.Fatalf("failure %d: %v", i, err)
		}
		if want := i == DefaultMaxFailures; locked != want {
			t.Fatalf("failure %d: locked = %v, want %v", i, locked, want)
		}
	}
	if p.FailedAttempts != DefaultMaxFailures {
		t.Errorf("attempts = %d, want %d", p.FailedAttempts, DefaultMaxFailures)
	}
	if p.Status != model.ProfileStatusLocked {
		t.Errorf("status = %s, want %s", p.Status, model.ProfileStatusLocked)
	}
	wantUntil := g.now().Add(DefaultLockWindow)
	if p.LockUntil == nil || !p.LockUntil.Equal(wantUntil) {
		t.Errorf("lock_until = %v, want %v", p.LockUntil, wantUntil)
	}
	if ps.lastStatus != model.ProfileStatusLocked {
		t.Errorf("persisted status = %s", ps.lastStatus)
	}
}

func TestRecordFailureStoreErrorLeavesProfile(t *testing.T) {
	ps := &fakeProfileStore{err: errors.New("db down")}
	g := newTestGuard(ps, &fakeAttemptStore{}, nil)

	p := &model.Profile{ID: "p1", FailedAttempts: 2, Status: model.ProfileStatusActive}
	if _, err := g.RecordFailure(context.Background(), p); err == nil {
		t.Fatal("expected error")
	}
	if p.FailedAttempts != 2 {
		t.Errorf("in-memory attempts mutated on store error: %d", p.FailedAttempts)
	}
}

func TestLockedExpiresLazily(t *testing.T) {
	now := time.Now().UTC()
	past := now.Add(-time.Minute)
	future := now.Add(time.Minute)

	if Locked(&model.Profile{LockUntil: &future}, now) != true {
		t.Error("future lock_until should lock")
	}
	if Locked(&model.Profile{LockUntil: &past}, now) != false {
		t.Error("elapsed lock_until should unlock")
	}
	if Locked(&model.Profile{}, now) != false {
		t.Error("nil lock_until should unlock")
	}
}

func TestRecordSuccessResetsState(t *testing.T) {
	ps := &fakeProfileStore{}
	g := newTestGuard(ps, &fakeAttemptStore{}, nil)

	until := g.now().Add(time.Minute)
	p := &model.Profile{ID: "p1", FailedAttempts: 4, LockUntil: &until, Status: model.ProfileStatusLocked}
	if err := g.RecordSuccess(context.Background(), p, "10.0.0.1"); err != nil {
		t.Fatal(err)
	}
	if p.FailedAttempts != 0 || p.LockUntil != nil || p.Status != model.ProfileStatusActive {
		t.Errorf("state not reset: %+v", p)
	}
	if ps.successCalls != 1 {
		t.Errorf("successCalls = %d", ps.successCalls)
	}
}

func TestCheckIPRedisWindow(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	g := newTestGuard(&fakeProfileStore{}, &fakeAttemptStore{}, rdb)

	ctx := context.Background()
	for i := 1; i <= DefaultIPLimit; i++ {
		if err := g.CheckIP(ctx, "203.0.113.7"); err != nil {
			t.Fatalf("attempt %d: %v", i, err)
		}
	}
	if err := g.CheckIP(ctx, "203.0.113.7"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("attempt %d: err = %v, want ErrRateLimited", DefaultIPLimit+1, err)
	}

	// Other addresses keep their own window.
	if err := g.CheckIP(ctx, "203.0.113.8"); err != nil {
		t.Fatalf("fresh ip: %v", err)
	}

	// Window expiry clears the counter.
	mr.FastForward(DefaultIPWindow + time.Second)
	if err := g.CheckIP(ctx, "203.0.113.7"); err != nil {
		t.Fatalf("after window: %v", err)
	}
}

func TestCheckIPFallsBackToAttemptLog(t *testing.T) {
	as := &fakeAttemptStore{count: DefaultIPLimit}
	g := newTestGuard(&fakeProfileStore{}, as, nil)

	if err := g.CheckIP(context.Background(), "203.0.113.7"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("err = %v, want ErrRateLimited", err)
	}

	as.count = DefaultIPLimit - 1
	if err := g.CheckIP(context.Background(), "203.0.113.7"); err != nil {
		t.Fatalf("under limit: %v", err)
	}
}

func TestCheckIPFailsOpen(t *testing.T) {
	as := &fakeAttemptStore{err: errors.New("db down")}
	g := newTestGuard(&fakeProfileStore{}, as, nil)
	if err := g.CheckIP(context.Background(), "203.0.113.7"); err != nil {
		t.Fatalf("store error should not block login: %v", err)
	}
	if err := g.CheckIP(context.Background(), ""); err != nil {
		t.Fatalf("empty ip: %v", err)
	}
}

func TestRecordAttemptAppendsRow(t *testing.T) {
	as := &fakeAttemptStore{}
	g := newTestGuard(&fakeProfileStore{}, as, nil)
	a := &model.LoginAttempt{Email: "alice@acme.test", IPAddress: "203.0.113.7", Success: false, Reason: model.AttemptReasonBadPassword}
	if err := g.RecordAttempt(context.Background(), a); err != nil {
		t.Fatal(err)
	}
	if len(as.rows) != 1 || as.rows[0] != a {
		t.Errorf("rows = %+v", as.rows)
	}
}
