package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/tenant-auth/internal/model"
)

// AttemptRepo writes and counts rows of the append-only `login_attempts`
// audit table. Attempts are recorded for every login, win or lose, and
// are only ever aggregated over a trailing window.
type AttemptRepo struct{ DB *sql.DB }

func NewAttemptRepo(db *sql.DB) *AttemptRepo { return &AttemptRepo{DB: db} }

// Insert appends one attempt row.
func (r *AttemptRepo) Insert(ctx context.Context, a *model.LoginAttempt) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	_, err := r.DB.ExecContext(ctx,
		`INSERT INTO login_attempts (id, tenant_id, email, ip_address, user_agent, success, reason)
		 VALUES (?,?,?,?,?,?,?)`,
		a.ID, a.TenantID, a.Email, a.IPAddress, a.UserAgent, a.Success, a.Reason)
	return err
}

// CountByIPSince counts attempts from one IP since the given time. The
// (ip_address, created_at) index keeps this bounded as the log grows.
func (r *AttemptRepo) CountByIPSince(ctx context.Context, ip string, since time.Time) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM login_attempts WHERE ip_address=? AND created_at >= ?",
		ip, since).Scan(&n)
	return n, err
}
