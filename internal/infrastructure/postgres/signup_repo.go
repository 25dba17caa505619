package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/example/pitch-scheduler/internal/domain/booking"
)

// SignupRepo reads the weekly_signups table maintained by the signup frontend.
type SignupRepo struct{ pool *pgxpool.Pool }

var _ booking.SignupSource = (*SignupRepo)(nil)

func NewSignupRepo(pool *pgxpool.Pool) *SignupRepo { return &SignupRepo{pool: pool} }

func (r *SignupRepo) Count(ctx context.Context, week booking.WeekID) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT count(*) FROM weekly_signups WHERE week=$1`, string(week)).Scan(&n)
	return n, err
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
