package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/example/pitch-scheduler/internal/domain/booking"
	"github.com/example/pitch-scheduler/internal/internaltypes"
)

type LedgerRepo struct{ pool *pgxpool.Pool }

var _ booking.Ledger = (*LedgerRepo)(nil)

func NewLedgerRepo(pool *pgxpool.Pool) *LedgerRepo { return &LedgerRepo{pool: pool} }

func (r *LedgerRepo) Exists(ctx context.Context, week booking.WeekID) (bool, error) {
	var ok bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM week_claims WHERE week=$1)
		    OR EXISTS(SELECT 1 FROM bookings WHERE week=$1 AND status='confirmed')
	`, string(week)).Scan(&ok)
	return ok, err
}

// Reserve inserts the week's claim unless a claim or a confirmed booking
// already exists. The primary key on week_claims makes concurrent callers race
// on a single row.
func (r *LedgerRepo) Reserve(ctx context.Context, week booking.WeekID) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO week_claims (week)
		SELECT $1::text
		WHERE NOT EXISTS (SELECT 1 FROM bookings WHERE week=$1 AND status='confirmed')
		ON CONFLICT (week) DO NOTHING
	`, string(week))
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *LedgerRepo) Release(ctx context.Context, week booking.WeekID) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM week_claims WHERE week=$1`, string(week))
	return err
}

func (r *LedgerRepo) Insert(ctx context.Context, b booking.Booking) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `
		INSERT INTO bookings (week, booking_date, booking_time, category, total_amount, cost_per_player,
			player_count, auto_booked, confirmation_ref, status, created_at)
		VALUES ($1, $2, $3, $4, $5::numeric, $6::numeric, $7, $8, $9, $10, COALESCE($11, now()))
		RETURNING id
	`, string(b.Week), b.Date, b.Time.String(), string(b.Category), b.TotalAmount.StringFixed(2),
		b.CostPerPlayer.StringFixed(2), b.PlayerCount, b.AutoBooked, b.ConfirmationRef, string(b.Status),
		nullTime(b.CreatedAt),
	).Scan(&id)
	return id, err
}

// Resolve moves a pending row to its terminal state. Rows already resolved are
// reported as not found.
func (r *LedgerRepo) Resolve(ctx context.Context, id int64, status booking.Status, ref string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE bookings SET status=$2, confirmation_ref=$3
		WHERE id=$1 AND status='pending'
	`, id, string(status), ref)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("pending booking %d: %w", id, internaltypes.ErrNotFound)
	}
	return nil
}

func (r *LedgerRepo) ListByWeek(ctx context.Context, week booking.WeekID) ([]booking.Booking, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, week, booking_date, booking_time, category, total_amount::text, cost_per_player::text,
			player_count, auto_booked, confirmation_ref, status, created_at
		FROM bookings WHERE week=$1 ORDER BY id
	`, string(week))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []booking.Booking
	for rows.Next() {
		var (
			b                  booking.Booking
			week, tod, cat     string
			status, total, per string
		)
		if err := rows.Scan(&b.ID, &week, &b.Date, &tod, &cat, &total, &per,
			&b.PlayerCount, &b.AutoBooked, &b.ConfirmationRef, &status, &b.CreatedAt); err != nil {
			return nil, err
		}
		b.Week, b.Category, b.Status = booking.WeekID(week), booking.Category(cat), booking.Status(status)
		if b.Time, err = booking.ParseTimeOfDay(tod); err != nil {
			return nil, fmt.Errorf("booking %d: %w", b.ID, err)
		}
		if b.TotalAmount, err = decimal.NewFromString(total); err != nil {
			return nil, fmt.Errorf("booking %d total: %w", b.ID, err)
		}
		if b.CostPerPlayer, err = decimal.NewFromString(per); err != nil {
			return nil, fmt.Errorf("booking %d cost per player: %w", b.ID, err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}
