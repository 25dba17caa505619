package orchestrator

import (
	"context"
	"fmt"

	"github.com/example/pitch-scheduler/internal/domain/booking"
)

// State summarises where a week stands.
type State string

const (
	StateWaiting   State = "waiting"
	StateReadyHalf State = "ready_half"
	StateReadyFull State = "ready_full"
	StateBooked    State = "booked"
)

type WeekStatus struct {
	Week              booking.WeekID    `json:"week"`
	State             State             `json:"status"`
	Count             int               `json:"current_count"`
	Booked            bool              `json:"is_booked"`
	PlayersNeededHalf int               `json:"players_needed_half"`
	PlayersNeededFull int               `json:"players_needed_full"`
	HalfThreshold     int               `json:"threshold_half"`
	FullThreshold     int               `json:"threshold_full"`
	Bookings          []booking.Booking `json:"bookings,omitempty"`
}

// Status reports the signup count against the thresholds and any bookings. It
// never books.
func (o *Orchestrator) Status(ctx context.Context, week booking.WeekID) (WeekStatus, error) {
	n, err := o.signups.Count(ctx, week)
	if err != nil {
		return WeekStatus{}, fmt.Errorf("count signups: %w", err)
	}
	booked, err := o.ledger.Exists(ctx, week)
	if err != nil {
		return WeekStatus{}, fmt.Errorf("check week: %w", err)
	}
	rows, err := o.ledger.ListByWeek(ctx, week)
	if err != nil {
		return WeekStatus{}, fmt.Errorf("list bookings: %w", err)
	}

	st := WeekStatus{
		Week:              week,
		Count:             n,
		Booked:            booked,
		PlayersNeededHalf: max(0, o.policy.HalfThreshold-n),
		PlayersNeededFull: max(0, o.policy.FullThreshold-n),
		HalfThreshold:     o.policy.HalfThreshold,
		FullThreshold:     o.policy.FullThreshold,
		Bookings:          rows,
	}
	switch {
	case booked:
		st.State = StateBooked
	case n >= o.policy.FullThreshold:
		st.State = StateReadyFull
	case n >= o.policy.HalfThreshold:
		st.State = StateReadyHalf
	default:
		st.State = StateWaiting
	}
	return st, nil
}
