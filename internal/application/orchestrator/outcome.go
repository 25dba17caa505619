package orchestrator

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/example/pitch-scheduler/internal/domain/booking"
)

// Kind classifies how an evaluation or manual booking ended.
type Kind string

const (
	KindBooked                   Kind = "booked"
	KindConfigDisabled           Kind = "config_disabled"
	KindNotEnoughPlayers         Kind = "not_enough_players"
	KindAlreadyBooked            Kind = "already_booked"
	KindNoSlotsAvailable         Kind = "no_slots_available"
	KindNoSuitableSlot           Kind = "no_suitable_slot"
	KindInsufficientPairedSlots  Kind = "insufficient_paired_slots"
	KindExecutionFailed          Kind = "execution_failed"
	KindPartialDualBookingFailed Kind = "partial_dual_booking_failed"
	KindPersistenceError         Kind = "persistence_error"
	KindProviderUnavailable      Kind = "provider_unavailable"
)

var kindErrors = map[Kind]error{
	KindConfigDisabled:           booking.ErrConfigDisabled,
	KindNotEnoughPlayers:         booking.ErrNotEnoughPlayers,
	KindAlreadyBooked:            booking.ErrAlreadyBooked,
	KindNoSlotsAvailable:         booking.ErrNoSlotsAvailable,
	KindNoSuitableSlot:           booking.ErrNoSuitableSlot,
	KindInsufficientPairedSlots:  booking.ErrInsufficientPairedSlots,
	KindExecutionFailed:          booking.ErrExecutionFailed,
	KindPartialDualBookingFailed: booking.ErrPartialDualBookingFailed,
	KindPersistenceError:         booking.ErrPersistence,
	KindProviderUnavailable:      booking.ErrProviderUnavailable,
}

// Outcome is the single result reported for a trigger. Bookings holds every row
// written during the attempt, Confirmations every reservation the site accepted.
type Outcome struct {
	Kind            Kind                   `json:"kind"`
	Week            booking.WeekID         `json:"week"`
	Strategy        string                 `json:"strategy,omitempty"`
	SignupCount     int                    `json:"signup_count"`
	Bookings        []booking.Booking      `json:"bookings,omitempty"`
	Confirmations   []booking.Confirmation `json:"confirmations,omitempty"`
	ConfirmationRef string                 `json:"confirmation_ref,omitempty"`
	Unresolved      bool                   `json:"unresolved,omitempty"`
	TotalAmount     decimal.Decimal        `json:"total_amount"`
	CostPerPlayer   decimal.Decimal        `json:"cost_per_player"`
	Message         string                 `json:"message"`
	Cause           error                  `json:"-"`
}

// Booked reports whether the outcome is a success.
func (o Outcome) Booked() bool { return o.Kind == KindBooked }

// Err returns nil for a success and otherwise the kind's sentinel, wrapping the
// cause when there is one.
func (o Outcome) Err() error {
	if o.Kind == KindBooked || o.Kind == "" {
		return nil
	}
	sentinel, ok := kindErrors[o.Kind]
	if !ok {
		return fmt.Errorf("unknown outcome kind %q", o.Kind)
	}
	if o.Cause == nil {
		return sentinel
	}
	return fmt.Errorf("%w: %w", sentinel, o.Cause)
}

func (o Outcome) with(kind Kind, cause error, format string, args ...any) Outcome {
	o.Kind = kind
	o.Cause = cause
	o.Message = fmt.Sprintf(format, args...)
	return o
}

// keepsClaim reports whether the attempt reserved anything on the booking site
// or might have.
func (o Outcome) keepsClaim() bool { return len(o.Confirmations) > 0 || o.Unresolved }
