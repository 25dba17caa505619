package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/example/pitch-scheduler/internal/domain/booking"
)

// DefaultManualPlayers is assumed when an operator does not say how many will play.
const DefaultManualPlayers = 14

// ManualRequest describes an operator-chosen slot. Week defaults to the ISO week
// of Date, Category to third and Price to the category's default.
type ManualRequest struct {
	Week        booking.WeekID
	Date        time.Time
	Time        booking.TimeOfDay
	Category    booking.Category
	PlayerCount int
	Price       *decimal.Decimal
}

func (r ManualRequest) normalize() (ManualRequest, error) {
	if r.Date.IsZero() {
		return r, errors.New("date is required")
	}
	if r.Category == "" {
		r.Category = booking.CategoryThird
	}
	if r.Week == "" {
		r.Week = booking.WeekOf(r.Date)
	}
	if r.PlayerCount <= 0 {
		r.PlayerCount = DefaultManualPlayers
	}
	if r.Price != nil && r.Price.IsNegative() {
		return r, fmt.Errorf("price must not be negative (got %s)", r.Price)
	}
	return r, nil
}

// ManualBook books exactly the requested slot. Thresholds and the week claim are
// not consulted, so it can add a second booking to an already booked week. The
// error is only for an invalid request.
func (o *Orchestrator) ManualBook(ctx context.Context, req ManualRequest) (Outcome, error) {
	req, err := req.normalize()
	if err != nil {
		return Outcome{}, fmt.Errorf("manual booking: %w", err)
	}
	log := o.logger.With().Str("week", req.Week.String()).Str("attempt", uuid.NewString()).Logger()
	log.Warn().Msg("manual booking bypasses thresholds and the one-booking-per-week check")

	if booked, err := o.ledger.Exists(ctx, req.Week); err != nil {
		log.Warn().Err(err).Msg("could not check existing bookings")
	} else if booked {
		log.Warn().Msg("week already has a booking; adding another")
	}

	price := booking.DefaultPrice(req.Category)
	if req.Price != nil {
		price = *req.Price
	}
	slot := booking.Slot{Date: req.Date, Time: req.Time, Category: req.Category, Price: price, Available: true}

	out := Outcome{Week: req.Week, Strategy: "manual", SignupCount: req.PlayerCount}
	a := o.book(ctx, req.Week, slot, req.PlayerCount, false, log)
	out = out.record(a)
	switch {
	case a.err != nil && a.executed:
		out = out.with(KindPersistenceError, a.err, "Booked %s (ref %s) but could not record it", describe(slot), a.conf.Ref)
	case a.unresolved:
		out = out.with(a.kind, a.err, "Manual booking %s timed out with no answer; check the site before retrying", describe(slot))
	case a.err != nil:
		out = out.with(a.kind, a.err, "Manual booking %s failed", describe(slot))
	default:
		out.ConfirmationRef = a.conf.Ref
		out.TotalAmount = a.row.TotalAmount
		out.CostPerPlayer = a.row.CostPerPlayer
		out = out.with(KindBooked, nil, "Manually booked %s (ref %s), £%s per player",
			describe(slot), a.conf.Ref, out.CostPerPlayer.StringFixed(2))
	}
	o.finish(ctx, "manual", out, log)
	return out, nil
}
