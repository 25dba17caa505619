// Package orchestrator decides when and what to book for a week and drives the
// booking site through the configured collaborators.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/example/pitch-scheduler/internal/application/bounded"
	"github.com/example/pitch-scheduler/internal/application/slotcache"
	"github.com/example/pitch-scheduler/internal/domain/booking"
	"github.com/example/pitch-scheduler/internal/telemetry"
)

const defaultExecutorTimeout = 3 * time.Minute

// PairSelection chooses among several same-time third pitch pairs.
type PairSelection string

const (
	// PairFirst takes the first pair the site listed.
	PairFirst PairSelection = "first"
	// PairPreferred takes the pair closest to the preferred hour.
	PairPreferred PairSelection = "preferred"
)

func ParsePairSelection(s string) (PairSelection, error) {
	switch PairSelection(strings.ToLower(strings.TrimSpace(s))) {
	case "", PairFirst:
		return PairFirst, nil
	case PairPreferred:
		return PairPreferred, nil
	}
	return "", fmt.Errorf("unknown pair selection %q (want first or preferred)", s)
}

// SlotSource is the read side of the slot cache.
type SlotSource interface {
	Get(ctx context.Context, category booking.Category) slotcache.Lookup
}

type Config struct {
	Policy          booking.ThresholdPolicy
	PairSelection   PairSelection
	Location        *time.Location
	ExecutorTimeout time.Duration
}

// Deps are the collaborators. Notifier may be nil.
type Deps struct {
	Signups  booking.SignupSource
	Ledger   booking.Ledger
	Slots    SlotSource
	Executor booking.Executor
	Notifier booking.Notifier
}

type Orchestrator struct {
	policy          booking.ThresholdPolicy
	pairSelection   PairSelection
	loc             *time.Location
	executorTimeout time.Duration

	signups  booking.SignupSource
	ledger   booking.Ledger
	slots    SlotSource
	executor booking.Executor
	notifier booking.Notifier

	logger zerolog.Logger
	now    func() time.Time
}

// New validates the policy once; it is not re-read afterwards.
func New(cfg Config, deps Deps, logger zerolog.Logger) (*Orchestrator, error) {
	if err := cfg.Policy.Validate(); err != nil {
		return nil, fmt.Errorf("booking policy: %w", err)
	}
	if deps.Signups == nil || deps.Ledger == nil || deps.Slots == nil || deps.Executor == nil {
		return nil, errors.New("orchestrator: signups, ledger, slots and executor are required")
	}
	o := &Orchestrator{
		policy:          cfg.Policy,
		pairSelection:   cfg.PairSelection,
		loc:             cfg.Location,
		executorTimeout: cfg.ExecutorTimeout,
		signups:         deps.Signups,
		ledger:          deps.Ledger,
		slots:           deps.Slots,
		executor:        deps.Executor,
		notifier:        deps.Notifier,
		logger:          logger.With().Str("component", "orchestrator").Logger(),
		now:             time.Now,
	}
	if o.pairSelection == "" {
		o.pairSelection = PairFirst
	}
	if o.loc == nil {
		o.loc = time.Local
	}
	if o.executorTimeout <= 0 {
		o.executorTimeout = defaultExecutorTimeout
	}
	return o, nil
}

// Evaluate checks the signup count for week and books when a threshold is met.
// It is safe to call concurrently; at most one call per week gets past the claim.
func (o *Orchestrator) Evaluate(ctx context.Context, week booking.WeekID) Outcome {
	log := o.logger.With().Str("week", week.String()).Str("attempt", uuid.NewString()).Logger()
	out := o.evaluate(ctx, week, log)
	o.finish(ctx, "evaluate", out, log)
	return out
}

func (o *Orchestrator) evaluate(ctx context.Context, week booking.WeekID, log zerolog.Logger) Outcome {
	out := Outcome{Week: week}
	if !o.policy.AutoBookEnabled {
		return out.with(KindConfigDisabled, nil, "Automatic booking is disabled")
	}

	n, err := o.signups.Count(ctx, week)
	if err != nil {
		return out.with(KindPersistenceError, fmt.Errorf("count signups: %w", err), "Could not read signups for %s", week)
	}
	out.SignupCount = n

	strategy := booking.StrategyFor(n, o.policy)
	out.Strategy = strategy.String()
	if strategy.Kind == booking.StrategyNone {
		return out.with(KindNotEnoughPlayers, nil, "%d players signed up, %d needed", n, o.policy.HalfThreshold)
	}

	claimed, err := o.ledger.Reserve(ctx, week)
	if err != nil {
		return out.with(KindPersistenceError, fmt.Errorf("claim week: %w", err), "Could not claim %s", week)
	}
	if !claimed {
		return out.with(KindAlreadyBooked, nil, "%s is already booked", week)
	}
	log.Info().Int("signups", n).Str("strategy", out.Strategy).Msg("week claimed")

	switch strategy.Kind {
	case booking.StrategyDualThird:
		out = o.bookDual(ctx, out, log)
	default:
		out = o.bookSingle(ctx, out, strategy.Category, log)
	}

	if !out.keepsClaim() {
		if err := o.ledger.Release(context.WithoutCancel(ctx), week); err != nil {
			log.Error().Err(err).Msg("could not release week claim")
		}
	}
	return out
}

func (o *Orchestrator) bookSingle(ctx context.Context, out Outcome, category booking.Category, log zerolog.Logger) Outcome {
	l := o.slots.Get(ctx, category)
	if len(l.Slots) == 0 {
		return emptyLookup(out, category, l)
	}
	slot, ok := booking.SelectBest(available(l.Slots), o.policy.PreferredTime, o.today())
	if !ok {
		return out.with(KindNoSuitableSlot, nil, "None of the %d listed %s slots are free", len(l.Slots), category.Label())
	}

	a := o.book(ctx, out.Week, slot, out.SignupCount, true, log)
	out = out.record(a)
	if a.err != nil {
		if a.executed {
			return out.with(KindPersistenceError, a.err, "Booked %s (ref %s) but could not record it", describe(slot), a.conf.Ref)
		}
		if a.unresolved {
			return out.with(a.kind, a.err, "Booking %s timed out with no answer; the week stays claimed until the site is checked", describe(slot))
		}
		return out.with(a.kind, a.err, "Booking %s failed", describe(slot))
	}

	out.ConfirmationRef = a.conf.Ref
	out.TotalAmount = a.row.TotalAmount
	out.CostPerPlayer = a.row.CostPerPlayer
	return out.with(KindBooked, nil, "Booked %s (ref %s), £%s per player",
		describe(slot), a.conf.Ref, out.CostPerPlayer.StringFixed(2))
}

func (o *Orchestrator) bookDual(ctx context.Context, out Outcome, log zerolog.Logger) Outcome {
	l := o.slots.Get(ctx, booking.CategoryThird)
	if len(l.Slots) == 0 {
		return emptyLookup(out, booking.CategoryThird, l)
	}
	pairs := booking.PairThirds(available(l.Slots))
	if len(pairs) == 0 {
		return out.with(KindInsufficientPairedSlots, nil, "No two third pitches are free at the same time")
	}
	if o.pairSelection == PairPreferred {
		pairs = booking.RankPairs(pairs, o.policy.PreferredTime)
	}
	pair := pairs[0]

	first := o.book(ctx, out.Week, pair[0], out.SignupCount, true, log)
	out = out.record(first)
	if first.err != nil {
		if first.executed {
			return out.with(KindPersistenceError, first.err, "Booked first pitch %s (ref %s) but could not record it", describe(pair[0]), first.conf.Ref)
		}
		if first.unresolved {
			return out.with(first.kind, first.err, "Booking first pitch %s timed out with no answer; the week stays claimed until the site is checked", describe(pair[0]))
		}
		return out.with(first.kind, first.err, "Booking first pitch %s failed", describe(pair[0]))
	}

	second := o.book(ctx, out.Week, pair[1], out.SignupCount, true, log)
	out = out.record(second)
	if second.err != nil {
		if second.kind == KindPersistenceError {
			return out.with(KindPersistenceError, second.err, "Booked first pitch %s (ref %s) but the second could not be recorded",
				describe(pair[0]), first.conf.Ref)
		}
		log.Error().Err(second.err).Str("first_ref", first.conf.Ref).Msg("second pitch failed after first was booked; no cancellation made")
		return out.with(KindPartialDualBookingFailed, second.err,
			"Booked first pitch %s (ref %s) but the second pitch failed; the first booking stands", describe(pair[0]), first.conf.Ref)
	}

	total := pair[0].Price.Add(pair[1].Price)
	out.TotalAmount = total
	out.CostPerPlayer = booking.CostPerPlayer(total, out.SignupCount)
	out.ConfirmationRef = first.conf.Ref + "," + second.conf.Ref
	return out.with(KindBooked, nil, "Booked two third pitches %s (refs %s), £%s per player",
		describe(pair[0]), out.ConfirmationRef, out.CostPerPlayer.StringFixed(2))
}

// attempt is one pending-execute-resolve cycle.
type attempt struct {
	row      booking.Booking
	inserted bool
	conf     booking.Confirmation
	executed bool
	// unresolved means the executor was abandoned at its deadline and may
	// still have reserved the slot.
	unresolved bool
	kind       Kind
	err        error
}

// book writes a pending row, runs the executor under its timeout and resolves
// the row. Resolution ignores caller cancellation so a completed reservation is
// always recorded. A row whose executor was abandoned stays pending.
func (o *Orchestrator) book(ctx context.Context, week booking.WeekID, slot booking.Slot, players int, auto bool, log zerolog.Logger) attempt {
	a := attempt{row: booking.NewBooking(week, slot, players, auto)}
	a.row.CreatedAt = o.now()

	id, err := o.ledger.Insert(ctx, a.row)
	if err != nil {
		a.kind, a.err = KindPersistenceError, fmt.Errorf("insert pending booking: %w", err)
		return a
	}
	a.row.ID, a.inserted = id, true
	log = log.With().Int64("booking_id", id).Str("slot", slot.String()).Logger()

	start := time.Now()
	conf, err := bounded.Call(ctx, o.executorTimeout, func(ctx context.Context) (booking.Confirmation, error) {
		return o.executor.Execute(ctx, slot)
	})
	result := "ok"
	if err != nil {
		result = "error"
	}
	telemetry.ExecutorDuration.WithLabelValues(string(slot.Category), result).Observe(time.Since(start).Seconds())

	wctx := context.WithoutCancel(ctx)
	if abandoned(err) {
		log.Error().Err(err).Msg("booking execution abandoned, result unknown; row left pending")
		a.unresolved = true
		a.kind, a.err = KindExecutionFailed, err
		return a
	}
	if err != nil {
		log.Warn().Err(err).Msg("booking execution failed")
		a.row.Status = booking.StatusFailed
		a.kind, a.err = KindExecutionFailed, err
		if rerr := o.ledger.Resolve(wctx, id, booking.StatusFailed, ""); rerr != nil {
			log.Error().Err(rerr).Msg("could not mark booking failed")
		}
		return a
	}

	a.conf, a.executed = conf, true
	a.row.Status = booking.StatusConfirmed
	a.row.ConfirmationRef = conf.Ref
	log.Info().Str("ref", conf.Ref).Msg("slot booked")
	if err := o.ledger.Resolve(wctx, id, booking.StatusConfirmed, conf.Ref); err != nil {
		log.Error().Err(err).Str("ref", conf.Ref).Msg("reservation made but ledger update failed")
		a.kind, a.err = KindPersistenceError, fmt.Errorf("record confirmation %s: %w", conf.Ref, err)
	}
	return a
}

// abandoned reports whether the executor was cut off rather than refused.
func abandoned(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
}

func (o Outcome) record(a attempt) Outcome {
	if a.inserted {
		o.Bookings = append(o.Bookings, a.row)
	}
	if a.unresolved {
		o.Unresolved = true
	}
	if a.executed {
		o.Confirmations = append(o.Confirmations, a.conf)
	}
	return o
}

// finish reports the outcome to metrics, the log and the notifier.
func (o *Orchestrator) finish(ctx context.Context, operation string, out Outcome, log zerolog.Logger) {
	telemetry.OutcomesTotal.WithLabelValues(operation, string(out.Kind)).Inc()

	ev := log.Info()
	if out.Kind != KindBooked && out.Kind != KindNotEnoughPlayers && out.Kind != KindAlreadyBooked && out.Kind != KindConfigDisabled {
		ev = log.Warn().Err(out.Cause)
	}
	ev.Str("kind", string(out.Kind)).Str("operation", operation).Msg(out.Message)

	switch out.Kind {
	case KindConfigDisabled, KindNotEnoughPlayers, KindAlreadyBooked:
		return
	}
	o.notify(ctx, booking.Notice{Message: out.Message, Week: out.Week, Kind: string(out.Kind), At: o.now()}, log)
}

func (o *Orchestrator) notify(ctx context.Context, n booking.Notice, log zerolog.Logger) {
	if o.notifier == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	var err error
	if nn, ok := o.notifier.(booking.NoticeNotifier); ok {
		err = nn.NotifyNotice(ctx, n)
	} else {
		err = o.notifier.Notify(ctx, n.Message)
	}
	if err != nil {
		log.Warn().Err(err).Msg("notification failed")
	}
}

func (o *Orchestrator) today() time.Time { return o.now().In(o.loc) }

func emptyLookup(out Outcome, c booking.Category, l slotcache.Lookup) Outcome {
	if l.Err != nil {
		return out.with(KindProviderUnavailable, l.Err, "Could not read %s availability", c.Label())
	}
	return out.with(KindNoSlotsAvailable, nil, "No %s slots are listed", c.Label())
}

func available(slots []booking.Slot) []booking.Slot {
	out := make([]booking.Slot, 0, len(slots))
	for _, s := range slots {
		if s.Available {
			out = append(out, s)
		}
	}
	return out
}

func describe(s booking.Slot) string {
	return fmt.Sprintf("%s on %s at %s", s.Category.Label(), s.Date.Format("Mon 2 Jan"), s.Time)
}
