package booking

import (
	"context"
	"time"
)

// SlotProvider reads live availability for one category from the booking site.
type SlotProvider interface {
	FetchSlots(ctx context.Context, category Category) ([]Slot, error)
}

// Executor performs one physical reservation on the booking site.
type Executor interface {
	Execute(ctx context.Context, slot Slot) (Confirmation, error)
}

// Ledger persists bookings and guards the one-booking-per-week rule.
//
// Reserve must be atomic: of any number of concurrent callers for the same week
// exactly one gets true until Release is called.
type Ledger interface {
	Exists(ctx context.Context, week WeekID) (bool, error)
	Reserve(ctx context.Context, week WeekID) (bool, error)
	Release(ctx context.Context, week WeekID) error
	Insert(ctx context.Context, b Booking) (int64, error)
	Resolve(ctx context.Context, id int64, status Status, ref string) error
	ListByWeek(ctx context.Context, week WeekID) ([]Booking, error)
}

// SignupSource counts the players signed up for a week.
type SignupSource interface {
	Count(ctx context.Context, week WeekID) (int, error)
}

// Notifier receives human-readable status lines. Delivery is best effort.
type Notifier interface {
	Notify(ctx context.Context, message string) error
}

// Notice is a status line with the context it was produced in.
type Notice struct {
	Message string    `json:"message"`
	Week    WeekID    `json:"week"`
	Kind    string    `json:"kind"`
	At      time.Time `json:"at"`
}

// NoticeNotifier is implemented by sinks that can carry more than the message.
// The orchestrator prefers it over Notify when available.
type NoticeNotifier interface {
	Notifier
	NotifyNotice(ctx context.Context, n Notice) error
}
