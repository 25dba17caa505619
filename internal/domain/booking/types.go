package booking

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Category is the pitch size offered by the booking site.
type Category string

const (
	CategoryHalf  Category = "half"
	CategoryFull  Category = "full"
	CategoryThird Category = "third"
)

// ParseCategory accepts the short names and the "<name>_pitch" forms.
func ParseCategory(s string) (Category, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	v = strings.TrimSuffix(v, "_pitch")
	switch Category(v) {
	case CategoryHalf, CategoryFull, CategoryThird:
		return Category(v), nil
	}
	return "", fmt.Errorf("unknown pitch category %q", s)
}

func (c Category) String() string { return string(c) }

// Label is the wording the booking site uses in its pitch filter.
func (c Category) Label() string { return string(c) + " pitch" }

// DefaultPrice is what an operator-synthesized slot costs when the real price is unknown.
func DefaultPrice(c Category) decimal.Decimal {
	if c == CategoryHalf {
		return decimal.NewFromInt(80)
	}
	return decimal.NewFromInt(150)
}

// TimeOfDay is a wall-clock time in the venue's zone.
type TimeOfDay struct {
	Hour   int
	Minute int
}

// ParseTimeOfDay parses "HH:MM" (a trailing ":SS" is tolerated and dropped).
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return TimeOfDay{}, fmt.Errorf("invalid time %q (want HH:MM)", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return TimeOfDay{}, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return TimeOfDay{}, fmt.Errorf("invalid minute in %q", s)
	}
	return TimeOfDay{Hour: h, Minute: m}, nil
}

func (t TimeOfDay) String() string { return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute) }

func (t TimeOfDay) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

func (t *TimeOfDay) UnmarshalText(b []byte) error {
	v, err := ParseTimeOfDay(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// Slot is one bookable date/time/category combination seen on the booking site.
type Slot struct {
	Date      time.Time       `json:"date"`
	Time      TimeOfDay       `json:"time"`
	Category  Category        `json:"category"`
	Price     decimal.Decimal `json:"price"`
	Available bool            `json:"available"`
}

// Key identifies the (date, time) a slot starts at.
func (s Slot) Key() string { return s.Date.Format("2006-01-02") + " " + s.Time.String() }

func (s Slot) String() string { return s.Key() + " " + s.Category.Label() }

// Status of a persisted booking row.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusFailed    Status = "failed"
)

// Booking is one physical reservation row. A dual-third booking writes two of them.
type Booking struct {
	ID              int64           `json:"id"`
	Week            WeekID          `json:"week"`
	Date            time.Time       `json:"date"`
	Time            TimeOfDay       `json:"time"`
	Category        Category        `json:"category"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	CostPerPlayer   decimal.Decimal `json:"cost_per_player"`
	PlayerCount     int             `json:"player_count"`
	AutoBooked      bool            `json:"auto_booked"`
	ConfirmationRef string          `json:"confirmation_ref,omitempty"`
	Status          Status          `json:"status"`
	CreatedAt       time.Time       `json:"created_at"`
}

// NewBooking builds a pending row for slot with the per-player cost filled in.
func NewBooking(week WeekID, slot Slot, playerCount int, auto bool) Booking {
	return Booking{
		Week:          week,
		Date:          slot.Date,
		Time:          slot.Time,
		Category:      slot.Category,
		TotalAmount:   slot.Price,
		CostPerPlayer: CostPerPlayer(slot.Price, playerCount),
		PlayerCount:   playerCount,
		AutoBooked:    auto,
		Status:        StatusPending,
	}
}

// Confirmation is what the booking site hands back for a completed reservation.
type Confirmation struct {
	Ref       string    `json:"ref"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}
