package merky

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/example/pitch-scheduler/internal/domain/booking"
)

var dateLayouts = []string{
	"2006-01-02",
	"02/01/2006",
	"2/1/2006",
	"Mon 2 Jan 2006",
	"Monday 2 January 2006",
	"2 Jan 2006",
	"2 January 2006",
	"Mon, 2 Jan 2006",
	"Monday, 2 January 2006",
}

// parseDate reads the date text shown on a slot card as a calendar date in loc.
func parseDate(s string, loc *time.Location) (time.Time, error) {
	s = strings.Join(strings.Fields(s), " ")
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised date %q", s)
}

// parseClock accepts "19:00", "7pm", "7:30 PM" and similar.
func parseClock(s string) (booking.TimeOfDay, error) {
	v := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(s), " ", ""))
	var pm, am bool
	switch {
	case strings.HasSuffix(v, "pm"):
		pm, v = true, strings.TrimSuffix(v, "pm")
	case strings.HasSuffix(v, "am"):
		am, v = true, strings.TrimSuffix(v, "am")
	}
	if !pm && !am {
		return booking.ParseTimeOfDay(v)
	}
	if !strings.Contains(v, ":") {
		v += ":00"
	}
	t, err := booking.ParseTimeOfDay(v)
	if err != nil {
		return t, fmt.Errorf("unrecognised time %q", s)
	}
	if t.Hour < 1 || t.Hour > 12 {
		return t, fmt.Errorf("unrecognised time %q", s)
	}
	if pm && t.Hour != 12 {
		t.Hour += 12
	}
	if am && t.Hour == 12 {
		t.Hour = 0
	}
	return t, nil
}

// parsePrice strips the currency symbol and thousands separators.
func parsePrice(s string) (decimal.Decimal, error) {
	v := strings.TrimSpace(s)
	v = strings.TrimPrefix(v, "£")
	v = strings.ReplaceAll(v, ",", "")
	v = strings.TrimSpace(v)
	if v == "" {
		return decimal.Zero, fmt.Errorf("empty price")
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Zero, fmt.Errorf("unrecognised price %q", s)
	}
	return d, nil
}

func parseSlot(dateText, timeText, priceText string, c booking.Category, loc *time.Location) (booking.Slot, error) {
	d, err := parseDate(dateText, loc)
	if err != nil {
		return booking.Slot{}, err
	}
	t, err := parseClock(timeText)
	if err != nil {
		return booking.Slot{}, err
	}
	p, err := parsePrice(priceText)
	if err != nil {
		return booking.Slot{}, err
	}
	return booking.Slot{Date: d, Time: t, Category: c, Price: p, Available: true}, nil
}

// confirmationFallback is used when the site accepts a booking but shows no
// reference we can read.
func confirmationFallback(now time.Time) string {
	return "MERKY-" + now.Format("20060102150405")
}
