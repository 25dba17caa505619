package booking

import (
	"fmt"
	"strconv"
	"time"
)

// WeekID is an ISO year-week key such as "2025-W03". The zero-padded week keeps
// keys lexicographically sortable.
type WeekID string

// WeekOf returns the ISO week containing t.
func WeekOf(t time.Time) WeekID {
	y, w := t.ISOWeek()
	return WeekID(fmt.Sprintf("%04d-W%02d", y, w))
}

// ParseWeekID validates s and returns it in canonical form. The week must exist
// in its ISO year, so "2025-W53" is rejected while "2026-W53" is not.
func ParseWeekID(s string) (WeekID, error) {
	if len(s) != 8 || s[4] != '-' || s[5] != 'W' || !digits(s[0:4]) || !digits(s[6:8]) {
		return "", fmt.Errorf("invalid week %q (want YYYY-Www)", s)
	}
	y, _ := strconv.Atoi(s[0:4])
	w, _ := strconv.Atoi(s[6:8])
	if w < 1 || w > lastISOWeek(y) {
		return "", fmt.Errorf("invalid week number in %q", s)
	}
	return WeekID(fmt.Sprintf("%04d-W%02d", y, w)), nil
}

// lastISOWeek is 52 or 53. 28 December always falls in the year's last week.
func lastISOWeek(year int) int {
	_, w := time.Date(year, 12, 28, 12, 0, 0, 0, time.UTC).ISOWeek()
	return w
}

func digits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

func (w WeekID) String() string { return string(w) }
