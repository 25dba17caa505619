package booking

import (
	"sort"
	"time"
)

// NextWeekRange returns the Monday and Sunday of the calendar week after today,
// both at midnight in today's location.
func NextWeekRange(today time.Time) (time.Time, time.Time) {
	y, m, d := today.Date()
	day := time.Date(y, m, d, 0, 0, 0, 0, today.Location())
	// Monday == 0
	idx := (int(day.Weekday()) + 6) % 7
	start := day.AddDate(0, 0, 7-idx)
	return start, start.AddDate(0, 0, 6)
}

// SelectBest picks the slot in next week closest to the preferred hour.
// Ties keep provider order. When nothing falls in next week the first slot is
// returned as is. The bool is false only for an empty input.
func SelectBest(slots []Slot, preferred TimeOfDay, today time.Time) (Slot, bool) {
	if len(slots) == 0 {
		return Slot{}, false
	}
	start, end := NextWeekRange(today)

	var candidates []Slot
	for _, s := range slots {
		d := dateIn(s.Date, today.Location())
		if !d.Before(start) && !d.After(end) {
			candidates = append(candidates, s)
		}
	}
	if len(candidates) == 0 {
		return slots[0], true
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return hourDistance(candidates[i].Time, preferred) < hourDistance(candidates[j].Time, preferred)
	})
	return candidates[0], true
}

// PairThirds groups third-pitch slots sharing a (date, time) in order of first
// appearance and returns the first two slots of every group with at least two.
func PairThirds(slots []Slot) [][2]Slot {
	groups := make(map[string][]Slot)
	var order []string
	for _, s := range slots {
		if s.Category != CategoryThird {
			continue
		}
		k := s.Key()
		if _, ok := groups[k]; !ok {
			order = append(order, k)
		}
		groups[k] = append(groups[k], s)
	}

	var out [][2]Slot
	for _, k := range order {
		g := groups[k]
		if len(g) < 2 {
			continue
		}
		out = append(out, [2]Slot{g[0], g[1]})
	}
	return out
}

// RankPairs orders pairs by distance to the preferred hour, keeping discovery
// order on ties.
func RankPairs(pairs [][2]Slot, preferred TimeOfDay) [][2]Slot {
	out := make([][2]Slot, len(pairs))
	copy(out, pairs)
	sort.SliceStable(out, func(i, j int) bool {
		return hourDistance(out[i][0].Time, preferred) < hourDistance(out[j][0].Time, preferred)
	})
	return out
}

func hourDistance(t, preferred TimeOfDay) int {
	d := t.Hour - preferred.Hour
	if d < 0 {
		return -d
	}
	return d
}

func dateIn(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}
