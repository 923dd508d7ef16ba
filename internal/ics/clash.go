package ics

import (
	"slices"
	"time"

	"campuscal/internal/model"
)

// Interval is a half-open busy block [Start, End).
type Interval struct {
	Start time.Time
	End   time.Time
}

func (iv Interval) overlaps(start, end time.Time) bool {
	return start.Before(iv.End) && iv.Start.Before(end)
}

// Busy merges the occurrences into sorted, non-overlapping intervals.
// All-day occurrences are ignored; a holiday or deadline marker does not
// make the student unavailable. Touching intervals are merged.
func Busy(occ []model.Occurrence) []Interval {
	ivs := make([]Interval, 0, len(occ))
	for _, o := range occ {
		if o.AllDay || !o.End.After(o.Start) {
			continue
		}
		ivs = append(ivs, Interval{Start: o.Start, End: o.End})
	}
	return mergeIntervals(ivs)
}

func mergeIntervals(ivs []Interval) []Interval {
	if len(ivs) == 0 {
		return nil
	}
	slices.SortFunc(ivs, func(a, b Interval) int {
		return a.Start.Compare(b.Start)
	})

	merged := []Interval{ivs[0]}
	for _, iv := range ivs[1:] {
		last := &merged[len(merged)-1]
		if !iv.Start.After(last.End) {
			if iv.End.After(last.End) {
				last.End = iv.End
			}
			continue
		}
		merged = append(merged, iv)
	}
	return merged
}

// MarkClashes sets Clash on every event overlapping a busy interval and
// returns how many were marked. busy must be sorted, as Busy returns it.
func MarkClashes(events []model.DisplayEvent, busy []Interval) int {
	marked := 0
	for i := range events {
		start, end := events[i].Date, events[i].End
		// First interval ending after the event starts.
		j, _ := slices.BinarySearchFunc(busy, start, func(iv Interval, t time.Time) int {
			if iv.End.After(t) {
				return 1
			}
			return -1
		})
		if j < len(busy) && busy[j].overlaps(start, end) {
			events[i].Clash = true
			marked++
		}
	}
	return marked
}

// MarkOverlaps sets Clash on events that overlap another event of the same
// list, the double bookings of a personal timetable. It returns how many
// were marked.
func MarkOverlaps(events []model.DisplayEvent) int {
	idx := make([]int, len(events))
	for i := range idx {
		idx[i] = i
	}
	slices.SortStableFunc(idx, func(a, b int) int {
		return events[a].Date.Compare(events[b].Date)
	})

	marked := 0
	mark := func(i int) {
		if !events[i].Clash {
			events[i].Clash = true
			marked++
		}
	}

	// Track the running event that ends last.
	latest := -1
	for _, i := range idx {
		if latest >= 0 && events[i].Date.Before(events[latest].End) {
			mark(i)
			mark(latest)
		}
		if latest < 0 || events[i].End.After(events[latest].End) {
			latest = i
		}
	}
	return marked
}
