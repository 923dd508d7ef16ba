package transform

import (
	"slices"
	"time"

	"campuscal/internal/model"
)

// DayGroup is one heading of the list view.
type DayGroup struct {
	Date    time.Time            `json:"date"`
	Heading string               `json:"heading"`
	Weekday string               `json:"weekday"`
	Events  []model.DisplayEvent `json:"events"`
}

// GroupByDate buckets events by calendar day of their start instant.
// Groups come out in date order and events keep their relative order.
func GroupByDate(events []model.DisplayEvent) []DayGroup {
	groups := make([]DayGroup, 0)
	index := make(map[string]int)

	for _, ev := range events {
		d := ev.Date
		key := d.Format("2006-01-02")
		i, ok := index[key]
		if !ok {
			i = len(groups)
			index[key] = i
			groups = append(groups, DayGroup{
				Date:    time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, d.Location()),
				Heading: d.Format("Jan 2"),
				Weekday: d.Weekday().String(),
			})
		}
		groups[i].Events = append(groups[i].Events, ev)
	}

	// Input is usually sorted already; keep the guarantee for callers that
	// filter or merge lists.
	slices.SortStableFunc(groups, func(a, b DayGroup) int {
		return a.Date.Compare(b.Date)
	})
	return groups
}
