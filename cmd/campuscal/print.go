package main

import (
	"fmt"
	"io"

	"campuscal/internal/calendar"
	"campuscal/internal/model"
	"campuscal/internal/transform"
)

func printMessages(w io.Writer, v calendar.View) {
	if v.Warning != "" {
		fmt.Fprintln(w, "warning:", v.Warning)
	}
	if v.Error != "" {
		fmt.Fprintln(w, "error:", v.Error)
	}
	if v.Status != "" {
		fmt.Fprintln(w, v.Status)
	}
}

func printList(w io.Writer, v calendar.ListView) {
	printMessages(w, v.View)
	for _, g := range v.Groups {
		fmt.Fprintf(w, "\n%s, %s\n", g.Weekday, g.Heading)
		for _, ev := range g.Events {
			printEvent(w, ev, transform.ListDescriptionLimit)
		}
	}
}

func printWeek(w io.Writer, v calendar.WeekView) {
	printMessages(w, v.View)
	for _, d := range v.Days {
		if len(d.Cells) == 0 {
			continue
		}
		fmt.Fprintf(w, "\n%s\n", d.Name)
		for _, c := range d.Cells {
			fmt.Fprintf(w, "  [row %d +%d] ", c.Row, c.Span)
			printEvent(w, c.Event, transform.GridDescriptionLimit)
		}
	}
}

func printEvent(w io.Writer, ev model.DisplayEvent, descLimit int) {
	clash := ""
	if ev.Clash {
		clash = " (clash)"
	}
	fmt.Fprintf(w, "  %s  %s [%s]%s\n",
		transform.TimeRangeLabel(ev.StartHour, ev.DurationHours),
		ev.Title,
		ev.Category,
		clash,
	)
	if ev.Location != "" {
		fmt.Fprintf(w, "      at %s\n", ev.Location)
	}
	if cost := transform.CostLabel(ev.Cost); cost != "" {
		fmt.Fprintf(w, "      %s\n", cost)
	}
	if ev.Description != "" {
		fmt.Fprintf(w, "      %s\n", transform.Truncate(ev.Description, descLimit))
	}
	fmt.Fprintf(w, "      id: %s\n", ev.ID)
}

// selectEvents keeps the events whose id is listed, or all of them when
// ids is empty.
func selectEvents(events []model.DisplayEvent, ids string) []model.DisplayEvent {
	want := splitIDs(ids)
	if len(want) == 0 {
		return events
	}
	out := make([]model.DisplayEvent, 0, len(want))
	for _, ev := range events {
		if _, ok := want[ev.ID]; ok {
			out = append(out, ev)
		}
	}
	return out
}
