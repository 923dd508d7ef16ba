package ics

import (
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	"campuscal/internal/model"
	"campuscal/internal/transform"
)

const (
	exportProduct  = "campuscal"
	exportCalName  = "Campus events"
	exportUIDHost  = "campuscal"
	ExportFileName = "campus-events.ics"
	ContentType    = "text/calendar; charset=utf-8"
)

// Export renders the selected events as an iCalendar document with one
// VEVENT per event. DTEND comes from the resolved end instant, not from
// the floored display duration. Lines end in CRLF.
func Export(events []model.DisplayEvent, now time.Time) string {
	cal := ical.NewCalendarFor(exportProduct)
	cal.SetMethod(ical.MethodPublish)
	cal.SetXWRCalName(exportCalName)

	for _, ev := range events {
		ve := cal.AddEvent(exportUID(ev.ID))
		ve.SetDtStampTime(now)
		ve.SetStartAt(ev.Date)
		ve.SetEndAt(exportEnd(ev))
		ve.SetSummary(ev.Title)
		if ev.Description != "" {
			ve.SetDescription(ev.Description)
		}
		if ev.Location != "" {
			ve.SetLocation(ev.Location)
		}
		if ev.Link != "" {
			ve.SetURL(ev.Link)
		}
		if ev.Category != "" && ev.Category != transform.PlaceholderCategory {
			ve.AddCategory(ev.Category)
		}
	}

	return cal.Serialize(ical.WithNewLineWindows)
}

func exportUID(id string) string {
	if strings.Contains(id, "@") {
		return id
	}
	return id + "@" + exportUIDHost
}

// exportEnd fills in a zero End on hand-built selections. Any other End,
// including one before the start, is exported unchanged.
func exportEnd(ev model.DisplayEvent) time.Time {
	if ev.End.IsZero() {
		return ev.Date.Add(transform.DefaultDuration)
	}
	return ev.End
}
