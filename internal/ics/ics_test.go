package ics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campuscal/internal/model"
)

var london = mustLoad("Europe/London")

func mustLoad(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}

func sampleEvents() []model.DisplayEvent {
	start := time.Date(2024, 3, 4, 9, 30, 0, 0, time.UTC)
	cost := 5.0
	return []model.DisplayEvent{
		{
			ID:            "evt-1",
			Title:         "Climbing taster",
			StartHour:     9.5,
			DurationHours: 0.5,
			Category:      "Sport",
			Date:          start,
			End:           start.Add(10 * time.Minute),
			Location:      "Sports Centre",
			Description:   "Bring trainers",
			Cost:          &cost,
			Link:          "https://events.example.edu/climb",
		},
		{
			ID:            "evt-2",
			Title:         "Quiz night",
			StartHour:     19,
			DurationHours: 1,
			Category:      "Event",
			Date:          time.Date(2024, 3, 5, 19, 0, 0, 0, london),
			End:           time.Date(2024, 3, 5, 20, 0, 0, 0, london),
		},
	}
}

func TestExportTwoEvents(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	events := sampleEvents()
	doc := Export(events, now)

	assert.Equal(t, 2, strings.Count(doc, "BEGIN:VEVENT"))
	assert.Equal(t, 2, strings.Count(doc, "END:VEVENT"))
	assert.True(t, strings.HasPrefix(doc, "BEGIN:VCALENDAR\r\n"))
	assert.Contains(t, doc, "\r\nEND:VCALENDAR\r\n")

	cal, err := ical.ParseCalendar(strings.NewReader(doc))
	require.NoError(t, err)
	vevents := cal.Events()
	require.Len(t, vevents, 2)

	for i, ve := range vevents {
		start, err := ve.GetStartAt()
		require.NoError(t, err)
		assert.True(t, start.Equal(events[i].Date), "DTSTART of %s", events[i].ID)
		assert.Equal(t, events[i].Date.UTC().Format("20060102T150405Z"), ve.GetProperty(ical.ComponentPropertyDtStart).Value)

		end, err := ve.GetEndAt()
		require.NoError(t, err)
		assert.True(t, end.Equal(events[i].End), "DTEND of %s", events[i].ID)

		assert.Equal(t, "20240301T120000Z", ve.GetProperty(ical.ComponentPropertyDtstamp).Value)
		assert.Equal(t, events[i].Title, ve.GetProperty(ical.ComponentPropertySummary).Value)
	}

	first := vevents[0]
	assert.Equal(t, "evt-1@campuscal", first.Id())
	assert.Equal(t, "Sports Centre", first.GetProperty(ical.ComponentPropertyLocation).Value)
	assert.Equal(t, "Bring trainers", first.GetProperty(ical.ComponentPropertyDescription).Value)
	assert.Equal(t, "https://events.example.edu/climb", first.GetProperty(ical.ComponentPropertyUrl).Value)
	assert.Equal(t, "Sport", first.GetProperty(ical.ComponentPropertyCategories).Value)

	second := vevents[1]
	assert.Nil(t, second.GetProperty(ical.ComponentPropertyLocation))
	assert.Nil(t, second.GetProperty(ical.ComponentPropertyDescription))
	assert.Nil(t, second.GetProperty(ical.ComponentPropertyUrl))
	assert.Nil(t, second.GetProperty(ical.ComponentPropertyCategories))
}

func TestExportUsesUnflooredEnd(t *testing.T) {
	doc := Export(sampleEvents()[:1], time.Now())
	assert.Contains(t, doc, "DTEND:20240304T094000Z")
	assert.Regexp(t, regexp.MustCompile(`DTSTAMP:\d{8}T\d{6}Z`), doc)
}

func TestExportKeepsEndBeforeStart(t *testing.T) {
	ev := model.DisplayEvent{
		ID:    "backwards",
		Title: "Backwards",
		Date:  time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 3, 4, 8, 0, 0, 0, time.UTC),
	}
	doc := Export([]model.DisplayEvent{ev}, time.Now())
	assert.Contains(t, doc, "DTSTART:20240304T090000Z")
	assert.Contains(t, doc, "DTEND:20240304T080000Z")

	ev.End = time.Time{}
	doc = Export([]model.DisplayEvent{ev}, time.Now())
	assert.Contains(t, doc, "DTEND:20240304T100000Z")
}

func TestExportEmpty(t *testing.T) {
	doc := Export(nil, time.Now())
	assert.NotContains(t, doc, "BEGIN:VEVENT")
	assert.Contains(t, doc, "BEGIN:VCALENDAR")
}

const personalICS = "BEGIN:VCALENDAR\r\n" +
	"VERSION:2.0\r\n" +
	"PRODID:-//test//EN\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:lecture-1\r\n" +
	"SUMMARY:Algorithms\r\n" +
	"LOCATION:Room 101\r\n" +
	"DTSTART;TZID=Europe/London:20240304T100000\r\n" +
	"DTEND;TZID=Europe/London:20240304T120000\r\n" +
	"RRULE:FREQ=WEEKLY;COUNT=4\r\n" +
	"EXDATE;TZID=Europe/London:20240311T100000\r\n" +
	"END:VEVENT\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:lecture-1\r\n" +
	"RECURRENCE-ID;TZID=Europe/London:20240318T100000\r\n" +
	"SUMMARY:Algorithms (moved)\r\n" +
	"DTSTART;TZID=Europe/London:20240318T140000\r\n" +
	"DTEND;TZID=Europe/London:20240318T160000\r\n" +
	"END:VEVENT\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:reading-week\r\n" +
	"SUMMARY:Reading week\r\n" +
	"DTSTART;VALUE=DATE:20240305\r\n" +
	"END:VEVENT\r\n" +
	"BEGIN:VEVENT\r\n" +
	"SUMMARY:No uid\r\n" +
	"DTSTART:20240305T100000Z\r\n" +
	"END:VEVENT\r\n" +
	"END:VCALENDAR\r\n"

func TestParseICS(t *testing.T) {
	src := Source{ID: "personal", URL: "https://cal.example.edu/me.ics"}
	events, err := ParseICS(src, []byte(personalICS), london)
	require.NoError(t, err)
	require.Len(t, events, 3)

	base := events[0]
	assert.Equal(t, "lecture-1", base.UID)
	assert.Equal(t, "Room 101", base.Location)
	assert.Equal(t, "FREQ=WEEKLY;COUNT=4", base.RawRRule)
	assert.Equal(t, 10, base.Start.Hour())
	assert.Equal(t, 2*time.Hour, base.End.Sub(base.Start))
	require.Len(t, base.ExDates, 1)
	assert.False(t, base.IsOverride)

	override := events[1]
	assert.True(t, override.IsOverride)
	require.NotNil(t, override.Recurrence)

	allDay := events[2]
	assert.True(t, allDay.AllDay)
	assert.Equal(t, 24*time.Hour, allDay.End.Sub(allDay.Start))
}

func TestParseICSEmpty(t *testing.T) {
	_, err := ParseICS(Source{}, nil, nil)
	assert.Error(t, err)
}

func TestExpandOccurrences(t *testing.T) {
	events, err := ParseICS(Source{ID: "personal"}, []byte(personalICS), london)
	require.NoError(t, err)

	res, err := ExpandOccurrences(events, ExpandConfig{
		DisplayLocation: london,
		RangeStart:      time.Date(2024, 3, 1, 0, 0, 0, 0, london),
		RangeEnd:        time.Date(2024, 4, 1, 0, 0, 0, 0, london),
	})
	require.NoError(t, err)

	var starts []string
	for _, o := range res.Occurrences {
		starts = append(starts, o.Start.Format("01-02 15:04")+" "+o.Summary)
	}
	assert.Equal(t, []string{
		"03-04 10:00 Algorithms",
		"03-05 00:00 Reading week",
		"03-18 14:00 Algorithms (moved)",
		"03-25 10:00 Algorithms",
	}, starts)
	assert.Empty(t, res.TruncatedEvents)
}

func TestExpandOccurrencesCapAndRange(t *testing.T) {
	start := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	ev := ParsedEvent{UID: "daily", Start: start, End: start.Add(time.Hour), RawRRule: "FREQ=DAILY"}

	res, err := ExpandOccurrences([]ParsedEvent{ev}, ExpandConfig{
		DisplayLocation:        time.UTC,
		RangeStart:             start,
		RangeEnd:               start.AddDate(0, 0, 30),
		MaxOccurrencesPerEvent: 3,
	})
	require.NoError(t, err)
	assert.Len(t, res.Occurrences, 3)
	assert.Equal(t, []string{"daily"}, res.TruncatedEvents)

	_, err = ExpandOccurrences(nil, ExpandConfig{RangeStart: start, RangeEnd: start.Add(-time.Hour)})
	assert.Error(t, err)
}

func at(h, m int) time.Time {
	return time.Date(2024, 3, 4, h, m, 0, 0, time.UTC)
}

func TestBusyMergesIntervals(t *testing.T) {
	busy := Busy([]model.Occurrence{
		{Start: at(13, 0), End: at(14, 0)},
		{Start: at(9, 0), End: at(10, 0)},
		{Start: at(9, 30), End: at(11, 0)},
		{Start: at(11, 0), End: at(12, 0)},
		{Start: at(0, 0), End: at(0, 0).AddDate(0, 0, 1), AllDay: true},
		{Start: at(15, 0), End: at(15, 0)},
	})
	assert.Equal(t, []Interval{
		{Start: at(9, 0), End: at(12, 0)},
		{Start: at(13, 0), End: at(14, 0)},
	}, busy)

	assert.Nil(t, Busy(nil))
}

func TestMarkClashes(t *testing.T) {
	busy := []Interval{
		{Start: at(9, 0), End: at(12, 0)},
		{Start: at(13, 0), End: at(14, 0)},
	}
	events := []model.DisplayEvent{
		{ID: "before", Date: at(8, 0), End: at(9, 0)},
		{ID: "inside", Date: at(10, 0), End: at(10, 30)},
		{ID: "gap", Date: at(12, 0), End: at(13, 0)},
		{ID: "straddle", Date: at(12, 30), End: at(13, 30)},
		{ID: "after", Date: at(14, 0), End: at(15, 0)},
	}

	n := MarkClashes(events, busy)
	assert.Equal(t, 2, n)

	var clashing []string
	for _, e := range events {
		if e.Clash {
			clashing = append(clashing, e.ID)
		}
	}
	assert.Equal(t, []string{"inside", "straddle"}, clashing)

	assert.Zero(t, MarkClashes(events[:1], nil))
}

func TestMarkOverlaps(t *testing.T) {
	events := []model.DisplayEvent{
		{ID: "c", Date: at(11, 30), End: at(12, 30)},
		{ID: "a", Date: at(9, 0), End: at(12, 0)},
		{ID: "b", Date: at(10, 0), End: at(11, 0)},
		{ID: "d", Date: at(13, 0), End: at(14, 0)},
		{ID: "e", Date: at(14, 0), End: at(15, 0)},
	}
	assert.Equal(t, 3, MarkOverlaps(events))
	assert.True(t, events[0].Clash)
	assert.True(t, events[1].Clash)
	assert.True(t, events[2].Clash)
	assert.False(t, events[3].Clash)
	assert.False(t, events[4].Clash)
}

func TestFetcherCachesAndFallsBack(t *testing.T) {
	var hits atomic.Int32
	var fail atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if fail.Load() {
			http.Error(w, "down", http.StatusServiceUnavailable)
			return
		}
		if r.Header.Get("If-None-Match") == `"v1"` {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"v1"`)
		_, _ = io.WriteString(w, personalICS)
	}))
	defer srv.Close()

	f := NewFetcher(t.TempDir(), time.Second)
	src := Source{ID: "personal", URL: srv.URL + "/me.ics?token=x"}

	res, err := f.Fetch(context.Background(), src)
	require.NoError(t, err)
	assert.False(t, res.FromCache)
	assert.Equal(t, personalICS, string(res.Body))

	res, err = f.Fetch(context.Background(), src)
	require.NoError(t, err)
	assert.True(t, res.FromCache)
	assert.Equal(t, personalICS, string(res.Body))

	fail.Store(true)
	res, err = f.Fetch(context.Background(), src)
	require.NoError(t, err)
	assert.True(t, res.FromCache)
	assert.Equal(t, int32(3), hits.Load())

	_, err = f.Fetch(context.Background(), Source{ID: "other", URL: srv.URL + "/other.ics"})
	assert.Error(t, err)

	_, err = f.Fetch(context.Background(), Source{})
	assert.Error(t, err)
}
