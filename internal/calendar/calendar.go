// Package calendar builds the list and week views from the events API and
// the remembered personal calendar.
package calendar

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"campuscal/internal/api"
	"campuscal/internal/clock"
	"campuscal/internal/ics"
	appLog "campuscal/internal/log"
	"campuscal/internal/model"
	"campuscal/internal/store"
	"campuscal/internal/transform"
)

const (
	defaultHorizonDays = 30

	// MsgNoEvents is shown for an empty result.
	MsgNoEvents = "No events found"
	// MsgNoCalendar asks the student to link or upload a calendar.
	MsgNoCalendar = "No calendar provided. Link or upload one to see your week."
	// MsgCorruptCalendar replaces a stored upload that no longer decodes.
	MsgCorruptCalendar = "Failed to parse stored calendar data."

	personalSourceID = "personal"
)

// EventsAPI is the part of api.Client the views need.
type EventsAPI interface {
	Events(ctx context.Context, q api.Query) ([]model.RawEvent, error)
	UploadICS(ctx context.Context, fileName string, r io.Reader) ([]model.RawEvent, error)
}

// PersonalFetcher downloads the student's own ICS feed for clash marking.
type PersonalFetcher interface {
	Fetch(ctx context.Context, src ics.Source) (ics.FetchResult, error)
}

// Options configures a Service. Zero values pick defaults.
type Options struct {
	Location    *time.Location
	HorizonDays int
	// Fetcher enables clash marking against the linked calendar. Nil
	// disables it.
	Fetcher PersonalFetcher
	Clock   clock.Clock
	NewID   func() string
}

// Service produces views. Each call builds its own result; nothing is
// shared between calls except the remembered source.
type Service struct {
	api     EventsAPI
	sources *store.Sources
	fetcher PersonalFetcher
	clock   clock.Clock
	loc     *time.Location
	horizon int
	newID   func() string
}

func NewService(events EventsAPI, sources *store.Sources, opts Options) *Service {
	s := &Service{
		api:     events,
		sources: sources,
		fetcher: opts.Fetcher,
		clock:   opts.Clock,
		loc:     opts.Location,
		horizon: opts.HorizonDays,
		newID:   opts.NewID,
	}
	if s.clock == nil {
		s.clock = clock.SystemClock{}
	}
	if s.loc == nil {
		s.loc = time.Local
	}
	if s.horizon <= 0 {
		s.horizon = defaultHorizonDays
	}
	return s
}

// Location is the display location views are rendered in.
func (s *Service) Location() *time.Location {
	return s.loc
}

// View carries the outcome messages shared by every view. Warning reports
// a transport failure, Error a malformed response or corrupt stored data.
type View struct {
	Status      string       `json:"status,omitempty"`
	Warning     string       `json:"warning,omitempty"`
	Error       string       `json:"error,omitempty"`
	Empty       bool         `json:"empty"`
	Source      store.Source `json:"source"`
	Clashes     int          `json:"clashes"`
	GeneratedAt time.Time    `json:"generatedAt"`
}

// ListView is the upcoming campus events grouped by day.
type ListView struct {
	View
	Events []model.DisplayEvent `json:"events"`
	Groups []transform.DayGroup `json:"groups"`
}

// WeekView is the student's calendar laid out on the weekday grid.
type WeekView struct {
	View
	Events []model.DisplayEvent `json:"events"`
	Days   []transform.GridDay  `json:"days"`
}

func (s *Service) transformOpts() transform.Options {
	return transform.Options{Location: s.loc, NewID: s.newID}
}

// List fetches events for [now, now+horizon), merging the linked calendar
// when one is remembered, and marks events clashing with it. The view is
// always usable; the error tells the caller which failure was surfaced.
func (s *Service) List(ctx context.Context) (ListView, error) {
	now := s.clock.Now().In(s.loc)
	view := ListView{
		View:   View{GeneratedAt: now},
		Events: []model.DisplayEvent{},
		Groups: []transform.DayGroup{},
	}

	icsURL, err := s.sources.ICSURL()
	if err != nil {
		return view, s.fail(&view.View, err)
	}
	if icsURL != "" {
		view.Source = store.Source{Kind: store.SourceURL, URL: icsURL}
	}

	end := now.AddDate(0, 0, s.horizon)
	raw, err := s.api.Events(ctx, api.Query{Start: now, End: end, ICSURL: icsURL})
	if err != nil {
		return view, s.fail(&view.View, err)
	}

	view.Events = transform.Transform(raw, s.transformOpts())
	if len(view.Events) == 0 {
		view.Empty = true
		view.Status = MsgNoEvents
		return view, nil
	}

	if icsURL != "" {
		view.Clashes = s.markClashes(ctx, view.Events, icsURL, now, end)
	}
	view.Groups = transform.GroupByDate(view.Events)
	view.Status = fmt.Sprintf("Showing %d events", len(view.Events))
	return view, nil
}

// Week renders the remembered calendar: the uploaded file when there is
// one, otherwise the linked calendar fetched through the API. Double
// bookings are marked.
func (s *Service) Week(ctx context.Context) (WeekView, error) {
	now := s.clock.Now().In(s.loc)
	view := WeekView{
		View:   View{GeneratedAt: now},
		Events: []model.DisplayEvent{},
		Days:   transform.WeekGrid(nil),
	}

	cur, err := s.sources.Current()
	view.Source = cur
	if err != nil {
		if errors.Is(err, store.ErrCorruptEvents) {
			view.Error = MsgCorruptCalendar
			view.Status = MsgNoCalendar
			view.Empty = true
			return view, err
		}
		return view, s.fail(&view.View, err)
	}

	var raw []model.RawEvent
	switch cur.Kind {
	case store.SourceUpload:
		name := cur.FileName
		if name == "" {
			name = "Unknown file"
		}
		view.Status = "Displaying calendar file: " + name
		raw = cur.Events
	case store.SourceURL:
		raw, err = s.api.Events(ctx, api.Query{Start: now, ICSURL: cur.URL})
		if err != nil {
			return view, s.fail(&view.View, err)
		}
		view.Status = fmt.Sprintf("Displaying %d events from: %s", len(raw), cur.URL)
	default:
		view.Status = MsgNoCalendar
		view.Empty = true
		return view, nil
	}

	view.Events = transform.Transform(raw, s.transformOpts())
	if len(view.Events) == 0 {
		view.Empty = true
		view.Status = MsgNoEvents
		return view, nil
	}
	view.Clashes = ics.MarkOverlaps(view.Events)
	view.Days = transform.WeekGrid(view.Events)
	return view, nil
}

// LinkResult reports what a newly linked or uploaded calendar contained.
type LinkResult struct {
	Status string       `json:"status"`
	Count  int          `json:"count"`
	Source store.Source `json:"source"`
}

// LinkURL validates and remembers an ICS link, then fetches it once so
// the student sees how many events it holds. The link stays remembered
// even when that fetch fails.
func (s *Service) LinkURL(ctx context.Context, rawURL string) (LinkResult, error) {
	rawURL = strings.TrimSpace(rawURL)
	if err := api.ValidateICSURL(rawURL); err != nil {
		return LinkResult{}, err
	}
	if err := s.sources.RememberURL(rawURL); err != nil {
		return LinkResult{}, err
	}
	res := LinkResult{Source: store.Source{Kind: store.SourceURL, URL: rawURL}}

	raw, err := s.api.Events(ctx, api.Query{Start: s.clock.Now(), ICSURL: rawURL})
	if err != nil {
		return res, fmt.Errorf("error fetching events from URL: %w", err)
	}
	res.Count = len(transform.Transform(raw, s.transformOpts()))
	res.Status = foundStatus(res.Count)
	appLog.Info("calendar linked", "url", api.RedactURL(rawURL), "events", res.Count)
	return res, nil
}

// Upload validates the file name, sends the file to the API for parsing
// and remembers the parsed events.
func (s *Service) Upload(ctx context.Context, fileName string, r io.Reader) (LinkResult, error) {
	if err := api.ValidateICSFileName(fileName); err != nil {
		return LinkResult{}, err
	}
	raw, err := s.api.UploadICS(ctx, fileName, r)
	if err != nil {
		return LinkResult{}, fmt.Errorf("error processing ICS file: %w", err)
	}
	if err := s.sources.RememberUpload(fileName, raw); err != nil {
		return LinkResult{}, err
	}

	res := LinkResult{
		Source: store.Source{Kind: store.SourceUpload, FileName: fileName},
		Count:  len(transform.Transform(raw, s.transformOpts())),
	}
	res.Status = foundStatus(res.Count)
	appLog.Info("calendar uploaded", "file", fileName, "events", res.Count)
	return res, nil
}

// Forget drops the remembered calendar.
func (s *Service) Forget() error {
	return s.sources.Forget()
}

// Source reports the remembered calendar without its events.
func (s *Service) Source() (store.Source, error) {
	cur, err := s.sources.Current()
	cur.Events = nil
	return cur, err
}

func foundStatus(n int) string {
	if n == 0 {
		return "No events found in this calendar"
	}
	return fmt.Sprintf("Found %d events in calendar", n)
}

// fail records err on the view using the error taxonomy and returns it.
func (s *Service) fail(v *View, err error) error {
	v.Empty = true
	switch {
	case api.IsTransport(err):
		v.Warning = err.Error()
	default:
		v.Error = err.Error()
	}
	appLog.Error("calendar view failed", err)
	return err
}

// markClashes overlays busy blocks from the linked calendar. Events that
// are the personal calendar's own entries, merged in by the API, are not
// marked against themselves. Failures are logged and ignored.
func (s *Service) markClashes(ctx context.Context, events []model.DisplayEvent, icsURL string, from, to time.Time) int {
	if s.fetcher == nil {
		return 0
	}
	src := ics.Source{ID: personalSourceID, URL: icsURL}

	res, err := s.fetcher.Fetch(ctx, src)
	if err != nil {
		appLog.Warn("clash check skipped", "err", err, "url", api.RedactURL(icsURL))
		return 0
	}
	parsed, err := ics.ParseICS(src, res.Body, s.loc)
	if err != nil {
		appLog.Warn("clash check skipped", "err", err, "url", api.RedactURL(icsURL))
		return 0
	}
	expanded, err := ics.ExpandOccurrences(parsed, ics.ExpandConfig{
		DisplayLocation: s.loc,
		RangeStart:      from,
		RangeEnd:        to,
	})
	if err != nil {
		appLog.Warn("clash check skipped", "err", err)
		return 0
	}

	own := make(map[string]struct{}, len(expanded.Occurrences))
	for _, o := range expanded.Occurrences {
		own[occurrenceKey(o.Summary, o.Start, o.End)] = struct{}{}
	}

	ics.MarkClashes(events, ics.Busy(expanded.Occurrences))
	marked := 0
	for i := range events {
		if !events[i].Clash {
			continue
		}
		if _, mine := own[occurrenceKey(events[i].Title, events[i].Date, events[i].End)]; mine {
			events[i].Clash = false
			continue
		}
		marked++
	}
	return marked
}

func occurrenceKey(summary string, start, end time.Time) string {
	return fmt.Sprintf("%s|%d|%d", summary, start.Unix(), end.Unix())
}
