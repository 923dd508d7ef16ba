// Package transform maps raw event records from the events API into
// display records for the list and weekly-grid views.
//
// Records whose start instant is missing or unparseable are dropped
// silently: callers treat "nothing usable" the same as "nothing there".
package transform

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	appLog "campuscal/internal/log"
	"campuscal/internal/model"
)

const (
	// PlaceholderTitle is used when a record has neither summary nor title.
	PlaceholderTitle = "Untitled Event"
	// PlaceholderCategory is used when a record carries no category.
	PlaceholderCategory = "Event"

	// MinDurationHours floors the display duration.
	MinDurationHours = 0.5
	// DefaultDuration is applied when the end instant is missing or invalid.
	DefaultDuration = time.Hour
)

// ErrNoStart is returned by ParseInstant for an empty value.
var ErrNoStart = errors.New("transform: empty timestamp")

// instantLayouts are tried in order. Zone-naive date-times are parsed in
// the display location; a bare date is UTC midnight, so west of UTC it
// lands on the previous local day. Fractional seconds are accepted after
// the seconds field even though the layouts do not spell them out.
var instantLayouts = []struct {
	layout string
	zoned  bool
}{
	{time.RFC3339, true},
	{"2006-01-02T15:04:05-0700", true},
	{"2006-01-02T15:04:05", false},
	{"2006-01-02T15:04", false},
	{"2006-01-02 15:04:05", false},
	{"2006-01-02 15:04", false},
	{"2006-01-02", true},
}

// Options controls a Transform call.
type Options struct {
	// Location is the wall clock used for start hours, weekdays and
	// zone-naive timestamps. If nil, time.Local is used.
	Location *time.Location

	// NewID synthesizes identifiers for records without one. If nil, the
	// id is "event-" + a name-based UUID of the record's start, title and
	// location, so the same record gets the same id on every fetch.
	NewID func() string
}

func (o Options) normalized() Options {
	if o.Location == nil {
		o.Location = time.Local
	}
	return o
}

func (o Options) synthesizeID(r model.RawEvent) string {
	if o.NewID != nil {
		return o.NewID()
	}
	return stableEventID(r)
}

func stableEventID(r model.RawEvent) string {
	name := strings.Join([]string{strings.TrimSpace(r.Start), resolveTitle(r), r.Location}, "\x00")
	return "event-" + uuid.NewSHA1(uuid.NameSpaceOID, []byte(name)).String()
}

// Transform converts raw records into display records, dropping records
// without a usable start instant, and returns them sorted by start instant.
// The sort is stable: records with equal instants keep their input order.
func Transform(raw []model.RawEvent, opts Options) []model.DisplayEvent {
	opts = opts.normalized()

	out := make([]model.DisplayEvent, 0, len(raw))
	issued := make(map[string]struct{})
	dropped := 0

	for _, r := range raw {
		ev, ok := toDisplay(r, opts)
		if !ok {
			dropped++
			continue
		}
		if r.ID == "" {
			// Identical records share a synthesized id; a counter suffix in
			// input order keeps them unique within this call.
			base := ev.ID
			for n := 2; ; n++ {
				if _, dup := issued[ev.ID]; !dup {
					break
				}
				ev.ID = fmt.Sprintf("%s-%d", base, n)
			}
		}
		issued[ev.ID] = struct{}{}
		out = append(out, ev)
	}

	slices.SortStableFunc(out, func(a, b model.DisplayEvent) int {
		return a.Date.Compare(b.Date)
	})

	if dropped > 0 {
		appLog.Debug("transform dropped records without a valid start", "dropped", dropped, "kept", len(out))
	}
	return out
}

// Event converts a single raw record. The boolean is false when the record
// has no usable start instant.
func Event(r model.RawEvent, opts Options) (model.DisplayEvent, bool) {
	return toDisplay(r, opts.normalized())
}

func toDisplay(r model.RawEvent, opts Options) (model.DisplayEvent, bool) {
	loc := opts.Location

	start, err := ParseInstant(r.Start, loc)
	if err != nil {
		return model.DisplayEvent{}, false
	}
	start = start.In(loc)

	end, err := ParseInstant(r.End, loc)
	if err != nil {
		end = start.Add(DefaultDuration)
	}
	end = end.In(loc)

	id := r.ID
	if id == "" {
		id = opts.synthesizeID(r)
	}

	return model.DisplayEvent{
		ID:            id,
		Title:         resolveTitle(r),
		StartHour:     StartHour(start),
		DurationHours: DurationHours(start, end),
		Category:      ResolveCategory(r.Category),
		Date:          start,
		End:           end,
		Location:      r.Location,
		Description:   r.Description,
		Cost:          r.Cost,
		Link:          r.Link,
	}, true
}

// ParseInstant parses an ISO-8601-ish timestamp. Zone-naive values are
// interpreted in loc.
func ParseInstant(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, ErrNoStart
	}
	if loc == nil {
		loc = time.Local
	}

	var firstErr error
	for _, l := range instantLayouts {
		var (
			t   time.Time
			err error
		)
		if l.zoned {
			t, err = time.Parse(l.layout, s)
		} else {
			t, err = time.ParseInLocation(l.layout, s, loc)
		}
		if err == nil {
			return t, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return time.Time{}, firstErr
}

// StartHour returns hour + minute/60 of t's wall clock.
func StartHour(t time.Time) float64 {
	return float64(t.Hour()) + float64(t.Minute())/60
}

// DurationHours returns end-start in hours, floored at MinDurationHours.
func DurationHours(start, end time.Time) float64 {
	h := end.Sub(start).Hours()
	if h < MinDurationHours {
		return MinDurationHours
	}
	return h
}

func resolveTitle(r model.RawEvent) string {
	if r.Summary != "" {
		return r.Summary
	}
	if r.Title != "" {
		return r.Title
	}
	return PlaceholderTitle
}

// ResolveCategory returns the governing (first) category, or
// PlaceholderCategory when there is none.
func ResolveCategory(tags []string) string {
	if len(tags) > 0 {
		return tags[0]
	}
	return PlaceholderCategory
}
