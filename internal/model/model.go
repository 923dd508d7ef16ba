package model

import (
	"bytes"
	"encoding/json"
	"time"
)

// RawEvent is an event record as delivered by the events API or by an
// uploaded ICS file. The API is loose about field names, so decoding
// accepts both spellings of the start/end fields; the instants are kept
// as the raw strings and only interpreted by the display transform.
type RawEvent struct {
	ID string

	// Start and End hold whichever of start_time/start (end_time/end)
	// was present. An empty string means the field was absent.
	Start string
	End   string

	Summary     string
	Title       string
	Description string
	Location    string

	// Category is the ordered tag list; a single string decodes into a
	// one-element list.
	Category []string

	// Cost is nil when the record carries no cost data. Zero means free.
	Cost *float64

	Link string
}

// rawEventJSON is the wire shape. Pointers distinguish absent from empty.
type rawEventJSON struct {
	ID          *string         `json:"id,omitempty"`
	StartTime   *string         `json:"start_time,omitempty"`
	Start       *string         `json:"start,omitempty"`
	EndTime     *string         `json:"end_time,omitempty"`
	End         *string         `json:"end,omitempty"`
	Summary     *string         `json:"summary,omitempty"`
	Title       *string         `json:"title,omitempty"`
	Description *string         `json:"description,omitempty"`
	Location    *string         `json:"location,omitempty"`
	Category    json.RawMessage `json:"category,omitempty"`
	Cost        *float64        `json:"cost,omitempty"`
	Link        *string         `json:"link,omitempty"`
}

// UnmarshalJSON decodes the API's event shape one field at a time. A
// field of an unexpected type decodes as absent instead of failing the
// record: a numeric id keeps its JSON text and a non-numeric cost is nil.
// Whether the record is usable is decided later from its start instant.
func (e *RawEvent) UnmarshalJSON(data []byte) error {
	var f map[string]json.RawMessage
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}

	*e = RawEvent{
		ID:          decodeID(f["id"]),
		Start:       firstSet(decodeText(f["start_time"]), decodeText(f["start"])),
		End:         firstSet(decodeText(f["end_time"]), decodeText(f["end"])),
		Summary:     decodeText(f["summary"]),
		Title:       decodeText(f["title"]),
		Description: decodeText(f["description"]),
		Location:    decodeText(f["location"]),
		Category:    decodeCategory(f["category"]),
		Cost:        decodeCost(f["cost"]),
		Link:        decodeText(f["link"]),
	}
	return nil
}

// MarshalJSON emits the canonical field names so a persisted upload
// decodes back to the same record.
func (e RawEvent) MarshalJSON() ([]byte, error) {
	w := rawEventJSON{
		ID:          nonEmpty(e.ID),
		StartTime:   nonEmpty(e.Start),
		EndTime:     nonEmpty(e.End),
		Summary:     nonEmpty(e.Summary),
		Title:       nonEmpty(e.Title),
		Description: nonEmpty(e.Description),
		Location:    nonEmpty(e.Location),
		Cost:        e.Cost,
		Link:        nonEmpty(e.Link),
	}
	if len(e.Category) > 0 {
		cat, err := json.Marshal(e.Category)
		if err != nil {
			return nil, err
		}
		w.Category = cat
	}
	return json.Marshal(w)
}

func decodeCategory(raw json.RawMessage) []string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	var one string
	if err := json.Unmarshal(raw, &one); err == nil {
		if one == "" {
			return nil
		}
		return []string{one}
	}
	var many []string
	if err := json.Unmarshal(raw, &many); err == nil && len(many) > 0 {
		return many
	}
	return nil
}

// decodeText returns the string value of raw, or "" for any other type.
func decodeText(raw json.RawMessage) string {
	var v string
	if len(raw) == 0 || json.Unmarshal(raw, &v) != nil {
		return ""
	}
	return v
}

// decodeID accepts a string or a number; numbers keep their JSON text.
func decodeID(raw json.RawMessage) string {
	if v := decodeText(raw); v != "" {
		return v
	}
	var n json.Number
	if len(raw) == 0 || json.Unmarshal(raw, &n) != nil {
		return ""
	}
	return n.String()
}

// decodeCost keeps an explicit zero distinct from an absent or null cost.
func decodeCost(raw json.RawMessage) *float64 {
	raw = bytes.TrimSpace(raw)
	var v float64
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) || json.Unmarshal(raw, &v) != nil {
		return nil
	}
	return &v
}

// firstSet returns the first non-empty value, so "start_time": "" still
// lets "start" win.
func firstSet(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func nonEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// DisplayEvent is the render-ready projection of a RawEvent used by the
// list and weekly-grid views. It is derived fresh on every fetch and never
// persisted.
type DisplayEvent struct {
	ID    string `json:"id"`
	Title string `json:"title"`

	// StartHour is hour + minute/60 in the display location.
	StartHour float64 `json:"startHour"`
	// DurationHours is floored at 0.5 for display; End is not.
	DurationHours float64 `json:"durationHours"`

	Category string `json:"category"`

	// Date is the start instant.
	Date time.Time `json:"date"`
	// End is the resolved end instant (start + 1h when missing or invalid).
	End time.Time `json:"end"`

	Location    string   `json:"location"`
	Description string   `json:"description"`
	Cost        *float64 `json:"cost"`
	Link        string   `json:"link"`

	// Clash is set when the event overlaps a busy block of the student's
	// own calendar.
	Clash bool `json:"clash,omitempty"`
}

// Occurrence represents a single concrete busy block of the personal
// calendar (after recurrence expansion and timezone normalization).
type Occurrence struct {
	SourceID string // calendar source ID
	UID      string // iCalendar UID

	// InstanceKey uniquely identifies a single occurrence of a recurring
	// event, typically derived from the local start time.
	InstanceKey string

	Summary  string
	Location string

	AllDay bool

	// Start / End are in the configured display timezone.
	Start time.Time
	End   time.Time
}
