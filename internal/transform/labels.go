package transform

import (
	"fmt"
	"hash/fnv"
	"math"
	"strings"
	"unicode/utf8"
)

// Preview lengths used by the list cards and the grid cells.
const (
	ListDescriptionLimit = 150
	GridDescriptionLimit = 100
)

// DurationLabel renders a duration in hours as "30min", "1hr" or
// "1hr 30min".
func DurationLabel(hours float64) string {
	h, m := splitHours(hours)
	switch {
	case h == 0:
		return fmt.Sprintf("%dmin", m)
	case m == 0:
		return fmt.Sprintf("%dhr", h)
	default:
		return fmt.Sprintf("%dhr %dmin", h, m)
	}
}

// TimeLabel renders an hour-of-day value on a 12-hour clock, e.g. 9.5 as
// "9:30 AM". Values past midnight wrap.
func TimeLabel(hourOfDay float64) string {
	h, m := splitHours(hourOfDay)
	h %= 24
	period := "AM"
	if h >= 12 {
		period = "PM"
	}
	h12 := h % 12
	if h12 == 0 {
		h12 = 12
	}
	return fmt.Sprintf("%d:%02d %s", h12, m, period)
}

// TimeRangeLabel renders "9:30 AM - 10:00 AM (30min)".
func TimeRangeLabel(startHour, durationHours float64) string {
	return fmt.Sprintf("%s - %s (%s)",
		TimeLabel(startHour),
		TimeLabel(startHour+durationHours),
		DurationLabel(durationHours),
	)
}

// splitHours splits fractional hours into whole hours and rounded minutes,
// carrying 60 minutes into the hour.
func splitHours(hours float64) (int, int) {
	if hours < 0 {
		hours = 0
	}
	h := int(math.Floor(hours))
	m := int(math.Round((hours - float64(h)) * 60))
	if m == 60 {
		h++
		m = 0
	}
	return h, m
}

// CostLabel renders a cost: "" when unknown, "Free" for zero, "$12" or
// "$12.50" otherwise.
func CostLabel(cost *float64) string {
	if cost == nil {
		return ""
	}
	c := *cost
	if c == 0 {
		return "Free"
	}
	if c == math.Trunc(c) {
		return fmt.Sprintf("$%.0f", c)
	}
	return fmt.Sprintf("$%.2f", c)
}

// Palette is the fixed set of colors events are drawn in.
var Palette = []string{"blue", "purple", "green", "amber", "red", "pink", "indigo", "cyan"}

var categoryColors = map[string]string{
	"Meeting":  "purple",
	"Social":   "green",
	"Academic": "amber",
	"Sports":   "red",
	"Sport":    "red",
}

// Color picks a palette color for an event. Well-known categories have a
// fixed color; everything else hashes the title so the same event always
// gets the same color.
func Color(category, title string) string {
	if c, ok := categoryColors[category]; ok {
		return c
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(title))
	return Palette[h.Sum32()%uint32(len(Palette))]
}

// Truncate shortens s to at most limit runes, appending "..." when cut.
func Truncate(s string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return strings.TrimRight(string(runes[:limit]), " ") + "..."
}
