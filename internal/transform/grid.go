package transform

import (
	"math"
	"slices"
	"time"

	"campuscal/internal/model"
)

// Weekly grid geometry: row 2 is 7:00, two rows per hour, 7AM to 9PM.
const (
	GridFirstHour = 7
	GridFirstRow  = 2
	GridRowsPerHr = 2
	GridRows      = 30
)

// GridDays are the column headings of the weekly grid, Monday first.
var GridDays = [5]string{"Mon", "Tue", "Wed", "Thu", "Fri"}

// GridRow maps a start hour to its grid row.
func GridRow(startHour float64) int {
	return roundHalfUp((startHour-GridFirstHour)*GridRowsPerHr) + GridFirstRow
}

// GridSpan maps a duration in hours to a row span of at least one row.
func GridSpan(durationHours float64) int {
	return max(1, roundHalfUp(durationHours*GridRowsPerHr))
}

// Weekday returns 1 for Monday through 5 for Friday and 0 for weekends.
func Weekday(t time.Time) int {
	switch wd := t.Weekday(); wd {
	case time.Saturday, time.Sunday:
		return 0
	default:
		return int(wd)
	}
}

// roundHalfUp rounds x.5 towards positive infinity so early-morning rows
// round the same way as afternoon ones.
func roundHalfUp(x float64) int {
	return int(math.Floor(x + 0.5))
}

// GridCell places one event in the weekly grid.
type GridCell struct {
	Event  model.DisplayEvent `json:"event"`
	Column int                `json:"column"`
	Row    int                `json:"row"`
	Span   int                `json:"span"`
	Color  string             `json:"color"`
}

// GridDay is one weekday column.
type GridDay struct {
	Name  string     `json:"name"`
	Cells []GridCell `json:"cells"`
}

// WeekGrid lays out events by weekday. Weekend events are left out; they
// still appear in the list view.
func WeekGrid(events []model.DisplayEvent) []GridDay {
	days := make([]GridDay, len(GridDays))
	for i, name := range GridDays {
		days[i] = GridDay{Name: name, Cells: []GridCell{}}
	}

	for _, ev := range events {
		col := Weekday(ev.Date)
		if col == 0 {
			continue
		}
		days[col-1].Cells = append(days[col-1].Cells, GridCell{
			Event:  ev,
			Column: col,
			Row:    GridRow(ev.StartHour),
			Span:   GridSpan(ev.DurationHours),
			Color:  Color(ev.Category, ev.Title),
		})
	}

	for i := range days {
		slices.SortStableFunc(days[i].Cells, func(a, b GridCell) int {
			return a.Row - b.Row
		})
	}
	return days
}
