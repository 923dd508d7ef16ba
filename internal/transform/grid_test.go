package transform

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campuscal/internal/model"
)

func TestGridRow(t *testing.T) {
	cases := []struct {
		hour float64
		want int
	}{
		{7, 2},
		{9.5, 7},
		{12, 12},
		{21, 30},
		{6.75, 2}, // -0.5 rounds up
		{9.25, 7}, // 4.5 rounds up
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, GridRow(tc.hour), "hour %v", tc.hour)
	}
}

func TestGridSpan(t *testing.T) {
	assert.Equal(t, 1, GridSpan(0.5))
	assert.Equal(t, 2, GridSpan(1))
	assert.Equal(t, 3, GridSpan(1.5))
	assert.Equal(t, 1, GridSpan(0.1))
	assert.Equal(t, 1, GridSpan(0))
}

func TestWeekday(t *testing.T) {
	// 2024-03-04 is a Monday.
	monday := time.Date(2024, 3, 4, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		assert.Equal(t, i+1, Weekday(monday.AddDate(0, 0, i)))
	}
	assert.Equal(t, 0, Weekday(monday.AddDate(0, 0, 5)))
	assert.Equal(t, 0, Weekday(monday.AddDate(0, 0, 6)))
}

func TestWeekGridExcludesWeekends(t *testing.T) {
	raw := []model.RawEvent{
		{ID: "mon-late", Title: "Late", Start: "2024-03-04T15:00:00", End: "2024-03-04T16:30:00"},
		{ID: "mon-early", Title: "Early", Start: "2024-03-11T09:30:00", End: "2024-03-11T10:00:00"},
		{ID: "fri", Title: "Fri", Start: "2024-03-08T12:00:00"},
		{ID: "sat", Title: "Sat", Start: "2024-03-09T12:00:00"},
		{ID: "sun", Title: "Sun", Start: "2024-03-10T12:00:00"},
	}
	events := Transform(raw, utc)
	require.Len(t, events, 5)

	days := WeekGrid(events)
	require.Len(t, days, 5)
	assert.Equal(t, "Mon", days[0].Name)
	assert.Equal(t, "Fri", days[4].Name)

	mon := days[0].Cells
	require.Len(t, mon, 2)
	assert.Equal(t, "mon-early", mon[0].Event.ID)
	assert.Equal(t, 7, mon[0].Row)
	assert.Equal(t, 1, mon[0].Span)
	assert.Equal(t, 1, mon[0].Column)
	assert.Equal(t, "mon-late", mon[1].Event.ID)
	assert.Equal(t, 18, mon[1].Row)
	assert.Equal(t, 3, mon[1].Span)

	require.Len(t, days[4].Cells, 1)
	assert.Equal(t, 5, days[4].Cells[0].Column)

	for _, d := range days[1:4] {
		assert.Empty(t, d.Cells)
	}
}

func TestGroupByDate(t *testing.T) {
	raw := []model.RawEvent{
		{ID: "b", Start: "2024-04-01T09:00:00"},
		{ID: "a1", Start: "2024-03-30T09:00:00"},
		{ID: "a2", Start: "2024-03-30T18:00:00"},
	}
	groups := GroupByDate(Transform(raw, utc))
	require.Len(t, groups, 2)

	assert.Equal(t, "Mar 30", groups[0].Heading)
	assert.Equal(t, "Saturday", groups[0].Weekday)
	assert.Equal(t, time.Date(2024, 3, 30, 0, 0, 0, 0, time.UTC), groups[0].Date)
	require.Len(t, groups[0].Events, 2)
	assert.Equal(t, "a1", groups[0].Events[0].ID)
	assert.Equal(t, "a2", groups[0].Events[1].ID)

	assert.Equal(t, "Apr 1", groups[1].Heading)
	assert.Equal(t, "Monday", groups[1].Weekday)
}

func TestGroupByDateEmpty(t *testing.T) {
	groups := GroupByDate(nil)
	assert.NotNil(t, groups)
	assert.Empty(t, groups)
}
