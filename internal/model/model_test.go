package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRawEventDecodesFieldAliases(t *testing.T) {
	var events []RawEvent
	err := json.Unmarshal([]byte(`[
		{"summary":"Talk","start_time":"2024-03-04T09:30:00","end_time":"2024-03-04T10:00:00","location":"Hall A"},
		{"title":"X","start":"2024-03-05T12:00:00","end":"2024-03-05T13:00:00"},
		{"title":"Both","start_time":"","start":"2024-03-06T08:00:00"}
	]`), &events)
	require.NoError(t, err)
	require.Len(t, events, 3)

	assert.Equal(t, "2024-03-04T09:30:00", events[0].Start)
	assert.Equal(t, "2024-03-04T10:00:00", events[0].End)
	assert.Equal(t, "Hall A", events[0].Location)

	assert.Equal(t, "2024-03-05T12:00:00", events[1].Start)
	assert.Equal(t, "2024-03-05T13:00:00", events[1].End)

	assert.Equal(t, "2024-03-06T08:00:00", events[2].Start)
	assert.Empty(t, events[2].End)
}

func TestRawEventCategoryShapes(t *testing.T) {
	cases := []struct {
		name string
		json string
		want []string
	}{
		{"list", `{"category":["Sport","Outdoor"]}`, []string{"Sport", "Outdoor"}},
		{"string", `{"category":"Music"}`, []string{"Music"}},
		{"empty string", `{"category":""}`, nil},
		{"empty list", `{"category":[]}`, nil},
		{"null", `{"category":null}`, nil},
		{"number", `{"category":7}`, nil},
		{"absent", `{}`, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var e RawEvent
			require.NoError(t, json.Unmarshal([]byte(tc.json), &e))
			assert.Equal(t, tc.want, e.Category)
		})
	}
}

func TestRawEventCostKeepsZeroDistinctFromAbsent(t *testing.T) {
	var free, unknown RawEvent
	require.NoError(t, json.Unmarshal([]byte(`{"cost":0}`), &free))
	require.NoError(t, json.Unmarshal([]byte(`{"cost":null}`), &unknown))

	require.NotNil(t, free.Cost)
	assert.Equal(t, 0.0, *free.Cost)
	assert.Nil(t, unknown.Cost)
}

func TestRawEventMarshalUsesCanonicalNames(t *testing.T) {
	cost := 0.0
	in := RawEvent{
		ID:       "e1",
		Start:    "2024-03-04T09:30:00",
		Title:    "X",
		Category: []string{"Sport"},
		Cost:     &cost,
	}
	data, err := json.Marshal(in)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"e1","start_time":"2024-03-04T09:30:00","title":"X","category":["Sport"],"cost":0}`, string(data))

	var out RawEvent
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, in, out)
}

func TestRawEventToleratesOffTypeFields(t *testing.T) {
	var events []RawEvent
	err := json.Unmarshal([]byte(`[
		{"id":42,"summary":"Numeric id","start_time":"2024-03-04T09:30:00"},
		{"summary":"String cost","start_time":"2024-03-04T10:30:00","cost":"5"},
		{"summary":17,"title":["x"],"location":{"room":1},"start_time":"2024-03-04T11:30:00","link":false},
		{"summary":"Numeric start","start_time":1709544600}
	]`), &events)
	require.NoError(t, err)
	require.Len(t, events, 4)

	assert.Equal(t, "42", events[0].ID)
	assert.Equal(t, "Numeric id", events[0].Summary)

	assert.Nil(t, events[1].Cost)
	assert.Equal(t, "2024-03-04T10:30:00", events[1].Start)

	assert.Empty(t, events[2].Summary)
	assert.Empty(t, events[2].Title)
	assert.Empty(t, events[2].Location)
	assert.Empty(t, events[2].Link)
	assert.Equal(t, "2024-03-04T11:30:00", events[2].Start)

	assert.Empty(t, events[3].Start)
}
