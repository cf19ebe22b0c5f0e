package sunrise

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateRoundTripsThroughTable(t *testing.T) {
	tz := taipei(t)
	sites := []Site{
		{Name: "臺北", Latitude: 25.0377, Longitude: 121.5149},
		{Name: "高雄", Latitude: 22.5660, Longitude: 120.3157},
		{Name: "臺北", Latitude: 25.0377, Longitude: 121.5149},
	}

	from := time.Date(2024, 3, 1, 0, 0, 0, 0, tz)
	to := time.Date(2024, 3, 7, 0, 0, 0, 0, tz)
	locations, err := Generate(sites, from, to, tz)
	require.NoError(t, err)
	require.Len(t, locations, 2)
	assert.Len(t, locations[0].Entries, 7)
	assert.Equal(t, "2024-03-01", locations[0].Entries[0].Date)
	assert.Equal(t, "2024-03-07", locations[0].Entries[6].Date)

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, locations))
	assert.Contains(t, buf.String(), `"locationName": "臺北"`)

	table, err := Load(&buf)
	require.NoError(t, err)

	r := NewResolver(table, tz)
	assert.Equal(t, Day, r.ResolveMoment("臺北", time.Date(2024, 3, 4, 12, 0, 0, 0, tz)))
	assert.Equal(t, Night, r.ResolveMoment("臺北", time.Date(2024, 3, 4, 23, 0, 0, 0, tz)))
	assert.Equal(t, Unknown, r.ResolveMoment("臺北", time.Date(2024, 3, 8, 12, 0, 0, 0, tz)))
}

func TestGenerateRejectsReversedRange(t *testing.T) {
	_, err := Generate(nil, time.Date(2024, 3, 7, 0, 0, 0, 0, time.UTC), time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), nil)
	assert.Error(t, err)
}
