package location

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIndex(t *testing.T) {
	idx, err := Default()
	require.NoError(t, err)
	assert.Equal(t, 21, idx.Len())

	rec, err := idx.Resolve("臺北市")
	require.NoError(t, err)
	assert.Equal(t, "臺北", rec.SunriseCityName)
	assert.Equal(t, "臺北", rec.Stations.Observation)
	assert.Equal(t, "臺北市", rec.Stations.Forecast)
	assert.True(t, rec.HasCoordinates())
}

func TestResolveExactMatchOnly(t *testing.T) {
	idx, err := NewIndex([]Record{
		{CityName: "Taipei", SunriseCityName: "Taipei"},
	})
	require.NoError(t, err)

	_, err = idx.Resolve("Taipei")
	require.NoError(t, err)

	for _, name := range []string{"taipei", "TAIPEI", " Taipei", "Taipei ", "Taipe", ""} {
		_, err := idx.Resolve(name)
		assert.ErrorIs(t, err, ErrLocationNotFound, "name %q", name)
	}
}

func TestNewIndexRejectsDuplicates(t *testing.T) {
	_, err := NewIndex([]Record{
		{CityName: "臺北市"},
		{CityName: "臺北市"},
	})
	assert.Error(t, err)

	_, err = NewIndex([]Record{{CityName: "  "}})
	assert.Error(t, err)
}

func TestLoadForecastNameOverride(t *testing.T) {
	data := `[
		{"cityName": "A", "locationName": "a-station", "sunriseCityName": "a"},
		{"cityName": "B", "locationName": "b-station", "forecastName": "b-area", "sunriseCityName": "b"}
	]`
	idx, err := Load(strings.NewReader(data))
	require.NoError(t, err)

	a, err := idx.Resolve("A")
	require.NoError(t, err)
	assert.Equal(t, "A", a.Stations.Forecast)
	assert.False(t, a.HasCoordinates())

	b, err := idx.Resolve("B")
	require.NoError(t, err)
	assert.Equal(t, "b-area", b.Stations.Forecast)
	assert.Equal(t, "b-station", b.Stations.Observation)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "locations.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"cityName":"X","locationName":"x","sunriseCityName":"x"}]`), 0o644))

	idx, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 1, idx.Len())

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestLoadInvalidJSON(t *testing.T) {
	_, err := Load(strings.NewReader("{"))
	assert.Error(t, err)
}

func TestAllReturnsCopy(t *testing.T) {
	idx, err := Default()
	require.NoError(t, err)

	all := idx.All()
	all[0].CityName = "changed"

	assert.NotEqual(t, "changed", idx.All()[0].CityName)
}
