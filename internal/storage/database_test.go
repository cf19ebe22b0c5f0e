package storage

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDatabase(t *testing.T) *Database {
	t.Helper()
	db, err := NewDatabase(filepath.Join(t.TempDir(), "data", "weather.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSettings(t *testing.T) {
	db := newTestDatabase(t)

	_, err := db.GetSetting(SettingCurrentCity)
	assert.ErrorIs(t, err, ErrSettingNotFound)

	_, err = db.GetSetting("")
	assert.ErrorIs(t, err, ErrSettingNotFound)

	require.NoError(t, db.SetSetting(SettingCurrentCity, "臺北市"))
	value, err := db.GetSetting(SettingCurrentCity)
	require.NoError(t, err)
	assert.Equal(t, "臺北市", value)

	require.NoError(t, db.SetSetting(SettingCurrentCity, "高雄市"))
	value, err = db.GetSetting(SettingCurrentCity)
	require.NoError(t, err)
	assert.Equal(t, "高雄市", value)
}

func TestSnapshots(t *testing.T) {
	db := newTestDatabase(t)
	base := time.Now().Add(-time.Hour)

	for i, city := range []string{"臺北市", "臺北市", "高雄市"} {
		require.NoError(t, db.SaveSnapshot(&WeatherSnapshot{
			Timestamp:   base.Add(time.Duration(i) * time.Minute),
			CityName:    city,
			Temperature: float64(20 + i),
			Moment:      "day",
		}))
	}

	taipei, err := db.GetSnapshots("臺北市", 10)
	require.NoError(t, err)
	require.Len(t, taipei, 2)
	assert.InDelta(t, 21, taipei[0].Temperature, 0.001, "newest first")

	all, err := db.GetSnapshots("", 2)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	latest, err := db.GetLatestSnapshot("高雄市")
	require.NoError(t, err)
	assert.InDelta(t, 22, latest.Temperature, 0.001)

	require.NoError(t, db.SaveSnapshot(&WeatherSnapshot{
		Timestamp: time.Now().Add(-48 * time.Hour),
		CityName:  "臺北市",
	}))
	removed, err := db.CleanOldSnapshots(24 * time.Hour)
	require.NoError(t, err)
	assert.EqualValues(t, 1, removed)
}
