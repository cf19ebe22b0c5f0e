package sunrise

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func taipei(t *testing.T) *time.Location {
	t.Helper()
	tz, err := time.LoadLocation("Asia/Taipei")
	require.NoError(t, err)
	return tz
}

func defaultResolver(t *testing.T) (*Resolver, *time.Location) {
	t.Helper()
	table, err := Default()
	require.NoError(t, err)
	tz := taipei(t)
	return NewResolver(table, tz), tz
}

func TestResolveMomentTaipei(t *testing.T) {
	r, tz := defaultResolver(t)

	tests := []struct {
		name string
		now  time.Time
		want Moment
	}{
		{"noon", time.Date(2019, 10, 8, 12, 0, 0, 0, tz), Day},
		{"before dawn", time.Date(2019, 10, 8, 3, 0, 0, 0, tz), Night},
		{"late evening", time.Date(2019, 10, 8, 22, 30, 0, 0, tz), Night},
		{"at sunrise", time.Date(2019, 10, 8, 5, 46, 0, 0, tz), Day},
		{"at sunset", time.Date(2019, 10, 8, 17, 53, 0, 0, tz), Day},
		{"second before sunrise", time.Date(2019, 10, 8, 5, 45, 59, 0, tz), Night},
		{"second after sunset", time.Date(2019, 10, 8, 17, 53, 1, 0, tz), Night},
		{"date without entry", time.Date(2019, 10, 9, 12, 0, 0, 0, tz), Unknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, r.ResolveMoment("臺北", tt.now))
		})
	}
}

func TestResolveMomentUnknownLocation(t *testing.T) {
	r, tz := defaultResolver(t)

	for _, now := range []time.Time{
		time.Date(2019, 10, 8, 12, 0, 0, 0, tz),
		time.Date(2019, 10, 8, 0, 0, 0, 0, tz),
		time.Date(2030, 1, 1, 12, 0, 0, 0, time.UTC),
	} {
		assert.Equal(t, Unknown, r.ResolveMoment("Atlantis", now))
		assert.Equal(t, Unknown, r.ResolveMoment("", now))
		assert.Equal(t, Unknown, r.ResolveMoment("臺北市", now))
	}
}

func TestResolveMomentConvertsToTableZone(t *testing.T) {
	r, _ := defaultResolver(t)

	// 04:00 UTC is 12:00 in Taipei.
	assert.Equal(t, Day, r.ResolveMoment("臺北", time.Date(2019, 10, 8, 4, 0, 0, 0, time.UTC)))
	// 2019-10-08 20:00 UTC is already 2019-10-09 in Taipei.
	assert.Equal(t, Unknown, r.ResolveMoment("臺北", time.Date(2019, 10, 8, 20, 0, 0, 0, time.UTC)))
	// 2019-10-07 17:00 UTC is 2019-10-08 01:00 in Taipei.
	assert.Equal(t, Night, r.ResolveMoment("臺北", time.Date(2019, 10, 7, 17, 0, 0, 0, time.UTC)))
}

func TestResolveMomentUsesInstantZoneWithoutTableZone(t *testing.T) {
	table, err := Default()
	require.NoError(t, err)
	r := NewResolver(table, nil)

	assert.Equal(t, Day, r.ResolveMoment("臺北", time.Date(2019, 10, 8, 12, 0, 0, 0, time.UTC)))
	assert.Equal(t, Night, r.ResolveMoment("臺北", time.Date(2019, 10, 8, 4, 0, 0, 0, time.UTC)))
}

func TestEveryEntryResolvesToDayOrNight(t *testing.T) {
	r, tz := defaultResolver(t)
	table, err := Default()
	require.NoError(t, err)

	for _, loc := range table.Locations() {
		for _, e := range loc.Entries {
			day, err := time.ParseInLocation(DateLayout, e.Date, tz)
			require.NoError(t, err)
			for _, h := range []int{0, 6, 12, 18, 23} {
				m := r.ResolveMoment(loc.LocationName, day.Add(time.Duration(h)*time.Hour))
				if m != Day && m != Night {
					t.Errorf("%s %s %02d:00 resolved to %q", loc.LocationName, e.Date, h, m)
				}
			}
			if m := r.ResolveMoment(loc.LocationName, day.Add(12*time.Hour)); m != Day {
				t.Errorf("%s %s noon resolved to %q", loc.LocationName, e.Date, m)
			}
		}
	}
}

func TestDefaultTableCoversCurrentYears(t *testing.T) {
	r, tz := defaultResolver(t)
	table, err := Default()
	require.NoError(t, err)

	assert.Equal(t, Day, r.ResolveMoment("臺北", time.Date(2026, 10, 18, 12, 0, 0, 0, tz)))
	assert.Equal(t, Night, r.ResolveMoment("臺北", time.Date(2026, 10, 18, 23, 0, 0, 0, tz)))
	assert.Equal(t, Night, r.ResolveMoment("臺北", time.Date(2026, 10, 18, 4, 0, 0, 0, tz)))

	for _, loc := range table.Locations() {
		for _, day := range []time.Time{
			time.Date(2025, 1, 1, 12, 0, 0, 0, tz),
			time.Date(2026, 6, 21, 12, 0, 0, 0, tz),
			time.Date(2030, 12, 31, 12, 0, 0, 0, tz),
		} {
			assert.Equal(t, Day, r.ResolveMoment(loc.LocationName, day), "%s %s", loc.LocationName, day.Format(DateLayout))
		}
	}
}

func TestResolveMomentAcrossDSTChange(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	table, err := Load(strings.NewReader(`[{"locationName":"nyc","time":[
		{"dataTime":"2019-03-10","sunrise":"07:25","sunset":"19:10"},
		{"dataTime":"2019-11-03","sunrise":"06:32","sunset":"16:50"}]}]`))
	require.NoError(t, err)
	r := NewResolver(table, ny)

	// Clocks jump from 02:00 EST to 03:00 EDT on 2019-03-10.
	rise, set, err := r.SunTimes("nyc", time.Date(2019, 3, 10, 12, 0, 0, 0, ny))
	require.NoError(t, err)
	assert.True(t, rise.Equal(time.Date(2019, 3, 10, 7, 25, 0, 0, ny)), "sunrise %s", rise)
	assert.True(t, set.Equal(time.Date(2019, 3, 10, 19, 10, 0, 0, ny)), "sunset %s", set)
	assert.Equal(t, Night, r.ResolveMoment("nyc", time.Date(2019, 3, 10, 7, 24, 0, 0, ny)))
	assert.Equal(t, Day, r.ResolveMoment("nyc", time.Date(2019, 3, 10, 7, 30, 0, 0, ny)))
	assert.Equal(t, Day, r.ResolveMoment("nyc", time.Date(2019, 3, 10, 19, 10, 0, 0, ny)))
	assert.Equal(t, Night, r.ResolveMoment("nyc", time.Date(2019, 3, 10, 19, 11, 0, 0, ny)))

	// Clocks fall back from 02:00 EDT to 01:00 EST on 2019-11-03.
	rise, set, err = r.SunTimes("nyc", time.Date(2019, 11, 3, 12, 0, 0, 0, ny))
	require.NoError(t, err)
	assert.True(t, rise.Equal(time.Date(2019, 11, 3, 6, 32, 0, 0, ny)), "sunrise %s", rise)
	assert.True(t, set.Equal(time.Date(2019, 11, 3, 16, 50, 0, 0, ny)), "sunset %s", set)
	assert.Equal(t, Night, r.ResolveMoment("nyc", time.Date(2019, 11, 3, 6, 31, 0, 0, ny)))
	assert.Equal(t, Day, r.ResolveMoment("nyc", time.Date(2019, 11, 3, 6, 33, 0, 0, ny)))
	assert.Equal(t, Night, r.ResolveMoment("nyc", time.Date(2019, 11, 3, 16, 51, 0, 0, ny)))
}

func TestSunTimes(t *testing.T) {
	r, tz := defaultResolver(t)

	rise, set, err := r.SunTimes("臺北", time.Date(2019, 10, 8, 9, 0, 0, 0, tz))
	require.NoError(t, err)
	assert.True(t, rise.Equal(time.Date(2019, 10, 8, 5, 46, 0, 0, tz)))
	assert.True(t, set.Equal(time.Date(2019, 10, 8, 17, 53, 0, 0, tz)))

	_, _, err = r.SunTimes("臺北", time.Date(2019, 10, 9, 9, 0, 0, 0, tz))
	assert.ErrorIs(t, err, ErrSunriseDataUnavailable)

	_, _, err = r.SunTimes("nowhere", time.Date(2019, 10, 8, 9, 0, 0, 0, tz))
	assert.ErrorIs(t, err, ErrSunriseDataUnavailable)
}

func TestTheme(t *testing.T) {
	assert.Equal(t, "light", Day.Theme())
	assert.Equal(t, "dark", Night.Theme())
	assert.Equal(t, "dark", Unknown.Theme())
}

func TestNewTableValidation(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"duplicate location", `[{"locationName":"a","time":[]},{"locationName":"a","time":[]}]`},
		{"duplicate date", `[{"locationName":"a","time":[
			{"dataTime":"2019-10-08","sunrise":"05:46","sunset":"17:53"},
			{"dataTime":"2019-10-08","sunrise":"05:47","sunset":"17:52"}]}]`},
		{"bad date", `[{"locationName":"a","time":[{"dataTime":"2019/10/08","sunrise":"05:46","sunset":"17:53"}]}]`},
		{"bad sunrise", `[{"locationName":"a","time":[{"dataTime":"2019-10-08","sunrise":"5am","sunset":"17:53"}]}]`},
		{"sunset before sunrise", `[{"locationName":"a","time":[{"dataTime":"2019-10-08","sunrise":"17:53","sunset":"05:46"}]}]`},
		{"empty name", `[{"locationName":"","time":[]}]`},
		{"not json", `nope`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(strings.NewReader(tt.data))
			assert.Error(t, err)
		})
	}
}

func TestClockWithSeconds(t *testing.T) {
	table, err := Load(strings.NewReader(`[{"locationName":"a","time":[
		{"dataTime":"2019-10-08","sunrise":"05:46:30","sunset":"17:53:15"}]}]`))
	require.NoError(t, err)

	r := NewResolver(table, time.UTC)
	assert.Equal(t, Night, r.ResolveMoment("a", time.Date(2019, 10, 8, 5, 46, 29, 0, time.UTC)))
	assert.Equal(t, Day, r.ResolveMoment("a", time.Date(2019, 10, 8, 5, 46, 30, 0, time.UTC)))
	assert.Equal(t, Day, r.ResolveMoment("a", time.Date(2019, 10, 8, 17, 53, 15, 0, time.UTC)))
	assert.Equal(t, Night, r.ResolveMoment("a", time.Date(2019, 10, 8, 17, 53, 16, 0, time.UTC)))
}

func TestResolverConcurrentUse(t *testing.T) {
	r, tz := defaultResolver(t)
	now := time.Date(2019, 10, 8, 12, 0, 0, 0, tz)

	done := make(chan Moment, 16)
	for i := 0; i < cap(done); i++ {
		go func() { done <- r.ResolveMoment("臺北", now) }()
	}
	for i := 0; i < cap(done); i++ {
		assert.Equal(t, Day, <-done)
	}
}
