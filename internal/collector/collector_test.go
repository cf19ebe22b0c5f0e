package collector

import (
	"context"
	"errors"
	"testing"
	"time"

	"weather-card/internal/location"
	"weather-card/internal/storage"
	"weather-card/internal/sunrise"
	"weather-card/internal/weather"
	"weather-card/internal/widget"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	moments []sunrise.Moment
	calls   int
	err     error
}

func (f *fakeSource) CurrentCity() location.Record {
	return location.Record{CityName: "臺北市"}
}

func (f *fakeSource) Card(_ context.Context, city string) (*widget.Card, error) {
	if f.err != nil {
		return nil, f.err
	}
	m := f.moments[f.calls%len(f.moments)]
	f.calls++
	return &widget.Card{
		CityName:    city,
		Moment:      m,
		Theme:       m.Theme(),
		GeneratedAt: time.Date(2019, 10, 8, 12, 0, 0, 0, time.UTC),
		Summary:     "晴",
		Weather: &weather.Report{
			Provider:    "fake",
			Observation: weather.Observation{Station: "臺北", Temperature: 27},
			Forecast:    []weather.ForecastPeriod{{RainProbability: 40}},
		},
	}, nil
}

type fakeStore struct {
	saved   []*storage.WeatherSnapshot
	cleaned int
}

func (f *fakeStore) SaveSnapshot(s *storage.WeatherSnapshot) error {
	f.saved = append(f.saved, s)
	return nil
}

func (f *fakeStore) CleanOldSnapshots(time.Duration) (int64, error) {
	f.cleaned++
	return 0, nil
}

type fakePublisher struct {
	published []*widget.Card
	closed    bool
}

func (f *fakePublisher) Publish(card *widget.Card) error {
	f.published = append(f.published, card)
	return nil
}

func (f *fakePublisher) Close() { f.closed = true }

func TestCollectOnce(t *testing.T) {
	source := &fakeSource{moments: []sunrise.Moment{sunrise.Day, sunrise.Night}}
	store := &fakeStore{}
	pub := &fakePublisher{}

	c := NewCollector(CollectorConfig{Source: source, Database: store, Publisher: pub, Enabled: true})

	card, err := c.CollectOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, sunrise.Day, card.Moment)
	assert.Same(t, card, c.GetLatestCard())

	_, err = c.CollectOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, sunrise.Night, c.GetLatestCard().Moment)

	require.Len(t, store.saved, 2)
	snap := store.saved[0]
	assert.Equal(t, "臺北市", snap.CityName)
	assert.Equal(t, "day", snap.Moment)
	assert.Equal(t, "fake", snap.Provider)
	assert.Equal(t, 40, snap.RainProbability)
	assert.InDelta(t, 27, snap.Temperature, 0.001)
	assert.Len(t, pub.published, 2)

	c.Stop()
	assert.True(t, pub.closed)
}

func TestCollectOnceError(t *testing.T) {
	c := NewCollector(CollectorConfig{Source: &fakeSource{err: errors.New("boom")}})
	_, err := c.CollectOnce(context.Background())
	assert.Error(t, err)
	assert.Nil(t, c.GetLatestCard())

	_, err = NewCollector(CollectorConfig{}).CollectOnce(context.Background())
	assert.Error(t, err)
}

func TestSnapshotWithoutWeather(t *testing.T) {
	snap := snapshotFromCard(&widget.Card{CityName: "臺北市", Moment: sunrise.Unknown})
	assert.Equal(t, -1, snap.RainProbability)
	assert.Empty(t, snap.Provider)
}

func TestStartStopsWithContext(t *testing.T) {
	source := &fakeSource{moments: []sunrise.Moment{sunrise.Day}}
	store := &fakeStore{}
	c := NewCollector(CollectorConfig{
		Source:    source,
		Database:  store,
		Interval:  time.Hour,
		Retention: time.Hour,
		Enabled:   true,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Start(ctx) }()

	require.Eventually(t, func() bool { return c.GetLatestCard() != nil }, time.Second, 10*time.Millisecond)
	assert.True(t, c.IsCollecting())

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("collector did not stop")
	}
	assert.False(t, c.IsCollecting())
	assert.Equal(t, 1, store.cleaned)
}

func TestStartDisabled(t *testing.T) {
	c := NewCollector(CollectorConfig{Enabled: false})
	assert.NoError(t, c.Start(context.Background()))

	c = NewCollector(CollectorConfig{Enabled: true})
	assert.Error(t, c.Start(context.Background()))
}
