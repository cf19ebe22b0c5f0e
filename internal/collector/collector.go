package collector

import (
	"context"
	"fmt"
	"sync"
	"time"

	"weather-card/internal/location"
	"weather-card/internal/storage"
	"weather-card/internal/sunrise"
	"weather-card/internal/widget"

	"github.com/rs/zerolog/log"
)

type CardSource interface {
	CurrentCity() location.Record
	Card(ctx context.Context, cityName string) (*widget.Card, error)
}

type SnapshotStore interface {
	SaveSnapshot(snapshot *storage.WeatherSnapshot) error
	CleanOldSnapshots(olderThan time.Duration) (int64, error)
}

type CardPublisher interface {
	Publish(card *widget.Card) error
	Close()
}

// Collector rebuilds the card of the current city on a timer, stores a
// snapshot of it and publishes it.
type Collector struct {
	source    CardSource
	db        SnapshotStore
	publisher CardPublisher
	interval  time.Duration
	retention time.Duration
	enabled   bool

	mu           sync.RWMutex
	latestCard   *widget.Card
	lastMoment   map[string]sunrise.Moment
	isCollecting bool
}

type CollectorConfig struct {
	Source    CardSource
	Database  SnapshotStore
	Publisher CardPublisher
	Interval  time.Duration
	Retention time.Duration
	Enabled   bool
}

func NewCollector(cfg CollectorConfig) *Collector {
	return &Collector{
		source:     cfg.Source,
		db:         cfg.Database,
		publisher:  cfg.Publisher,
		interval:   cfg.Interval,
		retention:  cfg.Retention,
		enabled:    cfg.Enabled,
		lastMoment: map[string]sunrise.Moment{},
	}
}

func (c *Collector) Start(ctx context.Context) error {
	if !c.enabled {
		log.Info().Msg("collector is disabled")
		return nil
	}
	if c.interval <= 0 {
		return fmt.Errorf("collector interval must be positive, got %s", c.interval)
	}

	c.mu.Lock()
	c.isCollecting = true
	c.mu.Unlock()

	log.Info().Dur("interval", c.interval).Msg("starting collector")

	c.collect(ctx)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("collector stopped")
			c.mu.Lock()
			c.isCollecting = false
			c.mu.Unlock()
			return nil
		case <-ticker.C:
			c.collect(ctx)
		}
	}
}

func (c *Collector) collect(ctx context.Context) {
	if _, err := c.CollectOnce(ctx); err != nil {
		log.Error().Err(err).Msg("collect failed")
	}

	if c.db != nil && c.retention > 0 {
		if removed, err := c.db.CleanOldSnapshots(c.retention); err != nil {
			log.Error().Err(err).Msg("failed to clean old snapshots")
		} else if removed > 0 {
			log.Debug().Int64("removed", removed).Msg("old snapshots removed")
		}
	}
}

// CollectOnce builds, stores and publishes the card of the current city.
func (c *Collector) CollectOnce(ctx context.Context) (*widget.Card, error) {
	if c.source == nil {
		return nil, fmt.Errorf("collector has no card source")
	}

	city := c.source.CurrentCity()
	card, err := c.source.Card(ctx, city.CityName)
	if err != nil {
		return nil, fmt.Errorf("build card for %s: %w", city.CityName, err)
	}

	c.mu.Lock()
	c.latestCard = card
	previous, seen := c.lastMoment[card.CityName]
	c.lastMoment[card.CityName] = card.Moment
	c.mu.Unlock()

	if seen && previous != card.Moment {
		log.Info().
			Str("city", card.CityName).
			Str("from", string(previous)).
			Str("to", string(card.Moment)).
			Msg("moment changed")
	}

	if c.db != nil {
		if err := c.db.SaveSnapshot(snapshotFromCard(card)); err != nil {
			log.Error().Err(err).Msg("error saving snapshot")
		}
	}

	if c.publisher != nil {
		if err := c.publisher.Publish(card); err != nil {
			log.Error().Err(err).Msg("error publishing to MQTT")
		}
	}

	ev := log.Info().Str("city", card.CityName).Str("moment", string(card.Moment))
	if card.Weather != nil {
		ev = ev.Float64("temperature", card.Weather.Observation.Temperature).Str("summary", card.Summary)
	} else {
		ev = ev.Str("weather_error", card.WeatherError)
	}
	ev.Msg("collected")

	return card, nil
}

func snapshotFromCard(card *widget.Card) *storage.WeatherSnapshot {
	snapshot := &storage.WeatherSnapshot{
		Timestamp:       card.GeneratedAt,
		CityName:        card.CityName,
		Moment:          string(card.Moment),
		Description:     card.Summary,
		RainProbability: -1,
	}
	if r := card.Weather; r != nil {
		snapshot.Provider = r.Provider
		snapshot.Station = r.Observation.Station
		snapshot.ObservedAt = r.Observation.ObservedAt
		snapshot.Temperature = r.Observation.Temperature
		snapshot.Humidity = r.Observation.Humidity
		snapshot.WindSpeed = r.Observation.WindSpeed
		snapshot.RainProbability = r.RainProbability()
	}
	return snapshot
}

func (c *Collector) GetLatestCard() *widget.Card {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.latestCard
}

func (c *Collector) IsCollecting() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.isCollecting
}

func (c *Collector) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.publisher != nil {
		c.publisher.Close()
	}
}
