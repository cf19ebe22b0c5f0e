package weather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"weather-card/internal/cache"
	"weather-card/internal/location"
	"weather-card/internal/metrics"

	"github.com/rs/zerolog/log"
)

type Options struct {
	Provider string
	APIKey   string
	BaseURL  string
	Units    string
}

// NewProvider builds the provider named in opts.
func NewProvider(opts Options) (Provider, error) {
	switch strings.ToLower(strings.TrimSpace(opts.Provider)) {
	case "cwa", "cwb", "":
		return NewCWAClient(opts.APIKey, opts.BaseURL), nil
	case "openmeteo", "open-meteo", "open_meteo":
		return NewOpenMeteoClient(opts.BaseURL, opts.Units), nil
	case "openweather":
		return NewOpenWeatherClient(opts.APIKey, opts.BaseURL, opts.Units), nil
	default:
		return nil, fmt.Errorf("weather provider not supported: %s", opts.Provider)
	}
}

// staleFactor bounds how long a report is kept past its freshness window as
// a fallback for failed fetches.
const staleFactor = 6

// CachedProvider serves reports from a cache for ttl and falls back to the
// last stored report when the wrapped provider fails.
type CachedProvider struct {
	next  Provider
	store cache.Store
	ttl   time.Duration
	now   func() time.Time
}

func NewCachedProvider(next Provider, store cache.Store, ttl time.Duration) *CachedProvider {
	return &CachedProvider{
		next:  next,
		store: store,
		ttl:   ttl,
		now:   time.Now,
	}
}

func (c *CachedProvider) Name() string {
	return c.next.Name()
}

func (c *CachedProvider) key(loc location.Record) string {
	return "weather:" + c.next.Name() + ":" + loc.CityName
}

func (c *CachedProvider) Get(ctx context.Context, loc location.Record) (*Report, error) {
	key := c.key(loc)
	cached := c.load(ctx, key)
	if cached != nil && c.now().Sub(cached.FetchedAt) < c.ttl {
		metrics.IncCacheLookup("hit")
		return cached, nil
	}

	start := c.now()
	report, err := c.next.Get(ctx, loc)
	if err != nil {
		metrics.ObserveWeatherFetch(c.next.Name(), metrics.ResultError, c.now().Sub(start))
		if cached != nil {
			metrics.IncCacheLookup("stale")
			log.Warn().Err(err).Str("city", loc.CityName).Msg("weather fetch failed, serving cached report")
			return cached, nil
		}
		metrics.IncCacheLookup("miss")
		return nil, err
	}
	metrics.ObserveWeatherFetch(c.next.Name(), metrics.ResultSuccess, c.now().Sub(start))
	metrics.IncCacheLookup("miss")

	report.FetchedAt = c.now()
	payload, err := json.Marshal(report)
	if err == nil {
		err = c.store.Set(ctx, key, payload, c.ttl*staleFactor)
	}
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("weather cache write failed")
	}

	return report, nil
}

func (c *CachedProvider) load(ctx context.Context, key string) *Report {
	payload, err := c.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, cache.ErrMiss) {
			log.Warn().Err(err).Str("key", key).Msg("weather cache read failed")
		}
		return nil
	}

	var report Report
	if err := json.Unmarshal(payload, &report); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("weather cache entry is corrupt")
		return nil
	}
	return &report
}
