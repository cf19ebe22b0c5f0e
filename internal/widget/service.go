package widget

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"weather-card/internal/clock"
	"weather-card/internal/location"
	"weather-card/internal/metrics"
	"weather-card/internal/storage"
	"weather-card/internal/sunrise"
	"weather-card/internal/weather"

	"github.com/rs/zerolog/log"
)

// Settings persists string values by key. *storage.Database implements it.
type Settings interface {
	GetSetting(key string) (string, error)
	SetSetting(key, value string) error
}

type Config struct {
	Locations   *location.Index
	Moments     *sunrise.Resolver
	Weather     weather.Provider
	Settings    Settings
	Clock       clock.Clock
	DefaultCity string
}

// Service resolves cities, moments and weather into cards.
type Service struct {
	locations   *location.Index
	moments     *sunrise.Resolver
	settings    Settings
	clock       clock.Clock
	defaultCity location.Record

	mu      sync.RWMutex
	weather weather.Provider
}

// MomentResult is a moment together with the sun times it was derived from.
type MomentResult struct {
	CityName string         `json:"city_name"`
	Moment   sunrise.Moment `json:"moment"`
	Theme    string         `json:"theme"`
	Sunrise  *time.Time     `json:"sunrise,omitempty"`
	Sunset   *time.Time     `json:"sunset,omitempty"`
	At       time.Time      `json:"at"`
}

type Card struct {
	CityName     string          `json:"city_name"`
	Location     location.Record `json:"location"`
	Moment       sunrise.Moment  `json:"moment"`
	Theme        string          `json:"theme"`
	Sunrise      *time.Time      `json:"sunrise,omitempty"`
	Sunset       *time.Time      `json:"sunset,omitempty"`
	Summary      string          `json:"summary,omitempty"`
	Weather      *weather.Report `json:"weather,omitempty"`
	WeatherError string          `json:"weather_error,omitempty"`
	GeneratedAt  time.Time       `json:"generated_at"`
}

func NewService(cfg Config) (*Service, error) {
	if cfg.Locations == nil || cfg.Moments == nil {
		return nil, fmt.Errorf("widget: locations and moments are required")
	}

	def, err := cfg.Locations.Resolve(cfg.DefaultCity)
	if err != nil {
		return nil, fmt.Errorf("widget: default city: %w", err)
	}

	settings := cfg.Settings
	if settings == nil {
		settings = newMemorySettings()
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.System{}
	}

	return &Service{
		locations:   cfg.Locations,
		moments:     cfg.Moments,
		settings:    settings,
		clock:       clk,
		defaultCity: def,
		weather:     cfg.Weather,
	}, nil
}

// SetWeatherProvider swaps the provider at runtime; nil disables weather.
func (s *Service) SetWeatherProvider(p weather.Provider) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.weather = p
}

func (s *Service) weatherProvider() weather.Provider {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.weather
}

func (s *Service) Locations() []location.Record {
	return s.locations.All()
}

func (s *Service) Resolve(cityName string) (location.Record, error) {
	return s.locations.Resolve(cityName)
}

func (s *Service) DefaultCity() location.Record {
	return s.defaultCity
}

// CurrentCity returns the stored city, or the default city when nothing is
// stored or the stored name is no longer known.
func (s *Service) CurrentCity() location.Record {
	name, err := s.settings.GetSetting(storage.SettingCurrentCity)
	if err != nil {
		if !errors.Is(err, storage.ErrSettingNotFound) {
			log.Warn().Err(err).Msg("failed to read current city, using default")
		}
		return s.defaultCity
	}

	rec, err := s.locations.Resolve(name)
	if err != nil {
		log.Warn().Str("city", name).Msg("stored city is unknown, using default")
		return s.defaultCity
	}
	return rec
}

// SelectCity validates and persists the city the card should show.
func (s *Service) SelectCity(cityName string) (location.Record, error) {
	rec, err := s.locations.Resolve(cityName)
	if err != nil {
		metrics.IncCitySelection(metrics.ResultError)
		return location.Record{}, err
	}
	if err := s.settings.SetSetting(storage.SettingCurrentCity, rec.CityName); err != nil {
		metrics.IncCitySelection(metrics.ResultError)
		return location.Record{}, fmt.Errorf("save current city: %w", err)
	}
	metrics.IncCitySelection(metrics.ResultSuccess)
	log.Info().Str("city", rec.CityName).Msg("city selected")
	return rec, nil
}

func (s *Service) cityOrCurrent(cityName string) (location.Record, error) {
	if cityName == "" {
		return s.CurrentCity(), nil
	}
	return s.locations.Resolve(cityName)
}

// Moment resolves day or night for a city now. An empty name uses the
// current city.
func (s *Service) Moment(cityName string) (MomentResult, error) {
	rec, err := s.cityOrCurrent(cityName)
	if err != nil {
		return MomentResult{}, err
	}
	return s.momentFor(rec, s.clock.Now()), nil
}

func (s *Service) momentFor(rec location.Record, now time.Time) MomentResult {
	moment := s.moments.ResolveMoment(rec.SunriseCityName, now)
	metrics.IncMomentResolution(string(moment))

	result := MomentResult{
		CityName: rec.CityName,
		Moment:   moment,
		Theme:    moment.Theme(),
		At:       now,
	}
	if rise, set, err := s.moments.SunTimes(rec.SunriseCityName, now); err == nil {
		result.Sunrise = &rise
		result.Sunset = &set
	} else {
		log.Debug().Err(err).Str("city", rec.CityName).Msg("no sunrise data")
	}
	return result
}

// Card builds the card of a city. A weather failure is reported inside the
// card so the moment and theme stay available.
func (s *Service) Card(ctx context.Context, cityName string) (*Card, error) {
	rec, err := s.cityOrCurrent(cityName)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	m := s.momentFor(rec, now)
	card := &Card{
		CityName:    rec.CityName,
		Location:    rec,
		Moment:      m.Moment,
		Theme:       m.Theme,
		Sunrise:     m.Sunrise,
		Sunset:      m.Sunset,
		GeneratedAt: now,
	}

	provider := s.weatherProvider()
	if provider == nil {
		card.WeatherError = weather.ErrProviderDisabled.Error()
		return card, nil
	}

	report, err := provider.Get(ctx, rec)
	if err != nil {
		log.Error().Err(err).Str("city", rec.CityName).Str("provider", provider.Name()).Msg("weather fetch failed")
		card.WeatherError = err.Error()
		return card, nil
	}

	card.Weather = report
	card.Summary = report.Summary()
	return card, nil
}

type memorySettings struct {
	mu     sync.Mutex
	values map[string]string
}

func newMemorySettings() *memorySettings {
	return &memorySettings{values: map[string]string{}}
}

func (m *memorySettings) GetSetting(key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	if !ok {
		return "", fmt.Errorf("%w: %s", storage.ErrSettingNotFound, key)
	}
	return v, nil
}

func (m *memorySettings) SetSetting(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}
