package weather

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"weather-card/internal/location"
)

// ErrProviderDisabled is returned when no weather provider is configured.
var ErrProviderDisabled = errors.New("weather provider disabled")

type Provider interface {
	Name() string
	Get(ctx context.Context, loc location.Record) (*Report, error)
}

type Observation struct {
	Station     string    `json:"station"`
	ObservedAt  time.Time `json:"observed_at"`
	Temperature float64   `json:"temperature_c"`
	Humidity    float64   `json:"humidity_pct"`
	WindSpeed   float64   `json:"wind_speed_ms"`
	Condition   string    `json:"condition,omitempty"`
	Description string    `json:"description,omitempty"`
}

type ForecastPeriod struct {
	Start           time.Time `json:"start"`
	End             time.Time `json:"end"`
	Description     string    `json:"description"`
	WeatherCode     int       `json:"weather_code"`
	RainProbability int       `json:"rain_probability_pct"`
	Comfort         string    `json:"comfort,omitempty"`
	MinTemperature  float64   `json:"min_temperature_c"`
	MaxTemperature  float64   `json:"max_temperature_c"`
}

type Report struct {
	Provider    string           `json:"provider"`
	CityName    string           `json:"city_name"`
	Observation Observation      `json:"observation"`
	Forecast    []ForecastPeriod `json:"forecast,omitempty"`
	FetchedAt   time.Time        `json:"fetched_at"`
}

// Summary is the short description shown on the card: the first forecast
// period when there is one, the observed weather otherwise.
func (r *Report) Summary() string {
	if r == nil {
		return ""
	}
	if len(r.Forecast) > 0 && strings.TrimSpace(r.Forecast[0].Description) != "" {
		return r.Forecast[0].Description
	}
	return r.Observation.Description
}

// RainProbability of the current forecast period, or -1 when unknown.
func (r *Report) RainProbability() int {
	if r == nil || len(r.Forecast) == 0 {
		return -1
	}
	return r.Forecast[0].RainProbability
}

func newHTTPClient() *http.Client {
	return &http.Client{
		Timeout: 10 * time.Second,
	}
}

// missingValue normalises the sentinel values weather services use for
// absent readings.
func missingValue(v float64) float64 {
	if v <= -99 {
		return 0
	}
	return v
}
