package storage

import (
	"time"

	"gorm.io/gorm"
)

// Setting is a key-value pair, such as the last selected city.
type Setting struct {
	Key       string    `gorm:"primaryKey" json:"key"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

// WeatherSnapshot is one card as it was built by the collector.
type WeatherSnapshot struct {
	gorm.Model
	Timestamp time.Time `gorm:"index" json:"timestamp"`
	CityName  string    `gorm:"index" json:"city_name"`
	Provider  string    `json:"provider"`

	// Observation
	Station     string    `json:"station"`
	ObservedAt  time.Time `json:"observed_at"`
	Temperature float64   `json:"temperature_c"`
	Humidity    float64   `json:"humidity_pct"`
	WindSpeed   float64   `json:"wind_speed_ms"`

	// Forecast head
	Description     string `json:"description"`
	RainProbability int    `json:"rain_probability_pct"`

	Moment string `json:"moment"`
}
