package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"weather-card/internal/location"
)

const (
	openMeteoForecastURL  = "https://api.open-meteo.com/v1/forecast"
	openMeteoGeocodingURL = "https://geocoding-api.open-meteo.com/v1/search"
	openMeteoForecastDays = 3
)

type OpenMeteoClient struct {
	forecastURL  string
	geocodingURL string
	units        string
	client       *http.Client

	mu          sync.Mutex
	coordinates map[string][2]float64
}

func NewOpenMeteoClient(baseURL, units string) *OpenMeteoClient {
	if units == "" {
		units = "metric"
	}
	forecastURL := openMeteoForecastURL
	geocodingURL := openMeteoGeocodingURL
	if base := strings.TrimRight(strings.TrimSpace(baseURL), "/"); base != "" {
		forecastURL = base + "/v1/forecast"
		geocodingURL = base + "/v1/search"
	}
	return &OpenMeteoClient{
		forecastURL:  forecastURL,
		geocodingURL: geocodingURL,
		units:        units,
		client:       newHTTPClient(),
		coordinates:  map[string][2]float64{},
	}
}

func (c *OpenMeteoClient) Name() string {
	return "openmeteo"
}

type openMeteoResponse struct {
	Timezone string `json:"timezone"`
	Current  struct {
		Time             string  `json:"time"`
		WeatherCode      int     `json:"weather_code"`
		Temperature      float64 `json:"temperature_2m"`
		RelativeHumidity float64 `json:"relative_humidity_2m"`
		WindSpeed        float64 `json:"wind_speed_10m"`
	} `json:"current"`
	Daily struct {
		Time                     []string  `json:"time"`
		WeatherCode              []int     `json:"weather_code"`
		TemperatureMax           []float64 `json:"temperature_2m_max"`
		TemperatureMin           []float64 `json:"temperature_2m_min"`
		PrecipitationProbability []int     `json:"precipitation_probability_max"`
	} `json:"daily"`
}

type openMeteoGeoResponse struct {
	Results []struct {
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
	} `json:"results"`
}

func (c *OpenMeteoClient) Get(ctx context.Context, loc location.Record) (*Report, error) {
	lat, lon, err := c.resolveLocation(ctx, loc)
	if err != nil {
		return nil, err
	}

	query := url.Values{}
	query.Set("latitude", fmt.Sprintf("%.6f", lat))
	query.Set("longitude", fmt.Sprintf("%.6f", lon))
	query.Set("current", "weather_code,temperature_2m,relative_humidity_2m,wind_speed_10m")
	query.Set("daily", "weather_code,temperature_2m_max,temperature_2m_min,precipitation_probability_max")
	query.Set("timezone", "auto")
	query.Set("forecast_days", fmt.Sprintf("%d", openMeteoForecastDays))
	query.Set("wind_speed_unit", "ms")
	if c.units == "imperial" {
		query.Set("temperature_unit", "fahrenheit")
	}

	var payload openMeteoResponse
	if err := c.fetch(ctx, c.forecastURL+"?"+query.Encode(), &payload); err != nil {
		return nil, err
	}

	if strings.TrimSpace(payload.Current.Time) == "" {
		return nil, fmt.Errorf("open-meteo current data missing")
	}

	observed, tz := parseOpenMeteoTime(payload.Current.Time, payload.Timezone)
	condition, description := openMeteoDescribe(payload.Current.WeatherCode)

	return &Report{
		Provider: c.Name(),
		CityName: loc.CityName,
		Observation: Observation{
			Station:     loc.CityName,
			ObservedAt:  observed,
			Temperature: payload.Current.Temperature,
			Humidity:    payload.Current.RelativeHumidity,
			WindSpeed:   payload.Current.WindSpeed,
			Condition:   condition,
			Description: description,
		},
		Forecast:  openMeteoDaily(payload, tz),
		FetchedAt: time.Now(),
	}, nil
}

func openMeteoDaily(payload openMeteoResponse, tz *time.Location) []ForecastPeriod {
	daily := payload.Daily
	periods := make([]ForecastPeriod, 0, len(daily.Time))
	for i, day := range daily.Time {
		start, err := time.ParseInLocation("2006-01-02", day, tz)
		if err != nil {
			continue
		}
		p := ForecastPeriod{
			Start: start,
			End:   start.AddDate(0, 0, 1),
		}
		if i < len(daily.WeatherCode) {
			p.WeatherCode = daily.WeatherCode[i]
			_, p.Description = openMeteoDescribe(p.WeatherCode)
		}
		if i < len(daily.TemperatureMin) {
			p.MinTemperature = daily.TemperatureMin[i]
		}
		if i < len(daily.TemperatureMax) {
			p.MaxTemperature = daily.TemperatureMax[i]
		}
		if i < len(daily.PrecipitationProbability) {
			p.RainProbability = daily.PrecipitationProbability[i]
		}
		periods = append(periods, p)
	}
	return periods
}

func (c *OpenMeteoClient) resolveLocation(ctx context.Context, loc location.Record) (float64, float64, error) {
	if loc.HasCoordinates() {
		return loc.Latitude, loc.Longitude, nil
	}

	if strings.TrimSpace(loc.CityName) == "" {
		return 0, 0, fmt.Errorf("open-meteo location is empty")
	}

	c.mu.Lock()
	coords, ok := c.coordinates[loc.CityName]
	c.mu.Unlock()
	if ok {
		return coords[0], coords[1], nil
	}

	query := url.Values{}
	query.Set("name", loc.CityName)
	query.Set("count", "1")
	query.Set("language", "zh")
	query.Set("format", "json")
	query.Set("countryCode", "TW")

	var payload openMeteoGeoResponse
	if err := c.fetch(ctx, c.geocodingURL+"?"+query.Encode(), &payload); err != nil {
		return 0, 0, fmt.Errorf("open-meteo geocoding: %w", err)
	}

	if len(payload.Results) == 0 {
		return 0, 0, fmt.Errorf("open-meteo geocoding found no results for %q", loc.CityName)
	}

	lat, lon := payload.Results[0].Latitude, payload.Results[0].Longitude
	c.mu.Lock()
	c.coordinates[loc.CityName] = [2]float64{lat, lon}
	c.mu.Unlock()

	return lat, lon, nil
}

func (c *OpenMeteoClient) fetch(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("open-meteo request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("open-meteo request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("open-meteo bad status: %s", resp.Status)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("open-meteo decode: %w", err)
	}
	return nil
}

func parseOpenMeteoTime(value, timezone string) (time.Time, *time.Location) {
	loc := time.UTC
	if strings.TrimSpace(timezone) != "" {
		if parsed, err := time.LoadLocation(timezone); err == nil {
			loc = parsed
		}
	}

	if t, err := time.ParseInLocation("2006-01-02T15:04", value, loc); err == nil {
		return t, loc
	}
	if t, err := time.ParseInLocation(time.RFC3339, value, loc); err == nil {
		return t, loc
	}
	return time.Time{}, loc
}

// openMeteoDescribe maps WMO weather codes to a condition and a zh-TW label.
func openMeteoDescribe(code int) (string, string) {
	switch code {
	case 0:
		return "Clear", "晴天"
	case 1:
		return "Clouds", "晴時多雲"
	case 2:
		return "Clouds", "多雲"
	case 3:
		return "Clouds", "陰天"
	case 45, 48:
		return "Fog", "有霧"
	case 51, 53, 55, 56, 57:
		return "Drizzle", "毛毛雨"
	case 61, 63, 65, 66, 67:
		return "Rain", "下雨"
	case 71, 73, 75, 77:
		return "Snow", "下雪"
	case 80, 81, 82:
		return "Rain", "陣雨"
	case 85, 86:
		return "Snow", "陣雪"
	case 95:
		return "Thunderstorm", "雷雨"
	case 96, 99:
		return "Thunderstorm", "雷雨伴隨冰雹"
	default:
		return "Unknown", "未知天氣"
	}
}
