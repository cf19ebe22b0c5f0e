package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"weather-card/internal/location"
)

const openWeatherDefaultURL = "https://api.openweathermap.org/data/2.5/weather"

// OpenWeatherClient only reports current conditions; its reports carry no
// forecast.
type OpenWeatherClient struct {
	apiKey   string
	endpoint string
	units    string
	client   *http.Client
}

func NewOpenWeatherClient(apiKey, baseURL, units string) *OpenWeatherClient {
	if units == "" {
		units = "metric"
	}
	endpoint := openWeatherDefaultURL
	if base := strings.TrimRight(strings.TrimSpace(baseURL), "/"); base != "" {
		endpoint = base + "/data/2.5/weather"
	}
	return &OpenWeatherClient{
		apiKey:   apiKey,
		endpoint: endpoint,
		units:    units,
		client:   newHTTPClient(),
	}
}

func (c *OpenWeatherClient) Name() string {
	return "openweather"
}

type openWeatherResponse struct {
	Name    string `json:"name"`
	Weather []struct {
		Main        string `json:"main"`
		Description string `json:"description"`
	} `json:"weather"`
	Main struct {
		Temp     float64 `json:"temp"`
		Humidity float64 `json:"humidity"`
	} `json:"main"`
	Wind struct {
		Speed float64 `json:"speed"`
	} `json:"wind"`
	Dt       int64 `json:"dt"`
	Timezone int64 `json:"timezone"`
}

func (c *OpenWeatherClient) Get(ctx context.Context, loc location.Record) (*Report, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("openweather api key is empty")
	}

	query := url.Values{}
	query.Set("appid", c.apiKey)
	query.Set("units", c.units)
	query.Set("lang", "zh_tw")

	if loc.HasCoordinates() {
		query.Set("lat", fmt.Sprintf("%.6f", loc.Latitude))
		query.Set("lon", fmt.Sprintf("%.6f", loc.Longitude))
	} else if loc.CityName != "" {
		query.Set("q", fmt.Sprintf("%s,TW", loc.CityName))
	} else {
		return nil, fmt.Errorf("openweather location is empty")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"?"+query.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("openweather request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("openweather request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("openweather bad status: %s", resp.Status)
	}

	var payload openWeatherResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("openweather decode: %w", err)
	}

	condition := ""
	description := ""
	if len(payload.Weather) > 0 {
		condition = payload.Weather[0].Main
		description = payload.Weather[0].Description
	}

	zone := time.FixedZone("", int(payload.Timezone))
	station := payload.Name
	if station == "" {
		station = loc.CityName
	}

	return &Report{
		Provider: c.Name(),
		CityName: loc.CityName,
		Observation: Observation{
			Station:     station,
			ObservedAt:  time.Unix(payload.Dt, 0).In(zone),
			Temperature: payload.Main.Temp,
			Humidity:    payload.Main.Humidity,
			WindSpeed:   payload.Wind.Speed,
			Condition:   condition,
			Description: description,
		},
		FetchedAt: time.Now(),
	}, nil
}
