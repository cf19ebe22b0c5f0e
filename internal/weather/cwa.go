package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"weather-card/internal/location"
)

const (
	cwaDefaultBaseURL  = "https://opendata.cwa.gov.tw/api/v1/rest/datastore"
	cwaObservationData = "O-A0003-001"
	cwaForecastData    = "F-C0032-001"
	cwaTimeLayout      = "2006-01-02 15:04:05"
)

var cwaZone = time.FixedZone("CST", 8*3600)

// CWAClient reads observations and the 36 hour forecast from the Central
// Weather Administration open data API.
type CWAClient struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

func NewCWAClient(apiKey, baseURL string) *CWAClient {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = cwaDefaultBaseURL
	}
	return &CWAClient{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  newHTTPClient(),
	}
}

func (c *CWAClient) Name() string {
	return "cwa"
}

type cwaObservationResponse struct {
	Success string `json:"success"`
	Records struct {
		Station []struct {
			StationName string `json:"StationName"`
			StationID   string `json:"StationId"`
			ObsTime     struct {
				DateTime string `json:"DateTime"`
			} `json:"ObsTime"`
			WeatherElement struct {
				Weather          string  `json:"Weather"`
				AirTemperature   float64 `json:"AirTemperature"`
				RelativeHumidity float64 `json:"RelativeHumidity"`
				WindSpeed        float64 `json:"WindSpeed"`
			} `json:"WeatherElement"`
		} `json:"Station"`
	} `json:"records"`
}

type cwaForecastResponse struct {
	Success string `json:"success"`
	Records struct {
		Location []struct {
			LocationName   string `json:"locationName"`
			WeatherElement []struct {
				ElementName string `json:"elementName"`
				Time        []struct {
					StartTime string `json:"startTime"`
					EndTime   string `json:"endTime"`
					Parameter struct {
						ParameterName  string `json:"parameterName"`
						ParameterValue string `json:"parameterValue"`
					} `json:"parameter"`
				} `json:"time"`
			} `json:"weatherElement"`
		} `json:"location"`
	} `json:"records"`
}

func (c *CWAClient) Get(ctx context.Context, loc location.Record) (*Report, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("cwa api key is empty")
	}

	observation, err := c.getObservation(ctx, loc.Stations.Observation)
	if err != nil {
		return nil, err
	}

	forecast, err := c.getForecast(ctx, loc.Stations.Forecast)
	if err != nil {
		return nil, err
	}

	return &Report{
		Provider:    c.Name(),
		CityName:    loc.CityName,
		Observation: observation,
		Forecast:    forecast,
		FetchedAt:   time.Now(),
	}, nil
}

func (c *CWAClient) getObservation(ctx context.Context, station string) (Observation, error) {
	if strings.TrimSpace(station) == "" {
		return Observation{}, fmt.Errorf("cwa observation station is empty")
	}

	query := url.Values{}
	query.Set("StationName", station)

	var payload cwaObservationResponse
	if err := c.fetch(ctx, cwaObservationData, query, &payload); err != nil {
		return Observation{}, err
	}
	if len(payload.Records.Station) == 0 {
		return Observation{}, fmt.Errorf("cwa observation: no data for station %q", station)
	}

	st := payload.Records.Station[0]
	observed, err := time.Parse(time.RFC3339, st.ObsTime.DateTime)
	if err != nil {
		observed, _ = time.ParseInLocation(cwaTimeLayout, st.ObsTime.DateTime, cwaZone)
	}

	description := strings.TrimSpace(st.WeatherElement.Weather)
	if description == "-99" {
		description = ""
	}

	return Observation{
		Station:     st.StationName,
		ObservedAt:  observed,
		Temperature: missingValue(st.WeatherElement.AirTemperature),
		Humidity:    missingValue(st.WeatherElement.RelativeHumidity),
		WindSpeed:   missingValue(st.WeatherElement.WindSpeed),
		Description: description,
	}, nil
}

func (c *CWAClient) getForecast(ctx context.Context, area string) ([]ForecastPeriod, error) {
	if strings.TrimSpace(area) == "" {
		return nil, fmt.Errorf("cwa forecast area is empty")
	}

	query := url.Values{}
	query.Set("locationName", area)

	var payload cwaForecastResponse
	if err := c.fetch(ctx, cwaForecastData, query, &payload); err != nil {
		return nil, err
	}
	if len(payload.Records.Location) == 0 {
		return nil, fmt.Errorf("cwa forecast: no data for area %q", area)
	}

	var periods []ForecastPeriod
	for _, element := range payload.Records.Location[0].WeatherElement {
		for i, slot := range element.Time {
			if i >= len(periods) {
				start, _ := time.ParseInLocation(cwaTimeLayout, slot.StartTime, cwaZone)
				end, _ := time.ParseInLocation(cwaTimeLayout, slot.EndTime, cwaZone)
				periods = append(periods, ForecastPeriod{Start: start, End: end})
			}
			p := &periods[i]
			param := slot.Parameter
			switch element.ElementName {
			case "Wx":
				p.Description = param.ParameterName
				p.WeatherCode, _ = strconv.Atoi(param.ParameterValue)
			case "PoP":
				p.RainProbability, _ = strconv.Atoi(param.ParameterName)
			case "CI":
				p.Comfort = param.ParameterName
			case "MinT":
				p.MinTemperature, _ = strconv.ParseFloat(param.ParameterName, 64)
			case "MaxT":
				p.MaxTemperature, _ = strconv.ParseFloat(param.ParameterName, 64)
			}
		}
	}

	return periods, nil
}

func (c *CWAClient) fetch(ctx context.Context, dataID string, query url.Values, out any) error {
	query.Set("Authorization", c.apiKey)
	query.Set("format", "JSON")

	endpoint := fmt.Sprintf("%s/%s?%s", c.baseURL, dataID, query.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("cwa request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("cwa request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("cwa %s bad status: %s", dataID, resp.Status)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("cwa %s decode: %w", dataID, err)
	}
	return nil
}
