package location

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

//go:embed locations.json
var defaultLocations []byte

// ErrLocationNotFound is returned when a city name has no exact match.
var ErrLocationNotFound = errors.New("location not found")

// Stations holds the weather API identifiers for a city.
type Stations struct {
	Observation string `json:"observation"`
	Forecast    string `json:"forecast"`
}

// Record binds a display city name to its weather stations and to the key
// of its sunrise table.
type Record struct {
	CityName        string   `json:"city_name"`
	SunriseCityName string   `json:"sunrise_city_name"`
	Stations        Stations `json:"stations"`
	Latitude        float64  `json:"latitude"`
	Longitude       float64  `json:"longitude"`
}

// HasCoordinates reports whether the record can be used by
// coordinate-based providers.
func (r Record) HasCoordinates() bool {
	return r.Latitude != 0 || r.Longitude != 0
}

type fileRecord struct {
	CityName        string  `json:"cityName"`
	LocationName    string  `json:"locationName"`
	ForecastName    string  `json:"forecastName"`
	SunriseCityName string  `json:"sunriseCityName"`
	Latitude        float64 `json:"latitude"`
	Longitude       float64 `json:"longitude"`
}

// Index is an immutable lookup of location records by city name.
type Index struct {
	records []Record
	byCity  map[string]int
}

func NewIndex(records []Record) (*Index, error) {
	idx := &Index{
		records: make([]Record, 0, len(records)),
		byCity:  make(map[string]int, len(records)),
	}
	for _, r := range records {
		if strings.TrimSpace(r.CityName) == "" {
			return nil, fmt.Errorf("location record with empty city name")
		}
		if _, exists := idx.byCity[r.CityName]; exists {
			return nil, fmt.Errorf("duplicate city name %q", r.CityName)
		}
		idx.byCity[r.CityName] = len(idx.records)
		idx.records = append(idx.records, r)
	}
	return idx, nil
}

// Load reads a JSON array of locations in the dataset format.
func Load(r io.Reader) (*Index, error) {
	var raw []fileRecord
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode locations: %w", err)
	}

	records := make([]Record, 0, len(raw))
	for _, fr := range raw {
		forecast := fr.ForecastName
		if forecast == "" {
			forecast = fr.CityName
		}
		records = append(records, Record{
			CityName:        fr.CityName,
			SunriseCityName: fr.SunriseCityName,
			Stations: Stations{
				Observation: fr.LocationName,
				Forecast:    forecast,
			},
			Latitude:  fr.Latitude,
			Longitude: fr.Longitude,
		})
	}
	return NewIndex(records)
}

func LoadFile(path string) (*Index, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open locations file: %w", err)
	}
	defer f.Close()
	return Load(f)
}

// Default returns the index built from the embedded dataset.
func Default() (*Index, error) {
	return Load(bytes.NewReader(defaultLocations))
}

// Resolve returns the record whose city name equals cityName exactly.
func (i *Index) Resolve(cityName string) (Record, error) {
	pos, ok := i.byCity[cityName]
	if !ok {
		return Record{}, fmt.Errorf("%w: %q", ErrLocationNotFound, cityName)
	}
	return i.records[pos], nil
}

// All returns the records in dataset order.
func (i *Index) All() []Record {
	out := make([]Record, len(i.records))
	copy(out, i.records)
	return out
}

func (i *Index) Len() int {
	return len(i.records)
}
