package sunrise

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

//go:embed sunrise-sunset.json
var defaultTable []byte

const (
	DateLayout  = "2006-01-02"
	clockLayout = "15:04"
)

// ErrSunriseDataUnavailable is returned when the table has no entry for a
// location or for a date of that location.
var ErrSunriseDataUnavailable = errors.New("sunrise data unavailable")

// Entry is one day of recorded sunrise and sunset local times.
type Entry struct {
	Date    string `json:"dataTime"`
	Sunrise string `json:"sunrise"`
	Sunset  string `json:"sunset"`

	day  time.Time
	rise clockTime
	set  clockTime
}

// clockTime is a wall clock reading, kept apart from any date so that it can
// be placed on a calendar day in a zone with DST transitions.
type clockTime struct {
	hour, min, sec int
}

func (c clockTime) seconds() int {
	return c.hour*3600 + c.min*60 + c.sec
}

// Location groups the entries of one sunrise table key.
type Location struct {
	LocationName string  `json:"locationName"`
	Entries      []Entry `json:"time"`
}

// Table is an immutable sunrise/sunset dataset indexed by location name and
// date. It is safe for concurrent use.
type Table struct {
	locations []Location
	byName    map[string]map[string]Entry
}

func NewTable(locations []Location) (*Table, error) {
	t := &Table{
		locations: make([]Location, 0, len(locations)),
		byName:    make(map[string]map[string]Entry, len(locations)),
	}

	for _, loc := range locations {
		if loc.LocationName == "" {
			return nil, fmt.Errorf("sunrise location with empty name")
		}
		if _, exists := t.byName[loc.LocationName]; exists {
			return nil, fmt.Errorf("duplicate sunrise location %q", loc.LocationName)
		}

		entries := make(map[string]Entry, len(loc.Entries))
		parsed := make([]Entry, 0, len(loc.Entries))
		for _, e := range loc.Entries {
			if err := e.parse(); err != nil {
				return nil, fmt.Errorf("sunrise location %q: %w", loc.LocationName, err)
			}
			if _, exists := entries[e.Date]; exists {
				return nil, fmt.Errorf("sunrise location %q: duplicate date %s", loc.LocationName, e.Date)
			}
			entries[e.Date] = e
			parsed = append(parsed, e)
		}

		t.byName[loc.LocationName] = entries
		t.locations = append(t.locations, Location{LocationName: loc.LocationName, Entries: parsed})
	}

	return t, nil
}

func (e *Entry) parse() error {
	day, err := time.Parse(DateLayout, e.Date)
	if err != nil {
		return fmt.Errorf("invalid date %q: %w", e.Date, err)
	}
	rise, err := parseClock(e.Sunrise)
	if err != nil {
		return fmt.Errorf("%s: invalid sunrise: %w", e.Date, err)
	}
	set, err := parseClock(e.Sunset)
	if err != nil {
		return fmt.Errorf("%s: invalid sunset: %w", e.Date, err)
	}
	if set.seconds() < rise.seconds() {
		return fmt.Errorf("%s: sunset %s before sunrise %s", e.Date, e.Sunset, e.Sunrise)
	}

	e.day = day
	e.rise = rise
	e.set = set
	return nil
}

// parseClock accepts "15:04" and "15:04:05".
func parseClock(value string) (clockTime, error) {
	t, err := time.Parse(clockLayout, value)
	if err != nil {
		t, err = time.Parse(clockLayout+":05", value)
		if err != nil {
			return clockTime{}, err
		}
	}
	return clockTime{hour: t.Hour(), min: t.Minute(), sec: t.Second()}, nil
}

// At returns the sunrise and sunset instants of the entry in tz. The wall
// clock readings are placed on the entry's date directly, so a DST change
// earlier that day does not shift them.
func (e Entry) At(tz *time.Location) (rise, set time.Time) {
	y, m, d := e.day.Date()
	rise = time.Date(y, m, d, e.rise.hour, e.rise.min, e.rise.sec, 0, tz)
	set = time.Date(y, m, d, e.set.hour, e.set.min, e.set.sec, 0, tz)
	return rise, set
}

// Load reads a table in the dataset JSON format.
func Load(r io.Reader) (*Table, error) {
	var locations []Location
	if err := json.NewDecoder(r).Decode(&locations); err != nil {
		return nil, fmt.Errorf("decode sunrise table: %w", err)
	}
	return NewTable(locations)
}

func LoadFile(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open sunrise file: %w", err)
	}
	defer f.Close()
	return Load(f)
}

var loadDefault = sync.OnceValues(func() (*Table, error) {
	return Load(bytes.NewReader(defaultTable))
})

// Default returns the table built from the embedded dataset. The dataset is
// decoded once and the table is shared between callers.
func Default() (*Table, error) {
	return loadDefault()
}

// Write encodes locations in the dataset JSON format.
func Write(w io.Writer, locations []Location) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(locations)
}

// Lookup returns the entry of a location for a date key (YYYY-MM-DD).
func (t *Table) Lookup(locationName, date string) (Entry, error) {
	entries, ok := t.byName[locationName]
	if !ok {
		return Entry{}, fmt.Errorf("%w: no location %q", ErrSunriseDataUnavailable, locationName)
	}
	entry, ok := entries[date]
	if !ok {
		return Entry{}, fmt.Errorf("%w: no entry for %q on %s", ErrSunriseDataUnavailable, locationName, date)
	}
	return entry, nil
}

func (t *Table) Has(locationName string) bool {
	_, ok := t.byName[locationName]
	return ok
}

func (t *Table) Locations() []Location {
	out := make([]Location, len(t.locations))
	for i, loc := range t.locations {
		out[i] = Location{
			LocationName: loc.LocationName,
			Entries:      append([]Entry(nil), loc.Entries...),
		}
	}
	return out
}
