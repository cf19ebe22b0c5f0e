package sunrise

import (
	"fmt"
	"time"

	gosunrise "github.com/nathan-osman/go-sunrise"
)

// Site is a sunrise table key with the coordinates used to compute it.
type Site struct {
	Name      string
	Latitude  float64
	Longitude float64
}

// Generate computes a table for every site from the first to the last local
// date, both inclusive. Days without a sunrise or sunset (polar day/night)
// are left out.
func Generate(sites []Site, from, to time.Time, tz *time.Location) ([]Location, error) {
	if tz == nil {
		tz = time.UTC
	}
	first := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, tz)
	last := time.Date(to.Year(), to.Month(), to.Day(), 0, 0, 0, 0, tz)
	if last.Before(first) {
		return nil, fmt.Errorf("invalid range: %s is before %s", last.Format(DateLayout), first.Format(DateLayout))
	}

	seen := make(map[string]bool, len(sites))
	locations := make([]Location, 0, len(sites))
	for _, site := range sites {
		if seen[site.Name] {
			continue
		}
		seen[site.Name] = true

		loc := Location{LocationName: site.Name}
		for day := first; !day.After(last); day = day.AddDate(0, 0, 1) {
			rise, set := gosunrise.SunriseSunset(site.Latitude, site.Longitude, day.Year(), day.Month(), day.Day())
			if rise.IsZero() || set.IsZero() {
				continue
			}
			loc.Entries = append(loc.Entries, Entry{
				Date:    day.Format(DateLayout),
				Sunrise: rise.In(tz).Format(clockLayout),
				Sunset:  set.In(tz).Format(clockLayout),
			})
		}
		locations = append(locations, loc)
	}

	return locations, nil
}
