package sunrise

import (
	"time"
)

// Moment is the day/night classification of an instant at a location.
type Moment string

const (
	Day     Moment = "day"
	Night   Moment = "night"
	Unknown Moment = "unknown"
)

// Theme returns the card theme for the moment. Anything that is not day
// uses the dark theme.
func (m Moment) Theme() string {
	if m == Day {
		return "light"
	}
	return "dark"
}

// Resolver decides day or night from the sunrise table.
type Resolver struct {
	table *Table
	tz    *time.Location
}

// NewResolver returns a resolver over table. Dates and clock times of the
// table are read in tz; a nil tz uses the location of the instant passed to
// each call.
func NewResolver(table *Table, tz *time.Location) *Resolver {
	return &Resolver{table: table, tz: tz}
}

func (r *Resolver) local(now time.Time) time.Time {
	if r.tz == nil {
		return now
	}
	return now.In(r.tz)
}

// DateKey is the table key of the local calendar day of now.
func (r *Resolver) DateKey(now time.Time) string {
	return r.local(now).Format(DateLayout)
}

// Lookup returns the table entry covering now's local date.
func (r *Resolver) Lookup(sunriseCityName string, now time.Time) (Entry, error) {
	return r.table.Lookup(sunriseCityName, r.DateKey(now))
}

// SunTimes returns the sunrise and sunset instants of now's local date.
func (r *Resolver) SunTimes(sunriseCityName string, now time.Time) (rise, set time.Time, err error) {
	entry, err := r.Lookup(sunriseCityName, now)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	rise, set = entry.At(r.local(now).Location())
	return rise, set, nil
}

// ResolveMoment returns Day when sunrise <= now <= sunset, Night otherwise
// and Unknown when the table has no data for the location or the date.
func (r *Resolver) ResolveMoment(sunriseCityName string, now time.Time) Moment {
	rise, set, err := r.SunTimes(sunriseCityName, now)
	if err != nil {
		return Unknown
	}
	if !now.Before(rise) && !now.After(set) {
		return Day
	}
	return Night
}
