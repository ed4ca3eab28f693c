// Package calendar converts between business-local wall-clock time and UTC
// instants. All DST handling lives here; the rest of the core works in UTC.
package calendar

import (
	"errors"
	"fmt"
	"time"
)

var ErrInvalidTimezone = errors.New("invalid timezone")

// Date is a wall-clock calendar date with no timezone attached.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

func ParseDate(s string) (Date, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return Date{Year: t.Year(), Month: t.Month(), Day: t.Day()}, nil
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, d.Month, d.Day)
}

// Location resolves an IANA timezone identifier, mapping unknown names to
// ErrInvalidTimezone.
func Location(tz string) (*time.Location, error) {
	if tz == "" {
		return nil, fmt.Errorf("%w: empty identifier", ErrInvalidTimezone)
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTimezone, tz)
	}
	return loc, nil
}

// DayRange returns the UTC instants of local 00:00 on d and local 00:00 on
// the following day. The span is not always 24h: DST transition days are 23
// or 25 hours long.
func DayRange(d Date, tz string) (start, end time.Time, err error) {
	loc, err := Location(tz)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	start = time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, loc)
	end = time.Date(d.Year, d.Month, d.Day+1, 0, 0, 0, 0, loc)
	return start.UTC(), end.UTC(), nil
}

// AtMinutes projects "m minutes after local midnight on d" to a UTC instant.
// Working hours are stored this way, so a 09:00 opening stays 09:00 local on
// both sides of a DST transition.
func AtMinutes(d Date, minutes int, tz string) (time.Time, error) {
	loc, err := Location(tz)
	if err != nil {
		return time.Time{}, err
	}
	t := time.Date(d.Year, d.Month, d.Day, 0, minutes, 0, 0, loc)
	return t.UTC(), nil
}

// Local is the inverse projection: the wall-clock date and time-of-day of an
// instant in tz.
func Local(instant time.Time, tz string) (Date, time.Duration, error) {
	loc, err := Location(tz)
	if err != nil {
		return Date{}, 0, err
	}
	lt := instant.In(loc)
	d := Date{Year: lt.Year(), Month: lt.Month(), Day: lt.Day()}
	tod := time.Duration(lt.Hour())*time.Hour +
		time.Duration(lt.Minute())*time.Minute +
		time.Duration(lt.Second())*time.Second
	return d, tod, nil
}

// Weekday reports the local day-of-week for a date (independent of timezone,
// since a date is already wall-clock).
func (d Date) Weekday() time.Weekday {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC).Weekday()
}
