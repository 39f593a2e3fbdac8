package calendar

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// ErrMissingSchedulingContext is returned when no scheduling base URL is
// known for the booking.
var ErrMissingSchedulingContext = errors.New("missing scheduling context")

// UnavailableNotice is shown to the user instead of a booking link when the
// scheduling context is missing.
const UnavailableNotice = "Booking isn't available right now."

// BookingTimeLayout is the timestamp segment appended to the scheduling URL.
const BookingTimeLayout = "2006-01-02T15:04:05+00:00"

// ClockLayout renders slot start times as offered to the user.
const ClockLayout = "3:04 PM"

// FormatClock renders t in loc the way slot buttons show it, e.g. "2:30 PM".
func FormatClock(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	return t.In(loc).Format(ClockLayout)
}

// ParseClock reads "h:mm AM", "h:mm PM" or 24-hour "HH:MM". 12 PM is noon
// and 12 AM is midnight.
func ParseClock(s string) (hour, minute int, err error) {
	s = strings.TrimSpace(s)
	clock, period, hasPeriod := strings.Cut(s, " ")
	h, m, ok := strings.Cut(clock, ":")
	if !ok {
		return 0, 0, fmt.Errorf("invalid time %q", s)
	}
	hour, err = strconv.Atoi(h)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid hour in %q", s)
	}
	minute, err = strconv.Atoi(m)
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("invalid minute in %q", s)
	}
	if !hasPeriod {
		if hour < 0 || hour > 23 {
			return 0, 0, fmt.Errorf("invalid hour in %q", s)
		}
		return hour, minute, nil
	}
	if hour < 1 || hour > 12 {
		return 0, 0, fmt.Errorf("invalid hour in %q", s)
	}
	switch strings.ToUpper(strings.TrimSpace(period)) {
	case "AM":
		if hour == 12 {
			hour = 0
		}
	case "PM":
		if hour != 12 {
			hour += 12
		}
	default:
		return 0, 0, fmt.Errorf("invalid period in %q", s)
	}
	return hour, minute, nil
}

// BookingTime combines date's calendar day in loc with the clock time and
// returns the instant.
func BookingTime(date time.Time, clock string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	hour, minute, err := ParseClock(clock)
	if err != nil {
		return time.Time{}, err
	}
	y, m, d := date.In(loc).Date()
	return time.Date(y, m, d, hour, minute, 0, 0, loc), nil
}

// BuildBookingURL replaces the last path segment of base with the chosen
// slot's UTC timestamp. A base ending in "/" gets the timestamp appended.
func BuildBookingURL(base string, date time.Time, clock string, loc *time.Location) (string, error) {
	if strings.TrimSpace(base) == "" {
		return "", ErrMissingSchedulingContext
	}
	at, err := BookingTime(date, clock, loc)
	if err != nil {
		return "", err
	}
	u, err := url.Parse(base)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("invalid scheduling url %q", base)
	}
	dir := u.Path
	if i := strings.LastIndex(dir, "/"); i >= 0 {
		dir = dir[:i]
	} else {
		dir = ""
	}
	u.Path = dir + "/" + at.UTC().Format(BookingTimeLayout)
	u.RawPath = ""
	return u.String(), nil
}

// ParseBookingTime reads the timestamp segment back out of a booking URL.
func ParseBookingTime(link string) (time.Time, error) {
	u, err := url.Parse(link)
	if err != nil {
		return time.Time{}, err
	}
	seg := u.Path[strings.LastIndex(u.Path, "/")+1:]
	return time.Parse(BookingTimeLayout, seg)
}
