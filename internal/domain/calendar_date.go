package domain

import (
	"fmt"
	"strings"
	"time"
)

// CalendarDateLayout is the wire format of a CalendarDate
const CalendarDateLayout = "2006-01-02"

// CalendarDate is a day on the calendar with no time or zone attached.
// Dates are compared by (year, month, day), never as instants.
type CalendarDate struct {
	Year  int
	Month time.Month
	Day   int
}

// NewCalendarDate normalizes out-of-range values the way time.Date does
func NewCalendarDate(year int, month time.Month, day int) CalendarDate {
	t := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	return CalendarDate{Year: t.Year(), Month: t.Month(), Day: t.Day()}
}

// CalendarDateOf returns the calendar day of t as observed in loc
func CalendarDateOf(t time.Time, loc *time.Location) CalendarDate {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := t.In(loc).Date()
	return CalendarDate{Year: y, Month: m, Day: d}
}

// ParseCalendarDate accepts "2006-01-02" or a full RFC 3339 timestamp.
// For timestamps the date is taken as written, in the timestamp's own offset.
func ParseCalendarDate(s string) (CalendarDate, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return CalendarDate{}, fmt.Errorf("empty date")
	}

	if t, err := time.Parse(CalendarDateLayout, s); err == nil {
		return CalendarDateOf(t, time.UTC), nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		y, m, d := t.Date()
		return CalendarDate{Year: y, Month: m, Day: d}, nil
	}
	return CalendarDate{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD", s)
}

// IsZero reports whether d is unset
func (d CalendarDate) IsZero() bool {
	return d.Year == 0 && d.Month == 0 && d.Day == 0
}

func (d CalendarDate) String() string {
	if d.IsZero() {
		return ""
	}
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

// Time returns midnight of d in loc
func (d CalendarDate) Time(loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, loc)
}

// Compare returns -1, 0 or +1
func (d CalendarDate) Compare(o CalendarDate) int {
	switch {
	case d.Year != o.Year:
		return sign(d.Year - o.Year)
	case d.Month != o.Month:
		return sign(int(d.Month) - int(o.Month))
	default:
		return sign(d.Day - o.Day)
	}
}

// Equal reports whether both dates name the same day
func (d CalendarDate) Equal(o CalendarDate) bool {
	return d.Compare(o) == 0
}

// DaysUntil returns o minus d in whole days (negative when o is earlier)
func (d CalendarDate) DaysUntil(o CalendarDate) int {
	return int(o.Time(time.UTC).Sub(d.Time(time.UTC)).Hours() / 24)
}

// MarshalText implements encoding.TextMarshaler
func (d CalendarDate) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (d *CalendarDate) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*d = CalendarDate{}
		return nil
	}
	parsed, err := ParseCalendarDate(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

func sign(n int) int {
	switch {
	case n < 0:
		return -1
	case n > 0:
		return 1
	default:
		return 0
	}
}

func absInt(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
