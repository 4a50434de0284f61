// Package season holds the club calendar: which day a session belongs to,
// how a season label maps to a time range, and until when a licence stays
// valid.
package season

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
	_ "time/tzdata"
)

const (
	DefaultEndMonth = 8
	DefaultEndDay   = 31
	DefaultTimezone = "Europe/Paris"

	dayLayout   = "2006-01-02"
	localLayout = "2006-01-02 15:04"
)

var labelRe = regexp.MustCompile(`(\d{4})\s*[-/]\s*(\d{4})`)

// Calendar is immutable once built.
type Calendar struct {
	endMonth time.Month
	endDay   int
	loc      *time.Location
}

// Range is inclusive at both ends, to the second.
type Range struct {
	Start time.Time
	End   time.Time
}

func (r Range) Contains(t time.Time) bool {
	return !t.Before(r.Start) && t.Before(r.End.Add(time.Second))
}

func NewCalendar(endMonth, endDay int, tz string) (*Calendar, error) {
	if endMonth < 1 || endMonth > 12 {
		return nil, fmt.Errorf("season end month %d out of range", endMonth)
	}
	if endDay < 1 || endDay > 31 {
		return nil, fmt.Errorf("season end day %d out of range", endDay)
	}
	if tz == "" {
		tz = DefaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("load timezone %s: %w", tz, err)
	}
	return &Calendar{endMonth: time.Month(endMonth), endDay: endDay, loc: loc}, nil
}

// Default returns the 31 August / Europe/Paris calendar.
func Default() *Calendar {
	c, err := NewCalendar(DefaultEndMonth, DefaultEndDay, DefaultTimezone)
	if err != nil {
		panic(err)
	}
	return c
}

func (c *Calendar) Location() *time.Location { return c.loc }

// Today is the session key ("2006-01-02") of t in the club timezone.
func (c *Calendar) Today(t time.Time) string {
	return t.In(c.loc).Format(dayLayout)
}

func (c *Calendar) FormatLocal(t time.Time) string {
	return t.In(c.loc).Format(localLayout)
}

// LabelFor names the season containing t, e.g. "2024-2025".
func (c *Calendar) LabelFor(t time.Time) string {
	t = t.In(c.loc)
	end := t.Year()
	if seasonEnd(end, c.endMonth, c.endDay, time.UTC).Before(time.Date(end, t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)) {
		end++
	}
	return fmt.Sprintf("%d-%d", end-1, end)
}

// ParseLabel accepts "2024-2025", "2024 - 2025", "Saison 2024/2025".
func ParseLabel(label string) (start, end int, ok bool) {
	m := labelRe.FindStringSubmatch(label)
	if m == nil {
		return 0, 0, false
	}
	start, _ = strconv.Atoi(m[1])
	end, _ = strconv.Atoi(m[2])
	return start, end, true
}

// Range returns the UTC window of a season: from the day after the previous
// season end, midnight, to the season end day at 23:59:59.
func (c *Calendar) Range(label string) (Range, error) {
	start, end, ok := ParseLabel(label)
	if !ok {
		return Range{}, fmt.Errorf("invalid season label %q", label)
	}
	if end != start+1 {
		return Range{}, fmt.Errorf("season %q must span two consecutive years", label)
	}
	from := time.Date(start, c.endMonth, c.endDay+1, 0, 0, 0, 0, time.UTC)
	to := seasonEnd(end, c.endMonth, c.endDay, time.UTC)
	return Range{Start: from, End: to}, nil
}

// ValidUntil is the calendar date on which the season of label ends.
func (c *Calendar) ValidUntil(label string) (time.Time, bool) {
	_, end, ok := ParseLabel(label)
	if !ok {
		return time.Time{}, false
	}
	return time.Date(end, c.endMonth, c.endDay, 0, 0, 0, 0, time.UTC), true
}

// ValidAt reports whether now is on or before the end-of-day instant of the
// season end.
func (c *Calendar) ValidAt(label string, now time.Time) bool {
	_, end, ok := ParseLabel(label)
	if !ok {
		return false
	}
	return !now.After(seasonEnd(end, c.endMonth, c.endDay, time.UTC))
}

func seasonEnd(year int, month time.Month, day int, loc *time.Location) time.Time {
	return time.Date(year, month, day, 23, 59, 59, 0, loc)
}
