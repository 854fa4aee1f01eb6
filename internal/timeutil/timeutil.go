package timeutil

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DateLayout is the calendar date format used by every stored entity.
const DateLayout = "2006-01-02"

// ToMinutes converts "HH:MM" to minutes since midnight.
// Missing or non-numeric components count as 0, so malformed input yields 0 rather than an error.
// Use ParseClock where input must be rejected.
func ToMinutes(t string) int {
	parts := strings.SplitN(strings.TrimSpace(t), ":", 2)
	h, _ := strconv.Atoi(parts[0])
	m := 0
	if len(parts) > 1 {
		m, _ = strconv.Atoi(parts[1])
	}
	return h*60 + m
}

// RangesOverlap reports whether [start1,end1) and [start2,end2) intersect.
// Touching endpoints do not overlap.
func RangesOverlap(start1, end1, start2, end2 string) bool {
	return ToMinutes(start1) < ToMinutes(end2) && ToMinutes(end1) > ToMinutes(start2)
}

// ParseClock validates a strict 24h "HH:MM" value and returns minutes since midnight.
func ParseClock(t string) (int, error) {
	if len(t) != 5 || t[2] != ':' {
		return 0, fmt.Errorf("invalid time %q: want HH:MM", t)
	}
	h, err := strconv.Atoi(t[:2])
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("invalid time %q: hour out of range", t)
	}
	m, err := strconv.Atoi(t[3:])
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid time %q: minute out of range", t)
	}
	return h*60 + m, nil
}

// ValidateRange checks both bounds with ParseClock and requires start < end.
func ValidateRange(start, end string) error {
	s, err := ParseClock(start)
	if err != nil {
		return err
	}
	e, err := ParseClock(end)
	if err != nil {
		return err
	}
	if s >= e {
		return fmt.Errorf("start time %s must be before end time %s", start, end)
	}
	return nil
}

// ParseDate parses a YYYY-MM-DD calendar date in UTC.
func ParseDate(d string) (time.Time, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(d))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: want YYYY-MM-DD", d)
	}
	return t, nil
}

// DurationHours returns the length of a validated range in hours.
func DurationHours(start, end string) float64 {
	return float64(ToMinutes(end)-ToMinutes(start)) / 60
}
