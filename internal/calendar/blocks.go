// Package calendar describes organisation-wide compulsory time blocks that no
// scheduling surface may book over.
package calendar

import (
	"fmt"
	"strings"
	"time"

	"cwkhub/internal/timeutil"
)

type Recurrence string

const (
	Weekly   Recurrence = "weekly"
	Biweekly Recurrence = "biweekly"
)

// Biweekly blocks are keyed by ISO-8601 week number parity.
type Parity string

const (
	OddWeeks  Parity = "odd"
	EvenWeeks Parity = "even"
)

const (
	TeamMeetingID      = "team-meeting"
	EducatorsMeetingID = "educators-meeting"

	TeamMeetingReason      = "Monday 09:00-10:00 is reserved for the weekly team meeting"
	EducatorsMeetingReason = "Thursday 09:00-10:00 is reserved for the bi-weekly educators meeting"
)

// Block is one recurring compulsory window on a given weekday.
type Block struct {
	ID         string
	Weekday    time.Weekday
	Start      string
	End        string
	Recurrence Recurrence
	Parity     Parity
	Reason     string
}

// Blocks is checked in order; the first match wins.
type Blocks []Block

// DefaultBlocks returns the weekly Monday team meeting followed by the
// odd-ISO-week Thursday educators meeting.
func DefaultBlocks() Blocks {
	return Blocks{
		{
			ID:         TeamMeetingID,
			Weekday:    time.Monday,
			Start:      "09:00",
			End:        "10:00",
			Recurrence: Weekly,
			Reason:     TeamMeetingReason,
		},
		{
			ID:         EducatorsMeetingID,
			Weekday:    time.Thursday,
			Start:      "09:00",
			End:        "10:00",
			Recurrence: Biweekly,
			Parity:     OddWeeks,
			Reason:     EducatorsMeetingReason,
		},
	}
}

// OccursOn reports whether the block recurs on the given calendar date.
// Unparseable dates never match.
func (b Block) OccursOn(date string) bool {
	d, err := timeutil.ParseDate(date)
	if err != nil {
		return false
	}
	return b.occursOn(d)
}

func (b Block) occursOn(d time.Time) bool {
	if d.Weekday() != b.Weekday {
		return false
	}
	if b.Recurrence != Biweekly {
		return true
	}
	_, week := d.ISOWeek()
	odd := week%2 == 1
	if b.Parity == EvenWeeks {
		return !odd
	}
	return odd
}

// Covers reports whether [start,end) on date overlaps this block.
func (b Block) Covers(date, start, end string) bool {
	return b.OccursOn(date) && timeutil.RangesOverlap(start, end, b.Start, b.End)
}

// Match returns the first block covering the range.
func (bs Blocks) Match(date, start, end string) (Block, bool) {
	for _, b := range bs {
		if b.Covers(date, start, end) {
			return b, true
		}
	}
	return Block{}, false
}

// IsTeamMeetingSlot reports whether a Monday range overlaps 09:00-10:00.
func IsTeamMeetingSlot(date, start, end string) bool {
	return DefaultBlocks()[0].Covers(date, start, end)
}

// IsBiWeeklyThursday reports whether date is a Thursday in an odd ISO week.
func IsBiWeeklyThursday(date string) bool {
	return DefaultBlocks()[1].OccursOn(date)
}

// IsBiWeeklyEducatorsSlot reports whether the range overlaps the educators meeting.
func IsBiWeeklyEducatorsSlot(date, start, end string) bool {
	return DefaultBlocks()[1].Covers(date, start, end)
}

// ParseWeekday accepts English weekday names, case-insensitive.
func ParseWeekday(s string) (time.Weekday, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for d := time.Sunday; d <= time.Saturday; d++ {
		if strings.ToLower(d.String()) == name {
			return d, nil
		}
	}
	return time.Sunday, fmt.Errorf("unknown weekday %q", s)
}
