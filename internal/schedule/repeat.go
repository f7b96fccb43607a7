// Package schedule holds the time arithmetic for scheduled messages: repeat
// rules and local-datetime to UTC normalization.
package schedule

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalid flags a malformed datetime, timezone, or repeat rule.
// Callers reject these synchronously; they are never persisted.
var ErrInvalid = errors.New("schedule: invalid")

// RepeatKind enumerates the supported repeat cadences.
type RepeatKind int

const (
	RepeatNone RepeatKind = iota
	RepeatDaily
	RepeatWeekly
	RepeatMonthly
)

// Repeat is a parsed repeat rule. The zero value means "no repeat".
type Repeat struct {
	Kind RepeatKind
}

// ParseRepeat parses a stored or user-supplied rule string.
// Accepted: "", "none", "daily", "weekly", "monthly" (case-insensitive).
func ParseRepeat(raw string) (Repeat, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "none":
		return Repeat{Kind: RepeatNone}, nil
	case "daily":
		return Repeat{Kind: RepeatDaily}, nil
	case "weekly":
		return Repeat{Kind: RepeatWeekly}, nil
	case "monthly":
		return Repeat{Kind: RepeatMonthly}, nil
	default:
		return Repeat{}, fmt.Errorf("%w: unknown repeat rule %q", ErrInvalid, raw)
	}
}

func (r Repeat) IsNone() bool { return r.Kind == RepeatNone }

func (r Repeat) String() string {
	switch r.Kind {
	case RepeatDaily:
		return "daily"
	case RepeatWeekly:
		return "weekly"
	case RepeatMonthly:
		return "monthly"
	default:
		return ""
	}
}

// Next returns the occurrence strictly after the given instant.
//
// Monthly rules keep the scheduled day-of-month where possible; when the
// next month is shorter, the occurrence clamps to that month's last day.
// Calling Next on a no-repeat rule returns the input unchanged.
func (r Repeat) Next(after time.Time) time.Time {
	after = after.UTC()
	switch r.Kind {
	case RepeatDaily:
		return after.AddDate(0, 0, 1)
	case RepeatWeekly:
		return after.AddDate(0, 0, 7)
	case RepeatMonthly:
		return nextMonth(after)
	default:
		return after
	}
}

func nextMonth(t time.Time) time.Time {
	year, month, day := t.Date()
	hour, min, sec := t.Clock()

	// AddDate would overflow (Jan 31 -> Mar 2/3); clamp instead.
	if last := daysIn(year, month+1); day > last {
		day = last
	}
	return time.Date(year, month+1, day, hour, min, sec, t.Nanosecond(), time.UTC)
}

func daysIn(year int, month time.Month) int {
	// Day 0 of the following month is this month's last day.
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
