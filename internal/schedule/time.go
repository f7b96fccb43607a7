package schedule

import (
	"fmt"
	"strings"
	"time"
)

// Accepted local datetime layouts, tried in order.
var localLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
}

// LoadZone resolves an IANA zone identifier. An empty name means UTC.
func LoadZone(name string) (*time.Location, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("%w: unknown timezone %q", ErrInvalid, name)
	}
	return loc, nil
}

// ParseLocal interprets a wall-clock datetime string in the given zone and
// returns the corresponding UTC instant. The conversion happens exactly once,
// here; stored instants are never re-derived from a later timezone change.
func ParseLocal(datetime string, loc *time.Location) (time.Time, error) {
	datetime = strings.TrimSpace(datetime)
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, datetime, loc); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: cannot parse datetime %q (want yyyy-MM-dd hh:mm[:ss])", ErrInvalid, datetime)
}
