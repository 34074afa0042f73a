package conversation

import (
	"fmt"
	"strings"
	"time"

	"remindbot/internal/model"
)

// ParseDate parses strict DD.MM.YYYY input in the bot's zone. Anything else
// (wrong separators, missing zero padding, out-of-range days) is rejected.
func ParseDate(s string, loc *time.Location) (time.Time, error) {
	t, err := time.ParseInLocation(model.DateLayout, strings.TrimSpace(s), loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return t, nil
}

// ParseClock parses strict HH:MM 24-hour input. The "15" hour layout alone
// would also accept a single-digit hour, so the zero-padded shape is checked
// before parsing.
func ParseClock(s string) (hour, minute int, err error) {
	s = strings.TrimSpace(s)
	if len(s) != len(model.TimeLayout) || s[2] != ':' {
		return 0, 0, fmt.Errorf("invalid time %q: want HH:MM", s)
	}
	t, err := time.Parse(model.TimeLayout, s)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid time %q: %w", s, err)
	}
	return t.Hour(), t.Minute(), nil
}

// At combines a parsed calendar day with a wall-clock time in the day's zone.
func At(date time.Time, hour, minute int) time.Time {
	return time.Date(date.Year(), date.Month(), date.Day(), hour, minute, 0, 0, date.Location())
}
