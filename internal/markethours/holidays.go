package markethours

import (
	"fmt"
	"time"
)

// dateKey identifies a calendar day independent of location pointer.
type dateKey struct {
	year  int
	month time.Month
	day   int
}

func keyOf(t time.Time) dateKey {
	y, m, d := t.Date()
	return dateKey{y, m, d}
}

// parseHolidays parses "2006-01-02" dates into a holiday set.
func parseHolidays(dates []string) (map[dateKey]struct{}, error) {
	set := make(map[dateKey]struct{}, len(dates))
	for _, s := range dates {
		t, err := time.Parse(time.DateOnly, s)
		if err != nil {
			return nil, fmt.Errorf("holiday %q: %w", s, err)
		}
		set[keyOf(t)] = struct{}{}
	}
	return set, nil
}

// IsHoliday reports whether t falls on a configured holiday in the session
// location.
func (s *Session) IsHoliday(t time.Time) bool {
	_, ok := s.holidays[keyOf(t.In(s.loc))]
	return ok
}
