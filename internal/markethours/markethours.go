// Package markethours answers whether the configured trading session is open.
package markethours

import (
	"fmt"
	"time"
)

// Session is a daily trading window [Open, Close) in a location, Monday to
// Friday, minus holidays. Open and Close are offsets from local midnight.
type Session struct {
	loc      *time.Location
	open     time.Duration
	close    time.Duration
	holidays map[dateKey]struct{}
}

// New creates a session. open must be before close.
func New(loc *time.Location, open, close time.Duration, holidays []string) (*Session, error) {
	if loc == nil {
		loc = time.UTC
	}
	if open >= close {
		return nil, fmt.Errorf("markethours: open %s not before close %s", open, close)
	}
	set, err := parseHolidays(holidays)
	if err != nil {
		return nil, err
	}
	return &Session{loc: loc, open: open, close: close, holidays: set}, nil
}

// Location returns the session time zone.
func (s *Session) Location() *time.Location { return s.loc }

func (s *Session) midnight(t time.Time) time.Time {
	l := t.In(s.loc)
	return time.Date(l.Year(), l.Month(), l.Day(), 0, 0, 0, 0, s.loc)
}

// IsOpen returns true if t falls within trading hours on a trading day.
func (s *Session) IsOpen(t time.Time) bool {
	if !s.IsTradingDay(t) {
		return false
	}
	off := t.Sub(s.midnight(t))
	return off >= s.open && off < s.close
}

// IsWeekday returns true if t is Mon–Fri.
func (s *Session) IsWeekday(t time.Time) bool {
	wd := t.In(s.loc).Weekday()
	return wd >= time.Monday && wd <= time.Friday
}

// IsTradingDay returns true if t is a weekday and not a holiday.
func (s *Session) IsTradingDay(t time.Time) bool {
	return s.IsWeekday(t) && !s.IsHoliday(t)
}

// NextOpen returns the next session open. If t is before today's open on a
// trading day, returns today's open.
func (s *Session) NextOpen(t time.Time) time.Time {
	today := s.midnight(t)
	if t.Before(today.Add(s.open)) && s.IsTradingDay(t) {
		return today.Add(s.open)
	}
	d := today.AddDate(0, 0, 1)
	for i := 0; i < 30; i++ {
		if s.IsTradingDay(d) {
			return d.Add(s.open)
		}
		d = d.AddDate(0, 0, 1)
	}
	return today.AddDate(0, 0, 1).Add(s.open)
}

// TodayClose returns today's session close.
func (s *Session) TodayClose(t time.Time) time.Time {
	return s.midnight(t).Add(s.close)
}

// TimeUntilClose returns the duration until today's close, or 0 once closed.
func (s *Session) TimeUntilClose(t time.Time) time.Duration {
	d := s.TodayClose(t).Sub(t)
	if d < 0 {
		return 0
	}
	return d
}

// StatusString returns a human-readable session status.
func (s *Session) StatusString(t time.Time) string {
	if s.IsOpen(t) {
		return fmt.Sprintf("Market Open, closes in %s", fmtDur(s.TimeUntilClose(t)))
	}
	next := s.NextOpen(t)
	l := next.In(s.loc)
	return fmt.Sprintf("Market Closed, opens %s %s (%s)",
		l.Weekday().String()[:3], l.Format("15:04"), fmtDur(next.Sub(t)))
}

func fmtDur(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	if h > 0 {
		return fmt.Sprintf("%dh%dm", h, m)
	}
	return fmt.Sprintf("%dm", m)
}
