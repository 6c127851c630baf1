package markethours

import (
	"strings"
	"testing"
	"time"
)

func session(t *testing.T) *Session {
	t.Helper()
	s, err := New(time.UTC, 9*time.Hour, 17*time.Hour+30*time.Minute, []string{"2024-03-08"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return s
}

func TestSession_IsOpen(t *testing.T) {
	s := session(t)
	mon := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)

	if s.IsOpen(mon.Add(8*time.Hour + 59*time.Minute)) {
		t.Error("expected closed before open")
	}
	if !s.IsOpen(mon.Add(9 * time.Hour)) {
		t.Error("expected open at open")
	}
	if s.IsOpen(mon.Add(17*time.Hour + 30*time.Minute)) {
		t.Error("expected closed at close")
	}
	if s.IsOpen(mon.AddDate(0, 0, 5).Add(10 * time.Hour)) {
		t.Error("expected closed on saturday")
	}
	if s.IsOpen(mon.AddDate(0, 0, 4).Add(10 * time.Hour)) {
		t.Error("expected closed on holiday")
	}
}

func TestSession_NextOpenSkipsWeekendAndHoliday(t *testing.T) {
	s := session(t)
	thu := time.Date(2024, 3, 7, 18, 0, 0, 0, time.UTC)
	want := time.Date(2024, 3, 11, 9, 0, 0, 0, time.UTC)
	if got := s.NextOpen(thu); !got.Equal(want) {
		t.Errorf("expected %v, got %v", want, got)
	}
	early := time.Date(2024, 3, 4, 6, 0, 0, 0, time.UTC)
	if got := s.NextOpen(early); !got.Equal(early.Add(3 * time.Hour)) {
		t.Errorf("expected today's open, got %v", got)
	}
}

func TestSession_StatusString(t *testing.T) {
	s := session(t)
	open := time.Date(2024, 3, 4, 16, 0, 0, 0, time.UTC)
	if got := s.StatusString(open); !strings.HasPrefix(got, "Market Open") {
		t.Errorf("unexpected status %q", got)
	}
	if got := s.TimeUntilClose(open); got != 90*time.Minute {
		t.Errorf("expected 90m, got %v", got)
	}
}

func TestNew_RejectsBadConfig(t *testing.T) {
	if _, err := New(time.UTC, 10*time.Hour, 9*time.Hour, nil); err == nil {
		t.Error("expected error for inverted session")
	}
	if _, err := New(time.UTC, 9*time.Hour, 10*time.Hour, []string{"03/08/2024"}); err == nil {
		t.Error("expected error for bad holiday")
	}
}
