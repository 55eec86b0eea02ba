package watchlist

import (
	"testing"
	"time"
)

func ist(y int, m time.Month, d, hh, mm int) time.Time {
	return time.Date(y, m, d, hh, mm, 0, 0, Location())
}

func TestWeekFor(t *testing.T) {
	tests := []struct {
		name       string
		now        time.Time
		wantMonday string
	}{
		{"monday morning", ist(2026, time.August, 24, 9, 0), "2026-08-24"},
		{"wednesday", ist(2026, time.August, 26, 14, 30), "2026-08-24"},
		{"friday after close", ist(2026, time.August, 28, 18, 0), "2026-08-24"},
		{"saturday resolves to week just ended", ist(2026, time.August, 29, 11, 0), "2026-08-24"},
		{"sunday resolves to week just ended", ist(2026, time.August, 30, 11, 0), "2026-08-24"},
		{"next monday starts a new week", ist(2026, time.August, 31, 0, 0), "2026-08-31"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			week := WeekFor(tt.now)
			if got := week.Key(); got != tt.wantMonday {
				t.Errorf("WeekFor(%s).Key() = %s, want %s", tt.now, got, tt.wantMonday)
			}
			if week.Start.Weekday() != time.Monday {
				t.Errorf("week start is %s, want Monday", week.Start.Weekday())
			}
			if week.End.Weekday() != time.Friday {
				t.Errorf("week end is %s, want Friday", week.End.Weekday())
			}
			if h, m, s := week.End.Clock(); h != 23 || m != 59 || s != 59 {
				t.Errorf("week end clock = %02d:%02d:%02d, want 23:59:59", h, m, s)
			}
		})
	}
}

func TestWeekForIsStableAcrossUTC(t *testing.T) {
	// Monday 01:00 IST is still Sunday in UTC. The week must follow the
	// trading timezone, not the wall clock of the host.
	now := ist(2026, time.August, 31, 1, 0).UTC()
	if got := WeekFor(now).Key(); got != "2026-08-31" {
		t.Errorf("WeekFor(monday 01:00 IST as UTC).Key() = %s, want 2026-08-31", got)
	}
}

func TestTradingWeekContainsAndEnded(t *testing.T) {
	week := WeekFor(ist(2026, time.August, 26, 12, 0))

	if !week.Contains(ist(2026, time.August, 24, 0, 0)) {
		t.Error("monday midnight should be inside the week")
	}
	if !week.Contains(ist(2026, time.August, 28, 23, 59)) {
		t.Error("friday 23:59 should be inside the week")
	}
	if week.Contains(ist(2026, time.August, 29, 0, 0)) {
		t.Error("saturday should be outside the week")
	}

	if week.Ended(ist(2026, time.August, 28, 23, 0)) {
		t.Error("week should not be ended on friday evening")
	}
	if !week.Ended(ist(2026, time.August, 29, 0, 0)) {
		t.Error("week should be ended on saturday")
	}
}

func TestIsTradingTime(t *testing.T) {
	tests := []struct {
		name string
		t    time.Time
		want bool
	}{
		{"pre-open", ist(2026, time.August, 26, 9, 14), false},
		{"bell", ist(2026, time.August, 26, 9, 15), true},
		{"midday", ist(2026, time.August, 26, 12, 0), true},
		{"close", ist(2026, time.August, 26, 15, 30), true},
		{"after close", ist(2026, time.August, 26, 15, 31), false},
		{"saturday midday", ist(2026, time.August, 29, 12, 0), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTradingTime(tt.t); got != tt.want {
				t.Errorf("IsTradingTime(%s) = %v, want %v", tt.t, got, tt.want)
			}
		})
	}
}

func TestPrevTradingDay(t *testing.T) {
	// Monday's previous trading day is the prior Friday.
	got := PrevTradingDay(ist(2026, time.August, 31, 10, 0))
	if got.Weekday() != time.Friday || got.Day() != 28 {
		t.Errorf("PrevTradingDay(monday) = %s, want friday Aug 28", got)
	}
	// Midweek is just yesterday.
	got = PrevTradingDay(ist(2026, time.August, 27, 10, 0))
	if got.Day() != 26 {
		t.Errorf("PrevTradingDay(thursday) = %s, want Aug 26", got)
	}
}
