package watchlist

import (
	"log"
	"time"
)

// Trading calendar for NSE cash equities (IST/UTC+5:30).
const (
	TradingTimeZone   = "Asia/Kolkata"
	MarketOpenHour    = 9
	MarketOpenMinute  = 15
	MarketCloseHour   = 15
	MarketCloseMinute = 30
)

// Location returns the trading timezone, with a fixed-offset fallback when
// the tz database is unavailable.
func Location() *time.Location {
	loc, err := time.LoadLocation(TradingTimeZone)
	if err != nil {
		log.Printf("⚠️ Failed to load timezone %s: %v", TradingTimeZone, err)
		loc = time.FixedZone("IST", int((5*time.Hour + 30*time.Minute).Seconds()))
	}
	return loc
}

// TradingWeek is an immutable Monday-to-Friday window in the trading
// timezone. Computed exactly once when a watchlist is created and stored;
// "which week is current" is always WeekFor(now) against the same calendar,
// never an ad-hoc recomputation with different rounding.
type TradingWeek struct {
	Start time.Time `json:"start"` // Monday 00:00:00
	End   time.Time `json:"end"`   // Friday 23:59:59
}

// WeekFor returns the trading week containing t. Saturdays and Sundays
// resolve to the week that just ended.
func WeekFor(t time.Time) TradingWeek {
	lt := t.In(Location())

	// Days back to Monday. Go numbers Sunday as 0; a Sunday belongs to the
	// Monday six days earlier, same as Saturday's week.
	offset := int(lt.Weekday()) - int(time.Monday)
	if lt.Weekday() == time.Sunday {
		offset = 6
	}

	monday := time.Date(lt.Year(), lt.Month(), lt.Day(), 0, 0, 0, 0, lt.Location()).
		AddDate(0, 0, -offset)
	friday := monday.AddDate(0, 0, 4)
	end := time.Date(friday.Year(), friday.Month(), friday.Day(), 23, 59, 59, 0, lt.Location())

	return TradingWeek{Start: monday, End: end}
}

// Contains reports whether t falls inside the week.
func (w TradingWeek) Contains(t time.Time) bool {
	lt := t.In(Location())
	return !lt.Before(w.Start) && !lt.After(w.End)
}

// Ended reports whether the week is over as of now.
func (w TradingWeek) Ended(now time.Time) bool {
	return now.In(Location()).After(w.End)
}

// Key is the stable identifier for the week (its Monday's date).
func (w TradingWeek) Key() string {
	return w.Start.Format("2006-01-02")
}

// IsTradingTime reports whether t is within NSE market hours on a weekday.
func IsTradingTime(t time.Time) bool {
	lt := t.In(Location())
	wd := lt.Weekday()
	if wd == time.Saturday || wd == time.Sunday {
		return false
	}
	mins := lt.Hour()*60 + lt.Minute()
	open := MarketOpenHour*60 + MarketOpenMinute
	close := MarketCloseHour*60 + MarketCloseMinute
	return mins >= open && mins <= close
}

// PrevTradingDay returns the trading day before d, skipping weekends.
func PrevTradingDay(d time.Time) time.Time {
	for {
		d = d.AddDate(0, 0, -1)
		if wd := d.Weekday(); wd != time.Saturday && wd != time.Sunday {
			return d
		}
	}
}
