package simulation

import (
	"time"

	"swingdesk/levels"
	"swingdesk/tracking"
)

// SimStatus is the trade-simulation lifecycle state.
//
//	WAITING → ENTERED → PARTIAL_EXIT → FULL_EXIT
//
// STOPPED_OUT and EXPIRED are absorbing terminal states reachable from
// WAITING, ENTERED, or PARTIAL_EXIT. ENTRY_SIGNALED rests only on the
// broker add-on path (order placed, fill pending); the simulator itself
// passes through it within a single bar.
type SimStatus string

const (
	SimWaiting       SimStatus = "WAITING"
	SimEntrySignaled SimStatus = "ENTRY_SIGNALED"
	SimEntered       SimStatus = "ENTERED"
	SimPartialExit   SimStatus = "PARTIAL_EXIT"
	SimFullExit      SimStatus = "FULL_EXIT"
	SimStoppedOut    SimStatus = "STOPPED_OUT"
	SimExpired       SimStatus = "EXPIRED"
)

// Terminal reports whether the status is absorbing.
func (s SimStatus) Terminal() bool {
	return s == SimFullExit || s == SimStoppedOut || s == SimExpired
}

// EventType tags entries in the simulation audit trail.
type EventType string

const (
	EventEntrySignal  EventType = "ENTRY_SIGNAL"
	EventEntry        EventType = "ENTRY"
	EventT1Hit        EventType = "T1_HIT"
	EventT2Hit        EventType = "T2_HIT"
	EventT3Hit        EventType = "T3_HIT"
	EventStoppedOut   EventType = "STOPPED_OUT"
	EventTrailingStop EventType = "TRAILING_STOP"
	EventExpired      EventType = "EXPIRED"
)

// Event is one entry in the append-only audit trail. PnL is the delta from
// this specific event, not a running total. At is the precise crossing time
// when intraday attribution found one; nil for end-of-day bars.
type Event struct {
	Date   string     `json:"date"` // tracking.DateLayout
	At     *time.Time `json:"at,omitempty"`
	Type   EventType  `json:"type"`
	Price  float64    `json:"price"`
	Qty    int64      `json:"qty"`
	PnL    float64    `json:"pnl"`
	Detail string     `json:"detail"`
}

// Bar is one daily price bar. Provisional bars are synthesized from intraday
// observations and superseded by the authoritative end-of-day bar for the
// same date.
type Bar struct {
	Date        string  `json:"date"` // tracking.DateLayout
	Open        float64 `json:"open"`
	High        float64 `json:"high"`
	Low         float64 `json:"low"`
	Close       float64 `json:"close"`
	Provisional bool    `json:"provisional,omitempty"`
}

// Day parses the bar date. Zero time on malformed dates.
func (b Bar) Day() time.Time {
	t, _ := time.Parse(tracking.DateLayout, b.Date)
	return t
}

// Booking policy. The staged fractions and the breakeven ratchet are
// business policy; override via Policy rather than editing in place.
const (
	DefaultCapital        = 100000.0
	DefaultT1BookFraction = 0.5 // of qty_total, booked at target1
	DefaultT2BookFraction = 0.7 // of qty_remaining, booked at target2 when target3 exists
)

// Policy bundles the overridable simulation constants.
type Policy struct {
	T1BookFraction float64 `json:"t1_book_fraction"`
	T2BookFraction float64 `json:"t2_book_fraction"`
}

// DefaultPolicy returns the standard booking policy.
func DefaultPolicy() Policy {
	return Policy{
		T1BookFraction: DefaultT1BookFraction,
		T2BookFraction: DefaultT2BookFraction,
	}
}

// TradeSimulation is the derived position state for one tracked stock.
// Recomputed wholesale from (levels, bars, capital) on every run and never
// hand-edited; identical inputs must produce bit-identical output.
type TradeSimulation struct {
	Status SimStatus `json:"status"`

	EntryPrice *float64 `json:"entry_price,omitempty"`
	EntryDate  *string  `json:"entry_date,omitempty"`

	QtyTotal     int64 `json:"qty_total"`
	QtyRemaining int64 `json:"qty_remaining"`
	QtyExited    int64 `json:"qty_exited"`

	RealizedPnL    float64 `json:"realized_pnl"`
	UnrealizedPnL  float64 `json:"unrealized_pnl"`
	TotalPnL       float64 `json:"total_pnl"`
	TotalReturnPct float64 `json:"total_return_pct"`

	TrailingStop float64 `json:"trailing_stop"`
	PeakPrice    float64 `json:"peak_price"`
	PeakGainPct  float64 `json:"peak_gain_pct"`

	Capital float64 `json:"capital"`
	Events  []Event `json:"events"`
}

// Input is everything the simulator needs. Bars must be in strictly
// ascending date order; WeekEnded tells the simulator whether expiry rules
// apply after the last bar.
type Input struct {
	Levels    *levels.Levels
	Bars      []Bar
	Capital   float64
	WeekEnded bool
	Policy    Policy
}
