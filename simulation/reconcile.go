package simulation

import (
	"fmt"
	"reflect"
	"sort"
	"time"

	"swingdesk/levels"
	"swingdesk/tracking"
)

// LevelCross is the precise moment a price level was crossed, recovered from
// finer-grained intraday history. Attribution only; simulation correctness
// never depends on it.
type LevelCross struct {
	Time  time.Time `json:"time"`
	Price float64   `json:"price"`
}

// CrossTimeLookup finds when a level was crossed on or before a given time.
// Implemented by the market-data client; nil lookups and lookup failures
// fall back to "now".
type CrossTimeLookup interface {
	FindLevelCrossTime(instrumentKey string, level float64, dir levels.Direction, onOrBefore time.Time) (*LevelCross, error)
}

// ReconcileInput carries one stock's state plus the live observation.
type ReconcileInput struct {
	InstrumentKey string
	Levels        *levels.Levels
	Snapshots     []tracking.DailySnapshot
	Prior         *TradeSimulation
	LivePrice     float64
	Now           time.Time // already localized to the trading timezone
	Capital       float64
	Policy        Policy
	WeekEnded     bool
}

// ReconcileResult is the updated state. Changed reports whether persistence
// is needed.
type ReconcileResult struct {
	Snapshots  []tracking.DailySnapshot
	Simulation *TradeSimulation
	Changed    bool
}

// Reconciler folds live intraday prices into the daily replay. It
// synthesizes a provisional bar for today, re-runs the full simulation, and
// decorates today's new events with precise crossing times when the lookup
// can supply them.
type Reconciler struct {
	Lookup CrossTimeLookup
}

// NewReconciler returns a reconciler. lookup may be nil.
func NewReconciler(lookup CrossTimeLookup) *Reconciler {
	return &Reconciler{Lookup: lookup}
}

// Reconcile applies one live price observation. The full replay also repairs
// a simulation stuck in WAITING despite historical bars showing the trigger
// was crossed; the divergence surfaces as Changed=true so the caller
// persists the repair.
func (r *Reconciler) Reconcile(in ReconcileInput) (ReconcileResult, error) {
	if in.LivePrice <= 0 {
		return ReconcileResult{}, fmt.Errorf("reconcile %s: no live price", in.InstrumentKey)
	}
	if in.Now.IsZero() {
		return ReconcileResult{}, fmt.Errorf("reconcile %s: zero clock", in.InstrumentKey)
	}

	today := in.Now.Format(tracking.DateLayout)
	snaps := upsertProvisional(in.Snapshots, today, in.LivePrice)

	sim, err := Simulate(Input{
		Levels:    in.Levels,
		Bars:      BarsFromSnapshots(snaps),
		Capital:   in.Capital,
		WeekEnded: in.WeekEnded,
		Policy:    in.Policy,
	})
	if err != nil {
		return ReconcileResult{}, err
	}

	r.attribute(sim, in, today)

	// A tick can stretch today's provisional bar without moving the
	// simulation (a dip below the stop while still WAITING). The stretched
	// extremes must persist anyway: the next replay needs the true bar, so
	// Changed covers snapshots as well as the simulation.
	simChanged := in.Prior == nil || !reflect.DeepEqual(in.Prior, sim)
	barsChanged := !reflect.DeepEqual(in.Snapshots, snaps)
	return ReconcileResult{Snapshots: snaps, Simulation: sim, Changed: simChanged || barsChanged}, nil
}

// attribute carries forward crossing times already attributed on earlier
// runs and resolves times for today's new events. Attribution happens after
// the replay so the simulator itself stays a pure function of its inputs.
func (r *Reconciler) attribute(sim *TradeSimulation, in ReconcileInput, today string) {
	for i := range sim.Events {
		ev := &sim.Events[i]
		if in.Prior != nil && i < len(in.Prior.Events) {
			prev := in.Prior.Events[i]
			if prev.Type == ev.Type && prev.Date == ev.Date && prev.At != nil {
				ev.At = prev.At
				continue
			}
		}
		if ev.Date != today || ev.At != nil {
			continue
		}
		at := in.Now
		if r.Lookup != nil {
			cross, err := r.Lookup.FindLevelCrossTime(in.InstrumentKey, ev.Price, in.Levels.Direction, in.Now)
			if err == nil && cross != nil && !cross.Time.IsZero() {
				at = cross.Time
			}
			// Lookup failures fall back to "now" rather than blocking the
			// status update.
		}
		t := at
		ev.At = &t
	}
}

// upsertProvisional merges a live price into today's snapshot. A first
// observation opens a provisional bar at the price; later observations
// stretch its extremes. An authoritative end-of-day snapshot for today is
// left untouched: authoritative bars supersede provisional ones,
// never the other way around.
func upsertProvisional(snaps []tracking.DailySnapshot, today string, price float64) []tracking.DailySnapshot {
	out := make([]tracking.DailySnapshot, len(snaps))
	copy(out, snaps)

	for i := range out {
		if out[i].Date != today {
			continue
		}
		if !out[i].IsIntraday {
			return out // authoritative bar already landed
		}
		if price > out[i].High {
			out[i].High = price
		}
		if price < out[i].Low {
			out[i].Low = price
		}
		out[i].Close = price
		return out
	}

	out = append(out, tracking.DailySnapshot{
		Date:       today,
		Open:       price,
		High:       price,
		Low:        price,
		Close:      price,
		IsIntraday: true,
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out
}

// BarsFromSnapshots converts snapshot history into the simulator's bar
// sequence, sorted ascending by date.
func BarsFromSnapshots(snaps []tracking.DailySnapshot) []Bar {
	bars := make([]Bar, 0, len(snaps))
	for _, s := range snaps {
		if s.Close <= 0 {
			continue
		}
		bars = append(bars, Bar{
			Date:        s.Date,
			Open:        s.Open,
			High:        s.High,
			Low:         s.Low,
			Close:       s.Close,
			Provisional: s.IsIntraday,
		})
	}
	sort.Slice(bars, func(i, j int) bool { return bars[i].Date < bars[j].Date })
	return bars
}
