package watchlist

import (
	"fmt"
	"sort"
	"time"

	"swingdesk/levels"
	"swingdesk/simulation"
	"swingdesk/tracking"
)

// Status is the watchlist lifecycle state. Exactly one ACTIVE watchlist
// should exist at a time; the rollover job archives stragglers.
type Status string

const (
	StatusActive    Status = "ACTIVE"
	StatusCompleted Status = "COMPLETED"
	StatusArchived  Status = "ARCHIVED"
)

// StockEntry is one tracked stock inside a weekly watchlist. It embeds the
// planned levels, the append-only daily snapshot history, and the derived
// trade simulation (overwritten wholesale on each recompute, never patched).
type StockEntry struct {
	Symbol        string                       `json:"symbol"`
	InstrumentKey string                       `json:"instrument_key"`
	Name          string                       `json:"name,omitempty"`
	Levels        *levels.Levels               `json:"levels"`
	Snapshots     []tracking.DailySnapshot     `json:"snapshots"`
	Simulation    *simulation.TradeSimulation  `json:"simulation,omitempty"`
	AddedAt       time.Time                    `json:"added_at"`
}

// Bars converts the snapshot history into the simulator's bar sequence.
func (s *StockEntry) Bars() []simulation.Bar {
	return simulation.BarsFromSnapshots(s.Snapshots)
}

// UpsertSnapshot inserts or replaces the snapshot for its calendar date.
// An authoritative end-of-day snapshot unconditionally supersedes a
// provisional intraday one; a provisional snapshot never overwrites an
// authoritative one.
func (s *StockEntry) UpsertSnapshot(snap tracking.DailySnapshot) {
	for i := range s.Snapshots {
		if s.Snapshots[i].Date != snap.Date {
			continue
		}
		if snap.IsIntraday && !s.Snapshots[i].IsIntraday {
			return // keep the authoritative bar
		}
		s.Snapshots[i] = snap
		return
	}
	s.Snapshots = append(s.Snapshots, snap)
	sort.Slice(s.Snapshots, func(i, j int) bool { return s.Snapshots[i].Date < s.Snapshots[j].Date })
}

// SnapshotFor returns the snapshot for a calendar date, or nil.
func (s *StockEntry) SnapshotFor(date string) *tracking.DailySnapshot {
	for i := range s.Snapshots {
		if s.Snapshots[i].Date == date {
			return &s.Snapshots[i]
		}
	}
	return nil
}

// LatestSnapshot returns the most recent snapshot, or nil.
func (s *StockEntry) LatestSnapshot() *tracking.DailySnapshot {
	if len(s.Snapshots) == 0 {
		return nil
	}
	return &s.Snapshots[len(s.Snapshots)-1]
}

// Resimulate replays the full snapshot history and replaces the simulation.
func (s *StockEntry) Resimulate(capital float64, policy simulation.Policy, weekEnded bool) error {
	sim, err := simulation.Simulate(simulation.Input{
		Levels:    s.Levels,
		Bars:      s.Bars(),
		Capital:   capital,
		WeekEnded: weekEnded,
		Policy:    policy,
	})
	if err != nil {
		return fmt.Errorf("resimulate %s: %w", s.Symbol, err)
	}
	sim.Events = attributed(sim.Events, s.Simulation)
	s.Simulation = sim
	return nil
}

// attributed carries crossing-time attribution forward from the previous
// simulation; the replay regenerates events from scratch and would
// otherwise drop it.
func attributed(events []simulation.Event, prior *simulation.TradeSimulation) []simulation.Event {
	if prior == nil {
		return events
	}
	for i := range events {
		if i >= len(prior.Events) {
			break
		}
		if prior.Events[i].Type == events[i].Type && prior.Events[i].Date == events[i].Date {
			events[i].At = prior.Events[i].At
		}
	}
	return events
}

// ReconcileIntraday folds a live price into the stock's state via the
// reconciler and reports whether anything changed (i.e. persistence is
// needed).
func (s *StockEntry) ReconcileIntraday(rec *simulation.Reconciler, livePrice float64, now time.Time, capital float64, policy simulation.Policy, weekEnded bool) (bool, error) {
	res, err := rec.Reconcile(simulation.ReconcileInput{
		InstrumentKey: s.InstrumentKey,
		Levels:        s.Levels,
		Snapshots:     s.Snapshots,
		Prior:         s.Simulation,
		LivePrice:     livePrice,
		Now:           now.In(Location()),
		Capital:       capital,
		Policy:        policy,
		WeekEnded:     weekEnded,
	})
	if err != nil {
		return false, err
	}
	// Adopt unconditionally: even when nothing changed the result is the
	// same state, and when only today's bar stretched the new extremes must
	// not be lost before the next replay.
	s.Snapshots = res.Snapshots
	s.Simulation = res.Simulation
	return res.Changed, nil
}

// Watchlist is the aggregate root: one trading week's set of tracked
// stocks. Week boundaries are computed once at creation and never
// recomputed.
type Watchlist struct {
	ID        int64        `json:"id"`
	WeekStart time.Time    `json:"week_start"`
	WeekEnd   time.Time    `json:"week_end"`
	Status    Status       `json:"status"`
	Stocks    []StockEntry `json:"stocks"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// New creates an ACTIVE watchlist for the trading week containing now.
func New(now time.Time) *Watchlist {
	week := WeekFor(now)
	return &Watchlist{
		WeekStart: week.Start,
		WeekEnd:   week.End,
		Status:    StatusActive,
		Stocks:    []StockEntry{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Week returns the stored trading week.
func (w *Watchlist) Week() TradingWeek {
	return TradingWeek{Start: w.WeekStart, End: w.WeekEnd}
}

// WeekKey is the stable week identifier (Monday's date).
func (w *Watchlist) WeekKey() string {
	return w.Week().Key()
}

// AddStock appends a screened-in stock. Duplicate symbols are replaced so a
// re-screen within the week refreshes the levels.
func (w *Watchlist) AddStock(entry StockEntry) error {
	if entry.Symbol == "" {
		return fmt.Errorf("watchlist: stock symbol required")
	}
	if err := entry.Levels.Validate(); err != nil {
		return fmt.Errorf("watchlist: %s: %w", entry.Symbol, err)
	}
	for i := range w.Stocks {
		if w.Stocks[i].Symbol == entry.Symbol {
			w.Stocks[i] = entry
			return nil
		}
	}
	w.Stocks = append(w.Stocks, entry)
	return nil
}

// AdoptStock replaces the entry with a matching symbol, reporting whether
// the symbol is present. Unlike AddStock it never grows the list, so callers
// can merge updated state into a freshly read document without resurrecting
// removed stocks.
func (w *Watchlist) AdoptStock(entry StockEntry) bool {
	for i := range w.Stocks {
		if w.Stocks[i].Symbol == entry.Symbol {
			w.Stocks[i] = entry
			return true
		}
	}
	return false
}

// FindStock returns the entry for symbol, or nil.
func (w *Watchlist) FindStock(symbol string) *StockEntry {
	for i := range w.Stocks {
		if w.Stocks[i].Symbol == symbol {
			return &w.Stocks[i]
		}
	}
	return nil
}

// Complete closes out the week: every stock is replayed with week-end
// expiry rules so unresolved setups land on EXPIRED, then the watchlist
// moves to COMPLETED.
func (w *Watchlist) Complete(capital float64, policy simulation.Policy) error {
	for i := range w.Stocks {
		if err := w.Stocks[i].Resimulate(capital, policy, true); err != nil {
			return err
		}
	}
	w.Status = StatusCompleted
	return nil
}
