package simulation

import (
	"fmt"
	"math"

	"swingdesk/helpers"
	"swingdesk/levels"
)

// Simulate replays the week's bars against the planned levels and returns
// the derived position state plus the chronological event log.
//
// The simulation is a pure function of (levels, bars, capital, policy): it is
// re-run from scratch on every new bar instead of patching prior state
// incrementally. That is the design choice that guarantees idempotence and
// keeps live intraday updates consistent with a clean end-of-day replay.
func Simulate(in Input) (*TradeSimulation, error) {
	if err := in.Levels.Validate(); err != nil {
		return nil, fmt.Errorf("simulate: %w", err)
	}
	if err := validateBars(in.Bars); err != nil {
		return nil, fmt.Errorf("simulate: %w", err)
	}
	capital := in.Capital
	if capital <= 0 {
		capital = DefaultCapital
	}
	policy := in.Policy
	if policy.T1BookFraction <= 0 || policy.T2BookFraction <= 0 {
		policy = DefaultPolicy()
	}

	lv := in.Levels
	short := lv.Direction == levels.Short
	sim := &TradeSimulation{
		Status:       SimWaiting,
		TrailingStop: lv.Stop,
		Capital:      capital,
		Events:       []Event{},
	}

	// stage: 0 = no targets booked, 1 = T1 booked, 2 = T2 booked (holding for T3).
	stage := 0
	var entry float64

	for _, bar := range in.Bars {
		if sim.Status.Terminal() {
			break
		}

		if sim.Status == SimWaiting {
			if !crossedTrigger(bar, lv.Trigger(), short) {
				continue
			}
			// Signal at zone touch, fill exactly at the trigger level,
			// modeling a resting limit/stop order.
			entry = lv.Trigger()
			sim.EntryPrice = &entry
			d := bar.Date
			sim.EntryDate = &d
			sim.QtyTotal = int64(math.Floor(capital / entry))
			sim.QtyRemaining = sim.QtyTotal
			sim.Status = SimEntered
			sim.PeakPrice = entry
			sim.append(Event{
				Date: bar.Date, Type: EventEntrySignal, Price: entry,
				Detail: fmt.Sprintf("Price crossed entry trigger %.2f", entry),
			})
			sim.append(Event{
				Date: bar.Date, Type: EventEntry, Price: entry, Qty: sim.QtyTotal,
				Detail: fmt.Sprintf("Entered %d shares @ %.2f (%s deployed)",
					sim.QtyTotal, entry, helpers.FormatRupee(float64(sim.QtyTotal)*entry)),
			})
			// Fall through: the entry bar still gets stop and target checks.
		}

		// Stop-loss risk dominates: the stop is checked before targets on
		// every bar, modeling worst-case fill order within a single bar.
		if hitStop(bar, sim.TrailingStop, short) {
			exitQty := sim.QtyRemaining
			pnl := lotPnL(entry, sim.TrailingStop, exitQty, short)
			ratcheted := sim.TrailingStop != lv.Stop
			evType := EventStoppedOut
			detail := fmt.Sprintf("Stop loss hit: exited %d shares @ %.2f (%s)",
				exitQty, sim.TrailingStop, helpers.FormatRupee(pnl))
			if ratcheted {
				evType = EventTrailingStop
				detail = fmt.Sprintf("Trailing stop hit: exited %d shares @ %.2f (%s)",
					exitQty, sim.TrailingStop, helpers.FormatRupee(pnl))
			}
			sim.book(exitQty, pnl)
			sim.Status = SimStoppedOut
			sim.append(Event{Date: bar.Date, Type: evType, Price: sim.TrailingStop, Qty: exitQty, PnL: pnl, Detail: detail})
			continue
		}

		// Target cascade. A gap bar can clear several stages in one day, so
		// the checks run sequentially on the same bar.
		if stage == 0 && hitTarget(bar, lv.Target1, short) {
			bookQty := int64(math.Floor(float64(sim.QtyTotal) * policy.T1BookFraction))
			pnl := lotPnL(entry, lv.Target1, bookQty, short)
			sim.book(bookQty, pnl)
			// Breakeven ratchet: the stop moves to the planned entry level,
			// not the fill price, matching the plan the user is shown.
			sim.TrailingStop = lv.Entry
			sim.Status = SimPartialExit
			stage = 1
			sim.append(Event{
				Date: bar.Date, Type: EventT1Hit, Price: lv.Target1, Qty: bookQty, PnL: pnl,
				Detail: fmt.Sprintf("Target 1 hit: booked %d shares @ %.2f (%s), stop moved to breakeven",
					bookQty, lv.Target1, helpers.FormatRupee(pnl)),
			})
		}
		if stage == 1 && hitTarget(bar, lv.Target2, short) {
			if lv.Target3 != nil {
				bookQty := int64(math.Floor(float64(sim.QtyRemaining) * policy.T2BookFraction))
				pnl := lotPnL(entry, lv.Target2, bookQty, short)
				sim.book(bookQty, pnl)
				sim.TrailingStop = lv.Target2
				sim.Status = SimPartialExit
				stage = 2
				sim.append(Event{
					Date: bar.Date, Type: EventT2Hit, Price: lv.Target2, Qty: bookQty, PnL: pnl,
					Detail: fmt.Sprintf("Target 2 hit: booked %d shares @ %.2f (%s), holding %d for target 3",
						bookQty, lv.Target2, helpers.FormatRupee(pnl), sim.QtyRemaining),
				})
			} else {
				bookQty := sim.QtyRemaining
				pnl := lotPnL(entry, lv.Target2, bookQty, short)
				sim.book(bookQty, pnl)
				sim.Status = SimFullExit
				stage = 2
				sim.append(Event{
					Date: bar.Date, Type: EventT2Hit, Price: lv.Target2, Qty: bookQty, PnL: pnl,
					Detail: fmt.Sprintf("Target 2 hit: booked final %d shares @ %.2f (%s)",
						bookQty, lv.Target2, helpers.FormatRupee(pnl)),
				})
			}
		}
		if stage == 2 && lv.Target3 != nil && sim.QtyRemaining > 0 && hitTarget(bar, *lv.Target3, short) {
			bookQty := sim.QtyRemaining
			pnl := lotPnL(entry, *lv.Target3, bookQty, short)
			sim.book(bookQty, pnl)
			sim.Status = SimFullExit
			sim.append(Event{
				Date: bar.Date, Type: EventT3Hit, Price: *lv.Target3, Qty: bookQty, PnL: pnl,
				Detail: fmt.Sprintf("Target 3 hit: booked final %d shares @ %.2f (%s)",
					bookQty, *lv.Target3, helpers.FormatRupee(pnl)),
			})
		}

		// High-water mark since entry.
		sim.updatePeak(bar, entry, short)
	}

	// Week-end expiry.
	if in.WeekEnded && !sim.Status.Terminal() {
		if sim.Status == SimWaiting {
			// Never triggered: expire silently, no entry, no events.
			sim.Status = SimExpired
		} else if len(in.Bars) > 0 {
			last := in.Bars[len(in.Bars)-1]
			exitQty := sim.QtyRemaining
			pnl := lotPnL(entry, last.Close, exitQty, short)
			sim.book(exitQty, pnl)
			sim.Status = SimExpired
			sim.append(Event{
				Date: last.Date, Type: EventExpired, Price: last.Close, Qty: exitQty, PnL: pnl,
				Detail: fmt.Sprintf("Week ended: closed remaining %d shares @ %.2f (%s)",
					exitQty, last.Close, helpers.FormatRupee(pnl)),
			})
		}
	}

	// Mark-to-market on the latest close. Totals accumulate unrounded; only
	// the displayed return percentage is rounded.
	if sim.QtyRemaining > 0 && len(in.Bars) > 0 {
		last := in.Bars[len(in.Bars)-1]
		sim.UnrealizedPnL = lotPnL(entry, last.Close, sim.QtyRemaining, short)
	}
	sim.TotalPnL = sim.RealizedPnL + sim.UnrealizedPnL
	sim.TotalReturnPct = math.Round(sim.TotalPnL/capital*100*100) / 100

	return sim, nil
}

// validateBars rejects out-of-order or duplicate-date sequences outright.
// A silently mis-ordered replay would produce a plausible-looking but wrong
// simulation, which is worse than an error.
func validateBars(bars []Bar) error {
	for i, b := range bars {
		if b.Day().IsZero() {
			return fmt.Errorf("bar %d: malformed date %q", i, b.Date)
		}
		if i == 0 {
			continue
		}
		if !bars[i-1].Day().Before(b.Day()) {
			return fmt.Errorf("bars out of order: %s not after %s", b.Date, bars[i-1].Date)
		}
	}
	return nil
}

func (s *TradeSimulation) append(ev Event) {
	s.Events = append(s.Events, ev)
}

// book moves qty from remaining to exited and realizes pnl. Once booked, a
// lot's contribution to realized P&L is fixed forever.
func (s *TradeSimulation) book(qty int64, pnl float64) {
	s.QtyRemaining -= qty
	s.QtyExited += qty
	s.RealizedPnL += pnl
}

func (s *TradeSimulation) updatePeak(bar Bar, entry float64, short bool) {
	if s.EntryPrice == nil || entry <= 0 {
		return
	}
	if short {
		if s.PeakPrice == 0 || bar.Low < s.PeakPrice {
			s.PeakPrice = bar.Low
		}
		s.PeakGainPct = math.Round((entry-s.PeakPrice)/entry*100*100) / 100
	} else {
		if bar.High > s.PeakPrice {
			s.PeakPrice = bar.High
		}
		s.PeakGainPct = math.Round((s.PeakPrice-entry)/entry*100*100) / 100
	}
}

// crossedTrigger reports whether the bar's range reached the entry trigger.
// Intrabar crossing counts; the close does not have to hold the level.
func crossedTrigger(bar Bar, trigger float64, short bool) bool {
	if short {
		return bar.Low <= trigger
	}
	return bar.High >= trigger
}

func hitStop(bar Bar, stop float64, short bool) bool {
	if short {
		return bar.High >= stop
	}
	return bar.Low <= stop
}

func hitTarget(bar Bar, target float64, short bool) bool {
	if short {
		return bar.Low <= target
	}
	return bar.High >= target
}

// lotPnL is the signed P&L of qty shares entered at entry and exited at
// exit, direction-aware.
func lotPnL(entry, exit float64, qty int64, short bool) float64 {
	if short {
		return (entry - exit) * float64(qty)
	}
	return (exit - entry) * float64(qty)
}
