package app

import (
	"context"
	"fmt"
	"log"
	"time"

	"swingdesk/config"
	"swingdesk/levels"
	"swingdesk/marketdata"
	"swingdesk/simulation"
	"swingdesk/tracking"
	"swingdesk/watchlist"
)

// History depth for the screener fetch. A year of dailies covers the 52-week
// range plus warmup for the 50-day volume average.
const screenerLookbackDays = 380

// Screener turns a candidate symbol into a fully initialized watchlist entry:
// fetch history, derive technicals, run the level calculator, seed the first
// snapshot and simulation.
type Screener struct {
	md      *marketdata.Client
	trading config.TradingConfig
}

func NewScreener(md *marketdata.Client, trading config.TradingConfig) *Screener {
	return &Screener{md: md, trading: trading}
}

// Screen evaluates one candidate. Archetype and direction come from the
// caller's thesis; the calculator decides validity. A nil entry with a
// non-empty reason is a structural rejection, not an error.
func (s *Screener) Screen(ctx context.Context, symbol, instrumentKey, name string, arch levels.Archetype, dir levels.Direction) (*watchlist.StockEntry, string, error) {
	now := time.Now().In(watchlist.Location())
	from := now.AddDate(0, 0, -screenerLookbackDays)

	candles, err := s.md.GetDailyCandles(ctx, instrumentKey, from, now)
	if err != nil {
		return nil, "", fmt.Errorf("screen %s: %w", symbol, err)
	}
	if len(candles) < 30 {
		return nil, "", fmt.Errorf("screen %s: only %d daily candles, need at least 30", symbol, len(candles))
	}

	inputs := technicalInputs(candles)
	policy := levels.CalcPolicy{
		MinRiskReward:   s.trading.MinRiskReward,
		MinTargetGapPct: levels.DefaultMinTargetGapPct,
		EntryBufferPct:  s.trading.EntryBufferPct,
		PullbackZonePct: s.trading.PullbackZonePct,
		ChaseZonePct:    levels.DefaultChaseZonePct,
		StopATRMult:     levels.DefaultStopATRMult,
		TickSize:        levels.DefaultTickSize,
	}

	result, err := levels.CalculateWithPolicy(arch, dir, inputs, policy)
	if err != nil {
		return nil, "", fmt.Errorf("screen %s: %w", symbol, err)
	}
	if !result.Valid {
		log.Printf("📋 Screened out %s: %s", symbol, result.Reason)
		return nil, result.Reason, nil
	}

	entry := watchlist.StockEntry{
		Symbol:        symbol,
		InstrumentKey: instrumentKey,
		Name:          name,
		Levels:        result.Levels,
		AddedAt:       now,
	}

	// Seed the first snapshot from the latest daily candle so the entry is
	// immediately classifiable.
	snap := snapshotWithIndicators(candles, len(candles)-1, result.Levels)
	entry.UpsertSnapshot(snap)
	if err := entry.Resimulate(s.trading.CapitalPerTrade, simulation.Policy{
		T1BookFraction: s.trading.T1BookFraction,
		T2BookFraction: s.trading.T2BookFraction,
	}, false); err != nil {
		return nil, "", err
	}

	log.Printf("✅ Screened in %s: %s %s entry=%.2f stop=%.2f rr=%.2f",
		symbol, result.Levels.Archetype, result.Levels.Direction,
		result.Levels.Entry, result.Levels.Stop, result.Levels.RiskReward)
	return &entry, "", nil
}

// technicalInputs derives the calculator's inputs from daily history
// (oldest-first candles).
func technicalInputs(candles []marketdata.Candle) levels.TechnicalInputs {
	last := candles[len(candles)-1]

	in := levels.TechnicalInputs{
		LastClose: last.Close,
		High5D:    highestHigh(candles, 5),
		Low5D:     lowestLow(candles, 5),
		High20D:   highestHigh(candles, 20),
		Low20D:    lowestLow(candles, 20),
		High52W:   highestHigh(candles, len(candles)),
		Low52W:    lowestLow(candles, len(candles)),
		ATR:       averageTrueRange(candles, 14),
	}

	if ph, pl, pc, ok := prevWeekOHLC(candles); ok {
		pivot := (ph + pl + pc) / 3
		in.WeeklyR1 = 2*pivot - pl
		in.WeeklyS1 = 2*pivot - ph
		in.WeeklyR2 = pivot + (ph - pl)
		in.WeeklyS2 = pivot - (ph - pl)
	}

	return in
}

func highestHigh(candles []marketdata.Candle, n int) float64 {
	if n > len(candles) {
		n = len(candles)
	}
	h := 0.0
	for _, c := range candles[len(candles)-n:] {
		if c.High > h {
			h = c.High
		}
	}
	return h
}

func lowestLow(candles []marketdata.Candle, n int) float64 {
	if n > len(candles) {
		n = len(candles)
	}
	l := 0.0
	for _, c := range candles[len(candles)-n:] {
		if l == 0 || c.Low < l {
			l = c.Low
		}
	}
	return l
}

// averageTrueRange is the simple mean of the true range over the trailing
// period.
func averageTrueRange(candles []marketdata.Candle, period int) float64 {
	if len(candles) < 2 {
		return 0
	}
	if period > len(candles)-1 {
		period = len(candles) - 1
	}
	sum := 0.0
	for i := len(candles) - period; i < len(candles); i++ {
		tr := candles[i].High - candles[i].Low
		if hc := abs(candles[i].High - candles[i-1].Close); hc > tr {
			tr = hc
		}
		if lc := abs(candles[i].Low - candles[i-1].Close); lc > tr {
			tr = lc
		}
		sum += tr
	}
	return sum / float64(period)
}

// prevWeekOHLC aggregates the last fully completed ISO week in the history.
func prevWeekOHLC(candles []marketdata.Candle) (high, low, lastClose float64, ok bool) {
	if len(candles) == 0 {
		return 0, 0, 0, false
	}
	curYear, curWeek := candles[len(candles)-1].Timestamp.ISOWeek()

	i := len(candles) - 1
	for i >= 0 {
		y, w := candles[i].Timestamp.ISOWeek()
		if y != curYear || w != curWeek {
			break
		}
		i--
	}
	if i < 0 {
		return 0, 0, 0, false
	}

	prevYear, prevWeek := candles[i].Timestamp.ISOWeek()
	for ; i >= 0; i-- {
		y, w := candles[i].Timestamp.ISOWeek()
		if y != prevYear || w != prevWeek {
			break
		}
		if high == 0 || candles[i].High > high {
			high = candles[i].High
		}
		if low == 0 || candles[i].Low < low {
			low = candles[i].Low
		}
		if lastClose == 0 {
			lastClose = candles[i].Close // last bar of the week is hit first
		}
	}
	return high, low, lastClose, high > 0
}

// snapshotWithIndicators builds the end-of-day snapshot for candles[idx],
// including RSI, volume ratio, distances, and classification.
func snapshotWithIndicators(candles []marketdata.Candle, idx int, lv *levels.Levels) tracking.DailySnapshot {
	snap := marketdata.DailySnapshotFrom(candles[idx])

	closes := make([]float64, 0, idx+1)
	volumes := make([]float64, 0, idx+1)
	for _, c := range candles[:idx+1] {
		closes = append(closes, c.Close)
		volumes = append(volumes, c.Volume)
	}

	snap.RSI = tracking.RSI(closes, 14)
	avgVol := tracking.AvgVolume(volumes, 50)
	if avgVol > 0 {
		snap.VolumeRatio = snap.Volume / avgVol
	}
	snap.Distances(lv)

	prevClose := 0.0
	if idx > 0 {
		prevClose = candles[idx-1].Close
	}
	status, flags := tracking.Classify(tracking.Observation{
		Price:     snap.Close,
		RSI:       snap.RSI,
		Volume:    snap.Volume,
		AvgVolume: avgVol,
		Open:      snap.Open,
		PrevClose: prevClose,
	}, lv)
	snap.Status = status
	snap.Flags = flags

	return snap
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
