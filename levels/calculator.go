package levels

import (
	"fmt"
	"math"
)

// Calculator policy constants. These are business policy, not derived from
// first principles; override via CalcPolicy rather than editing in place.
const (
	DefaultMinRiskReward   = 1.5  // minimum (target1-entry)/(entry-stop)
	DefaultMinTargetGapPct = 1.0  // rungs closer than this collapse into one
	DefaultEntryBufferPct  = 0.25 // breakout trigger distance above the recent high
	DefaultPullbackZonePct = 2.0  // pullback entry zone depth below reference
	DefaultChaseZonePct    = 1.0  // how far past the trigger a fill is still acceptable
	DefaultStopATRMult     = 1.5  // ATR multiple for breakout stops
)

// CalcPolicy bundles the overridable level-calculation constants.
type CalcPolicy struct {
	MinRiskReward   float64
	MinTargetGapPct float64
	EntryBufferPct  float64
	PullbackZonePct float64
	ChaseZonePct    float64
	StopATRMult     float64
	TickSize        float64
}

// DefaultCalcPolicy returns the standard policy.
func DefaultCalcPolicy() CalcPolicy {
	return CalcPolicy{
		MinRiskReward:   DefaultMinRiskReward,
		MinTargetGapPct: DefaultMinTargetGapPct,
		EntryBufferPct:  DefaultEntryBufferPct,
		PullbackZonePct: DefaultPullbackZonePct,
		ChaseZonePct:    DefaultChaseZonePct,
		StopATRMult:     DefaultStopATRMult,
		TickSize:        DefaultTickSize,
	}
}

// TechnicalInputs is the bundle of reference points the screener hands to
// the calculator. All prices are raw (unrounded) closes/extremes.
type TechnicalInputs struct {
	LastClose float64 `json:"last_close"`
	High5D    float64 `json:"high_5d"` // recent swing high
	Low5D     float64 `json:"low_5d"`  // recent swing low
	High20D   float64 `json:"high_20d"`
	Low20D    float64 `json:"low_20d"`
	WeeklyR1  float64 `json:"weekly_r1"`
	WeeklyR2  float64 `json:"weekly_r2"`
	WeeklyS1  float64 `json:"weekly_s1"`
	WeeklyS2  float64 `json:"weekly_s2"`
	ATR       float64 `json:"atr"`
	High52W   float64 `json:"high_52w"`
	Low52W    float64 `json:"low_52w"`
}

// Result is the calculator outcome. Valid=false is a structural rejection
// ("exclude this stock from the watchlist"), not an error.
type Result struct {
	Valid  bool    `json:"valid"`
	Levels *Levels `json:"levels,omitempty"`
	Reason string  `json:"reason"`
}

func reject(format string, args ...interface{}) Result {
	return Result{Valid: false, Reason: fmt.Sprintf(format, args...)}
}

// Calculate derives the entry/stop/target ladder for a setup. Missing
// required technical inputs are an error; a structurally unsound ladder is a
// rejection carried inside the Result.
func Calculate(arch Archetype, dir Direction, in TechnicalInputs) (Result, error) {
	return CalculateWithPolicy(arch, dir, in, DefaultCalcPolicy())
}

// CalculateWithPolicy is Calculate with explicit policy constants.
func CalculateWithPolicy(arch Archetype, dir Direction, in TechnicalInputs, p CalcPolicy) (Result, error) {
	if in.LastClose <= 0 {
		return Result{}, fmt.Errorf("calculate levels: missing last close")
	}
	if in.ATR <= 0 {
		return Result{}, fmt.Errorf("calculate levels: missing ATR")
	}
	if in.High5D <= 0 || in.Low5D <= 0 {
		return Result{}, fmt.Errorf("calculate levels: missing 5-day extremes")
	}

	switch dir {
	case Long, "":
		return calculateLong(arch, in, p), nil
	case Short:
		return calculateShort(arch, in, p), nil
	default:
		return Result{}, fmt.Errorf("calculate levels: unknown direction %q", dir)
	}
}

func calculateLong(arch Archetype, in TechnicalInputs, p CalcPolicy) Result {
	var entry, zoneLow, zoneHigh, stop float64

	switch arch {
	case Archetype52WBreakout, ArchetypeTrendFollow:
		// Momentum entries trigger above the most recent high, not at last
		// close. Entering at the close produces false breakout fills on
		// stocks that never actually clear the level.
		trigger := RoundToTick(in.High5D*(1+p.EntryBufferPct/100), p.TickSize)
		entry = trigger
		zoneLow = trigger
		zoneHigh = RoundToTick(trigger*(1+p.ChaseZonePct/100), p.TickSize)
		stop = RoundToTick(trigger-p.StopATRMult*in.ATR, p.TickSize)
		if in.Low5D > 0 && in.Low5D > stop && in.Low5D < trigger {
			// Prefer the structural swing low when it is tighter.
			stop = RoundToTick(in.Low5D, p.TickSize)
		}
	default: // pullback-style: zone extends below the reference close
		entry = RoundToTick(in.LastClose, p.TickSize)
		zoneLow = RoundToTick(entry*(1-p.PullbackZonePct/100), p.TickSize)
		zoneHigh = entry
		stop = RoundToTick(in.Low5D, p.TickSize)
		if stop >= zoneLow {
			stop = RoundToTick(zoneLow-p.StopATRMult*in.ATR, p.TickSize)
		}
	}

	if stop <= 0 || stop >= zoneLow {
		return reject("stop %.2f not below entry zone %.2f", stop, zoneLow)
	}

	ladder := targetLadder(entry, []float64{in.WeeklyR1, in.WeeklyR2, in.High52W}, p, true)
	if len(ladder) < 2 {
		return reject("no structural target ladder above %.2f (resistances too close)", entry)
	}

	risk := entry - stop
	rr := (ladder[0] - entry) / risk
	if rr < p.MinRiskReward {
		return reject("risk:reward %.2f below minimum %.2f", rr, p.MinRiskReward)
	}

	lv := &Levels{
		Archetype:  arch,
		Direction:  Long,
		Entry:      entry,
		EntryRange: EntryRange{Low: zoneLow, High: zoneHigh},
		Stop:       stop,
		Target1:    ladder[0],
		Target2:    ladder[1],
		RiskPct:    round2(risk / entry * 100),
		RewardPct:  round2((ladder[0] - entry) / entry * 100),
		RiskReward: round2(rr),
		Reason:     fmt.Sprintf("%s long: trigger %.2f, stop %.2f, ladder %v", arch, zoneLow, stop, ladder),
	}
	if len(ladder) > 2 {
		lv.Target3 = Float64Ptr(ladder[2])
	}
	if err := lv.Validate(); err != nil {
		return reject("unsound ladder: %v", err)
	}
	return Result{Valid: true, Levels: lv, Reason: lv.Reason}
}

func calculateShort(arch Archetype, in TechnicalInputs, p CalcPolicy) Result {
	// Breakdown entries trigger below the recent swing low.
	trigger := RoundToTick(in.Low5D*(1-p.EntryBufferPct/100), p.TickSize)
	entry := trigger
	zoneHigh := trigger
	zoneLow := RoundToTick(trigger*(1-p.ChaseZonePct/100), p.TickSize)

	// Anchor the stop to the nearest swing high. The 20-day high sits far
	// above price after a breakdown and would blow the risk budget.
	stop := RoundToTick(in.High5D, p.TickSize)
	if stop <= zoneHigh {
		stop = RoundToTick(zoneHigh+p.StopATRMult*in.ATR, p.TickSize)
	}

	ladder := targetLadder(entry, []float64{in.WeeklyS1, in.WeeklyS2, in.Low52W}, p, false)
	if len(ladder) < 2 {
		return reject("no structural target ladder below %.2f (supports too close)", entry)
	}

	risk := stop - entry
	rr := (entry - ladder[0]) / risk
	if rr < p.MinRiskReward {
		return reject("risk:reward %.2f below minimum %.2f", rr, p.MinRiskReward)
	}

	lv := &Levels{
		Archetype:  arch,
		Direction:  Short,
		Entry:      entry,
		EntryRange: EntryRange{Low: zoneLow, High: zoneHigh},
		Stop:       stop,
		Target1:    ladder[0],
		Target2:    ladder[1],
		RiskPct:    round2(risk / entry * 100),
		RewardPct:  round2((entry - ladder[0]) / entry * 100),
		RiskReward: round2(rr),
		Reason:     fmt.Sprintf("%s short: trigger %.2f, stop %.2f, ladder %v", arch, zoneHigh, stop, ladder),
	}
	if len(ladder) > 2 {
		lv.Target3 = Float64Ptr(ladder[2])
	}
	if err := lv.Validate(); err != nil {
		return reject("unsound ladder: %v", err)
	}
	return Result{Valid: true, Levels: lv, Reason: lv.Reason}
}

// targetLadder walks the structural candidates in order and keeps those that
// sit far enough beyond the entry and far enough apart from the previous
// rung. Candidates at or below zero are absent inputs and skipped.
func targetLadder(entry float64, candidates []float64, p CalcPolicy, long bool) []float64 {
	minGap := p.MinTargetGapPct / 100
	var ladder []float64
	prev := entry
	for _, c := range candidates {
		if c <= 0 {
			continue
		}
		c = RoundToTick(c, p.TickSize)
		if long {
			if c < prev*(1+minGap) {
				continue
			}
		} else {
			if c > prev*(1-minGap) {
				continue
			}
		}
		ladder = append(ladder, c)
		prev = c
	}
	return ladder
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
