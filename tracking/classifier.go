package tracking

import (
	"swingdesk/levels"
)

// Classifier thresholds. Business policy; see config.TradingConfig for the
// env-overridable copies.
const (
	RSIDangerThreshold  = 72.0
	RSIExitThreshold    = 75.0
	VolumeSpikeRatio    = 2.0  // volume >= 2x the 50-day average
	ApproachingMaxPct   = 2.0  // within 2% beyond entry counts as approaching
	GapDownOpenRatio    = 0.97 // open <= 97% of the prior trading day's close
	RetestZoneStopRatio = 1.02 // retest zone floor sits 2% above the stop
)

// Observation is a single day's (or live) view of a stock. PrevClose must be
// the prior *trading day's* close, not the prior snapshot's, so missed days
// do not compound into phantom gaps.
type Observation struct {
	Price     float64 `json:"price"`
	RSI       float64 `json:"rsi"`
	Volume    float64 `json:"volume"`
	AvgVolume float64 `json:"avg_volume"` // 50-day average
	Open      float64 `json:"open"`
	PrevClose float64 `json:"prev_close"`
}

// Classify derives the tracking status and advisory flags for one
// observation against the stock's levels. Pure, deterministic, no side
// effects; precedence of the status rules is a contract because overlapping
// conditions are common near level boundaries (first match wins).
func Classify(obs Observation, lv *levels.Levels) (Status, []Flag) {
	status := classifyStatus(obs, lv)
	flags := classifyFlags(obs, lv)
	return status, flags
}

func classifyStatus(obs Observation, lv *levels.Levels) Status {
	short := lv.Direction == levels.Short
	price := obs.Price

	// 1. Stop breach is terminal for the day and beats everything,
	// including a simultaneous target print on a gap bar.
	if adverse(price, lv.Stop, short) {
		return StatusStoppedOut
	}

	// 2-3. Targets, strongest first.
	if lv.Target2 > 0 && favorable(price, lv.Target2, short) {
		return StatusTarget2Hit
	}
	if favorable(price, lv.Target1, short) {
		return StatusTarget1Hit
	}

	// 4. Inside the entry zone.
	if price >= lv.EntryRange.Low && price <= lv.EntryRange.High {
		return StatusEntryZone
	}

	// 5. Retest zone applies only to the breakout archetype: price pulled
	// back below the zone but holds above the stop with a small cushion.
	if lv.Archetype == levels.Archetype52WBreakout {
		if !short && price >= lv.Stop*RetestZoneStopRatio && price < lv.EntryRange.Low {
			return StatusRetestZone
		}
		if short && price <= lv.Stop*(2-RetestZoneStopRatio) && price > lv.EntryRange.High {
			return StatusRetestZone
		}
	}

	// 6. Past the zone but short of target1.
	if !short && price > lv.EntryRange.High && price < lv.Target1 {
		return StatusAboveEntry
	}
	if short && price < lv.EntryRange.Low && price > lv.Target1 {
		return StatusAboveEntry
	}

	// 7. Within 2% of the entry on the approach side.
	if approachingEntry(price, lv) {
		return StatusApproaching
	}

	return StatusWatching
}

func classifyFlags(obs Observation, lv *levels.Levels) []Flag {
	var flags []Flag
	if obs.RSI >= RSIDangerThreshold {
		flags = append(flags, FlagRSIDanger)
	}
	// RSI_EXIT co-occurs with RSI_DANGER; only the stronger is actionable.
	if obs.RSI >= RSIExitThreshold {
		flags = append(flags, FlagRSIExit)
	}
	if obs.AvgVolume > 0 && obs.Volume >= VolumeSpikeRatio*obs.AvgVolume {
		flags = append(flags, FlagVolumeSpike)
	}
	if approachingEntry(obs.Price, lv) {
		flags = append(flags, FlagApproachingEntry)
	}
	if obs.Open > 0 && obs.PrevClose > 0 && obs.Open <= GapDownOpenRatio*obs.PrevClose {
		flags = append(flags, FlagGapDown)
	}
	return flags
}

// approachingEntry reports whether price sits within 2% of the entry on the
// approach side: just below it for longs, just above it for shorts.
// APPROACHING is a pre-entry status, grouped with WATCHING in the week-end
// expiry rules.
func approachingEntry(price float64, lv *levels.Levels) bool {
	if lv.Entry <= 0 {
		return false
	}
	var dist float64
	if lv.Direction == levels.Short {
		dist = (price - lv.Entry) / lv.Entry * 100
	} else {
		dist = (lv.Entry - price) / lv.Entry * 100
	}
	return dist > 0 && dist <= ApproachingMaxPct
}

// favorable reports whether price has reached level in the profit direction.
func favorable(price, level float64, short bool) bool {
	if short {
		return price <= level
	}
	return price >= level
}

// adverse reports whether price has breached level in the loss direction.
func adverse(price, level float64, short bool) bool {
	if short {
		return price > level
	}
	return price < level
}
