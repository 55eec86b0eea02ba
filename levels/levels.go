package levels

import (
	"fmt"
)

// Direction of a setup.
type Direction string

const (
	Long  Direction = "LONG"
	Short Direction = "SHORT"
)

// Archetype labels the technical pattern behind a setup. The archetype
// selects the stop basis in the calculator and enables retest-zone
// detection in the status classifier.
type Archetype string

const (
	Archetype52WBreakout Archetype = "52w_breakout"
	ArchetypePullback    Archetype = "pullback"
	ArchetypeTrendFollow Archetype = "trend-follow"
	ArchetypeBreakdown   Archetype = "breakdown"
)

// EntryRange is the entry zone [Low, High]. The zone boundary nearest the
// direction of approach is the authoritative trigger price: Low for LONG
// setups, High for SHORT setups.
type EntryRange struct {
	Low  float64 `json:"low"`
	High float64 `json:"high"`
}

// Levels holds the planned price ladder for one tracked stock. Computed once
// at screening time and immutable until the stock is re-screened.
type Levels struct {
	Archetype  Archetype  `json:"archetype"`
	Direction  Direction  `json:"direction"`
	Entry      float64    `json:"entry"`
	EntryRange EntryRange `json:"entry_range"`
	Stop       float64    `json:"stop"`
	Target1    float64    `json:"target1"`
	Target2    float64    `json:"target2"`
	Target3    *float64   `json:"target3,omitempty"` // optional 3rd stage; absence caps booking at 2 stages
	RiskPct    float64    `json:"risk_pct"`
	RewardPct  float64    `json:"reward_pct"`
	RiskReward float64    `json:"risk_reward"`
	Reason     string     `json:"reason"`
}

// Trigger returns the authoritative entry trigger price for the setup's
// direction.
func (l *Levels) Trigger() float64 {
	if l.Direction == Short {
		return l.EntryRange.High
	}
	return l.EntryRange.Low
}

// Validate checks the structural ordering of the ladder. For LONG setups
// stop < entry <= target1 < target2 <= target3 (when present); mirrored for
// SHORT. The simulator refuses to run on levels that fail validation.
func (l *Levels) Validate() error {
	if l == nil {
		return fmt.Errorf("levels: nil")
	}
	if l.Entry <= 0 || l.Stop <= 0 || l.Target1 <= 0 || l.Target2 <= 0 {
		return fmt.Errorf("levels: entry/stop/targets must be positive (entry=%.2f stop=%.2f t1=%.2f t2=%.2f)",
			l.Entry, l.Stop, l.Target1, l.Target2)
	}
	if l.EntryRange.Low <= 0 || l.EntryRange.High < l.EntryRange.Low {
		return fmt.Errorf("levels: bad entry range [%.2f, %.2f]", l.EntryRange.Low, l.EntryRange.High)
	}
	switch l.Direction {
	case Long, "":
		if !(l.Stop < l.Entry && l.Entry <= l.Target1 && l.Target1 < l.Target2) {
			return fmt.Errorf("levels: LONG ladder out of order (stop=%.2f entry=%.2f t1=%.2f t2=%.2f)",
				l.Stop, l.Entry, l.Target1, l.Target2)
		}
		if l.Target3 != nil && *l.Target3 < l.Target2 {
			return fmt.Errorf("levels: target3 %.2f below target2 %.2f", *l.Target3, l.Target2)
		}
	case Short:
		if !(l.Stop > l.Entry && l.Entry >= l.Target1 && l.Target1 > l.Target2) {
			return fmt.Errorf("levels: SHORT ladder out of order (stop=%.2f entry=%.2f t1=%.2f t2=%.2f)",
				l.Stop, l.Entry, l.Target1, l.Target2)
		}
		if l.Target3 != nil && *l.Target3 > l.Target2 {
			return fmt.Errorf("levels: target3 %.2f above target2 %.2f", *l.Target3, l.Target2)
		}
	default:
		return fmt.Errorf("levels: unknown direction %q", l.Direction)
	}
	return nil
}

// Float64Ptr is a small helper for optional targets in literals and tests.
func Float64Ptr(v float64) *float64 { return &v }
