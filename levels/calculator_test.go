package levels

import (
	"math"
	"testing"
)

func TestCalculateLongPullback(t *testing.T) {
	res, err := Calculate(ArchetypePullback, Long, TechnicalInputs{
		LastClose: 100,
		High5D:    102,
		Low5D:     95,
		High20D:   104,
		Low20D:    93,
		WeeklyR1:  108,
		WeeklyR2:  118,
		ATR:       2,
		High52W:   130,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Valid {
		t.Fatalf("expected valid result, got rejection: %s", res.Reason)
	}

	lv := res.Levels
	if lv.Entry != 100 {
		t.Errorf("expected entry at last close 100, got %.2f", lv.Entry)
	}
	if lv.EntryRange.Low != 98 || lv.EntryRange.High != 100 {
		t.Errorf("expected zone [98, 100], got [%.2f, %.2f]", lv.EntryRange.Low, lv.EntryRange.High)
	}
	if lv.Stop != 95 {
		t.Errorf("expected stop at swing low 95, got %.2f", lv.Stop)
	}
	if lv.Target1 != 108 || lv.Target2 != 118 {
		t.Errorf("expected ladder 108/118, got %.2f/%.2f", lv.Target1, lv.Target2)
	}
	if lv.Target3 == nil || *lv.Target3 != 130 {
		t.Errorf("expected target3 at 52w high 130, got %v", lv.Target3)
	}
	if lv.RiskReward != 1.6 {
		t.Errorf("expected risk:reward 1.6, got %.2f", lv.RiskReward)
	}
	if err := lv.Validate(); err != nil {
		t.Errorf("calculated levels failed validation: %v", err)
	}
}

func TestCalculateMomentumEntryAboveRecentHigh(t *testing.T) {
	res, err := Calculate(ArchetypeTrendFollow, Long, TechnicalInputs{
		LastClose: 100,
		High5D:    102,
		Low5D:     95,
		WeeklyR1:  112,
		WeeklyR2:  120,
		ATR:       2,
		High52W:   130,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Valid {
		t.Fatalf("expected valid result, got rejection: %s", res.Reason)
	}

	lv := res.Levels
	// The trigger anchors above the recent high, not at the close, so a
	// stock that never clears the level never fills.
	if lv.Entry <= 102 {
		t.Errorf("expected entry above recent high 102, got %.2f", lv.Entry)
	}
	if lv.EntryRange.Low != lv.Entry {
		t.Errorf("momentum trigger should be the zone low, got zone [%.2f, %.2f] entry %.2f",
			lv.EntryRange.Low, lv.EntryRange.High, lv.Entry)
	}
	if lv.Trigger() != lv.EntryRange.Low {
		t.Errorf("long trigger should be zone low")
	}
}

func TestCalculateShortStopAnchorsToSwingHigh(t *testing.T) {
	// Breakdown setup where the 20-day high sits 40% above price. The stop
	// must anchor to the nearby swing high, not the distant 20-day high.
	in := TechnicalInputs{
		LastClose: 100,
		High5D:    101,
		Low5D:     98,
		High20D:   140,
		Low20D:    95,
		WeeklyS1:  90,
		WeeklyS2:  82,
		ATR:       2,
		Low52W:    70,
	}
	res, err := Calculate(ArchetypeBreakdown, Short, in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Valid {
		t.Fatalf("expected valid result, got rejection: %s", res.Reason)
	}

	lv := res.Levels
	if math.Abs(lv.Stop-in.High5D) >= math.Abs(lv.Stop-in.High20D) {
		t.Errorf("stop %.2f anchored to high20D %.2f instead of swing high %.2f",
			lv.Stop, in.High20D, in.High5D)
	}
	if lv.Trigger() != lv.EntryRange.High {
		t.Errorf("short trigger should be zone high")
	}
	if lv.Target1 != 90 || lv.Target2 != 82 {
		t.Errorf("expected downward ladder 90/82, got %.2f/%.2f", lv.Target1, lv.Target2)
	}
	if err := lv.Validate(); err != nil {
		t.Errorf("calculated levels failed validation: %v", err)
	}
}

func TestCalculateRejections(t *testing.T) {
	base := TechnicalInputs{
		LastClose: 100,
		High5D:    102,
		Low5D:     95,
		WeeklyR1:  108,
		WeeklyR2:  118,
		ATR:       2,
		High52W:   130,
	}

	tests := []struct {
		name   string
		mutate func(*TechnicalInputs)
	}{
		{
			name: "resistances too close",
			mutate: func(in *TechnicalInputs) {
				in.WeeklyR1 = 100.2
				in.WeeklyR2 = 100.4
				in.High52W = 100.6
			},
		},
		{
			name: "risk reward below minimum",
			mutate: func(in *TechnicalInputs) {
				in.Low5D = 88 // wide stop, same reward
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := base
			tt.mutate(&in)
			res, err := Calculate(ArchetypePullback, Long, in)
			if err != nil {
				t.Fatalf("structural rejection must not be an error: %v", err)
			}
			if res.Valid {
				t.Errorf("expected rejection, got levels %+v", res.Levels)
			}
			if res.Reason == "" {
				t.Error("rejection must carry a reason")
			}
		})
	}
}

func TestCalculateMissingInputsAreErrors(t *testing.T) {
	tests := []struct {
		name string
		in   TechnicalInputs
	}{
		{"no close", TechnicalInputs{ATR: 2, High5D: 102, Low5D: 95}},
		{"no atr", TechnicalInputs{LastClose: 100, High5D: 102, Low5D: 95}},
		{"no extremes", TechnicalInputs{LastClose: 100, ATR: 2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Calculate(ArchetypePullback, Long, tt.in); err == nil {
				t.Error("expected error for missing inputs")
			}
		})
	}
}

func TestRoundToTick(t *testing.T) {
	tests := []struct {
		price float64
		want  float64
	}{
		{99.9499, 99.95},
		{97.755, 97.75},
		{102.255, 102.25},
		{100.04, 100.05},
		{100.00, 100.00},
	}
	for _, tt := range tests {
		if got := RoundToTick(tt.price, 0.05); got != tt.want {
			t.Errorf("RoundToTick(%.4f) = %.4f, want %.4f", tt.price, got, tt.want)
		}
	}
	if got := RoundToTick(101.234, 0); got != 101.234 {
		t.Errorf("zero tick should pass through, got %.4f", got)
	}
}

func TestLevelsValidate(t *testing.T) {
	tests := []struct {
		name string
		lv   Levels
		ok   bool
	}{
		{
			name: "sound long ladder",
			lv: Levels{Direction: Long, Entry: 100, EntryRange: EntryRange{Low: 98, High: 100},
				Stop: 92, Target1: 110, Target2: 120},
			ok: true,
		},
		{
			name: "stop above entry",
			lv: Levels{Direction: Long, Entry: 100, EntryRange: EntryRange{Low: 98, High: 100},
				Stop: 105, Target1: 110, Target2: 120},
		},
		{
			name: "targets inverted",
			lv: Levels{Direction: Long, Entry: 100, EntryRange: EntryRange{Low: 98, High: 100},
				Stop: 92, Target1: 120, Target2: 110},
		},
		{
			name: "missing stop",
			lv: Levels{Direction: Long, Entry: 100, EntryRange: EntryRange{Low: 98, High: 100},
				Target1: 110, Target2: 120},
		},
		{
			name: "target3 below target2",
			lv: Levels{Direction: Long, Entry: 100, EntryRange: EntryRange{Low: 98, High: 100},
				Stop: 92, Target1: 110, Target2: 120, Target3: Float64Ptr(115)},
		},
		{
			name: "sound short ladder",
			lv: Levels{Direction: Short, Entry: 100, EntryRange: EntryRange{Low: 99, High: 100},
				Stop: 108, Target1: 92, Target2: 85},
			ok: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.lv.Validate()
			if tt.ok && err != nil {
				t.Errorf("expected valid, got %v", err)
			}
			if !tt.ok && err == nil {
				t.Error("expected validation error, got nil")
			}
		})
	}
}
