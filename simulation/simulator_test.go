package simulation

import (
	"reflect"
	"testing"

	"swingdesk/levels"
)

func longLevels(t3 *float64) *levels.Levels {
	return &levels.Levels{
		Archetype:  levels.ArchetypePullback,
		Direction:  levels.Long,
		Entry:      100,
		EntryRange: levels.EntryRange{Low: 98, High: 100},
		Stop:       92,
		Target1:    110,
		Target2:    120,
		Target3:    t3,
	}
}

func TestSimulateTrailingStopAfterT1(t *testing.T) {
	// Enter at 98 on day 1, book half at 110 on day 3, trailing stop moves
	// to the planned entry (100), day 5 dips to 99 and stops the rest out
	// at 100.
	bars := []Bar{
		{Date: "2025-06-02", Open: 97, High: 99, Low: 96, Close: 98.5},
		{Date: "2025-06-03", Open: 98, High: 104, Low: 97, Close: 103},
		{Date: "2025-06-04", Open: 104, High: 111, Low: 105, Close: 109},
		{Date: "2025-06-05", Open: 109, High: 110, Low: 107, Close: 108},
		{Date: "2025-06-06", Open: 108, High: 108, Low: 99, Close: 101},
	}

	sim, err := Simulate(Input{Levels: longLevels(nil), Bars: bars, Capital: 100000})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if sim.Status != SimStoppedOut {
		t.Errorf("expected status STOPPED_OUT, got %s", sim.Status)
	}
	if sim.EntryPrice == nil || *sim.EntryPrice != 98 {
		t.Fatalf("expected entry at zone low 98, got %v", sim.EntryPrice)
	}
	if sim.QtyTotal != 1020 {
		t.Errorf("expected qty_total 1020, got %d", sim.QtyTotal)
	}
	// 510 @ (110-98) + 510 @ (100-98)
	if sim.RealizedPnL != 7140 {
		t.Errorf("expected realized pnl 7140, got %.2f", sim.RealizedPnL)
	}
	if sim.UnrealizedPnL != 0 {
		t.Errorf("expected no unrealized pnl, got %.2f", sim.UnrealizedPnL)
	}
	if sim.QtyRemaining != 0 || sim.QtyExited != 1020 {
		t.Errorf("quantity not conserved: remaining=%d exited=%d", sim.QtyRemaining, sim.QtyExited)
	}
	if sim.TotalReturnPct != 7.14 {
		t.Errorf("expected total return 7.14%%, got %.2f", sim.TotalReturnPct)
	}

	wantTypes := []EventType{EventEntrySignal, EventEntry, EventT1Hit, EventTrailingStop}
	if len(sim.Events) != len(wantTypes) {
		t.Fatalf("expected %d events, got %d: %+v", len(wantTypes), len(sim.Events), sim.Events)
	}
	for i, want := range wantTypes {
		if sim.Events[i].Type != want {
			t.Errorf("event %d: expected %s, got %s", i, want, sim.Events[i].Type)
		}
	}
	if last := sim.Events[3]; last.Price != 100 || last.Qty != 510 || last.PnL != 1020 {
		t.Errorf("trailing stop event wrong: %+v", last)
	}
}

func TestSimulateNeverTriggeredExpires(t *testing.T) {
	bars := []Bar{
		{Date: "2025-06-02", Open: 95, High: 96, Low: 94, Close: 95},
		{Date: "2025-06-03", Open: 95, High: 97, Low: 93, Close: 94},
		{Date: "2025-06-06", Open: 94, High: 96.5, Low: 92.5, Close: 93},
	}

	sim, err := Simulate(Input{Levels: longLevels(nil), Bars: bars, Capital: 100000, WeekEnded: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sim.Status != SimExpired {
		t.Errorf("expected EXPIRED, got %s", sim.Status)
	}
	if sim.EntryPrice != nil {
		t.Errorf("expected no entry price, got %v", *sim.EntryPrice)
	}
	if len(sim.Events) != 0 {
		t.Errorf("expected zero events, got %d", len(sim.Events))
	}
}

func TestSimulateStopWinsOverTargetOnGapBar(t *testing.T) {
	// One violent bar spans both the stop and target1. Worst-case fill
	// ordering books the stop.
	bars := []Bar{
		{Date: "2025-06-02", Open: 99, High: 111, Low: 90, Close: 95},
	}

	sim, err := Simulate(Input{Levels: longLevels(nil), Bars: bars, Capital: 100000})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sim.Status != SimStoppedOut {
		t.Fatalf("expected STOPPED_OUT, got %s", sim.Status)
	}
	last := sim.Events[len(sim.Events)-1]
	if last.Type != EventStoppedOut || last.Price != 92 {
		t.Errorf("expected stop exit at 92, got %+v", last)
	}
	if sim.RealizedPnL != float64(sim.QtyTotal)*(92-98) {
		t.Errorf("unexpected realized pnl %.2f", sim.RealizedPnL)
	}
}

func TestSimulateThreeStageExit(t *testing.T) {
	bars := []Bar{
		{Date: "2025-06-02", Open: 97, High: 99, Low: 96, Close: 98.5},
		{Date: "2025-06-03", Open: 99, High: 111, Low: 98, Close: 110},
		{Date: "2025-06-04", Open: 110, High: 121, Low: 109, Close: 119},
		{Date: "2025-06-05", Open: 119, High: 131, Low: 121, Close: 129},
	}

	sim, err := Simulate(Input{Levels: longLevels(levels.Float64Ptr(130)), Bars: bars, Capital: 100000})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sim.Status != SimFullExit {
		t.Fatalf("expected FULL_EXIT, got %s", sim.Status)
	}

	// 1020 total: 510 @ T1, floor(510*0.7)=357 @ T2, 153 @ T3.
	want := 510*(110.0-98) + 357*(120.0-98) + 153*(130.0-98)
	if sim.RealizedPnL != want {
		t.Errorf("expected realized %.2f, got %.2f", want, sim.RealizedPnL)
	}
	if sim.QtyRemaining != 0 || sim.QtyExited != sim.QtyTotal {
		t.Errorf("quantity not conserved: %+v", sim)
	}
	if sim.TrailingStop != 120 {
		t.Errorf("expected trailing stop parked at target2 (120), got %.2f", sim.TrailingStop)
	}

	wantTypes := []EventType{EventEntrySignal, EventEntry, EventT1Hit, EventT2Hit, EventT3Hit}
	for i, want := range wantTypes {
		if sim.Events[i].Type != want {
			t.Errorf("event %d: expected %s, got %s", i, want, sim.Events[i].Type)
		}
	}
}

func TestSimulateT2FullExitWithoutT3(t *testing.T) {
	bars := []Bar{
		{Date: "2025-06-02", Open: 97, High: 99, Low: 96, Close: 98.5},
		{Date: "2025-06-03", Open: 99, High: 125, Low: 98, Close: 122},
	}

	sim, err := Simulate(Input{Levels: longLevels(nil), Bars: bars, Capital: 100000})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sim.Status != SimFullExit {
		t.Fatalf("expected FULL_EXIT, got %s", sim.Status)
	}
	// Gap bar clears T1 and T2 in one day: 510 @ 110, remaining 510 @ 120.
	want := 510*(110.0-98) + 510*(120.0-98)
	if sim.RealizedPnL != want {
		t.Errorf("expected realized %.2f, got %.2f", want, sim.RealizedPnL)
	}
}

func TestSimulateWeekEndForceClose(t *testing.T) {
	bars := []Bar{
		{Date: "2025-06-02", Open: 97, High: 99, Low: 96, Close: 98.5},
		{Date: "2025-06-06", Open: 99, High: 105, Low: 98, Close: 104},
	}

	sim, err := Simulate(Input{Levels: longLevels(nil), Bars: bars, Capital: 100000, WeekEnded: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sim.Status != SimExpired {
		t.Fatalf("expected EXPIRED, got %s", sim.Status)
	}
	last := sim.Events[len(sim.Events)-1]
	if last.Type != EventExpired || last.Price != 104 {
		t.Errorf("expected force close at last close 104, got %+v", last)
	}
	if sim.UnrealizedPnL != 0 {
		t.Errorf("expected unrealized zeroed after force close, got %.2f", sim.UnrealizedPnL)
	}
	if sim.RealizedPnL != float64(sim.QtyTotal)*(104-98) {
		t.Errorf("unexpected realized %.2f", sim.RealizedPnL)
	}
}

func TestSimulateShortMirrored(t *testing.T) {
	t3 := 80.0
	lv := &levels.Levels{
		Archetype:  levels.ArchetypeBreakdown,
		Direction:  levels.Short,
		Entry:      100,
		EntryRange: levels.EntryRange{Low: 99, High: 100},
		Stop:       108,
		Target1:    92,
		Target2:    85,
		Target3:    &t3,
	}
	bars := []Bar{
		{Date: "2025-06-02", Open: 103, High: 104, Low: 99.5, Close: 101}, // low 99.5 <= trigger 100
		{Date: "2025-06-03", Open: 101, High: 102, Low: 91, Close: 93},    // target1
	}

	sim, err := Simulate(Input{Levels: lv, Bars: bars, Capital: 100000})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sim.Status != SimPartialExit {
		t.Fatalf("expected PARTIAL_EXIT, got %s", sim.Status)
	}
	if *sim.EntryPrice != 100 {
		t.Errorf("expected short entry at zone high 100, got %.2f", *sim.EntryPrice)
	}
	// 500 booked at 92: (100-92)*500
	if sim.RealizedPnL != 4000 {
		t.Errorf("expected realized 4000, got %.2f", sim.RealizedPnL)
	}
	if sim.TrailingStop != 100 {
		t.Errorf("expected trailing at entry 100, got %.2f", sim.TrailingStop)
	}
	// Remaining 500 marked at close 93: (100-93)*500.
	if sim.UnrealizedPnL != 3500 {
		t.Errorf("expected unrealized 3500, got %.2f", sim.UnrealizedPnL)
	}
}

func TestSimulateIdempotent(t *testing.T) {
	bars := []Bar{
		{Date: "2025-06-02", Open: 97, High: 99, Low: 96, Close: 98.5},
		{Date: "2025-06-03", Open: 99, High: 111, Low: 98, Close: 110},
		{Date: "2025-06-04", Open: 110, High: 115, Low: 99, Close: 101},
	}
	in := Input{Levels: longLevels(levels.Float64Ptr(130)), Bars: bars, Capital: 100000}

	first, err := Simulate(in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := Simulate(in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("replay not idempotent:\nfirst:  %+v\nsecond: %+v", first, second)
	}
}

func TestSimulateRejectsOutOfOrderBars(t *testing.T) {
	tests := []struct {
		name string
		bars []Bar
	}{
		{
			name: "descending",
			bars: []Bar{
				{Date: "2025-06-03", Open: 99, High: 100, Low: 98, Close: 99},
				{Date: "2025-06-02", Open: 97, High: 99, Low: 96, Close: 98},
			},
		},
		{
			name: "duplicate date",
			bars: []Bar{
				{Date: "2025-06-02", Open: 97, High: 99, Low: 96, Close: 98},
				{Date: "2025-06-02", Open: 98, High: 100, Low: 97, Close: 99},
			},
		},
		{
			name: "malformed date",
			bars: []Bar{
				{Date: "junk", Open: 97, High: 99, Low: 96, Close: 98},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Simulate(Input{Levels: longLevels(nil), Bars: tt.bars, Capital: 100000}); err == nil {
				t.Error("expected validation error, got nil")
			}
		})
	}
}

func TestSimulateRejectsInvalidLevels(t *testing.T) {
	bad := &levels.Levels{
		Direction:  levels.Long,
		Entry:      100,
		EntryRange: levels.EntryRange{Low: 98, High: 100},
		Stop:       105, // stop above entry
		Target1:    110,
		Target2:    120,
	}
	if _, err := Simulate(Input{Levels: bad, Capital: 100000}); err == nil {
		t.Error("expected validation error for malformed levels, got nil")
	}
	if _, err := Simulate(Input{Levels: nil, Capital: 100000}); err == nil {
		t.Error("expected validation error for nil levels, got nil")
	}
}

func TestSimulateQuantityConservation(t *testing.T) {
	// Replay prefixes of an eventful week; the invariant must hold at
	// every point after entry.
	bars := []Bar{
		{Date: "2025-06-02", Open: 97, High: 99, Low: 96, Close: 98.5},
		{Date: "2025-06-03", Open: 99, High: 111, Low: 98, Close: 110},
		{Date: "2025-06-04", Open: 110, High: 121, Low: 109, Close: 119},
		{Date: "2025-06-05", Open: 119, High: 131, Low: 121, Close: 129},
	}
	lv := longLevels(levels.Float64Ptr(130))
	for n := 1; n <= len(bars); n++ {
		sim, err := Simulate(Input{Levels: lv, Bars: bars[:n], Capital: 100000})
		if err != nil {
			t.Fatalf("prefix %d: %v", n, err)
		}
		if sim.QtyTotal != sim.QtyRemaining+sim.QtyExited {
			t.Errorf("prefix %d: qty not conserved: total=%d remaining=%d exited=%d",
				n, sim.QtyTotal, sim.QtyRemaining, sim.QtyExited)
		}
	}
}
