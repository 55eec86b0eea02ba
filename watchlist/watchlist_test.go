package watchlist

import (
	"testing"
	"time"

	"swingdesk/levels"
	"swingdesk/simulation"
	"swingdesk/tracking"
)

func testLevels() *levels.Levels {
	return &levels.Levels{
		Archetype:  levels.ArchetypePullback,
		Direction:  levels.Long,
		Entry:      100,
		EntryRange: levels.EntryRange{Low: 98, High: 100},
		Stop:       92,
		Target1:    110,
		Target2:    120,
	}
}

func eodSnap(date string, o, h, l, c float64) tracking.DailySnapshot {
	return tracking.DailySnapshot{Date: date, Open: o, High: h, Low: l, Close: c}
}

func TestUpsertSnapshotSupersedeRules(t *testing.T) {
	s := &StockEntry{Symbol: "RELIANCE", Levels: testLevels()}

	intraday := eodSnap("2026-08-26", 101, 103, 100, 102)
	intraday.IsIntraday = true
	s.UpsertSnapshot(intraday)
	if len(s.Snapshots) != 1 || !s.Snapshots[0].IsIntraday {
		t.Fatalf("expected one provisional snapshot, got %+v", s.Snapshots)
	}

	// A later provisional tick for the same day replaces the earlier one.
	intraday2 := eodSnap("2026-08-26", 101, 105, 100, 104)
	intraday2.IsIntraday = true
	s.UpsertSnapshot(intraday2)
	if len(s.Snapshots) != 1 || s.Snapshots[0].High != 105 {
		t.Fatalf("provisional snapshot should be replaced, got %+v", s.Snapshots)
	}

	// The authoritative end-of-day bar supersedes the provisional one.
	s.UpsertSnapshot(eodSnap("2026-08-26", 101, 106, 99, 103))
	if len(s.Snapshots) != 1 {
		t.Fatalf("expected one snapshot after EOD upsert, got %d", len(s.Snapshots))
	}
	if s.Snapshots[0].IsIntraday || s.Snapshots[0].High != 106 {
		t.Errorf("EOD bar should supersede provisional, got %+v", s.Snapshots[0])
	}

	// A provisional snapshot never overwrites an authoritative one.
	late := eodSnap("2026-08-26", 101, 110, 95, 108)
	late.IsIntraday = true
	s.UpsertSnapshot(late)
	if s.Snapshots[0].High != 106 || s.Snapshots[0].IsIntraday {
		t.Errorf("authoritative bar was overwritten by provisional: %+v", s.Snapshots[0])
	}
}

func TestUpsertSnapshotKeepsDateOrder(t *testing.T) {
	s := &StockEntry{Symbol: "TCS", Levels: testLevels()}
	s.UpsertSnapshot(eodSnap("2026-08-26", 100, 101, 99, 100))
	s.UpsertSnapshot(eodSnap("2026-08-24", 100, 101, 99, 100))
	s.UpsertSnapshot(eodSnap("2026-08-25", 100, 101, 99, 100))

	want := []string{"2026-08-24", "2026-08-25", "2026-08-26"}
	for i, d := range want {
		if s.Snapshots[i].Date != d {
			t.Fatalf("snapshot %d = %s, want %s", i, s.Snapshots[i].Date, d)
		}
	}
	if got := s.LatestSnapshot(); got == nil || got.Date != "2026-08-26" {
		t.Errorf("LatestSnapshot = %v, want 2026-08-26", got)
	}
	if s.SnapshotFor("2026-08-25") == nil {
		t.Error("SnapshotFor missed an existing date")
	}
	if s.SnapshotFor("2026-08-27") != nil {
		t.Error("SnapshotFor invented a snapshot")
	}
}

func TestAddStockValidatesAndReplacesDuplicates(t *testing.T) {
	w := New(time.Date(2026, time.August, 26, 10, 0, 0, 0, Location()))

	if err := w.AddStock(StockEntry{Levels: testLevels()}); err == nil {
		t.Error("expected error for missing symbol")
	}

	bad := testLevels()
	bad.Stop = 105 // above entry
	if err := w.AddStock(StockEntry{Symbol: "INFY", Levels: bad}); err == nil {
		t.Error("expected error for unsound levels")
	}

	if err := w.AddStock(StockEntry{Symbol: "INFY", Name: "Infosys", Levels: testLevels()}); err != nil {
		t.Fatalf("AddStock: %v", err)
	}
	refreshed := StockEntry{Symbol: "INFY", Name: "Infosys Ltd", Levels: testLevels()}
	if err := w.AddStock(refreshed); err != nil {
		t.Fatalf("AddStock replace: %v", err)
	}
	if len(w.Stocks) != 1 {
		t.Fatalf("duplicate symbol should replace, have %d entries", len(w.Stocks))
	}
	if got := w.FindStock("INFY"); got == nil || got.Name != "Infosys Ltd" {
		t.Errorf("FindStock after replace = %+v", got)
	}
}

func TestAdoptStockMergesWithoutGrowing(t *testing.T) {
	// Merging updated state into a freshly read document must keep stocks
	// added concurrently and never resurrect ones that were removed.
	w := New(time.Date(2026, time.August, 24, 10, 0, 0, 0, Location()))
	tracked := StockEntry{Symbol: "RELIANCE", Levels: testLevels()}
	added := StockEntry{Symbol: "TCS", Levels: testLevels()}
	if err := w.AddStock(tracked); err != nil {
		t.Fatal(err)
	}
	if err := w.AddStock(added); err != nil {
		t.Fatal(err)
	}

	updated := tracked
	updated.UpsertSnapshot(eodSnap("2026-08-24", 95, 96, 91, 95))
	if !w.AdoptStock(updated) {
		t.Fatal("expected AdoptStock to find RELIANCE")
	}
	if len(w.Stocks) != 2 {
		t.Fatalf("adopt must not change the stock count, got %d", len(w.Stocks))
	}
	if got := w.FindStock("RELIANCE"); len(got.Snapshots) != 1 {
		t.Errorf("updated entry not adopted: %+v", got)
	}
	if w.FindStock("TCS") == nil {
		t.Error("concurrently added stock was lost")
	}

	gone := StockEntry{Symbol: "INFY", Levels: testLevels()}
	if w.AdoptStock(gone) {
		t.Error("AdoptStock must not add unknown symbols")
	}
	if len(w.Stocks) != 2 {
		t.Errorf("unknown symbol grew the list to %d", len(w.Stocks))
	}
}

func TestNewWatchlistPinsWeek(t *testing.T) {
	now := time.Date(2026, time.August, 26, 10, 0, 0, 0, Location())
	w := New(now)
	if w.Status != StatusActive {
		t.Errorf("new watchlist status = %s, want ACTIVE", w.Status)
	}
	if got := w.WeekKey(); got != "2026-08-24" {
		t.Errorf("WeekKey = %s, want 2026-08-24", got)
	}
	if !w.Week().Contains(now) {
		t.Error("stored week should contain creation time")
	}
}

func TestCompleteExpiresUnresolvedSetups(t *testing.T) {
	w := New(time.Date(2026, time.August, 24, 10, 0, 0, 0, Location()))

	never := StockEntry{Symbol: "NEVER", Levels: testLevels()}
	never.UpsertSnapshot(eodSnap("2026-08-24", 95, 96, 94, 95))
	never.UpsertSnapshot(eodSnap("2026-08-25", 95, 97, 93, 96))
	if err := w.AddStock(never); err != nil {
		t.Fatal(err)
	}

	entered := StockEntry{Symbol: "OPEN", Levels: testLevels()}
	entered.UpsertSnapshot(eodSnap("2026-08-24", 101, 102, 99, 101))
	entered.UpsertSnapshot(eodSnap("2026-08-25", 101, 104, 100, 103))
	if err := w.AddStock(entered); err != nil {
		t.Fatal(err)
	}

	if err := w.Complete(100000, simulation.DefaultPolicy()); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if w.Status != StatusCompleted {
		t.Errorf("status = %s, want COMPLETED", w.Status)
	}

	sim := w.FindStock("NEVER").Simulation
	if sim == nil || sim.Status != simulation.SimExpired {
		t.Errorf("untriggered setup should EXPIRE at week end, got %+v", sim)
	}
	if sim.EntryPrice != nil || len(sim.Events) != 0 {
		t.Errorf("untriggered setup should expire silently, got %+v", sim)
	}
	sim = w.FindStock("OPEN").Simulation
	if sim == nil || sim.Status != simulation.SimExpired {
		t.Errorf("open position should force-close to EXPIRED, got %+v", sim)
	}
	if sim.QtyRemaining != 0 {
		t.Errorf("force-closed position should hold nothing, qty %d", sim.QtyRemaining)
	}
}

func TestReconcileIntradayAdoptsStretchedBar(t *testing.T) {
	// Ticks that only stretch today's provisional bar must land on the
	// entry even though the simulation stays WAITING, or a later replay
	// runs against a bar missing its true low.
	s := &StockEntry{Symbol: "RELIANCE", InstrumentKey: "NSE_EQ|INE002A01018", Levels: testLevels()}
	rec := simulation.NewReconciler(nil)
	now := time.Date(2026, time.August, 25, 10, 0, 0, 0, Location())
	policy := simulation.DefaultPolicy()

	changed, err := s.ReconcileIntraday(rec, 95, now, 100000, policy, false)
	if err != nil {
		t.Fatalf("ReconcileIntraday: %v", err)
	}
	if !changed {
		t.Error("first tick should report changed")
	}

	changed, err = s.ReconcileIntraday(rec, 91, now.Add(10*time.Minute), 100000, policy, false)
	if err != nil {
		t.Fatalf("ReconcileIntraday: %v", err)
	}
	if !changed {
		t.Error("sub-stop tick should report changed while WAITING")
	}
	if got := s.Snapshots[len(s.Snapshots)-1].Low; got != 91 {
		t.Errorf("provisional low = %.2f, want 91", got)
	}

	if _, err = s.ReconcileIntraday(rec, 99, now.Add(time.Hour), 100000, policy, false); err != nil {
		t.Fatalf("ReconcileIntraday: %v", err)
	}
	if s.Simulation.Status != simulation.SimStoppedOut {
		t.Errorf("entry bar with low below stop should stop out, got %s", s.Simulation.Status)
	}
}

func TestResimulateCarriesAttribution(t *testing.T) {
	s := &StockEntry{Symbol: "ATTR", Levels: testLevels()}
	s.UpsertSnapshot(eodSnap("2026-08-24", 101, 102, 99, 101))

	if err := s.Resimulate(100000, simulation.DefaultPolicy(), false); err != nil {
		t.Fatal(err)
	}
	if len(s.Simulation.Events) == 0 {
		t.Fatal("expected entry events")
	}

	// Decorate the entry event with a crossing time, as the reconciler does.
	at := time.Date(2026, time.August, 24, 10, 42, 0, 0, Location())
	s.Simulation.Events[0].At = &at

	// Another day of data arrives and the whole week replays.
	s.UpsertSnapshot(eodSnap("2026-08-25", 101, 104, 100, 103))
	if err := s.Resimulate(100000, simulation.DefaultPolicy(), false); err != nil {
		t.Fatal(err)
	}

	got := s.Simulation.Events[0].At
	if got == nil || !got.Equal(at) {
		t.Errorf("replay dropped event attribution, got %v want %v", got, at)
	}
}
