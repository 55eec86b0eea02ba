package app

import (
	"context"
	"log"
	"time"

	"swingdesk/cache"
	"swingdesk/config"
	"swingdesk/database"
	"swingdesk/marketdata"
	"swingdesk/notifications"
	"swingdesk/realtime"
	"swingdesk/simulation"
	"swingdesk/watchlist"
)

// History fetched per stock on each end-of-day pass. Covers RSI warmup and
// the 50-day volume average.
const eodLookbackDays = 120

// EODTracker refreshes every tracked stock once per trading day after the
// close: authoritative daily bar, indicators, classification, and a full
// simulation replay.
type EODTracker struct {
	repo     *database.WatchlistRepository
	md       *marketdata.Client
	webhooks *notifications.WebhookManager
	broker   *realtime.Broker
	prices   *cache.PriceCache
	trading  config.TradingConfig
	done     chan bool

	lastRunDate string
}

func NewEODTracker(repo *database.WatchlistRepository, md *marketdata.Client, webhooks *notifications.WebhookManager, broker *realtime.Broker, prices *cache.PriceCache, trading config.TradingConfig) *EODTracker {
	return &EODTracker{
		repo:     repo,
		md:       md,
		webhooks: webhooks,
		broker:   broker,
		prices:   prices,
		trading:  trading,
		done:     make(chan bool),
	}
}

// Start runs the tracker loop. Checks every 15 minutes; the pass itself only
// fires once per trading day, after the market close settles.
func (t *EODTracker) Start() {
	log.Println("📊 End-of-day tracker started")

	ticker := time.NewTicker(15 * time.Minute)
	defer ticker.Stop()

	t.maybeRun()

	for {
		select {
		case <-ticker.C:
			t.maybeRun()
		case <-t.done:
			log.Println("📊 End-of-day tracker stopped")
			return
		}
	}
}

func (t *EODTracker) Stop() {
	close(t.done)
}

func (t *EODTracker) maybeRun() {
	now := time.Now().In(watchlist.Location())

	// Candles for today are not authoritative until well after the close.
	if now.Weekday() == time.Saturday || now.Weekday() == time.Sunday {
		return
	}
	if now.Hour() < 16 {
		return
	}

	today := now.Format("2006-01-02")
	if t.lastRunDate == today {
		return
	}

	if err := t.runPass(context.Background(), now); err != nil {
		log.Printf("❌ End-of-day pass failed: %v", err)
		return
	}
	t.lastRunDate = today
}

func (t *EODTracker) runPass(ctx context.Context, now time.Time) error {
	active, err := t.repo.GetActive()
	if err != nil {
		if database.IsNotFound(err) {
			return nil
		}
		return err
	}

	weekEnded := active.Week().Ended(now)
	policy := t.policy()
	changed := false

	for i := range active.Stocks {
		stock := &active.Stocks[i]

		candles, err := t.md.GetDailyCandles(ctx, stock.InstrumentKey, now.AddDate(0, 0, -eodLookbackDays), now)
		if err != nil {
			log.Printf("⚠️  EOD fetch failed for %s: %v", stock.Symbol, err)
			continue
		}
		if len(candles) == 0 {
			continue
		}

		priorEvents := 0
		if stock.Simulation != nil {
			priorEvents = len(stock.Simulation.Events)
		}
		priorStatus := ""
		if snap := stock.LatestSnapshot(); snap != nil {
			priorStatus = string(snap.Status)
		}

		snap := snapshotWithIndicators(candles, len(candles)-1, stock.Levels)
		stock.UpsertSnapshot(snap)

		if err := stock.Resimulate(t.trading.CapitalPerTrade, policy, weekEnded); err != nil {
			log.Printf("⚠️  Resimulate failed for %s: %v", stock.Symbol, err)
			continue
		}
		changed = true

		if string(snap.Status) != priorStatus {
			t.broker.Broadcast(realtime.EventStatusChange, map[string]interface{}{
				"symbol": stock.Symbol,
				"date":   snap.Date,
				"status": snap.Status,
				"flags":  snap.Flags,
			})
		}
		t.notifyNewEvents(stock, active.WeekKey(), priorEvents)
	}

	if !changed {
		return nil
	}

	if err := t.repo.Save(active); err != nil {
		return err
	}
	if t.prices != nil {
		t.prices.InvalidateActiveWatchlist(ctx)
	}
	t.broker.Broadcast(realtime.EventWatchlistUpdate, map[string]interface{}{
		"week_key": active.WeekKey(),
		"stocks":   len(active.Stocks),
	})
	log.Printf("💾 End-of-day pass saved: %d stocks in week %s", len(active.Stocks), active.WeekKey())
	return nil
}

// notifyNewEvents posts simulation events appended since the last pass.
func (t *EODTracker) notifyNewEvents(stock *watchlist.StockEntry, weekKey string, priorCount int) {
	if stock.Simulation == nil {
		return
	}
	if priorCount > len(stock.Simulation.Events) {
		priorCount = len(stock.Simulation.Events)
	}
	for _, ev := range stock.Simulation.Events[priorCount:] {
		t.broker.Broadcast(realtime.EventSimulation, map[string]interface{}{
			"symbol": stock.Symbol,
			"event":  ev,
		})
		if t.webhooks != nil {
			t.webhooks.NotifyEvent(stock.Symbol, weekKey, ev, stock.Simulation.Status)
		}
	}
}

func (t *EODTracker) policy() simulation.Policy {
	return simulation.Policy{
		T1BookFraction: t.trading.T1BookFraction,
		T2BookFraction: t.trading.T2BookFraction,
	}
}
