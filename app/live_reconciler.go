package app

import (
	"context"
	"log"
	"sync"
	"time"

	"swingdesk/broker"
	"swingdesk/cache"
	"swingdesk/config"
	"swingdesk/database"
	"swingdesk/marketdata"
	"swingdesk/notifications"
	"swingdesk/realtime"
	"swingdesk/simulation"
	"swingdesk/watchlist"
)

// Fallback when MARKET_POLL_INTERVAL is unset. Ticks between reconcile
// passes still refresh the price cache and the SSE stream.
const defaultReconcileInterval = 60 * time.Second

// LiveReconciler consumes feed ticks during market hours and folds them into
// the active watchlist: price cache, provisional snapshots, simulation
// replay, event fan-out.
type LiveReconciler struct {
	repo       *database.WatchlistRepository
	reconciler *simulation.Reconciler
	prices     *cache.PriceCache
	webhooks   *notifications.WebhookManager
	sse        *realtime.Broker
	paper      *broker.PaperBroker
	trading    config.TradingConfig
	interval   time.Duration

	mu          sync.Mutex
	active      *watchlist.Watchlist
	lastRecon   map[string]time.Time
	lastRefresh time.Time
}

func NewLiveReconciler(repo *database.WatchlistRepository, lookup simulation.CrossTimeLookup, prices *cache.PriceCache, webhooks *notifications.WebhookManager, sse *realtime.Broker, paper *broker.PaperBroker, trading config.TradingConfig, interval time.Duration) *LiveReconciler {
	if interval <= 0 {
		interval = defaultReconcileInterval
	}
	return &LiveReconciler{
		repo:       repo,
		reconciler: simulation.NewReconciler(lookup),
		prices:     prices,
		webhooks:   webhooks,
		sse:        sse,
		paper:      paper,
		trading:    trading,
		interval:   interval,
		lastRecon:  make(map[string]time.Time),
	}
}

// InstrumentKeys returns the active watchlist's feed subscription set.
func (lr *LiveReconciler) InstrumentKeys() []string {
	lr.mu.Lock()
	defer lr.mu.Unlock()
	if err := lr.refreshActiveLocked(time.Now()); err != nil {
		return nil
	}
	keys := make([]string, 0, len(lr.active.Stocks))
	for i := range lr.active.Stocks {
		keys = append(keys, lr.active.Stocks[i].InstrumentKey)
	}
	return keys
}

// OnTick is the feed manager callback. Safe for concurrent use.
func (lr *LiveReconciler) OnTick(tick marketdata.Tick) {
	now := tick.At
	if now.IsZero() {
		now = time.Now()
	}
	now = now.In(watchlist.Location())

	lr.mu.Lock()
	defer lr.mu.Unlock()

	if err := lr.refreshActiveLocked(now); err != nil {
		return
	}

	stock := lr.findByInstrument(tick.InstrumentKey)
	if stock == nil {
		return
	}

	if lr.prices != nil {
		_ = lr.prices.SetLivePrice(context.Background(), cache.LivePrice{
			InstrumentKey: tick.InstrumentKey,
			Symbol:        stock.Symbol,
			Price:         tick.LastPrice,
			At:            now,
		})
	}
	lr.sse.Broadcast(realtime.EventPriceUpdate, map[string]interface{}{
		"symbol": stock.Symbol,
		"price":  tick.LastPrice,
		"at":     now,
	})

	if !watchlist.IsTradingTime(now) {
		return
	}
	if last, ok := lr.lastRecon[stock.Symbol]; ok && now.Sub(last) < lr.interval {
		return
	}
	lr.lastRecon[stock.Symbol] = now

	lr.reconcileStock(stock, tick.LastPrice, now)
}

func (lr *LiveReconciler) reconcileStock(stock *watchlist.StockEntry, price float64, now time.Time) {
	priorEvents := 0
	if stock.Simulation != nil {
		priorEvents = len(stock.Simulation.Events)
	}

	changed, err := stock.ReconcileIntraday(lr.reconciler, price, now,
		lr.trading.CapitalPerTrade, lr.policy(), lr.active.Week().Ended(now))
	if err != nil {
		log.Printf("⚠️  Live reconcile failed for %s: %v", stock.Symbol, err)
		return
	}
	if !changed {
		return
	}

	lr.persistStock(stock, now)

	if stock.Simulation == nil {
		return
	}
	if priorEvents < len(stock.Simulation.Events) {
		for _, ev := range stock.Simulation.Events[priorEvents:] {
			log.Printf("📶 %s live event: %s at %.2f", stock.Symbol, ev.Type, ev.Price)
			lr.sse.Broadcast(realtime.EventSimulation, map[string]interface{}{
				"symbol": stock.Symbol,
				"event":  ev,
			})
			if lr.webhooks != nil {
				lr.webhooks.NotifyEvent(stock.Symbol, lr.active.WeekKey(), ev, stock.Simulation.Status)
			}
			if lr.paper != nil && ev.Type == simulation.EventEntry {
				if err := lr.paper.MirrorEntry(stock.Symbol, *stock.Levels); err != nil {
					log.Printf("⚠️  Paper mirror failed for %s: %v", stock.Symbol, err)
				}
			}
		}
	}
}

// persistStock merges the updated entry into a fresh read of the canonical
// document before saving. Saving the cached copy directly would overwrite
// screen-ins that landed since the last refresh.
func (lr *LiveReconciler) persistStock(stock *watchlist.StockEntry, now time.Time) {
	fresh, err := lr.repo.GetActive()
	if err != nil {
		if !database.IsNotFound(err) {
			log.Printf("⚠️  Re-read before live save failed: %v", err)
		}
		return
	}
	if !fresh.AdoptStock(*stock) {
		// Removed or rolled over since the last refresh; drop the update.
		lr.active = fresh
		lr.lastRefresh = now
		return
	}
	if err := lr.repo.Save(fresh); err != nil {
		log.Printf("⚠️  Save after live reconcile failed: %v", err)
		return
	}
	lr.active = fresh
	lr.lastRefresh = now
	if lr.prices != nil {
		lr.prices.InvalidateActiveWatchlist(context.Background())
	}
}

// refreshActiveLocked loads the active watchlist, re-reading it at most once
// a minute so rollovers and screen-ins propagate without a restart.
func (lr *LiveReconciler) refreshActiveLocked(now time.Time) error {
	if lr.active != nil && now.Sub(lr.lastRefresh) < time.Minute {
		return nil
	}
	active, err := lr.repo.GetActive()
	if err != nil {
		if !database.IsNotFound(err) {
			log.Printf("⚠️  Load active watchlist failed: %v", err)
		}
		return err
	}
	lr.active = active
	lr.lastRefresh = now
	return nil
}

func (lr *LiveReconciler) findByInstrument(instrumentKey string) *watchlist.StockEntry {
	for i := range lr.active.Stocks {
		if lr.active.Stocks[i].InstrumentKey == instrumentKey {
			return &lr.active.Stocks[i]
		}
	}
	return nil
}

func (lr *LiveReconciler) policy() simulation.Policy {
	return simulation.Policy{
		T1BookFraction: lr.trading.T1BookFraction,
		T2BookFraction: lr.trading.T2BookFraction,
	}
}
