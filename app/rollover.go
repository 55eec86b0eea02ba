package app

import (
	"context"
	"log"
	"time"

	"swingdesk/broker"
	"swingdesk/cache"
	"swingdesk/config"
	"swingdesk/database"
	"swingdesk/realtime"
	"swingdesk/simulation"
	"swingdesk/watchlist"
)

// RolloverJob closes the active watchlist once its trading week ends:
// unresolved setups expire, flattened results land in the analytics table,
// and a fresh ACTIVE list opens when the next week begins.
type RolloverJob struct {
	repo    *database.WatchlistRepository
	prices  *cache.PriceCache
	sse     *realtime.Broker
	paper   *broker.PaperBroker
	trading config.TradingConfig
	done    chan bool
}

func NewRolloverJob(repo *database.WatchlistRepository, prices *cache.PriceCache, sse *realtime.Broker, paper *broker.PaperBroker, trading config.TradingConfig) *RolloverJob {
	return &RolloverJob{
		repo:    repo,
		prices:  prices,
		sse:     sse,
		paper:   paper,
		trading: trading,
		done:    make(chan bool),
	}
}

func (j *RolloverJob) Start() {
	log.Println("🔄 Week rollover job started")

	ticker := time.NewTicker(1 * time.Hour)
	defer ticker.Stop()

	j.run()

	for {
		select {
		case <-ticker.C:
			j.run()
		case <-j.done:
			log.Println("🔄 Week rollover job stopped")
			return
		}
	}
}

func (j *RolloverJob) Stop() {
	close(j.done)
}

func (j *RolloverJob) run() {
	now := time.Now().In(watchlist.Location())

	active, err := j.repo.GetActive()
	if err != nil {
		if database.IsNotFound(err) {
			j.openWeek(now)
		} else {
			log.Printf("⚠️  Rollover: load active watchlist failed: %v", err)
		}
		return
	}

	if !active.Week().Ended(now) {
		return
	}

	log.Printf("🔄 Closing out trading week %s", active.WeekKey())
	policy := simulation.Policy{
		T1BookFraction: j.trading.T1BookFraction,
		T2BookFraction: j.trading.T2BookFraction,
	}
	if err := active.Complete(j.trading.CapitalPerTrade, policy); err != nil {
		log.Printf("❌ Rollover: completing week %s failed: %v", active.WeekKey(), err)
		return
	}
	if err := j.repo.Save(active); err != nil {
		log.Printf("❌ Rollover: save completed watchlist failed: %v", err)
		return
	}
	if err := j.repo.SaveResults(active); err != nil {
		log.Printf("⚠️  Rollover: save flattened results failed: %v", err)
	}

	if j.prices != nil {
		j.prices.InvalidateActiveWatchlist(context.Background())
	}
	if j.paper != nil {
		j.paper.CloseAll()
	}
	j.sse.Broadcast(realtime.EventWatchlistUpdate, map[string]interface{}{
		"week_key": active.WeekKey(),
		"status":   active.Status,
	})
	log.Printf("✅ Week %s completed: %d stocks archived to results", active.WeekKey(), len(active.Stocks))

	j.openWeek(now)
}

// openWeek creates a fresh ACTIVE watchlist when now falls inside a trading
// week. On weekends the week resolves to the one just ended, so creation
// waits for Monday.
func (j *RolloverJob) openWeek(now time.Time) {
	week := watchlist.WeekFor(now)
	if !week.Contains(now) {
		return
	}

	fresh := watchlist.New(now)
	if err := j.repo.Save(fresh); err != nil {
		log.Printf("❌ Rollover: create watchlist for week %s failed: %v", fresh.WeekKey(), err)
		return
	}
	log.Printf("✅ Opened watchlist for trading week %s", fresh.WeekKey())
}
