package database

import (
	"errors"
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"swingdesk/simulation"
	"swingdesk/watchlist"
)

// WatchlistRepository handles database operations for weekly watchlists
type WatchlistRepository struct {
	db *Database
}

// NewWatchlistRepository creates a new watchlist repository
func NewWatchlistRepository(db *Database) *WatchlistRepository {
	return &WatchlistRepository{db: db}
}

// InitSchema performs auto-migration and index setup
func (r *WatchlistRepository) InitSchema() error {
	fmt.Println("🔄 Starting database schema initialization...")

	err := r.db.db.AutoMigrate(
		&WatchlistRecord{},
		&SimulationResult{},
		&WebhookSubscription{},
		&WebhookDeliveryLog{},
		&AccessToken{},
	)
	if err != nil {
		return fmt.Errorf("auto-migration failed: %w", err)
	}

	// GIN index so per-symbol queries into the JSONB document stay fast as
	// weeks accumulate.
	r.db.db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_watchlists_stocks_gin
		ON watchlists USING GIN (stocks jsonb_path_ops)
	`)

	r.db.db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_results_status_return
		ON simulation_results(status, total_return_pct DESC)
	`)

	fmt.Println("✅ Database schema initialization completed successfully")
	return nil
}

// Save upserts the watchlist row for its trading week.
func (r *WatchlistRepository) Save(w *watchlist.Watchlist) error {
	rec := RecordFromDomain(w)
	rec.UpdatedAt = time.Now()

	err := r.db.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "week_start"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"status", "stocks", "updated_at",
		}),
	}).Create(rec).Error
	if err != nil {
		return WrapDBError("save watchlist", err)
	}

	w.ID = rec.ID
	w.UpdatedAt = rec.UpdatedAt
	return nil
}

// GetActive returns the single ACTIVE watchlist, or a NotFoundError when
// none exists. When multiple actives exist (a missed rollover), all but the
// most recent are archived before returning.
func (r *WatchlistRepository) GetActive() (*watchlist.Watchlist, error) {
	var records []WatchlistRecord
	err := r.db.db.Where("status = ?", watchlist.StatusActive).
		Order("week_start DESC").
		Find(&records).Error
	if err != nil {
		return nil, WrapDBError("get active watchlist", err)
	}
	if len(records) == 0 {
		return nil, NewNotFoundError("active watchlist")
	}

	if len(records) > 1 {
		log.Printf("⚠️ Found %d active watchlists, archiving all but the newest", len(records))
		for _, stale := range records[1:] {
			if err := r.db.db.Model(&WatchlistRecord{}).
				Where("id = ?", stale.ID).
				Update("status", watchlist.StatusArchived).Error; err != nil {
				return nil, WrapDBError("archive stale watchlist", err)
			}
		}
	}

	return records[0].ToDomain(), nil
}

// GetByWeek returns the watchlist whose week starts on weekStart, or a
// NotFoundError.
func (r *WatchlistRepository) GetByWeek(weekStart time.Time) (*watchlist.Watchlist, error) {
	var rec WatchlistRecord
	err := r.db.db.Where("week_start = ?", weekStart).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, NewNotFoundErrorWithID("watchlist", weekStart.Format("2006-01-02"))
	}
	if err != nil {
		return nil, WrapDBError("get watchlist by week", err)
	}
	return rec.ToDomain(), nil
}

// History returns recent watchlists newest first.
func (r *WatchlistRepository) History(limit int) ([]*watchlist.Watchlist, error) {
	if limit <= 0 {
		limit = 12
	}
	var records []WatchlistRecord
	err := r.db.db.Order("week_start DESC").Limit(limit).Find(&records).Error
	if err != nil {
		return nil, WrapDBError("watchlist history", err)
	}
	out := make([]*watchlist.Watchlist, 0, len(records))
	for i := range records {
		out = append(out, records[i].ToDomain())
	}
	return out, nil
}

// SaveResults flattens each stock's simulation into simulation_results.
// Idempotent: re-completing a week overwrites the prior rows.
func (r *WatchlistRepository) SaveResults(w *watchlist.Watchlist) error {
	weekKey := w.WeekKey()
	for i := range w.Stocks {
		s := &w.Stocks[i]
		if s.Simulation == nil || s.Levels == nil {
			continue
		}
		row := resultRow(weekKey, s, s.Simulation)
		err := r.db.db.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "week_key"}, {Name: "symbol"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"status", "entry_price", "entry_date", "realized_pnl", "unrealized_pnl",
				"total_pnl", "total_return_pct", "peak_gain_pct", "event_count",
			}),
		}).Create(row).Error
		if err != nil {
			return WrapDBError("save simulation result", err)
		}
	}
	return nil
}

func resultRow(weekKey string, s *watchlist.StockEntry, sim *simulation.TradeSimulation) *SimulationResult {
	return &SimulationResult{
		WeekKey:        weekKey,
		Symbol:         s.Symbol,
		Direction:      string(s.Levels.Direction),
		Archetype:      string(s.Levels.Archetype),
		Status:         string(sim.Status),
		EntryPrice:     sim.EntryPrice,
		EntryDate:      sim.EntryDate,
		RealizedPnL:    sim.RealizedPnL,
		UnrealizedPnL:  sim.UnrealizedPnL,
		TotalPnL:       sim.TotalPnL,
		TotalReturnPct: sim.TotalReturnPct,
		PeakGainPct:    sim.PeakGainPct,
		Capital:        sim.Capital,
		EventCount:     len(sim.Events),
		CreatedAt:      time.Now(),
	}
}

// Webhook Management methods

// GetActiveWebhooks retrieves all active webhook subscriptions
func (r *WatchlistRepository) GetActiveWebhooks() ([]WebhookSubscription, error) {
	var webhooks []WebhookSubscription
	err := r.db.db.Where("is_active = ?", true).Find(&webhooks).Error
	return webhooks, err
}

// GetWebhooks retrieves all webhooks (active and inactive)
func (r *WatchlistRepository) GetWebhooks() ([]WebhookSubscription, error) {
	var webhooks []WebhookSubscription
	err := r.db.db.Order("id ASC").Find(&webhooks).Error
	return webhooks, err
}

// GetWebhookByID retrieves a specific webhook
func (r *WatchlistRepository) GetWebhookByID(id int64) (*WebhookSubscription, error) {
	var webhook WebhookSubscription
	err := r.db.db.First(&webhook, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return &webhook, err
}

// SaveWebhook creates or updates a webhook subscription
func (r *WatchlistRepository) SaveWebhook(webhook *WebhookSubscription) error {
	return r.db.db.Save(webhook).Error
}

// DeleteWebhook deletes a webhook subscription
func (r *WatchlistRepository) DeleteWebhook(id int64) error {
	return r.db.db.Delete(&WebhookSubscription{}, id).Error
}

// SaveWebhookLog saves a new webhook delivery log
func (r *WatchlistRepository) SaveWebhookLog(entry *WebhookDeliveryLog) error {
	return r.db.db.Create(entry).Error
}

// Token persistence

// GetAccessToken returns the stored token for a provider, or nil.
func (r *WatchlistRepository) GetAccessToken(provider string) (*AccessToken, error) {
	var tok AccessToken
	err := r.db.db.First(&tok, "provider = ?", provider).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, WrapDBError("get access token", err)
	}
	return &tok, nil
}

// SaveAccessToken upserts the provider token row.
func (r *WatchlistRepository) SaveAccessToken(tok *AccessToken) error {
	tok.UpdatedAt = time.Now()
	err := r.db.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "provider"}},
		DoUpdates: clause.AssignmentColumns([]string{"token", "expires_at", "updated_at"}),
	}).Create(tok).Error
	if err != nil {
		return WrapDBError("save access token", err)
	}
	return nil
}
