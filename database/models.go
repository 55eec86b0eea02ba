// Package database provides persistence for the swingdesk watchlist system.
//
// This package includes:
//   - Database connection management using GORM and PostgreSQL
//   - The watchlist aggregate stored as a JSONB document per trading week
//   - A flat simulation_results table for cross-week performance queries
//
// Key Concepts:
//   - One row per trading week in watchlists; the stocks column holds the
//     full aggregate (levels, snapshots, simulation) as JSONB
//   - Simulation results are flattened into simulation_results when a week
//     completes, so stats queries never parse JSON
package database

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"swingdesk/watchlist"
)

// Database holds the GORM database connection and provides access to the
// underlying DB instance.
type Database struct {
	db *gorm.DB
}

// DB returns the underlying GORM database instance for direct access when needed.
func (d *Database) DB() *gorm.DB {
	return d.db
}

// Connect establishes database connection using GORM
func Connect(host, port, dbname, user, password string) (*Database, error) {
	dsn := fmt.Sprintf("host=%s port=%s dbname=%s user=%s password=%s sslmode=disable",
		host, port, dbname, user, password)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent), // Silent logging for production
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return &Database{db: db}, nil
}

// Close closes the database connection
func (d *Database) Close() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// StockEntries is the JSONB document column holding the per-stock aggregate
// (levels, snapshot history, simulation) for a watchlist row.
type StockEntries []watchlist.StockEntry

// Value implements driver.Valuer for JSONB storage.
func (s StockEntries) Value() (driver.Value, error) {
	if s == nil {
		return "[]", nil
	}
	return json.Marshal(s)
}

// Scan implements sql.Scanner for JSONB retrieval.
func (s *StockEntries) Scan(value interface{}) error {
	if value == nil {
		*s = StockEntries{}
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, s)
	case string:
		return json.Unmarshal([]byte(v), s)
	default:
		return fmt.Errorf("unsupported type %T for StockEntries", value)
	}
}

// GormDataType tells GORM to create the column as jsonb.
func (StockEntries) GormDataType() string {
	return "jsonb"
}

// WatchlistRecord is one trading week's watchlist row.
type WatchlistRecord struct {
	ID        int64            `gorm:"primaryKey" json:"id"`
	WeekStart time.Time        `gorm:"index:idx_watchlists_week,unique;not null" json:"week_start"`
	WeekEnd   time.Time        `gorm:"not null" json:"week_end"`
	Status    watchlist.Status `gorm:"type:varchar(16);index;not null" json:"status"`
	Stocks    StockEntries     `gorm:"type:jsonb" json:"stocks"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// TableName overrides the GORM default
func (WatchlistRecord) TableName() string {
	return "watchlists"
}

// ToDomain converts the row into the domain aggregate.
func (r *WatchlistRecord) ToDomain() *watchlist.Watchlist {
	return &watchlist.Watchlist{
		ID:        r.ID,
		WeekStart: r.WeekStart,
		WeekEnd:   r.WeekEnd,
		Status:    r.Status,
		Stocks:    []watchlist.StockEntry(r.Stocks),
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

// RecordFromDomain converts the domain aggregate into a storable row.
func RecordFromDomain(w *watchlist.Watchlist) *WatchlistRecord {
	return &WatchlistRecord{
		ID:        w.ID,
		WeekStart: w.WeekStart,
		WeekEnd:   w.WeekEnd,
		Status:    w.Status,
		Stocks:    StockEntries(w.Stocks),
		CreatedAt: w.CreatedAt,
		UpdatedAt: w.UpdatedAt,
	}
}

// SimulationResult is the flattened per-stock outcome written when a week
// completes. Queried by the stats endpoints via raw SQL.
type SimulationResult struct {
	ID             int64     `gorm:"primaryKey" json:"id"`
	WeekKey        string    `gorm:"type:varchar(10);index:idx_results_week_symbol,unique,priority:1;not null" json:"week_key"`
	Symbol         string    `gorm:"type:varchar(32);index:idx_results_week_symbol,unique,priority:2;not null" json:"symbol"`
	Direction      string    `gorm:"type:varchar(8)" json:"direction"`
	Archetype      string    `gorm:"type:varchar(32)" json:"archetype"`
	Status         string    `gorm:"type:varchar(16);index" json:"status"`
	EntryPrice     *float64  `json:"entry_price,omitempty"`
	EntryDate      *string   `gorm:"type:varchar(10)" json:"entry_date,omitempty"`
	RealizedPnL    float64   `json:"realized_pnl"`
	UnrealizedPnL  float64   `json:"unrealized_pnl"`
	TotalPnL       float64   `json:"total_pnl"`
	TotalReturnPct float64   `json:"total_return_pct"`
	PeakGainPct    float64   `json:"peak_gain_pct"`
	Capital        float64   `json:"capital"`
	EventCount     int       `json:"event_count"`
	CreatedAt      time.Time `json:"created_at"`
}

// TableName overrides the GORM default
func (SimulationResult) TableName() string {
	return "simulation_results"
}

// WebhookSubscription is a registered delivery endpoint for simulation
// events.
type WebhookSubscription struct {
	ID         int64     `gorm:"primaryKey" json:"id"`
	Name       string    `gorm:"type:varchar(64);not null" json:"name"`
	URL        string    `gorm:"type:varchar(512);not null" json:"url"`
	Secret     string    `gorm:"type:varchar(128)" json:"-"`
	EventTypes string    `gorm:"type:varchar(256)" json:"event_types"` // CSV filter, empty matches all
	Symbols    string    `gorm:"type:varchar(512)" json:"symbols"`     // CSV filter, empty matches all
	RetryCount int       `gorm:"default:3" json:"retry_count"`
	IsActive   bool      `gorm:"index;default:true" json:"is_active"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// TableName overrides the GORM default
func (WebhookSubscription) TableName() string {
	return "webhook_subscriptions"
}

// WebhookDeliveryLog records one delivery attempt.
type WebhookDeliveryLog struct {
	ID          int64     `gorm:"primaryKey" json:"id"`
	WebhookID   int64     `gorm:"index;not null" json:"webhook_id"`
	EventType   string    `gorm:"type:varchar(32)" json:"event_type"`
	Symbol      string    `gorm:"type:varchar(32)" json:"symbol"`
	StatusCode  int       `json:"status_code"`
	Error       string    `gorm:"type:text" json:"error,omitempty"`
	TriggeredAt time.Time `gorm:"index" json:"triggered_at"`
}

// TableName overrides the GORM default
func (WebhookDeliveryLog) TableName() string {
	return "webhook_delivery_logs"
}

// AccessToken persists the market data provider's OAuth token across
// restarts. Single row per provider.
type AccessToken struct {
	Provider  string    `gorm:"primaryKey;type:varchar(32)" json:"provider"`
	Token     string    `gorm:"type:text;not null" json:"-"`
	ExpiresAt time.Time `json:"expires_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName overrides the GORM default
func (AccessToken) TableName() string {
	return "access_tokens"
}
