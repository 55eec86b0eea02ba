package database

import (
	"time"
)

// StatsRepository runs analytical queries over the flattened
// simulation_results table.
type StatsRepository struct {
	db *DB
}

// NewStatsRepository creates a new stats repository
func NewStatsRepository(db *DB) *StatsRepository {
	return &StatsRepository{db: db}
}

// WeeklyPerformance holds one trading week's aggregated simulation outcomes.
type WeeklyPerformance struct {
	WeekKey        string  `json:"week_key"`
	TotalSetups    int64   `json:"total_setups"`
	Triggered      int64   `json:"triggered"`
	Wins           int64   `json:"wins"`
	Losses         int64   `json:"losses"`
	Expired        int64   `json:"expired"`
	WinRate        float64 `json:"win_rate"`
	TotalPnL       float64 `json:"total_pnl"`
	AvgReturnPct   float64 `json:"avg_return_pct"`
	BestReturnPct  float64 `json:"best_return_pct"`
	WorstReturnPct float64 `json:"worst_return_pct"`
}

// GetWeeklyPerformance aggregates outcomes per trading week, newest first.
// A win is any positive total P&L on a triggered setup; EXPIRED without an
// entry never counts against the win rate.
func (r *StatsRepository) GetWeeklyPerformance(limit int) ([]WeeklyPerformance, error) {
	if limit <= 0 {
		limit = 12
	}

	query := `
		SELECT
			week_key,
			COUNT(*) AS total_setups,
			SUM(CASE WHEN entry_price IS NOT NULL THEN 1 ELSE 0 END) AS triggered,
			SUM(CASE WHEN entry_price IS NOT NULL AND total_pnl > 0 THEN 1 ELSE 0 END) AS wins,
			SUM(CASE WHEN entry_price IS NOT NULL AND total_pnl <= 0 THEN 1 ELSE 0 END) AS losses,
			SUM(CASE WHEN status = 'EXPIRED' AND entry_price IS NULL THEN 1 ELSE 0 END) AS expired,
			COALESCE(ROUND(
				(SUM(CASE WHEN entry_price IS NOT NULL AND total_pnl > 0 THEN 1 ELSE 0 END)::DECIMAL /
				 NULLIF(SUM(CASE WHEN entry_price IS NOT NULL THEN 1 ELSE 0 END), 0)) * 100,
				2
			), 0) AS win_rate,
			COALESCE(SUM(total_pnl), 0) AS total_pnl,
			COALESCE(AVG(total_return_pct), 0) AS avg_return_pct,
			COALESCE(MAX(total_return_pct), 0) AS best_return_pct,
			COALESCE(MIN(total_return_pct), 0) AS worst_return_pct
		FROM simulation_results
		GROUP BY week_key
		ORDER BY week_key DESC
		LIMIT $1
	`

	rows, err := r.db.conn.Query(query, limit)
	if err != nil {
		return nil, WrapDBError("weekly performance", err)
	}
	defer rows.Close()

	var out []WeeklyPerformance
	for rows.Next() {
		var p WeeklyPerformance
		if err := rows.Scan(
			&p.WeekKey, &p.TotalSetups, &p.Triggered, &p.Wins, &p.Losses, &p.Expired,
			&p.WinRate, &p.TotalPnL, &p.AvgReturnPct, &p.BestReturnPct, &p.WorstReturnPct,
		); err != nil {
			return nil, WrapDBError("weekly performance scan", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ArchetypePerformance breaks outcomes down by setup archetype.
type ArchetypePerformance struct {
	Archetype    string  `json:"archetype"`
	Direction    string  `json:"direction"`
	TotalSetups  int64   `json:"total_setups"`
	Triggered    int64   `json:"triggered"`
	Wins         int64   `json:"wins"`
	WinRate      float64 `json:"win_rate"`
	AvgReturnPct float64 `json:"avg_return_pct"`
	TotalPnL     float64 `json:"total_pnl"`
}

// GetArchetypePerformance aggregates outcomes per (archetype, direction)
// since the given week key (inclusive). Empty sinceWeek means all history.
func (r *StatsRepository) GetArchetypePerformance(sinceWeek string) ([]ArchetypePerformance, error) {
	query := `
		SELECT
			archetype,
			direction,
			COUNT(*) AS total_setups,
			SUM(CASE WHEN entry_price IS NOT NULL THEN 1 ELSE 0 END) AS triggered,
			SUM(CASE WHEN entry_price IS NOT NULL AND total_pnl > 0 THEN 1 ELSE 0 END) AS wins,
			COALESCE(ROUND(
				(SUM(CASE WHEN entry_price IS NOT NULL AND total_pnl > 0 THEN 1 ELSE 0 END)::DECIMAL /
				 NULLIF(SUM(CASE WHEN entry_price IS NOT NULL THEN 1 ELSE 0 END), 0)) * 100,
				2
			), 0) AS win_rate,
			COALESCE(AVG(total_return_pct), 0) AS avg_return_pct,
			COALESCE(SUM(total_pnl), 0) AS total_pnl
		FROM simulation_results
		WHERE ($1 = '' OR week_key >= $1)
		GROUP BY archetype, direction
		ORDER BY total_pnl DESC
	`

	rows, err := r.db.conn.Query(query, sinceWeek)
	if err != nil {
		return nil, WrapDBError("archetype performance", err)
	}
	defer rows.Close()

	var out []ArchetypePerformance
	for rows.Next() {
		var p ArchetypePerformance
		if err := rows.Scan(
			&p.Archetype, &p.Direction, &p.TotalSetups, &p.Triggered, &p.Wins,
			&p.WinRate, &p.AvgReturnPct, &p.TotalPnL,
		); err != nil {
			return nil, WrapDBError("archetype performance scan", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// StatusDistribution counts final simulation states over a window.
type StatusDistribution struct {
	Status string `json:"status"`
	Count  int64  `json:"count"`
}

// GetStatusDistribution returns how setups resolved since a point in time.
func (r *StatsRepository) GetStatusDistribution(since time.Time) ([]StatusDistribution, error) {
	query := `
		SELECT status, COUNT(*) AS count
		FROM simulation_results
		WHERE created_at >= $1
		GROUP BY status
		ORDER BY count DESC
	`

	rows, err := r.db.conn.Query(query, since)
	if err != nil {
		return nil, WrapDBError("status distribution", err)
	}
	defer rows.Close()

	var out []StatusDistribution
	for rows.Next() {
		var d StatusDistribution
		if err := rows.Scan(&d.Status, &d.Count); err != nil {
			return nil, WrapDBError("status distribution scan", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// TopPerformer is one stock's best or worst simulated outcome.
type TopPerformer struct {
	WeekKey        string  `json:"week_key"`
	Symbol         string  `json:"symbol"`
	Archetype      string  `json:"archetype"`
	Status         string  `json:"status"`
	TotalReturnPct float64 `json:"total_return_pct"`
	TotalPnL       float64 `json:"total_pnl"`
}

// GetTopPerformers returns the best triggered setups by return percentage.
// Negative limit flips the ordering to the worst performers.
func (r *StatsRepository) GetTopPerformers(limit int) ([]TopPerformer, error) {
	order := "DESC"
	if limit < 0 {
		order = "ASC"
		limit = -limit
	}
	if limit == 0 {
		limit = 10
	}

	query := `
		SELECT week_key, symbol, archetype, status, total_return_pct, total_pnl
		FROM simulation_results
		WHERE entry_price IS NOT NULL
		ORDER BY total_return_pct ` + order + `
		LIMIT $1
	`

	rows, err := r.db.conn.Query(query, limit)
	if err != nil {
		return nil, WrapDBError("top performers", err)
	}
	defer rows.Close()

	var out []TopPerformer
	for rows.Next() {
		var p TopPerformer
		if err := rows.Scan(&p.WeekKey, &p.Symbol, &p.Archetype, &p.Status, &p.TotalReturnPct, &p.TotalPnL); err != nil {
			return nil, WrapDBError("top performers scan", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
