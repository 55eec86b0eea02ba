package tracking

import (
	"time"

	"swingdesk/levels"
)

// DateLayout is the calendar-date key format for snapshots and bars.
const DateLayout = "2006-01-02"

// DailySnapshot is one trading day's observed state for a tracked stock.
// Append-only, keyed by calendar date (upsert-by-date). A snapshot flagged
// IsIntraday or IsBackfill is provisional or reconstructed and is superseded
// wholesale by a later authoritative end-of-day snapshot for the same date.
type DailySnapshot struct {
	Date        string  `json:"date"` // DateLayout
	Open        float64 `json:"open"`
	High        float64 `json:"high"`
	Low         float64 `json:"low"`
	Close       float64 `json:"close"`
	Volume      float64 `json:"volume"`
	RSI         float64 `json:"rsi"`
	VolumeRatio float64 `json:"volume_ratio"` // volume vs 50-day average

	DistEntryPct  float64 `json:"dist_entry_pct"`
	DistStopPct   float64 `json:"dist_stop_pct"`
	DistTargetPct float64 `json:"dist_target_pct"`

	Status Status `json:"status"`
	Flags  []Flag `json:"flags,omitempty"`

	// AnalysisRef optionally points at an externally generated AI analysis
	// record. Read-only annotation; never consulted by simulation math.
	AnalysisRef *string `json:"analysis_ref,omitempty"`

	IsIntraday bool `json:"is_intraday,omitempty"`
	IsBackfill bool `json:"is_backfill,omitempty"`
}

// Day parses the snapshot date. Zero time on malformed dates.
func (s *DailySnapshot) Day() time.Time {
	t, _ := time.Parse(DateLayout, s.Date)
	return t
}

// Distances fills the distance-from-level percentages from the close.
func (s *DailySnapshot) Distances(lv *levels.Levels) {
	if lv == nil || s.Close <= 0 {
		return
	}
	if lv.Entry > 0 {
		s.DistEntryPct = round2((s.Close - lv.Entry) / lv.Entry * 100)
	}
	if lv.Stop > 0 {
		s.DistStopPct = round2((s.Close - lv.Stop) / lv.Stop * 100)
	}
	if lv.Target1 > 0 {
		s.DistTargetPct = round2((lv.Target1 - s.Close) / lv.Target1 * 100)
	}
}

func round2(v float64) float64 {
	if v < 0 {
		return float64(int64(v*100-0.5)) / 100
	}
	return float64(int64(v*100+0.5)) / 100
}
