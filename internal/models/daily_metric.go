package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// DayLayout is the calendar date format used for DailyMetric.Date.
const DayLayout = "2006-01-02"

// DayKey returns the UTC calendar date of t.
func DayKey(t time.Time) string {
	return t.UTC().Format(DayLayout)
}

// DailyMetric holds the per-day equity baseline of a challenge.
// There is at most one row per (challenge, date); DayStartEquity is written once.
type DailyMetric struct {
	ID             uint            `gorm:"primaryKey" json:"id"`
	ChallengeID    uint            `gorm:"not null;uniqueIndex:idx_daily_challenge_date" json:"challenge_id"`
	Date           string          `gorm:"type:varchar(10);not null;uniqueIndex:idx_daily_challenge_date" json:"date"`
	DayStartEquity decimal.Decimal `gorm:"type:decimal(20,8);not null" json:"day_start_equity"`

	DayEndEquity           decimal.NullDecimal `gorm:"type:decimal(20,8)" json:"day_end_equity"`
	DayPnL                 decimal.NullDecimal `gorm:"column:day_pnl;type:decimal(20,8)" json:"day_pnl"`
	DayPnLPct              *float64            `gorm:"column:day_pnl_pct" json:"day_pnl_pct,omitempty"`
	MaxIntradayDrawdownPct *float64            `json:"max_intraday_drawdown_pct,omitempty"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (DailyMetric) TableName() string {
	return "daily_metrics"
}
