package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TradeSide is the direction of a trade.
type TradeSide string

const (
	SideBuy  TradeSide = "buy"
	SideSell TradeSide = "sell"
)

// Trade is an immutable execution record. Rows are only ever inserted.
type Trade struct {
	ID          uint            `gorm:"primaryKey" json:"id"`
	ChallengeID uint            `gorm:"not null;index:idx_trades_challenge_executed,priority:1" json:"challenge_id"`
	Symbol      string          `gorm:"type:varchar(32);not null" json:"symbol"`
	Side        TradeSide       `gorm:"type:varchar(8);not null" json:"side"`
	Quantity    int64           `gorm:"not null" json:"quantity"`
	Price       decimal.Decimal `gorm:"type:decimal(20,8);not null" json:"price"`
	TotalValue  decimal.Decimal `gorm:"type:decimal(20,8);not null" json:"total_value"`
	Commission  decimal.Decimal `gorm:"type:decimal(20,8);not null" json:"commission"`
	ProfitLoss  decimal.Decimal `gorm:"type:decimal(20,8);not null" json:"profit_loss"`
	PriceSource string          `gorm:"type:varchar(24);not null" json:"price_source"`
	ExecutedAt  time.Time       `gorm:"not null;index:idx_trades_challenge_executed,priority:2" json:"executed_at"`
}

func (Trade) TableName() string {
	return "trades"
}
