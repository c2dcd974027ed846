package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ChallengeStatus is the lifecycle state of a challenge.
// Only active -> passed and active -> failed are produced by rule evaluation.
type ChallengeStatus string

const (
	StatusActive ChallengeStatus = "active"
	StatusPassed ChallengeStatus = "passed"
	StatusFailed ChallengeStatus = "failed"
)

// Valid reports whether s is one of the three known statuses.
func (s ChallengeStatus) Valid() bool {
	switch s {
	case StatusActive, StatusPassed, StatusFailed:
		return true
	}
	return false
}

// Terminal reports whether no further trading is allowed in this status.
func (s ChallengeStatus) Terminal() bool {
	return s == StatusPassed || s == StatusFailed
}

// Challenge is one funded-account attempt owned by a single user.
type Challenge struct {
	ID            uint            `gorm:"primaryKey" json:"id"`
	UserID        uint            `gorm:"not null;index" json:"user_id"`
	PlanID        uint            `gorm:"not null" json:"plan_id"`
	StartBalance  decimal.Decimal `gorm:"type:decimal(20,8);not null" json:"start_balance"`
	CurrentEquity decimal.Decimal `gorm:"type:decimal(20,8);not null" json:"current_equity"`
	Status        ChallengeStatus `gorm:"type:varchar(16);not null;default:active;index" json:"status"`
	FailureReason *string         `gorm:"type:varchar(128)" json:"failure_reason,omitempty"`

	MaxDailyLossPct float64 `gorm:"not null;default:5" json:"max_daily_loss_pct"`
	MaxTotalLossPct float64 `gorm:"not null;default:10" json:"max_total_loss_pct"`
	ProfitTargetPct float64 `gorm:"not null;default:10" json:"profit_target_pct"`

	CreatedAt time.Time  `gorm:"autoCreateTime" json:"created_at"`
	PassedAt  *time.Time `json:"passed_at,omitempty"`
	FailedAt  *time.Time `json:"failed_at,omitempty"`

	Trades       []Trade       `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	DailyMetrics []DailyMetric `gorm:"constraint:OnDelete:CASCADE" json:"-"`
}

// TableName pins the table name used by raw queries.
func (Challenge) TableName() string {
	return "challenges"
}
