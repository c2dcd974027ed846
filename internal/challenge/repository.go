package challenge

import (
	"context"

	"github.com/shopspring/decimal"

	"prop-challenge-go/internal/models"
)

// Repository is the persistence boundary of the engine.
// Lookups of missing rows return an error matching gorm.ErrRecordNotFound.
type Repository interface {
	GetChallenge(ctx context.Context, id uint) (models.Challenge, error)
	CreateChallenge(ctx context.Context, ch *models.Challenge) error
	// UpdateChallenge writes equity, status and terminal fields of an active challenge.
	// It returns ErrConflict when the stored row is no longer active.
	UpdateChallenge(ctx context.Context, ch *models.Challenge) error
	// SaveStatus writes status and terminal fields regardless of the stored status.
	SaveStatus(ctx context.Context, ch *models.Challenge) error

	// ListTrades returns the trades of a challenge, newest first. A limit <= 0 means all.
	ListTrades(ctx context.Context, challengeID uint, limit int) ([]models.Trade, error)
	InsertTrade(ctx context.Context, trade *models.Trade) error

	// GetDailyMetric returns the (challenge, date) row without creating it.
	GetDailyMetric(ctx context.Context, challengeID uint, date string) (models.DailyMetric, error)
	// GetOrCreateDailyMetric returns the (challenge, date) row, inserting one seeded
	// with equity when none exists. Concurrent first inserts resolve to a single row.
	GetOrCreateDailyMetric(ctx context.Context, challengeID uint, date string, equity decimal.Decimal) (models.DailyMetric, error)
	// UpdateDailyStats writes the optional day statistics. DayStartEquity is never written.
	UpdateDailyStats(ctx context.Context, metric *models.DailyMetric) error

	GetPlanBySlug(ctx context.Context, slug string) (models.Plan, error)

	// WithinTx runs fn in a single transaction. fn must use the Repository it is given.
	WithinTx(ctx context.Context, fn func(tx Repository) error) error
}
