package challenge

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"prop-challenge-go/internal/models"
	"prop-challenge-go/internal/risk"
)

// DailyTracker maintains the per-day equity baseline of challenges.
// It never touches a challenge's equity.
type DailyTracker struct{}

// GetOrCreateBaseline returns the stored metric of (challengeID, date), seeding it
// with equity on the first call of the day. The returned baseline already has the
// start balance substituted for a stored value that is zero or negative.
func (DailyTracker) GetOrCreateBaseline(ctx context.Context, repo Repository, ch models.Challenge, date string, equity decimal.Decimal) (models.DailyMetric, decimal.Decimal, error) {
	metric, err := repo.GetOrCreateDailyMetric(ctx, ch.ID, date, equity)
	if err != nil {
		return models.DailyMetric{}, decimal.Zero, fmt.Errorf("failed to get baseline of challenge %d for %s: %w", ch.ID, date, err)
	}
	return metric, risk.EffectiveBaseline(metric.DayStartEquity, ch.StartBalance), nil
}

// Baseline reads the metric of (challengeID, date) without creating it. When the day
// has no metric yet it returns nil and the challenge's current equity as the baseline.
func (DailyTracker) Baseline(ctx context.Context, repo Repository, ch models.Challenge, date string) (*models.DailyMetric, decimal.Decimal, error) {
	metric, err := repo.GetDailyMetric(ctx, ch.ID, date)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, risk.EffectiveBaseline(ch.CurrentEquity, ch.StartBalance), nil
	}
	if err != nil {
		return nil, decimal.Zero, fmt.Errorf("failed to read baseline of challenge %d for %s: %w", ch.ID, date, err)
	}
	return &metric, risk.EffectiveBaseline(metric.DayStartEquity, ch.StartBalance), nil
}

// RecordClose refreshes the running day statistics of metric from equity.
// The worst intraday drawdown only ever grows.
func (DailyTracker) RecordClose(ctx context.Context, repo Repository, metric *models.DailyMetric, baseline, equity decimal.Decimal) error {
	pnl := equity.Sub(baseline)
	metric.DayEndEquity = decimal.NewNullDecimal(equity)
	metric.DayPnL = decimal.NewNullDecimal(pnl)

	pnlPct, drawdown := 0.0, 0.0
	if baseline.IsPositive() {
		pnlPct = pnl.Div(baseline).Mul(decimal.NewFromInt(100)).Round(4).InexactFloat64()
		if pnlPct < 0 {
			drawdown = -pnlPct
		}
	}
	metric.DayPnLPct = &pnlPct
	if metric.MaxIntradayDrawdownPct == nil || drawdown > *metric.MaxIntradayDrawdownPct {
		metric.MaxIntradayDrawdownPct = &drawdown
	}

	if err := repo.UpdateDailyStats(ctx, metric); err != nil {
		return fmt.Errorf("failed to record day close of challenge %d: %w", metric.ChallengeID, err)
	}
	return nil
}
