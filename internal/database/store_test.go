package database

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"prop-challenge-go/internal/challenge"
	"prop-challenge-go/internal/config"
	"prop-challenge-go/internal/models"
)

func newTestStore(t *testing.T) (*Store, *gorm.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	cfg := &config.Config{
		Database: config.Database{DSN: dsn},
		Plans: []config.Plan{
			{Slug: "starter", Name: "Starter", Fee: 200, StartBalance: 5000, Features: []string{"5% daily loss"}},
			{Slug: "pro", Name: "Pro", Fee: 500, StartBalance: 10000},
		},
	}
	db, err := NewDatabase(cfg)
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return NewStore(db), db
}

func seedChallenge(t *testing.T, s *Store, userID uint, equity string) models.Challenge {
	t.Helper()
	ch := models.Challenge{
		UserID:          userID,
		PlanID:          1,
		StartBalance:    decimal.RequireFromString("5000"),
		CurrentEquity:   decimal.RequireFromString(equity),
		Status:          models.StatusActive,
		MaxDailyLossPct: 5,
		MaxTotalLossPct: 10,
		ProfitTargetPct: 10,
	}
	require.NoError(t, s.CreateChallenge(context.Background(), &ch))
	return ch
}

func TestAutoMigrate_SeedsPlansOnce(t *testing.T) {
	s, db := newTestStore(t)
	ctx := context.Background()

	// a second migration keeps existing rows and adds nothing
	require.NoError(t, AutoMigrate(db, &config.Config{Plans: []config.Plan{{Slug: "starter", Name: "Renamed", StartBalance: 1}}}))

	plans, err := s.ListPlans(ctx)
	require.NoError(t, err)
	require.Len(t, plans, 2)
	assert.Equal(t, "starter", plans[0].Slug)
	assert.Equal(t, "Starter", plans[0].Name)
	assert.True(t, plans[0].StartBalance.Equal(decimal.NewFromInt(5000)))
	assert.Equal(t, []string{"5% daily loss"}, plans[0].Features())

	plan, err := s.GetPlanBySlug(ctx, "pro")
	require.NoError(t, err)
	assert.True(t, plan.Fee.Equal(decimal.NewFromInt(500)))

	_, err = s.GetPlanBySlug(ctx, "missing")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestStore_GetChallenge(t *testing.T) {
	s, _ := newTestStore(t)
	ch := seedChallenge(t, s, 7, "5000")

	got, err := s.GetChallenge(context.Background(), ch.ID)
	require.NoError(t, err)
	assert.Equal(t, uint(7), got.UserID)
	assert.Equal(t, models.StatusActive, got.Status)
	assert.True(t, got.CurrentEquity.Equal(decimal.NewFromInt(5000)))

	_, err = s.GetChallenge(context.Background(), 999)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestStore_UpdateChallenge_GuardsActive(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	ch := seedChallenge(t, s, 1, "5000")

	now := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	reason := "Daily Loss Limit Exceeded (>5%)"
	ch.CurrentEquity = decimal.RequireFromString("4500")
	ch.Status = models.StatusFailed
	ch.FailureReason = &reason
	ch.FailedAt = &now
	require.NoError(t, s.UpdateChallenge(ctx, &ch))

	got, err := s.GetChallenge(ctx, ch.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, got.Status)
	require.NotNil(t, got.FailureReason)
	assert.Equal(t, reason, *got.FailureReason)
	require.NotNil(t, got.FailedAt)
	assert.True(t, now.Equal(*got.FailedAt))
	assert.Nil(t, got.PassedAt)

	// the stored row is terminal now, so a further engine write conflicts
	ch.CurrentEquity = decimal.RequireFromString("4000")
	err = s.UpdateChallenge(ctx, &ch)
	assert.ErrorIs(t, err, challenge.ErrConflict)

	got, err = s.GetChallenge(ctx, ch.ID)
	require.NoError(t, err)
	assert.True(t, got.CurrentEquity.Equal(decimal.NewFromInt(4500)))
}

func TestStore_SaveStatus(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	ch := seedChallenge(t, s, 1, "5000")

	now := time.Now().UTC()
	ch.Status = models.StatusPassed
	ch.PassedAt = &now
	require.NoError(t, s.SaveStatus(ctx, &ch))

	ch.Status = models.StatusActive
	ch.PassedAt = nil
	require.NoError(t, s.SaveStatus(ctx, &ch))

	got, err := s.GetChallenge(ctx, ch.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusActive, got.Status)
	assert.Nil(t, got.PassedAt)

	missing := models.Challenge{ID: 404, Status: models.StatusFailed}
	assert.ErrorIs(t, s.SaveStatus(ctx, &missing), gorm.ErrRecordNotFound)
}

func TestStore_ListTrades_NewestFirst(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	ch := seedChallenge(t, s, 1, "5000")
	other := seedChallenge(t, s, 2, "5000")

	base := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	for i, symbol := range []string{"AAPL", "TSLA", "IAM"} {
		require.NoError(t, s.InsertTrade(ctx, &models.Trade{
			ChallengeID: ch.ID,
			Symbol:      symbol,
			Side:        models.SideBuy,
			Quantity:    1,
			Price:       decimal.NewFromInt(100),
			TotalValue:  decimal.NewFromInt(100),
			Commission:  decimal.RequireFromString("0.1"),
			ProfitLoss:  decimal.RequireFromString("-0.1"),
			PriceSource: "mock",
			ExecutedAt:  base.Add(time.Duration(i) * time.Minute),
		}))
	}
	require.NoError(t, s.InsertTrade(ctx, &models.Trade{ChallengeID: other.ID, Symbol: "NVDA", Side: models.SideSell, Quantity: 1, PriceSource: "mock", ExecutedAt: base}))

	trades, err := s.ListTrades(ctx, ch.ID, 0)
	require.NoError(t, err)
	require.Len(t, trades, 3)
	assert.Equal(t, "IAM", trades[0].Symbol)
	assert.Equal(t, "AAPL", trades[2].Symbol)
	assert.True(t, trades[0].ProfitLoss.Equal(decimal.RequireFromString("-0.1")))

	limited, err := s.ListTrades(ctx, ch.ID, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestStore_GetOrCreateDailyMetric(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	ch := seedChallenge(t, s, 1, "5000")

	first, err := s.GetOrCreateDailyMetric(ctx, ch.ID, "2026-04-01", decimal.NewFromInt(5000))
	require.NoError(t, err)
	assert.NotZero(t, first.ID)
	assert.True(t, first.DayStartEquity.Equal(decimal.NewFromInt(5000)))

	// the baseline is written once; later equity does not move it
	again, err := s.GetOrCreateDailyMetric(ctx, ch.ID, "2026-04-01", decimal.NewFromInt(4000))
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)
	assert.True(t, again.DayStartEquity.Equal(decimal.NewFromInt(5000)))

	next, err := s.GetOrCreateDailyMetric(ctx, ch.ID, "2026-04-02", decimal.NewFromInt(4000))
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, next.ID)
}

func TestStore_GetDailyMetric(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	ch := seedChallenge(t, s, 1, "5000")

	_, err := s.GetDailyMetric(ctx, ch.ID, "2026-04-01")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	// a miss must not leave a row behind
	metrics, err := s.ListDailyMetrics(ctx, ch.ID)
	require.NoError(t, err)
	assert.Empty(t, metrics)

	created, err := s.GetOrCreateDailyMetric(ctx, ch.ID, "2026-04-01", decimal.NewFromInt(5000))
	require.NoError(t, err)

	got, err := s.GetDailyMetric(ctx, ch.ID, "2026-04-01")
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
}

func TestStore_GetOrCreateDailyMetric_Concurrent(t *testing.T) {
	s, db := newTestStore(t)
	ch := seedChallenge(t, s, 1, "5000")

	var wg sync.WaitGroup
	results := make([]models.DailyMetric, 10)
	errs := make([]error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = s.GetOrCreateDailyMetric(context.Background(), ch.ID, "2026-04-01", decimal.NewFromInt(int64(5000-i)))
		}(i)
	}
	wg.Wait()

	for i := range results {
		require.NoError(t, errs[i])
		assert.Equal(t, results[0].ID, results[i].ID)
		assert.True(t, results[0].DayStartEquity.Equal(results[i].DayStartEquity))
	}

	var count int64
	require.NoError(t, db.Model(&models.DailyMetric{}).Where("challenge_id = ?", ch.ID).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestStore_UpdateDailyStats(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	ch := seedChallenge(t, s, 1, "5000")

	m, err := s.GetOrCreateDailyMetric(ctx, ch.ID, "2026-04-01", decimal.NewFromInt(5000))
	require.NoError(t, err)

	pct := -1.5
	dd := 1.5
	m.DayEndEquity = decimal.NewNullDecimal(decimal.NewFromInt(4925))
	m.DayPnL = decimal.NewNullDecimal(decimal.NewFromInt(-75))
	m.DayPnLPct = &pct
	m.MaxIntradayDrawdownPct = &dd
	m.DayStartEquity = decimal.NewFromInt(1) // must not be persisted
	require.NoError(t, s.UpdateDailyStats(ctx, &m))

	metrics, err := s.ListDailyMetrics(ctx, ch.ID)
	require.NoError(t, err)
	require.Len(t, metrics, 1)
	got := metrics[0]
	assert.True(t, got.DayStartEquity.Equal(decimal.NewFromInt(5000)))
	assert.True(t, got.DayEndEquity.Valid)
	assert.True(t, got.DayEndEquity.Decimal.Equal(decimal.NewFromInt(4925)))
	require.NotNil(t, got.DayPnLPct)
	assert.Equal(t, -1.5, *got.DayPnLPct)
}

func TestStore_WithinTx_RollsBack(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	ch := seedChallenge(t, s, 1, "5000")

	boom := errors.New("boom")
	err := s.WithinTx(ctx, func(tx challenge.Repository) error {
		if err := tx.InsertTrade(ctx, &models.Trade{ChallengeID: ch.ID, Symbol: "AAPL", Side: models.SideBuy, Quantity: 1, PriceSource: "mock", ExecutedAt: time.Now()}); err != nil {
			return err
		}
		updated := ch
		updated.CurrentEquity = decimal.NewFromInt(1)
		if err := tx.UpdateChallenge(ctx, &updated); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	trades, err := s.ListTrades(ctx, ch.ID, 0)
	require.NoError(t, err)
	assert.Empty(t, trades)

	got, err := s.GetChallenge(ctx, ch.ID)
	require.NoError(t, err)
	assert.True(t, got.CurrentEquity.Equal(decimal.NewFromInt(5000)))
}

func TestStore_DeletingChallengeCascades(t *testing.T) {
	s, db := newTestStore(t)
	ctx := context.Background()
	ch := seedChallenge(t, s, 1, "5000")

	require.NoError(t, s.InsertTrade(ctx, &models.Trade{ChallengeID: ch.ID, Symbol: "AAPL", Side: models.SideBuy, Quantity: 1, PriceSource: "mock", ExecutedAt: time.Now()}))
	_, err := s.GetOrCreateDailyMetric(ctx, ch.ID, "2026-04-01", decimal.NewFromInt(5000))
	require.NoError(t, err)

	require.NoError(t, db.Delete(&models.Challenge{}, ch.ID).Error)

	var trades, metrics int64
	require.NoError(t, db.Model(&models.Trade{}).Count(&trades).Error)
	require.NoError(t, db.Model(&models.DailyMetric{}).Count(&metrics).Error)
	assert.Zero(t, trades)
	assert.Zero(t, metrics)
}

func TestStore_CurrentChallengeAndList(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	older := seedChallenge(t, s, 3, "5000")
	newer := seedChallenge(t, s, 3, "5100")
	now := time.Now().UTC()
	newer.Status = models.StatusFailed
	newer.FailedAt = &now
	require.NoError(t, s.SaveStatus(ctx, &newer))

	current, err := s.CurrentChallenge(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, older.ID, current.ID, "an active challenge wins over a newer terminal one")

	older.Status = models.StatusPassed
	older.PassedAt = &now
	require.NoError(t, s.SaveStatus(ctx, &older))

	current, err = s.CurrentChallenge(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, newer.ID, current.ID, "without an active challenge the newest one is returned")

	_, err = s.CurrentChallenge(ctx, 99)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	all, err := s.ListChallenges(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, newer.ID, all[0].ID)
}

func TestStore_MonthlyLeaderboard(t *testing.T) {
	s, db := newTestStore(t)
	ctx := context.Background()

	names := []string{"Amina", "Youssef", "Sara", "Omar"}
	equities := []string{"5200", "5600", "4900", "5600"}
	for i, name := range names {
		user := models.User{Name: name, Email: fmt.Sprintf("%s@example.com", name), Role: models.RoleUser}
		require.NoError(t, s.CreateUser(ctx, &user))
		seedChallenge(t, s, user.ID, equities[i])
	}

	// Omar's challenge is from last month and Sara's failed; neither ranks
	now := time.Now().UTC()
	lastMonth := time.Date(now.Year(), now.Month(), 1, 12, 0, 0, 0, time.UTC).AddDate(0, 0, -1)
	require.NoError(t, db.Model(&models.Challenge{}).Where("user_id = ?", 4).Update("created_at", lastMonth).Error)
	require.NoError(t, db.Model(&models.Challenge{}).Where("user_id = ?", 3).Update("status", models.StatusFailed).Error)

	board, err := s.MonthlyLeaderboard(ctx, now, 10)
	require.NoError(t, err)
	require.Len(t, board, 2)
	assert.Equal(t, 1, board[0].Rank)
	assert.Equal(t, "Youssef", board[0].Name)
	assert.True(t, board[0].ProfitPct.Equal(decimal.NewFromInt(12)))
	assert.Equal(t, "Amina", board[1].Name)
	assert.Equal(t, 2, board[1].Rank)

	top1, err := s.MonthlyLeaderboard(ctx, now, 1)
	require.NoError(t, err)
	assert.Len(t, top1, 1)
}
