package database

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"prop-challenge-go/internal/challenge"
	"prop-challenge-go/internal/models"
)

// Store is the gorm implementation of challenge.Repository plus the read
// queries behind the HTTP API.
type Store struct {
	db *gorm.DB
}

// ensure Store implements the interface
var _ challenge.Repository = (*Store)(nil)

// NewStore creates a Store over db.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// WithinTx runs fn inside a transaction bound to a new Store.
func (s *Store) WithinTx(ctx context.Context, fn func(tx challenge.Repository) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx})
	})
}

// GetChallenge reads one challenge by id.
func (s *Store) GetChallenge(ctx context.Context, id uint) (models.Challenge, error) {
	var ch models.Challenge
	if err := s.db.WithContext(ctx).First(&ch, id).Error; err != nil {
		return models.Challenge{}, fmt.Errorf("failed to get challenge %d: %w", id, err)
	}
	return ch, nil
}

// CreateChallenge inserts ch and sets its id.
func (s *Store) CreateChallenge(ctx context.Context, ch *models.Challenge) error {
	if err := s.db.WithContext(ctx).Create(ch).Error; err != nil {
		return fmt.Errorf("failed to create challenge: %w", err)
	}
	return nil
}

// UpdateChallenge writes equity, status and terminal fields while the stored row is active.
func (s *Store) UpdateChallenge(ctx context.Context, ch *models.Challenge) error {
	res := s.db.WithContext(ctx).
		Model(&models.Challenge{}).
		Where("id = ? AND status = ?", ch.ID, models.StatusActive).
		Updates(map[string]any{
			"current_equity": ch.CurrentEquity,
			"status":         ch.Status,
			"failure_reason": ch.FailureReason,
			"passed_at":      ch.PassedAt,
			"failed_at":      ch.FailedAt,
		})
	if res.Error != nil {
		return fmt.Errorf("failed to update challenge %d: %w", ch.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("challenge %d is no longer active: %w", ch.ID, challenge.ErrConflict)
	}
	return nil
}

// SaveStatus writes status and terminal fields whatever the stored status is.
func (s *Store) SaveStatus(ctx context.Context, ch *models.Challenge) error {
	res := s.db.WithContext(ctx).
		Model(&models.Challenge{}).
		Where("id = ?", ch.ID).
		Updates(map[string]any{
			"status":         ch.Status,
			"failure_reason": ch.FailureReason,
			"passed_at":      ch.PassedAt,
			"failed_at":      ch.FailedAt,
		})
	if res.Error != nil {
		return fmt.Errorf("failed to save status of challenge %d: %w", ch.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("failed to save status of challenge %d: %w", ch.ID, gorm.ErrRecordNotFound)
	}
	return nil
}

// ListTrades returns the trades of a challenge, newest first. A limit <= 0 means all.
func (s *Store) ListTrades(ctx context.Context, challengeID uint, limit int) ([]models.Trade, error) {
	q := s.db.WithContext(ctx).
		Where("challenge_id = ?", challengeID).
		Order("executed_at DESC").
		Order("id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}

	var trades []models.Trade
	if err := q.Find(&trades).Error; err != nil {
		return nil, fmt.Errorf("failed to list trades of challenge %d: %w", challengeID, err)
	}
	return trades, nil
}

// InsertTrade inserts trade and sets its id.
func (s *Store) InsertTrade(ctx context.Context, trade *models.Trade) error {
	if err := s.db.WithContext(ctx).Create(trade).Error; err != nil {
		return fmt.Errorf("failed to insert trade: %w", err)
	}
	return nil
}

// GetDailyMetric returns the metric of (challengeID, date) without creating it.
func (s *Store) GetDailyMetric(ctx context.Context, challengeID uint, date string) (models.DailyMetric, error) {
	var metric models.DailyMetric
	err := s.db.WithContext(ctx).Where("challenge_id = ? AND date = ?", challengeID, date).First(&metric).Error
	if err != nil {
		return models.DailyMetric{}, fmt.Errorf("failed to get daily metric of challenge %d for %s: %w", challengeID, date, err)
	}
	return metric, nil
}

// GetOrCreateDailyMetric returns the metric of (challengeID, date), seeding it with equity when missing.
func (s *Store) GetOrCreateDailyMetric(ctx context.Context, challengeID uint, date string, equity decimal.Decimal) (models.DailyMetric, error) {
	db := s.db.WithContext(ctx)

	var metric models.DailyMetric
	err := db.Where("challenge_id = ? AND date = ?", challengeID, date).First(&metric).Error
	if err == nil {
		return metric, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return models.DailyMetric{}, fmt.Errorf("failed to get daily metric: %w", err)
	}

	// Insert-or-ignore on (challenge_id, date); the loser of a race reads the winner back.
	seed := models.DailyMetric{ChallengeID: challengeID, Date: date, DayStartEquity: equity}
	if err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "challenge_id"}, {Name: "date"}},
		DoNothing: true,
	}).Create(&seed).Error; err != nil {
		return models.DailyMetric{}, fmt.Errorf("failed to insert daily metric: %w", err)
	}

	if err := db.Where("challenge_id = ? AND date = ?", challengeID, date).First(&metric).Error; err != nil {
		return models.DailyMetric{}, fmt.Errorf("failed to read back daily metric: %w", err)
	}
	return metric, nil
}

// UpdateDailyStats writes the running day statistics. The day start equity is left alone.
func (s *Store) UpdateDailyStats(ctx context.Context, metric *models.DailyMetric) error {
	err := s.db.WithContext(ctx).
		Model(&models.DailyMetric{}).
		Where("id = ?", metric.ID).
		Updates(map[string]any{
			"day_end_equity":            metric.DayEndEquity,
			"day_pnl":                   metric.DayPnL,
			"day_pnl_pct":               metric.DayPnLPct,
			"max_intraday_drawdown_pct": metric.MaxIntradayDrawdownPct,
		}).Error
	if err != nil {
		return fmt.Errorf("failed to update daily metric %d: %w", metric.ID, err)
	}
	return nil
}

// ListDailyMetrics returns the daily metrics of a challenge, newest day first.
func (s *Store) ListDailyMetrics(ctx context.Context, challengeID uint) ([]models.DailyMetric, error) {
	var metrics []models.DailyMetric
	err := s.db.WithContext(ctx).
		Where("challenge_id = ?", challengeID).
		Order("date DESC").
		Find(&metrics).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list daily metrics of challenge %d: %w", challengeID, err)
	}
	return metrics, nil
}

// GetPlanBySlug reads one catalog plan.
func (s *Store) GetPlanBySlug(ctx context.Context, slug string) (models.Plan, error) {
	var plan models.Plan
	if err := s.db.WithContext(ctx).Where("slug = ?", slug).First(&plan).Error; err != nil {
		return models.Plan{}, fmt.Errorf("failed to get plan '%s': %w", slug, err)
	}
	return plan, nil
}

// ListPlans returns the plan catalog, cheapest start balance first.
func (s *Store) ListPlans(ctx context.Context) ([]models.Plan, error) {
	var plans []models.Plan
	if err := s.db.WithContext(ctx).Order("start_balance ASC").Find(&plans).Error; err != nil {
		return nil, fmt.Errorf("failed to list plans: %w", err)
	}
	return plans, nil
}

// GetUser reads one user by id.
func (s *Store) GetUser(ctx context.Context, id uint) (models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, id).Error; err != nil {
		return models.User{}, fmt.Errorf("failed to get user %d: %w", id, err)
	}
	return user, nil
}

// CreateUser inserts user and sets its id.
func (s *Store) CreateUser(ctx context.Context, user *models.User) error {
	if err := s.db.WithContext(ctx).Create(user).Error; err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// ListChallenges returns every challenge, newest first.
func (s *Store) ListChallenges(ctx context.Context) ([]models.Challenge, error) {
	var challenges []models.Challenge
	if err := s.db.WithContext(ctx).Order("created_at DESC").Order("id DESC").Find(&challenges).Error; err != nil {
		return nil, fmt.Errorf("failed to list challenges: %w", err)
	}
	return challenges, nil
}

// CurrentChallenge returns the most recent active challenge of a user, or the
// most recent challenge of any status when none is active.
func (s *Store) CurrentChallenge(ctx context.Context, userID uint) (models.Challenge, error) {
	db := s.db.WithContext(ctx)

	var ch models.Challenge
	err := db.Where("user_id = ? AND status = ?", userID, models.StatusActive).
		Order("created_at DESC").Order("id DESC").
		First(&ch).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		err = db.Where("user_id = ?", userID).
			Order("created_at DESC").Order("id DESC").
			First(&ch).Error
	}
	if err != nil {
		return models.Challenge{}, fmt.Errorf("failed to get current challenge of user %d: %w", userID, err)
	}
	return ch, nil
}

// LeaderboardEntry is one ranked trader of the monthly leaderboard.
type LeaderboardEntry struct {
	Rank      int             `json:"rank"`
	Name      string          `json:"name"`
	Equity    decimal.Decimal `json:"equity"`
	ProfitPct decimal.Decimal `json:"profit_pct"`
}

type leaderboardRow struct {
	Name          string
	CurrentEquity decimal.Decimal
	StartBalance  decimal.Decimal
	CreatedAt     time.Time
}

// MonthlyLeaderboard ranks the active challenges created in the calendar month
// of now by profit percentage, then equity, and returns the first limit entries.
func (s *Store) MonthlyLeaderboard(ctx context.Context, now time.Time, limit int) ([]LeaderboardEntry, error) {
	var rows []leaderboardRow
	err := s.db.WithContext(ctx).
		Table("challenges").
		Select("users.name, challenges.current_equity, challenges.start_balance, challenges.created_at").
		Joins("JOIN users ON users.id = challenges.user_id").
		Where("challenges.status = ?", models.StatusActive).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query leaderboard: %w", err)
	}

	now = now.UTC()
	entries := make([]LeaderboardEntry, 0, len(rows))
	for _, r := range rows {
		created := r.CreatedAt.UTC()
		if created.Year() != now.Year() || created.Month() != now.Month() {
			continue
		}
		pct := decimal.Zero
		if r.StartBalance.IsPositive() {
			pct = r.CurrentEquity.Sub(r.StartBalance).Div(r.StartBalance).Mul(decimal.NewFromInt(100))
		}
		entries = append(entries, LeaderboardEntry{Name: r.Name, Equity: r.CurrentEquity, ProfitPct: pct.Round(2)})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		if !entries[i].ProfitPct.Equal(entries[j].ProfitPct) {
			return entries[i].ProfitPct.GreaterThan(entries[j].ProfitPct)
		}
		return entries[i].Equity.GreaterThan(entries[j].Equity)
	})
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries, nil
}
