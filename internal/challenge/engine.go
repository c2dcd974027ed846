// Package challenge runs the trade execution pipeline of prop-firm challenges
// and keeps their equity, daily baselines and rule status consistent.
package challenge

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"prop-challenge-go/internal/config"
	"prop-challenge-go/internal/market"
	"prop-challenge-go/internal/models"
	"prop-challenge-go/internal/risk"
)

const (
	defaultCommissionRate = 0.001
	defaultLockWait       = 3 * time.Second
	overrideReason        = "Admin override"
)

// TradeRequest is one market order against a challenge.
type TradeRequest struct {
	ChallengeID uint   `json:"challenge_id"`
	UserID      uint   `json:"-"`
	Symbol      string `json:"symbol"`
	Side        string `json:"side"`
	Quantity    int64  `json:"quantity"`
}

// RulesEvaluation is the rule outcome reported with a trade.
type RulesEvaluation struct {
	Status models.ChallengeStatus `json:"status"`
	Reason string                 `json:"reason,omitempty"`
	Detail string                 `json:"detail,omitempty"`
}

// TradeResult is the observable outcome of ExecuteTrade.
type TradeResult struct {
	Success         bool                   `json:"success"`
	TradeID         uint                   `json:"trade_id"`
	Price           float64                `json:"price"`
	Source          market.Source          `json:"source"`
	ChallengeStatus models.ChallengeStatus `json:"challenge_status"`
	Rules           RulesEvaluation        `json:"rules_evaluation"`
}

// Engine executes trades and applies the risk rules.
type Engine struct {
	logger         *zap.Logger
	repo           Repository
	prices         market.PriceResolver
	locks          *LockManager
	daily          DailyTracker
	commissionRate decimal.Decimal
	lockWait       time.Duration
	limits         config.Risk
	now            func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock replaces the wall clock used for trade and day timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// NewEngine creates a new engine over repo and prices.
func NewEngine(logger *zap.Logger, cfg *config.Config, repo Repository, prices market.PriceResolver, opts ...Option) *Engine {
	rate := cfg.Engine.CommissionRate
	if rate <= 0 {
		rate = defaultCommissionRate
	}
	wait := cfg.Engine.LockWait
	if wait <= 0 {
		wait = defaultLockWait
	}

	e := &Engine{
		logger:         logger.Named("engine"),
		repo:           repo,
		prices:         prices,
		locks:          NewLockManager(),
		commissionRate: decimal.NewFromFloat(rate),
		lockWait:       wait,
		limits:         cfg.Risk,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (r TradeRequest) normalize() (TradeRequest, error) {
	r.Symbol = market.NormalizeSymbol(r.Symbol)
	r.Side = strings.ToLower(strings.TrimSpace(r.Side))

	switch {
	case r.Symbol == "":
		return r, fmt.Errorf("symbol is required: %w", ErrInvalidRequest)
	case r.Side == "":
		return r, fmt.Errorf("side is required: %w", ErrInvalidRequest)
	case r.Side != string(models.SideBuy) && r.Side != string(models.SideSell):
		return r, fmt.Errorf("side must be buy or sell, got %q: %w", r.Side, ErrInvalidRequest)
	case r.Quantity <= 0:
		return r, fmt.Errorf("quantity must be a positive integer: %w", ErrInvalidRequest)
	}
	return r, nil
}

// ExecuteTrade prices and books one trade, deducts its commission from equity
// and re-evaluates the risk rules. Booking and evaluation commit together or not at all.
func (e *Engine) ExecuteTrade(ctx context.Context, req TradeRequest) (TradeResult, error) {
	req, err := req.normalize()
	if err != nil {
		return TradeResult{}, err
	}

	l := e.logger.With(
		zap.Uint("challenge_id", req.ChallengeID),
		zap.Uint("user_id", req.UserID),
		zap.String("symbol", req.Symbol),
		zap.String("side", req.Side),
		zap.Int64("quantity", req.Quantity),
	)

	// fail fast before spending time on price sources
	if _, err := e.loadOwned(ctx, e.repo, req.ChallengeID, req.UserID, true); err != nil {
		return TradeResult{}, err
	}

	quote := e.prices.Resolve(ctx, req.Symbol)
	price := decimal.NewFromFloat(quote.Price).Round(8)

	release, err := e.locks.Acquire(ctx, req.ChallengeID, e.lockWait)
	if err != nil {
		l.Warn("Could not lock challenge", zap.Error(err))
		return TradeResult{}, classify(err)
	}
	defer release()

	var result TradeResult
	err = e.repo.WithinTx(ctx, func(tx Repository) error {
		// re-read under the lock so equity includes every earlier commission
		ch, err := e.loadOwned(ctx, tx, req.ChallengeID, req.UserID, true)
		if err != nil {
			return err
		}

		now := e.now().UTC()
		total := price.Mul(decimal.NewFromInt(req.Quantity))
		commission := total.Mul(e.commissionRate).Round(8)

		trade := models.Trade{
			ChallengeID: ch.ID,
			Symbol:      req.Symbol,
			Side:        models.TradeSide(req.Side),
			Quantity:    req.Quantity,
			Price:       price,
			TotalValue:  total,
			Commission:  commission,
			ProfitLoss:  commission.Neg(),
			PriceSource: string(quote.Source),
			ExecutedAt:  now,
		}
		if err := tx.InsertTrade(ctx, &trade); err != nil {
			return err
		}

		preEquity := ch.CurrentEquity
		ch.CurrentEquity = preEquity.Sub(commission)

		out, err := e.settle(ctx, tx, &ch, preEquity, now)
		if err != nil {
			return err
		}

		result = TradeResult{
			Success:         true,
			TradeID:         trade.ID,
			Price:           price.InexactFloat64(),
			Source:          quote.Source,
			ChallengeStatus: ch.Status,
			Rules:           RulesEvaluation{Status: out.Status, Reason: out.Reason, Detail: out.Detail},
		}
		return nil
	})
	if err != nil {
		l.Error("Trade failed", zap.Error(err))
		return TradeResult{}, classify(err)
	}

	l.Info("Trade executed",
		zap.Uint("trade_id", result.TradeID),
		zap.Float64("price", result.Price),
		zap.String("source", string(result.Source)),
		zap.String("status", string(result.ChallengeStatus)))
	return result, nil
}

// EvaluateRules re-evaluates an active challenge against today's baseline and
// persists any transition. Terminal challenges are reported without locking or writes.
// Evaluation never creates the day's metric: without one the current equity is the baseline.
func (e *Engine) EvaluateRules(ctx context.Context, challengeID uint) (risk.Outcome, error) {
	ch, err := e.repo.GetChallenge(ctx, challengeID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return risk.Outcome{}, fmt.Errorf("challenge %d: %w", challengeID, ErrNotFoundOrUnauthorized)
	}
	if err != nil {
		return risk.Outcome{}, classify(err)
	}
	if ch.Status != models.StatusActive {
		return risk.Evaluate(ch, decimal.Zero), nil
	}

	return e.mutate(ctx, challengeID, func(tx Repository, ch *models.Challenge, now time.Time) (risk.Outcome, error) {
		// terminal since the first read
		if ch.Status != models.StatusActive {
			return risk.Evaluate(*ch, decimal.Zero), nil
		}

		metric, baseline, err := e.daily.Baseline(ctx, tx, *ch, models.DayKey(now))
		if err != nil {
			return risk.Outcome{}, err
		}

		out := risk.Evaluate(*ch, baseline)
		if e.apply(ch, out, now) {
			if err := tx.UpdateChallenge(ctx, ch); err != nil {
				return risk.Outcome{}, err
			}
		}
		if metric != nil {
			if err := e.daily.RecordClose(ctx, tx, metric, baseline, ch.CurrentEquity); err != nil {
				return risk.Outcome{}, err
			}
		}
		return out, nil
	})
}

// ApplyPnL adds externally realised profit or loss to an active challenge's
// equity and re-evaluates the rules.
func (e *Engine) ApplyPnL(ctx context.Context, challengeID uint, pnl decimal.Decimal) (risk.Outcome, error) {
	return e.mutate(ctx, challengeID, func(tx Repository, ch *models.Challenge, now time.Time) (risk.Outcome, error) {
		if ch.Status != models.StatusActive {
			return risk.Outcome{}, fmt.Errorf("challenge %d is %s: %w", ch.ID, ch.Status, ErrChallengeNotTradable)
		}
		preEquity := ch.CurrentEquity
		ch.CurrentEquity = preEquity.Add(pnl)
		return e.settle(ctx, tx, ch, preEquity, now)
	})
}

// OverrideStatus sets the status of a challenge directly, bypassing the rules.
// Passed and failed stamp their timestamp; active clears both.
func (e *Engine) OverrideStatus(ctx context.Context, challengeID uint, status models.ChallengeStatus, reason string) (models.Challenge, error) {
	if !status.Valid() {
		return models.Challenge{}, fmt.Errorf("unknown status %q: %w", status, ErrInvalidRequest)
	}

	var updated models.Challenge
	_, err := e.mutate(ctx, challengeID, func(tx Repository, ch *models.Challenge, now time.Time) (risk.Outcome, error) {
		ch.Status = status
		ch.PassedAt, ch.FailedAt, ch.FailureReason = nil, nil, nil
		switch status {
		case models.StatusPassed:
			ch.PassedAt = &now
		case models.StatusFailed:
			if reason == "" {
				reason = overrideReason
			}
			ch.FailureReason = &reason
			ch.FailedAt = &now
		}
		if err := tx.SaveStatus(ctx, ch); err != nil {
			return risk.Outcome{}, err
		}
		updated = *ch
		return risk.Outcome{Status: status}, nil
	})
	if err != nil {
		return models.Challenge{}, err
	}

	e.logger.Warn("Challenge status overridden",
		zap.Uint("challenge_id", challengeID),
		zap.String("status", string(status)))
	return updated, nil
}

// CreateChallenge opens a new active challenge for userID from a catalog plan.
func (e *Engine) CreateChallenge(ctx context.Context, userID uint, planSlug string) (models.Challenge, error) {
	slug := strings.ToLower(strings.TrimSpace(planSlug))
	if slug == "" {
		return models.Challenge{}, fmt.Errorf("plan is required: %w", ErrInvalidRequest)
	}

	plan, err := e.repo.GetPlanBySlug(ctx, slug)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.Challenge{}, fmt.Errorf("unknown plan %q: %w", slug, ErrInvalidRequest)
	}
	if err != nil {
		return models.Challenge{}, classify(err)
	}

	ch := models.Challenge{
		UserID:          userID,
		PlanID:          plan.ID,
		StartBalance:    plan.StartBalance,
		CurrentEquity:   plan.StartBalance,
		Status:          models.StatusActive,
		MaxDailyLossPct: e.limits.MaxDailyLossPct,
		MaxTotalLossPct: e.limits.MaxTotalLossPct,
		ProfitTargetPct: e.limits.ProfitTargetPct,
	}
	if err := e.repo.CreateChallenge(ctx, &ch); err != nil {
		return models.Challenge{}, classify(err)
	}

	e.logger.Info("Challenge created",
		zap.Uint("challenge_id", ch.ID),
		zap.Uint("user_id", userID),
		zap.String("plan", slug))
	return ch, nil
}

// Challenge returns a challenge owned by userID.
func (e *Engine) Challenge(ctx context.Context, challengeID, userID uint) (models.Challenge, error) {
	return e.loadOwned(ctx, e.repo, challengeID, userID, false)
}

// Trades returns the trades of a challenge owned by userID, newest first.
func (e *Engine) Trades(ctx context.Context, challengeID, userID uint, limit int) ([]models.Trade, error) {
	if _, err := e.loadOwned(ctx, e.repo, challengeID, userID, false); err != nil {
		return nil, err
	}
	trades, err := e.repo.ListTrades(ctx, challengeID, limit)
	if err != nil {
		return nil, classify(err)
	}
	return trades, nil
}

type mutation func(tx Repository, ch *models.Challenge, now time.Time) (risk.Outcome, error)

// mutate runs fn on a freshly read challenge under its lock and in one transaction.
func (e *Engine) mutate(ctx context.Context, challengeID uint, fn mutation) (risk.Outcome, error) {
	release, err := e.locks.Acquire(ctx, challengeID, e.lockWait)
	if err != nil {
		return risk.Outcome{}, classify(err)
	}
	defer release()

	var out risk.Outcome
	err = e.repo.WithinTx(ctx, func(tx Repository) error {
		ch, err := tx.GetChallenge(ctx, challengeID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("challenge %d: %w", challengeID, ErrNotFoundOrUnauthorized)
		}
		if err != nil {
			return err
		}
		out, err = fn(tx, &ch, e.now().UTC())
		return err
	})
	if err != nil {
		return risk.Outcome{}, classify(err)
	}
	return out, nil
}

// settle evaluates ch, whose equity is already updated, against today's baseline
// seeded from seedEquity, then writes the challenge and the day statistics.
func (e *Engine) settle(ctx context.Context, tx Repository, ch *models.Challenge, seedEquity decimal.Decimal, now time.Time) (risk.Outcome, error) {
	metric, baseline, err := e.daily.GetOrCreateBaseline(ctx, tx, *ch, models.DayKey(now), seedEquity)
	if err != nil {
		return risk.Outcome{}, err
	}

	out := risk.Evaluate(*ch, baseline)
	e.apply(ch, out, now)

	if err := tx.UpdateChallenge(ctx, ch); err != nil {
		return risk.Outcome{}, err
	}
	if err := e.daily.RecordClose(ctx, tx, &metric, baseline, ch.CurrentEquity); err != nil {
		return risk.Outcome{}, err
	}
	return out, nil
}

// apply stamps a terminal outcome onto ch and reports whether it did.
func (e *Engine) apply(ch *models.Challenge, out risk.Outcome, now time.Time) bool {
	if !risk.Apply(ch, out, now) {
		return false
	}
	e.logger.Info("Challenge transitioned",
		zap.Uint("challenge_id", ch.ID),
		zap.String("status", string(out.Status)),
		zap.String("rule", string(out.Rule)),
		zap.String("detail", out.Detail))
	return true
}

// loadOwned reads a challenge and checks that userID owns it.
// A missing challenge and a foreign one are reported the same way.
func (e *Engine) loadOwned(ctx context.Context, repo Repository, challengeID, userID uint, mustBeActive bool) (models.Challenge, error) {
	ch, err := repo.GetChallenge(ctx, challengeID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.Challenge{}, fmt.Errorf("challenge %d: %w", challengeID, ErrNotFoundOrUnauthorized)
	}
	if err != nil {
		return models.Challenge{}, classify(err)
	}
	if ch.UserID != userID {
		return models.Challenge{}, fmt.Errorf("challenge %d: %w", challengeID, ErrNotFoundOrUnauthorized)
	}
	if mustBeActive && ch.Status != models.StatusActive {
		return models.Challenge{}, fmt.Errorf("challenge %d is %s: %w", challengeID, ch.Status, ErrChallengeNotTradable)
	}
	return ch, nil
}

// classify keeps the request errors and reports everything else as a persistence failure.
func classify(err error) error {
	for _, known := range []error{
		ErrInvalidRequest,
		ErrNotFoundOrUnauthorized,
		ErrChallengeNotTradable,
		ErrBusy,
		ErrConflict,
		ErrPersistence,
		context.Canceled,
		context.DeadlineExceeded,
	} {
		if errors.Is(err, known) {
			return err
		}
	}
	return fmt.Errorf("%w: %w", ErrPersistence, err)
}
