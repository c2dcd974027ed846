package api

import (
	"context"
	"encoding/json"
	"expvar"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"prop-challenge-go/internal/auth"
	"prop-challenge-go/internal/challenge"
	"prop-challenge-go/internal/config"
	"prop-challenge-go/internal/database"
	"prop-challenge-go/internal/market"
	"prop-challenge-go/internal/models"
	"prop-challenge-go/internal/risk"
)

// Engine is the part of challenge.Engine the API drives.
type Engine interface {
	ExecuteTrade(ctx context.Context, req challenge.TradeRequest) (challenge.TradeResult, error)
	EvaluateRules(ctx context.Context, challengeID uint) (risk.Outcome, error)
	ApplyPnL(ctx context.Context, challengeID uint, pnl decimal.Decimal) (risk.Outcome, error)
	OverrideStatus(ctx context.Context, challengeID uint, status models.ChallengeStatus, reason string) (models.Challenge, error)
	CreateChallenge(ctx context.Context, userID uint, planSlug string) (models.Challenge, error)
	Challenge(ctx context.Context, challengeID, userID uint) (models.Challenge, error)
	Trades(ctx context.Context, challengeID, userID uint, limit int) ([]models.Trade, error)
}

// Store holds the read queries that do not go through the engine.
type Store interface {
	GetUser(ctx context.Context, id uint) (models.User, error)
	CurrentChallenge(ctx context.Context, userID uint) (models.Challenge, error)
	ListChallenges(ctx context.Context) ([]models.Challenge, error)
	ListDailyMetrics(ctx context.Context, challengeID uint) ([]models.DailyMetric, error)
	ListPlans(ctx context.Context) ([]models.Plan, error)
	MonthlyLeaderboard(ctx context.Context, now time.Time, limit int) ([]database.LeaderboardEntry, error)
}

// Server provides the HTTP interface of the challenge engine.
type Server struct {
	server   *http.Server
	engine   Engine
	store    Store
	prices   market.PriceResolver
	verifier auth.Verifier
	logger   *zap.Logger
	now      func() time.Time
}

// NewServer creates a new Server.
func NewServer(cfg *config.Server, engine Engine, store Store, prices market.PriceResolver, verifier auth.Verifier, logger *zap.Logger) *Server {
	s := &Server{
		engine:   engine,
		store:    store,
		prices:   prices,
		verifier: verifier,
		logger:   logger.Named("api-server"),
		now:      time.Now,
	}
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           s.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Routes builds the router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(s.requestLogger)

	r.Get("/health", s.handleHealth)
	r.Handle("/debug/vars", expvar.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(requestMetrics)

		r.Get("/market/quote", s.handleQuote)
		r.Get("/plans", s.handleListPlans)
		r.Get("/leaderboard/monthly-top10", s.handleLeaderboard)

		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Post("/trades", s.handleExecuteTrade)
			r.Get("/trades", s.handleListTrades)
			r.Get("/challenges/active", s.handleCurrentChallenge)
			r.Get("/challenges/{challengeID}", s.handleChallengeDetail)
			r.Post("/challenges/{challengeID}/evaluate", s.handleEvaluate)
			r.Post("/checkout/mock", s.handleMockCheckout)

			r.Route("/admin", func(r chi.Router) {
				r.Use(s.adminOnly)
				r.Get("/challenges", s.handleAdminListChallenges)
				r.Put("/challenges/{challengeID}/override", s.handleAdminOverride)
				r.Post("/challenges/{challengeID}/pnl", s.handleAdminApplyPnL)
			})
		})
	})
	return r
}

// Start runs the HTTP server in a new goroutine.
func (s *Server) Start() {
	s.logger.Info("Starting API server", zap.String("address", s.server.Addr))
	go func() {
		if err := s.server.ListenAndServe(); err != http.ErrServerClosed {
			s.logger.Error("API server failed", zap.Error(err))
		}
	}()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping API server...")
	return s.server.Shutdown(ctx)
}

type apiError struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, apiError{Error: message})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "OK")
}

// planResponse flattens the catalog entry for clients.
type planResponse struct {
	Slug         string          `json:"slug"`
	Name         string          `json:"name"`
	Fee          decimal.Decimal `json:"fee"`
	StartBalance decimal.Decimal `json:"start_balance"`
	Features     []string        `json:"features"`
}
