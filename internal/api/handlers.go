package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"prop-challenge-go/internal/challenge"
	"prop-challenge-go/internal/models"
)

const (
	defaultTradeLimit = 100
	leaderboardSize   = 10
)

// writeEngineError maps engine failures to status codes. Storage and contention
// failures get a generic message.
func (s *Server) writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, challenge.ErrInvalidRequest):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, challenge.ErrNotFoundOrUnauthorized):
		writeError(w, http.StatusNotFound, "challenge not found or unauthorized")
	case errors.Is(err, challenge.ErrChallengeNotTradable):
		writeError(w, http.StatusConflict, err.Error())
	case challenge.Retryable(err):
		writeError(w, http.StatusServiceUnavailable, "challenge is busy, try again")
	default:
		s.logger.Error("Request failed",
			zap.String("request_id", requestIDFromContext(r.Context())),
			zap.String("path", r.URL.Path),
			zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error, try again")
	}
}

func challengeIDParam(r *http.Request) (uint, error) {
	id, err := strconv.ParseUint(chi.URLParam(r, "challengeID"), 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid challenge id")
	}
	return uint(id), nil
}

func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request) {
	symbol := strings.TrimSpace(r.URL.Query().Get("symbol"))
	if symbol == "" {
		writeError(w, http.StatusBadRequest, "symbol is required")
		return
	}
	writeJSON(w, http.StatusOK, s.prices.Resolve(r.Context(), symbol))
}

func (s *Server) handleExecuteTrade(w http.ResponseWriter, r *http.Request) {
	var req challenge.TradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.UserID = userIDFromContext(r.Context())

	result, err := s.engine.ExecuteTrade(r.Context(), req)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

func (s *Server) handleListTrades(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	challengeID, err := strconv.ParseUint(query.Get("challenge_id"), 10, 64)
	if err != nil || challengeID == 0 {
		writeError(w, http.StatusBadRequest, "challenge_id is required")
		return
	}

	limit := defaultTradeLimit
	if raw := query.Get("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
	}

	trades, err := s.engine.Trades(r.Context(), uint(challengeID), userIDFromContext(r.Context()), limit)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"trades": trades})
}

func (s *Server) handleCurrentChallenge(w http.ResponseWriter, r *http.Request) {
	ch, err := s.store.CurrentChallenge(r.Context(), userIDFromContext(r.Context()))
	if errors.Is(err, gorm.ErrRecordNotFound) {
		writeJSON(w, http.StatusOK, map[string]any{"challenge": nil})
		return
	}
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"challenge": ch})
}

func (s *Server) handleChallengeDetail(w http.ResponseWriter, r *http.Request) {
	id, err := challengeIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	userID := userIDFromContext(r.Context())

	ch, err := s.engine.Challenge(r.Context(), id, userID)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	trades, err := s.engine.Trades(r.Context(), id, userID, defaultTradeLimit)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	metrics, err := s.store.ListDailyMetrics(r.Context(), id)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"challenge":     ch,
		"trades":        trades,
		"daily_metrics": metrics,
	})
}

func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	id, err := challengeIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if _, err := s.engine.Challenge(r.Context(), id, userIDFromContext(r.Context())); err != nil {
		s.writeEngineError(w, r, err)
		return
	}

	out, err := s.engine.EvaluateRules(r.Context(), id)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"rules_evaluation": challenge.RulesEvaluation{
		Status: out.Status,
		Reason: out.Reason,
		Detail: out.Detail,
	}})
}

type checkoutRequest struct {
	PlanSlug string `json:"plan_slug"`
}

// handleMockCheckout simulates a successful payment and opens a challenge.
func (s *Server) handleMockCheckout(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ch, err := s.engine.CreateChallenge(r.Context(), userIDFromContext(r.Context()), req.PlanSlug)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"success":      true,
		"message":      "Challenge created successfully",
		"challenge_id": ch.ID,
	})
}

func (s *Server) handleListPlans(w http.ResponseWriter, r *http.Request) {
	plans, err := s.store.ListPlans(r.Context())
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}

	response := make([]planResponse, 0, len(plans))
	for _, p := range plans {
		response = append(response, planResponse{
			Slug:         p.Slug,
			Name:         p.Name,
			Fee:          p.Fee,
			StartBalance: p.StartBalance,
			Features:     p.Features(),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"plans": response})
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	traders, err := s.store.MonthlyLeaderboard(r.Context(), s.now(), leaderboardSize)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"traders": traders})
}

func (s *Server) handleAdminListChallenges(w http.ResponseWriter, r *http.Request) {
	challenges, err := s.store.ListChallenges(r.Context())
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"challenges": challenges})
}

type overrideRequest struct {
	Status models.ChallengeStatus `json:"status"`
	Reason string                 `json:"reason"`
}

func (s *Server) handleAdminOverride(w http.ResponseWriter, r *http.Request) {
	id, err := challengeIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req overrideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !req.Status.Valid() {
		writeError(w, http.StatusBadRequest, "invalid status")
		return
	}

	ch, err := s.engine.OverrideStatus(r.Context(), id, req.Status, req.Reason)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}

	s.logger.Info("Admin override",
		zap.Uint("admin_id", userIDFromContext(r.Context())),
		zap.Uint("challenge_id", id),
		zap.String("status", string(req.Status)))
	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"message":   fmt.Sprintf("Challenge status updated to %s", req.Status),
		"challenge": ch,
	})
}

type pnlRequest struct {
	PnL decimal.NullDecimal `json:"pnl"`
}

// handleAdminApplyPnL books externally realised profit or loss on an active challenge.
func (s *Server) handleAdminApplyPnL(w http.ResponseWriter, r *http.Request) {
	id, err := challengeIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req pnlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !req.PnL.Valid {
		writeError(w, http.StatusBadRequest, "pnl is required")
		return
	}

	out, err := s.engine.ApplyPnL(r.Context(), id, req.PnL.Decimal)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}

	s.logger.Info("Admin PnL applied",
		zap.Uint("admin_id", userIDFromContext(r.Context())),
		zap.Uint("challenge_id", id),
		zap.String("pnl", req.PnL.Decimal.String()))
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"rules_evaluation": challenge.RulesEvaluation{
			Status: out.Status,
			Reason: out.Reason,
			Detail: out.Detail,
		},
	})
}
