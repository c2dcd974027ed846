package risk

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"prop-challenge-go/internal/models"
)

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func newChallenge(start, equity string) models.Challenge {
	return models.Challenge{
		ID:              1,
		UserID:          7,
		StartBalance:    d(start),
		CurrentEquity:   d(equity),
		Status:          models.StatusActive,
		MaxDailyLossPct: 5,
		MaxTotalLossPct: 10,
		ProfitTargetPct: 10,
	}
}

func TestEvaluate(t *testing.T) {
	testCases := []struct {
		name           string
		start          string
		equity         string
		dayStart       string
		expectedStatus models.ChallengeStatus
		expectedRule   Rule
		expectedReason string
		expectedDetail string
	}{
		{
			name:           "Flat account stays active",
			start:          "5000",
			equity:         "5000",
			dayStart:       "5000",
			expectedStatus: models.StatusActive,
		},
		{
			name:           "Daily loss exactly at limit fails",
			start:          "10000",
			equity:         "9500",
			dayStart:       "10000",
			expectedStatus: models.StatusFailed,
			expectedRule:   RuleDailyLoss,
			expectedReason: "Daily Loss Limit Exceeded (>5%)",
			expectedDetail: "Daily Loss: -5.00% (Limit: -5%)",
		},
		{
			name:           "Daily loss just under limit stays active",
			start:          "10000",
			equity:         "9500.01",
			dayStart:       "10000",
			expectedStatus: models.StatusActive,
		},
		{
			name:           "Both limits breached records daily loss",
			start:          "5000",
			equity:         "4500",
			dayStart:       "5000",
			expectedStatus: models.StatusFailed,
			expectedRule:   RuleDailyLoss,
			expectedReason: "Daily Loss Limit Exceeded (>5%)",
			expectedDetail: "Daily Loss: -10.00% (Limit: -5%)",
		},
		{
			name:           "Total loss without daily breach",
			start:          "10000",
			equity:         "8900",
			dayStart:       "9200",
			expectedStatus: models.StatusFailed,
			expectedRule:   RuleTotalLoss,
			expectedReason: "Total Loss Limit Exceeded (>10%)",
			expectedDetail: "Total Loss: -11.00% (Limit: -10%)",
		},
		{
			name:           "Profit target reached",
			start:          "5000",
			equity:         "5600",
			dayStart:       "5000",
			expectedStatus: models.StatusPassed,
			expectedRule:   RuleProfitTarget,
			expectedReason: "Profit Target Reached (>=10%)",
			expectedDetail: "Profit Target Hit: +12.00% (Target: +10%)",
		},
		{
			name:           "Zero baseline falls back to start balance",
			start:          "10000",
			equity:         "9600",
			dayStart:       "0",
			expectedStatus: models.StatusActive,
		},
		{
			name:           "Negative baseline falls back to start balance and can fail",
			start:          "10000",
			equity:         "9400",
			dayStart:       "-5",
			expectedStatus: models.StatusFailed,
			expectedRule:   RuleDailyLoss,
			expectedReason: "Daily Loss Limit Exceeded (>5%)",
			expectedDetail: "Daily Loss: -6.00% (Limit: -5%)",
		},
		{
			name:           "Zero start balance never divides",
			start:          "0",
			equity:         "0",
			dayStart:       "0",
			expectedStatus: models.StatusActive,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ch := newChallenge(tc.start, tc.equity)
			out := Evaluate(ch, d(tc.dayStart))

			assert.Equal(t, tc.expectedStatus, out.Status)
			assert.Equal(t, tc.expectedRule, out.Rule)
			assert.Equal(t, tc.expectedReason, out.Reason)
			assert.Equal(t, tc.expectedDetail, out.Detail)
		})
	}
}

func TestEvaluate_CustomLimits(t *testing.T) {
	ch := newChallenge("10000", "9700")
	ch.MaxDailyLossPct = 2.5

	out := Evaluate(ch, d("10000"))

	assert.Equal(t, models.StatusFailed, out.Status)
	assert.Equal(t, "Daily Loss Limit Exceeded (>2.5%)", out.Reason)
}

func TestEvaluate_TerminalIsNoOp(t *testing.T) {
	reason := "Total Loss Limit Exceeded (>10%)"
	failedAt := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	ch := newChallenge("5000", "5600") // would pass if it were active
	ch.Status = models.StatusFailed
	ch.FailureReason = &reason
	ch.FailedAt = &failedAt
	before := ch

	first := Evaluate(ch, d("5000"))
	second := Evaluate(ch, d("5000"))

	assert.Equal(t, first, second)
	assert.Equal(t, models.StatusFailed, first.Status)
	assert.Equal(t, reason, first.Reason)
	assert.False(t, Apply(&ch, first, time.Now()))
	assert.Equal(t, before, ch)
}

func TestApply(t *testing.T) {
	now := time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)

	t.Run("Failed", func(t *testing.T) {
		ch := newChallenge("5000", "4500")
		out := Evaluate(ch, d("5000"))

		require.True(t, Apply(&ch, out, now))
		assert.Equal(t, models.StatusFailed, ch.Status)
		require.NotNil(t, ch.FailureReason)
		assert.Contains(t, *ch.FailureReason, "Daily Loss Limit Exceeded (>5%)")
		require.NotNil(t, ch.FailedAt)
		assert.Equal(t, now, *ch.FailedAt)
		assert.Nil(t, ch.PassedAt)
	})

	t.Run("Passed", func(t *testing.T) {
		ch := newChallenge("5000", "5600")
		out := Evaluate(ch, d("5000"))

		require.True(t, Apply(&ch, out, now))
		assert.Equal(t, models.StatusPassed, ch.Status)
		require.NotNil(t, ch.PassedAt)
		assert.Nil(t, ch.FailedAt)
		assert.Nil(t, ch.FailureReason)
	})

	t.Run("Active outcome changes nothing", func(t *testing.T) {
		ch := newChallenge("5000", "5000")
		assert.False(t, Apply(&ch, Outcome{Status: models.StatusActive}, now))
		assert.Equal(t, models.StatusActive, ch.Status)
		assert.Nil(t, ch.PassedAt)
		assert.Nil(t, ch.FailedAt)
	})
}

func TestMeasure(t *testing.T) {
	ch := newChallenge("10000", "9800")
	m := Measure(ch, d("9900"))

	assert.True(t, m.DayStartEquity.Equal(d("9900")))
	assert.InDelta(t, 1.0101, m.DailyDrawdownPct.InexactFloat64(), 1e-4)
	assert.True(t, m.TotalDrawdownPct.Equal(d("2")))
	assert.True(t, m.ProfitPct.Equal(d("-2")))
}
