// Package risk implements the prop-firm rule set that decides whether a
// challenge stays active, passes or fails.
package risk

import (
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"prop-challenge-go/internal/models"
)

// Rule identifies which check produced a terminal outcome.
type Rule string

const (
	RuleNone         Rule = ""
	RuleDailyLoss    Rule = "DAILY_LOSS_LIMIT"
	RuleTotalLoss    Rule = "TOTAL_LOSS_LIMIT"
	RuleProfitTarget Rule = "PROFIT_TARGET"
)

var hundred = decimal.NewFromInt(100)

// Outcome is the result of one rule evaluation.
type Outcome struct {
	Status models.ChallengeStatus `json:"status"`
	Rule   Rule                   `json:"rule,omitempty"`
	// Reason is the stored failure reason (or pass reason) of a terminal outcome.
	Reason string `json:"reason,omitempty"`
	// Detail is the human readable measurement behind the decision.
	Detail string `json:"detail,omitempty"`
}

// Measurements holds the percentages a decision was based on.
type Measurements struct {
	DayStartEquity   decimal.Decimal
	DailyDrawdownPct decimal.Decimal
	TotalDrawdownPct decimal.Decimal
	ProfitPct        decimal.Decimal
}

// EffectiveBaseline substitutes the immutable start balance for a stored
// day start equity that is zero or negative.
func EffectiveBaseline(dayStart, startBalance decimal.Decimal) decimal.Decimal {
	if !dayStart.IsPositive() {
		return startBalance
	}
	return dayStart
}

// Measure computes the drawdown and profit percentages of a challenge.
func Measure(ch models.Challenge, dayStart decimal.Decimal) Measurements {
	base := EffectiveBaseline(dayStart, ch.StartBalance)
	return Measurements{
		DayStartEquity:   base,
		DailyDrawdownPct: percentOf(base.Sub(ch.CurrentEquity), base),
		TotalDrawdownPct: percentOf(ch.StartBalance.Sub(ch.CurrentEquity), ch.StartBalance),
		ProfitPct:        percentOf(ch.CurrentEquity.Sub(ch.StartBalance), ch.StartBalance),
	}
}

// Evaluate decides the next status of ch given today's baseline equity.
// A challenge that is not active is returned unchanged.
// Checks run in a fixed order and the first match wins: daily loss, total loss, profit target.
func Evaluate(ch models.Challenge, dayStart decimal.Decimal) Outcome {
	if ch.Status != models.StatusActive {
		out := Outcome{Status: ch.Status}
		if ch.FailureReason != nil {
			out.Reason = *ch.FailureReason
		}
		return out
	}

	m := Measure(ch, dayStart)

	if m.DailyDrawdownPct.GreaterThanOrEqual(decimal.NewFromFloat(ch.MaxDailyLossPct)) {
		return Outcome{
			Status: models.StatusFailed,
			Rule:   RuleDailyLoss,
			Reason: fmt.Sprintf("Daily Loss Limit Exceeded (>%s%%)", formatLimit(ch.MaxDailyLossPct)),
			Detail: fmt.Sprintf("Daily Loss: -%s%% (Limit: -%s%%)", m.DailyDrawdownPct.StringFixed(2), formatLimit(ch.MaxDailyLossPct)),
		}
	}

	if m.TotalDrawdownPct.GreaterThanOrEqual(decimal.NewFromFloat(ch.MaxTotalLossPct)) {
		return Outcome{
			Status: models.StatusFailed,
			Rule:   RuleTotalLoss,
			Reason: fmt.Sprintf("Total Loss Limit Exceeded (>%s%%)", formatLimit(ch.MaxTotalLossPct)),
			Detail: fmt.Sprintf("Total Loss: -%s%% (Limit: -%s%%)", m.TotalDrawdownPct.StringFixed(2), formatLimit(ch.MaxTotalLossPct)),
		}
	}

	if m.ProfitPct.GreaterThanOrEqual(decimal.NewFromFloat(ch.ProfitTargetPct)) {
		return Outcome{
			Status: models.StatusPassed,
			Rule:   RuleProfitTarget,
			Reason: fmt.Sprintf("Profit Target Reached (>=%s%%)", formatLimit(ch.ProfitTargetPct)),
			Detail: fmt.Sprintf("Profit Target Hit: +%s%% (Target: +%s%%)", m.ProfitPct.StringFixed(2), formatLimit(ch.ProfitTargetPct)),
		}
	}

	return Outcome{Status: models.StatusActive}
}

// Apply stamps a terminal outcome onto ch. It reports whether ch changed.
// Terminal challenges and non-terminal outcomes leave ch untouched.
func Apply(ch *models.Challenge, out Outcome, now time.Time) bool {
	if ch.Status != models.StatusActive || !out.Status.Terminal() {
		return false
	}

	ts := now.UTC()
	ch.Status = out.Status
	switch out.Status {
	case models.StatusFailed:
		reason := out.Reason
		ch.FailureReason = &reason
		ch.FailedAt = &ts
	case models.StatusPassed:
		ch.PassedAt = &ts
	}
	return true
}

// percentOf returns num/den*100, or zero when den is not positive.
func percentOf(num, den decimal.Decimal) decimal.Decimal {
	if !den.IsPositive() {
		return decimal.Zero
	}
	return num.Div(den).Mul(hundred)
}

func formatLimit(pct float64) string {
	return strconv.FormatFloat(pct, 'f', -1, 64)
}
