package gatekeeper

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/JagPat/quantumleap-trading-backend-sub004/internal/config"
	"github.com/JagPat/quantumleap-trading-backend-sub004/internal/database"
	"github.com/JagPat/quantumleap-trading-backend-sub004/internal/models"
)

// Check name constants, in evaluation order.
const (
	CheckLLMConfidence   = "llm_confidence"
	CheckDataAgreement   = "data_agreement"
	CheckRecentWinRate   = "recent_win_rate"
	CheckVolatility      = "market_volatility"
	CheckUserPerformance = "user_performance"
	CheckInternalError   = "internal_error"
)

// Recommended remedial actions reported with a failed check.
const (
	ActionManualReview       = "manual_review"
	ActionReducePositionSize = "reduce_position_size"
	ActionGatherMoreData     = "gather_more_data"
)

// Stats supplies historical trade performance for the gate checks.
type Stats interface {
	GetWinRateStats(userID string, since time.Time) (*database.WinRateStats, error)
}

// Result is the gatekeeper's answer for one decision.
type Result struct {
	Approved          bool     `json:"approved"`
	RequiresApproval  bool     `json:"requires_approval"`
	Check             string   `json:"check,omitempty"`
	Reason            string   `json:"reason,omitempty"`
	RecommendedAction string   `json:"recommended_action,omitempty"`
	Warnings          []string `json:"warnings,omitempty"`
}

// Gatekeeper is a chain of independent safety checks deciding whether an
// AI-originated decision may execute unattended. All checks must pass;
// any internal error fails closed. It never fails open.
type Gatekeeper struct {
	stats      Stats
	thresholds config.GateThresholds
	now        func() time.Time
	log        *log.Entry
}

// New creates a gatekeeper.
func New(stats Stats, thresholds config.GateThresholds) *Gatekeeper {
	return &Gatekeeper{
		stats:      stats,
		thresholds: thresholds,
		now:        time.Now,
		log:        log.WithField("component", "gatekeeper"),
	}
}

// Evaluate runs the check chain for a decision. A nil decision requires
// manual approval, as does a panic or error inside any check.
func (g *Gatekeeper) Evaluate(ctx context.Context, decision *models.Decision, userID string) (result Result) {
	defer func() {
		if r := recover(); r != nil {
			g.log.WithField("user_id", userID).Errorf("gate evaluation panicked: %v", r)
			result = g.failClosed(CheckInternalError, fmt.Sprintf("internal error: %v", r))
		}
	}()

	if decision == nil {
		return g.failClosed(CheckLLMConfidence, "no decision record available")
	}

	var warnings []string

	// Check 1: LLM confidence threshold.
	if decision.Confidence < g.thresholds.MinConfidence {
		return g.fail(CheckLLMConfidence,
			fmt.Sprintf("confidence %.2f below threshold %.2f", decision.Confidence, g.thresholds.MinConfidence),
			ActionManualReview)
	}

	// Check 2: data-source agreement across referenced symbols.
	agreement := sourceAgreement(decision)
	if agreement < g.thresholds.MinDataAgreement {
		return g.fail(CheckDataAgreement,
			fmt.Sprintf("source agreement %.2f below threshold %.2f", agreement, g.thresholds.MinDataAgreement),
			ActionGatherMoreData)
	}

	// Check 3: recent win rate. Thin history passes with a warning.
	recentSince := g.now().AddDate(0, 0, -g.thresholds.RecentWindowDays)
	recent, err := g.stats.GetWinRateStats(userID, recentSince)
	if err != nil {
		g.log.WithField("user_id", userID).WithError(err).Warn("recent win rate lookup failed")
		return g.failClosed(CheckInternalError, "recent performance unavailable")
	}
	if recent.Trades < g.thresholds.MinTradesForWinRate {
		warnings = append(warnings, "insufficient recent history for win rate check")
	} else if recent.WinRate < g.thresholds.MinRecentWinRate {
		return g.fail(CheckRecentWinRate,
			fmt.Sprintf("recent win rate %.2f below threshold %.2f", recent.WinRate, g.thresholds.MinRecentWinRate),
			ActionReducePositionSize)
	}

	// Check 4: market volatility regime.
	if decision.Regime == models.RegimeHighVolatility {
		return g.fail(CheckVolatility, "market regime is high volatility", ActionManualReview)
	}

	// Check 5: longer-horizon user performance floor. Both floors must be
	// breached together to block; new users pass with a warning.
	userSince := g.now().AddDate(0, 0, -g.thresholds.UserWindowDays)
	user, err := g.stats.GetWinRateStats(userID, userSince)
	if err != nil {
		g.log.WithField("user_id", userID).WithError(err).Warn("user performance lookup failed")
		return g.failClosed(CheckInternalError, "user performance unavailable")
	}
	if user.Trades < g.thresholds.MinTradesForUserHist {
		warnings = append(warnings, "insufficient user history for performance check")
	} else {
		avgReturn, _ := user.AvgReturnPct.Float64()
		if user.WinRate < g.thresholds.WinRateFloor && avgReturn < g.thresholds.AvgReturnFloorPct {
			return g.fail(CheckUserPerformance,
				fmt.Sprintf("win rate %.2f and avg return %.2f%% both below floor", user.WinRate, avgReturn),
				ActionReducePositionSize)
		}
	}

	return Result{Approved: true, Warnings: warnings}
}

// sourceAgreement returns the fraction of referenced symbols backed by at
// least two distinct data sources. A decision without referenced symbols
// counts as fully agreed: there is nothing to corroborate.
func sourceAgreement(decision *models.Decision) float64 {
	symbols := decision.ReferencedSymbols()
	if len(symbols) == 0 {
		return 1.0
	}

	sourcesBySymbol := make(map[string]map[string]bool)
	for _, attr := range decision.Attributions {
		if attr.Symbol == "" {
			continue
		}
		if sourcesBySymbol[attr.Symbol] == nil {
			sourcesBySymbol[attr.Symbol] = make(map[string]bool)
		}
		sourcesBySymbol[attr.Symbol][attr.Source] = true
	}

	corroborated := 0
	for _, symbol := range symbols {
		if len(sourcesBySymbol[symbol]) >= 2 {
			corroborated++
		}
	}
	return float64(corroborated) / float64(len(symbols))
}

func (g *Gatekeeper) fail(check, reason, action string) Result {
	return Result{
		Approved:          false,
		RequiresApproval:  true,
		Check:             check,
		Reason:            reason,
		RecommendedAction: action,
	}
}

func (g *Gatekeeper) failClosed(check, reason string) Result {
	return Result{
		Approved:          false,
		RequiresApproval:  true,
		Check:             check,
		Reason:            reason,
		RecommendedAction: ActionManualReview,
	}
}
