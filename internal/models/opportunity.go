package models

import (
	"errors"
	"math"
	"time"
)

// Subscores are the six weighted components of the composite opportunity
// score, each already normalized to [0, 100].
type Subscores struct {
	IVHVRatio      float64 `json:"iv_hv_ratio"`
	PriceDeviation float64 `json:"price_deviation"`
	Delta          float64 `json:"delta"`
	Theta          float64 `json:"theta"`
	Liquidity      float64 `json:"liquidity"`
	DTE            float64 `json:"dte"`
}

// ScoredOpportunity is a filtered signal annotated with its composite score
// and trade-management levels. Scoring leaves ID empty so identical signals
// score to identical records; the ID is assigned when the opportunity is
// first persisted and is what positions and alerts reference.
type ScoredOpportunity struct {
	ID     string           `json:"id"`
	Signal MispricingSignal `json:"signal"`

	Subscores      Subscores `json:"subscores"`
	CompositeScore float64   `json:"composite_score"`

	ProbabilityOfProfit float64 `json:"probability_of_profit"`
	RiskRewardRatio     float64 `json:"risk_reward_ratio"`
	MaxLoss             float64 `json:"max_loss"`

	// TargetClosePrice is the buyback price that locks in the configured
	// profit fraction of the collected premium. LossAlertPrice is the mark
	// at which the loss limit (a multiple of premium) is breached.
	TargetClosePrice float64 `json:"target_close_price"`
	LossAlertPrice   float64 `json:"loss_alert_price"`

	ScannedAt time.Time `json:"scanned_at"`
}

// Validate checks the scored fields for range errors.
func (o *ScoredOpportunity) Validate() error {
	if o.ID == "" {
		return errors.New("opportunity id must not be empty")
	}
	if o.CompositeScore < 0 || o.CompositeScore > 100 || math.IsNaN(o.CompositeScore) {
		return errors.New("composite score must be in [0, 100]")
	}
	if o.ProbabilityOfProfit < 0 || o.ProbabilityOfProfit > 1 {
		return errors.New("probability of profit must be in [0, 1]")
	}
	if o.MaxLoss < 0 || math.IsNaN(o.MaxLoss) || math.IsInf(o.MaxLoss, 0) {
		return errors.New("max loss must be finite and non-negative")
	}
	if o.ScannedAt.IsZero() {
		return errors.New("scanned-at time must not be zero")
	}
	return nil
}
