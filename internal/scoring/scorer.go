// Package scoring ranks passing mispricing signals with a weighted
// six-factor composite score and annotates each opportunity with its risk
// profile and trade-management levels.
package scoring

import (
	"fmt"
	"math"
	"sort"

	"github.com/voledgehq/voledge/internal/models"
)

// Strategy selects how maximum loss is computed for a short option.
type Strategy string

const (
	// CashSecuredPut risks assignment at the strike, offset by the credit.
	CashSecuredPut Strategy = "cash_secured_put"
	// NakedCall has unbounded theoretical loss; the estimate caps the
	// underlying at twice its current price.
	NakedCall Strategy = "naked_call"
	// CreditSpread caps loss at the wing width minus the credit.
	CreditSpread Strategy = "credit_spread"
)

const weightTolerance = 1e-9

// Weights are the six subscore weights. They must sum to exactly one;
// a partial reweighting is a configuration mistake, not a preference.
type Weights struct {
	IVHVRatio      float64
	PriceDeviation float64
	Delta          float64
	Theta          float64
	Liquidity      float64
	DTE            float64
}

// Validate checks that every weight is non-negative and the sum is one.
func (w *Weights) Validate() error {
	for name, v := range map[string]float64{
		"iv_hv_ratio": w.IVHVRatio, "price_deviation": w.PriceDeviation,
		"delta": w.Delta, "theta": w.Theta, "liquidity": w.Liquidity, "dte": w.DTE,
	} {
		if v < 0 || math.IsNaN(v) {
			return fmt.Errorf("scoring: weight %s must be non-negative", name)
		}
	}
	sum := w.IVHVRatio + w.PriceDeviation + w.Delta + w.Theta + w.Liquidity + w.DTE
	if math.Abs(sum-1) > weightTolerance {
		return fmt.Errorf("scoring: weights sum to %v, want 1", sum)
	}
	return nil
}

// Config drives one scorer instance. The delta and DTE bounds should match
// the detector's thresholds so the triangular and falloff ramps reach zero
// exactly where the filters cut off.
type Config struct {
	Weights Weights

	// RatioFloor scores zero and RatioCeiling scores 100 on the IV/HV ramp.
	RatioFloor   float64
	RatioCeiling float64

	// DeviationCeiling is the positive price deviation that scores 100.
	DeviationCeiling float64

	TargetDelta float64
	MinDelta    float64
	MaxDelta    float64

	// ThetaCeiling is the per-day decay relative to the premium that
	// scores 100.
	ThetaCeiling float64

	MaxSpreadRatio float64

	MinDTE       int
	MaxDTE       int
	SweetSpotLow int
	SweetSpotHi  int

	// ProfitTarget is the fraction of the credit to capture before closing.
	// LossLimit is the loss, as a multiple of the credit, that triggers an
	// alert.
	ProfitTarget float64
	LossLimit    float64

	Strategy Strategy
	// SpreadWidth is the wing width in strike points, required for
	// CreditSpread.
	SpreadWidth float64
}

// Validate rejects configurations the scorer cannot run with.
func (c *Config) Validate() error {
	if err := c.Weights.Validate(); err != nil {
		return err
	}
	if c.RatioCeiling <= c.RatioFloor {
		return fmt.Errorf("scoring: ratio ceiling %v must exceed floor %v", c.RatioCeiling, c.RatioFloor)
	}
	if c.DeviationCeiling <= 0 {
		return fmt.Errorf("scoring: deviation ceiling must be positive")
	}
	if !(c.MinDelta < c.TargetDelta && c.TargetDelta < c.MaxDelta) {
		return fmt.Errorf("scoring: target delta %v must sit inside (%v, %v)", c.TargetDelta, c.MinDelta, c.MaxDelta)
	}
	if c.ThetaCeiling <= 0 {
		return fmt.Errorf("scoring: theta ceiling must be positive")
	}
	if c.MaxSpreadRatio <= 0 {
		return fmt.Errorf("scoring: max spread ratio must be positive")
	}
	if !(c.MinDTE <= c.SweetSpotLow && c.SweetSpotLow <= c.SweetSpotHi && c.SweetSpotHi <= c.MaxDTE) {
		return fmt.Errorf("scoring: DTE sweet spot [%d, %d] must sit inside [%d, %d]",
			c.SweetSpotLow, c.SweetSpotHi, c.MinDTE, c.MaxDTE)
	}
	if c.ProfitTarget <= 0 || c.ProfitTarget >= 1 {
		return fmt.Errorf("scoring: profit target must be in (0, 1)")
	}
	if c.LossLimit <= 0 {
		return fmt.Errorf("scoring: loss limit must be positive")
	}
	switch c.Strategy {
	case CashSecuredPut, NakedCall:
	case CreditSpread:
		if c.SpreadWidth <= 0 {
			return fmt.Errorf("scoring: credit spread requires a positive width")
		}
	default:
		return fmt.Errorf("scoring: unknown strategy %q", c.Strategy)
	}
	return nil
}

// Scorer computes composite scores. Stateless apart from configuration and
// safe for concurrent use.
type Scorer struct {
	cfg Config
}

// New builds a scorer from a validated configuration.
func New(cfg Config) (*Scorer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Scorer{cfg: cfg}, nil
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(math.Max(v, lo), hi)
}

// ramp maps v linearly from [lo, hi] onto [0, 100], clamped at both ends.
func ramp(v, lo, hi float64) float64 {
	return clamp((v-lo)/(hi-lo), 0, 1) * 100
}

func (s *Scorer) ratioScore(sig *models.MispricingSignal) float64 {
	if !sig.RatioFound {
		return 0
	}
	return ramp(sig.IVHVRatio, s.cfg.RatioFloor, s.cfg.RatioCeiling)
}

func (s *Scorer) deviationScore(sig *models.MispricingSignal) float64 {
	return ramp(sig.PriceDeviation, 0, s.cfg.DeviationCeiling)
}

// deltaScore is triangular: 100 at the target delta, falling linearly to
// zero at the filter bounds on either side.
func (s *Scorer) deltaScore(sig *models.MispricingSignal) float64 {
	d := math.Abs(sig.Pricing.Delta)
	switch {
	case d <= s.cfg.MinDelta || d >= s.cfg.MaxDelta:
		return 0
	case d < s.cfg.TargetDelta:
		return ramp(d, s.cfg.MinDelta, s.cfg.TargetDelta)
	default:
		return ramp(-d, -s.cfg.MaxDelta, -s.cfg.TargetDelta)
	}
}

func (s *Scorer) thetaScore(sig *models.MispricingSignal) float64 {
	mid := sig.Quote.Mid()
	if mid <= 0 {
		return 0
	}
	return ramp(math.Abs(sig.Pricing.Theta)/mid, 0, s.cfg.ThetaCeiling)
}

func (s *Scorer) liquidityScore(sig *models.MispricingSignal) float64 {
	ratio, ok := sig.Quote.SpreadRatio()
	if !ok {
		return 0
	}
	return clamp(1-ratio/s.cfg.MaxSpreadRatio, 0, 1) * 100
}

func (s *Scorer) dteScore(sig *models.MispricingSignal) float64 {
	dte := float64(sig.Quote.DTE())
	lo, hi := float64(s.cfg.SweetSpotLow), float64(s.cfg.SweetSpotHi)
	switch {
	case dte >= lo && dte <= hi:
		return 100
	case dte < lo:
		return ramp(dte, float64(s.cfg.MinDTE), lo)
	default:
		return ramp(-dte, -float64(s.cfg.MaxDTE), -hi)
	}
}

// ProbabilityOfProfit approximates the chance a short option expires
// worthless as one minus the absolute delta.
func ProbabilityOfProfit(delta float64) float64 {
	return clamp(1-math.Abs(delta), 0, 1)
}

// MaxLoss returns the worst-case dollar loss per contract for the strategy.
func (s *Scorer) MaxLoss(q *models.OptionQuote, premium float64) float64 {
	switch s.cfg.Strategy {
	case CashSecuredPut:
		return math.Max(q.Strike-premium, 0) * 100
	case NakedCall:
		return math.Max(2*q.UnderlyingPrice-q.Strike-premium, 0) * 100
	default:
		return math.Max(s.cfg.SpreadWidth-premium, 0) * 100
	}
}

// Score converts a passing signal into a ranked opportunity. The composite
// is the weighted sum of the six subscores, clamped to [0, 100]. ScannedAt
// is the quote's snapshot time and no ID is assigned here, so re-scoring an
// identical signal yields an identical record; identity is attached when
// the opportunity is persisted.
func (s *Scorer) Score(sig models.MispricingSignal) models.ScoredOpportunity {
	sub := models.Subscores{
		IVHVRatio:      s.ratioScore(&sig),
		PriceDeviation: s.deviationScore(&sig),
		Delta:          s.deltaScore(&sig),
		Theta:          s.thetaScore(&sig),
		Liquidity:      s.liquidityScore(&sig),
		DTE:            s.dteScore(&sig),
	}
	w := s.cfg.Weights
	composite := clamp(
		w.IVHVRatio*sub.IVHVRatio+
			w.PriceDeviation*sub.PriceDeviation+
			w.Delta*sub.Delta+
			w.Theta*sub.Theta+
			w.Liquidity*sub.Liquidity+
			w.DTE*sub.DTE,
		0, 100)

	premium := sig.Quote.Mid()
	maxLoss := s.MaxLoss(&sig.Quote, premium)
	credit := premium * 100

	opp := models.ScoredOpportunity{
		Signal:              sig,
		Subscores:           sub,
		CompositeScore:      composite,
		ProbabilityOfProfit: ProbabilityOfProfit(sig.Pricing.Delta),
		MaxLoss:             maxLoss,
		TargetClosePrice:    premium * (1 - s.cfg.ProfitTarget),
		LossAlertPrice:      premium * (1 + s.cfg.LossLimit),
		ScannedAt:           sig.Quote.AsOf,
	}
	if credit > 0 {
		opp.RiskRewardRatio = maxLoss / credit
	}
	return opp
}

// Rank scores every passing signal and returns opportunities sorted by
// composite score, best first. Ties break on the quote's strike then type so
// the order never depends on input order.
func (s *Scorer) Rank(signals []models.MispricingSignal) []models.ScoredOpportunity {
	opps := make([]models.ScoredOpportunity, 0, len(signals))
	for _, sig := range signals {
		if !sig.PassesFilters {
			continue
		}
		opps = append(opps, s.Score(sig))
	}
	sort.Slice(opps, func(i, j int) bool {
		a, b := &opps[i], &opps[j]
		if a.CompositeScore != b.CompositeScore {
			return a.CompositeScore > b.CompositeScore
		}
		qa, qb := &a.Signal.Quote, &b.Signal.Quote
		if qa.Underlying != qb.Underlying {
			return qa.Underlying < qb.Underlying
		}
		if qa.Strike != qb.Strike {
			return qa.Strike < qb.Strike
		}
		return qa.Type < qb.Type
	})
	return opps
}
