// Package mispricing evaluates option quotes against model values derived
// from historical volatility and applies the conjunctive screening filters.
// A quote only becomes a candidate when every filter passes; every failed
// filter is recorded by name so rejections are explainable.
package mispricing

import (
	"fmt"
	"sort"
	"sync"

	"github.com/voledgehq/voledge/internal/models"
	"github.com/voledgehq/voledge/internal/pricing"
	"github.com/voledgehq/voledge/internal/volatility"
)

// Failure reasons, in the order filters are evaluated. The order is fixed so
// identical inputs always produce identical reason lists.
const (
	ReasonInvalidQuote     = "invalid_quote"
	ReasonDTEBelowMin      = "dte_below_min"
	ReasonDTEAboveMax      = "dte_above_max"
	ReasonDeltaBelowMin    = "delta_below_min"
	ReasonDeltaAboveMax    = "delta_above_max"
	ReasonPremiumBelowMin  = "premium_below_min"
	ReasonSpreadTooWide    = "spread_too_wide"
	ReasonIVUnavailable    = "iv_unavailable"
	ReasonHVUnavailable    = "hv_unavailable"
	ReasonRatioUnavailable = "ratio_unavailable"
	ReasonRatioBelowThresh = "iv_hv_below_threshold"
)

// Thresholds are the screening bounds. Delta bounds apply to the absolute
// delta, so the same configuration screens both calls and puts.
type Thresholds struct {
	MinDTE         int
	MaxDTE         int
	MinDelta       float64
	MaxDelta       float64
	MinPremium     float64
	MaxSpreadRatio float64
	IVHVThreshold  float64
}

// Config drives one detector instance.
type Config struct {
	Thresholds   Thresholds
	RiskFreeRate float64
	// HVWindows are the configured estimation windows in trading days,
	// matched to each quote's DTE at evaluation time.
	HVWindows []int
	HVMethod  models.VolMethod
}

// Validate rejects configurations the detector cannot run with.
func (c *Config) Validate() error {
	if c.Thresholds.MinDTE < 0 || c.Thresholds.MaxDTE < c.Thresholds.MinDTE {
		return fmt.Errorf("mispricing: DTE bounds [%d, %d] invalid", c.Thresholds.MinDTE, c.Thresholds.MaxDTE)
	}
	if c.Thresholds.MinDelta < 0 || c.Thresholds.MaxDelta > 1 || c.Thresholds.MaxDelta < c.Thresholds.MinDelta {
		return fmt.Errorf("mispricing: delta bounds [%v, %v] invalid", c.Thresholds.MinDelta, c.Thresholds.MaxDelta)
	}
	if c.Thresholds.MaxSpreadRatio <= 0 {
		return fmt.Errorf("mispricing: max spread ratio must be positive")
	}
	if c.Thresholds.IVHVThreshold <= 0 {
		return fmt.Errorf("mispricing: IV/HV threshold must be positive")
	}
	if len(c.HVWindows) == 0 {
		return fmt.Errorf("mispricing: at least one HV window required")
	}
	for _, w := range c.HVWindows {
		if w < 2 {
			return fmt.Errorf("mispricing: HV window %d too small", w)
		}
	}
	if !c.HVMethod.Valid() {
		return fmt.Errorf("mispricing: unknown HV method %q", c.HVMethod)
	}
	return nil
}

// Detector screens quotes. It is stateless apart from its configuration and
// safe for concurrent use.
type Detector struct {
	cfg     Config
	windows []int // sorted ascending
}

// New builds a detector from a validated configuration.
func New(cfg Config) (*Detector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	windows := append([]int(nil), cfg.HVWindows...)
	sort.Ints(windows)
	return &Detector{cfg: cfg, windows: windows}, nil
}

// SelectWindow maps a DTE onto the configured estimation windows: the
// smallest window covering the DTE, or the largest window when the contract
// is further out than any of them.
func (d *Detector) SelectWindow(dte int) int {
	for _, w := range d.windows {
		if w >= dte {
			return w
		}
	}
	return d.windows[len(d.windows)-1]
}

// Evaluate screens a single quote against the given price history. The
// returned signal always carries every metric that could be computed, even
// when filters fail, so callers can log or display rejections.
func (d *Detector) Evaluate(quote models.OptionQuote, bars []models.PriceBar) models.MispricingSignal {
	sig := models.MispricingSignal{Quote: quote}
	if err := quote.Validate(); err != nil {
		sig.FailureReasons = []string{ReasonInvalidQuote}
		return sig
	}

	dte := quote.DTE()
	mid := quote.Mid()
	in := pricing.Inputs{
		Spot:   quote.UnderlyingPrice,
		Strike: quote.Strike,
		T:      quote.TimeToExpiry(),
		Rate:   d.cfg.RiskFreeRate,
	}

	iv, ivFound := pricing.ImpliedVol(quote.Type, in, mid)

	sig.HVWindow = d.SelectWindow(dte)
	est, err := volatility.Estimate(bars, sig.HVWindow, d.cfg.HVMethod)
	if err == nil {
		sig.HVUsed = est.Value
		sig.HVFound = true
	}

	// Greeks at the implied vol when the market gives one, otherwise at the
	// historical estimate. The model price always uses HV: the whole point
	// is to compare the market's price against history.
	greeksVol := iv
	if !ivFound {
		greeksVol = sig.HVUsed
	}
	in.Sigma = greeksVol
	sig.Pricing = pricing.Greeks(quote.Type, in)
	sig.Pricing.ImpliedVol = iv
	sig.Pricing.IVFound = ivFound

	if sig.HVFound {
		in.Sigma = sig.HVUsed
		sig.ModelPrice = pricing.Price(quote.Type, in)
		sig.Pricing.TheoreticalPrice = sig.ModelPrice
		if sig.ModelPrice > 0 {
			sig.PriceDeviation = (mid - sig.ModelPrice) / sig.ModelPrice
		}
	}
	if ivFound && sig.HVFound && sig.HVUsed > 0 {
		sig.IVHVRatio = iv / sig.HVUsed
		sig.RatioFound = true
	}

	sig.FailureReasons = d.filter(&sig, dte, mid)
	sig.PassesFilters = len(sig.FailureReasons) == 0
	return sig
}

// filter applies every predicate in fixed order and returns the names of
// those that failed. Filters are conjunctive; all reasons are collected
// rather than short-circuiting on the first failure.
func (d *Detector) filter(sig *models.MispricingSignal, dte int, mid float64) []string {
	th := d.cfg.Thresholds
	var reasons []string

	if dte < th.MinDTE {
		reasons = append(reasons, ReasonDTEBelowMin)
	}
	if dte > th.MaxDTE {
		reasons = append(reasons, ReasonDTEAboveMax)
	}
	absDelta := sig.Pricing.Delta
	if absDelta < 0 {
		absDelta = -absDelta
	}
	if absDelta < th.MinDelta {
		reasons = append(reasons, ReasonDeltaBelowMin)
	}
	if absDelta > th.MaxDelta {
		reasons = append(reasons, ReasonDeltaAboveMax)
	}
	if mid < th.MinPremium {
		reasons = append(reasons, ReasonPremiumBelowMin)
	}
	if ratio, ok := sig.Quote.SpreadRatio(); !ok || ratio > th.MaxSpreadRatio {
		reasons = append(reasons, ReasonSpreadTooWide)
	}
	if !sig.Pricing.IVFound {
		reasons = append(reasons, ReasonIVUnavailable)
	}
	if !sig.HVFound {
		reasons = append(reasons, ReasonHVUnavailable)
	}
	// Only name the ratio when both inputs exist: a missing IV or HV is
	// already reported above, and a zero HV leaves the ratio undefined
	// rather than below threshold.
	if sig.Pricing.IVFound && sig.HVFound {
		switch {
		case !sig.RatioFound:
			reasons = append(reasons, ReasonRatioUnavailable)
		case sig.IVHVRatio < th.IVHVThreshold:
			reasons = append(reasons, ReasonRatioBelowThresh)
		}
	}
	return reasons
}

// EvaluateChain screens a whole chain concurrently. Results keep the input
// order; evaluation of one quote never depends on any other, so the output
// is identical to evaluating sequentially.
func (d *Detector) EvaluateChain(quotes []models.OptionQuote, bars []models.PriceBar) []models.MispricingSignal {
	signals := make([]models.MispricingSignal, len(quotes))
	var wg sync.WaitGroup
	for i := range quotes {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			signals[i] = d.Evaluate(quotes[i], bars)
		}(i)
	}
	wg.Wait()
	return signals
}
