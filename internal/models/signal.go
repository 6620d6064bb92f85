package models

// PricingResult carries a theoretical valuation and its Greeks for one
// contract at one set of inputs. It has no identity beyond those inputs.
// ImpliedVol is only meaningful when IVFound is true; the solver reports
// failure as a tagged absence, not an error, because unsolvable quotes
// (deep OTM, sub-intrinsic prices) are an expected outcome.
type PricingResult struct {
	TheoreticalPrice float64 `json:"theoretical_price"`
	ImpliedVol       float64 `json:"implied_vol"`
	IVFound          bool    `json:"iv_found"`
	Delta            float64 `json:"delta"`
	Gamma            float64 `json:"gamma"`
	Theta            float64 `json:"theta"` // per calendar day
	Vega             float64 `json:"vega"`  // per 1-point vol change
	Rho              float64 `json:"rho"`   // per 1% rate change
}

// MispricingSignal is the detector's verdict on a single contract: the raw
// metrics plus the conjunctive filter outcome. FailureReasons lists every
// failed predicate by name in a fixed evaluation order, so identical inputs
// produce identical reason lists.
type MispricingSignal struct {
	Quote   OptionQuote   `json:"quote"`
	Pricing PricingResult `json:"pricing"`

	HVUsed   float64 `json:"hv_used"`
	HVWindow int     `json:"hv_window"`
	HVFound  bool    `json:"hv_found"`

	IVHVRatio  float64 `json:"iv_hv_ratio"`
	RatioFound bool    `json:"ratio_found"`

	ModelPrice     float64 `json:"model_price"`
	PriceDeviation float64 `json:"price_deviation"` // (mid - model) / model

	PassesFilters  bool     `json:"passes_filters"`
	FailureReasons []string `json:"failure_reasons,omitempty"`
}

// FailedBecause reports whether the named predicate is among the recorded
// failure reasons.
func (s *MispricingSignal) FailedBecause(reason string) bool {
	for _, r := range s.FailureReasons {
		if r == reason {
			return true
		}
	}
	return false
}
