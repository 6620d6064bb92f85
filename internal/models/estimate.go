package models

import (
	"errors"
	"math"
)

// VolMethod enumerates the historical-volatility estimators. The four
// methods form a closed set dispatched by tag; they differ in which bar
// fields they consume and in their statistical assumptions.
type VolMethod string

const (
	// VolStandard is the close-to-close log-return standard deviation.
	VolStandard VolMethod = "standard"
	// VolParkinson is the high/low range estimator (drift-free assumption).
	VolParkinson VolMethod = "parkinson"
	// VolGarmanKlass combines the high/low range with a close/open term.
	VolGarmanKlass VolMethod = "garman_klass"
	// VolRogersSatchell uses all four OHLC fields and stays unbiased under
	// nonzero drift, unlike the other range estimators.
	VolRogersSatchell VolMethod = "rogers_satchell"
)

// Valid reports whether the method is one of the four known variants.
func (m VolMethod) Valid() bool {
	switch m {
	case VolStandard, VolParkinson, VolGarmanKlass, VolRogersSatchell:
		return true
	}
	return false
}

// VolatilityEstimate is one annualized historical-volatility reading.
// Percentile is the rank of Value within its trailing rolling distribution
// and is only present when enough history existed to compute it.
type VolatilityEstimate struct {
	Method        VolMethod `json:"method"`
	Window        int       `json:"window"`
	Value         float64   `json:"value"`
	Percentile    float64   `json:"percentile"`
	HasPercentile bool      `json:"has_percentile"`
}

// Validate checks that all estimate fields are valid.
func (e *VolatilityEstimate) Validate() error {
	if !e.Method.Valid() {
		return errors.New("estimate method is unknown")
	}
	if e.Window < 2 {
		return errors.New("estimate window must be at least 2")
	}
	if e.Value < 0 || math.IsNaN(e.Value) || math.IsInf(e.Value, 0) {
		return errors.New("estimate value must be finite and non-negative")
	}
	if e.HasPercentile && (e.Percentile < 0 || e.Percentile > 100) {
		return errors.New("estimate percentile must be in [0, 100]")
	}
	return nil
}
