// Package pricing implements Black-Scholes-Merton valuation, the full Greek
// set, and implied-volatility inversion for European options on
// non-dividend-paying underlyings. All functions are pure: same inputs, same
// outputs, no clocks and no global state.
package pricing

import (
	"math"

	"github.com/voledgehq/voledge/internal/models"
)

const (
	// MinVol and MaxVol bound the implied-volatility search. Quotes whose
	// price cannot be produced by any volatility in this range are reported
	// as unsolvable rather than extrapolated.
	MinVol = 0.01
	MaxVol = 5.0

	// volFloor replaces non-positive sigma inputs so the d1/d2 terms stay
	// defined. Callers asking for sigma = 0 get the near-deterministic limit.
	volFloor = 1e-4

	daysPerYear = 365.0
)

// Inputs are the five Black-Scholes parameters for one contract. T is in
// years on a calendar-day basis.
type Inputs struct {
	Spot   float64
	Strike float64
	T      float64
	Rate   float64
	Sigma  float64
}

// normCDF is the standard normal cumulative distribution.
func normCDF(x float64) float64 {
	return 0.5 * (1 + math.Erf(x/math.Sqrt2))
}

// normPDF is the standard normal density.
func normPDF(x float64) float64 {
	return math.Exp(-x*x/2) / math.Sqrt(2*math.Pi)
}

func d1d2(in Inputs) (float64, float64) {
	sigma := in.Sigma
	if sigma <= 0 {
		sigma = volFloor
	}
	sqrtT := math.Sqrt(in.T)
	d1 := (math.Log(in.Spot/in.Strike) + (in.Rate+sigma*sigma/2)*in.T) / (sigma * sqrtT)
	return d1, d1 - sigma*sqrtT
}

// intrinsic is the exercise value, the price limit as T approaches zero.
func intrinsic(typ models.OptionType, spot, strike float64) float64 {
	if typ == models.Call {
		return math.Max(spot-strike, 0)
	}
	return math.Max(strike-spot, 0)
}

// Price returns the Black-Scholes value of the option. An expired contract
// (T <= 0) is worth exactly its intrinsic value.
func Price(typ models.OptionType, in Inputs) float64 {
	if in.T <= 0 {
		return intrinsic(typ, in.Spot, in.Strike)
	}
	d1, d2 := d1d2(in)
	disc := in.Strike * math.Exp(-in.Rate*in.T)
	if typ == models.Call {
		return in.Spot*normCDF(d1) - disc*normCDF(d2)
	}
	return disc*normCDF(-d2) - in.Spot*normCDF(-d1)
}

// Greeks returns the pricing result for the option: theoretical price plus
// the full sensitivity set in trading units. Theta is per calendar day, vega
// is per one-point volatility move, rho is per 1% rate move. Implied-vol
// fields are left unset; the solver fills them.
func Greeks(typ models.OptionType, in Inputs) models.PricingResult {
	if in.T <= 0 {
		res := models.PricingResult{TheoreticalPrice: intrinsic(typ, in.Spot, in.Strike)}
		switch {
		case typ == models.Call && in.Spot > in.Strike:
			res.Delta = 1
		case typ == models.Put && in.Spot < in.Strike:
			res.Delta = -1
		}
		return res
	}

	d1, d2 := d1d2(in)
	sigma := in.Sigma
	if sigma <= 0 {
		sigma = volFloor
	}
	sqrtT := math.Sqrt(in.T)
	disc := in.Strike * math.Exp(-in.Rate*in.T)
	pdf := normPDF(d1)

	res := models.PricingResult{
		TheoreticalPrice: Price(typ, in),
		Gamma:            pdf / (in.Spot * sigma * sqrtT),
		Vega:             in.Spot * pdf * sqrtT / 100,
	}

	decay := -in.Spot * pdf * sigma / (2 * sqrtT)
	if typ == models.Call {
		res.Delta = normCDF(d1)
		res.Theta = (decay - in.Rate*disc*normCDF(d2)) / daysPerYear
		res.Rho = disc * in.T * normCDF(d2) / 100
	} else {
		res.Delta = normCDF(d1) - 1
		res.Theta = (decay + in.Rate*disc*normCDF(-d2)) / daysPerYear
		res.Rho = -disc * in.T * normCDF(-d2) / 100
	}
	return res
}
