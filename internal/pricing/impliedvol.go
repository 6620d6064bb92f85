package pricing

import (
	"math"

	"github.com/voledgehq/voledge/internal/models"
)

const (
	ivTolerance     = 1e-5
	newtonMaxIters  = 100
	bisectMaxIters  = 200
	newtonVegaFloor = 1e-10
)

// ImpliedVol inverts the Black-Scholes price for volatility. It returns the
// sigma in [MinVol, MaxVol] whose model price matches target within
// tolerance, or ok=false when no such sigma exists. The price is strictly
// increasing in sigma, so a target outside the bracket endpoints is
// unsolvable and rejected up front. Sigma in the Inputs is ignored.
func ImpliedVol(typ models.OptionType, in Inputs, target float64) (float64, bool) {
	if in.T <= 0 || target <= 0 || math.IsNaN(target) || math.IsInf(target, 0) {
		return 0, false
	}

	lo := in
	lo.Sigma = MinVol
	hi := in
	hi.Sigma = MaxVol
	if target < Price(typ, lo)-ivTolerance || target > Price(typ, hi)+ivTolerance {
		return 0, false
	}

	if sigma, ok := newton(typ, in, target); ok {
		return sigma, true
	}
	return bisect(typ, in, target)
}

// newton runs Newton-Raphson from the Brenner-Subrahmanyam seed. The
// derivative is the raw vega (per unit sigma, not the per-point trading
// vega). Steps that leave the bracket or hit a flat vega hand off to
// bisection.
func newton(typ models.OptionType, in Inputs, target float64) (float64, bool) {
	sigma := math.Sqrt(2*math.Pi/in.T) * target / in.Spot
	sigma = math.Min(math.Max(sigma, MinVol), MaxVol)

	for i := 0; i < newtonMaxIters; i++ {
		in.Sigma = sigma
		diff := Price(typ, in) - target
		if math.Abs(diff) < ivTolerance {
			return sigma, true
		}
		d1, _ := d1d2(in)
		vega := in.Spot * normPDF(d1) * math.Sqrt(in.T)
		if vega < newtonVegaFloor {
			return 0, false
		}
		next := sigma - diff/vega
		if next < MinVol || next > MaxVol || math.IsNaN(next) {
			return 0, false
		}
		sigma = next
	}
	return 0, false
}

func bisect(typ models.OptionType, in Inputs, target float64) (float64, bool) {
	lo, hi := MinVol, MaxVol
	for i := 0; i < bisectMaxIters; i++ {
		mid := (lo + hi) / 2
		in.Sigma = mid
		diff := Price(typ, in) - target
		if math.Abs(diff) < ivTolerance {
			return mid, true
		}
		if diff < 0 {
			lo = mid
		} else {
			hi = mid
		}
	}
	return (lo + hi) / 2, true
}
