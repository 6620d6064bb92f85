// Package volatility computes annualized historical volatility from daily
// OHLC bars using four estimators, plus rolling percentile ranks and the
// volatility cone used to judge where current volatility sits against its
// own history.
package volatility

import (
	"errors"
	"fmt"
	"math"

	"github.com/voledgehq/voledge/internal/models"
)

// Annualization uses trading days. Option time-to-expiry elsewhere uses
// calendar days; the two conventions are deliberate and must not be mixed.
const tradingDaysPerYear = 252.0

var (
	// ErrInsufficientData means the history is shorter than the estimator
	// needs for the requested window.
	ErrInsufficientData = errors.New("volatility: insufficient history")
	// ErrInvalidBar means a bar in the estimation window has a non-positive
	// or non-finite price, which makes the log terms undefined.
	ErrInvalidBar = errors.New("volatility: bar with non-positive price")
)

// MinBars returns the minimum history length for a method and window. The
// close-to-close estimator consumes returns, so it needs one extra bar.
func MinBars(method models.VolMethod, window int) int {
	if method == models.VolStandard {
		return window + 1
	}
	return window
}

// Estimate computes the annualized volatility over the trailing window of
// the given history. The window counts returns for the standard estimator
// and bars for the range estimators.
func Estimate(bars []models.PriceBar, window int, method models.VolMethod) (models.VolatilityEstimate, error) {
	if window < 2 {
		return models.VolatilityEstimate{}, fmt.Errorf("volatility: window %d too small", window)
	}
	if !method.Valid() {
		return models.VolatilityEstimate{}, fmt.Errorf("volatility: unknown method %q", method)
	}
	need := MinBars(method, window)
	if len(bars) < need {
		return models.VolatilityEstimate{}, fmt.Errorf("%w: have %d bars, need %d", ErrInsufficientData, len(bars), need)
	}

	value, err := estimateAt(bars, len(bars), window, method)
	if err != nil {
		return models.VolatilityEstimate{}, err
	}
	return models.VolatilityEstimate{Method: method, Window: window, Value: value}, nil
}

// estimateAt computes the estimate for the window ending at bar index end
// (exclusive). Callers guarantee end-need >= 0.
func estimateAt(bars []models.PriceBar, end, window int, method models.VolMethod) (float64, error) {
	need := MinBars(method, window)
	slice := bars[end-need : end]
	for i := range slice {
		if !slice[i].HasPositivePrices() {
			return 0, fmt.Errorf("%w: %s", ErrInvalidBar, slice[i].Date.Format("2006-01-02"))
		}
	}

	var variance float64
	switch method {
	case models.VolStandard:
		variance = closeToClose(slice)
	case models.VolParkinson:
		variance = parkinson(slice)
	case models.VolGarmanKlass:
		variance = garmanKlass(slice)
	case models.VolRogersSatchell:
		variance = rogersSatchell(slice)
	}
	return math.Sqrt(variance * tradingDaysPerYear), nil
}

// closeToClose is the Bessel-corrected variance of daily log returns.
func closeToClose(bars []models.PriceBar) float64 {
	n := len(bars) - 1
	returns := make([]float64, n)
	var sum float64
	for i := 1; i < len(bars); i++ {
		r := math.Log(bars[i].Close / bars[i-1].Close)
		returns[i-1] = r
		sum += r
	}
	mean := sum / float64(n)
	var ss float64
	for _, r := range returns {
		d := r - mean
		ss += d * d
	}
	return ss / float64(n-1)
}

// parkinson estimates daily variance from the high/low range, assuming zero
// drift and continuous trading.
func parkinson(bars []models.PriceBar) float64 {
	var sum float64
	for i := range bars {
		hl := math.Log(bars[i].High / bars[i].Low)
		sum += hl * hl
	}
	return sum / (4 * math.Ln2 * float64(len(bars)))
}

// garmanKlass adds a close/open correction to the range term. Individual
// bars can contribute negative values; the mean is clamped at zero so the
// square root stays defined.
func garmanKlass(bars []models.PriceBar) float64 {
	var sum float64
	for i := range bars {
		hl := math.Log(bars[i].High / bars[i].Low)
		co := math.Log(bars[i].Close / bars[i].Open)
		sum += 0.5*hl*hl - (2*math.Ln2-1)*co*co
	}
	return math.Max(sum/float64(len(bars)), 0)
}

// rogersSatchell remains unbiased under nonzero drift. As with Garman-Klass
// the per-bar terms can be negative, so the mean is clamped at zero.
func rogersSatchell(bars []models.PriceBar) float64 {
	var sum float64
	for i := range bars {
		b := &bars[i]
		ho := math.Log(b.High / b.Open)
		hc := math.Log(b.High / b.Close)
		lo := math.Log(b.Low / b.Open)
		lc := math.Log(b.Low / b.Close)
		sum += ho*hc + lo*lc
	}
	return math.Max(sum/float64(len(bars)), 0)
}

// Series computes the rolling estimate at every bar index where a full
// window of history exists, oldest first. The last element equals the
// Estimate over the same inputs.
func Series(bars []models.PriceBar, window int, method models.VolMethod) ([]float64, error) {
	need := MinBars(method, window)
	if len(bars) < need {
		return nil, fmt.Errorf("%w: have %d bars, need %d", ErrInsufficientData, len(bars), need)
	}
	out := make([]float64, 0, len(bars)-need+1)
	for end := need; end <= len(bars); end++ {
		v, err := estimateAt(bars, end, window, method)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}
