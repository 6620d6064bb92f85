package volatility

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/voledgehq/voledge/internal/models"
)

// flatBars returns n identical bars: no range, no returns.
func flatBars(n int, price float64) []models.PriceBar {
	start := time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)
	bars := make([]models.PriceBar, n)
	for i := range bars {
		bars[i] = models.PriceBar{
			Date: start.AddDate(0, 0, i), Open: price, High: price, Low: price, Close: price, Volume: 1000,
		}
	}
	return bars
}

// trendBars returns n bars growing by a fixed daily log return with a small
// intraday range.
func trendBars(n int, dailyReturn float64) []models.PriceBar {
	start := time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)
	bars := make([]models.PriceBar, n)
	price := 100.0
	for i := range bars {
		next := price * math.Exp(dailyReturn)
		open, close := price, next
		high := math.Max(open, close) * 1.005
		low := math.Min(open, close) * 0.995
		bars[i] = models.PriceBar{Date: start.AddDate(0, 0, i), Open: open, High: high, Low: low, Close: close, Volume: 1000}
		price = next
	}
	return bars
}

func TestEstimateFlatSeriesIsZero(t *testing.T) {
	bars := flatBars(30, 100)
	for _, m := range []models.VolMethod{models.VolStandard, models.VolParkinson, models.VolGarmanKlass, models.VolRogersSatchell} {
		est, err := Estimate(bars, 21, m)
		if err != nil {
			t.Fatalf("%s: %v", m, err)
		}
		if est.Value != 0 {
			t.Errorf("%s on flat series = %v, want exactly 0", m, est.Value)
		}
	}
}

func TestEstimateStandardKnownValue(t *testing.T) {
	// 20 alternating +1%/-1% log returns: mean 0, each squared deviation
	// 1e-4, Bessel variance = 20*1e-4/19, annualized by sqrt(252).
	start := time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)
	cum := 0.0
	bars := make([]models.PriceBar, 21)
	for i := range bars {
		if i > 0 {
			if i%2 == 1 {
				cum += 0.01
			} else {
				cum -= 0.01
			}
		}
		close := 100 * math.Exp(cum)
		bars[i] = models.PriceBar{
			Date: start.AddDate(0, 0, i), Open: close, High: close * 1.001, Low: close * 0.999, Close: close, Volume: 1,
		}
	}
	est, err := Estimate(bars, 20, models.VolStandard)
	if err != nil {
		t.Fatal(err)
	}
	want := math.Sqrt(20.0 * 1e-4 / 19.0 * 252)
	if math.Abs(est.Value-want) > 1e-9 {
		t.Errorf("standard vol = %v, want %v", est.Value, want)
	}
}

func TestEstimateParkinsonKnownValue(t *testing.T) {
	// Constant high/low ratio: ln(H/L) = ln(1.02) each bar, so the estimate
	// is sqrt(ln(1.02)^2 / (4 ln 2) * 252) regardless of window content.
	start := time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)
	bars := make([]models.PriceBar, 21)
	for i := range bars {
		bars[i] = models.PriceBar{Date: start.AddDate(0, 0, i), Open: 100, High: 101, Low: 101.0 / 1.02, Close: 100, Volume: 1}
	}
	est, err := Estimate(bars, 21, models.VolParkinson)
	if err != nil {
		t.Fatal(err)
	}
	hl := math.Log(1.02)
	want := math.Sqrt(hl * hl / (4 * math.Ln2) * 252)
	if math.Abs(est.Value-want) > 1e-9 {
		t.Errorf("parkinson vol = %v, want %v", est.Value, want)
	}
}

func TestEstimateNonNegative(t *testing.T) {
	bars := trendBars(80, 0.004)
	for _, m := range []models.VolMethod{models.VolStandard, models.VolParkinson, models.VolGarmanKlass, models.VolRogersSatchell} {
		est, err := Estimate(bars, 21, m)
		if err != nil {
			t.Fatalf("%s: %v", m, err)
		}
		if est.Value < 0 || math.IsNaN(est.Value) {
			t.Errorf("%s = %v, want non-negative", m, est.Value)
		}
	}
}

func TestEstimateInsufficientData(t *testing.T) {
	bars := flatBars(21, 100)

	// Standard needs window+1 bars, range estimators need window.
	if _, err := Estimate(bars, 21, models.VolStandard); !errors.Is(err, ErrInsufficientData) {
		t.Errorf("standard with 21 bars, window 21: err = %v, want ErrInsufficientData", err)
	}
	if _, err := Estimate(bars, 21, models.VolParkinson); err != nil {
		t.Errorf("parkinson with 21 bars, window 21: %v", err)
	}
	if _, err := Estimate(bars[:5], 21, models.VolGarmanKlass); !errors.Is(err, ErrInsufficientData) {
		t.Errorf("short history: err = %v, want ErrInsufficientData", err)
	}
}

func TestEstimateRejectsInvalidBar(t *testing.T) {
	bars := trendBars(30, 0.002)
	bars[25].Low = 0
	if _, err := Estimate(bars, 21, models.VolParkinson); !errors.Is(err, ErrInvalidBar) {
		t.Errorf("err = %v, want ErrInvalidBar", err)
	}
	// The bad bar sits outside a short trailing window and must not matter.
	bars[25].Low = bars[25].Open * 0.99
	bars[0].Close = math.NaN()
	if _, err := Estimate(bars, 10, models.VolParkinson); err != nil {
		t.Errorf("bad bar outside window rejected: %v", err)
	}
}

func TestEstimateRejectsBadWindowAndMethod(t *testing.T) {
	bars := flatBars(30, 100)
	if _, err := Estimate(bars, 1, models.VolStandard); err == nil {
		t.Error("window 1 accepted")
	}
	if _, err := Estimate(bars, 21, models.VolMethod("heston")); err == nil {
		t.Error("unknown method accepted")
	}
}

func TestSeriesMatchesEstimate(t *testing.T) {
	bars := trendBars(60, 0.003)
	series, err := Series(bars, 21, models.VolGarmanKlass)
	if err != nil {
		t.Fatal(err)
	}
	if want := 60 - 21 + 1; len(series) != want {
		t.Fatalf("series length = %d, want %d", len(series), want)
	}
	est, err := Estimate(bars, 21, models.VolGarmanKlass)
	if err != nil {
		t.Fatal(err)
	}
	if series[len(series)-1] != est.Value {
		t.Errorf("series tail %v != estimate %v", series[len(series)-1], est.Value)
	}
}

func TestPercentileRanking(t *testing.T) {
	sample := make([]float64, 40)
	for i := range sample {
		sample[i] = float64(i) // 0..39
	}
	p, ok := Percentile(sample, 20)
	if !ok {
		t.Fatal("percentile not computed on sufficient sample")
	}
	if p != 50 {
		t.Errorf("percentile = %v, want 50", p)
	}
	if p, _ := Percentile(sample, 100); p != 100 {
		t.Errorf("above-max percentile = %v, want 100", p)
	}
	if p, _ := Percentile(sample, -1); p != 0 {
		t.Errorf("below-min percentile = %v, want 0", p)
	}
	if _, ok := Percentile(sample[:5], 2); ok {
		t.Error("percentile computed on tiny sample")
	}
}

func TestEstimateWithPercentile(t *testing.T) {
	bars := trendBars(120, 0.002)
	est, err := EstimateWithPercentile(bars, 21, models.VolParkinson)
	if err != nil {
		t.Fatal(err)
	}
	if !est.HasPercentile {
		t.Fatal("percentile missing with 120 bars of history")
	}
	if est.Percentile < 0 || est.Percentile > 100 {
		t.Errorf("percentile = %v, want in [0, 100]", est.Percentile)
	}
	if err := est.Validate(); err != nil {
		t.Errorf("estimate invalid: %v", err)
	}
}

func TestConeLevels(t *testing.T) {
	bars := trendBars(300, 0.001)
	levels, err := Cone(bars, []int{10, 21, 63, 5000}, models.VolRogersSatchell)
	if err != nil {
		t.Fatal(err)
	}
	// The 5000-bar window has no full sample and is skipped.
	if len(levels) != 3 {
		t.Fatalf("levels = %d, want 3", len(levels))
	}
	for _, l := range levels {
		if !(l.Min <= l.Q1 && l.Q1 <= l.Median && l.Median <= l.Q3 && l.Q3 <= l.Max) {
			t.Errorf("window %d: quartiles not ordered: %+v", l.Window, l)
		}
		if l.Current < l.Min || l.Current > l.Max {
			t.Errorf("window %d: current %v outside [min, max]", l.Window, l.Current)
		}
		if l.Samples < 1 {
			t.Errorf("window %d: no samples", l.Window)
		}
	}
}

func TestQuantileInterpolation(t *testing.T) {
	sorted := []float64{1, 2, 3, 4}
	if got := quantile(sorted, 0.5); got != 2.5 {
		t.Errorf("median = %v, want 2.5", got)
	}
	if got := quantile(sorted, 0); got != 1 {
		t.Errorf("q0 = %v, want 1", got)
	}
	if got := quantile(sorted, 1); got != 4 {
		t.Errorf("q1 = %v, want 4", got)
	}
	if got := quantile([]float64{7}, 0.75); got != 7 {
		t.Errorf("single sample = %v, want 7", got)
	}
}
