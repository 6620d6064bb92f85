package volatility

import (
	"errors"
	"math"
	"sort"

	"github.com/voledgehq/voledge/internal/models"
)

// minPercentileObs is the smallest rolling sample from which a percentile
// rank is considered meaningful.
const minPercentileObs = 20

// Percentile ranks current against a rolling sample: the share of past
// readings strictly below it, scaled to [0, 100]. ok is false when the
// sample is too small to rank against.
func Percentile(sample []float64, current float64) (float64, bool) {
	if len(sample) < minPercentileObs {
		return 0, false
	}
	below := 0
	for _, v := range sample {
		if v < current {
			below++
		}
	}
	return float64(below) / float64(len(sample)) * 100, true
}

// EstimateWithPercentile computes the trailing estimate and ranks it within
// the full rolling series over the same history. The current reading is part
// of the series it is ranked against, matching how cone charts are read.
func EstimateWithPercentile(bars []models.PriceBar, window int, method models.VolMethod) (models.VolatilityEstimate, error) {
	est, err := Estimate(bars, window, method)
	if err != nil {
		return models.VolatilityEstimate{}, err
	}
	series, err := Series(bars, window, method)
	if err != nil {
		return models.VolatilityEstimate{}, err
	}
	if p, ok := Percentile(series, est.Value); ok {
		est.Percentile = p
		est.HasPercentile = true
	}
	return est, nil
}

// ConeLevel summarizes the rolling volatility distribution for one window.
type ConeLevel struct {
	Window  int     `json:"window"`
	Min     float64 `json:"min"`
	Q1      float64 `json:"q1"`
	Median  float64 `json:"median"`
	Q3      float64 `json:"q3"`
	Max     float64 `json:"max"`
	Current float64 `json:"current"`
	Samples int     `json:"samples"`
}

// Cone builds the volatility cone: for each window, the min/quartile/max
// envelope of the rolling estimate series plus the current reading. Windows
// whose history is too short are skipped rather than failing the whole cone.
func Cone(bars []models.PriceBar, windows []int, method models.VolMethod) ([]ConeLevel, error) {
	levels := make([]ConeLevel, 0, len(windows))
	for _, w := range windows {
		series, err := Series(bars, w, method)
		if err != nil {
			if errors.Is(err, ErrInsufficientData) {
				continue
			}
			return nil, err
		}
		sorted := append([]float64(nil), series...)
		sort.Float64s(sorted)
		levels = append(levels, ConeLevel{
			Window:  w,
			Min:     sorted[0],
			Q1:      quantile(sorted, 0.25),
			Median:  quantile(sorted, 0.50),
			Q3:      quantile(sorted, 0.75),
			Max:     sorted[len(sorted)-1],
			Current: series[len(series)-1],
			Samples: len(series),
		})
	}
	return levels, nil
}

// quantile is the linearly interpolated q-th quantile of a sorted sample.
func quantile(sorted []float64, q float64) float64 {
	if len(sorted) == 1 {
		return sorted[0]
	}
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}
