// Package models defines the core domain entities for voledge: OHLC price
// bars, option quotes, volatility estimates, pricing results, mispricing
// signals, scored opportunities, and tracked positions.
// All entities are value objects, created per evaluation and never mutated
// in place, and include built-in validation so invalid market data is rejected
// at the boundary instead of propagating NaN into the analytics pipeline.
package models

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// PriceBar is one daily OHLCV bar for an underlying. Bars arrive as an
// ordered chronological sequence and are immutable once recorded; they are
// the sole input to historical-volatility estimation.
type PriceBar struct {
	Date   time.Time `json:"date"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume int64     `json:"volume"`
}

// HasPositivePrices reports whether every price field is finite and strictly
// positive. Log-based volatility estimators are undefined otherwise.
func (b *PriceBar) HasPositivePrices() bool {
	for _, p := range []float64{b.Open, b.High, b.Low, b.Close} {
		if p <= 0 || math.IsNaN(p) || math.IsInf(p, 0) {
			return false
		}
	}
	return true
}

// Validate checks that all bar fields are valid.
func (b *PriceBar) Validate() error {
	if b.Date.IsZero() {
		return errors.New("bar date must not be zero")
	}
	if !b.HasPositivePrices() {
		return errors.New("bar prices must be finite and positive")
	}
	if b.High < b.Low {
		return errors.New("bar high must be >= low")
	}
	if b.High < b.Open || b.High < b.Close {
		return errors.New("bar high must bound open and close")
	}
	if b.Low > b.Open || b.Low > b.Close {
		return errors.New("bar low must bound open and close")
	}
	if b.Volume < 0 {
		return errors.New("bar volume must not be negative")
	}
	return nil
}

// ValidateBars checks an entire history: every bar valid, dates strictly
// ascending.
func ValidateBars(bars []PriceBar) error {
	for i := range bars {
		if err := bars[i].Validate(); err != nil {
			return fmt.Errorf("bar %d (%s): %w", i, bars[i].Date.Format("2006-01-02"), err)
		}
		if i > 0 && !bars[i].Date.After(bars[i-1].Date) {
			return fmt.Errorf("bar %d (%s): dates must be strictly ascending", i, bars[i].Date.Format("2006-01-02"))
		}
	}
	return nil
}
