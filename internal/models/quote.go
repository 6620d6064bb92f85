package models

import (
	"errors"
	"math"
	"time"
)

// OptionType distinguishes calls from puts.
type OptionType string

const (
	Call OptionType = "CALL"
	Put  OptionType = "PUT"
)

// Valid reports whether the type is one of the two known variants.
func (t OptionType) Valid() bool {
	return t == Call || t == Put
}

// OptionQuote is a point-in-time market snapshot of a single option
// contract. AsOf is the snapshot time supplied by the broker layer; all
// derived values (mid, spread ratio, DTE) are functions of the quote alone,
// never of the wall clock, so re-evaluating an identical snapshot is
// bit-for-bit reproducible.
type OptionQuote struct {
	Underlying      string     `json:"underlying"`
	Type            OptionType `json:"type"`
	Strike          float64    `json:"strike"`
	Expiry          time.Time  `json:"expiry"`
	Bid             float64    `json:"bid"`
	Ask             float64    `json:"ask"`
	Last            float64    `json:"last"`
	UnderlyingPrice float64    `json:"underlying_price"`
	AsOf            time.Time  `json:"as_of"`
}

// Mid returns the bid/ask midpoint.
func (q *OptionQuote) Mid() float64 {
	return (q.Bid + q.Ask) / 2
}

// SpreadRatio returns (ask - bid) / mid. ok is false when the mid is not
// positive, in which case the ratio is undefined.
func (q *OptionQuote) SpreadRatio() (float64, bool) {
	mid := q.Mid()
	if mid <= 0 {
		return 0, false
	}
	return (q.Ask - q.Bid) / mid, true
}

// DTE returns calendar days from AsOf to expiry, rounded up so a contract
// expiring later today still counts as day zero, not negative.
func (q *OptionQuote) DTE() int {
	return int(math.Ceil(q.Expiry.Sub(q.AsOf).Hours() / 24))
}

// TimeToExpiry returns DTE converted to years on a calendar-day basis,
// floored at zero. Pricing uses calendar days (DTE/365) while volatility
// annualizes trading-day returns by sqrt(252); both conventions follow the
// option market's usual split and must not be mixed.
func (q *OptionQuote) TimeToExpiry() float64 {
	dte := q.DTE()
	if dte <= 0 {
		return 0
	}
	return float64(dte) / 365.0
}

// Validate checks that all quote fields are valid.
func (q *OptionQuote) Validate() error {
	if q.Underlying == "" {
		return errors.New("quote underlying must not be empty")
	}
	if !q.Type.Valid() {
		return errors.New("quote type must be CALL or PUT")
	}
	if q.Strike <= 0 || math.IsNaN(q.Strike) || math.IsInf(q.Strike, 0) {
		return errors.New("quote strike must be finite and positive")
	}
	if q.Expiry.IsZero() {
		return errors.New("quote expiry must not be zero")
	}
	if q.AsOf.IsZero() {
		return errors.New("quote as-of time must not be zero")
	}
	for name, v := range map[string]float64{"bid": q.Bid, "ask": q.Ask, "last": q.Last} {
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return errors.New("quote " + name + " must be finite and non-negative")
		}
	}
	if q.Ask < q.Bid {
		return errors.New("quote ask must be >= bid")
	}
	if q.UnderlyingPrice <= 0 || math.IsNaN(q.UnderlyingPrice) || math.IsInf(q.UnderlyingPrice, 0) {
		return errors.New("quote underlying price must be finite and positive")
	}
	return nil
}
