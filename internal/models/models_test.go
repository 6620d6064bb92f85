package models

import (
	"math"
	"strings"
	"testing"
	"time"
)

func validBar() PriceBar {
	return PriceBar{
		Date:   time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC),
		Open:   100,
		High:   102,
		Low:    99,
		Close:  101,
		Volume: 1_000_000,
	}
}

func TestPriceBarValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*PriceBar)
		wantErr string
	}{
		{"valid", func(b *PriceBar) {}, ""},
		{"zero date", func(b *PriceBar) { b.Date = time.Time{} }, "date"},
		{"zero close", func(b *PriceBar) { b.Close = 0 }, "finite and positive"},
		{"negative low", func(b *PriceBar) { b.Low = -1 }, "finite and positive"},
		{"nan open", func(b *PriceBar) { b.Open = math.NaN() }, "finite and positive"},
		{"high below low", func(b *PriceBar) { b.High, b.Low = 99, 102 }, "high must be >= low"},
		{"close above high", func(b *PriceBar) { b.Close = 103 }, "bound open and close"},
		{"open below low", func(b *PriceBar) { b.Open = 98 }, "bound open and close"},
		{"negative volume", func(b *PriceBar) { b.Volume = -1 }, "volume"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := validBar()
			tt.mutate(&b)
			err := b.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate() = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidateBarsOrdering(t *testing.T) {
	b1 := validBar()
	b2 := validBar()
	b2.Date = b1.Date.AddDate(0, 0, 1)

	if err := ValidateBars([]PriceBar{b1, b2}); err != nil {
		t.Fatalf("ascending bars: %v", err)
	}
	if err := ValidateBars([]PriceBar{b2, b1}); err == nil {
		t.Fatal("descending bars: want error, got nil")
	}
	if err := ValidateBars([]PriceBar{b1, b1}); err == nil {
		t.Fatal("duplicate dates: want error, got nil")
	}
	if err := ValidateBars(nil); err != nil {
		t.Fatalf("empty history: %v", err)
	}
}

func validQuote() OptionQuote {
	asOf := time.Date(2025, 6, 2, 15, 30, 0, 0, time.UTC)
	return OptionQuote{
		Underlying:      "SPY",
		Type:            Put,
		Strike:          580,
		Expiry:          asOf.AddDate(0, 0, 30),
		Bid:             2.40,
		Ask:             2.50,
		Last:            2.45,
		UnderlyingPrice: 600,
		AsOf:            asOf,
	}
}

func TestOptionQuoteDerived(t *testing.T) {
	q := validQuote()

	if got := q.Mid(); math.Abs(got-2.45) > 1e-12 {
		t.Errorf("Mid() = %v, want 2.45", got)
	}
	ratio, ok := q.SpreadRatio()
	if !ok {
		t.Fatal("SpreadRatio() not ok for positive mid")
	}
	if want := 0.10 / 2.45; math.Abs(ratio-want) > 1e-12 {
		t.Errorf("SpreadRatio() = %v, want %v", ratio, want)
	}
	if got := q.DTE(); got != 30 {
		t.Errorf("DTE() = %d, want 30", got)
	}
	if want := 30.0 / 365.0; math.Abs(q.TimeToExpiry()-want) > 1e-12 {
		t.Errorf("TimeToExpiry() = %v, want %v", q.TimeToExpiry(), want)
	}
}

func TestOptionQuoteSpreadRatioZeroMid(t *testing.T) {
	q := validQuote()
	q.Bid, q.Ask = 0, 0
	if _, ok := q.SpreadRatio(); ok {
		t.Error("SpreadRatio() ok for zero mid, want false")
	}
}

func TestOptionQuoteDTEPartialDay(t *testing.T) {
	q := validQuote()
	// 12 hours out still counts as one day: DTE rounds up.
	q.Expiry = q.AsOf.Add(12 * time.Hour)
	if got := q.DTE(); got != 1 {
		t.Errorf("DTE() = %d, want 1", got)
	}
	q.Expiry = q.AsOf.Add(-12 * time.Hour)
	if got := q.DTE(); got != 0 {
		t.Errorf("DTE() past expiry = %d, want 0", got)
	}
	if got := q.TimeToExpiry(); got != 0 {
		t.Errorf("TimeToExpiry() past expiry = %v, want 0", got)
	}
}

func TestOptionQuoteValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*OptionQuote)
	}{
		{"empty underlying", func(q *OptionQuote) { q.Underlying = "" }},
		{"bad type", func(q *OptionQuote) { q.Type = "STRADDLE" }},
		{"zero strike", func(q *OptionQuote) { q.Strike = 0 }},
		{"zero expiry", func(q *OptionQuote) { q.Expiry = time.Time{} }},
		{"zero as-of", func(q *OptionQuote) { q.AsOf = time.Time{} }},
		{"negative bid", func(q *OptionQuote) { q.Bid = -0.05 }},
		{"nan ask", func(q *OptionQuote) { q.Ask = math.NaN() }},
		{"crossed market", func(q *OptionQuote) { q.Bid, q.Ask = 2.60, 2.50 }},
		{"zero underlying price", func(q *OptionQuote) { q.UnderlyingPrice = 0 }},
	}
	if err := func() error { q := validQuote(); return q.Validate() }(); err != nil {
		t.Fatalf("valid quote: %v", err)
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := validQuote()
			tt.mutate(&q)
			if err := q.Validate(); err == nil {
				t.Error("Validate() = nil, want error")
			}
		})
	}
}

func TestVolMethodValid(t *testing.T) {
	for _, m := range []VolMethod{VolStandard, VolParkinson, VolGarmanKlass, VolRogersSatchell} {
		if !m.Valid() {
			t.Errorf("%s.Valid() = false, want true", m)
		}
	}
	if VolMethod("yang_zhang").Valid() {
		t.Error("unknown method reported valid")
	}
}

func TestVolatilityEstimateValidate(t *testing.T) {
	e := VolatilityEstimate{Method: VolStandard, Window: 21, Value: 0.18, Percentile: 42, HasPercentile: true}
	if err := e.Validate(); err != nil {
		t.Fatalf("valid estimate: %v", err)
	}
	e.Percentile = 120
	if err := e.Validate(); err == nil {
		t.Error("out-of-range percentile accepted")
	}
	e.HasPercentile = false
	if err := e.Validate(); err != nil {
		t.Errorf("percentile ignored when absent: %v", err)
	}
	e.Value = math.Inf(1)
	if err := e.Validate(); err == nil {
		t.Error("infinite value accepted")
	}
}

func TestMispricingSignalFailedBecause(t *testing.T) {
	s := MispricingSignal{FailureReasons: []string{"dte_below_min", "premium_below_min"}}
	if !s.FailedBecause("dte_below_min") {
		t.Error("recorded reason not found")
	}
	if s.FailedBecause("spread_too_wide") {
		t.Error("unrecorded reason found")
	}
}

func TestPositionLifecycle(t *testing.T) {
	opened := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
	p := Position{
		ID:              "pos-1",
		Underlying:      "SPY",
		Type:            Put,
		Strike:          580,
		Expiry:          opened.AddDate(0, 0, 30),
		Quantity:        2,
		PremiumReceived: 2.45,
		OpenedAt:        opened,
		Status:          StatusOpen,
	}
	if err := p.Validate(); err != nil {
		t.Fatalf("open position: %v", err)
	}
	if got := p.DTE(opened); got != 30 {
		t.Errorf("DTE() = %d, want 30", got)
	}
	if p.Expired(opened.AddDate(0, 0, 10)) {
		t.Error("Expired() before expiry")
	}
	if !p.Expired(opened.AddDate(0, 0, 31)) {
		t.Error("not Expired() after expiry")
	}
	if got := p.RealizedPnL(); got != 0 {
		t.Errorf("open RealizedPnL() = %v, want 0", got)
	}

	p.Status = StatusClosed
	if err := p.Validate(); err == nil {
		t.Error("closed position without close time accepted")
	}
	p.ClosedAt = opened.AddDate(0, 0, 15)
	p.ClosePrice = 1.20
	if err := p.Validate(); err != nil {
		t.Fatalf("closed position: %v", err)
	}
	// (2.45 - 1.20) * 100 * 2 = 250.
	if got := p.RealizedPnL(); math.Abs(got-250) > 1e-9 {
		t.Errorf("RealizedPnL() = %v, want 250", got)
	}
}

func TestScoredOpportunityValidate(t *testing.T) {
	o := ScoredOpportunity{
		ID:                  "op-1",
		CompositeScore:      72.5,
		ProbabilityOfProfit: 0.75,
		RiskRewardRatio:     236.0,
		MaxLoss:             57755,
		ScannedAt:           time.Date(2025, 6, 2, 16, 0, 0, 0, time.UTC),
	}
	if err := o.Validate(); err != nil {
		t.Fatalf("valid opportunity: %v", err)
	}
	o.CompositeScore = 101
	if err := o.Validate(); err == nil {
		t.Error("score above 100 accepted")
	}
	o.CompositeScore = 50
	o.ProbabilityOfProfit = -0.1
	if err := o.Validate(); err == nil {
		t.Error("negative probability accepted")
	}
}
