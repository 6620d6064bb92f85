package pricing

import (
	"math"
	"testing"

	"github.com/voledgehq/voledge/internal/models"
)

func baseInputs() Inputs {
	return Inputs{Spot: 100, Strike: 100, T: 30.0 / 365.0, Rate: 0.05, Sigma: 0.25}
}

func TestPriceKnownScenario(t *testing.T) {
	// S=100, K=100, T=30/365, r=5%, sigma=25%:
	// d1 = (ln(1) + (0.05 + 0.03125)(0.08219)) / (0.25*0.28669) ~ 0.0932
	// d2 ~ 0.0215, call = 100*N(d1) - 100e^{-rT}*N(d2) ~ 3.06,
	// put = call - S + K*e^{-rT} ~ 2.65.
	in := baseInputs()
	call := Price(models.Call, in)
	put := Price(models.Put, in)

	if math.Abs(call-3.06) > 0.01 {
		t.Errorf("call = %v, want ~ 3.06", call)
	}
	if math.Abs(put-2.65) > 0.01 {
		t.Errorf("put = %v, want ~ 2.65", put)
	}

	// Put-call parity: C - P = S - K*e^{-rT}.
	parity := in.Spot - in.Strike*math.Exp(-in.Rate*in.T)
	if math.Abs((call-put)-parity) > 1e-9 {
		t.Errorf("parity violated: C-P = %v, want %v", call-put, parity)
	}
}

func TestPriceNoArbitrageBounds(t *testing.T) {
	cases := []Inputs{
		{Spot: 100, Strike: 80, T: 0.5, Rate: 0.05, Sigma: 0.4},
		{Spot: 100, Strike: 120, T: 0.1, Rate: 0.02, Sigma: 0.15},
		{Spot: 50, Strike: 50, T: 1.0, Rate: 0.0, Sigma: 0.8},
	}
	for _, in := range cases {
		call := Price(models.Call, in)
		put := Price(models.Put, in)
		discK := in.Strike * math.Exp(-in.Rate*in.T)

		if call < math.Max(in.Spot-discK, 0)-1e-9 || call > in.Spot+1e-9 {
			t.Errorf("call %v outside [max(S-Ke^{-rT},0), S] for %+v", call, in)
		}
		if put < math.Max(discK-in.Spot, 0)-1e-9 || put > discK+1e-9 {
			t.Errorf("put %v outside [max(Ke^{-rT}-S,0), Ke^{-rT}] for %+v", put, in)
		}
	}
}

func TestPriceMonotoneInVol(t *testing.T) {
	in := baseInputs()
	prev := -1.0
	for sigma := 0.05; sigma <= 3.0; sigma += 0.05 {
		in.Sigma = sigma
		p := Price(models.Call, in)
		if p <= prev {
			t.Fatalf("price not increasing at sigma=%v: %v <= %v", sigma, p, prev)
		}
		prev = p
	}
}

func TestPriceExpired(t *testing.T) {
	in := Inputs{Spot: 105, Strike: 100, T: 0, Rate: 0.05, Sigma: 0.25}
	if got := Price(models.Call, in); got != 5 {
		t.Errorf("expired ITM call = %v, want 5", got)
	}
	if got := Price(models.Put, in); got != 0 {
		t.Errorf("expired OTM put = %v, want 0", got)
	}
	in.T = -0.01
	if got := Price(models.Call, in); got != 5 {
		t.Errorf("negative T call = %v, want 5", got)
	}
}

func TestPriceZeroSigmaFloored(t *testing.T) {
	in := baseInputs()
	in.Sigma = 0
	p := Price(models.Call, in)
	// Near-deterministic limit: call worth ~ max(S - Ke^{-rT}, 0).
	want := math.Max(in.Spot-in.Strike*math.Exp(-in.Rate*in.T), 0)
	if math.IsNaN(p) || math.Abs(p-want) > 0.01 {
		t.Errorf("zero-sigma call = %v, want ~ %v", p, want)
	}
}

func TestGreeksScenario(t *testing.T) {
	in := baseInputs()
	call := Greeks(models.Call, in)
	put := Greeks(models.Put, in)

	if math.Abs(call.Delta-0.537) > 0.01 {
		t.Errorf("call delta = %v, want ~ 0.537", call.Delta)
	}
	// Put delta = call delta - 1.
	if math.Abs(put.Delta-(call.Delta-1)) > 1e-12 {
		t.Errorf("put delta = %v, want %v", put.Delta, call.Delta-1)
	}
	if call.Gamma != put.Gamma {
		t.Errorf("gamma differs across types: %v vs %v", call.Gamma, put.Gamma)
	}
	if call.Gamma <= 0 {
		t.Errorf("gamma = %v, want positive", call.Gamma)
	}
	if call.Vega != put.Vega || call.Vega <= 0 {
		t.Errorf("vega call=%v put=%v, want equal and positive", call.Vega, put.Vega)
	}
	// Short-dated ATM options decay: theta negative for both sides here.
	if call.Theta >= 0 || put.Theta >= 0 {
		t.Errorf("theta call=%v put=%v, want both negative", call.Theta, put.Theta)
	}
	if call.Rho <= 0 || put.Rho >= 0 {
		t.Errorf("rho call=%v put=%v, want call positive and put negative", call.Rho, put.Rho)
	}
}

func TestGreeksDeltaBounds(t *testing.T) {
	in := baseInputs()
	for _, strike := range []float64{40, 80, 100, 120, 250} {
		in.Strike = strike
		cd := Greeks(models.Call, in).Delta
		pd := Greeks(models.Put, in).Delta
		if cd < 0 || cd > 1 {
			t.Errorf("call delta %v outside [0,1] at K=%v", cd, strike)
		}
		if pd < -1 || pd > 0 {
			t.Errorf("put delta %v outside [-1,0] at K=%v", pd, strike)
		}
	}
}

func TestGreeksExpired(t *testing.T) {
	in := Inputs{Spot: 105, Strike: 100, T: 0, Rate: 0.05, Sigma: 0.25}
	res := Greeks(models.Call, in)
	if res.TheoreticalPrice != 5 || res.Delta != 1 {
		t.Errorf("expired ITM call: price=%v delta=%v, want 5 and 1", res.TheoreticalPrice, res.Delta)
	}
	if res.Gamma != 0 || res.Theta != 0 || res.Vega != 0 || res.Rho != 0 {
		t.Errorf("expired greeks nonzero: %+v", res)
	}
	put := Greeks(models.Put, in)
	if put.Delta != 0 {
		t.Errorf("expired OTM put delta = %v, want 0", put.Delta)
	}
	in.Spot = 95
	if got := Greeks(models.Put, in).Delta; got != -1 {
		t.Errorf("expired ITM put delta = %v, want -1", got)
	}
}

func TestImpliedVolRoundTrip(t *testing.T) {
	in := Inputs{Spot: 100, Strike: 95, T: 45.0 / 365.0, Rate: 0.05}
	for _, typ := range []models.OptionType{models.Call, models.Put} {
		for sigma := 0.05; sigma <= 3.0; sigma += 0.05 {
			in.Sigma = sigma
			target := Price(typ, in)
			got, ok := ImpliedVol(typ, in, target)
			if !ok {
				t.Fatalf("%s sigma=%v: solver failed", typ, sigma)
			}
			if math.Abs(got-sigma) > 1e-3 {
				t.Errorf("%s round-trip at sigma=%v: got %v", typ, sigma, got)
			}
			// The recovered sigma must reproduce the quote within the solver
			// tolerance regardless of how flat vega is at this point.
			in.Sigma = got
			if diff := math.Abs(Price(typ, in) - target); diff > 2e-5 {
				t.Errorf("%s reprice at sigma=%v off by %v", typ, sigma, diff)
			}
			in.Sigma = sigma
		}
	}
}

func TestImpliedVolUnsolvable(t *testing.T) {
	in := baseInputs()

	// Below the sigma=MinVol price.
	if _, ok := ImpliedVol(models.Call, in, 0.0001); ok {
		t.Error("sub-minimum price solved")
	}
	// Above the sigma=MaxVol price.
	if _, ok := ImpliedVol(models.Call, in, in.Spot*2); ok {
		t.Error("super-maximum price solved")
	}
	if _, ok := ImpliedVol(models.Call, in, 0); ok {
		t.Error("zero price solved")
	}
	if _, ok := ImpliedVol(models.Call, in, -1); ok {
		t.Error("negative price solved")
	}
	in.T = 0
	if _, ok := ImpliedVol(models.Call, in, 2.0); ok {
		t.Error("expired contract solved")
	}
}

func TestImpliedVolDeepOTM(t *testing.T) {
	// Deep OTM with a real model price: Newton's flat-vega region must still
	// land on the answer via the bisection fallback if needed.
	in := Inputs{Spot: 100, Strike: 150, T: 20.0 / 365.0, Rate: 0.05, Sigma: 0.6}
	target := Price(models.Call, in)
	got, ok := ImpliedVol(models.Call, in, target)
	if !ok {
		t.Fatal("deep OTM quote not solved")
	}
	if math.Abs(got-0.6) > 1e-3 {
		t.Errorf("deep OTM IV = %v, want ~ 0.6", got)
	}
}
