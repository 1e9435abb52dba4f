package moneymarket

import (
	"math/big"
	"testing"
)

func TestBorrowAPRKink(t *testing.T) {
	model := NewInterestModel(0.02, 0.1, 1.0, 0.8)

	if got := model.BorrowAPR(big.NewInt(0), big.NewInt(100)); got.Cmp(model.BaseRate) != 0 {
		t.Fatalf("expected base rate at zero utilisation, got %s", got.FloatString(4))
	}
	// 50% utilisation: 0.02 + 0.1*0.5 = 0.07
	half := model.BorrowAPR(big.NewInt(50), big.NewInt(100))
	if f, _ := half.Float64(); f < 0.0699 || f > 0.0701 {
		t.Fatalf("unexpected APR below kink: %f", f)
	}
	// 90% utilisation: 0.02 + 0.1*0.8 + 1.0*0.1 = 0.2
	high := model.BorrowAPR(big.NewInt(90), big.NewInt(100))
	if f, _ := high.Float64(); f < 0.1999 || f > 0.2001 {
		t.Fatalf("unexpected APR above kink: %f", f)
	}
}

func TestStableAPRAddsPremium(t *testing.T) {
	model := NewInterestModel(0.02, 0, 0, 0.8)
	stable := model.StableAPR(big.NewInt(0), big.NewInt(0), 200)
	if f, _ := stable.Float64(); f < 0.0399 || f > 0.0401 {
		t.Fatalf("expected 4%% stable APR, got %f", f)
	}
}

func TestSupplyAPYReserveFactor(t *testing.T) {
	model := NewInterestModel(0.1, 0, 0, 0.8)
	supply := model.SupplyAPY(big.NewInt(50), big.NewInt(100), 5_000)
	// 0.1 * 0.5 * 0.5
	if f, _ := supply.Float64(); f < 0.0249 || f > 0.0251 {
		t.Fatalf("unexpected supply APY %f", f)
	}
	if model.SupplyAPY(big.NewInt(0), big.NewInt(100), 0).Sign() != 0 {
		t.Fatalf("idle reserve must not pay suppliers")
	}
}

func TestRateFactorLinear(t *testing.T) {
	factor := rateFactor(big.NewRat(1, 1), secondsPerYear)
	want := new(big.Int).Mul(ray, big.NewInt(2))
	if factor.Cmp(want) != 0 {
		t.Fatalf("expected factor 2 ray after a year at 100%%, got %s", factor)
	}
	if rateFactor(big.NewRat(1, 10), 0).Cmp(ray) != 0 {
		t.Fatalf("zero delta must be neutral")
	}
}
