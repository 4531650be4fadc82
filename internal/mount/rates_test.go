package mount

import (
	"testing"
	"time"

	"github.com/chrissnell/remotescope/pkg/mechanical"
)

func TestDefaultRatesValidate(t *testing.T) {
	if err := validateRates(DefaultRates()); err != nil {
		t.Fatalf("default rate table failed validation: %v", err)
	}
}

func TestValidateRatesRejectsGaps(t *testing.T) {
	bad := []Rate{
		{":RC#", 1 * mechanical.ArcMinute, 5 * mechanical.ArcMinute, 100 * time.Millisecond},
		{":RM#", 10 * mechanical.ArcMinute, 360 * mechanical.OneDegree, 500 * time.Millisecond},
	}
	if err := validateRates(bad); err == nil {
		t.Fatal("expected validation error for epsilon exceeding finer tier distance")
	}
	if err := validateRates(nil); err == nil {
		t.Fatal("expected validation error for empty table")
	}
}

func TestRateFor(t *testing.T) {
	rates := DefaultRates()

	tests := []struct {
		delta float64
		want  int
	}{
		{0.0, 0},
		{0.5 * mechanical.ArcMinute, 0},
		{5 * mechanical.ArcMinute, 1},
		{2 * mechanical.OneDegree, 2},
		{7 * mechanical.OneDegree, 3},
		{180 * mechanical.OneDegree, 4},
	}

	for _, tc := range tests {
		got, err := rateFor(rates, tc.delta)
		if err != nil {
			t.Fatalf("rateFor(%v): %v", tc.delta, err)
		}
		if got != tc.want {
			t.Errorf("rateFor(%v) = %d, want %d", tc.delta, got, tc.want)
		}
	}
}

func TestRateForUncovered(t *testing.T) {
	rates := []Rate{
		{":RG#", 1 * mechanical.ArcSecond, 1 * mechanical.OneDegree, 100 * time.Millisecond},
	}
	if _, err := rateFor(rates, 2.0); err == nil {
		t.Fatal("expected error for delta outside all tiers")
	}
}
