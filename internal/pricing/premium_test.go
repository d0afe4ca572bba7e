package pricing_test

import (
	"errors"
	"testing"

	"github.com/AhmedAmer72/Praesidium-AI/internal/core"
	"github.com/AhmedAmer72/Praesidium-AI/internal/pricing"
	"github.com/AhmedAmer72/Praesidium-AI/internal/risk"
)

var aave = risk.Entry{ProtocolID: "aave", RiskScore: 88, PremiumRateBps: 120}

func TestComputePremium(t *testing.T) {
	// 50_000 POL at 1.2% = 600 POL
	premium, err := pricing.ComputePremium(50_000_000_000, aave)
	if err != nil {
		t.Fatal(err)
	}
	if premium != 600_000_000 {
		t.Errorf("got %d, want 600_000_000", premium)
	}
}

func TestComputePremium_InvalidCoverage(t *testing.T) {
	for _, coverage := range []int64{0, -1} {
		_, err := pricing.ComputePremium(coverage, aave)
		if !errors.Is(err, core.ErrInvalidInput) {
			t.Errorf("coverage %d: got %v, want ErrInvalidInput", coverage, err)
		}
	}
}

func TestComputePremium_Monotonic(t *testing.T) {
	// For a fixed risk entry, premium is non-decreasing in coverage.
	prev := int64(-1)
	for _, coverage := range []int64{1, 10, 1_000_000, 5_000_000, 50_000_000_000, 1_000_000_000_000} {
		premium, err := pricing.ComputePremium(coverage, aave)
		if err != nil {
			t.Fatalf("coverage %d: %v", coverage, err)
		}
		if premium < prev {
			t.Errorf("premium decreased: coverage %d -> %d (prev %d)", coverage, premium, prev)
		}
		prev = premium
	}
}

func TestComputePremium_Deterministic(t *testing.T) {
	a, _ := pricing.ComputePremium(12_345_678, aave)
	b, _ := pricing.ComputePremium(12_345_678, aave)
	if a != b {
		t.Errorf("same inputs produced %d and %d", a, b)
	}
}

func TestBuildQuote(t *testing.T) {
	quote, err := pricing.BuildQuote(25_000_000_000, risk.Entry{
		ProtocolID: "curve", RiskScore: 72, PremiumRateBps: 280,
	})
	if err != nil {
		t.Fatal(err)
	}
	if quote.Premium != 700_000_000 {
		t.Errorf("premium: got %d, want 700_000_000", quote.Premium)
	}
	if quote.RiskLevel != risk.LevelMedium {
		t.Errorf("risk level: got %s, want medium", quote.RiskLevel)
	}
}
