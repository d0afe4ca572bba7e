// Package pricing implements the premium calculator.
//
// Pricing is a pure function of the coverage amount and the protocol's
// risk entry. There is no defaulting here: callers must reject before
// invoking when no risk entry exists for the protocol. Substituting a
// hardcoded rate is a presentation-layer convenience that must never
// reach this core.
package pricing

import (
	"fmt"

	core "github.com/AhmedAmer72/Praesidium-AI/internal/corerrs"
	fpmath "github.com/AhmedAmer72/Praesidium-AI/internal/math"
	"github.com/AhmedAmer72/Praesidium-AI/internal/risk"
)

// ComputePremium prices a policy: coverage * premiumRateBps / 10_000,
// computed in fixed point with an int128 intermediate and half-even
// rounding. Deterministic for identical inputs.
func ComputePremium(coverage fpmath.Amount, entry risk.Entry) (fpmath.Amount, error) {
	if coverage <= 0 {
		return 0, fmt.Errorf("%w: coverage amount %d must be positive", core.ErrInvalidInput, coverage)
	}
	if entry.PremiumRateBps < 0 {
		return 0, fmt.Errorf("%w: premium rate %d must be >= 0", core.ErrInvalidInput, entry.PremiumRateBps)
	}
	return fpmath.ApplyBps(coverage, entry.PremiumRateBps), nil
}

// Quote bundles a priced policy request for the API layer.
type Quote struct {
	ProtocolID     string
	CoverageAmount fpmath.Amount
	Premium        fpmath.Amount
	PremiumRateBps int64
	RiskScore      int
	RiskLevel      risk.Level
}

// BuildQuote prices a request and attaches the risk context used.
func BuildQuote(coverage fpmath.Amount, entry risk.Entry) (Quote, error) {
	premium, err := ComputePremium(coverage, entry)
	if err != nil {
		return Quote{}, err
	}
	return Quote{
		ProtocolID:     entry.ProtocolID,
		CoverageAmount: coverage,
		Premium:        premium,
		PremiumRateBps: entry.PremiumRateBps,
		RiskScore:      entry.RiskScore,
		RiskLevel:      entry.Level(),
	}, nil
}
