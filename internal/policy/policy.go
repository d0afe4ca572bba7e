// Package policy models the insurance policy lifecycle.
//
// A policy is created once at purchase with the premium fully paid in the
// same transaction. Expiry is computed on read — there is no scheduled
// "expire" mutation. The claimed flag is monotonic: it flips false→true
// exactly once, on payout, and only the claims path may flip it.
package policy

import (
	"fmt"
	"time"

	fpmath "github.com/AhmedAmer72/Praesidium-AI/internal/math"
)

// Policy is the ledger's record of purchased coverage.
type Policy struct {
	ID             uint64
	Holder         string
	PremiumPaid    fpmath.Amount
	CoverageAmount fpmath.Amount
	ProtocolID     string
	CreatedAt      time.Time
	ExpiresAt      time.Time
	Active         bool
	Claimed        bool

	// Version guards compare-and-swap writes against the ledger.
	Version int64
}

// DisplayStatus is the derived lifecycle label for read surfaces.
type DisplayStatus string

const (
	DisplayActive  DisplayStatus = "active"
	DisplayExpired DisplayStatus = "expired"
	DisplayClaimed DisplayStatus = "claimed"
)

// Expired reports whether the policy has lapsed at the given instant.
// The active flag alone is never trusted without this check.
func (p *Policy) Expired(now time.Time) bool {
	return !now.Before(p.ExpiresAt)
}

// IsEligibleForClaim is the single shared eligibility predicate used by
// both claim submission and automatic processing, so the two paths can
// never diverge: active, unclaimed, and unexpired.
func (p *Policy) IsEligibleForClaim(now time.Time) bool {
	return p.Active && !p.Claimed && !p.Expired(now)
}

// Status derives the display status at the given instant.
func (p *Policy) Status(now time.Time) DisplayStatus {
	switch {
	case p.Claimed:
		return DisplayClaimed
	case !p.Active || p.Expired(now):
		return DisplayExpired
	default:
		return DisplayActive
	}
}

// Validate checks the invariants of a newly created policy.
func (p *Policy) Validate() error {
	if p.Holder == "" {
		return fmt.Errorf("empty holder")
	}
	if p.ProtocolID == "" {
		return fmt.Errorf("empty protocol id")
	}
	if p.CoverageAmount <= 0 {
		return fmt.Errorf("coverage amount %d must be positive", p.CoverageAmount)
	}
	if p.PremiumPaid < 0 {
		return fmt.Errorf("premium %d must be >= 0", p.PremiumPaid)
	}
	if !p.ExpiresAt.After(p.CreatedAt) {
		return fmt.Errorf("expiry %s not after creation %s", p.ExpiresAt, p.CreatedAt)
	}
	return nil
}
