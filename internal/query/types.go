package query

import (
	fpmath "github.com/AhmedAmer72/Praesidium-AI/internal/math"
	"github.com/AhmedAmer72/Praesidium-AI/internal/risk"
)

// PolicyView is the read-model shape of a policy for API responses.
type PolicyView struct {
	ID             uint64        `json:"id"`
	Holder         string        `json:"holder"`
	ProtocolID     string        `json:"protocol_id"`
	PremiumPaid    fpmath.Amount `json:"premium_paid"`
	CoverageAmount fpmath.Amount `json:"coverage_amount"`
	CreatedAt      int64         `json:"created_at_us"`
	ExpiresAt      int64         `json:"expires_at_us"`
	Status         string        `json:"status"`
}

// ClaimView is the read-model shape of a claim for API responses.
type ClaimView struct {
	ID           uint64        `json:"id"`
	PolicyID     uint64        `json:"policy_id"`
	Claimant     string        `json:"claimant"`
	Amount       fpmath.Amount `json:"amount"`
	TriggerType  string        `json:"trigger_type"`
	SubmittedAt  int64         `json:"submitted_at_us"`
	Status       string        `json:"status"`
	Evidence     string        `json:"evidence,omitempty"`
	RejectReason string        `json:"reject_reason,omitempty"`
	PayoutTxRef  string        `json:"payout_tx_ref,omitempty"`
}

// ProtocolMetrics aggregates a protocol's book at query time.
type ProtocolMetrics struct {
	ProtocolID      string        `json:"protocol_id"`
	RiskScore       int           `json:"risk_score"`
	RiskLevel       risk.Level    `json:"risk_level"`
	PremiumRateBps  int64         `json:"premium_rate_bps"`
	TotalPremiums   fpmath.Amount `json:"total_premiums"`
	TotalCoverage   fpmath.Amount `json:"total_coverage"`
	TotalClaimsPaid fpmath.Amount `json:"total_claims_paid"`
	PolicyCount     int64         `json:"policy_count"`
	ActivePolicies  int64         `json:"active_policies"`
	ClaimCount      int64         `json:"claim_count"`
	PaidClaims      int64         `json:"paid_claims"`
	// LossRatio is claims paid / premiums collected, ratio-scaled.
	// Zero when no premiums have been collected.
	LossRatio int64 `json:"loss_ratio"`
}
