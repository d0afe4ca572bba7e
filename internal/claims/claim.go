// Package claims defines the claim record and its state machine.
//
// Transitions: Pending → Approved → Paid, or Pending → Rejected.
// Rejected and Paid are terminal. The automated fast path pays a claim as
// a single atomic Pending→Approved→Paid ledger transaction; Approved is a
// modeled intermediate, not a resting state the automated path leaves a
// claim in.
package claims

import (
	"fmt"
	"time"

	fpmath "github.com/AhmedAmer72/Praesidium-AI/internal/math"
	"github.com/AhmedAmer72/Praesidium-AI/internal/trigger"
)

// Status is the claim lifecycle state.
type Status int32

const (
	StatusPending Status = iota
	StatusApproved
	StatusRejected
	StatusPaid
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusApproved:
		return "approved"
	case StatusRejected:
		return "rejected"
	case StatusPaid:
		return "paid"
	default:
		return fmt.Sprintf("unknown(%d)", int32(s))
	}
}

// ParseStatus converts the wire name back to a Status.
func ParseStatus(s string) (Status, error) {
	switch s {
	case "pending":
		return StatusPending, nil
	case "approved":
		return StatusApproved, nil
	case "rejected":
		return StatusRejected, nil
	case "paid":
		return StatusPaid, nil
	default:
		return 0, fmt.Errorf("unknown claim status %q", s)
	}
}

// Terminal reports whether no further transition is allowed.
func (s Status) Terminal() bool {
	return s == StatusRejected || s == StatusPaid
}

// CanTransitionTo enforces the state machine. No transition skips a
// state.
func (s Status) CanTransitionTo(to Status) bool {
	switch s {
	case StatusPending:
		return to == StatusApproved || to == StatusRejected
	case StatusApproved:
		return to == StatusPaid
	default:
		return false
	}
}

// Claim is a payout request against a policy. Amount is always the
// policy's full coverage — partial claims are not modeled.
type Claim struct {
	ID          uint64
	PolicyID    uint64
	Claimant    string
	Amount      fpmath.Amount
	TriggerType trigger.Type
	SubmittedAt time.Time
	Status      Status

	// Evidence is optional claimant-supplied context; the parametric
	// check never depends on it.
	Evidence string

	// RejectReason records why a claim left Pending without payout.
	RejectReason string

	// PayoutTxRef is the ledger transfer reference, set when Paid.
	PayoutTxRef string
}

// Blocks reports whether this claim prevents another submission for the
// same policy. A Rejected claim does not block resubmission.
func (c *Claim) Blocks() bool {
	return c.Status != StatusRejected
}
