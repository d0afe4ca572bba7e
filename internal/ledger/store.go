// Package ledger is the boundary to the external append-only ledger of
// policies, claims, triggers, and pool state.
//
// The engine never keeps an authoritative in-memory copy of anything
// behind this interface: every operation reads fresh state and mutates
// through compare-and-swap or transactional primitives. Two
// implementations exist — MemoryStore for tests and local development,
// PostgresStore for deployment.
package ledger

import (
	"context"

	"github.com/AhmedAmer72/Praesidium-AI/internal/claims"
	fpmath "github.com/AhmedAmer72/Praesidium-AI/internal/math"
	"github.com/AhmedAmer72/Praesidium-AI/internal/policy"
	"github.com/AhmedAmer72/Praesidium-AI/internal/risk"
	"github.com/AhmedAmer72/Praesidium-AI/internal/solvency"
	"github.com/AhmedAmer72/Praesidium-AI/internal/trigger"
)

// Transfer moves a payout to a claimant. Implementations must report
// success and failure distinctly — a failed transfer is a reason to stop
// the claim transition, never to leave it half-applied.
type Transfer interface {
	TransferPayout(ctx context.Context, to string, amount fpmath.Amount) (ref string, err error)
}

// TransferFunc adapts a function to the Transfer interface.
type TransferFunc func(ctx context.Context, to string, amount fpmath.Amount) (string, error)

func (f TransferFunc) TransferPayout(ctx context.Context, to string, amount fpmath.Amount) (string, error) {
	return f(ctx, to, amount)
}

// Store is the ledger collaborator interface consumed by the engine.
//
// Error contract: missing references return core.ErrNotFound, CAS
// mismatches return core.ErrConcurrencyConflict, I/O failures wrap
// core.ErrLedgerUnavailable, and failed payout transfers return
// core.ErrTransferFailed.
type Store interface {
	// ReadPoolSnapshot returns the pool state at the read instant.
	// TotalActiveCoverage counts only unexpired, unclaimed, active
	// policies — expiry is computed at read time, never stored.
	ReadPoolSnapshot(ctx context.Context) (solvency.Snapshot, error)

	// Risk registry, written only by the oracle path.
	ReadRiskEntry(ctx context.Context, protocolID string) (risk.Entry, error)
	WriteRiskEntry(ctx context.Context, entry risk.Entry) error
	ListRiskEntries(ctx context.Context) ([]risk.Entry, error)

	// Trigger registry. WriteTrigger overwrites the protocol's active
	// record (last-writer-wins); deactivation retains history.
	ReadTrigger(ctx context.Context, protocolID string) (trigger.Record, error)
	WriteTrigger(ctx context.Context, rec trigger.Record) error
	TriggerHistory(ctx context.Context, protocolID string) ([]trigger.Record, error)

	// Policies. CreatePolicy assigns the ID and credits the premium to
	// the pool in the same transaction — atomic create, no partial
	// states.
	CreatePolicy(ctx context.Context, p policy.Policy) (policy.Policy, error)
	ReadPolicy(ctx context.Context, id uint64) (policy.Policy, error)
	PoliciesByHolder(ctx context.Context, holder string) ([]policy.Policy, error)

	// Claims.
	RecordClaim(ctx context.Context, c claims.Claim) (claims.Claim, error)
	ReadClaim(ctx context.Context, id uint64) (claims.Claim, error)
	ClaimsByPolicy(ctx context.Context, policyID uint64) ([]claims.Claim, error)
	ClaimsByClaimant(ctx context.Context, claimant string) ([]claims.Claim, error)

	// TransitionClaim is a CAS on claim status: the claim must currently
	// be in from, or core.ErrConcurrencyConflict is returned. reason is
	// recorded on transitions to Rejected.
	TransitionClaim(ctx context.Context, id uint64, from, to claims.Status, reason string) error

	// PayClaim executes the automated payout as one atomic operation:
	// CAS the claim Pending→Paid (modeling Pending→Approved→Paid),
	// transfer the payout, flip policy.claimed, debit the pool, and
	// increment totalClaimsPaid — together or not at all. On transfer
	// failure the claim remains Pending and core.ErrTransferFailed is
	// returned.
	PayClaim(ctx context.Context, claimID uint64) (claims.Claim, error)
}
