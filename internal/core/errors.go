package core

import "github.com/AhmedAmer72/Praesidium-AI/internal/corerrs"

// Stable error kinds for every rejectable condition. The API layer maps
// these to HTTP statuses; callers may only auto-retry the two marked
// retryable below. Precondition failures are surfaced, never swallowed —
// the core does no fallback defaulting for risk or pricing data.
//
// The definitions live in internal/corerrs so that collaborator packages
// (ledger, pricing, solvency) can return them without importing core;
// these re-exports keep the core API and error identity unchanged.
var (
	// ErrInvalidInput: malformed or out-of-range arguments. Caller bug.
	ErrInvalidInput = corerrs.ErrInvalidInput

	// ErrNotFound: missing protocol, policy, or claim reference.
	ErrNotFound = corerrs.ErrNotFound

	// ErrPolicyNotEligible: policy inactive, expired, or already claimed.
	ErrPolicyNotEligible = corerrs.ErrPolicyNotEligible

	// ErrNoActiveTrigger: no active trigger for the protocol, or the
	// submitted trigger type does not match the active one.
	ErrNoActiveTrigger = corerrs.ErrNoActiveTrigger

	// ErrDuplicateClaim: a non-Rejected claim already exists for the policy.
	ErrDuplicateClaim = corerrs.ErrDuplicateClaim

	// ErrCapacityExceeded: issuance or payout blocked by the solvency gate.
	ErrCapacityExceeded = corerrs.ErrCapacityExceeded

	// ErrConcurrencyConflict: CAS failure against the ledger. Safe to
	// retry after re-reading state.
	ErrConcurrencyConflict = corerrs.ErrConcurrencyConflict

	// ErrLedgerUnavailable: ledger collaborator I/O failure. Safe to
	// retry with backoff.
	ErrLedgerUnavailable = corerrs.ErrLedgerUnavailable

	// ErrTransferFailed: payout transfer did not complete. The claim
	// remains in a non-Paid state.
	ErrTransferFailed = corerrs.ErrTransferFailed
)

// Retryable reports whether a caller may retry the operation
// automatically. Everything else requires caller or operator intervention.
func Retryable(err error) bool {
	return corerrs.Retryable(err)
}
