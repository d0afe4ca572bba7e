package corerrs

import "errors"

// Stable error kinds for every rejectable condition. The API layer maps
// these to HTTP statuses; callers may only auto-retry the two marked
// retryable below. Precondition failures are surfaced, never swallowed —
// the core does no fallback defaulting for risk or pricing data.
var (
	// ErrInvalidInput: malformed or out-of-range arguments. Caller bug.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotFound: missing protocol, policy, or claim reference.
	ErrNotFound = errors.New("not found")

	// ErrPolicyNotEligible: policy inactive, expired, or already claimed.
	ErrPolicyNotEligible = errors.New("policy not eligible")

	// ErrNoActiveTrigger: no active trigger for the protocol, or the
	// submitted trigger type does not match the active one.
	ErrNoActiveTrigger = errors.New("no active trigger")

	// ErrDuplicateClaim: a non-Rejected claim already exists for the policy.
	ErrDuplicateClaim = errors.New("duplicate claim")

	// ErrCapacityExceeded: issuance or payout blocked by the solvency gate.
	ErrCapacityExceeded = errors.New("capacity exceeded")

	// ErrConcurrencyConflict: CAS failure against the ledger. Safe to
	// retry after re-reading state.
	ErrConcurrencyConflict = errors.New("concurrency conflict")

	// ErrLedgerUnavailable: ledger collaborator I/O failure. Safe to
	// retry with backoff.
	ErrLedgerUnavailable = errors.New("ledger unavailable")

	// ErrTransferFailed: payout transfer did not complete. The claim
	// remains in a non-Paid state.
	ErrTransferFailed = errors.New("transfer failed")
)

// Retryable reports whether a caller may retry the operation
// automatically. Everything else requires caller or operator intervention.
func Retryable(err error) bool {
	return errors.Is(err, ErrConcurrencyConflict) || errors.Is(err, ErrLedgerUnavailable)
}
