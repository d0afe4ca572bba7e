package ledger

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/AhmedAmer72/Praesidium-AI/internal/claims"
	core "github.com/AhmedAmer72/Praesidium-AI/internal/corerrs"
	fpmath "github.com/AhmedAmer72/Praesidium-AI/internal/math"
	"github.com/AhmedAmer72/Praesidium-AI/internal/policy"
	"github.com/AhmedAmer72/Praesidium-AI/internal/risk"
	"github.com/AhmedAmer72/Praesidium-AI/internal/solvency"
	"github.com/AhmedAmer72/Praesidium-AI/internal/trigger"
)

// MemoryStore is an in-memory Store for tests and local development.
// A single mutex serializes all mutations, which makes every multi-step
// operation trivially atomic — the property the Postgres implementation
// gets from transactions.
type MemoryStore struct {
	mu sync.Mutex

	poolBalance     fpmath.Amount
	totalClaimsPaid fpmath.Amount

	riskEntries    map[string]risk.Entry
	triggers       map[string]trigger.Record
	triggerHistory map[string][]trigger.Record
	policies       map[uint64]policy.Policy
	claims         map[uint64]claims.Claim

	nextPolicyID uint64
	nextClaimID  uint64

	transfer Transfer
	now      func() time.Time
}

// Compile-time interface check
var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{
		riskEntries:    make(map[string]risk.Entry),
		triggers:       make(map[string]trigger.Record),
		triggerHistory: make(map[string][]trigger.Record),
		policies:       make(map[uint64]policy.Policy),
		claims:         make(map[uint64]claims.Claim),
		nextPolicyID:   1,
		nextClaimID:    1,
		now:            time.Now,
	}
	s.transfer = TransferFunc(func(ctx context.Context, to string, amount fpmath.Amount) (string, error) {
		return uuid.NewString(), nil
	})
	return s
}

// SetTransfer replaces the payout collaborator (tests inject failures).
func (s *MemoryStore) SetTransfer(t Transfer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transfer = t
}

// SetClock replaces the store's clock for deterministic expiry tests.
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// Deposit credits the pool, standing in for the LP deposit flow that an
// external collaborator owns in deployment.
func (s *MemoryStore) Deposit(amount fpmath.Amount) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.poolBalance += amount
}

func (s *MemoryStore) ReadPoolSnapshot(ctx context.Context) (solvency.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked(), nil
}

// snapshotLocked computes active coverage at the read instant: expired,
// claimed, and inactive policies fall out automatically.
func (s *MemoryStore) snapshotLocked() solvency.Snapshot {
	now := s.now()
	var active fpmath.Amount
	for _, p := range s.policies {
		if p.IsEligibleForClaim(now) {
			active += p.CoverageAmount
		}
	}
	return solvency.Snapshot{
		PoolBalance:         s.poolBalance,
		TotalActiveCoverage: active,
		TotalClaimsPaid:     s.totalClaimsPaid,
		AsOf:                now,
	}
}

func (s *MemoryStore) ReadRiskEntry(ctx context.Context, protocolID string) (risk.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.riskEntries[protocolID]
	if !ok {
		return risk.Entry{}, fmt.Errorf("%w: risk entry for protocol %q", core.ErrNotFound, protocolID)
	}
	return entry, nil
}

func (s *MemoryStore) WriteRiskEntry(ctx context.Context, entry risk.Entry) error {
	if err := entry.Validate(); err != nil {
		return fmt.Errorf("%w: %v", core.ErrInvalidInput, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry.UpdatedAt.IsZero() {
		entry.UpdatedAt = s.now()
	}
	s.riskEntries[entry.ProtocolID] = entry
	return nil
}

func (s *MemoryStore) ListRiskEntries(ctx context.Context) ([]risk.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]risk.Entry, 0, len(s.riskEntries))
	for _, e := range s.riskEntries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProtocolID < out[j].ProtocolID })
	return out, nil
}

func (s *MemoryStore) ReadTrigger(ctx context.Context, protocolID string) (trigger.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.triggers[protocolID]
	if !ok {
		return trigger.Record{}, fmt.Errorf("%w: trigger for protocol %q", core.ErrNotFound, protocolID)
	}
	return rec, nil
}

func (s *MemoryStore) WriteTrigger(ctx context.Context, rec trigger.Record) error {
	if err := rec.Validate(); err != nil {
		return fmt.Errorf("%w: %v", core.ErrInvalidInput, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	// Last-writer-wins: the prior record, active or not, moves to history.
	if prev, ok := s.triggers[rec.ProtocolID]; ok {
		s.triggerHistory[rec.ProtocolID] = append(s.triggerHistory[rec.ProtocolID], prev)
	}
	s.triggers[rec.ProtocolID] = rec
	return nil
}

func (s *MemoryStore) TriggerHistory(ctx context.Context, protocolID string) ([]trigger.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	history := s.triggerHistory[protocolID]
	out := make([]trigger.Record, len(history))
	copy(out, history)
	return out, nil
}

func (s *MemoryStore) CreatePolicy(ctx context.Context, p policy.Policy) (policy.Policy, error) {
	if err := p.Validate(); err != nil {
		return policy.Policy{}, fmt.Errorf("%w: %v", core.ErrInvalidInput, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	p.ID = s.nextPolicyID
	s.nextPolicyID++
	p.Version = 1
	s.policies[p.ID] = p

	// Premium is paid up front in the same transaction that establishes
	// coverage; it lands in the pool backing all policies.
	s.poolBalance += p.PremiumPaid

	return p, nil
}

func (s *MemoryStore) ReadPolicy(ctx context.Context, id uint64) (policy.Policy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.policies[id]
	if !ok {
		return policy.Policy{}, fmt.Errorf("%w: policy %d", core.ErrNotFound, id)
	}
	return p, nil
}

func (s *MemoryStore) PoliciesByHolder(ctx context.Context, holder string) ([]policy.Policy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []policy.Policy
	for _, p := range s.policies {
		if p.Holder == holder {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) RecordClaim(ctx context.Context, c claims.Claim) (claims.Claim, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.policies[c.PolicyID]; !ok {
		return claims.Claim{}, fmt.Errorf("%w: policy %d", core.ErrNotFound, c.PolicyID)
	}
	for _, existing := range s.claims {
		if existing.PolicyID == c.PolicyID && existing.Blocks() {
			return claims.Claim{}, fmt.Errorf("%w: open claim %d for policy %d",
				core.ErrDuplicateClaim, existing.ID, c.PolicyID)
		}
	}

	c.ID = s.nextClaimID
	s.nextClaimID++
	s.claims[c.ID] = c
	return c, nil
}

func (s *MemoryStore) ReadClaim(ctx context.Context, id uint64) (claims.Claim, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.claims[id]
	if !ok {
		return claims.Claim{}, fmt.Errorf("%w: claim %d", core.ErrNotFound, id)
	}
	return c, nil
}

func (s *MemoryStore) ClaimsByPolicy(ctx context.Context, policyID uint64) ([]claims.Claim, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []claims.Claim
	for _, c := range s.claims {
		if c.PolicyID == policyID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) ClaimsByClaimant(ctx context.Context, claimant string) ([]claims.Claim, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []claims.Claim
	for _, c := range s.claims {
		if c.Claimant == claimant {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) TransitionClaim(ctx context.Context, id uint64, from, to claims.Status, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.claims[id]
	if !ok {
		return fmt.Errorf("%w: claim %d", core.ErrNotFound, id)
	}
	if c.Status != from {
		return fmt.Errorf("%w: claim %d is %s, expected %s", core.ErrConcurrencyConflict, id, c.Status, from)
	}
	if !from.CanTransitionTo(to) {
		return fmt.Errorf("%w: transition %s -> %s not allowed", core.ErrInvalidInput, from, to)
	}

	c.Status = to
	if to == claims.StatusRejected {
		c.RejectReason = reason
	}
	s.claims[id] = c
	return nil
}

func (s *MemoryStore) PayClaim(ctx context.Context, claimID uint64) (claims.Claim, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.claims[claimID]
	if !ok {
		return claims.Claim{}, fmt.Errorf("%w: claim %d", core.ErrNotFound, claimID)
	}
	if c.Status != claims.StatusPending {
		return claims.Claim{}, fmt.Errorf("%w: claim %d is %s, expected pending", core.ErrConcurrencyConflict, claimID, c.Status)
	}

	p, ok := s.policies[c.PolicyID]
	if !ok {
		return claims.Claim{}, fmt.Errorf("%w: policy %d", core.ErrNotFound, c.PolicyID)
	}

	// Transfer first: if it fails nothing has mutated and the claim
	// stays Pending. The mutex holds until every mutation lands, so the
	// transition and the payout are observed together or not at all.
	ref, err := s.transfer.TransferPayout(ctx, c.Claimant, c.Amount)
	if err != nil {
		return claims.Claim{}, fmt.Errorf("%w: %v", core.ErrTransferFailed, err)
	}

	c.Status = claims.StatusPaid
	c.PayoutTxRef = ref
	s.claims[claimID] = c

	p.Claimed = true
	p.Active = false
	p.Version++
	s.policies[p.ID] = p

	s.poolBalance -= c.Amount
	s.totalClaimsPaid += c.Amount

	return c, nil
}
