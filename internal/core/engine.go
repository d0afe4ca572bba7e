package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/AhmedAmer72/Praesidium-AI/internal/claims"
	"github.com/AhmedAmer72/Praesidium-AI/internal/ledger"
	fpmath "github.com/AhmedAmer72/Praesidium-AI/internal/math"
	"github.com/AhmedAmer72/Praesidium-AI/internal/observability"
	"github.com/AhmedAmer72/Praesidium-AI/internal/policy"
	"github.com/AhmedAmer72/Praesidium-AI/internal/pricing"
	"github.com/AhmedAmer72/Praesidium-AI/internal/risk"
	"github.com/AhmedAmer72/Praesidium-AI/internal/solvency"
	"github.com/AhmedAmer72/Praesidium-AI/internal/trigger"
)

// Engine is the request-scoped coordinator for pricing, solvency,
// policy, and claims operations. It holds no mutable domain state of its
// own — every read goes fresh to the ledger, and every multi-step write
// is a single atomic ledger primitive. No background goroutines.
type Engine struct {
	store        ledger.Store
	reserveRatio int64
	metrics      *observability.Metrics
	log          zerolog.Logger

	now func() time.Time
}

func NewEngine(store ledger.Store, reserveRatio int64, metrics *observability.Metrics, log zerolog.Logger) (*Engine, error) {
	if reserveRatio <= fpmath.RatioScale {
		return nil, fmt.Errorf("%w: target reserve ratio %d must exceed 1.0", ErrInvalidInput, reserveRatio)
	}
	return &Engine{
		store:        store,
		reserveRatio: reserveRatio,
		metrics:      metrics,
		log:          log,
		now:          time.Now,
	}, nil
}

// SetClock replaces the engine's clock for deterministic tests.
func (e *Engine) SetClock(now func() time.Time) {
	e.now = now
}

// QuotePremium prices coverage against the protocol's current risk entry.
// A missing entry is ErrNotFound — never a defaulted rate.
func (e *Engine) QuotePremium(ctx context.Context, protocolID string, coverage fpmath.Amount) (pricing.Quote, error) {
	entry, err := e.store.ReadRiskEntry(ctx, protocolID)
	if err != nil {
		return pricing.Quote{}, err
	}
	return pricing.BuildQuote(coverage, entry)
}

// CreatePolicyRequest is the input to policy issuance.
type CreatePolicyRequest struct {
	Holder     string
	ProtocolID string
	Coverage   fpmath.Amount
	Duration   time.Duration
}

// CreatePolicy issues coverage: risk entry must exist, the issuance gate
// must pass against a fresh pool snapshot, and the policy commits
// atomically with its premium.
func (e *Engine) CreatePolicy(ctx context.Context, req CreatePolicyRequest) (policy.Policy, error) {
	if req.Holder == "" {
		return policy.Policy{}, fmt.Errorf("%w: empty holder", ErrInvalidInput)
	}
	if req.Coverage <= 0 {
		return policy.Policy{}, fmt.Errorf("%w: coverage %d must be positive", ErrInvalidInput, req.Coverage)
	}
	if req.Duration <= 0 {
		return policy.Policy{}, fmt.Errorf("%w: duration %s must be positive", ErrInvalidInput, req.Duration)
	}

	entry, err := e.store.ReadRiskEntry(ctx, req.ProtocolID)
	if err != nil {
		e.countPolicyRejected(req.ProtocolID, "no_risk_entry", err)
		return policy.Policy{}, err
	}

	premium, err := pricing.ComputePremium(req.Coverage, entry)
	if err != nil {
		e.countPolicyRejected(req.ProtocolID, "pricing", err)
		return policy.Policy{}, err
	}

	snap, err := e.store.ReadPoolSnapshot(ctx)
	if err != nil {
		return policy.Policy{}, err
	}
	if err := solvency.CheckIssuance(snap, e.reserveRatio, req.Coverage); err != nil {
		e.countPolicyRejected(req.ProtocolID, "capacity", err)
		e.countCapacityCheck("issuance", "rejected")
		return policy.Policy{}, err
	}
	e.countCapacityCheck("issuance", "allowed")

	now := e.now().UTC()
	p := policy.Policy{
		Holder:         req.Holder,
		PremiumPaid:    premium,
		CoverageAmount: req.Coverage,
		ProtocolID:     req.ProtocolID,
		CreatedAt:      now,
		ExpiresAt:      now.Add(req.Duration),
		Active:         true,
	}

	created, err := e.store.CreatePolicy(ctx, p)
	if err != nil {
		return policy.Policy{}, err
	}

	if e.metrics != nil {
		e.metrics.PoliciesCreated.WithLabelValues(req.ProtocolID).Inc()
		e.metrics.PremiumsCollected.WithLabelValues(req.ProtocolID).Add(float64(premium))
	}
	e.log.Info().
		Uint64("policy_id", created.ID).
		Str("protocol", created.ProtocolID).
		Int64("coverage", int64(created.CoverageAmount)).
		Int64("premium", int64(created.PremiumPaid)).
		Time("expires_at", created.ExpiresAt).
		Msg("policy issued")

	return created, nil
}

// GetCapacity computes the capacity report from a fresh pool snapshot and
// publishes the solvency gauges.
func (e *Engine) GetCapacity(ctx context.Context) (solvency.CapacityReport, error) {
	snap, err := e.store.ReadPoolSnapshot(ctx)
	if err != nil {
		return solvency.CapacityReport{}, err
	}
	report, err := solvency.ComputeCapacity(snap, e.reserveRatio)
	if err != nil {
		return solvency.CapacityReport{}, err
	}
	if e.metrics != nil {
		e.metrics.ObservePool(int64(snap.PoolBalance), report.Utilization, string(report.Status))
		e.metrics.ActiveCoverage.Set(float64(snap.TotalActiveCoverage))
	}
	return report, nil
}

// UpdateRiskEntry applies an oracle or admin update to the risk registry
// and reports significant score movement.
func (e *Engine) UpdateRiskEntry(ctx context.Context, entry risk.Entry) (risk.ScoreChange, error) {
	if err := entry.Validate(); err != nil {
		return risk.ScoreChange{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	var change risk.ScoreChange
	prev, err := e.store.ReadRiskEntry(ctx, entry.ProtocolID)
	switch {
	case err == nil:
		change = risk.DetectScoreChange(prev, entry)
	case errors.Is(err, ErrNotFound):
		// First sighting of this protocol.
		change = risk.ScoreChange{ProtocolID: entry.ProtocolID, NewScore: entry.RiskScore}
	default:
		return risk.ScoreChange{}, err
	}

	if err := e.store.WriteRiskEntry(ctx, entry); err != nil {
		return risk.ScoreChange{}, err
	}

	if e.metrics != nil {
		e.metrics.RiskUpdatesApplied.WithLabelValues(entry.ProtocolID).Inc()
		if change.Significant {
			direction := "up"
			if change.Delta < 0 {
				direction = "down"
			}
			e.metrics.SignificantScoreMoves.WithLabelValues(entry.ProtocolID, direction).Inc()
		}
	}
	if change.Significant {
		e.log.Warn().
			Str("protocol", entry.ProtocolID).
			Int("old_score", change.OldScore).
			Int("new_score", change.NewScore).
			Int("delta", change.Delta).
			Msg("significant risk score movement")
	}
	return change, nil
}

// ActivateTrigger records an active trigger for the protocol. A prior
// record of any state is overwritten and preserved in history.
func (e *Engine) ActivateTrigger(ctx context.Context, protocolID string, t trigger.Type, severity int) (trigger.Record, error) {
	rec := trigger.Record{
		ProtocolID:  protocolID,
		Active:      true,
		Type:        t,
		Severity:    severity,
		ActivatedAt: e.now().UTC(),
	}
	if err := rec.Validate(); err != nil {
		return trigger.Record{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if err := e.store.WriteTrigger(ctx, rec); err != nil {
		return trigger.Record{}, err
	}
	if e.metrics != nil {
		e.metrics.TriggerActivations.WithLabelValues(t.String()).Inc()
	}
	e.log.Warn().
		Str("protocol", protocolID).
		Str("trigger_type", t.String()).
		Int("severity", severity).
		Msg("trigger activated")
	return rec, nil
}

// DeactivateTrigger clears the protocol's trigger. Deactivating a
// protocol with no trigger is ErrNotFound; deactivating an already
// inactive one is a no-op.
func (e *Engine) DeactivateTrigger(ctx context.Context, protocolID string) (trigger.Record, error) {
	rec, err := e.store.ReadTrigger(ctx, protocolID)
	if err != nil {
		return trigger.Record{}, err
	}
	if !rec.Active {
		return rec, nil
	}

	rec.Active = false
	rec.DeactivatedAt = e.now().UTC()
	if err := e.store.WriteTrigger(ctx, rec); err != nil {
		return trigger.Record{}, err
	}
	if e.metrics != nil {
		e.metrics.TriggerDeactivations.WithLabelValues(rec.Type.String()).Inc()
	}
	e.log.Info().
		Str("protocol", protocolID).
		Str("trigger_type", rec.Type.String()).
		Msg("trigger deactivated")
	return rec, nil
}

// TriggerStatus is a pure read of the protocol's trigger record.
func (e *Engine) TriggerStatus(ctx context.Context, protocolID string) (trigger.Record, error) {
	return e.store.ReadTrigger(ctx, protocolID)
}

// SubmitClaimRequest is the input to claim submission. The claim amount
// is always the policy's full coverage.
type SubmitClaimRequest struct {
	PolicyID    uint64
	TriggerType trigger.Type
	Evidence    string
}

// SubmitClaim validates the claim preconditions in a fixed order and
// records a Pending claim. The order matters: each check only runs once
// every prior one has passed, so the caller always sees the first
// failing condition.
func (e *Engine) SubmitClaim(ctx context.Context, req SubmitClaimRequest) (claims.Claim, error) {
	p, err := e.store.ReadPolicy(ctx, req.PolicyID)
	if err != nil {
		return claims.Claim{}, err
	}

	now := e.now().UTC()
	if !p.Active {
		e.countClaimRejected("policy_inactive")
		return claims.Claim{}, fmt.Errorf("%w: policy %d is not active", ErrPolicyNotEligible, p.ID)
	}
	if p.Claimed {
		e.countClaimRejected("policy_claimed")
		return claims.Claim{}, fmt.Errorf("%w: policy %d already claimed", ErrPolicyNotEligible, p.ID)
	}
	if p.Expired(now) {
		e.countClaimRejected("policy_expired")
		return claims.Claim{}, fmt.Errorf("%w: policy %d expired at %s", ErrPolicyNotEligible, p.ID, p.ExpiresAt.Format(time.RFC3339))
	}

	if err := e.requireActiveTrigger(ctx, p.ProtocolID, req.TriggerType); err != nil {
		e.countClaimRejected("no_active_trigger")
		return claims.Claim{}, err
	}

	existing, err := e.store.ClaimsByPolicy(ctx, p.ID)
	if err != nil {
		return claims.Claim{}, err
	}
	for _, c := range existing {
		if c.Blocks() {
			e.countClaimRejected("duplicate")
			return claims.Claim{}, fmt.Errorf("%w: claim %d for policy %d is %s", ErrDuplicateClaim, c.ID, p.ID, c.Status)
		}
	}

	c := claims.Claim{
		PolicyID:    p.ID,
		Claimant:    p.Holder,
		Amount:      p.CoverageAmount,
		TriggerType: req.TriggerType,
		SubmittedAt: now,
		Status:      claims.StatusPending,
		Evidence:    req.Evidence,
	}
	recorded, err := e.store.RecordClaim(ctx, c)
	if err != nil {
		return claims.Claim{}, err
	}

	if e.metrics != nil {
		e.metrics.ClaimsSubmitted.WithLabelValues(req.TriggerType.String()).Inc()
	}
	e.log.Info().
		Uint64("claim_id", recorded.ID).
		Uint64("policy_id", p.ID).
		Str("trigger_type", req.TriggerType.String()).
		Int64("amount", int64(recorded.Amount)).
		Msg("claim submitted")

	return recorded, nil
}

// requireActiveTrigger checks that the protocol currently has an active
// trigger of the claimed type. Missing, inactive, and mismatched all
// collapse to ErrNoActiveTrigger; the detail survives in the message.
func (e *Engine) requireActiveTrigger(ctx context.Context, protocolID string, t trigger.Type) error {
	rec, err := e.store.ReadTrigger(ctx, protocolID)
	if errors.Is(err, ErrNotFound) {
		return fmt.Errorf("%w: no trigger recorded for protocol %q", ErrNoActiveTrigger, protocolID)
	}
	if err != nil {
		return err
	}
	if !rec.Active {
		return fmt.Errorf("%w: trigger for protocol %q is not active", ErrNoActiveTrigger, protocolID)
	}
	if rec.Type != t {
		return fmt.Errorf("%w: active trigger is %s, claim cites %s", ErrNoActiveTrigger, rec.Type, t)
	}
	return nil
}

// Outcome labels the result of automated claim processing.
type Outcome string

const (
	OutcomePaid     Outcome = "paid"
	OutcomeRejected Outcome = "rejected"
	OutcomeNoOp     Outcome = "noop"
)

// Result reports what automated processing did with a claim.
type Result struct {
	Claim   claims.Claim
	Outcome Outcome
	NoOp    bool
	// Reason is set when Outcome is rejected.
	Reason string
}

// ProcessClaimAutomatically re-validates a Pending claim against fresh
// state and either pays it in one atomic ledger transaction or rejects
// it with the recorded reason. Processing a claim that is no longer
// Pending is a no-op, not an error — the operation is idempotent.
func (e *Engine) ProcessClaimAutomatically(ctx context.Context, claimID uint64) (Result, error) {
	start := time.Now()
	res, err := e.processClaim(ctx, claimID)
	if e.metrics != nil {
		e.metrics.ClaimProcessDuration.Observe(time.Since(start).Seconds())
	}
	return res, err
}

func (e *Engine) processClaim(ctx context.Context, claimID uint64) (Result, error) {
	c, err := e.store.ReadClaim(ctx, claimID)
	if err != nil {
		return Result{}, err
	}
	if c.Status != claims.StatusPending {
		e.log.Debug().
			Uint64("claim_id", claimID).
			Str("status", c.Status.String()).
			Msg("claim already settled, skipping")
		return Result{Claim: c, Outcome: OutcomeNoOp, NoOp: true}, nil
	}

	p, err := e.store.ReadPolicy(ctx, c.PolicyID)
	if err != nil {
		return Result{}, err
	}

	// Re-validate everything submission checked: conditions may have
	// changed between submission and processing.
	now := e.now().UTC()
	if !p.IsEligibleForClaim(now) {
		return e.rejectPending(ctx, c, fmt.Sprintf("policy %d not eligible: status %s", p.ID, p.Status(now)))
	}
	if err := e.requireActiveTrigger(ctx, p.ProtocolID, c.TriggerType); err != nil {
		if errors.Is(err, ErrNoActiveTrigger) {
			return e.rejectPending(ctx, c, err.Error())
		}
		return Result{}, err
	}

	snap, err := e.store.ReadPoolSnapshot(ctx)
	if err != nil {
		return Result{}, err
	}
	if err := solvency.CheckPayout(snap, c.Amount); err != nil {
		if errors.Is(err, ErrCapacityExceeded) {
			e.countCapacityCheck("payout", "rejected")
			return e.rejectPending(ctx, c, err.Error())
		}
		return Result{}, err
	}
	e.countCapacityCheck("payout", "allowed")

	paid, err := e.store.PayClaim(ctx, claimID)
	if err != nil {
		if errors.Is(err, ErrTransferFailed) && e.metrics != nil {
			e.metrics.TransferFailures.Inc()
		}
		if errors.Is(err, ErrConcurrencyConflict) {
			// Another processor settled it between our read and the pay.
			settled, readErr := e.store.ReadClaim(ctx, claimID)
			if readErr == nil && settled.Status != claims.StatusPending {
				return Result{Claim: settled, Outcome: OutcomeNoOp, NoOp: true}, nil
			}
		}
		return Result{}, err
	}

	if e.metrics != nil {
		e.metrics.ClaimsPaid.WithLabelValues(paid.TriggerType.String()).Inc()
		e.metrics.ClaimPayoutTotal.WithLabelValues(paid.TriggerType.String()).Add(float64(paid.Amount))
	}
	e.log.Info().
		Uint64("claim_id", paid.ID).
		Uint64("policy_id", paid.PolicyID).
		Int64("amount", int64(paid.Amount)).
		Str("transfer_ref", paid.PayoutTxRef).
		Msg("claim paid")

	return Result{Claim: paid, Outcome: OutcomePaid}, nil
}

// rejectPending CAS-transitions a claim from Pending to Rejected. A CAS
// miss means a concurrent processor settled the claim first; that
// surfaces as a no-op, matching the idempotency contract.
func (e *Engine) rejectPending(ctx context.Context, c claims.Claim, reason string) (Result, error) {
	err := e.store.TransitionClaim(ctx, c.ID, claims.StatusPending, claims.StatusRejected, reason)
	if errors.Is(err, ErrConcurrencyConflict) {
		settled, readErr := e.store.ReadClaim(ctx, c.ID)
		if readErr == nil && settled.Status != claims.StatusPending {
			return Result{Claim: settled, Outcome: OutcomeNoOp, NoOp: true}, nil
		}
		return Result{}, err
	}
	if err != nil {
		return Result{}, err
	}

	e.countClaimRejected("processing")
	e.log.Info().
		Uint64("claim_id", c.ID).
		Str("reason", reason).
		Msg("claim rejected")

	rejected, err := e.store.ReadClaim(ctx, c.ID)
	if err != nil {
		return Result{}, err
	}
	return Result{Claim: rejected, Outcome: OutcomeRejected, Reason: reason}, nil
}

// RejectClaim is the operator rejection path. Rejecting a claim that is
// already Rejected is a no-op; any other non-Pending state is a
// concurrency conflict surfaced by the CAS.
func (e *Engine) RejectClaim(ctx context.Context, claimID uint64, reason string) (claims.Claim, error) {
	c, err := e.store.ReadClaim(ctx, claimID)
	if err != nil {
		return claims.Claim{}, err
	}
	if c.Status == claims.StatusRejected {
		return c, nil
	}

	if err := e.store.TransitionClaim(ctx, claimID, claims.StatusPending, claims.StatusRejected, reason); err != nil {
		return claims.Claim{}, err
	}
	e.countClaimRejected("operator")
	e.log.Info().
		Uint64("claim_id", claimID).
		Str("reason", reason).
		Msg("claim rejected by operator")
	return e.store.ReadClaim(ctx, claimID)
}

func (e *Engine) countPolicyRejected(protocolID, reason string, err error) {
	if e.metrics != nil {
		e.metrics.PoliciesRejected.WithLabelValues(protocolID, reason).Inc()
	}
	e.log.Debug().Err(err).Str("protocol", protocolID).Str("reason", reason).Msg("policy rejected")
}

func (e *Engine) countClaimRejected(reason string) {
	if e.metrics != nil {
		e.metrics.ClaimsRejected.WithLabelValues(reason).Inc()
	}
}

func (e *Engine) countCapacityCheck(gate, outcome string) {
	if e.metrics != nil {
		e.metrics.CapacityChecks.WithLabelValues(gate, outcome).Inc()
	}
}
