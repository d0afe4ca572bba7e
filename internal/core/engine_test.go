package core

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/AhmedAmer72/Praesidium-AI/internal/claims"
	"github.com/AhmedAmer72/Praesidium-AI/internal/ledger"
	fpmath "github.com/AhmedAmer72/Praesidium-AI/internal/math"
	"github.com/AhmedAmer72/Praesidium-AI/internal/risk"
	"github.com/AhmedAmer72/Praesidium-AI/internal/solvency"
	"github.com/AhmedAmer72/Praesidium-AI/internal/trigger"
)

var engineEpoch = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

const pol = fpmath.Amount(1_000_000) // one whole unit

func newTestEngine(t *testing.T) (*Engine, *ledger.MemoryStore) {
	t.Helper()
	store := ledger.NewMemoryStore()
	store.SetClock(func() time.Time { return engineEpoch })
	eng, err := NewEngine(store, solvency.DefaultTargetReserveRatio, nil, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	eng.SetClock(func() time.Time { return engineEpoch })
	return eng, store
}

func seedRiskEntry(t *testing.T, store *ledger.MemoryStore, protocolID string, score int, rateBps int64) {
	t.Helper()
	err := store.WriteRiskEntry(context.Background(), risk.Entry{
		ProtocolID:     protocolID,
		RiskScore:      score,
		PremiumRateBps: rateBps,
		UpdatedAt:      engineEpoch,
	})
	if err != nil {
		t.Fatalf("WriteRiskEntry: %v", err)
	}
}

func TestQuotePremium(t *testing.T) {
	eng, store := newTestEngine(t)
	seedRiskEntry(t, store, "aave", 88, 120)

	q, err := eng.QuotePremium(context.Background(), "aave", 50_000*pol)
	if err != nil {
		t.Fatalf("QuotePremium: %v", err)
	}
	if q.Premium != 600*pol {
		t.Errorf("premium = %d, want %d", q.Premium, 600*pol)
	}
	if q.RiskLevel != risk.LevelLow {
		t.Errorf("risk level = %s, want low", q.RiskLevel)
	}

	if _, err := eng.QuotePremium(context.Background(), "ghost", 50_000*pol); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing entry error = %v, want ErrNotFound", err)
	}
}

func TestCreatePolicyIssuanceGate(t *testing.T) {
	eng, store := newTestEngine(t)
	seedRiskEntry(t, store, "aave", 88, 120)
	store.Deposit(100 * pol)

	// Available capacity at reserve 1.5 is 66.666667: 70 must fail.
	_, err := eng.CreatePolicy(context.Background(), CreatePolicyRequest{
		Holder: "0xholder", ProtocolID: "aave", Coverage: 70 * pol, Duration: 30 * 24 * time.Hour,
	})
	if !errors.Is(err, ErrCapacityExceeded) {
		t.Fatalf("70 coverage error = %v, want ErrCapacityExceeded", err)
	}

	p, err := eng.CreatePolicy(context.Background(), CreatePolicyRequest{
		Holder: "0xholder", ProtocolID: "aave", Coverage: 60 * pol, Duration: 30 * 24 * time.Hour,
	})
	if err != nil {
		t.Fatalf("60 coverage: %v", err)
	}
	if !p.Active || p.Claimed {
		t.Errorf("new policy active=%v claimed=%v", p.Active, p.Claimed)
	}
	if p.ExpiresAt != engineEpoch.Add(30*24*time.Hour) {
		t.Errorf("expiry = %s", p.ExpiresAt)
	}
	// 60 * 120bps = 0.72
	if p.PremiumPaid != 720_000 {
		t.Errorf("premium = %d, want 720000", p.PremiumPaid)
	}
}

func TestCreatePolicyValidation(t *testing.T) {
	eng, store := newTestEngine(t)
	seedRiskEntry(t, store, "aave", 88, 120)
	store.Deposit(1_000_000 * pol)
	ctx := context.Background()

	cases := []struct {
		name string
		req  CreatePolicyRequest
		want error
	}{
		{"zero coverage", CreatePolicyRequest{Holder: "h", ProtocolID: "aave", Coverage: 0, Duration: time.Hour}, ErrInvalidInput},
		{"negative coverage", CreatePolicyRequest{Holder: "h", ProtocolID: "aave", Coverage: -pol, Duration: time.Hour}, ErrInvalidInput},
		{"zero duration", CreatePolicyRequest{Holder: "h", ProtocolID: "aave", Coverage: pol, Duration: 0}, ErrInvalidInput},
		{"empty holder", CreatePolicyRequest{ProtocolID: "aave", Coverage: pol, Duration: time.Hour}, ErrInvalidInput},
		{"unknown protocol", CreatePolicyRequest{Holder: "h", ProtocolID: "ghost", Coverage: pol, Duration: time.Hour}, ErrNotFound},
	}
	for _, tc := range cases {
		if _, err := eng.CreatePolicy(ctx, tc.req); !errors.Is(err, tc.want) {
			t.Errorf("%s: error = %v, want %v", tc.name, err, tc.want)
		}
	}
}

// issueTestPolicy funds the pool, seeds risk, activates a TVL trigger,
// and issues one policy ready for a claim.
func issueTestPolicy(t *testing.T, eng *Engine, store *ledger.MemoryStore, coverage fpmath.Amount) uint64 {
	t.Helper()
	ctx := context.Background()
	seedRiskEntry(t, store, "aave", 88, 120)
	store.Deposit(coverage * 2)
	p, err := eng.CreatePolicy(ctx, CreatePolicyRequest{
		Holder: "0xholder", ProtocolID: "aave", Coverage: coverage, Duration: 30 * 24 * time.Hour,
	})
	if err != nil {
		t.Fatalf("CreatePolicy: %v", err)
	}
	if _, err := eng.ActivateTrigger(ctx, "aave", trigger.TypeTVLDrop, 75); err != nil {
		t.Fatalf("ActivateTrigger: %v", err)
	}
	return p.ID
}

func TestSubmitClaimPreconditions(t *testing.T) {
	eng, store := newTestEngine(t)
	ctx := context.Background()
	policyID := issueTestPolicy(t, eng, store, 1_000*pol)

	if _, err := eng.SubmitClaim(ctx, SubmitClaimRequest{PolicyID: 404, TriggerType: trigger.TypeTVLDrop}); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing policy error = %v, want ErrNotFound", err)
	}

	// Trigger type mismatch is a trigger failure, not a policy one.
	if _, err := eng.SubmitClaim(ctx, SubmitClaimRequest{PolicyID: policyID, TriggerType: trigger.TypeDepegEvent}); !errors.Is(err, ErrNoActiveTrigger) {
		t.Errorf("type mismatch error = %v, want ErrNoActiveTrigger", err)
	}

	c, err := eng.SubmitClaim(ctx, SubmitClaimRequest{PolicyID: policyID, TriggerType: trigger.TypeTVLDrop, Evidence: "tvl -45%"})
	if err != nil {
		t.Fatalf("SubmitClaim: %v", err)
	}
	if c.Status != claims.StatusPending {
		t.Errorf("status = %s, want pending", c.Status)
	}
	if c.Amount != 1_000*pol {
		t.Errorf("amount = %d, want full coverage", c.Amount)
	}

	// A pending claim blocks resubmission.
	if _, err := eng.SubmitClaim(ctx, SubmitClaimRequest{PolicyID: policyID, TriggerType: trigger.TypeTVLDrop}); !errors.Is(err, ErrDuplicateClaim) {
		t.Errorf("duplicate error = %v, want ErrDuplicateClaim", err)
	}
}

func TestSubmitClaimExpiredPolicy(t *testing.T) {
	eng, store := newTestEngine(t)
	policyID := issueTestPolicy(t, eng, store, 1_000*pol)

	// An expired policy is never eligible, trigger or no trigger.
	expired := engineEpoch.Add(31 * 24 * time.Hour)
	eng.SetClock(func() time.Time { return expired })
	store.SetClock(func() time.Time { return expired })

	_, err := eng.SubmitClaim(context.Background(), SubmitClaimRequest{PolicyID: policyID, TriggerType: trigger.TypeTVLDrop})
	if !errors.Is(err, ErrPolicyNotEligible) {
		t.Errorf("expired policy error = %v, want ErrPolicyNotEligible", err)
	}
}

func TestSubmitClaimNoTrigger(t *testing.T) {
	eng, store := newTestEngine(t)
	ctx := context.Background()
	seedRiskEntry(t, store, "aave", 88, 120)
	store.Deposit(10_000 * pol)
	p, err := eng.CreatePolicy(ctx, CreatePolicyRequest{
		Holder: "0xholder", ProtocolID: "aave", Coverage: 1_000 * pol, Duration: time.Hour,
	})
	if err != nil {
		t.Fatalf("CreatePolicy: %v", err)
	}

	if _, err := eng.SubmitClaim(ctx, SubmitClaimRequest{PolicyID: p.ID, TriggerType: trigger.TypeTVLDrop}); !errors.Is(err, ErrNoActiveTrigger) {
		t.Errorf("no trigger error = %v, want ErrNoActiveTrigger", err)
	}

	// Deactivated trigger is as good as none.
	if _, err := eng.ActivateTrigger(ctx, "aave", trigger.TypeTVLDrop, 50); err != nil {
		t.Fatalf("ActivateTrigger: %v", err)
	}
	if _, err := eng.DeactivateTrigger(ctx, "aave"); err != nil {
		t.Fatalf("DeactivateTrigger: %v", err)
	}
	if _, err := eng.SubmitClaim(ctx, SubmitClaimRequest{PolicyID: p.ID, TriggerType: trigger.TypeTVLDrop}); !errors.Is(err, ErrNoActiveTrigger) {
		t.Errorf("deactivated trigger error = %v, want ErrNoActiveTrigger", err)
	}
}

func TestProcessClaimPaysOnceThenNoOp(t *testing.T) {
	eng, store := newTestEngine(t)
	ctx := context.Background()
	policyID := issueTestPolicy(t, eng, store, 1_000*pol)

	c, err := eng.SubmitClaim(ctx, SubmitClaimRequest{PolicyID: policyID, TriggerType: trigger.TypeTVLDrop})
	if err != nil {
		t.Fatalf("SubmitClaim: %v", err)
	}

	res, err := eng.ProcessClaimAutomatically(ctx, c.ID)
	if err != nil {
		t.Fatalf("ProcessClaimAutomatically: %v", err)
	}
	if res.Outcome != OutcomePaid {
		t.Fatalf("outcome = %s, want paid", res.Outcome)
	}
	if res.Claim.PayoutTxRef == "" {
		t.Errorf("expected payout ref")
	}

	p, err := store.ReadPolicy(ctx, policyID)
	if err != nil {
		t.Fatalf("ReadPolicy: %v", err)
	}
	if !p.Claimed || p.Active {
		t.Errorf("policy after payout: claimed=%v active=%v", p.Claimed, p.Active)
	}

	// Idempotent: the second invocation is a no-op, not a double payout.
	again, err := eng.ProcessClaimAutomatically(ctx, c.ID)
	if err != nil {
		t.Fatalf("second process: %v", err)
	}
	if !again.NoOp || again.Outcome != OutcomeNoOp {
		t.Errorf("second process outcome = %+v, want no-op", again)
	}

	snap, _ := store.ReadPoolSnapshot(ctx)
	if snap.TotalClaimsPaid != 1_000*pol {
		t.Errorf("total claims paid = %d, want one payout", snap.TotalClaimsPaid)
	}
}

func TestPaidPolicyStaysIneligibleAcrossNewTriggers(t *testing.T) {
	eng, store := newTestEngine(t)
	ctx := context.Background()
	policyID := issueTestPolicy(t, eng, store, 1_000*pol)

	c, err := eng.SubmitClaim(ctx, SubmitClaimRequest{PolicyID: policyID, TriggerType: trigger.TypeTVLDrop})
	if err != nil {
		t.Fatalf("SubmitClaim: %v", err)
	}
	if _, err := eng.ProcessClaimAutomatically(ctx, c.ID); err != nil {
		t.Fatalf("ProcessClaimAutomatically: %v", err)
	}

	// A fresh incident on the same protocol does not revive a paid-out policy.
	if _, err := eng.ActivateTrigger(ctx, "aave", trigger.TypeDepegEvent, 90); err != nil {
		t.Fatalf("ActivateTrigger: %v", err)
	}
	_, err = eng.SubmitClaim(ctx, SubmitClaimRequest{PolicyID: policyID, TriggerType: trigger.TypeDepegEvent})
	if !errors.Is(err, ErrPolicyNotEligible) {
		t.Fatalf("resubmit after payout error = %v, want ErrPolicyNotEligible", err)
	}
}

func TestProcessClaimRejectsWhenTriggerCleared(t *testing.T) {
	eng, store := newTestEngine(t)
	ctx := context.Background()
	policyID := issueTestPolicy(t, eng, store, 1_000*pol)

	c, err := eng.SubmitClaim(ctx, SubmitClaimRequest{PolicyID: policyID, TriggerType: trigger.TypeTVLDrop})
	if err != nil {
		t.Fatalf("SubmitClaim: %v", err)
	}

	// Conditions changed between submission and processing.
	if _, err := eng.DeactivateTrigger(ctx, "aave"); err != nil {
		t.Fatalf("DeactivateTrigger: %v", err)
	}

	res, err := eng.ProcessClaimAutomatically(ctx, c.ID)
	if err != nil {
		t.Fatalf("ProcessClaimAutomatically: %v", err)
	}
	if res.Outcome != OutcomeRejected {
		t.Fatalf("outcome = %s, want rejected", res.Outcome)
	}
	if res.Claim.Status != claims.StatusRejected {
		t.Errorf("status = %s, want rejected", res.Claim.Status)
	}
	if res.Claim.RejectReason == "" {
		t.Errorf("expected a recorded reject reason")
	}

	// Rejection never pays.
	snap, _ := store.ReadPoolSnapshot(ctx)
	if snap.TotalClaimsPaid != 0 {
		t.Errorf("total claims paid = %d, want 0", snap.TotalClaimsPaid)
	}
}

func TestProcessClaimRejectsOverMaxSingleClaim(t *testing.T) {
	eng, store := newTestEngine(t)
	ctx := context.Background()
	policyID := issueTestPolicy(t, eng, store, 1_000*pol)

	c, err := eng.SubmitClaim(ctx, SubmitClaimRequest{PolicyID: policyID, TriggerType: trigger.TypeTVLDrop})
	if err != nil {
		t.Fatalf("SubmitClaim: %v", err)
	}

	// Drain the pool below amount/0.9 after issuance: the payout gate
	// re-checks against the current balance, not the issuance-time one.
	store.Deposit(-1_500 * pol)

	res, err := eng.ProcessClaimAutomatically(ctx, c.ID)
	if err != nil {
		t.Fatalf("ProcessClaimAutomatically: %v", err)
	}
	if res.Outcome != OutcomeRejected {
		t.Fatalf("outcome = %s, want rejected", res.Outcome)
	}
}

func TestProcessClaimTransferFailureLeavesPending(t *testing.T) {
	eng, store := newTestEngine(t)
	ctx := context.Background()
	policyID := issueTestPolicy(t, eng, store, 1_000*pol)

	c, err := eng.SubmitClaim(ctx, SubmitClaimRequest{PolicyID: policyID, TriggerType: trigger.TypeTVLDrop})
	if err != nil {
		t.Fatalf("SubmitClaim: %v", err)
	}

	store.SetTransfer(ledger.TransferFunc(func(ctx context.Context, to string, amount fpmath.Amount) (string, error) {
		return "", errors.New("rpc timeout")
	}))

	_, err = eng.ProcessClaimAutomatically(ctx, c.ID)
	if !errors.Is(err, ErrTransferFailed) {
		t.Fatalf("error = %v, want ErrTransferFailed", err)
	}
	if Retryable(err) {
		t.Errorf("transfer failure must not be blind-retryable")
	}

	got, _ := store.ReadClaim(ctx, c.ID)
	if got.Status != claims.StatusPending {
		t.Errorf("status = %s, want pending after failed transfer", got.Status)
	}
}

func TestRejectClaimIdempotent(t *testing.T) {
	eng, store := newTestEngine(t)
	ctx := context.Background()
	policyID := issueTestPolicy(t, eng, store, 1_000*pol)

	c, err := eng.SubmitClaim(ctx, SubmitClaimRequest{PolicyID: policyID, TriggerType: trigger.TypeTVLDrop})
	if err != nil {
		t.Fatalf("SubmitClaim: %v", err)
	}

	rejected, err := eng.RejectClaim(ctx, c.ID, "manual review: evidence insufficient")
	if err != nil {
		t.Fatalf("RejectClaim: %v", err)
	}
	if rejected.Status != claims.StatusRejected {
		t.Errorf("status = %s, want rejected", rejected.Status)
	}

	again, err := eng.RejectClaim(ctx, c.ID, "different reason")
	if err != nil {
		t.Fatalf("second RejectClaim: %v", err)
	}
	if again.RejectReason != "manual review: evidence insufficient" {
		t.Errorf("reject reason overwritten on no-op: %q", again.RejectReason)
	}

	// A rejected claim does not block resubmission.
	if _, err := eng.SubmitClaim(ctx, SubmitClaimRequest{PolicyID: policyID, TriggerType: trigger.TypeTVLDrop}); err != nil {
		t.Errorf("resubmit after rejection: %v", err)
	}

	// Paying a rejected claim is a conflict, not a payout.
	if _, err := eng.ProcessClaimAutomatically(ctx, c.ID); err != nil {
		t.Errorf("processing rejected claim: %v", err)
	}
}

func TestUpdateRiskEntryDetectsSignificantMove(t *testing.T) {
	eng, store := newTestEngine(t)
	ctx := context.Background()
	seedRiskEntry(t, store, "curve", 72, 280)

	change, err := eng.UpdateRiskEntry(ctx, risk.Entry{
		ProtocolID: "curve", RiskScore: 66, PremiumRateBps: 320, UpdatedAt: engineEpoch.Add(time.Minute),
	})
	if err != nil {
		t.Fatalf("UpdateRiskEntry: %v", err)
	}
	if !change.Significant || change.Delta != -6 {
		t.Errorf("change = %+v, want significant delta -6", change)
	}

	change, err = eng.UpdateRiskEntry(ctx, risk.Entry{
		ProtocolID: "curve", RiskScore: 68, PremiumRateBps: 300, UpdatedAt: engineEpoch.Add(2 * time.Minute),
	})
	if err != nil {
		t.Fatalf("UpdateRiskEntry: %v", err)
	}
	if change.Significant {
		t.Errorf("delta +2 flagged significant")
	}

	// First sighting installs the entry without a significant flag.
	change, err = eng.UpdateRiskEntry(ctx, risk.Entry{
		ProtocolID: "lido", RiskScore: 81, PremiumRateBps: 150, UpdatedAt: engineEpoch,
	})
	if err != nil {
		t.Fatalf("UpdateRiskEntry new protocol: %v", err)
	}
	if change.Significant {
		t.Errorf("first sighting flagged significant")
	}
}

func TestGetCapacityStatus(t *testing.T) {
	eng, store := newTestEngine(t)
	ctx := context.Background()
	seedRiskEntry(t, store, "aave", 88, 0)
	store.Deposit(100 * pol)

	report, err := eng.GetCapacity(ctx)
	if err != nil {
		t.Fatalf("GetCapacity: %v", err)
	}
	if report.Status != solvency.StatusHealthy {
		t.Errorf("status = %s, want healthy with no coverage", report.Status)
	}
	if !report.Infinite {
		t.Errorf("collateralization should be unbounded with zero coverage")
	}

	// 60 coverage on a 100 pool sits exactly on the moderate boundary:
	// 60% utilization is still healthy, the threshold is exclusive.
	if _, err := eng.CreatePolicy(ctx, CreatePolicyRequest{
		Holder: "h", ProtocolID: "aave", Coverage: 60 * pol, Duration: time.Hour,
	}); err != nil {
		t.Fatalf("CreatePolicy: %v", err)
	}
	report, err = eng.GetCapacity(ctx)
	if err != nil {
		t.Fatalf("GetCapacity: %v", err)
	}
	if report.Status != solvency.StatusHealthy {
		t.Errorf("status at exactly 60%% = %s, want healthy", report.Status)
	}
}
